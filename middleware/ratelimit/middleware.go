package ratelimit

import (
	"context"
	"net"
	"net/http"
	"strings"
	"time"

	"service-guard/middleware/ratelimit/application"
	"service-guard/middleware/ratelimit/domain"
)

type KeyFunc func(r *http.Request) string

// Checker é o que o middleware precisa do limiter (application.RateLimiter implementa).
type Checker interface {
	Check(ctx context.Context, identity string, t domain.LimitType, opts ...application.CheckOption) domain.Result
}

type Options struct {
	Limiter             Checker
	LimitType           domain.LimitType
	Stats               domain.StatsStore
	KeyFn               KeyFunc
	KeyHeader           string
	TrustXForwardedFor  bool
	RejectStatus        int
	AddRateLimitHeaders bool
}

type limitInfo interface {
	Limits() domain.Limits
}

func DefaultKeyFunc(keyHeader string, trustXFF bool) KeyFunc {
	return func(r *http.Request) string {
		if keyHeader != "" {
			if v := strings.TrimSpace(r.Header.Get(keyHeader)); v != "" {
				return v
			}
		}

		if trustXFF {
			// pega o primeiro IP do X-Forwarded-For (cliente original)
			if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
				first, _, _ := strings.Cut(xff, ",")
				if ip := strings.TrimSpace(first); ip != "" {
					return ip
				}
			}
		}

		// fallback: RemoteAddr
		host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
		if err == nil && host != "" {
			return host
		}
		if r.RemoteAddr != "" {
			return r.RemoteAddr
		}
		return "unknown"
	}
}

func Middleware(opts Options) func(next http.Handler) http.Handler {
	if opts.Limiter == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	if opts.RejectStatus == 0 {
		opts.RejectStatus = http.StatusTooManyRequests
	}
	if opts.LimitType == "" {
		opts.LimitType = domain.APIRequests
	}
	if opts.KeyFn == nil {
		opts.KeyFn = DefaultKeyFunc(opts.KeyHeader, opts.TrustXForwardedFor)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := opts.KeyFn(r)
			res := opts.Limiter.Check(r.Context(), key, opts.LimitType)

			if opts.Stats != nil {
				_ = opts.Stats.Record(r.Context(), domain.StatsEvent{
					Identity:  key,
					LimitType: opts.LimitType,
					Allowed:   res.Allowed,
					FailOpen:  res.FailOpen,
					Method:    r.Method,
					Path:      r.URL.Path,
					At:        time.Now(),
				})
			}

			if opts.AddRateLimitHeaders {
				h := w.Header()
				if li, ok := opts.Limiter.(limitInfo); ok {
					if lim, ok := li.Limits().Get(opts.LimitType); ok {
						h.Set("X-RateLimit-Limit", formatInt(lim.Requests))
					}
				}
				h.Set("X-RateLimit-Remaining", formatInt(res.Remaining))
				h.Set("X-RateLimit-Reset", formatInt64(res.ResetTime.Unix()))
			}

			if !res.Allowed {
				w.Header().Set("Retry-After", formatInt(int(res.RetryAfter/time.Second)))
				http.Error(w, http.StatusText(opts.RejectStatus), opts.RejectStatus)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
