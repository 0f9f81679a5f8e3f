package ratelimit

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"service-guard/middleware/ratelimit/application"
	"service-guard/middleware/ratelimit/domain"
	"service-guard/middleware/ratelimit/infra"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestLimiter(t *testing.T, lim domain.Limit) *application.RateLimiter {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = rdb.Close() })

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	return application.NewRateLimiter(
		infra.NewRedisWindowStore(rdb),
		application.WithLimits(domain.DefaultLimits().With(domain.APIRequests, lim)),
		application.WithClock(func() time.Time { return now }),
	)
}

func TestMiddleware_AllowsThenRejectsSameKey(t *testing.T) {
	limiter := newTestLimiter(t, domain.Limit{Requests: 1, Window: 30 * time.Second})
	stats := infra.NewMemoryStatsStore()

	calls := 0
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, "ok")
	})

	h := Middleware(Options{
		Limiter:             limiter,
		Stats:               stats,
		AddRateLimitHeaders: true,
	})(next)

	// 1) primeira passa
	r1 := httptest.NewRequest(http.MethodGet, "http://example/showTela", nil)
	r1.RemoteAddr = "10.0.0.1:1234"
	w1 := httptest.NewRecorder()
	h.ServeHTTP(w1, r1)
	if w1.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w1.Code)
	}
	if got := w1.Header().Get("X-RateLimit-Limit"); got != "1" {
		t.Fatalf("expected X-RateLimit-Limit=1, got %q", got)
	}
	if got := w1.Header().Get("X-RateLimit-Remaining"); got != "0" {
		t.Fatalf("expected X-RateLimit-Remaining=0, got %q", got)
	}
	if got := w1.Header().Get("X-RateLimit-Reset"); got == "" {
		t.Fatalf("expected X-RateLimit-Reset header to be set")
	}

	// 2) segunda deve bloquear (limite 1 na janela)
	r2 := httptest.NewRequest(http.MethodGet, "http://example/showTela", nil)
	r2.RemoteAddr = "10.0.0.1:1234"
	w2 := httptest.NewRecorder()
	h.ServeHTTP(w2, r2)
	if w2.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", w2.Code)
	}
	if got := strings.TrimSpace(w2.Header().Get("Retry-After")); got != "30" {
		t.Fatalf("expected Retry-After=30, got %q", got)
	}

	if calls != 1 {
		t.Fatalf("expected next handler to be called once, got %d", calls)
	}
	if total := stats.Total(); total.Allowed != 1 || total.Denied != 1 {
		t.Fatalf("expected 1 allowed and 1 denied, got %+v", total)
	}
}

func TestMiddleware_KeyByHeader(t *testing.T) {
	limiter := newTestLimiter(t, domain.Limit{Requests: 1, Window: time.Minute})

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	h := Middleware(Options{
		Limiter:   limiter,
		KeyHeader: "X-Api-Key",
	})(next)

	// duas chaves diferentes => ambos devem passar (cada chave tem sua própria janela)
	for _, key := range []string{"k1", "k2"} {
		r := httptest.NewRequest(http.MethodGet, "http://example/", nil)
		r.Header.Set("X-Api-Key", key)
		r.RemoteAddr = "10.0.0.1:1234"
		w := httptest.NewRecorder()
		h.ServeHTTP(w, r)
		if w.Code != http.StatusOK {
			t.Fatalf("expected 200 for key %s, got %d", key, w.Code)
		}
	}
}

func TestMiddleware_FailOpenLetsRequestThrough(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = rdb.Close() })
	mr.Close()

	limiter := application.NewRateLimiter(infra.NewRedisWindowStore(rdb), application.WithCallTimeout(200*time.Millisecond))
	stats := infra.NewMemoryStatsStore()

	h := Middleware(Options{Limiter: limiter, Stats: stats})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	r := httptest.NewRequest(http.MethodGet, "http://example/", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	if w.Code != http.StatusNoContent {
		t.Fatalf("expected 204 when store is down, got %d", w.Code)
	}
	if got := stats.Total().FailOpen; got != 1 {
		t.Fatalf("expected fail-open to be recorded, got %d", got)
	}
}

func TestMiddleware_NoLimiterIsPassThrough(t *testing.T) {
	h := Middleware(Options{})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "http://example/", nil))
	if w.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", w.Code)
	}
}
