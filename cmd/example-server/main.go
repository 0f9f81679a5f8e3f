package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"service-guard/logging"
	"service-guard/middleware/degradation"
	degapp "service-guard/middleware/degradation/application"
	degdomain "service-guard/middleware/degradation/domain"
	deginfra "service-guard/middleware/degradation/infra"
	"service-guard/middleware/ratelimit"
	"service-guard/middleware/ratelimit/application"
	"service-guard/middleware/ratelimit/domain"
	"service-guard/middleware/ratelimit/infra"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	// Exemplo: usando limiter e degradação direto no webserver (sem proxy)
	logger, err := logging.New(os.Getenv("LOG_LEVEL"), true)
	if err != nil {
		_, _ = os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err = run(ctx, logger)
	cancel()
	if err != nil {
		logger.Error("example server stopped", zap.Error(err))
	}
	_ = logger.Sync()
	if err != nil {
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *zap.Logger) error {
	redisAddr := "localhost:6379"
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		redisAddr = v
	}
	rdb := redis.NewClient(&redis.Options{Addr: redisAddr})
	defer func() { _ = rdb.Close() }()

	limiter := application.NewRateLimiter(
		infra.NewRedisWindowStore(rdb),
		application.WithLogger(logger),
	)

	manager := degapp.NewManager(
		degapp.WithLogger(logger),
		degapp.WithHealthCheckInterval(10*time.Second),
	)
	manager.RegisterDependency("redis", degdomain.Connection(deginfra.NewRedisProbe(rdb)))
	manager.RegisterFallback(degdomain.FallbackOperation{
		Name: "counter",
		Handler: func(_ context.Context, args degdomain.Args) (any, error) {
			return map[string]any{"name": args["name"], "value": nil, "stale": true}, nil
		},
		RequiredDependencies: []string{"redis"},
		CacheTTL:             time.Minute,
		TriggeredLevel:       degdomain.CacheOnly,
	})

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	limiter.StartJanitor(ctx, 5*time.Minute)
	manager.StartMonitoring(ctx)
	defer manager.StopMonitoring()

	keyFn := ratelimit.DefaultKeyFunc("X-Api-Key", true)

	mux := http.NewServeMux()

	// /events: Check manual com o tipo user_events
	mux.HandleFunc("/events", func(w http.ResponseWriter, r *http.Request) {
		res := limiter.Check(r.Context(), keyFn(r), domain.UserEvents)
		if !res.Allowed {
			w.Header().Set("Retry-After", strconv.Itoa(int(res.RetryAfter/time.Second)))
			http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
			return
		}
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
		w.WriteHeader(http.StatusAccepted)
	})

	// /counter?name=x: lê do Redis; com Redis fora cai no fallback cacheado
	counter := degradation.Handler(degradation.Options{
		Manager:   manager,
		Operation: "counter",
		Primary: func(ctx context.Context, args degdomain.Args) (any, error) {
			name, _ := args["name"].(string)
			v, err := rdb.Incr(ctx, "example:counter:"+name).Result()
			if err != nil {
				return nil, err
			}
			return map[string]any{"name": name, "value": v}, nil
		},
		Logger: logger,
	})
	mux.Handle("/counter", ratelimit.Middleware(ratelimit.Options{
		Limiter:             limiter,
		LimitType:           domain.AnalyticsQueries,
		KeyFn:               keyFn,
		AddRateLimitHeaders: true,
	})(counter))

	mux.Handle("/health", degradation.HealthHandler(manager))
	mux.Handle("/status", degradation.StatusHandler(manager))

	addr := ":8081"
	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		addr = v
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       90 * time.Second,
	}

	shutdownDone := make(chan struct{})
	go func() {
		defer close(shutdownDone)
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("example server listening", zap.String("addr", addr), zap.String("redis", redisAddr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.WithMessage(err, "server error")
	}
	<-shutdownDone
	return nil
}
