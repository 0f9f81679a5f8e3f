package main

import (
	"context"
	"net/http"
	"net/http/httputil"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"service-guard/config"
	"service-guard/logging"
	"service-guard/middleware/degradation"
	degapp "service-guard/middleware/degradation/application"
	degdomain "service-guard/middleware/degradation/domain"
	deginfra "service-guard/middleware/degradation/infra"
	"service-guard/middleware/ratelimit"
	"service-guard/middleware/ratelimit/application"
	"service-guard/middleware/ratelimit/infra"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		_, _ = os.Stderr.WriteString("config error: " + err.Error() + "\n")
		os.Exit(1)
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogDev)
	if err != nil {
		_, _ = os.Stderr.WriteString("logger error: " + err.Error() + "\n")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err = run(ctx, cfg, logger)
	cancel()
	if err != nil {
		logger.Error("gateway stopped", zap.Error(err))
	}
	_ = logger.Sync()
	if err != nil {
		os.Exit(1)
	}
}

// run sobe o gateway e bloqueia até ctx ser cancelado ou o servidor falhar.
// Todo recurso aberto aqui é fechado antes de retornar.
func run(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	if cfg.UpstreamURL == "" {
		return errors.New("UPSTREAM_URL is required")
	}
	target, err := url.Parse(cfg.UpstreamURL)
	if err != nil {
		return errors.WithMessage(err, "invalid UPSTREAM_URL")
	}

	proxy := httputil.NewSingleHostReverseProxy(target)
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		logger.Warn("proxy error", zap.String("path", r.URL.Path), zap.Error(err))
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer func() { _ = rdb.Close() }()

	// sem Redis o limiter entra em fail-open; só avisamos
	pingCtx, cancelPing := context.WithTimeout(context.Background(), 2*time.Second)
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		logger.Warn("redis ping failed at startup", zap.String("addr", cfg.RedisAddr), zap.Error(err))
	}
	cancelPing()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	promStats, err := infra.NewPrometheusStatsStore(reg)
	if err != nil {
		return errors.WithMessage(err, "register rate limit metrics")
	}
	stats := infra.MultiStatsStore{promStats}
	if cfg.StatsEnabled {
		stats = append(stats, infra.NewRedisStatsStore(
			rdb,
			infra.WithStatsPrefix(cfg.StatsPrefix),
			infra.WithStatsTTL(cfg.StatsTTL),
			infra.WithStatsBucket(cfg.StatsBucket),
			infra.WithStatsTrackIdentities(cfg.StatsTrackKeys),
		))
	}

	limiter := application.NewRateLimiter(
		infra.NewRedisWindowStore(rdb),
		application.WithLogger(logger.Named("ratelimit")),
		application.WithLimits(cfg.Limits),
		application.WithCallTimeout(cfg.RateStoreTimeout),
	)

	manager := degapp.NewManager(
		degapp.WithLogger(logger.Named("degradation")),
		degapp.WithHealthCheckInterval(cfg.HealthCheckInterval),
		degapp.WithCacheCleanupInterval(cfg.CacheCleanupInterval),
		degapp.WithProbeTimeout(cfg.ProbeTimeout),
	)
	manager.RegisterDependency("redis", degdomain.Connection(deginfra.NewRedisProbe(rdb)))
	if cfg.UpstreamHealthURL != "" {
		manager.RegisterDependency("upstream", degdomain.Availability(
			deginfra.NewHTTPProbe(cfg.UpstreamHealthURL, cfg.ProbeTimeout, deginfra.WithProbeLogger(logger.Named("probe"))),
		))
	}
	if err := reg.Register(deginfra.NewCollector(manager)); err != nil {
		return errors.WithMessage(err, "register degradation metrics")
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	limiter.StartJanitor(ctx, cfg.RateCleanupEvery)
	manager.StartMonitoring(ctx)
	defer manager.StopMonitoring()

	h := http.Handler(proxy)
	if cfg.RateEnabled {
		h = ratelimit.Middleware(ratelimit.Options{
			Limiter:             limiter,
			LimitType:           cfg.RateLimitType,
			Stats:               stats,
			KeyHeader:           cfg.RateKeyHeader,
			TrustXForwardedFor:  cfg.TrustXFF,
			RejectStatus:        http.StatusTooManyRequests,
			AddRateLimitHeaders: cfg.AddHeaders,
		})(h)
	}
	h = degradation.Middleware(manager)(h)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	mux.Handle("/_guard/health", degradation.HealthHandler(manager))
	mux.Handle("/_guard/status", degradation.StatusHandler(manager))
	mux.Handle("/", h)

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
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
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	lim, _ := cfg.Limits.Get(cfg.RateLimitType)
	logger.Info("gateway listening",
		zap.String("addr", cfg.ListenAddr),
		zap.Stringer("upstream", target),
	)
	logger.Info("rate limit",
		zap.Bool("enabled", cfg.RateEnabled),
		zap.String("type", string(cfg.RateLimitType)),
		zap.Int("requests", lim.Requests),
		zap.Duration("window", lim.Window),
		zap.String("key_header", cfg.RateKeyHeader),
		zap.Bool("trust_xff", cfg.TrustXFF),
		zap.Bool("stats_redis", cfg.StatsEnabled),
	)
	logger.Info("degradation",
		zap.Duration("health_interval", cfg.HealthCheckInterval),
		zap.Duration("probe_timeout", cfg.ProbeTimeout),
		zap.String("upstream_health", cfg.UpstreamHealthURL),
	)

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.WithMessage(err, "server error")
	}
	// espera o Shutdown drenar as conexões
	<-shutdownDone
	return nil
}
