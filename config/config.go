// Package config lê a configuração dos binários a partir do ambiente,
// com um arquivo YAML opcional (LIMITS_FILE) para a tabela de limites.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"service-guard/middleware/ratelimit/domain"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

type Config struct {
	ListenAddr  string
	UpstreamURL string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	RateEnabled      bool
	RateLimitType    domain.LimitType
	RateKeyHeader    string
	TrustXFF         bool
	AddHeaders       bool
	RateStoreTimeout time.Duration
	RateCleanupEvery time.Duration
	Limits           domain.Limits

	StatsEnabled   bool
	StatsPrefix    string
	StatsTTL       time.Duration
	StatsBucket    string
	StatsTrackKeys bool

	HealthCheckInterval  time.Duration
	CacheCleanupInterval time.Duration
	ProbeTimeout         time.Duration
	UpstreamHealthURL    string

	LogLevel string
	LogDev   bool
}

// Load lê o ambiente, aplica LIMITS_FILE (se houver) e valida.
func Load() (Config, error) {
	cfg := Config{}
	cfg.ListenAddr = getenvDefault("LISTEN_ADDR", ":8080")
	cfg.UpstreamURL = os.Getenv("UPSTREAM_URL")

	cfg.RedisAddr = getenvDefault("REDIS_ADDR", "localhost:6379")
	cfg.RedisPassword = os.Getenv("REDIS_PASSWORD")
	cfg.RedisDB = getenvIntDefault("REDIS_DB", 0)

	cfg.RateEnabled = getenvBoolDefault("RATE_ENABLED", true)
	cfg.RateLimitType = domain.LimitType(getenvDefault("RATE_LIMIT_TYPE", string(domain.APIRequests)))
	cfg.RateKeyHeader = os.Getenv("RATE_KEY_HEADER")
	cfg.TrustXFF = getenvBoolDefault("TRUST_XFF", false)
	cfg.AddHeaders = getenvBoolDefault("ADD_RATELIMIT_HEADERS", false)
	cfg.RateStoreTimeout = getenvDurationDefault("RATE_STORE_TIMEOUT", 2*time.Second)
	cfg.RateCleanupEvery = getenvDurationDefault("RATE_CLEANUP_EVERY", 5*time.Minute)
	cfg.Limits = domain.DefaultLimits()

	cfg.StatsEnabled = getenvBoolDefault("RATE_STATS_ENABLED", false)
	cfg.StatsPrefix = getenvDefault("RATE_STATS_PREFIX", "rate_limit:stats")
	cfg.StatsTTL = getenvDurationDefault("RATE_STATS_TTL", 24*time.Hour)
	cfg.StatsBucket = getenvDefault("RATE_STATS_BUCKET", "minute")
	cfg.StatsTrackKeys = getenvBoolDefault("RATE_STATS_TRACK_KEYS", false)

	cfg.HealthCheckInterval = getenvDurationDefault("HEALTH_CHECK_INTERVAL", 30*time.Second)
	cfg.CacheCleanupInterval = getenvDurationDefault("CACHE_CLEANUP_INTERVAL", 300*time.Second)
	cfg.ProbeTimeout = getenvDurationDefault("PROBE_TIMEOUT", 5*time.Second)
	cfg.UpstreamHealthURL = os.Getenv("UPSTREAM_HEALTH_URL")

	cfg.LogLevel = getenvDefault("LOG_LEVEL", "info")
	cfg.LogDev = getenvBoolDefault("LOG_DEV", false)

	if path := os.Getenv("LIMITS_FILE"); path != "" {
		limits, err := LoadLimitsFile(path, cfg.Limits)
		if err != nil {
			return Config{}, err
		}
		cfg.Limits = limits
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if !c.RateLimitType.Valid() {
		return errors.Errorf("RATE_LIMIT_TYPE %q is not a known limit type", c.RateLimitType)
	}
	if strings.TrimSpace(c.RedisAddr) == "" {
		return errors.New("REDIS_ADDR is required")
	}
	if c.RateStoreTimeout <= 0 {
		return errors.New("RATE_STORE_TIMEOUT must be > 0")
	}
	if c.ProbeTimeout <= 0 {
		return errors.New("PROBE_TIMEOUT must be > 0")
	}
	if c.HealthCheckInterval <= 0 {
		return errors.New("HEALTH_CHECK_INTERVAL must be > 0")
	}
	if c.CacheCleanupInterval <= 0 {
		return errors.New("CACHE_CLEANUP_INTERVAL must be > 0")
	}
	switch c.StatsBucket {
	case "minute", "none":
	default:
		return errors.Errorf("RATE_STATS_BUCKET must be minute or none, got %q", c.StatsBucket)
	}
	return nil
}

type limitsFile struct {
	Limits map[string]struct {
		Requests int    `yaml:"requests"`
		Window   string `yaml:"window"`
	} `yaml:"limits"`
}

// LoadLimitsFile aplica sobre base os limites do YAML:
//
//	limits:
//	  api_requests: {requests: 500, window: 1h}
//
// Tipos ausentes no arquivo mantêm o valor de base.
func LoadLimitsFile(path string, base domain.Limits) (domain.Limits, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WithMessage(err, "read limits file")
	}
	var f limitsFile
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, errors.WithMessagef(err, "parse limits file %s", path)
	}

	out := base
	for name, v := range f.Limits {
		t := domain.LimitType(name)
		if !t.Valid() {
			return nil, errors.Errorf("limits file: unknown limit type %q", name)
		}
		w, err := time.ParseDuration(v.Window)
		if err != nil {
			return nil, errors.WithMessagef(err, "limits file: window of %s", name)
		}
		if v.Requests <= 0 || w <= 0 {
			return nil, errors.Errorf("limits file: %s needs requests > 0 and window > 0", name)
		}
		out = out.With(t, domain.Limit{Requests: v.Requests, Window: w})
	}
	return out, nil
}

func getenvDefault(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getenvIntDefault(k string, def int) int {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}

func getenvBoolDefault(k string, def bool) bool {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func getenvDurationDefault(k string, def time.Duration) time.Duration {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
