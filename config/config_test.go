package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"service-guard/middleware/ratelimit/domain"

	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "limits.yaml")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("LIMITS_FILE", "")
	t.Setenv("RATE_LIMIT_TYPE", "")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, ":8080", cfg.ListenAddr)
	require.Equal(t, domain.APIRequests, cfg.RateLimitType)
	require.Equal(t, 30*time.Second, cfg.HealthCheckInterval)
	require.Equal(t, 300*time.Second, cfg.CacheCleanupInterval)
	require.Equal(t, 5*time.Second, cfg.ProbeTimeout)
	require.Equal(t, domain.DefaultLimits(), cfg.Limits)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("LISTEN_ADDR", ":9000")
	t.Setenv("RATE_LIMIT_TYPE", "user_events")
	t.Setenv("TRUST_XFF", "true")
	t.Setenv("REDIS_DB", "3")
	t.Setenv("PROBE_TIMEOUT", "750ms")
	// valor inválido cai no padrão
	t.Setenv("HEALTH_CHECK_INTERVAL", "soon")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, ":9000", cfg.ListenAddr)
	require.Equal(t, domain.UserEvents, cfg.RateLimitType)
	require.True(t, cfg.TrustXFF)
	require.Equal(t, 3, cfg.RedisDB)
	require.Equal(t, 750*time.Millisecond, cfg.ProbeTimeout)
	require.Equal(t, 30*time.Second, cfg.HealthCheckInterval)
}

func TestLoad_UnknownLimitType(t *testing.T) {
	t.Setenv("RATE_LIMIT_TYPE", "downloads")

	_, err := Load()
	require.Error(t, err)
	require.Contains(t, err.Error(), "downloads")
}

func TestLoad_LimitsFileOverlay(t *testing.T) {
	t.Setenv("LIMITS_FILE", writeFile(t, `
limits:
  api_requests:
    requests: 5
    window: 10s
`))

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, domain.Limit{Requests: 5, Window: 10 * time.Second}, cfg.Limits[domain.APIRequests])
	require.Equal(t, domain.DefaultLimits()[domain.UserEvents], cfg.Limits[domain.UserEvents])
}

func TestLoadLimitsFile_Errors(t *testing.T) {
	base := domain.DefaultLimits()

	_, err := LoadLimitsFile(filepath.Join(t.TempDir(), "missing.yaml"), base)
	require.Error(t, err)

	_, err = LoadLimitsFile(writeFile(t, "limits: [oops"), base)
	require.Error(t, err)

	_, err = LoadLimitsFile(writeFile(t, "limits:\n  other: {requests: 1, window: 1s}\n"), base)
	require.ErrorContains(t, err, "unknown limit type")

	_, err = LoadLimitsFile(writeFile(t, "limits:\n  user_events: {requests: 0, window: 1s}\n"), base)
	require.ErrorContains(t, err, "requests > 0")

	_, err = LoadLimitsFile(writeFile(t, "limits:\n  user_events: {requests: 1, window: forever}\n"), base)
	require.ErrorContains(t, err, "window of user_events")

	// base intocada
	require.Equal(t, domain.DefaultLimits(), base)
}

func TestValidate(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	bad := cfg
	bad.StatsBucket = "hour"
	require.Error(t, bad.Validate())

	bad = cfg
	bad.RedisAddr = " "
	require.Error(t, bad.Validate())
}
