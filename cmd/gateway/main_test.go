package main

import (
	"context"
	"net"
	"net/http"
	"testing"
	"time"

	"service-guard/config"
	"service-guard/middleware/ratelimit/domain"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	mr := miniredis.RunT(t)
	return config.Config{
		ListenAddr:           "127.0.0.1:0",
		UpstreamURL:          "http://127.0.0.1:1",
		RedisAddr:            mr.Addr(),
		RateEnabled:          true,
		RateLimitType:        domain.APIRequests,
		RateStoreTimeout:     time.Second,
		Limits:               domain.DefaultLimits(),
		HealthCheckInterval:  time.Hour,
		CacheCleanupInterval: time.Hour,
		ProbeTimeout:         time.Second,
	}
}

func TestRun_ReturnsConfigErrorsInsteadOfExiting(t *testing.T) {
	cfg := testConfig(t)
	cfg.UpstreamURL = ""
	require.ErrorContains(t, run(context.Background(), cfg, zap.NewNop()), "UPSTREAM_URL")

	cfg.UpstreamURL = "://bad"
	require.ErrorContains(t, run(context.Background(), cfg, zap.NewNop()), "invalid UPSTREAM_URL")
}

func TestRun_ReturnsListenError(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	cfg := testConfig(t)
	cfg.ListenAddr = ln.Addr().String()
	require.ErrorContains(t, run(context.Background(), cfg, zap.NewNop()), "server error")
}

func TestRun_StopsCleanlyOnCancel(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	cfg := testConfig(t)
	cfg.ListenAddr = addr
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- run(ctx, cfg, zap.NewNop()) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + addr + "/_guard/health")
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return true
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("run did not return after cancel")
	}
}
