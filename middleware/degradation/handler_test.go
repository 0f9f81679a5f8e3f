package degradation

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"service-guard/middleware/degradation/application"
	"service-guard/middleware/degradation/domain"

	"github.com/stretchr/testify/require"
)

func probe(up bool) domain.Probe {
	return domain.ProbeFunc(func(context.Context) (bool, error) { return up, nil })
}

func newManager(t *testing.T, up bool) *application.Manager {
	t.Helper()
	m := application.NewManager()
	m.RegisterDependency("db", probe(up))
	m.RegisterFallback(domain.FallbackOperation{
		Name: "user",
		Handler: func(_ context.Context, args domain.Args) (any, error) {
			return map[string]any{"id": args["id"], "source": "fallback"}, nil
		},
		RequiredDependencies: []string{"db"},
	})
	m.RunHealthCheck(context.Background())
	return m
}

func primary(_ context.Context, args domain.Args) (any, error) {
	return map[string]any{"id": args["id"], "source": "primary"}, nil
}

func TestHandler_PrimaryWhenHealthy(t *testing.T) {
	h := Handler(Options{Manager: newManager(t, true), Operation: "user", Primary: primary})

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/user?id=7", nil))

	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "full_service", w.Header().Get(LevelHeader))
	require.JSONEq(t, `{"id":"7","source":"primary"}`, w.Body.String())
}

func TestHandler_FallbackWhenDependencyDown(t *testing.T) {
	h := Handler(Options{Manager: newManager(t, false), Operation: "user", Primary: primary})

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/user?id=7", nil))

	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "unavailable", w.Header().Get(LevelHeader))
	require.JSONEq(t, `{"id":"7","source":"fallback"}`, w.Body.String())
}

func TestHandler_ErrorIs500(t *testing.T) {
	h := Handler(Options{
		Manager:   newManager(t, true),
		Operation: "plain",
		Primary: func(context.Context, domain.Args) (any, error) {
			return nil, errors.New("db exploded")
		},
	})

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/plain", nil))

	require.Equal(t, http.StatusInternalServerError, w.Code)
	require.Equal(t, "full_service", w.Header().Get(LevelHeader))
	require.JSONEq(t, `{"error":"db exploded"}`, w.Body.String())
}

func TestStatusAndHealthHandlers(t *testing.T) {
	down := application.NewManager()
	down.RunHealthCheck(context.Background())

	w := httptest.NewRecorder()
	HealthHandler(down).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	require.Equal(t, "unavailable", w.Header().Get(LevelHeader))

	up := newManager(t, true)
	w = httptest.NewRecorder()
	HealthHandler(up).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	StatusHandler(up).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/status", nil))
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"service_level":"full_service"`)
	require.Contains(t, w.Body.String(), `"db":"available"`)
	require.Contains(t, w.Body.String(), `"fallbacks":["user"]`)
	require.Contains(t, w.Body.String(), `"fallback_levels":{"user":"degraded_service"}`)
}

func TestMiddleware_SetsLevelHeader(t *testing.T) {
	h := Middleware(newManager(t, true))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusTeapot, w.Code)
	require.Equal(t, "full_service", w.Header().Get(LevelHeader))
}
