package app

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-ledger/internal/observability"
	"github.com/odyssey-erp/odyssey-ledger/jobs"
)

func testRouter(checks map[string]HealthCheck) http.Handler {
	var buf bytes.Buffer
	cfg := &Config{AppEnv: "test", LogFormat: "json"}
	return NewRouter(RouterParams{
		Logger:     newLogger(cfg, &buf),
		Config:     cfg,
		Checks:     checks,
		JobHandler: jobs.NewHandler(nil, nil, nil),
		Metrics:    observability.NewMetrics(),
	})
}

func TestHealthzReportsChecks(t *testing.T) {
	ok := func(context.Context) error { return nil }
	router := testRouter(map[string]HealthCheck{"postgres": ok, "redis": ok})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.JSONEq(t, `{"status":"ok","postgres":"up","redis":"up"}`, rr.Body.String())
	require.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))
	require.Equal(t, "DENY", rr.Header().Get("X-Frame-Options"))
}

func TestHealthzDegradesOnFailedCheck(t *testing.T) {
	router := testRouter(map[string]HealthCheck{
		"postgres": func(context.Context) error { return nil },
		"redis":    func(context.Context) error { return errors.New("connection refused") },
	})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
	require.JSONEq(t, `{"status":"degraded","postgres":"up","redis":"down"}`, rr.Body.String())
}

func TestRouterServesMetricsAndJobs(t *testing.T) {
	router := testRouter(nil)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/jobs/health", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), `odyssey_http_requests_total{code="200",route="/jobs/health"} 1`)
}
