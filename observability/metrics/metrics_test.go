package metrics_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shortlink-org/commandbus/config"
	"github.com/shortlink-org/commandbus/logger"
	"github.com/shortlink-org/commandbus/observability/metrics"
)

func newMonitoring(t *testing.T) *metrics.Monitoring {
	t.Helper()

	m, cleanup, err := metrics.New(context.Background(), logger.NewNop(), config.NewFromMap(nil))
	require.NoError(t, err)
	t.Cleanup(cleanup)

	return m
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))

	return rec
}

func TestMetricsEndpointExposesRegistry(t *testing.T) {
	m := newMonitoring(t)

	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "commandbus_test_total", Help: "test"})
	require.NoError(t, m.Prometheus.Register(counter))
	counter.Inc()

	_, err := m.Metrics.Meter("test").Int64Counter("commandbus_otel_test")
	require.NoError(t, err)

	rec := get(t, m.Handler, "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "commandbus_test_total 1")
	assert.Contains(t, rec.Body.String(), "go_goroutines")

	again := get(t, m.Handler, "/metrics")
	assert.Contains(t, again.Body.String(), `commandbus_http_requests_total{method="GET",path="/metrics",status="200"} 1`)
}

func TestReadiness(t *testing.T) {
	m := newMonitoring(t)

	assert.Equal(t, http.StatusOK, get(t, m.Handler, "/live").Code)
	assert.Equal(t, http.StatusOK, get(t, m.Handler, "/ready").Code)

	m.AddReadinessCheck("store", func() error { return errors.New("store is down") })
	assert.Equal(t, http.StatusServiceUnavailable, get(t, m.Handler, "/ready").Code)
	assert.Equal(t, http.StatusOK, get(t, m.Handler, "/live").Code)
}
