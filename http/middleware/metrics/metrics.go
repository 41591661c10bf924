// Package metrics_middleware counts and times requests per chi route.
package metrics_middleware

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/trace"
)

type metrics struct {
	reqs    *prometheus.CounterVec
	latency *prometheus.HistogramVec
}

// NewMetrics registers the request collectors on reg under namespace.
func NewMetrics(reg prometheus.Registerer, namespace string) (func(next http.Handler) http.Handler, error) {
	labels := []string{"status", "method", "path"}

	m := metrics{
		reqs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Requests served by the monitoring endpoints.",
		}, labels),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Latency of the monitoring endpoints in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, labels),
	}

	var err error
	if m.reqs, err = register(reg, m.reqs); err != nil {
		return nil, err
	}
	if m.latency, err = register(reg, m.latency); err != nil {
		return nil, err
	}

	return m.middleware, nil
}

// register returns the collector already registered under the same name, if
// any.
func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	err := reg.Register(c)
	if err == nil {
		return c, nil
	}

	var already prometheus.AlreadyRegisteredError
	if errors.As(err, &already) {
		if existing, ok := already.ExistingCollector.(C); ok {
			return existing, nil
		}
	}

	return c, err
}

func (m metrics) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		m.observe(r, start, strconv.Itoa(ww.Status()))
	})
}

func (m metrics) observe(r *http.Request, start time.Time, code string) {
	route := r.URL.Path
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		route = strings.ReplaceAll(strings.Join(rctx.RoutePatterns, ""), "/*/", "/")
	}

	m.reqs.WithLabelValues(code, r.Method, route).Inc()

	observer := m.latency.WithLabelValues(code, r.Method, route)
	took := time.Since(start).Seconds()

	sc := trace.SpanContextFromContext(r.Context())
	if sc.HasTraceID() && sc.IsSampled() {
		if eo, ok := observer.(prometheus.ExemplarObserver); ok {
			eo.ObserveWithExemplar(took, prometheus.Labels{"trace_id": sc.TraceID().String()})
			return
		}
	}

	observer.Observe(took)
}
