// Package metrics serves the Prometheus registry of the service together
// with liveness and readiness checks.
package metrics

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/heptiolabs/healthcheck"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	promExporter "go.opentelemetry.io/otel/exporters/prometheus"
	api "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/exemplar"

	"github.com/shortlink-org/commandbus/config"
	logger_middleware "github.com/shortlink-org/commandbus/http/middleware/logger"
	metrics_middleware "github.com/shortlink-org/commandbus/http/middleware/metrics"
	httpserver "github.com/shortlink-org/commandbus/http/server"
	"github.com/shortlink-org/commandbus/logger"
	"github.com/shortlink-org/commandbus/observability/common"
)

type Monitoring struct {
	Handler    http.Handler
	Prometheus *prometheus.Registry
	Metrics    *api.MeterProvider

	health   healthcheck.Handler
	exporter *otlpmetricgrpc.Exporter
	log      logger.Logger
	cfg      *config.Config
}

// New builds the registry, the meter provider and the /metrics, /live and
// /ready endpoints. Serving is started by Run.
func New(ctx context.Context, log logger.Logger, cfg *config.Config) (*Monitoring, func(), error) {
	monitoring := &Monitoring{log: log, cfg: cfg}

	if err := monitoring.SetPrometheus(); err != nil {
		return nil, nil, err
	}

	var err error
	monitoring.Metrics, err = monitoring.SetMetrics(ctx)
	if err != nil {
		return nil, nil, err
	}

	monitoring.Handler, err = monitoring.SetHandler()
	if err != nil {
		monitoring.shutdown()
		return nil, nil, err
	}

	return monitoring, monitoring.shutdown, nil
}

// Run serves the monitoring endpoints on METRICS_PORT until ctx is done.
func (m *Monitoring) Run(ctx context.Context) error {
	m.cfg.SetDefault("METRICS_PORT", 9090)     //nolint:mnd // port for Prometheus metrics
	m.cfg.SetDefault("METRICS_TIMEOUT", "30s") // per scrape

	server := httpserver.New(ctx, m.Handler, httpserver.Config{
		Port:    m.cfg.GetInt("METRICS_PORT"),
		Timeout: m.cfg.GetDuration("METRICS_TIMEOUT"),
	}, m.cfg)

	m.log.Info("Run monitoring", slog.String("addr", server.Addr))

	return httpserver.Run(ctx, m.log, server, m.cfg)
}

// AddReadinessCheck makes /ready fail while check returns an error.
func (m *Monitoring) AddReadinessCheck(name string, check func() error) {
	m.health.AddReadinessCheck(name, check)
}

// AddLivenessCheck makes /live fail while check returns an error.
func (m *Monitoring) AddLivenessCheck(name string, check func() error) {
	m.health.AddLivenessCheck(name, check)
}

// SetMetrics creates the meter provider. It always feeds the Prometheus
// registry; OTEL_METRIC_OTLP_ENABLED adds a periodic OTLP export.
func (m *Monitoring) SetMetrics(ctx context.Context) (*api.MeterProvider, error) {
	m.cfg.SetDefault("OTEL_METRIC_OTLP_ENABLED", false)
	m.cfg.SetDefault("OTEL_METRIC_EXPORT_INTERVAL", "60s")
	m.cfg.SetDefault("OTEL_METRIC_EXPORT_TIMEOUT", "30s")
	m.cfg.SetDefault("SERVICE_NAME", "commandbus")

	res, err := common.NewResource(ctx, m.cfg.GetString("SERVICE_NAME"), m.cfg.GetString("SERVICE_VERSION"))
	if err != nil {
		return nil, err
	}

	prometheusReader, err := promExporter.New(
		promExporter.WithRegisterer(m.Prometheus),
	)
	if err != nil {
		return nil, err
	}

	options := []api.Option{
		api.WithResource(res),
		api.WithReader(prometheusReader),
		api.WithExemplarFilter(exemplar.TraceBasedFilter),
	}

	if m.cfg.GetBool("OTEL_METRIC_OTLP_ENABLED") {
		// endpoint and headers come from the standard OTEL_EXPORTER_OTLP_* variables
		m.exporter, err = otlpmetricgrpc.New(ctx)
		if err != nil {
			return nil, err
		}

		options = append(options, api.WithReader(api.NewPeriodicReader(
			m.exporter,
			api.WithInterval(m.cfg.GetDuration("OTEL_METRIC_EXPORT_INTERVAL")),
			api.WithTimeout(m.cfg.GetDuration("OTEL_METRIC_EXPORT_TIMEOUT")),
		)))
	}

	provider := api.NewMeterProvider(options...)
	otel.SetMeterProvider(provider)

	return provider, nil
}

// SetHandler mounts /metrics, /live and /ready.
func (m *Monitoring) SetHandler() (http.Handler, error) {
	requests, err := metrics_middleware.NewMetrics(m.Prometheus, "commandbus")
	if err != nil {
		return nil, err
	}

	r := chi.NewRouter()
	r.Use(logger_middleware.Logger(m.log))
	r.Use(requests)

	r.Handle("/metrics", promhttp.HandlerFor(
		m.Prometheus,
		promhttp.HandlerOpts{
			// Opt into OpenMetrics to support exemplars.
			EnableOpenMetrics: true,

			ErrorHandling: promhttp.ContinueOnError,
		},
	))

	// The health check related metrics will be prefixed with the provided namespace
	m.health = healthcheck.NewMetricsHandler(m.Prometheus, "commandbus")

	r.Get("/live", m.health.LiveEndpoint)
	r.Get("/ready", m.health.ReadyEndpoint)

	return r, nil
}

// SetPrometheus creates the service registry with the Go and process
// collectors.
func (m *Monitoring) SetPrometheus() error {
	m.Prometheus = prometheus.NewRegistry()

	return registerAll(m.Prometheus,
		collectors.NewBuildInfoCollector(),
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
}

func registerAll(reg prometheus.Registerer, cs ...prometheus.Collector) error {
	for _, c := range cs {
		if err := reg.Register(c); err != nil {
			return err
		}
	}

	return nil
}

func (m *Monitoring) shutdown() {
	m.cfg.SetDefault("OTEL_METRIC_SHUTDOWN_TIMEOUT", "10s")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), m.cfg.GetDuration("OTEL_METRIC_SHUTDOWN_TIMEOUT"))
	defer cancel()

	if m.Metrics != nil {
		if errShutdown := m.Metrics.Shutdown(shutdownCtx); errShutdown != nil {
			m.log.ErrorWithContext(shutdownCtx, errShutdown.Error())
		}
	}
}
