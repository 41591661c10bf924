/*
Tracing wrapping
*/
package tracing

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	otelpyroscope "github.com/grafana/otel-profiling-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	traceProvider "go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/shortlink-org/commandbus/config"
	"github.com/shortlink-org/commandbus/logger"
	"github.com/shortlink-org/commandbus/observability/common"
)

// Exporter protocols accepted in TRACER_PROTOCOL.
const (
	ProtocolGRPC = "grpc"
	ProtocolHTTP = "http"
)

// Config describes the exporter endpoint.
type Config struct {
	ServiceName    string
	ServiceVersion string
	URI            string
	Protocol       string
}

// New returns the global tracer provider. An empty TRACER_URI disables
// export and returns a no-op provider.
//
//nolint:ireturn // otel API returns the interface
func New(ctx context.Context, log logger.Logger, cfg *config.Config) (traceProvider.TracerProvider, func(), error) {
	cfg.SetDefault("TRACER_URI", "localhost:4317") // Tracing addr:host
	cfg.SetDefault("TRACER_PROTOCOL", ProtocolGRPC)
	cfg.SetDefault("SERVICE_NAME", "commandbus")

	cnf := Config{
		ServiceName:    cfg.GetString("SERVICE_NAME"),
		ServiceVersion: cfg.GetString("SERVICE_VERSION"),
		URI:            cfg.GetString("TRACER_URI"),
		Protocol:       strings.ToLower(cfg.GetString("TRACER_PROTOCOL")),
	}

	if cnf.URI == "" {
		log.Info("Tracing disabled")
		return noop.NewTracerProvider(), func() {}, nil
	}

	tp, cleanup, err := Init(ctx, cnf, log, cfg)
	if err != nil {
		return nil, nil, err
	}

	return tp, cleanup, nil
}

// Init builds an exporting tracer provider, installs it globally together
// with the W3C propagators and returns its cleanup.
func Init(ctx context.Context, cnf Config, log logger.Logger, cfg *config.Config) (*trace.TracerProvider, func(), error) {
	res, err := common.NewResource(ctx, cnf.ServiceName, cnf.ServiceVersion)
	if err != nil {
		return nil, nil, err
	}

	tp, err := newTraceProvider(ctx, res, cnf, cfg)
	if err != nil {
		return nil, nil, err
	}

	cleanup := func() {
		if errShutdown := tp.Shutdown(context.WithoutCancel(ctx)); errShutdown != nil {
			log.Error(`Tracing disable`,
				slog.String("uri", cnf.URI),
				slog.Any("err", errShutdown),
			)
		}
	}

	log.Info(`Tracing enable`,
		slog.String("uri", cnf.URI),
		slog.String("protocol", cnf.Protocol),
	)

	return tp, cleanup, nil
}

func newExporter(ctx context.Context, cnf Config, cfg *config.Config) (trace.SpanExporter, error) {
	cfg.SetDefault("TRACING_INITIAL_INTERVAL", "2s")
	cfg.SetDefault("TRACING_MAX_INTERVAL", "30s")
	cfg.SetDefault("TRACING_MAX_ELAPSED_TIME", "1m")

	initialInterval := cfg.GetDuration("TRACING_INITIAL_INTERVAL")
	maxInterval := cfg.GetDuration("TRACING_MAX_INTERVAL")
	maxElapsedTime := cfg.GetDuration("TRACING_MAX_ELAPSED_TIME")

	switch cnf.Protocol {
	case ProtocolGRPC, "":
		return otlptracegrpc.New(ctx,
			otlptracegrpc.WithInsecure(),
			otlptracegrpc.WithEndpoint(cnf.URI),
			otlptracegrpc.WithRetry(otlptracegrpc.RetryConfig{
				Enabled:         true,
				InitialInterval: initialInterval,
				MaxInterval:     maxInterval,
				MaxElapsedTime:  maxElapsedTime,
			}),
		)
	case ProtocolHTTP:
		return otlptracehttp.New(ctx,
			otlptracehttp.WithInsecure(),
			otlptracehttp.WithEndpoint(cnf.URI),
			otlptracehttp.WithRetry(otlptracehttp.RetryConfig{
				Enabled:         true,
				InitialInterval: initialInterval,
				MaxInterval:     maxInterval,
				MaxElapsedTime:  maxElapsedTime,
			}),
		)
	default:
		return nil, fmt.Errorf("unknown TRACER_PROTOCOL %q", cnf.Protocol)
	}
}

func newTraceProvider(ctx context.Context, res *resource.Resource, cnf Config, cfg *config.Config) (*trace.TracerProvider, error) {
	traceExporter, err := newExporter(ctx, cnf, cfg)
	if err != nil {
		return nil, err
	}

	traceProviderService := trace.NewTracerProvider(
		trace.WithBatcher(traceExporter, trace.WithBatchTimeout(cfg.GetDuration("TRACING_INITIAL_INTERVAL"))),
		trace.WithResource(res),
		trace.WithSampler(trace.ParentBased(trace.AlwaysSample())),
	)

	// span ids are attached to pyroscope profiles
	otel.SetTracerProvider(otelpyroscope.NewTracerProvider(traceProviderService))

	otel.SetTextMapPropagator(
		propagation.NewCompositeTextMapPropagator(
			propagation.TraceContext{},
			propagation.Baggage{},
		),
	)

	return traceProviderService, nil
}
