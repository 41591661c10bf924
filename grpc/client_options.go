package grpc

import (
	grpc_prometheus "github.com/grpc-ecosystem/go-grpc-middleware/providers/prometheus"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"

	grpc_logger "github.com/shortlink-org/commandbus/grpc/middleware/logger"
	meta_interceptor "github.com/shortlink-org/commandbus/grpc/middleware/meta"
	"github.com/shortlink-org/commandbus/logger"
)

type Option func(*Client)

// Apply a batch of options
func (c *Client) apply(options ...Option) {
	for _, option := range options {
		if option != nil {
			option(c)
		}
	}
}

// WithLogger logs failed calls.
func WithLogger(log logger.Logger) Option {
	return func(c *Client) {
		if log == nil {
			return
		}

		c.interceptorUnaryClientList = append(c.interceptorUnaryClientList, grpc_logger.UnaryClientInterceptor(log))
	}
}

// WithMeta forwards envelope meta found in the context as request headers.
func WithMeta() Option {
	return func(c *Client) {
		c.interceptorUnaryClientList = append(c.interceptorUnaryClientList, meta_interceptor.UnaryClientInterceptor())
	}
}

// WithTracer wires up otel handler
func WithTracer(tracer trace.TracerProvider, metrics metric.MeterProvider) Option {
	return func(c *Client) {
		if tracer == nil {
			return
		}

		opts := []otelgrpc.Option{
			otelgrpc.WithTracerProvider(tracer),
			otelgrpc.WithMessageEvents(otelgrpc.ReceivedEvents, otelgrpc.SentEvents),
		}
		if metrics != nil {
			opts = append(opts, otelgrpc.WithMeterProvider(metrics))
		}

		c.optionsNewClient = append(c.optionsNewClient, grpc.WithStatsHandler(otelgrpc.NewClientHandler(opts...)))
	}
}

// WithMetrics registers Prom metrics + interceptors
func WithMetrics(prom prometheus.Registerer) Option {
	return func(c *Client) {
		if prom == nil {
			return
		}

		clientMetrics := grpc_prometheus.NewClientMetrics(
			grpc_prometheus.WithClientHandlingTimeHistogram(
				grpc_prometheus.WithHistogramBuckets([]float64{
					0.001, 0.01, 0.1, 0.3, 0.6, 1, 3, 6, 9, 20, 30, 60, 90, 120,
				}),
			),
		)

		if err := prom.Register(clientMetrics); err != nil {
			var already prometheus.AlreadyRegisteredError
			if !asAlreadyRegistered(err, &already) {
				return
			}

			if existing, ok := already.ExistingCollector.(*grpc_prometheus.ClientMetrics); ok {
				clientMetrics = existing
			}
		}

		exemplarFromCtx := grpc_prometheus.WithExemplarFromContext(exemplarFromContext)

		c.interceptorUnaryClientList = append(c.interceptorUnaryClientList, clientMetrics.UnaryClientInterceptor(exemplarFromCtx))
		c.interceptorStreamClientList = append(c.interceptorStreamClientList, clientMetrics.StreamClientInterceptor(exemplarFromCtx))
	}
}

// WithDialOptions appends raw dial options, e.g. a custom dialer in tests.
func WithDialOptions(opts ...grpc.DialOption) Option {
	return func(c *Client) {
		c.optionsNewClient = append(c.optionsNewClient, opts...)
	}
}
