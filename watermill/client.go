package watermill

import (
	"errors"
	"fmt"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/hashicorp/go-multierror"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/shortlink-org/commandbus/config"
	"github.com/shortlink-org/commandbus/logger"
	"github.com/shortlink-org/commandbus/watermill/dlq"
)

var errNilBackend = errors.New("watermill: backend is nil")

// Backend is a pub/sub implementation (gochannel, Kafka, AMQP...).
type Backend interface {
	Publisher() message.Publisher
	Subscriber() message.Subscriber
	Close() error
}

// Client holds the router and the instrumented publisher shared by the
// command bus.
type Client struct {
	Router     *message.Router
	Publisher  message.Publisher
	Subscriber message.Subscriber

	backend Backend
	options Options
}

// New builds the router with logging, tracing, metrics and the consumer
// middleware. The backend is created by the caller.
func New(
	log logger.Logger,
	cfg *config.Config,
	backend Backend,
	meterProvider metric.MeterProvider,
	tracerProvider trace.TracerProvider,
	options ...Option,
) (*Client, error) {
	if backend == nil {
		return nil, errNilBackend
	}
	if log == nil {
		log = logger.NewNop()
	}

	wmLogger := NewWatermillLogger(log)
	dlq.SetLogger(log)

	router, err := message.NewRouter(message.RouterConfig{}, wmLogger)
	if err != nil {
		return nil, err
	}

	opts := defaultOptions(cfg)
	for _, opt := range options {
		if opt != nil {
			opt(&opts)
		}
	}

	configureBaseMiddlewares(router, log)

	otelMW := NewOTELMiddleware(tracerProvider)
	router.AddMiddleware(otelMW.HandlerMiddleware())

	metrics, err := NewMetrics(meterProvider)
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics middleware: %w", err)
	}
	router.AddMiddleware(metrics.HandlerMiddleware())

	publisher := newInstrumentedPublisher(backend.Publisher(), otelMW.tracer, metrics)

	if opts.DLQ.Enabled {
		poison, errPoison := NewPoisonMiddleware(publisher, opts.DLQ)
		if errPoison != nil {
			return nil, errPoison
		}
		router.AddMiddleware(poison)
	}

	configureConsumerMiddlewares(router, log, opts)

	return &Client{
		Router:     router,
		Publisher:  publisher,
		Subscriber: backend.Subscriber(),
		backend:    backend,
		options:    opts,
	}, nil
}

// Options returns the resolved client options.
func (c *Client) Options() Options {
	return c.options
}

// Close gracefully closes all resources and collects all errors.
func (c *Client) Close() error {
	var errs *multierror.Error

	if c.Router != nil {
		if err := c.Router.Close(); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("failed to close router: %w", err))
		}
	}

	if c.backend != nil {
		if err := c.backend.Close(); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("failed to close backend: %w", err))
		}
	}

	return errs.ErrorOrNil()
}
