package bus

import (
	"errors"
	"time"

	"github.com/shortlink-org/commandbus/logger"
)

// DefaultInvokeTimeout bounds Invoke when no timeout is given.
const DefaultInvokeTimeout = 5000 * time.Millisecond

// Option configures InMemoryCommandBus without breaking the constructor API.
type Option func(*busConfig)

type busConfig struct {
	registry    *Registry
	middlewares []Middleware
	timeout     time.Duration
	log         logger.Logger
	err         error
}

// WithRegistry shares a handler registry, e.g. with the gRPC server.
func WithRegistry(registry *Registry) Option {
	return func(c *busConfig) {
		if registry == nil {
			c.err = errors.New("cqrs/bus: registry is nil")
			return
		}
		c.registry = registry
	}
}

// WithMiddleware appends middleware. Final order is decided by Order().
func WithMiddleware(middlewares ...Middleware) Option {
	return func(c *busConfig) {
		c.middlewares = append(c.middlewares, middlewares...)
	}
}

// WithDefaultTimeout overrides DefaultInvokeTimeout.
func WithDefaultTimeout(timeout time.Duration) Option {
	return func(c *busConfig) {
		if timeout <= 0 {
			c.err = errors.New("cqrs/bus: timeout must be positive")
			return
		}
		c.timeout = timeout
	}
}

// WithLogger sets the logger used for recovered panics.
func WithLogger(log logger.Logger) Option {
	return func(c *busConfig) {
		c.log = log
	}
}

func applyOptions(opts []Option) (busConfig, error) {
	cfg := busConfig{
		timeout: DefaultInvokeTimeout,
	}

	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&cfg)
		if cfg.err != nil {
			break
		}
	}

	if cfg.registry == nil {
		cfg.registry = NewRegistry()
	}

	return cfg, cfg.err
}

// InvokeOption tunes a single Invoke call.
type InvokeOption func(*InvokeOptions)

// InvokeOptions is the resolved set of per-call settings.
type InvokeOptions struct {
	Timeout time.Duration
}

// WithTimeout sets the budget of one Invoke call.
func WithTimeout(timeout time.Duration) InvokeOption {
	return func(o *InvokeOptions) {
		if timeout > 0 {
			o.Timeout = timeout
		}
	}
}

// ApplyInvokeOptions resolves opts over the given default timeout.
func ApplyInvokeOptions(defaultTimeout time.Duration, opts ...InvokeOption) InvokeOptions {
	if defaultTimeout <= 0 {
		defaultTimeout = DefaultInvokeTimeout
	}

	o := InvokeOptions{Timeout: defaultTimeout}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}

	return o
}
