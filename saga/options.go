package saga

import (
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/shortlink-org/commandbus/logger"
)

// DefaultTTL is the lifetime hint written into ExpiresAt of new sagas.
const DefaultTTL = 24 * time.Hour

// Option configures an Engine.
type Option func(*options)

type options struct {
	ttl    time.Duration
	now    func() time.Time
	log    logger.Logger
	tracer trace.TracerProvider
}

// WithTTL overrides DefaultTTL.
func WithTTL(ttl time.Duration) Option {
	return func(o *options) {
		if ttl > 0 {
			o.ttl = ttl
		}
	}
}

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithLogger reports state changes and compensation failures to log.
func WithLogger(log logger.Logger) Option {
	return func(o *options) {
		o.log = log
	}
}

// WithTracerProvider sets the provider of the saga span. The global provider
// is used by default.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *options) {
		o.tracer = tp
	}
}
