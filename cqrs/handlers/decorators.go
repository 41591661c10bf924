package handlers

import (
	"time"

	wmmessage "github.com/ThreeDotsLabs/watermill/message"
	wmmid "github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/sony/gobreaker"
)

// ConsumerConfig controls the Watermill middleware wrapped around the
// subscriber side of the asynchronous transport.
type ConsumerConfig struct {
	Timeout                time.Duration
	RetryMax               int
	RetryInitialInterval   time.Duration
	CircuitBreakerEnabled  bool
	CircuitBreakerSettings *gobreaker.Settings
}

// DecorateConsumer wraps h as Recoverer -> CircuitBreaker -> Timeout -> Retry.
func DecorateConsumer(h wmmessage.HandlerFunc, cfg ConsumerConfig) wmmessage.HandlerFunc {
	if h == nil {
		return nil
	}

	decorated := wmmid.Recoverer(h)

	if cfg.CircuitBreakerEnabled {
		settings := cfg.CircuitBreakerSettings
		if settings == nil {
			defaults := defaultCircuitBreakerSettings()
			settings = &defaults
		}
		decorated = wmmid.NewCircuitBreaker(*settings).Middleware(decorated)
	}

	if cfg.Timeout > 0 {
		decorated = wmmid.Timeout(cfg.Timeout)(decorated)
	}

	if cfg.RetryMax > 0 {
		retry := wmmid.Retry{
			MaxRetries:      cfg.RetryMax,
			InitialInterval: cfg.RetryInitialInterval,
		}
		decorated = retry.Middleware(decorated)
	}

	return decorated
}

// ConsumerMiddleware exposes DecorateConsumer as router-level middleware.
func ConsumerMiddleware(cfg ConsumerConfig) wmmessage.HandlerMiddleware {
	return func(next wmmessage.HandlerFunc) wmmessage.HandlerFunc {
		return DecorateConsumer(next, cfg)
	}
}
