package watermill

import (
	"time"

	"github.com/sony/gobreaker"

	"github.com/shortlink-org/commandbus/config"
	"github.com/shortlink-org/commandbus/cqrs/handlers"
)

// Option configures the Watermill client.
type Option func(*Options)

// Options describe the consumer middleware and the dead letter queue.
type Options struct {
	Retry          RetryOptions
	Timeout        TimeoutOptions
	CircuitBreaker CircuitBreakerOptions
	DLQ            DLQOptions
}

// RetryOptions configure redelivery of a failed message.
type RetryOptions struct {
	Enabled         bool
	MaxRetries      int
	InitialInterval time.Duration
}

// TimeoutOptions bound one consumer handler run.
type TimeoutOptions struct {
	Enabled  bool
	Duration time.Duration
}

// CircuitBreakerOptions configure the consumer circuit breaker.
type CircuitBreakerOptions struct {
	Enabled  bool
	Settings gobreaker.Settings
}

// DLQOptions route messages that exhausted their retries.
type DLQOptions struct {
	Enabled bool
	// Topic is the dead letter topic; empty means "<topic>.DLQ".
	Topic string
	// Service is written to every dead letter event.
	Service string
}

func defaultOptions(cfg *config.Config) Options {
	cfg.SetDefault("WATERMILL_RETRY_MAX_RETRIES", 3)            // redeliveries of a failing command message
	cfg.SetDefault("WATERMILL_RETRY_INITIAL_INTERVAL", "150ms") // first backoff step

	cfg.SetDefault("WATERMILL_HANDLER_TIMEOUT_ENABLED", true)
	cfg.SetDefault("WATERMILL_HANDLER_TIMEOUT", "20s")

	cfg.SetDefault("WATERMILL_CB_ENABLED", true)
	cfg.SetDefault("WATERMILL_CB_TIMEOUT", "30s")
	cfg.SetDefault("WATERMILL_CB_FAILURE_THRESHOLD", 5)
	cfg.SetDefault("WATERMILL_CB_HALFOPEN_MAX_REQUESTS", 1)

	cfg.SetDefault("WATERMILL_DLQ_ENABLED", false)
	cfg.SetDefault("WATERMILL_DLQ_TOPIC", "")
	cfg.SetDefault("SERVICE_NAME", "commandbus")

	retry := RetryOptions{
		Enabled:         true,
		MaxRetries:      cfg.GetInt("WATERMILL_RETRY_MAX_RETRIES"),
		InitialInterval: cfg.GetDuration("WATERMILL_RETRY_INITIAL_INTERVAL"),
	}
	if retry.MaxRetries <= 0 {
		retry.Enabled = false
		retry.MaxRetries = 0
	}

	timeout := TimeoutOptions{
		Enabled:  cfg.GetBool("WATERMILL_HANDLER_TIMEOUT_ENABLED"),
		Duration: cfg.GetDuration("WATERMILL_HANDLER_TIMEOUT"),
	}
	if timeout.Duration <= 0 {
		timeout.Duration = 20 * time.Second
	}

	failureThreshold := cfg.GetInt("WATERMILL_CB_FAILURE_THRESHOLD")
	if failureThreshold <= 0 {
		failureThreshold = 5
	}

	cbSettings := gobreaker.Settings{
		Name:        "commandbus_consumer",
		Timeout:     cfg.GetDuration("WATERMILL_CB_TIMEOUT"),
		MaxRequests: uint32(max(cfg.GetInt("WATERMILL_CB_HALFOPEN_MAX_REQUESTS"), 1)), //nolint:gosec // small positive config value
	}
	if cbSettings.Timeout <= 0 {
		cbSettings.Timeout = 30 * time.Second
	}
	cbSettings.ReadyToTrip = func(counts gobreaker.Counts) bool {
		return counts.ConsecutiveFailures >= uint32(failureThreshold) //nolint:gosec // positive, checked above
	}

	return Options{
		Retry:   retry,
		Timeout: timeout,
		CircuitBreaker: CircuitBreakerOptions{
			Enabled:  cfg.GetBool("WATERMILL_CB_ENABLED"),
			Settings: cbSettings,
		},
		DLQ: DLQOptions{
			Enabled: cfg.GetBool("WATERMILL_DLQ_ENABLED"),
			Topic:   cfg.GetString("WATERMILL_DLQ_TOPIC"),
			Service: cfg.GetString("SERVICE_NAME"),
		},
	}
}

// ConsumerConfig converts the options into the decorator settings applied to
// every command consumer.
func (o Options) ConsumerConfig() handlers.ConsumerConfig {
	cc := handlers.ConsumerConfig{
		CircuitBreakerEnabled: o.CircuitBreaker.Enabled,
	}

	if o.CircuitBreaker.Enabled {
		settings := o.CircuitBreaker.Settings
		cc.CircuitBreakerSettings = &settings
	}
	if o.Timeout.Enabled {
		cc.Timeout = o.Timeout.Duration
	}
	if o.Retry.Enabled {
		cc.RetryMax = o.Retry.MaxRetries
		cc.RetryInitialInterval = o.Retry.InitialInterval
	}

	return cc
}

// WithRetryOptions overrides retry middleware configuration.
func WithRetryOptions(opts RetryOptions) Option {
	return func(o *Options) {
		o.Retry = opts
	}
}

// WithTimeout enables timeout middleware with the provided duration.
func WithTimeout(duration time.Duration) Option {
	return func(o *Options) {
		o.Timeout.Enabled = duration > 0
		o.Timeout.Duration = duration
	}
}

// WithDLQ routes poisoned messages to topic.
func WithDLQ(topic string) Option {
	return func(o *Options) {
		o.DLQ.Enabled = true
		o.DLQ.Topic = topic
	}
}

// DisableRetry disables retry middleware entirely.
func DisableRetry() Option {
	return func(o *Options) {
		o.Retry.Enabled = false
	}
}

// DisableCircuitBreaker disables the circuit breaker middleware.
func DisableCircuitBreaker() Option {
	return func(o *Options) {
		o.CircuitBreaker.Enabled = false
	}
}
