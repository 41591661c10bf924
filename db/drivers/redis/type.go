package redis

import (
	"errors"
	"fmt"

	"github.com/redis/rueidis"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/shortlink-org/commandbus/config"
)

var (
	ErrInvalidURI       = errors.New("invalid redis uri")
	ErrClientConnection = errors.New("failed to connect to redis")
)

// Config - config
type Config struct {
	Username string
	Password string
	Host     []string
}

// Store implementation of db interface
type Store struct {
	client rueidis.Client

	tracer  trace.TracerProvider
	metrics metric.MeterProvider

	config Config
	cfg    *config.Config
}

// StoreError wraps a failure of the redis store.
type StoreError struct {
	Err     error
	Op      string
	Details string
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("redis %s: %s: %v", e.Op, e.Details, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}
