package postgres

import (
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/shortlink-org/commandbus/config"
)

// Config - config
type Config struct {
	config *pgxpool.Config
}

// Store implementation of db interface
type Store struct {
	client *pgxpool.Pool
	config *Config

	tracer  trace.TracerProvider
	metrics metric.MeterProvider
	cfg     *config.Config
}

// StoreError wraps a failure of the postgres store.
type StoreError struct {
	Err     error
	Op      string
	Details string
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("postgres %s: %s: %v", e.Op, e.Details, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// PingConnectionError is returned when the database does not answer a ping.
type PingConnectionError struct {
	Err error
}

func (e *PingConnectionError) Error() string {
	return "postgres: failed to ping the database: " + e.Err.Error()
}

func (e *PingConnectionError) Unwrap() error {
	return e.Err
}
