package sqlite

import (
	"context"
	"strings"

	"github.com/XSAM/otelsql"
	"go.opentelemetry.io/otel/metric"
	semconv "go.opentelemetry.io/otel/semconv/v1.39.0"
	"go.opentelemetry.io/otel/trace"
	_ "modernc.org/sqlite" // register the "sqlite" driver

	"github.com/shortlink-org/commandbus/config"
)

// New return new instance of Store
func New(tracer trace.TracerProvider, metrics metric.MeterProvider, cfg *config.Config) *Store {
	return &Store{
		tracer:  tracer,
		metrics: metrics,
		cfg:     cfg,
	}
}

// Init - initialize
func (s *Store) Init(ctx context.Context) error {
	var err error

	// Set configuration
	s.setConfig()

	opts := []otelsql.Option{
		otelsql.WithAttributes(semconv.DBSystemNameSQLite),
	}
	if s.tracer != nil {
		opts = append(opts, otelsql.WithTracerProvider(s.tracer))
	}
	if s.metrics != nil {
		opts = append(opts, otelsql.WithMeterProvider(s.metrics))
	}

	s.client, err = otelsql.Open("sqlite", dsn(s.config.Path), opts...)
	if err != nil {
		return &StoreError{
			Op:      "init",
			Err:     err,
			Details: "failed to open the database",
		}
	}

	// one writer at a time, sqlite serialises writes anyway
	s.client.SetMaxOpenConns(1)

	if err = s.client.PingContext(ctx); err != nil {
		_ = s.client.Close()

		return &StoreError{
			Op:      "init",
			Err:     err,
			Details: "failed to ping the database",
		}
	}

	// Graceful shutdown
	go func() {
		<-ctx.Done()

		_ = s.client.Close()
	}()

	return nil
}

// GetConn - get connect
func (s *Store) GetConn() any {
	return s.client
}

// setConfig - set configuration
func (s *Store) setConfig() {
	s.cfg.SetDefault("STORE_SQLITE_PATH", "/tmp/commandbus.db") // SQLite URI

	s.config = Config{
		Path: s.cfg.GetString("STORE_SQLITE_PATH"),
	}
}

func dsn(path string) string {
	if strings.HasPrefix(path, "file:") {
		return path
	}

	return "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"
}
