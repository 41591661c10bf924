/*
Data Base package
*/
package db

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/shortlink-org/commandbus/config"
	"github.com/shortlink-org/commandbus/db/drivers/mongo"
	"github.com/shortlink-org/commandbus/db/drivers/postgres"
	"github.com/shortlink-org/commandbus/db/drivers/ram"
	"github.com/shortlink-org/commandbus/db/drivers/redis"
	"github.com/shortlink-org/commandbus/db/drivers/sqlite"
	"github.com/shortlink-org/commandbus/logger"
)

// Supported values of STORE_TYPE.
const (
	TypeRAM      = "ram"
	TypeSQLite   = "sqlite"
	TypePostgres = "postgres"
	TypeMongo    = "mongo"
	TypeRedis    = "redis"
)

// New - return implementation of db
func New(ctx context.Context, log logger.Logger, tracer trace.TracerProvider, metrics metric.MeterProvider, cfg *config.Config) (*Store, error) {
	store := &Store{
		cfg: cfg,
	}

	// Set configuration
	store.setConfig()

	switch store.typeStore {
	case TypePostgres:
		store.DB = postgres.New(tracer, metrics, cfg)
	case TypeMongo:
		store.DB = mongo.New(cfg)
	case TypeRedis:
		store.DB = redis.New(tracer, metrics, cfg)
	case TypeSQLite:
		store.DB = sqlite.New(tracer, metrics, cfg)
	case TypeRAM:
		store.DB = ram.New(cfg)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownStoreType, store.typeStore)
	}

	if err := store.Init(ctx); err != nil {
		return nil, err
	}

	log.Info("run db",
		slog.String("db", store.typeStore),
	)

	return store, nil
}

// setConfig - set configuration
func (s *Store) setConfig() {
	s.cfg.SetDefault("STORE_TYPE", TypeRAM) // Select: ram, sqlite, postgres, mongo, redis

	s.typeStore = s.cfg.GetString("STORE_TYPE")
	if s.typeStore == "" {
		s.typeStore = TypeRAM
	}
}
