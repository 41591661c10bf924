// Package repository selects the saga store matching the configured database.
package repository

import (
	"context"
	"fmt"

	"github.com/shortlink-org/commandbus/config"
	"github.com/shortlink-org/commandbus/db"
	"github.com/shortlink-org/commandbus/saga"
	"github.com/shortlink-org/commandbus/saga/repository/mongo"
	"github.com/shortlink-org/commandbus/saga/repository/postgres"
	"github.com/shortlink-org/commandbus/saga/repository/ram"
	"github.com/shortlink-org/commandbus/saga/repository/redis"
	"github.com/shortlink-org/commandbus/saga/repository/sqlite"
)

// New returns the saga.Repository for store.Type().
func New(ctx context.Context, store *db.Store, cfg *config.Config) (saga.Repository, error) {
	switch store.Type() {
	case db.TypeRAM:
		return ram.New(), nil
	case db.TypeSQLite:
		return sqlite.New(ctx, store)
	case db.TypePostgres:
		return postgres.New(ctx, store)
	case db.TypeMongo:
		cfg.SetDefault("STORE_MONGODB_DATABASE", "commandbus") // Mongo database holding the sagas collection

		return mongo.New(ctx, store, cfg.GetString("STORE_MONGODB_DATABASE"))
	case db.TypeRedis:
		return redis.New(store)
	default:
		return nil, fmt.Errorf("%w: %s", db.ErrUnknownStoreType, store.Type())
	}
}
