package migrate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/shortlink-org/commandbus/db"
)

// MigrationError wraps a failed migration run.
type MigrationError struct {
	Err         error
	Description string
}

func (e *MigrationError) Error() string {
	return fmt.Sprintf("sqlite migration: %s: %v", e.Description, e.Err)
}

func (e *MigrationError) Unwrap() error {
	return e.Err
}

// Migration applies migrations from the "migrations" directory of fsys.
// Every caller keeps its own version table, named after tableName.
func Migration(ctx context.Context, store db.DB, fsys fs.FS, tableName string) error {
	conn, ok := store.GetConn().(*sql.DB)
	if !ok {
		return db.ErrGetConnection
	}

	if err := conn.PingContext(ctx); err != nil {
		return &MigrationError{
			Err:         err,
			Description: "failed to ping database",
		}
	}

	source, err := iofs.New(fsys, "migrations")
	if err != nil {
		return &MigrationError{
			Err:         err,
			Description: "failed to create migration source",
		}
	}

	driverDB, err := migratesqlite.WithInstance(conn, &migratesqlite.Config{
		MigrationsTable: "schema_migrations_" + strings.ReplaceAll(tableName, "-", "_"),
	})
	if err != nil {
		return &MigrationError{
			Err:         err,
			Description: "failed to create migration driver",
		}
	}

	migration, err := migrate.NewWithInstance("iofs", source, "sqlite", driverDB)
	if err != nil {
		return &MigrationError{
			Err:         err,
			Description: "failed to create migration instance",
		}
	}

	if err := migration.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return &MigrationError{
			Err:         err,
			Description: "failed to apply migration",
		}
	}

	return nil
}
