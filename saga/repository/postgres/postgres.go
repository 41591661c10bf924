// Package postgres stores saga records in PostgreSQL. Calls join the
// transaction carried by the context when there is one.
package postgres

import (
	"context"
	"embed"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shortlink-org/commandbus/cqrs/result"
	"github.com/shortlink-org/commandbus/db"
	"github.com/shortlink-org/commandbus/db/drivers/postgres/migrate"
	"github.com/shortlink-org/commandbus/saga"
	"github.com/shortlink-org/commandbus/saga/repository/internal/columns"
	"github.com/shortlink-org/commandbus/uow"
)

//go:embed migrations/*.sql
var migrations embed.FS

const selectColumns = `saga_type, saga_id, status, current_step, data, temp_data, error,
	version, created_at, updated_at, expires_at, ttl`

// Store is a saga.Repository on top of pgxpool.
type Store struct {
	client *pgxpool.Pool
}

// New migrates the schema and returns the repository.
func New(ctx context.Context, store db.DB) (*Store, error) {
	client, ok := store.GetConn().(*pgxpool.Pool)
	if !ok {
		return nil, db.ErrGetConnection
	}

	if err := migrate.Migration(ctx, store, migrations, "sagas"); err != nil {
		return nil, err
	}

	return &Store{client: client}, nil
}

func (s *Store) FindBySagaID(ctx context.Context, sagaType, id string) result.Result[saga.Record] {
	row := uow.Q(ctx, s.client).QueryRow(ctx,
		`SELECT `+selectColumns+` FROM sagas WHERE saga_type = $1 AND saga_id = $2`, sagaType, id)

	rec, err := scan(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return result.Err[saga.Record](saga.NotFoundError(sagaType, id))
	}
	if err != nil {
		return result.Err[saga.Record](saga.StoreFailure("find", err))
	}

	return result.Ok(rec)
}

func (s *Store) Create(ctx context.Context, rec saga.Record) result.Result[saga.Record] {
	enc, err := columns.Encode(rec)
	if err != nil {
		return result.Err[saga.Record](saga.StoreFailure("create", err))
	}

	tag, err := uow.Q(ctx, s.client).Exec(ctx, `
		INSERT INTO sagas (`+selectColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (saga_type, saga_id) DO NOTHING`,
		rec.Type, rec.ID, string(rec.Status), rec.CurrentStep,
		string(enc.Data), string(enc.TempData), nullable(enc.Error),
		rec.Version, rec.CreatedAt, rec.UpdatedAt, rec.ExpiresAt, int64(rec.TTL),
	)
	if err != nil {
		return result.Err[saga.Record](saga.StoreFailure("create", err))
	}
	if tag.RowsAffected() == 0 {
		return result.Err[saga.Record](saga.AlreadyExistsError(rec.Type, rec.ID))
	}

	return result.Ok(rec.Clone())
}

func (s *Store) Save(ctx context.Context, rec saga.Record) result.Result[saga.Record] {
	enc, err := columns.Encode(rec)
	if err != nil {
		return result.Err[saga.Record](saga.StoreFailure("save", err))
	}

	row := uow.Q(ctx, s.client).QueryRow(ctx, `
		UPDATE sagas
		SET status = $1, current_step = $2, data = $3, temp_data = $4, error = $5,
			version = version + 1, updated_at = $6, expires_at = $7, ttl = $8
		WHERE saga_type = $9 AND saga_id = $10 AND version = $11
		RETURNING `+selectColumns,
		string(rec.Status), rec.CurrentStep, string(enc.Data), string(enc.TempData), nullable(enc.Error),
		rec.UpdatedAt, rec.ExpiresAt, int64(rec.TTL),
		rec.Type, rec.ID, rec.Version,
	)

	saved, err := scan(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return result.Err[saga.Record](saga.OptimisticLockError(rec.Type, rec.ID, rec.Version))
	}
	if err != nil {
		return result.Err[saga.Record](saga.StoreFailure("save", err))
	}

	return result.Ok(saved)
}

func scan(row pgx.Row) (saga.Record, error) {
	var (
		rec                       saga.Record
		status                    string
		data, tempData, errDoc    []byte
		created, updated, expires time.Time
		ttl                       int64
	)

	err := row.Scan(&rec.Type, &rec.ID, &status, &rec.CurrentStep, &data, &tempData, &errDoc,
		&rec.Version, &created, &updated, &expires, &ttl)
	if err != nil {
		return saga.Record{}, err
	}

	rec.Status = saga.Status(status)
	rec.CreatedAt = created.UTC()
	rec.UpdatedAt = updated.UTC()
	rec.ExpiresAt = expires.UTC()
	rec.TTL = time.Duration(ttl)

	if err := columns.Decode(&rec, data, tempData, errDoc); err != nil {
		return saga.Record{}, err
	}

	return rec, nil
}

func nullable(doc []byte) any {
	if len(doc) == 0 {
		return nil
	}

	return string(doc)
}
