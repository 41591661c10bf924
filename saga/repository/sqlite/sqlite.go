// Package sqlite stores saga records in an SQLite table.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"time"

	"github.com/shortlink-org/commandbus/cqrs/result"
	"github.com/shortlink-org/commandbus/db"
	"github.com/shortlink-org/commandbus/db/drivers/sqlite/migrate"
	"github.com/shortlink-org/commandbus/saga"
	"github.com/shortlink-org/commandbus/saga/repository/internal/columns"
)

//go:embed migrations/*.sql
var migrations embed.FS

const selectColumns = `saga_type, saga_id, status, current_step, data, temp_data, error,
	version, created_at, updated_at, expires_at, ttl`

// Store is a saga.Repository on top of *sql.DB.
type Store struct {
	client *sql.DB
}

// New migrates the schema and returns the repository.
func New(ctx context.Context, store db.DB) (*Store, error) {
	client, ok := store.GetConn().(*sql.DB)
	if !ok {
		return nil, db.ErrGetConnection
	}

	if err := migrate.Migration(ctx, store, migrations, "sagas"); err != nil {
		return nil, err
	}

	return &Store{client: client}, nil
}

func (s *Store) FindBySagaID(ctx context.Context, sagaType, id string) result.Result[saga.Record] {
	row := s.client.QueryRowContext(ctx,
		`SELECT `+selectColumns+` FROM sagas WHERE saga_type = ? AND saga_id = ?`, sagaType, id)

	rec, err := scan(row)
	if errors.Is(err, sql.ErrNoRows) {
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

	res, err := s.client.ExecContext(ctx, `
		INSERT INTO sagas (`+selectColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (saga_type, saga_id) DO NOTHING`,
		rec.Type, rec.ID, string(rec.Status), rec.CurrentStep,
		string(enc.Data), string(enc.TempData), nullable(enc.Error),
		rec.Version, unix(rec.CreatedAt), unix(rec.UpdatedAt), unix(rec.ExpiresAt), int64(rec.TTL),
	)
	if err != nil {
		return result.Err[saga.Record](saga.StoreFailure("create", err))
	}

	if n, err := res.RowsAffected(); err != nil {
		return result.Err[saga.Record](saga.StoreFailure("create", err))
	} else if n == 0 {
		return result.Err[saga.Record](saga.AlreadyExistsError(rec.Type, rec.ID))
	}

	return result.Ok(rec.Clone())
}

func (s *Store) Save(ctx context.Context, rec saga.Record) result.Result[saga.Record] {
	enc, err := columns.Encode(rec)
	if err != nil {
		return result.Err[saga.Record](saga.StoreFailure("save", err))
	}

	res, err := s.client.ExecContext(ctx, `
		UPDATE sagas
		SET status = ?, current_step = ?, data = ?, temp_data = ?, error = ?,
			version = version + 1, updated_at = ?, expires_at = ?, ttl = ?
		WHERE saga_type = ? AND saga_id = ? AND version = ?`,
		string(rec.Status), rec.CurrentStep, string(enc.Data), string(enc.TempData), nullable(enc.Error),
		unix(rec.UpdatedAt), unix(rec.ExpiresAt), int64(rec.TTL),
		rec.Type, rec.ID, rec.Version,
	)
	if err != nil {
		return result.Err[saga.Record](saga.StoreFailure("save", err))
	}

	n, err := res.RowsAffected()
	if err != nil {
		return result.Err[saga.Record](saga.StoreFailure("save", err))
	}
	if n == 0 {
		return result.Err[saga.Record](saga.OptimisticLockError(rec.Type, rec.ID, rec.Version))
	}

	return s.FindBySagaID(ctx, rec.Type, rec.ID)
}

func scan(row *sql.Row) (saga.Record, error) {
	var (
		rec                       saga.Record
		status                    string
		data, tempData            string
		errDoc                    sql.NullString
		created, updated, expires int64
		ttl                       int64
	)

	err := row.Scan(&rec.Type, &rec.ID, &status, &rec.CurrentStep, &data, &tempData, &errDoc,
		&rec.Version, &created, &updated, &expires, &ttl)
	if err != nil {
		return saga.Record{}, err
	}

	rec.Status = saga.Status(status)
	rec.CreatedAt = fromUnix(created)
	rec.UpdatedAt = fromUnix(updated)
	rec.ExpiresAt = fromUnix(expires)
	rec.TTL = time.Duration(ttl)

	var errBytes []byte
	if errDoc.Valid {
		errBytes = []byte(errDoc.String)
	}

	if err := columns.Decode(&rec, []byte(data), []byte(tempData), errBytes); err != nil {
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

func unix(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}

	return t.UnixNano()
}

func fromUnix(ns int64) time.Time {
	if ns == 0 {
		return time.Time{}
	}

	return time.Unix(0, ns).UTC()
}
