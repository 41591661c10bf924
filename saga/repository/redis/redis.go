// Package redis stores saga records as JSON strings. Save is a compare and
// set on the stored version run as a Lua script.
package redis

import (
	"context"
	"errors"
	"strconv"

	"github.com/redis/rueidis"
	"github.com/segmentio/encoding/json"

	"github.com/shortlink-org/commandbus/cqrs/result"
	"github.com/shortlink-org/commandbus/db"
	"github.com/shortlink-org/commandbus/saga"
)

const keyPrefix = "commandbus:saga:"

// KEYS[1] record key, ARGV[1] expected version, ARGV[2] new document.
// Returns 1 on success, 0 on version mismatch or missing key.
var compareAndSet = rueidis.NewLuaScript(`
local current = redis.call('GET', KEYS[1])
if not current then
	return 0
end
local doc = cjson.decode(current)
if tostring(doc['version']) ~= ARGV[1] then
	return 0
end
redis.call('SET', KEYS[1], ARGV[2])
return 1
`)

// Store is a saga.Repository on top of rueidis.
type Store struct {
	client rueidis.Client
}

// New returns the repository.
func New(store db.DB) (*Store, error) {
	client, ok := store.GetConn().(rueidis.Client)
	if !ok {
		return nil, db.ErrGetConnection
	}

	return &Store{client: client}, nil
}

func (s *Store) FindBySagaID(ctx context.Context, sagaType, id string) result.Result[saga.Record] {
	raw, err := s.client.Do(ctx, s.client.B().Get().Key(key(sagaType, id)).Build()).AsBytes()
	if rueidis.IsRedisNil(err) {
		return result.Err[saga.Record](saga.NotFoundError(sagaType, id))
	}
	if err != nil {
		return result.Err[saga.Record](saga.StoreFailure("find", err))
	}

	var rec saga.Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return result.Err[saga.Record](saga.StoreFailure("decode", err))
	}

	return result.Ok(rec)
}

func (s *Store) Create(ctx context.Context, rec saga.Record) result.Result[saga.Record] {
	raw, err := json.Marshal(rec)
	if err != nil {
		return result.Err[saga.Record](saga.StoreFailure("create", err))
	}

	err = s.client.Do(ctx, s.client.B().Set().Key(key(rec.Type, rec.ID)).Value(rueidis.BinaryString(raw)).Nx().Build()).Error()
	if rueidis.IsRedisNil(err) {
		return result.Err[saga.Record](saga.AlreadyExistsError(rec.Type, rec.ID))
	}
	if err != nil {
		return result.Err[saga.Record](saga.StoreFailure("create", err))
	}

	return result.Ok(rec.Clone())
}

func (s *Store) Save(ctx context.Context, rec saga.Record) result.Result[saga.Record] {
	current := s.FindBySagaID(ctx, rec.Type, rec.ID)
	if current.IsErr() {
		if errors.Is(current.Error(), saga.ErrNotFound) {
			return result.Err[saga.Record](saga.OptimisticLockError(rec.Type, rec.ID, rec.Version))
		}

		return current
	}

	next := rec.Clone()
	next.CreatedAt = current.Value().CreatedAt
	next.Version = rec.Version + 1

	raw, err := json.Marshal(next)
	if err != nil {
		return result.Err[saga.Record](saga.StoreFailure("save", err))
	}

	swapped, err := compareAndSet.Exec(ctx, s.client,
		[]string{key(rec.Type, rec.ID)},
		[]string{strconv.FormatInt(rec.Version, 10), string(raw)},
	).AsInt64()
	if err != nil {
		return result.Err[saga.Record](saga.StoreFailure("save", err))
	}
	if swapped == 0 {
		return result.Err[saga.Record](saga.OptimisticLockError(rec.Type, rec.ID, rec.Version))
	}

	return result.Ok(next)
}

func key(sagaType, id string) string {
	return keyPrefix + sagaType + "/" + id
}
