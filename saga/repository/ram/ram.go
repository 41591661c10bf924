// Package ram keeps saga records in process memory.
package ram

import (
	"context"
	"sync"

	"github.com/shortlink-org/commandbus/cqrs/result"
	"github.com/shortlink-org/commandbus/saga"
)

// Store is a saga.Repository backed by a map.
type Store struct {
	mu      sync.RWMutex
	records map[string]saga.Record
}

// New returns an empty store.
func New() *Store {
	return &Store{records: make(map[string]saga.Record)}
}

func (s *Store) FindBySagaID(_ context.Context, sagaType, id string) result.Result[saga.Record] {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[key(sagaType, id)]
	if !ok {
		return result.Err[saga.Record](saga.NotFoundError(sagaType, id))
	}

	return result.Ok(rec.Clone())
}

func (s *Store) Create(_ context.Context, rec saga.Record) result.Result[saga.Record] {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := rec.Key()
	if _, ok := s.records[k]; ok {
		return result.Err[saga.Record](saga.AlreadyExistsError(rec.Type, rec.ID))
	}

	s.records[k] = rec.Clone()

	return result.Ok(rec.Clone())
}

func (s *Store) Save(_ context.Context, rec saga.Record) result.Result[saga.Record] {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := rec.Key()
	stored, ok := s.records[k]
	if !ok || stored.Version != rec.Version {
		return result.Err[saga.Record](saga.OptimisticLockError(rec.Type, rec.ID, rec.Version))
	}

	next := rec.Clone()
	next.CreatedAt = stored.CreatedAt
	next.Version = stored.Version + 1
	s.records[k] = next

	return result.Ok(next.Clone())
}

// Len returns the number of stored sagas.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.records)
}

func key(sagaType, id string) string {
	return sagaType + "/" + id
}
