package saga

import (
	"context"
	"errors"
	"fmt"

	"github.com/shortlink-org/commandbus/cqrs/result"
)

var (
	// ErrNotFound is wrapped by FindBySagaID misses.
	ErrNotFound = errors.New("saga: not found")
	// ErrAlreadyExists is wrapped by Create when the (type, id) row exists.
	ErrAlreadyExists = errors.New("saga: already exists")
	// ErrOptimisticLock is wrapped by Save when the stored version moved on.
	// The caller is expected to reload and retry.
	ErrOptimisticLock = errors.New("saga: optimistic lock conflict")
	// ErrInvalidTransition is wrapped by UpdateState for a status change the
	// lifecycle does not allow.
	ErrInvalidTransition = errors.New("saga: invalid status transition")
	// ErrCompensationFailed is wrapped by Compensate when an undo action fails.
	ErrCompensationFailed = errors.New("saga: compensation failed")
)

// Repository is the durable store of saga records.
type Repository interface {
	// FindBySagaID returns the record or a NOT_FOUND error wrapping ErrNotFound.
	FindBySagaID(ctx context.Context, sagaType, id string) result.Result[Record]
	// Create inserts rec as is. A duplicate returns an error wrapping ErrAlreadyExists.
	Create(ctx context.Context, rec Record) result.Result[Record]
	// Save updates the row matching (type, id, rec.Version) and increments its
	// version. Zero matched rows returns a NOT_FOUND error wrapping ErrOptimisticLock.
	Save(ctx context.Context, rec Record) result.Result[Record]
}

// NotFoundError builds the repository miss error.
func NotFoundError(sagaType, id string) *result.Error {
	return result.Wrap(result.KindNotFound, fmt.Sprintf("Saga %s/%s not found", sagaType, id), ErrNotFound)
}

// AlreadyExistsError builds the duplicate create error.
func AlreadyExistsError(sagaType, id string) *result.Error {
	return result.Wrap(result.KindSystem, fmt.Sprintf("Saga %s/%s already exists", sagaType, id), ErrAlreadyExists)
}

// OptimisticLockError builds the stale save error.
func OptimisticLockError(sagaType, id string, version int64) *result.Error {
	return result.Wrap(result.KindNotFound,
		fmt.Sprintf("Saga %s/%s with version %d not found: optimistic lock conflict", sagaType, id, version),
		ErrOptimisticLock)
}

// StoreFailure wraps a driver error.
func StoreFailure(op string, err error) *result.Error {
	return result.Wrap(result.KindSystem, fmt.Sprintf("saga store %s: %v", op, err), err)
}

// IsOptimisticLock reports whether err is a stale save.
func IsOptimisticLock(err error) bool {
	return errors.Is(err, ErrOptimisticLock)
}
