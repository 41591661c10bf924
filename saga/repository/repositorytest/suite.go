// Package repositorytest checks that a saga.Repository honours the store
// contract. Every driver runs it.
package repositorytest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shortlink-org/commandbus/cqrs/result"
	"github.com/shortlink-org/commandbus/saga"
)

// Run executes the suite against repositories built by newRepo. Each subtest
// gets a fresh saga id, so one repository may be shared.
func Run(t *testing.T, newRepo func(t *testing.T) saga.Repository) {
	t.Helper()

	t.Run("find missing", func(t *testing.T) {
		repo := newRepo(t)

		got := repo.FindBySagaID(context.Background(), "test", "missing")
		require.True(t, got.IsErr())
		assert.Equal(t, result.KindNotFound, got.Error().Kind)
		assert.ErrorIs(t, got.Error(), saga.ErrNotFound)
	})

	t.Run("create then find", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		rec := Fixture("create-find")

		created := repo.Create(ctx, rec)
		require.True(t, created.IsOk(), "%v", created.Error())

		found := repo.FindBySagaID(ctx, rec.Type, rec.ID)
		require.True(t, found.IsOk(), "%v", found.Error())

		got := found.Value()
		assert.Equal(t, rec.ID, got.ID)
		assert.Equal(t, rec.Type, got.Type)
		assert.Equal(t, saga.StatusNew, got.Status)
		assert.Equal(t, int64(1), got.Version)
		assert.JSONEq(t, string(rec.Data), string(got.Data))
		assert.Equal(t, "yes", got.TempData["seen"])
		assert.Nil(t, got.Error)
		assert.WithinDuration(t, rec.CreatedAt, got.CreatedAt, time.Millisecond)
		assert.WithinDuration(t, rec.ExpiresAt, got.ExpiresAt, time.Millisecond)
		assert.Equal(t, rec.TTL, got.TTL)
	})

	t.Run("duplicate create", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		rec := Fixture("duplicate")

		require.True(t, repo.Create(ctx, rec).IsOk())

		dup := repo.Create(ctx, rec)
		require.True(t, dup.IsErr())
		assert.ErrorIs(t, dup.Error(), saga.ErrAlreadyExists)
	})

	t.Run("save increments version", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		rec := Fixture("save")

		require.True(t, repo.Create(ctx, rec).IsOk())

		rec.Status = saga.StatusFailed
		rec.CurrentStep = "createProducts"
		rec.Error = result.New("PRODUCT_REJECTED", "sku taken")
		rec.Data = []byte(`{"accountId":"a-1"}`)

		saved := repo.Save(ctx, rec)
		require.True(t, saved.IsOk(), "%v", saved.Error())
		assert.Equal(t, int64(2), saved.Value().Version)

		found := repo.FindBySagaID(ctx, rec.Type, rec.ID)
		require.True(t, found.IsOk())

		got := found.Value()
		assert.Equal(t, int64(2), got.Version)
		assert.Equal(t, saga.StatusFailed, got.Status)
		assert.Equal(t, "createProducts", got.CurrentStep)
		assert.JSONEq(t, `{"accountId":"a-1"}`, string(got.Data))
		require.NotNil(t, got.Error)
		assert.Equal(t, result.Kind("PRODUCT_REJECTED"), got.Error.Kind)
		assert.Equal(t, "sku taken", got.Error.Message)
	})

	t.Run("stale save", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		rec := Fixture("stale")

		require.True(t, repo.Create(ctx, rec).IsOk())
		require.True(t, repo.Save(ctx, rec).IsOk())

		// rec still carries version 1
		stale := repo.Save(ctx, rec)
		require.True(t, stale.IsErr())
		assert.Equal(t, result.KindNotFound, stale.Error().Kind)
		assert.True(t, saga.IsOptimisticLock(stale.Error()))
	})

	t.Run("save missing", func(t *testing.T) {
		repo := newRepo(t)

		got := repo.Save(context.Background(), Fixture("never-created"))
		require.True(t, got.IsErr())
		assert.True(t, saga.IsOptimisticLock(got.Error()))
	})

	t.Run("concurrent saves", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		rec := Fixture("concurrent")

		require.True(t, repo.Create(ctx, rec).IsOk())

		const writers = 8

		var (
			wg   sync.WaitGroup
			mu   sync.Mutex
			wins int
		)

		for range writers {
			wg.Add(1)

			go func() {
				defer wg.Done()

				if repo.Save(ctx, rec).IsOk() {
					mu.Lock()
					wins++
					mu.Unlock()
				}
			}()
		}

		wg.Wait()

		assert.Equal(t, 1, wins)

		found := repo.FindBySagaID(ctx, rec.Type, rec.ID)
		require.True(t, found.IsOk())
		assert.Equal(t, int64(2), found.Value().Version)
	})
}

// Fixture returns a fresh NEW record of type "test".
func Fixture(id string) saga.Record {
	now := time.Now().UTC().Truncate(time.Microsecond)

	return saga.Record{
		ID:        id,
		Type:      "test",
		Status:    saga.StatusNew,
		Data:      []byte(`{"sku":"p-1"}`),
		TempData:  map[string]any{"seen": "yes"},
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
		ExpiresAt: now.Add(saga.DefaultTTL),
		TTL:       saga.DefaultTTL,
	}
}
