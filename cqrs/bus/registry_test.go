package bus

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shortlink-org/commandbus/cqrs/message"
	"github.com/shortlink-org/commandbus/cqrs/result"
)

func constHandler(v any) Handler {
	return HandlerFunc(func(context.Context, message.Envelope[any]) result.Result[any] {
		return result.Ok(v)
	})
}

func TestRegistryConcurrentAccess(t *testing.T) {
	reg := NewRegistry()

	const workers = 50
	var wg sync.WaitGroup

	for i := 0; i < workers; i++ {
		wg.Add(1)

		go func(i int) {
			defer wg.Done()
			err := reg.Register(fmt.Sprintf("billing.create_%d", i), constHandler(i))
			assert.NoError(t, err, "register command %d", i)
		}(i)
	}

	wg.Wait()

	for i := 0; i < workers; i++ {
		_, ok := reg.Resolve(fmt.Sprintf("billing.create_%d", i))
		require.True(t, ok, "command %d not found", i)
	}
	assert.Len(t, reg.Types(), workers)
}

func TestRegistryReplaceAndUnregister(t *testing.T) {
	reg := NewRegistry()

	require.NoError(t, reg.Register("account.create", constHandler("first")))
	require.NoError(t, reg.Register("account.create", constHandler("second")))

	h, ok := reg.Resolve("account.create")
	require.True(t, ok)
	assert.Equal(t, "second", h.Handle(context.Background(), message.Envelope[any]{}).Value())

	reg.Unregister("account.create")
	_, ok = reg.Resolve("account.create")
	assert.False(t, ok)
}

func TestRegistryRejectsInvalidInput(t *testing.T) {
	reg := NewRegistry()

	require.ErrorIs(t, reg.Register("", constHandler(1)), ErrEmptyCommandType)
	require.ErrorIs(t, reg.Register("a.b", nil), ErrNilHandler)
	assert.Empty(t, reg.Types())
}
