package bus

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shortlink-org/commandbus/cqrs/message"
	"github.com/shortlink-org/commandbus/cqrs/result"
)

type recorder struct {
	mu    sync.Mutex
	calls []string
}

func (r *recorder) add(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, name)
}

func (r *recorder) list() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

func recording(rec *recorder, name string) Middleware {
	return MiddlewareFunc(func(ctx context.Context, env message.Envelope[any], next Next) result.Result[any] {
		rec.add(name)
		return next(ctx, env)
	})
}

func newBus(t *testing.T, opts ...Option) *InMemoryCommandBus {
	t.Helper()

	b, err := NewInMemoryCommandBus(opts...)
	require.NoError(t, err)

	return b
}

func envelope(commandType string, payload any) message.Envelope[any] {
	return message.New[any](commandType, payload, nil)
}

func TestMiddlewareOrder(t *testing.T) {
	rec := &recorder{}

	b := newBus(t, WithMiddleware(
		WithOrder(300, recording(rec, "late")),
		recording(rec, "default-1"),
		WithOrder(10, recording(rec, "early")),
		WithOrder(DefaultMiddlewareOrder, recording(rec, "default-2")),
		recording(rec, "default-3"),
	))
	require.NoError(t, b.Register("account.create", HandlerFunc(func(context.Context, message.Envelope[any]) result.Result[any] {
		rec.add("handler")
		return result.Ok[any]("ok")
	})))

	res := b.Invoke(context.Background(), envelope("account.create", nil))
	require.True(t, res.IsOk())

	assert.Equal(t, []string{"early", "default-1", "default-2", "default-3", "late", "handler"}, rec.list())
}

func TestMiddlewareCallingNextTwice(t *testing.T) {
	var handled atomic.Int32
	var second result.Result[any]

	b := newBus(t, WithMiddleware(MiddlewareFunc(func(ctx context.Context, env message.Envelope[any], next Next) result.Result[any] {
		first := next(ctx, env)
		second = next(ctx, env)
		return first
	})))
	require.NoError(t, b.Register("account.create", HandlerFunc(func(context.Context, message.Envelope[any]) result.Result[any] {
		handled.Add(1)
		return result.Ok[any](1)
	})))

	res := b.Invoke(context.Background(), envelope("account.create", nil))

	require.True(t, res.IsOk())
	require.True(t, second.IsErr())
	assert.Equal(t, "Middleware called next() multiple times", second.Error().Message)
	assert.Equal(t, result.KindSystem, second.Error().Kind)
	assert.Equal(t, int32(1), handled.Load())
}

func TestNoHandler(t *testing.T) {
	var called atomic.Bool

	b := newBus(t)
	require.NoError(t, b.Register("account.delete", HandlerFunc(func(context.Context, message.Envelope[any]) result.Result[any] {
		called.Store(true)
		return result.Ok[any](nil)
	})))

	res := b.Invoke(context.Background(), envelope("account.create", nil))
	require.True(t, res.IsErr())
	assert.Equal(t, result.KindNoHandler, res.Error().Kind)
	assert.Equal(t, "No handler registered for command account.create", res.Error().Message)

	dispatched := b.Dispatch(context.Background(), envelope("account.create", nil))
	require.True(t, dispatched.IsErr())
	assert.Equal(t, result.KindNoHandler, dispatched.Error().Kind)

	assert.False(t, called.Load())
}

func TestInvokeTimeout(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	b := newBus(t)
	require.NoError(t, b.Register("account.create", HandlerFunc(func(ctx context.Context, _ message.Envelope[any]) result.Result[any] {
		select {
		case <-release:
		case <-ctx.Done():
		}
		return result.Ok[any]("late")
	})))

	started := time.Now()
	res := b.Invoke(context.Background(), envelope("account.create", nil), WithTimeout(50*time.Millisecond))

	require.True(t, res.IsErr())
	assert.Equal(t, result.KindTimeout, res.Error().Kind)
	assert.Equal(t, "Command account.create timed out after 50ms", res.Error().Message)
	assert.Less(t, time.Since(started), time.Second)
}

func TestInvokeDefaultTimeoutOption(t *testing.T) {
	b := newBus(t, WithDefaultTimeout(20*time.Millisecond))
	require.NoError(t, b.Register("slow", HandlerFunc(func(ctx context.Context, _ message.Envelope[any]) result.Result[any] {
		<-ctx.Done()
		return result.Ok[any](nil)
	})))

	res := b.Invoke(context.Background(), envelope("slow", nil))
	require.True(t, res.IsErr())
	assert.Equal(t, "Command slow timed out after 20ms", res.Error().Message)
}

func TestPanicsBecomeSystemErrors(t *testing.T) {
	b := newBus(t, WithMiddleware(MiddlewareFunc(func(ctx context.Context, env message.Envelope[any], next Next) result.Result[any] {
		if env.Type == "middleware.panic" {
			panic("middleware exploded")
		}
		return next(ctx, env)
	})))
	require.NoError(t, b.Register("handler.panic", HandlerFunc(func(context.Context, message.Envelope[any]) result.Result[any] {
		panic("handler exploded")
	})))

	for _, commandType := range []string{"handler.panic", "middleware.panic"} {
		res := b.Invoke(context.Background(), envelope(commandType, nil))
		require.True(t, res.IsErr(), commandType)
		assert.Equal(t, result.KindSystem, res.Error().Kind, commandType)

		dispatched := b.Dispatch(context.Background(), envelope(commandType, nil))
		require.True(t, dispatched.IsErr(), commandType)
	}
}

func TestMiddlewareObservesHandlerResult(t *testing.T) {
	var seen *result.Error

	b := newBus(t, WithMiddleware(MiddlewareFunc(func(ctx context.Context, env message.Envelope[any], next Next) result.Result[any] {
		res := next(ctx, env)
		seen = res.Error()
		return res
	})))
	require.NoError(t, b.Register("account.create", HandlerFunc(func(context.Context, message.Envelope[any]) result.Result[any] {
		return result.Err[any](result.New("ACCOUNT_EXISTS", "account already exists"))
	})))

	res := b.Dispatch(context.Background(), envelope("account.create", nil))

	require.True(t, res.IsErr())
	require.NotNil(t, seen)
	assert.Equal(t, result.Kind("ACCOUNT_EXISTS"), seen.Kind)
	assert.Equal(t, seen, res.Error())
}

func TestTypedInvoke(t *testing.T) {
	type created struct {
		AccountID string `json:"accountId"`
	}

	b := newBus(t)
	require.NoError(t, b.Register("account.create", constHandler(map[string]any{"accountId": "acc-1"})))
	require.NoError(t, b.Register("account.get", constHandler(created{AccountID: "acc-2"})))

	fromMap := Invoke[created](context.Background(), b, envelope("account.create", nil))
	require.True(t, fromMap.IsOk())
	assert.Equal(t, "acc-1", fromMap.Value().AccountID)

	direct := Invoke[created](context.Background(), b, envelope("account.get", nil))
	require.True(t, direct.IsOk())
	assert.Equal(t, "acc-2", direct.Value().AccountID)

	missing := Invoke[created](context.Background(), b, envelope("account.missing", nil))
	require.True(t, missing.IsErr())
	assert.Equal(t, result.KindNoHandler, missing.Error().Kind)
}

func TestOptionsValidation(t *testing.T) {
	_, err := NewInMemoryCommandBus(WithDefaultTimeout(0))
	require.Error(t, err)

	_, err = NewInMemoryCommandBus(WithRegistry(nil))
	require.Error(t, err)

	shared := NewRegistry()
	b := newBus(t, WithRegistry(shared))
	assert.Same(t, shared, b.Registry())
}
