package handlers

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/shortlink-org/commandbus/cqrs/bus"
	"github.com/shortlink-org/commandbus/cqrs/message"
	"github.com/shortlink-org/commandbus/cqrs/result"
	"github.com/shortlink-org/commandbus/logger"
)

type createAccount struct {
	Email string `json:"email"`
}

type accountCreated struct {
	AccountID string `json:"accountId"`
}

func newTestBus(t *testing.T, middlewares ...bus.Middleware) *bus.InMemoryCommandBus {
	t.Helper()

	b, err := bus.NewInMemoryCommandBus(bus.WithMiddleware(middlewares...))
	require.NoError(t, err)

	return b
}

func TestCommandHandlerAdapter(t *testing.T) {
	var seenMeta message.Meta

	b := newTestBus(t, Correlation{})
	err := Register(b.Registry(), "account.create", CommandHandlerFunc[createAccount, accountCreated](
		func(ctx context.Context, cmd createAccount) (accountCreated, error) {
			seenMeta, _ = message.MetaFromContext(ctx)
			if cmd.Email == "" {
				return accountCreated{}, result.New("VALIDATION", "email is required")
			}
			return accountCreated{AccountID: "acc-" + cmd.Email}, nil
		}))
	require.NoError(t, err)

	res := bus.Invoke[accountCreated](context.Background(), b,
		message.New[any]("account.create", map[string]any{"email": "ann"}, &message.Meta{UserID: "u-1"}))
	require.True(t, res.IsOk())
	assert.Equal(t, "acc-ann", res.Value().AccountID)
	assert.Equal(t, "u-1", seenMeta.UserID)
	assert.NotEmpty(t, seenMeta.CommandID)
	assert.Equal(t, seenMeta.CommandID, seenMeta.CorrelationID)

	rejected := b.Invoke(context.Background(), message.New[any]("account.create", createAccount{}, nil))
	require.True(t, rejected.IsErr())
	assert.Equal(t, result.Kind("VALIDATION"), rejected.Error().Kind)
}

func TestCommandHandlerPlainErrorIsSystem(t *testing.T) {
	b := newTestBus(t)
	require.NoError(t, Register(b.Registry(), "account.create", CommandHandlerFunc[createAccount, any](
		func(context.Context, createAccount) (any, error) {
			return nil, errors.New("disk full")
		})))

	res := b.Invoke(context.Background(), message.New[any]("account.create", createAccount{}, nil))
	require.True(t, res.IsErr())
	assert.Equal(t, result.KindSystem, res.Error().Kind)
	assert.Equal(t, "disk full", res.Error().Message)
}

func TestCorrelationKeepsExistingIDs(t *testing.T) {
	var seen message.Meta

	b := newTestBus(t, Correlation{})
	require.NoError(t, b.Register("noop", bus.HandlerFunc(func(_ context.Context, env message.Envelope[any]) result.Result[any] {
		seen = env.MetaOrEmpty()
		return result.Ok[any](nil)
	})))

	res := b.Dispatch(context.Background(), message.New[any]("noop", nil, &message.Meta{CorrelationID: "c-1", CommandID: "cmd-1"}))
	require.True(t, res.IsOk())
	assert.Equal(t, "c-1", seen.CorrelationID)
	assert.Equal(t, "cmd-1", seen.CommandID)
}

func TestLoggingScopesMeta(t *testing.T) {
	var buffer bytes.Buffer
	log, err := logger.New(logger.Configuration{Level: logger.DEBUG_LEVEL, Writer: &buffer, TimeFormat: time.RFC3339})
	require.NoError(t, err)

	b := newTestBus(t, Correlation{}, NewLogging(log))
	require.NoError(t, b.Register("account.create", bus.HandlerFunc(func(context.Context, message.Envelope[any]) result.Result[any] {
		return result.Err[any](result.New("ACCOUNT_EXISTS", "account already exists"))
	})))

	res := b.Dispatch(context.Background(), message.New[any]("account.create", nil, &message.Meta{CorrelationID: "corr-42"}))
	require.True(t, res.IsErr())

	out := buffer.String()
	assert.Contains(t, out, `"correlation_id":"corr-42"`)
	assert.Contains(t, out, `"command_type":"account.create"`)
	assert.Contains(t, out, `"msg":"command rejected"`)
	assert.Contains(t, out, `"error_kind":"ACCOUNT_EXISTS"`)
}

func TestTracingRecordsSpan(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	b := newTestBus(t, NewTracing(tp))
	require.NoError(t, b.Register("account.create", bus.HandlerFunc(func(context.Context, message.Envelope[any]) result.Result[any] {
		return result.Err[any](result.System("boom"))
	})))

	_ = b.Dispatch(context.Background(), message.New[any]("account.create", nil, nil))

	spans := rec.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "command account.create", spans[0].Name())
	assert.Equal(t, "boom", spans[0].Status().Description)
}

func TestMetricsCountsOutcomes(t *testing.T) {
	reg := prometheus.NewRegistry()

	metrics, err := NewMetrics(reg)
	require.NoError(t, err)

	again, err := NewMetrics(reg)
	require.NoError(t, err, "second registration reuses collectors")

	b := newTestBus(t, metrics, again)
	require.NoError(t, b.Register("account.create", bus.HandlerFunc(func(context.Context, message.Envelope[any]) result.Result[any] {
		return result.Ok[any](nil)
	})))

	_ = b.Dispatch(context.Background(), message.New[any]("account.create", nil, nil))
	_ = b.Dispatch(context.Background(), message.New[any]("account.missing", nil, nil))

	assert.InDelta(t, 2, testutil.ToFloat64(metrics.total.WithLabelValues("account.create", "ok")), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(metrics.total.WithLabelValues("account.missing", string(result.KindNoHandler))), 0)

	_, err = NewMetrics(nil)
	require.ErrorIs(t, err, errNilRegisterer)
}

func TestCircuitBreakerOpensOnSystemFailures(t *testing.T) {
	calls := 0

	cb := NewCircuitBreaker(gobreaker.Settings{
		Timeout: time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 2
		},
	})

	b := newTestBus(t, cb)
	require.NoError(t, b.Register("product.create", bus.HandlerFunc(func(context.Context, message.Envelope[any]) result.Result[any] {
		calls++
		return result.Err[any](result.System("db down"))
	})))
	require.NoError(t, b.Register("product.validate", bus.HandlerFunc(func(context.Context, message.Envelope[any]) result.Result[any] {
		return result.Err[any](result.New("VALIDATION", "bad sku"))
	})))

	for range 2 {
		res := b.Dispatch(context.Background(), message.New[any]("product.create", nil, nil))
		require.Equal(t, "db down", res.Error().Message)
	}

	res := b.Dispatch(context.Background(), message.New[any]("product.create", nil, nil))
	require.True(t, res.IsErr())
	assert.Equal(t, "circuit breaker open for command product.create", res.Error().Message)
	assert.Equal(t, 2, calls)
	assert.Equal(t, gobreaker.StateOpen, cb.State("product.create"))

	for range 3 {
		res := b.Dispatch(context.Background(), message.New[any]("product.validate", nil, nil))
		require.Equal(t, result.Kind("VALIDATION"), res.Error().Kind)
	}
	assert.Equal(t, gobreaker.StateClosed, cb.State("product.validate"))
}
