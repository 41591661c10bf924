package watermill_test

import (
	"context"
	"testing"
	"time"

	wm "github.com/ThreeDotsLabs/watermill"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"github.com/shortlink-org/commandbus/config"
	"github.com/shortlink-org/commandbus/cqrs/bus"
	"github.com/shortlink-org/commandbus/cqrs/handlers"
	"github.com/shortlink-org/commandbus/cqrs/message"
	"github.com/shortlink-org/commandbus/cqrs/result"
	"github.com/shortlink-org/commandbus/logger"
	"github.com/shortlink-org/commandbus/watermill"
	"github.com/shortlink-org/commandbus/watermill/backends/gochannel"
)

type createAccount struct {
	Name string `json:"name"`
}

type accountCreated struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func newClient(t *testing.T) *watermill.Client {
	t.Helper()

	cfg := config.NewFromMap(map[string]any{
		"WATERMILL_RETRY_MAX_RETRIES": 0,
		"WATERMILL_CB_ENABLED":        false,
	})

	client, err := watermill.New(
		logger.NewNop(),
		cfg,
		gochannel.New(cfg, wm.NopLogger{}),
		metricnoop.NewMeterProvider(),
		tracenoop.NewTracerProvider(),
	)
	require.NoError(t, err)

	return client
}

func startBus(t *testing.T, registry *bus.Registry) *watermill.WatermillCommandBus {
	t.Helper()

	b, err := watermill.NewWatermillCommandBus(newClient(t), registry,
		watermill.WithService("accounts"),
		watermill.WithConsumerMiddleware(handlers.Correlation{}),
	)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, b.Start(ctx))

	t.Cleanup(func() {
		cancel()
		assert.NoError(t, b.Close())
	})

	return b
}

func createAccountLogic(_ context.Context, cmd createAccount) (accountCreated, error) {
	return accountCreated{ID: "acc-1", Name: cmd.Name}, nil
}

func TestInvokeRoundTrip(t *testing.T) {
	registry := bus.NewRegistry()
	require.NoError(t, handlers.Register(registry, "account.create",
		handlers.CommandHandlerFunc[createAccount, accountCreated](createAccountLogic)))

	b := startBus(t, registry)

	res := bus.Invoke[accountCreated](context.Background(), b,
		message.Erase(message.New("account.create", createAccount{Name: "ann"}, nil)),
		bus.WithTimeout(2*time.Second))

	require.True(t, res.IsOk(), "%v", res.Error())
	assert.Equal(t, accountCreated{ID: "acc-1", Name: "ann"}, res.Value())
}

func TestInvokeForwardsDomainErrorVerbatim(t *testing.T) {
	registry := bus.NewRegistry()
	require.NoError(t, handlers.Register(registry, "account.create",
		handlers.CommandHandlerFunc[createAccount, accountCreated](func(context.Context, createAccount) (accountCreated, error) {
			return accountCreated{}, result.New("ACCOUNT_EXISTS", "Account ann already exists")
		})))

	b := startBus(t, registry)

	res := b.Invoke(context.Background(), message.Erase(message.New("account.create", createAccount{Name: "ann"}, nil)))

	require.True(t, res.IsErr())
	assert.Equal(t, result.Kind("ACCOUNT_EXISTS"), res.Error().Kind)
	assert.Equal(t, "Account ann already exists", res.Error().Message)
}

func TestInvokeNoHandler(t *testing.T) {
	registry := bus.NewRegistry()
	require.NoError(t, handlers.Register(registry, "account.create",
		handlers.CommandHandlerFunc[createAccount, accountCreated](createAccountLogic)))

	b := startBus(t, registry)

	// the consumer stays subscribed, but the binding is gone
	registry.Unregister("account.create")

	res := b.Invoke(context.Background(), message.Erase(message.New("account.create", createAccount{}, nil)))

	require.True(t, res.IsErr())
	assert.Equal(t, result.KindNoHandler, res.Error().Kind)
	assert.Equal(t, "No handler registered for command account.create", res.Error().Message)
}

func TestInvokePanicBecomesSystemError(t *testing.T) {
	registry := bus.NewRegistry()
	require.NoError(t, registry.Register("account.create", bus.HandlerFunc(
		func(context.Context, message.Envelope[any]) result.Result[any] {
			panic("broken handler")
		})))

	b := startBus(t, registry)

	res := b.Invoke(context.Background(), message.Erase(message.New("account.create", createAccount{}, nil)))

	require.True(t, res.IsErr())
	assert.Equal(t, result.KindSystem, res.Error().Kind)
}

func TestInvokeTimeout(t *testing.T) {
	release := make(chan struct{})

	registry := bus.NewRegistry()
	require.NoError(t, registry.Register("account.slow", bus.HandlerFunc(
		func(context.Context, message.Envelope[any]) result.Result[any] {
			<-release
			return result.Ok[any]("late")
		})))

	b := startBus(t, registry)
	t.Cleanup(func() { close(release) })

	res := b.Invoke(context.Background(), message.Erase(message.New[any]("account.slow", nil, nil)),
		bus.WithTimeout(50*time.Millisecond))

	require.True(t, res.IsErr())
	assert.Equal(t, result.KindTimeout, res.Error().Kind)
	assert.Equal(t, "Command account.slow timed out after 50ms", res.Error().Message)
}

func TestInvokeForwardsMeta(t *testing.T) {
	seen := make(chan message.Meta, 1)

	registry := bus.NewRegistry()
	require.NoError(t, handlers.Register(registry, "account.create",
		handlers.CommandHandlerFunc[createAccount, accountCreated](func(ctx context.Context, cmd createAccount) (accountCreated, error) {
			meta, _ := message.MetaFromContext(ctx)
			seen <- meta
			return accountCreated{Name: cmd.Name}, nil
		})))

	b := startBus(t, registry)

	env := message.Erase(message.New("account.create", createAccount{Name: "ann"},
		&message.Meta{UserID: "u-1", Source: "web"}))

	res := b.Invoke(context.Background(), env)
	require.True(t, res.IsOk(), "%v", res.Error())

	meta := <-seen
	assert.Equal(t, "u-1", meta.UserID)
	assert.Equal(t, "web", meta.Source)
	assert.NotEmpty(t, meta.CommandID)
	assert.Equal(t, meta.CommandID, meta.CorrelationID)
}

func TestDispatchDeliversCommand(t *testing.T) {
	got := make(chan string, 1)

	registry := bus.NewRegistry()
	require.NoError(t, handlers.Register(registry, "account.create",
		handlers.CommandHandlerFunc[createAccount, struct{}](func(_ context.Context, cmd createAccount) (struct{}, error) {
			got <- cmd.Name
			return struct{}{}, nil
		})))

	b := startBus(t, registry)

	res := b.Dispatch(context.Background(), message.Erase(message.New("account.create", createAccount{Name: "bob"}, nil)))
	require.True(t, res.IsOk(), "%v", res.Error())

	select {
	case name := <-got:
		assert.Equal(t, "bob", name)
	case <-time.After(2 * time.Second):
		t.Fatal("dispatched command was not consumed")
	}
}

func TestDispatchRejectsUnencodablePayload(t *testing.T) {
	b := startBus(t, bus.NewRegistry())

	res := b.Dispatch(context.Background(), message.Erase(message.New[any]("account.create", make(chan int), nil)))

	require.True(t, res.IsErr())
	assert.Equal(t, result.KindSystem, res.Error().Kind)
}

func TestInvokeBeforeStart(t *testing.T) {
	client := newClient(t)
	t.Cleanup(func() { _ = client.Close() })

	b, err := watermill.NewWatermillCommandBus(client, nil)
	require.NoError(t, err)

	res := b.Invoke(context.Background(), message.Erase(message.New[any]("account.create", nil, nil)))
	require.True(t, res.IsErr())
	assert.Equal(t, "WatermillCommandBus is not started", res.Error().Message)
}

func TestStartTwice(t *testing.T) {
	b := startBus(t, bus.NewRegistry())
	require.NoError(t, b.Ready())

	assert.Error(t, b.Start(context.Background()))
}

func TestNewRequiresClient(t *testing.T) {
	_, err := watermill.NewWatermillCommandBus(nil, nil)
	assert.Error(t, err)

	_, err = watermill.New(logger.NewNop(), config.NewFromMap(nil), nil,
		metricnoop.NewMeterProvider(), tracenoop.NewTracerProvider())
	assert.Error(t, err)
}

func TestDispatchSystemFailureMovesToDLQ(t *testing.T) {
	cfg := config.NewFromMap(map[string]any{
		"WATERMILL_RETRY_MAX_RETRIES": 0,
		"WATERMILL_CB_ENABLED":        false,
		"WATERMILL_DLQ_ENABLED":       true,
		"WATERMILL_DLQ_TOPIC":         "accounts_dlq",
	})

	backend := gochannel.New(cfg, wm.NopLogger{})

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	dead, err := backend.Subscriber().Subscribe(ctx, "accounts_dlq")
	require.NoError(t, err)

	client, err := watermill.New(logger.NewNop(), cfg, backend,
		metricnoop.NewMeterProvider(), tracenoop.NewTracerProvider())
	require.NoError(t, err)

	registry := bus.NewRegistry()
	require.NoError(t, registry.Register("account.create", bus.HandlerFunc(
		func(context.Context, message.Envelope[any]) result.Result[any] {
			return result.Err[any](result.System("account store unavailable"))
		})))

	b, err := watermill.NewWatermillCommandBus(client, registry)
	require.NoError(t, err)
	require.NoError(t, b.Start(ctx))
	t.Cleanup(func() { _ = b.Close() })

	res := b.Dispatch(context.Background(), message.Erase(message.New("account.create", createAccount{Name: "ann"}, nil)))
	require.True(t, res.IsOk(), "%v", res.Error())

	select {
	case msg := <-dead:
		msg.Ack()
		assert.Equal(t, "account.create", msg.Metadata.Get("original_"+message.MetadataCommandType))
		assert.Equal(t, "account store unavailable", msg.Metadata.Get("poison_reason"))
	case <-time.After(2 * time.Second):
		t.Fatal("failed command did not reach the DLQ")
	}
}
