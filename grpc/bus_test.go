package grpc_test

import (
	"context"
	"errors"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/test/bufconn"

	"github.com/shortlink-org/commandbus/config"
	"github.com/shortlink-org/commandbus/cqrs/bus"
	"github.com/shortlink-org/commandbus/cqrs/handlers"
	"github.com/shortlink-org/commandbus/cqrs/message"
	"github.com/shortlink-org/commandbus/cqrs/result"
	commandgrpc "github.com/shortlink-org/commandbus/grpc"
	"github.com/shortlink-org/commandbus/logger"
)

const bufSize = 1024 * 1024

type createAccount struct {
	Name string `json:"name"`
}

type accountCreated struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// fixture runs a CommandServer on an in-memory listener and a client bus
// routing every module to it.
type fixture struct {
	registry *bus.Registry
	client   *commandgrpc.GrpcCommandBus
}

func newFixture(t *testing.T, routing commandgrpc.RoutingConfig) *fixture {
	t.Helper()

	registry := bus.NewRegistry()

	commands, err := commandgrpc.NewCommandServer(registry)
	require.NoError(t, err)

	cfg := config.NewFromMap(map[string]any{
		"GRPC_SERVER_COMPRESSION": "gzip",
	})

	server, err := commandgrpc.NewServer(logger.NewNop(), nil, prometheus.NewRegistry(), cfg, commands)
	require.NoError(t, err)

	lis := bufconn.Listen(bufSize)
	go func() {
		_ = server.Serve(lis)
	}()
	t.Cleanup(server.Stop)

	if routing.Modules == nil {
		routing.Modules = map[string]string{"default": "passthrough:///bufnet"}
		routing.DefaultModule = "default"
	}
	routing.Client.Compression = commandgrpc.CompressionGzip

	client, err := commandgrpc.NewGrpcCommandBus(routing,
		commandgrpc.WithChannelOptions(
			commandgrpc.WithDialOptions(grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
				return lis.DialContext(ctx)
			})),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	return &fixture{registry: registry, client: client}
}

func TestInvokeRoundTrip(t *testing.T) {
	f := newFixture(t, commandgrpc.RoutingConfig{})

	require.NoError(t, handlers.Register(f.registry, "account.create",
		handlers.CommandHandlerFunc[createAccount, accountCreated](func(_ context.Context, cmd createAccount) (accountCreated, error) {
			return accountCreated{ID: "a-1", Name: cmd.Name}, nil
		}),
	))

	env := message.New[any]("account.create", createAccount{Name: "ann"}, nil)

	got := bus.Invoke[accountCreated](context.Background(), f.client, env)
	require.True(t, got.IsOk(), "%v", got.Error())
	assert.Equal(t, accountCreated{ID: "a-1", Name: "ann"}, got.Value())
}

func TestDomainErrorIsForwardedVerbatim(t *testing.T) {
	f := newFixture(t, commandgrpc.RoutingConfig{})

	require.NoError(t, f.registry.Register("account.create", bus.HandlerFunc(
		func(context.Context, message.Envelope[any]) result.Result[any] {
			return result.Err[any](result.New("ACCOUNT_EXISTS", "Account ann already exists"))
		},
	)))

	got := f.client.Invoke(context.Background(), message.New[any]("account.create", map[string]any{"name": "ann"}, nil))
	require.True(t, got.IsErr())
	assert.Equal(t, result.Kind("ACCOUNT_EXISTS"), got.Error().Kind)
	assert.Equal(t, "Account ann already exists", got.Error().Message)
}

func TestUnknownCommandOverTheWire(t *testing.T) {
	f := newFixture(t, commandgrpc.RoutingConfig{})

	got := f.client.Dispatch(context.Background(), message.New[any]("account.missing", nil, nil))
	require.True(t, got.IsErr())
	assert.Equal(t, result.KindNoHandler, got.Error().Kind)
	assert.Equal(t, "No handler registered for command account.missing", got.Error().Message)
}

func TestHandlerPanicBecomesSystemError(t *testing.T) {
	f := newFixture(t, commandgrpc.RoutingConfig{})

	require.NoError(t, f.registry.Register("account.create", bus.HandlerFunc(
		func(context.Context, message.Envelope[any]) result.Result[any] {
			panic("boom")
		},
	)))

	got := f.client.Invoke(context.Background(), message.New[any]("account.create", nil, nil))
	require.True(t, got.IsErr())
	assert.Equal(t, result.KindSystem, got.Error().Kind)
	assert.Contains(t, got.Error().Message, "boom")
}

func TestLenientPayloads(t *testing.T) {
	f := newFixture(t, commandgrpc.RoutingConfig{})

	var received any
	require.NoError(t, f.registry.Register("account.ping", bus.HandlerFunc(
		func(_ context.Context, env message.Envelope[any]) result.Result[any] {
			received = env.Payload
			return result.Ok[any](nil)
		},
	)))

	got := f.client.Invoke(context.Background(), message.New[any]("account.ping", nil, nil))
	require.True(t, got.IsOk(), "%v", got.Error())
	assert.Nil(t, got.Value())
	assert.Equal(t, map[string]any{}, received)
}

func TestMetaIsForwarded(t *testing.T) {
	f := newFixture(t, commandgrpc.RoutingConfig{})

	var seen message.Meta
	require.NoError(t, f.registry.Register("account.create", bus.HandlerFunc(
		func(_ context.Context, env message.Envelope[any]) result.Result[any] {
			seen = env.MetaOrEmpty()
			return result.Ok[any]("ok")
		},
	)))

	meta := message.Meta{CorrelationID: "c-1", UserID: "u-1", Source: "test", CommandID: "cmd-1"}
	got := f.client.Invoke(context.Background(), message.New[any]("account.create", nil, &meta))
	require.True(t, got.IsOk(), "%v", got.Error())
	assert.Equal(t, "ok", got.Value())
	assert.Equal(t, meta, seen)
}

func TestRoutingWithoutAddress(t *testing.T) {
	f := newFixture(t, commandgrpc.RoutingConfig{
		Modules:       map[string]string{"account": "passthrough:///bufnet"},
		DefaultModule: "default",
	})

	got := f.client.Invoke(context.Background(), message.New[any]("billing.charge", nil, nil))
	require.True(t, got.IsErr())
	assert.Equal(t, result.KindSystem, got.Error().Kind)
	assert.Equal(t, "No address configured for module billing", got.Error().Message)
}

func TestTransportFailure(t *testing.T) {
	client, err := commandgrpc.NewGrpcCommandBus(commandgrpc.RoutingConfig{
		Modules:        map[string]string{"account": "passthrough:///down"},
		DefaultTimeout: time.Second,
	}, commandgrpc.WithChannelOptions(
		commandgrpc.WithDialOptions(grpc.WithContextDialer(func(context.Context, string) (net.Conn, error) {
			return nil, errors.New("connection refused")
		})),
	))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	got := client.Invoke(context.Background(), message.New[any]("account.create", nil, nil), bus.WithTimeout(2*time.Second))
	require.True(t, got.IsErr())
	assert.Equal(t, result.KindSystem, got.Error().Kind)
	assert.True(t, strings.HasPrefix(got.Error().Message, "gRPC call for command account.create failed: "), got.Error().Message)
}

func TestInvokeTimeout(t *testing.T) {
	f := newFixture(t, commandgrpc.RoutingConfig{})

	release := make(chan struct{})
	t.Cleanup(func() { close(release) })

	require.NoError(t, f.registry.Register("account.slow", bus.HandlerFunc(
		func(ctx context.Context, _ message.Envelope[any]) result.Result[any] {
			select {
			case <-release:
			case <-ctx.Done():
			}
			return result.Ok[any](nil)
		},
	)))

	got := f.client.Invoke(context.Background(), message.New[any]("account.slow", nil, nil), bus.WithTimeout(50*time.Millisecond))
	require.True(t, got.IsErr())
	assert.Equal(t, result.KindTimeout, got.Error().Kind)
	assert.Equal(t, "Command account.slow timed out after 50ms", got.Error().Message)
}
