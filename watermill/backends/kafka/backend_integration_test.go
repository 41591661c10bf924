//go:build integration

package kafka_test

import (
	"context"
	"strings"
	"testing"
	"time"

	wm "github.com/ThreeDotsLabs/watermill"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tckafka "github.com/testcontainers/testcontainers-go/modules/kafka"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"github.com/shortlink-org/commandbus/config"
	"github.com/shortlink-org/commandbus/cqrs/bus"
	"github.com/shortlink-org/commandbus/cqrs/handlers"
	"github.com/shortlink-org/commandbus/cqrs/message"
	"github.com/shortlink-org/commandbus/logger"
	"github.com/shortlink-org/commandbus/watermill"
	"github.com/shortlink-org/commandbus/watermill/backends/kafka"
)

type reserve struct {
	SKU string `json:"sku"`
}

type reserved struct {
	SKU string `json:"sku"`
	OK  bool   `json:"ok"`
}

func startBus(t *testing.T, ctx context.Context, brokers []string, service string, registry *bus.Registry) *watermill.WatermillCommandBus {
	t.Helper()

	cfg := config.NewFromMap(map[string]any{
		"SERVICE_NAME":                            service,
		"WATERMILL_KAFKA_BROKERS":                 strings.Join(brokers, ","),
		"WATERMILL_KAFKA_CONSUMER_INITIAL_OFFSET": "oldest",
		"WATERMILL_RETRY_MAX_RETRIES":             0,
	})

	backend, err := kafka.New(cfg, wm.NopLogger{})
	require.NoError(t, err)

	client, err := watermill.New(logger.NewNop(), cfg, backend,
		metricnoop.NewMeterProvider(), tracenoop.NewTracerProvider())
	require.NoError(t, err)

	b, err := watermill.NewWatermillCommandBus(client, registry, watermill.WithService(service))
	require.NoError(t, err)
	require.NoError(t, b.Start(ctx))

	t.Cleanup(func() { _ = b.Close() })

	return b
}

// Two buses with separate clients stand in for two processes.
func TestInvokeAcrossProcesses(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	t.Cleanup(cancel)

	container, err := tckafka.Run(ctx, "confluentinc/confluent-local:7.5.0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	brokers, err := container.Brokers(ctx)
	require.NoError(t, err)

	inventory := bus.NewRegistry()
	require.NoError(t, handlers.Register(inventory, "inventory.reserve",
		handlers.CommandHandlerFunc[reserve, reserved](func(_ context.Context, cmd reserve) (reserved, error) {
			return reserved{SKU: cmd.SKU, OK: true}, nil
		})))

	startBus(t, ctx, brokers, "inventory", inventory)
	caller := startBus(t, ctx, brokers, "orders", bus.NewRegistry())

	res := bus.Invoke[reserved](ctx, caller,
		message.Erase(message.New("inventory.reserve", reserve{SKU: "sku-1"}, nil)),
		bus.WithTimeout(time.Minute))

	require.True(t, res.IsOk(), "%v", res.Error())
	assert.Equal(t, reserved{SKU: "sku-1", OK: true}, res.Value())
}
