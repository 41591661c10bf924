package tracing_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/shortlink-org/commandbus/config"
	"github.com/shortlink-org/commandbus/logger"
	"github.com/shortlink-org/commandbus/observability/tracing"
)

func TestEmptyURIDisablesTracing(t *testing.T) {
	cfg := config.NewFromMap(map[string]any{"TRACER_URI": ""})

	tp, cleanup, err := tracing.New(context.Background(), logger.NewNop(), cfg)
	require.NoError(t, err)
	t.Cleanup(cleanup)

	assert.IsType(t, noop.TracerProvider{}, tp)
}

func TestHTTPExporter(t *testing.T) {
	cfg := config.NewFromMap(map[string]any{
		"TRACER_URI":      "localhost:4318",
		"TRACER_PROTOCOL": "http",
	})

	tp, cleanup, err := tracing.New(context.Background(), logger.NewNop(), cfg)
	require.NoError(t, err)
	t.Cleanup(cleanup)

	assert.IsType(t, &sdktrace.TracerProvider{}, tp)
}

func TestUnknownProtocol(t *testing.T) {
	cfg := config.NewFromMap(map[string]any{
		"TRACER_URI":      "localhost:4317",
		"TRACER_PROTOCOL": "carrier-pigeon",
	})

	_, _, err := tracing.New(context.Background(), logger.NewNop(), cfg)
	assert.ErrorContains(t, err, "carrier-pigeon")
}
