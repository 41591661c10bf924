package app_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/shortlink-org/commandbus/config"
	"github.com/shortlink-org/commandbus/internal/app"
)

func TestServeStopsOnCancel(t *testing.T) {
	cfg := config.NewFromMap(map[string]any{
		"TRACER_URI":       "",
		"STORE_TYPE":       "ram",
		"LOG_LEVEL":        0,
		"GRPC_SERVER_HOST": "127.0.0.1",
		"GRPC_SERVER_PORT": 0,
		"METRICS_PORT":     0,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	require.NoError(t, app.Serve(ctx, cfg))
}
