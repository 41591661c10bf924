package grpc

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shortlink-org/commandbus/config"
	"github.com/shortlink-org/commandbus/logger"
)

func TestServerAcceptsClientKeepalive(t *testing.T) {
	cfg := config.NewFromMap(nil)

	srv, err := setServerConfig(logger.NewNop(), nil, nil, cfg)
	require.NoError(t, err)

	assert.True(t, srv.keepalivePolicy.PermitWithoutStream)
	assert.Positive(t, srv.keepalivePolicy.MinTime)

	// the channels this process dials must ping no faster than the server allows
	client := LoadRoutingConfig(cfg).Client
	assert.GreaterOrEqual(t, client.KeepaliveTime, srv.keepalivePolicy.MinTime)
}

func TestServerKeepaliveOverrides(t *testing.T) {
	cfg := config.NewFromMap(map[string]any{
		"GRPC_SERVER_KEEPALIVE_MIN_TIME":              "5s",
		"GRPC_SERVER_KEEPALIVE_PERMIT_WITHOUT_STREAM": false,
		"GRPC_SERVER_KEEPALIVE_TIME":                  "1m",
		"GRPC_SERVER_KEEPALIVE_TIMEOUT":               "3s",
	})

	srv, err := setServerConfig(logger.NewNop(), nil, nil, cfg)
	require.NoError(t, err)

	assert.Equal(t, 5*time.Second, srv.keepalivePolicy.MinTime)
	assert.False(t, srv.keepalivePolicy.PermitWithoutStream)
	assert.Equal(t, time.Minute, srv.keepaliveParams.Time)
	assert.Equal(t, 3*time.Second, srv.keepaliveParams.Timeout)
}
