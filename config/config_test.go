package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsAndOverrides(t *testing.T) {
	cfg := NewFromMap(map[string]any{"STORE_TYPE": "sqlite"})

	cfg.SetDefault("STORE_TYPE", "ram")
	cfg.SetDefault("SAGA_TTL", "24h")
	cfg.SetDefault("GRPC_CLIENT_MAX_RETRIES", 3)

	assert.Equal(t, "sqlite", cfg.GetString("STORE_TYPE"))
	assert.Equal(t, 24*time.Hour, cfg.GetDuration("SAGA_TTL"))
	assert.Equal(t, 3, cfg.GetInt("GRPC_CLIENT_MAX_RETRIES"))
}

func TestGetStringMapStringFromEnv(t *testing.T) {
	t.Setenv("GRPC_ROUTING_MODULES", `{"account":"localhost:50051","product":"localhost:50052"}`)

	cfg, err := New(nil)
	require.NoError(t, err)

	modules := cfg.GetStringMapString("GRPC_ROUTING_MODULES")
	assert.Equal(t, map[string]string{
		"account": "localhost:50051",
		"product": "localhost:50052",
	}, modules)
}

func TestGetStringMapStringPairs(t *testing.T) {
	cfg := NewFromMap(map[string]any{"MODULES": "account=a:1, product = b:2"})

	assert.Equal(t, map[string]string{"account": "a:1", "product": "b:2"}, cfg.GetStringMapString("MODULES"))
	assert.Empty(t, cfg.GetStringMapString("MISSING"))
}
