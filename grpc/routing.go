package grpc

import (
	"fmt"
	"time"

	"github.com/shortlink-org/commandbus/config"
	"github.com/shortlink-org/commandbus/cqrs/message"
	"github.com/shortlink-org/commandbus/cqrs/result"
)

// Compression values of ChannelConfig.
const (
	CompressionGzip = "gzip"
	CompressionNone = "none"
)

// ChannelConfig tunes every client connection. It is fixed at construction.
type ChannelConfig struct {
	KeepaliveTime    time.Duration
	KeepaliveTimeout time.Duration
	MaxMessageLength int
	Compression      string
	MaxRetries       uint
}

// RoutingConfig maps command modules to server addresses.
type RoutingConfig struct {
	// Modules maps a module name to host:port.
	Modules map[string]string
	// DefaultModule is consulted when a module has no entry of its own.
	DefaultModule  string
	DefaultTimeout time.Duration
	Client         ChannelConfig
}

// LoadRoutingConfig reads GRPC_ROUTING_* and GRPC_CLIENT_* keys.
func LoadRoutingConfig(cfg *config.Config) RoutingConfig {
	cfg.SetDefault("GRPC_ROUTING_MODULES", "")                    // JSON object or k=v list: module -> host:port
	cfg.SetDefault("GRPC_ROUTING_DEFAULT_MODULE", "default")      // module used when a command module is unmapped
	cfg.SetDefault("GRPC_CLIENT_TIMEOUT", "5s")                   // per-call deadline
	cfg.SetDefault("GRPC_CLIENT_KEEPALIVE_TIME", "30s")           // ping interval of idle connections
	cfg.SetDefault("GRPC_CLIENT_KEEPALIVE_TIMEOUT", "10s")        // wait for a ping ack
	cfg.SetDefault("GRPC_CLIENT_MAX_MESSAGE_LENGTH", 4*1024*1024) // bytes, both directions
	cfg.SetDefault("GRPC_CLIENT_COMPRESSION", CompressionGzip)    // gzip or none
	cfg.SetDefault("GRPC_CLIENT_MAX_RETRIES", 3)                  // retries on Unavailable

	retries := cfg.GetInt("GRPC_CLIENT_MAX_RETRIES")
	if retries < 0 {
		retries = 0
	}

	return RoutingConfig{
		Modules:        cfg.GetStringMapString("GRPC_ROUTING_MODULES"),
		DefaultModule:  cfg.GetString("GRPC_ROUTING_DEFAULT_MODULE"),
		DefaultTimeout: cfg.GetDuration("GRPC_CLIENT_TIMEOUT"),
		Client: ChannelConfig{
			KeepaliveTime:    cfg.GetDuration("GRPC_CLIENT_KEEPALIVE_TIME"),
			KeepaliveTimeout: cfg.GetDuration("GRPC_CLIENT_KEEPALIVE_TIMEOUT"),
			MaxMessageLength: cfg.GetInt("GRPC_CLIENT_MAX_MESSAGE_LENGTH"),
			Compression:      cfg.GetString("GRPC_CLIENT_COMPRESSION"),
			MaxRetries:       uint(retries),
		},
	}
}

// AddressFor resolves the server address of a command type: its module
// entry, then the default module entry.
func (r RoutingConfig) AddressFor(commandType string) (string, *result.Error) {
	module := message.ModuleOf(commandType)

	if addr, ok := r.Modules[module]; ok && addr != "" {
		return addr, nil
	}

	if addr, ok := r.Modules[r.DefaultModule]; ok && addr != "" {
		return addr, nil
	}

	return "", result.System(fmt.Sprintf("No address configured for module %s", module))
}
