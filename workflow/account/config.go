package account

import (
	"time"

	"github.com/shortlink-org/commandbus/config"
	"github.com/shortlink-org/commandbus/cqrs/bus"
)

// Config picks the transport of every dependency.
type Config struct {
	AccountTransport bus.Transport
	ProductTransport bus.Transport
	// Timeout bounds each sub-command.
	Timeout time.Duration
	SagaTTL time.Duration
}

// LoadConfig reads WORKFLOW_* keys.
func LoadConfig(cfg *config.Config) Config {
	cfg.SetDefault("WORKFLOW_ACCOUNT_TRANSPORT", string(bus.TransportMemory))
	cfg.SetDefault("WORKFLOW_PRODUCT_TRANSPORT", string(bus.TransportMemory))
	cfg.SetDefault("WORKFLOW_COMMAND_TIMEOUT", "5s")
	cfg.SetDefault("WORKFLOW_SAGA_TTL", "24h")

	return Config{
		AccountTransport: bus.Transport(cfg.GetString("WORKFLOW_ACCOUNT_TRANSPORT")),
		ProductTransport: bus.Transport(cfg.GetString("WORKFLOW_PRODUCT_TRANSPORT")),
		Timeout:          cfg.GetDuration("WORKFLOW_COMMAND_TIMEOUT"),
		SagaTTL:          cfg.GetDuration("WORKFLOW_SAGA_TTL"),
	}
}
