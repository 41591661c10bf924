package logger

import (
	"context"
	"log/slog"
	"time"

	"github.com/shortlink-org/commandbus/config"
)

// NewDefault builds the service logger from LOG_LEVEL and LOG_TIME_FORMAT.
// Every record carries SERVICE_NAME when it is set.
//
//nolint:ireturn // callers depend on the Logger contract
func NewDefault(_ context.Context, cfg *config.Config) (Logger, func(), error) {
	cfg.SetDefault("LOG_LEVEL", INFO_LEVEL)
	cfg.SetDefault("LOG_TIME_FORMAT", time.RFC3339Nano)

	base, err := New(Configuration{
		Level:      cfg.GetInt("LOG_LEVEL"),
		TimeFormat: cfg.GetString("LOG_TIME_FORMAT"),
	})
	if err != nil {
		return nil, nil, err
	}

	var log Logger = base
	if service := cfg.GetString("SERVICE_NAME"); service != "" {
		log = base.With(slog.String("service", service))
	}

	return log, func() { _ = base.Close() }, nil
}
