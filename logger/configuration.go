package logger

import (
	"errors"
	"io"
	"os"
	"time"
)

// ErrInvalidLogLevel is returned for a level outside ERROR_LEVEL..DEBUG_LEVEL.
var ErrInvalidLogLevel = errors.New("logger: level must be between ERROR_LEVEL and DEBUG_LEVEL")

// Log levels, from least to most verbose.
const (
	ERROR_LEVEL = iota //nolint:revive // public API
	WARN_LEVEL         //nolint:revive // public API
	INFO_LEVEL         //nolint:revive // public API
	DEBUG_LEVEL        //nolint:revive // public API
)

// Configuration - options for building a logger
type Configuration struct {
	Writer     io.Writer
	TimeFormat string
	Level      int
}

// Default returns stdout JSON logging at INFO level.
func Default() Configuration {
	return Configuration{
		Writer:     os.Stdout,
		TimeFormat: time.RFC3339Nano,
		Level:      INFO_LEVEL,
	}
}

// Validate checks the level and fills empty fields with defaults.
func (c *Configuration) Validate() error {
	if c.Level < ERROR_LEVEL || c.Level > DEBUG_LEVEL {
		return ErrInvalidLogLevel
	}

	if c.Writer == nil {
		c.Writer = os.Stdout
	}

	if c.TimeFormat == "" {
		c.TimeFormat = time.RFC3339Nano
	}

	return nil
}
