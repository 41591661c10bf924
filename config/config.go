/*
Config package
*/
package config

import (
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/segmentio/encoding/json"
	"github.com/spf13/viper"
)

// Logger is our contract for the logger
type Logger interface {
	Warn(msg string, fields ...slog.Attr)
}

// Config is a thin wrapper over viper. Every component registers its own
// defaults before reading a key.
type Config struct {
	v *viper.Viper
}

// New reads .env from the working directory and the process environment.
// A missing .env file is not an error.
func New(log Logger) (*Config, error) {
	v := viper.New()
	v.SetConfigName(".env")
	v.SetConfigType("dotenv")
	v.AddConfigPath(".") // look for config in the working directory
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var typeErr viper.ConfigFileNotFoundError
		if !errors.As(err, &typeErr) {
			return nil, err
		}

		if log != nil {
			log.Warn("The .env file has not been found in the current directory")
		}
	}

	return &Config{v: v}, nil
}

// NewFromMap builds a config with fixed values and no environment lookup.
// Tests and embedded setups use it.
func NewFromMap(values map[string]any) *Config {
	v := viper.New()
	for key, value := range values {
		v.Set(key, value)
	}

	return &Config{v: v}
}

func (c *Config) SetDefault(key string, value any) {
	c.v.SetDefault(key, value)
}

func (c *Config) Set(key string, value any) {
	c.v.Set(key, value)
}

func (c *Config) IsSet(key string) bool {
	return c.v.IsSet(key)
}

func (c *Config) GetString(key string) string {
	return c.v.GetString(key)
}

func (c *Config) GetInt(key string) int {
	return c.v.GetInt(key)
}

func (c *Config) GetInt64(key string) int64 {
	return c.v.GetInt64(key)
}

func (c *Config) GetBool(key string) bool {
	return c.v.GetBool(key)
}

func (c *Config) GetDuration(key string) time.Duration {
	return c.v.GetDuration(key)
}

// GetStringMapString reads a map value. Environment variables can only carry
// strings, so a JSON object (`{"account":"localhost:50051"}`) is accepted too.
func (c *Config) GetStringMapString(key string) map[string]string {
	raw := c.v.Get(key)

	s, ok := raw.(string)
	if !ok {
		return c.v.GetStringMapString(key)
	}

	s = strings.TrimSpace(s)
	if s == "" {
		return map[string]string{}
	}

	out := map[string]string{}
	if err := json.Unmarshal([]byte(s), &out); err == nil {
		return out
	}

	// fallback: account=host:port,product=host:port
	for _, pair := range strings.Split(s, ",") {
		k, val, found := strings.Cut(strings.TrimSpace(pair), "=")
		if found && k != "" {
			out[strings.TrimSpace(k)] = strings.TrimSpace(val)
		}
	}

	return out
}
