package redis

import (
	"context"
	"strings"

	"github.com/redis/rueidis"
	"github.com/redis/rueidis/rueidisotel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/shortlink-org/commandbus/config"
)

func New(tracer trace.TracerProvider, metrics metric.MeterProvider, cfg *config.Config) *Store {
	return &Store{
		tracer:  tracer,
		metrics: metrics,
		cfg:     cfg,
	}
}

// Init - initialize
func (s *Store) Init(ctx context.Context) error {
	var err error

	// Set configuration
	s.setConfig()

	if len(s.config.Host) == 0 {
		return &StoreError{
			Op:      "init",
			Err:     ErrInvalidURI,
			Details: "redis host configuration is empty",
		}
	}

	var opts []rueidisotel.Option
	if s.tracer != nil {
		opts = append(opts, rueidisotel.WithTracerProvider(s.tracer))
	}
	if s.metrics != nil {
		opts = append(opts, rueidisotel.WithMeterProvider(s.metrics))
	}

	// Connect to Redis
	s.client, err = rueidisotel.NewClient(rueidis.ClientOption{
		InitAddress: s.config.Host,
		Username:    s.config.Username,
		Password:    s.config.Password,
		SelectDB:    0, // use default DB
	}, opts...)
	if err != nil {
		return &StoreError{
			Op:      "init",
			Err:     ErrClientConnection,
			Details: err.Error(),
		}
	}

	// Graceful shutdown
	go func() {
		<-ctx.Done()

		s.client.Close()
	}()

	return nil
}

// GetConn - get connect
func (s *Store) GetConn() any {
	return s.client
}

// setConfig - set configuration
func (s *Store) setConfig() {
	s.cfg.SetDefault("STORE_REDIS_URI", "localhost:6379") // Redis Hosts, comma separated
	s.cfg.SetDefault("STORE_REDIS_USERNAME", "")          // Redis Username
	s.cfg.SetDefault("STORE_REDIS_PASSWORD", "")          // Redis Password

	hosts := make([]string, 0, 1)
	for _, host := range strings.Split(s.cfg.GetString("STORE_REDIS_URI"), ",") {
		if host = strings.TrimSpace(host); host != "" {
			hosts = append(hosts, host)
		}
	}

	s.config = Config{
		Host:     hosts,
		Username: s.cfg.GetString("STORE_REDIS_USERNAME"),
		Password: s.cfg.GetString("STORE_REDIS_PASSWORD"),
	}
}
