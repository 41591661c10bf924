package mongo

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"

	"github.com/shortlink-org/commandbus/config"
)

const disconnectTimeout = 5 * time.Second

// New creates a mongo store configured via cfg.
func New(cfg *config.Config) *Store {
	return &Store{cfg: cfg}
}

// Init - initialize
func (s *Store) Init(ctx context.Context) error {
	var err error

	// Set configuration
	s.setConfig()

	s.client, err = mongo.Connect(options.Client().ApplyURI(s.config.URI))
	if err != nil {
		return &StoreError{
			Op:      "init",
			Err:     err,
			Details: "failed to connect",
		}
	}

	if err = s.client.Ping(ctx, readpref.Primary()); err != nil {
		_ = s.client.Disconnect(context.WithoutCancel(ctx))

		return &StoreError{
			Op:      "init",
			Err:     err,
			Details: "failed to ping",
		}
	}

	// Graceful shutdown
	go func() {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), disconnectTimeout)
		defer cancel()

		_ = s.client.Disconnect(shutdownCtx)
	}()

	return nil
}

// GetConn - get connect
func (s *Store) GetConn() any {
	return s.client
}

// setConfig - set configuration
func (s *Store) setConfig() {
	s.cfg.SetDefault("STORE_MONGODB_URI", "mongodb://localhost:27017/commandbus") // Mongo URI

	s.config = Config{
		URI: s.cfg.GetString("STORE_MONGODB_URI"),
	}
}
