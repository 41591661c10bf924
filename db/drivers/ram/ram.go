package ram

import (
	"context"

	"github.com/shortlink-org/commandbus/config"
)

// Store is the in-process store. It owns no connection: repositories built
// on it keep their data in memory.
type Store struct {
	cfg *config.Config
}

// New creates an in-memory store configured via cfg.
func New(cfg *config.Config) *Store {
	return &Store{cfg: cfg}
}

// Init - initialize
func (*Store) Init(_ context.Context) error {
	return nil
}

// GetConn - get connect
func (*Store) GetConn() any {
	return nil
}
