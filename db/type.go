package db

import (
	"context"

	"github.com/shortlink-org/commandbus/config"
)

// DB - common interface of db
type DB interface {
	Init(ctx context.Context) error
	GetConn() any
}

// Store abstract type
type Store struct {
	DB

	typeStore string
	cfg       *config.Config
}

// Type returns the selected STORE_TYPE.
func (s *Store) Type() string {
	return s.typeStore
}
