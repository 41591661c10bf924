package mongo

import (
	"fmt"

	"go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/shortlink-org/commandbus/config"
)

// Config - config
type Config struct {
	URI string
}

// Store implementation of db interface
type Store struct {
	client *mongo.Client
	config Config
	cfg    *config.Config
}

// StoreError wraps a failure of the mongo store.
type StoreError struct {
	Err     error
	Op      string
	Details string
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("mongo %s: %s: %v", e.Op, e.Details, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}
