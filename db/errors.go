package db

import "errors"

// ErrGetConnection is returned when a store does not expose the expected client.
var ErrGetConnection = errors.New("failed to get connection")

// ErrUnknownStoreType is returned for an unsupported STORE_TYPE.
var ErrUnknownStoreType = errors.New("unknown store type")
