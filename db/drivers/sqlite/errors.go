package sqlite

import "fmt"

// StoreError wraps a failure of the sqlite store.
type StoreError struct {
	Err     error
	Op      string
	Details string
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("sqlite %s: %s: %v", e.Op, e.Details, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}
