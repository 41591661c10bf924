package logger

import (
	"io"
)

// NewNop returns a logger that discards everything. Handy as a default for
// optional logger dependencies.
func NewNop() *SlogLogger {
	log, _ := New(Configuration{Writer: io.Discard, Level: ERROR_LEVEL}) //nolint:errcheck // static config
	return log
}
