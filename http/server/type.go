// Package httpserver builds the HTTP servers of the service: monitoring and
// profiling endpoints.
package httpserver

import (
	"time"
)

// Config contains the listen port and the per-request timeout.
type Config struct {
	Port    int
	Timeout time.Duration
}
