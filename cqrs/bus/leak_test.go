package bus

import (
	"testing"

	"go.uber.org/goleak"
)

// TestMain runs goleak.VerifyTestMain after all tests in the package,
// so any goroutine leak from any test is reported once at exit.
// See https://github.com/uber-go/goleak
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}
