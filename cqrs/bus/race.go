package bus

import (
	"context"
	"time"

	"github.com/shortlink-org/commandbus/cqrs/result"
)

// RunWithTimeout races fn against a timer. The first to finish wins.
//
// On timeout the context passed to fn is cancelled, but fn is not waited for:
// a timed out command may still complete its side effects later.
func RunWithTimeout(
	ctx context.Context,
	commandType string,
	timeout time.Duration,
	fn func(context.Context) result.Result[any],
) result.Result[any] {
	if ctx == nil {
		ctx = context.Background()
	}
	if timeout <= 0 {
		timeout = DefaultInvokeTimeout
	}

	runCtx, cancel := context.WithCancel(ctx)

	done := make(chan result.Result[any], 1)
	go func() {
		done <- Safe(runCtx, fn)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case res := <-done:
		cancel()
		return res
	case <-timer.C:
		cancel()
		return result.Err[any](result.Timeout(commandType, timeout.Milliseconds()))
	case <-ctx.Done():
		cancel()
		return result.Err[any](result.Wrap(result.KindSystem, "Command "+commandType+" cancelled: "+ctx.Err().Error(), ctx.Err()))
	}
}
