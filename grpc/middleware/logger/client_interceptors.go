package grpc_logger

import (
	"context"
	"time"

	"google.golang.org/grpc"

	"github.com/shortlink-org/commandbus/logger"
)

// UnaryClientInterceptor logs outgoing command calls that fail on the wire.
func UnaryClientInterceptor(log logger.Logger) grpc.UnaryClientInterceptor {
	return func(
		ctx context.Context,
		method string,
		req, reply any,
		cc *grpc.ClientConn,
		invoker grpc.UnaryInvoker,
		opts ...grpc.CallOption,
	) error {
		start := time.Now()
		err := invoker(ctx, method, req, reply, cc, opts...)
		observe(ctx, log, method, req, err, start)

		return err
	}
}
