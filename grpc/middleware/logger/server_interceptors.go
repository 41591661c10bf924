package grpc_logger

import (
	"context"
	"time"

	grpc_middleware "github.com/grpc-ecosystem/go-grpc-middleware/v2"
	"google.golang.org/grpc"

	"github.com/shortlink-org/commandbus/logger"
)

// UnaryServerInterceptor logs handled calls that return a transport error.
// Command failures travel inside the response and are logged by the bus.
func UnaryServerInterceptor(log logger.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		observe(ctx, log, info.FullMethod, req, err, start)

		return resp, err
	}
}

// StreamServerInterceptor logs failed streams, i.e. reflection requests.
func StreamServerInterceptor(log logger.Logger) grpc.StreamServerInterceptor {
	return func(srv any, stream grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		start := time.Now()
		wrapped := grpc_middleware.WrapServerStream(stream)

		err := handler(srv, wrapped)
		observe(wrapped.Context(), log, info.FullMethod, nil, err, start)

		return err
	}
}
