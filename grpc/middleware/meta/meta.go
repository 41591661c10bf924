// Package meta moves envelope meta between the call context and gRPC headers.
package meta

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"

	"github.com/shortlink-org/commandbus/cqrs/message"
)

// UnaryClientInterceptor appends the meta stored in ctx to outgoing headers.
func UnaryClientInterceptor() grpc.UnaryClientInterceptor {
	return func(
		ctx context.Context,
		method string,
		req, reply any,
		cc *grpc.ClientConn,
		invoker grpc.UnaryInvoker,
		opts ...grpc.CallOption,
	) error {
		return invoker(Outgoing(ctx), method, req, reply, cc, opts...)
	}
}

// UnaryServerInterceptor stores meta read from incoming headers in ctx.
func UnaryServerInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, _ *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if meta := FromIncoming(ctx); !meta.IsZero() {
			ctx = message.ContextWithMeta(ctx, meta)
		}

		return handler(ctx, req)
	}
}

// Outgoing returns ctx with the meta it carries appended as headers.
func Outgoing(ctx context.Context) context.Context {
	meta, ok := message.MetaFromContext(ctx)
	if !ok || meta.IsZero() {
		return ctx
	}

	pairs := make([]string, 0, 8)
	for k, v := range meta.ToMap() {
		pairs = append(pairs, k, v)
	}

	return metadata.AppendToOutgoingContext(ctx, pairs...)
}

// FromIncoming reads meta headers of an incoming call.
func FromIncoming(ctx context.Context) message.Meta {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return message.Meta{}
	}

	first := func(key string) string {
		if values := md.Get(key); len(values) > 0 {
			return values[0]
		}

		return ""
	}

	return message.Meta{
		CorrelationID: first(message.HeaderCorrelationID),
		UserID:        first(message.HeaderUserID),
		Source:        first(message.HeaderSource),
		CommandID:     first(message.HeaderCommandID),
	}
}
