package grpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/dynamicpb"

	"github.com/shortlink-org/commandbus/cqrs/bus"
	"github.com/shortlink-org/commandbus/cqrs/message"
	"github.com/shortlink-org/commandbus/cqrs/result"
	"github.com/shortlink-org/commandbus/grpc/middleware/meta"
	"github.com/shortlink-org/commandbus/grpc/schema"
)

// CommandService is the server side of commandbus.v1.CommandBus.
type CommandService interface {
	Invoke(ctx context.Context, req *dynamicpb.Message) (*dynamicpb.Message, error)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: schema.ServiceName,
	HandlerType: (*CommandService)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: schema.MethodName,
			Handler:    invokeHandler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: schema.FilePath,
}

func invokeHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := schema.MustLoad().NewRequest()
	if err := dec(in); err != nil {
		return nil, err
	}

	if interceptor == nil {
		return srv.(CommandService).Invoke(ctx, in)
	}

	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: schema.FullMethod,
	}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(CommandService).Invoke(ctx, req.(*dynamicpb.Message))
	}

	return interceptor(ctx, in, info, handler)
}

// RegisterCommandServer registers srv on s.
func RegisterCommandServer(s grpc.ServiceRegistrar, srv CommandService) {
	s.RegisterService(&serviceDesc, srv)
}

// CommandServer answers Invoke with the handlers of a local registry.
type CommandServer struct {
	registry *bus.Registry
	chain    *bus.Chain
	schema   *schema.Schema
}

// NewCommandServer serves the handlers bound in registry. Middleware runs
// around every handler the same way it does on the in-memory bus.
func NewCommandServer(registry *bus.Registry, middlewares ...bus.Middleware) (*CommandServer, error) {
	s, err := schema.Load()
	if err != nil {
		return nil, err
	}

	if registry == nil {
		registry = bus.NewRegistry()
	}

	return &CommandServer{
		registry: registry,
		chain:    bus.NewChain(middlewares...),
		schema:   s,
	}, nil
}

// Registry returns the registry the server resolves handlers from.
func (s *CommandServer) Registry() *bus.Registry {
	return s.registry
}

// Invoke never fails the call for a command failure: handler errors, panics
// and unknown types travel in the err branch of the response.
func (s *CommandServer) Invoke(ctx context.Context, in *dynamicpb.Message) (*dynamicpb.Message, error) {
	req, err := s.schema.DecodeRequest(in)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	headers, ok := message.MetaFromContext(ctx)
	if !ok {
		headers = meta.FromIncoming(ctx)
	}

	env := envelopeFromRequest(req, headers)

	res := bus.Safe(ctx, func(ctx context.Context) result.Result[any] {
		return s.chain.Run(ctx, env, bus.Terminal(s.registry))
	})

	return s.schema.EncodeResponse(responseFromResult(res)), nil
}
