package grpc

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/grpc/status"

	"github.com/shortlink-org/commandbus/cqrs/bus"
	"github.com/shortlink-org/commandbus/cqrs/message"
	"github.com/shortlink-org/commandbus/cqrs/result"
	"github.com/shortlink-org/commandbus/grpc/schema"
)

// GrpcCommandBus sends every command to a remote CommandServer chosen by the
// module of the command type.
//
//nolint:revive // the name mirrors the transport name used by the resolver
type GrpcCommandBus struct {
	routing RoutingConfig
	chain   *bus.Chain
	schema  *schema.Schema
	options []Option

	mu    sync.Mutex
	conns map[string]*grpc.ClientConn
}

// BusOption configures GrpcCommandBus.
type BusOption func(*GrpcCommandBus)

// WithChannelOptions adds client options applied to every channel.
func WithChannelOptions(options ...Option) BusOption {
	return func(b *GrpcCommandBus) {
		b.options = append(b.options, options...)
	}
}

// WithMiddleware sets the client side middleware. The chain is frozen when
// the bus is built.
func WithMiddleware(middlewares ...bus.Middleware) BusOption {
	return func(b *GrpcCommandBus) {
		b.chain = bus.NewChain(middlewares...)
	}
}

// NewGrpcCommandBus builds a client bus. Channels are opened lazily, one per
// address.
func NewGrpcCommandBus(routing RoutingConfig, opts ...BusOption) (*GrpcCommandBus, error) {
	s, err := schema.Load()
	if err != nil {
		return nil, err
	}

	if routing.DefaultTimeout <= 0 {
		routing.DefaultTimeout = bus.DefaultInvokeTimeout
	}

	b := &GrpcCommandBus{
		routing: routing,
		chain:   bus.NewChain(),
		schema:  s,
		options: []Option{WithMeta()},
		conns:   make(map[string]*grpc.ClientConn),
	}

	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}

	return b, nil
}

// Dispatch sends the command and drops the value.
func (b *GrpcCommandBus) Dispatch(ctx context.Context, env message.Envelope[any]) result.Result[struct{}] {
	res := b.run(ctx, env)
	if res.IsErr() {
		return result.Err[struct{}](res.Error())
	}

	return result.Ok(struct{}{}, res.Messages()...)
}

// Invoke sends the command and waits for the remote result within the
// timeout.
func (b *GrpcCommandBus) Invoke(ctx context.Context, env message.Envelope[any], opts ...bus.InvokeOption) result.Result[any] {
	o := bus.ApplyInvokeOptions(b.routing.DefaultTimeout, opts...)

	return bus.RunWithTimeout(ctx, env.Type, o.Timeout, func(ctx context.Context) result.Result[any] {
		return b.run(ctx, env)
	})
}

// Close closes every open channel.
func (b *GrpcCommandBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	var errs []error
	for addr, conn := range b.conns {
		if err := conn.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", addr, err))
		}
		delete(b.conns, addr)
	}

	return errors.Join(errs...)
}

func (b *GrpcCommandBus) run(ctx context.Context, env message.Envelope[any]) result.Result[any] {
	if ctx == nil {
		ctx = context.Background()
	}

	return bus.Safe(ctx, func(ctx context.Context) result.Result[any] {
		return b.chain.Run(ctx, env, b.call)
	})
}

// call is the terminal step: one unary Invoke on the channel for the module.
func (b *GrpcCommandBus) call(ctx context.Context, env message.Envelope[any]) result.Result[any] {
	addr, routeErr := b.routing.AddressFor(env.Type)
	if routeErr != nil {
		return result.Err[any](routeErr)
	}

	conn, err := b.conn(addr)
	if err != nil {
		return result.Err[any](callFailed(env.Type, err.Error(), err))
	}

	req, err := requestFromEnvelope(env)
	if err != nil {
		return result.Err[any](result.Wrap(result.KindSystem,
			fmt.Sprintf("Failed to encode payload of command %s: %v", env.Type, err), err))
	}

	if meta := env.MetaOrEmpty(); !meta.IsZero() {
		ctx = message.ContextWithMeta(ctx, meta)
	}

	callCtx, cancel := context.WithTimeout(ctx, b.routing.DefaultTimeout)
	defer cancel()

	resp := b.schema.NewResponse()
	if err := conn.Invoke(callCtx, schema.FullMethod, b.schema.EncodeRequest(req), resp); err != nil {
		return result.Err[any](callFailed(env.Type, status.Convert(err).Message(), err))
	}

	decoded, err := b.schema.DecodeResponse(resp)
	if err != nil {
		return result.Err[any](callFailed(env.Type, err.Error(), err))
	}

	return resultFromResponse(decoded)
}

func (b *GrpcCommandBus) conn(addr string) (*grpc.ClientConn, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if conn, ok := b.conns[addr]; ok {
		return conn, nil
	}

	conn, err := NewClient(addr, b.routing.Client, b.options...)
	if err != nil {
		return nil, err
	}

	b.conns[addr] = conn

	return conn, nil
}

func callFailed(commandType, msg string, cause error) *result.Error {
	return result.Wrap(result.KindSystem, fmt.Sprintf("gRPC call for command %s failed: %s", commandType, msg), cause)
}
