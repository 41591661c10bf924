// Package bus executes commands through an ordered middleware chain and a
// handler bound to the command type. Several transports implement the same
// CommandBus contract; Resolver picks one per call.
package bus

import (
	"context"

	"github.com/shortlink-org/commandbus/cqrs/message"
	"github.com/shortlink-org/commandbus/cqrs/result"
)

// Next continues the pipeline. A middleware may call it at most once.
type Next func(ctx context.Context, env message.Envelope[any]) result.Result[any]

// Handler executes one command type.
type Handler interface {
	Handle(ctx context.Context, env message.Envelope[any]) result.Result[any]
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, env message.Envelope[any]) result.Result[any]

func (f HandlerFunc) Handle(ctx context.Context, env message.Envelope[any]) result.Result[any] {
	return f(ctx, env)
}

// Middleware wraps handler execution.
type Middleware interface {
	Handle(ctx context.Context, env message.Envelope[any], next Next) result.Result[any]
}

// MiddlewareFunc adapts a function to Middleware.
type MiddlewareFunc func(ctx context.Context, env message.Envelope[any], next Next) result.Result[any]

func (f MiddlewareFunc) Handle(ctx context.Context, env message.Envelope[any], next Next) result.Result[any] {
	return f(ctx, env, next)
}

// Ordered is implemented by middleware that wants a position other than
// DefaultMiddlewareOrder. Lower runs first.
type Ordered interface {
	Order() int
}

// CommandBus is the contract every transport implements.
type CommandBus interface {
	// Dispatch runs the command and discards its value. Errors still propagate.
	Dispatch(ctx context.Context, env message.Envelope[any]) result.Result[struct{}]
	// Invoke runs the command and waits for its value, at most for the
	// configured timeout.
	Invoke(ctx context.Context, env message.Envelope[any], opts ...InvokeOption) result.Result[any]
}
