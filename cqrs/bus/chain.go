package bus

import (
	"context"
	"fmt"
	"runtime/debug"
	"sort"
	"sync/atomic"

	"github.com/shortlink-org/commandbus/cqrs/message"
	"github.com/shortlink-org/commandbus/cqrs/result"
)

// DefaultMiddlewareOrder is used for middleware that does not implement Ordered.
const DefaultMiddlewareOrder = 100

const errNextCalledTwice = "Middleware called next() multiple times"

// OrderOf returns the effective order of a middleware.
func OrderOf(mw Middleware) int {
	if o, ok := mw.(Ordered); ok {
		return o.Order()
	}

	return DefaultMiddlewareOrder
}

type orderedMiddleware struct {
	Middleware
	order int
}

func (m orderedMiddleware) Order() int { return m.order }

// WithOrder gives mw an explicit position in the chain.
//
//nolint:ireturn // wrapper keeps the Middleware contract
func WithOrder(order int, mw Middleware) Middleware {
	return orderedMiddleware{Middleware: mw, order: order}
}

// Chain is an immutable, sorted list of middleware.
type Chain struct {
	middlewares []Middleware
}

// NewChain sorts middleware ascending by order. Ties keep registration order.
func NewChain(middlewares ...Middleware) *Chain {
	list := make([]Middleware, 0, len(middlewares))
	for _, mw := range middlewares {
		if mw != nil {
			list = append(list, mw)
		}
	}

	sort.SliceStable(list, func(i, j int) bool {
		return OrderOf(list[i]) < OrderOf(list[j])
	})

	return &Chain{middlewares: list}
}

// Len returns the number of middleware in the chain.
func (c *Chain) Len() int {
	if c == nil {
		return 0
	}

	return len(c.middlewares)
}

// Run executes the chain and finally terminal. Each position may be entered
// once; a second call of the same next returns a system error instead of
// re-running the rest of the chain.
func (c *Chain) Run(ctx context.Context, env message.Envelope[any], terminal Next) result.Result[any] {
	var middlewares []Middleware
	if c != nil {
		middlewares = c.middlewares
	}

	var reached atomic.Int64
	reached.Store(-1)

	var dispatch func(i int) Next
	dispatch = func(i int) Next {
		return func(ctx context.Context, env message.Envelope[any]) result.Result[any] {
			for {
				current := reached.Load()
				if int64(i) <= current {
					return result.Err[any](result.System(errNextCalledTwice))
				}
				if reached.CompareAndSwap(current, int64(i)) {
					break
				}
			}

			if i == len(middlewares) {
				return terminal(ctx, env)
			}

			return middlewares[i].Handle(ctx, env, dispatch(i+1))
		}
	}

	return dispatch(0)(ctx, env)
}

// Safe runs fn and turns a panic into a system error.
func Safe(ctx context.Context, fn func(context.Context) result.Result[any]) (res result.Result[any]) {
	defer func() {
		if r := recover(); r != nil {
			res = result.Err[any](result.Wrap(result.KindSystem, fmt.Sprintf("panic: %v", r), &PanicError{Value: r, Stack: debug.Stack()}))
		}
	}()

	return fn(ctx)
}

// PanicError keeps the recovered value and stack of a handler panic.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// Terminal returns the final pipeline step: look up the handler bound to the
// envelope type and call it.
func Terminal(registry *Registry) Next {
	return func(ctx context.Context, env message.Envelope[any]) result.Result[any] {
		handler, ok := registry.Resolve(env.Type)
		if !ok {
			return result.Err[any](result.NoHandler(env.Type))
		}

		return Safe(ctx, func(ctx context.Context) result.Result[any] {
			return handler.Handle(ctx, env)
		})
	}
}
