package bus

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/shortlink-org/commandbus/cqrs/message"
	"github.com/shortlink-org/commandbus/cqrs/result"
	"github.com/shortlink-org/commandbus/logger"
)

// InMemoryCommandBus runs commands in-process.
type InMemoryCommandBus struct {
	registry *Registry
	chain    *Chain
	timeout  time.Duration
	log      logger.Logger
}

// NewInMemoryCommandBus builds a bus. The middleware list is frozen here.
func NewInMemoryCommandBus(opts ...Option) (*InMemoryCommandBus, error) {
	cfg, err := applyOptions(opts)
	if err != nil {
		return nil, err
	}

	return &InMemoryCommandBus{
		registry: cfg.registry,
		chain:    NewChain(cfg.middlewares...),
		timeout:  cfg.timeout,
		log:      cfg.log,
	}, nil
}

// Registry exposes the handler registry of the bus.
func (b *InMemoryCommandBus) Registry() *Registry {
	return b.registry
}

// Register binds handler to commandType.
func (b *InMemoryCommandBus) Register(commandType string, handler Handler) error {
	return b.registry.Register(commandType, handler)
}

// Dispatch runs the pipeline synchronously and drops the value.
func (b *InMemoryCommandBus) Dispatch(ctx context.Context, env message.Envelope[any]) result.Result[struct{}] {
	res := b.run(ctx, env)
	if res.IsErr() {
		return result.Err[struct{}](res.Error())
	}

	return result.Ok(struct{}{}, res.Messages()...)
}

// Invoke runs the pipeline and waits for its result within the timeout.
func (b *InMemoryCommandBus) Invoke(ctx context.Context, env message.Envelope[any], opts ...InvokeOption) result.Result[any] {
	o := ApplyInvokeOptions(b.timeout, opts...)

	return RunWithTimeout(ctx, env.Type, o.Timeout, func(ctx context.Context) result.Result[any] {
		return b.run(ctx, env)
	})
}

func (b *InMemoryCommandBus) run(ctx context.Context, env message.Envelope[any]) result.Result[any] {
	if ctx == nil {
		ctx = context.Background()
	}

	res := Safe(ctx, func(ctx context.Context) result.Result[any] {
		return b.chain.Run(ctx, env, Terminal(b.registry))
	})

	var panicErr *PanicError
	if b.log != nil && res.IsErr() && errors.As(res.Error(), &panicErr) {
		b.log.ErrorWithContext(ctx, "panic recovered in command pipeline",
			slog.String("command_type", env.Type),
			slog.Any("panic", panicErr.Value),
			slog.String("stack", string(panicErr.Stack)),
		)
	}

	return res
}
