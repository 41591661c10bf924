package handlers

import (
	"context"
	"fmt"

	"github.com/shortlink-org/commandbus/cqrs/bus"
	"github.com/shortlink-org/commandbus/cqrs/message"
	"github.com/shortlink-org/commandbus/cqrs/result"
)

// CommandHandler describes business logic for specific command type.
// Returning a *result.Error keeps its kind; any other error becomes SYSTEM.
type CommandHandler[C, R any] interface {
	Handle(ctx context.Context, cmd C) (R, error)
}

// CommandHandlerFunc adapts a function to CommandHandler.
type CommandHandlerFunc[C, R any] func(ctx context.Context, cmd C) (R, error)

func (f CommandHandlerFunc[C, R]) Handle(ctx context.Context, cmd C) (R, error) {
	return f(ctx, cmd)
}

// NewCommandHandler adapts typed logic to bus.Handler. The envelope meta is
// available to logic through message.MetaFromContext.
//
//nolint:ireturn // bus.Handler is the contract
func NewCommandHandler[C, R any](logic CommandHandler[C, R]) bus.Handler {
	return bus.HandlerFunc(func(ctx context.Context, env message.Envelope[any]) result.Result[any] {
		if logic == nil {
			return result.Fail[any](errNilCommandLogic)
		}

		cmd, err := typedPayload[C](env.Payload)
		if err != nil {
			return result.Err[any](result.Wrap(result.KindSystem,
				fmt.Sprintf("decode command %s: %v", env.Type, err), err))
		}

		ctx = message.ContextWithMeta(ctx, env.MetaOrEmpty())

		out, err := logic.Handle(ctx, cmd)
		if err != nil {
			return result.Fail[any](err)
		}

		return result.Ok[any](out)
	})
}

// Register binds typed logic to commandType on registry.
func Register[C, R any](registry *bus.Registry, commandType string, logic CommandHandler[C, R]) error {
	if logic == nil {
		return errNilCommandLogic
	}

	return registry.Register(commandType, NewCommandHandler(logic))
}
