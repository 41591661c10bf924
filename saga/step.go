package saga

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Undo reverts the side effect of one completed step.
type Undo struct {
	Name string
	Fn   func(ctx context.Context) error
}

// NewUndo is a shorthand for building an Undo.
func NewUndo(name string, fn func(ctx context.Context) error) Undo {
	return Undo{Name: name, Fn: fn}
}

// RunStep executes fn and reports its progress as events on the saga span
// found in ctx instead of creating a new span.
func RunStep(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	span := trace.SpanFromContext(ctx)
	traced := span.SpanContext().IsValid()

	if traced {
		span.AddEvent("saga.step", trace.WithAttributes(
			attribute.String("step", name),
			attribute.String("status", "run"),
		))
	}

	err := fn(ctx)
	if err != nil {
		if traced {
			span.RecordError(err)
			span.AddEvent("saga.step.error", trace.WithAttributes(
				attribute.String("step", name),
				attribute.String("status", "reject"),
				attribute.String("error", err.Error()),
			))
		}

		return err
	}

	if traced {
		span.AddEvent("saga.step.done", trace.WithAttributes(
			attribute.String("step", name),
			attribute.String("status", "done"),
		))
	}

	return nil
}

func (u Undo) run(ctx context.Context) error {
	span := trace.SpanFromContext(ctx)
	traced := span.SpanContext().IsValid()

	if traced {
		span.AddEvent("saga.step.reject", trace.WithAttributes(
			attribute.String("step", u.Name),
			attribute.String("status", "reject"),
		))
	}

	if u.Fn == nil {
		return nil
	}

	err := u.Fn(ctx)
	if err != nil {
		if traced {
			span.RecordError(err)
			span.AddEvent("saga.step.reject.error", trace.WithAttributes(
				attribute.String("step", u.Name),
				attribute.String("status", "fail"),
				attribute.String("error", err.Error()),
			))
		}

		return fmt.Errorf("compensation step %s: %w", u.Name, err)
	}

	if traced {
		span.AddEvent("saga.step.rollback", trace.WithAttributes(
			attribute.String("step", u.Name),
			attribute.String("status", "rollback"),
		))
	}

	return nil
}
