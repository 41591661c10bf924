package handlers

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/shortlink-org/commandbus/cqrs/bus"
	"github.com/shortlink-org/commandbus/cqrs/message"
	"github.com/shortlink-org/commandbus/cqrs/result"
)

const (
	OrderTracing = 30

	tracerName = "github.com/shortlink-org/commandbus/cqrs"
)

// Tracing opens one span per command.
type Tracing struct {
	tracer trace.Tracer
}

// NewTracing uses tp, or the global provider when tp is nil.
func NewTracing(tp trace.TracerProvider) *Tracing {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}

	return &Tracing{tracer: tp.Tracer(tracerName)}
}

func (*Tracing) Order() int { return OrderTracing }

func (m *Tracing) Handle(ctx context.Context, env message.Envelope[any], next bus.Next) result.Result[any] {
	meta := env.MetaOrEmpty()

	ctx, span := m.tracer.Start(ctx, "command "+env.Type,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("command.type", env.Type),
			attribute.String("command.module", env.Module()),
			attribute.String("command.id", meta.CommandID),
			attribute.String("command.correlation_id", meta.CorrelationID),
		),
	)
	defer span.End()

	res := next(ctx, env)
	if res.IsErr() {
		span.SetAttributes(attribute.String("command.error_kind", string(res.Error().Kind)))
		span.RecordError(res.Error())
		span.SetStatus(codes.Error, res.Error().Message)
	}

	return res
}
