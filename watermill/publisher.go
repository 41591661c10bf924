package watermill

import (
	"context"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// instrumentedPublisher opens a producer span per batch, injects it into the
// message metadata and records publish metrics.
type instrumentedPublisher struct {
	next    message.Publisher
	tracer  trace.Tracer
	metrics *Metrics
}

func newInstrumentedPublisher(next message.Publisher, tracer trace.Tracer, metrics *Metrics) *instrumentedPublisher {
	return &instrumentedPublisher{next: next, tracer: tracer, metrics: metrics}
}

func (p *instrumentedPublisher) Publish(topic string, msgs ...*message.Message) error {
	ctx := context.Background()
	var first *message.Message
	if len(msgs) > 0 {
		first = msgs[0]
		if first.Context() != nil {
			ctx = first.Context()
		}
	}

	ctx, span := p.tracer.Start(ctx, "commandbus.publish",
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(
			attribute.String("topic", topic),
			attribute.String("command_type", commandTypeOf(first)),
			attribute.Int("messages", len(msgs)),
		),
	)
	defer span.End()

	for _, msg := range msgs {
		InjectTrace(ctx, msg)
	}

	start := time.Now()
	err := p.next.Publish(topic, msgs...)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}

	p.metrics.record(ctx, p.metrics.published, p.metrics.publishLatency, "publish",
		topic, len(msgs), time.Since(start), err, first)

	return err
}

func (p *instrumentedPublisher) Close() error {
	return p.next.Close()
}
