package watermill

import (
	"context"

	wmmessage "github.com/ThreeDotsLabs/watermill/message"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/shortlink-org/commandbus/cqrs/message"
)

// InjectTrace writes the OTEL context of ctx into the message metadata using
// the global propagator.
func InjectTrace(ctx context.Context, msg *wmmessage.Message) {
	if msg.Metadata == nil {
		msg.Metadata = make(wmmessage.Metadata)
	}

	message.InjectTrace(ctx, msg.Metadata)
	msg.SetContext(ctx)
}

// ExtractTrace restores the remote span context carried by msg.
func ExtractTrace(parent context.Context, msg *wmmessage.Message) context.Context {
	return message.ExtractTrace(parent, msg.Metadata)
}

// OTelMiddleware starts a consumer span per handled message.
type OTelMiddleware struct {
	tracer trace.Tracer
}

// NewOTELMiddleware creates OTEL middleware with explicit tracer provider.
func NewOTELMiddleware(provider trace.TracerProvider) *OTelMiddleware {
	return &OTelMiddleware{
		tracer: provider.Tracer("commandbus/watermill"),
	}
}

func (o *OTelMiddleware) HandlerMiddleware() wmmessage.HandlerMiddleware {
	return func(h wmmessage.HandlerFunc) wmmessage.HandlerFunc {
		return func(msg *wmmessage.Message) ([]*wmmessage.Message, error) {
			parent := msg.Context()
			if parent == nil {
				parent = context.Background()
			}

			ctx, span := o.tracer.Start(ExtractTrace(parent, msg), "commandbus.consume",
				trace.WithSpanKind(trace.SpanKindConsumer),
				trace.WithAttributes(
					attribute.String("topic", wmmessage.SubscribeTopicFromCtx(parent)),
					attribute.String("command_type", msg.Metadata.Get(message.MetadataCommandType)),
				),
			)
			defer span.End()

			msg.SetContext(ctx)

			msgs, err := h(msg)
			if err != nil {
				span.RecordError(err)
			}

			return msgs, err
		}
	}
}
