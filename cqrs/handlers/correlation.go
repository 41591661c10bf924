package handlers

import (
	"context"

	"github.com/google/uuid"

	"github.com/shortlink-org/commandbus/cqrs/bus"
	"github.com/shortlink-org/commandbus/cqrs/message"
	"github.com/shortlink-org/commandbus/cqrs/result"
)

// OrderCorrelation places the correlation middleware first.
const OrderCorrelation = 10

// Correlation fills missing CommandID and CorrelationID with fresh UUIDs.
// A new correlation id starts from the command id.
type Correlation struct{}

func (Correlation) Order() int { return OrderCorrelation }

func (Correlation) Handle(ctx context.Context, env message.Envelope[any], next bus.Next) result.Result[any] {
	meta := env.MetaOrEmpty()

	if meta.CommandID == "" {
		meta.CommandID = uuid.NewString()
	}
	if meta.CorrelationID == "" {
		meta.CorrelationID = meta.CommandID
	}

	return next(ctx, env.WithMeta(meta))
}
