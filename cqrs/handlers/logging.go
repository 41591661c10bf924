package handlers

import (
	"context"
	"log/slog"
	"time"

	"github.com/shortlink-org/commandbus/cqrs/bus"
	"github.com/shortlink-org/commandbus/cqrs/message"
	"github.com/shortlink-org/commandbus/cqrs/result"
	"github.com/shortlink-org/commandbus/logger"
)

const OrderLogging = 20

// Logging writes one record per command, scoped by the envelope meta.
type Logging struct {
	log logger.Logger
}

func NewLogging(log logger.Logger) *Logging {
	return &Logging{log: log}
}

func (*Logging) Order() int { return OrderLogging }

func (m *Logging) Handle(ctx context.Context, env message.Envelope[any], next bus.Next) result.Result[any] {
	if m.log == nil {
		return next(ctx, env)
	}

	attrs := append([]slog.Attr{slog.String("command_type", env.Type)}, env.MetaOrEmpty().LogAttrs()...)
	log := m.log.With(attrs...)

	start := time.Now()
	log.DebugWithContext(ctx, "command started")

	res := next(ctx, env)
	elapsed := slog.Duration("duration", time.Since(start))

	if res.IsOk() {
		log.InfoWithContext(ctx, "command handled", elapsed)
		return res
	}

	failure := []slog.Attr{
		elapsed,
		slog.String("error_kind", string(res.Error().Kind)),
		slog.String("error", res.Error().Message),
	}

	switch res.Error().Kind {
	case result.KindSystem, result.KindTimeout:
		log.ErrorWithContext(ctx, "command failed", failure...)
	default:
		log.WarnWithContext(ctx, "command rejected", failure...)
	}

	return res
}
