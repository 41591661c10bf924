package logger

import (
	"context"
	"io"
	"log/slog"
)

// Logger is the structured logger shared by the bus, its transports and the
// saga engine. The *WithContext variants attach the active trace and, for
// warnings and errors, record the entry on the span.
type Logger interface {
	Debug(msg string, fields ...slog.Attr)
	Info(msg string, fields ...slog.Attr)
	Warn(msg string, fields ...slog.Attr)
	Error(msg string, fields ...slog.Attr)

	DebugWithContext(ctx context.Context, msg string, fields ...slog.Attr)
	InfoWithContext(ctx context.Context, msg string, fields ...slog.Attr)
	WarnWithContext(ctx context.Context, msg string, fields ...slog.Attr)
	ErrorWithContext(ctx context.Context, msg string, fields ...slog.Attr)

	// With scopes fields such as command_type or saga_id to every record.
	With(fields ...slog.Attr) Logger

	io.Closer
}
