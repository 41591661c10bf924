package logger

import (
	"context"
	"log/slog"
	"time"

	"github.com/shortlink-org/commandbus/logger/tracer"
)

type SlogLogger struct {
	logger *slog.Logger
}

func New(cfg Configuration) (*SlogLogger, error) {
	// Check config and set default values if needed
	err := cfg.Validate()
	if err != nil {
		return nil, err
	}

	// Create slog handler with JSON format
	handler := slog.NewJSONHandler(cfg.Writer, &slog.HandlerOptions{
		Level:     convertLevel(cfg.Level),
		AddSource: true, // Always include source location
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			// Customize timestamp format
			if a.Key == slog.TimeKey && len(groups) == 0 {
				return slog.String(slog.TimeKey, a.Value.Time().Format(cfg.TimeFormat))
			}
			return a
		},
	})

	return &SlogLogger{logger: slog.New(handler)}, nil
}

func (log *SlogLogger) Close() error {
	// slog.Logger doesn't have a Close method, so we just return nil
	return nil
}

// Slog exposes the underlying *slog.Logger for libraries that take one.
func (log *SlogLogger) Slog() *slog.Logger {
	return log.logger
}

// convertLevel converts our log level to slog level
func convertLevel(level int) slog.Level {
	switch level {
	case ERROR_LEVEL:
		return slog.LevelError
	case WARN_LEVEL:
		return slog.LevelWarn
	case INFO_LEVEL:
		return slog.LevelInfo
	case DEBUG_LEVEL:
		return slog.LevelDebug
	default:
		return slog.LevelInfo
	}
}

func (log *SlogLogger) log(level slog.Level, msg string, fields ...slog.Attr) {
	log.logger.LogAttrs(context.Background(), level, msg, fields...)
}

// logWithContext is a helper function to reduce code duplication
func (log *SlogLogger) logWithContext(ctx context.Context, level slog.Level, msg string, fields ...slog.Attr) {
	if ctx == nil {
		ctx = context.Background()
	}

	if !log.logger.Enabled(ctx, level) {
		return
	}

	fields, err := tracer.NewTraceFromContext(ctx, level.String(), msg, nil, fields...)
	if err != nil {
		log.logger.LogAttrs(ctx, slog.LevelError, "Error sending span to OpenTelemetry",
			slog.String("error", err.Error()),
			slog.Time("at", time.Now()),
		)
	}

	log.logger.LogAttrs(ctx, level, msg, fields...)
}
