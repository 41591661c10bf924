package watermill

import (
	"log/slog"
	"maps"
	"slices"

	"github.com/ThreeDotsLabs/watermill"

	"github.com/shortlink-org/commandbus/logger"
)

// loggerAdapter routes Watermill logs into logger.Logger. Trace goes to
// Debug.
type loggerAdapter struct {
	log    logger.Logger
	fields watermill.LogFields
}

// NewWatermillLogger wraps log for Watermill components.
func NewWatermillLogger(log logger.Logger) watermill.LoggerAdapter {
	if log == nil {
		return watermill.NopLogger{}
	}

	return &loggerAdapter{
		log:    log,
		fields: watermill.LogFields{},
	}
}

func (l *loggerAdapter) With(fields watermill.LogFields) watermill.LoggerAdapter {
	return &loggerAdapter{
		log:    l.log,
		fields: l.fields.Add(fields),
	}
}

// attrs merges call fields over the scoped ones, sorted by key.
func (l *loggerAdapter) attrs(fields watermill.LogFields) []slog.Attr {
	merged := l.fields.Add(fields)

	attrs := make([]slog.Attr, 0, len(merged))
	for _, k := range slices.Sorted(maps.Keys(merged)) {
		attrs = append(attrs, slog.Any(k, merged[k]))
	}

	return attrs
}

func (l *loggerAdapter) Error(msg string, err error, fields watermill.LogFields) {
	attrs := l.attrs(fields)
	if err != nil {
		attrs = append(attrs, slog.String("error", err.Error()))
	}

	l.log.Error(msg, attrs...)
}

func (l *loggerAdapter) Info(msg string, fields watermill.LogFields) {
	l.log.Info(msg, l.attrs(fields)...)
}

func (l *loggerAdapter) Debug(msg string, fields watermill.LogFields) {
	l.log.Debug(msg, l.attrs(fields)...)
}

func (l *loggerAdapter) Trace(msg string, fields watermill.LogFields) {
	l.Debug(msg, fields)
}
