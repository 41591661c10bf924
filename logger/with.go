package logger

import (
	"log/slog"
	"sort"
)

// With creates a new logger with pre-set fields
//
//nolint:ireturn // returns the Logger contract
func (log *SlogLogger) With(fields ...slog.Attr) Logger {
	return log.WithFields(fields...)
}

// WithFields is the concrete-typed variant of With.
func (log *SlogLogger) WithFields(fields ...slog.Attr) *SlogLogger {
	if len(fields) == 0 {
		return log
	}

	args := make([]any, 0, len(fields))
	for _, field := range fields {
		args = append(args, field)
	}

	return &SlogLogger{logger: log.logger.With(args...)}
}

// WithError creates a new logger with error field
func (log *SlogLogger) WithError(err error) *SlogLogger {
	if err == nil {
		return log
	}

	return log.WithFields(slog.String("error", err.Error()))
}

// WithTags creates a new logger with multiple tags
func (log *SlogLogger) WithTags(tags map[string]string) *SlogLogger {
	if len(tags) == 0 {
		return log
	}

	keys := make([]string, 0, len(tags))
	for k, v := range tags {
		if k != "" && v != "" {
			keys = append(keys, k)
		}
	}

	sort.Strings(keys)

	fields := make([]slog.Attr, 0, len(keys))
	for _, k := range keys {
		fields = append(fields, slog.String(k, tags[k]))
	}

	return log.WithFields(fields...)
}
