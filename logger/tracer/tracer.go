package tracer

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"strconv"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	// callersSkip is the number of callers to skip when getting function name.
	callersSkip = 4

	SeverityError = "ERROR"
	SeverityWarn  = "WARN"
	SeverityInfo  = "INFO"
	SeverityDebug = "DEBUG"
)

// NewTraceFromContext attaches a log record to the trace carried by ctx.
//
// With an active span the record becomes a "log.<SEVERITY>" event on it.
// Without one, WARN and ERROR records get a short span of their own, while
// INFO and DEBUG records are returned untouched. Whenever a span is involved
// traceID and spanID are appended to fields.
func NewTraceFromContext(
	ctx context.Context, //nolint:contextcheck // contextcheck: ctx is not nil
	severity string,
	msg string,
	tags []attribute.KeyValue,
	fields ...slog.Attr,
) ([]slog.Attr, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	severity = strings.ToUpper(severity)
	attrs := FieldsToOpenTelemetry(fields...)

	span := trace.SpanFromContext(ctx)
	if span.SpanContext().IsValid() && span.IsRecording() {
		eventAttrs := make([]attribute.KeyValue, 0, len(attrs)+len(tags)+2)
		eventAttrs = append(eventAttrs,
			attribute.String("log.severity", severity),
			attribute.String("log.message", msg),
		)
		eventAttrs = append(eventAttrs, attrs...)
		eventAttrs = append(eventAttrs, tags...)

		span.AddEvent("log."+severity, trace.WithAttributes(eventAttrs...))

		if severity == SeverityError {
			span.SetStatus(codes.Error, msg)
		}

		return withCorrelation(fields, span.SpanContext()), nil
	}

	if severity != SeverityError && severity != SeverityWarn {
		return fields, nil
	}

	_, span = otel.Tracer("logger").Start(ctx, getNameFunc())
	defer span.End()

	span.SetAttributes(
		attribute.String("log.severity", severity),
		attribute.String("log.message", msg),
	)
	span.SetAttributes(attrs...)
	span.SetAttributes(tags...)

	if severity == SeverityError {
		span.SetStatus(codes.Error, msg)
	}

	return withCorrelation(fields, span.SpanContext()), nil
}

func withCorrelation(fields []slog.Attr, sc trace.SpanContext) []slog.Attr {
	out := make([]slog.Attr, 0, len(fields)+2)
	out = append(out, fields...)
	out = append(out,
		slog.String("traceID", sc.TraceID().String()),
		slog.String("spanID", sc.SpanID().String()),
	)

	return out
}

// getNameFunc returns the name of the function calling this package
// for set name of span.
func getNameFunc() string {
	pc := make([]uintptr, 1)
	if n := runtime.Callers(callersSkip, pc); n > 0 {
		if f := runtime.FuncForPC(pc[0]); f != nil {
			return f.Name()
		}
	}

	return "log"
}

// FieldsToOpenTelemetry converts log attributes to OpenTelemetry attributes.
// Keys are prefixed with "log."; "err"/"error" values are exposed as
// exception.* attributes.
func FieldsToOpenTelemetry(fields ...slog.Attr) []attribute.KeyValue {
	if len(fields) == 0 {
		return nil
	}

	out := make([]attribute.KeyValue, 0, len(fields))

	for _, field := range fields {
		if field.Key == "" {
			continue
		}

		value := field.Value.Resolve()

		if field.Key == "err" || field.Key == "error" {
			switch v := value.Any().(type) {
			case error:
				out = append(out,
					attribute.String("exception.message", v.Error()),
					attribute.String("exception.type", fmt.Sprintf("%T", v)),
				)

				continue
			case string:
				out = append(out,
					attribute.String("exception.message", v),
					attribute.String("exception.type", "string"),
				)

				continue
			}
		}

		key := "log." + field.Key

		if field.Key == "is_error" && value.Kind() == slog.KindString {
			if b, err := strconv.ParseBool(value.String()); err == nil {
				out = append(out, attribute.Bool(key, b))
				continue
			}
		}

		switch value.Kind() {
		case slog.KindString:
			out = append(out, attribute.String(key, value.String()))
		case slog.KindBool:
			out = append(out, attribute.Bool(key, value.Bool()))
		case slog.KindInt64:
			out = append(out, attribute.Int64(key, value.Int64()))
		case slog.KindUint64:
			out = append(out, attribute.Int64(key, int64(value.Uint64()))) //nolint:gosec // overflow is acceptable for logs
		case slog.KindFloat64:
			out = append(out, attribute.Float64(key, value.Float64()))
		case slog.KindDuration:
			out = append(out, attribute.String(key, value.Duration().String()))
		case slog.KindTime:
			out = append(out, attribute.String(key, value.Time().String()))
		default:
			out = append(out, attribute.String(key, toString(value.Any())))
		}
	}

	return out
}

// toString converts any value to string.
func toString(v any) string {
	if v == nil {
		return ""
	}

	return fmt.Sprintf("%v", v)
}
