package logger_test

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/segmentio/encoding/json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/goleak"

	"github.com/shortlink-org/commandbus/logger"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newBufferLogger(t *testing.T, level int) (*logger.SlogLogger, *bytes.Buffer) {
	t.Helper()

	var buffer bytes.Buffer

	log, err := logger.New(logger.Configuration{
		Level:      level,
		Writer:     &buffer,
		TimeFormat: time.RFC822,
	})
	require.NoError(t, err, "Error init a logger")

	return log, &buffer
}

func TestOutputInfoSlog(t *testing.T) {
	log, buffer := newBufferLogger(t, logger.INFO_LEVEL)

	log.Info("Hello World", slog.String("hello", "world"), slog.Int("first", 1))

	var response map[string]any
	require.NoError(t, json.Unmarshal(buffer.Bytes(), &response), "Error unmarshalling")

	assert.Equal(t, "INFO", response["level"])
	assert.Equal(t, "Hello World", response["msg"])
	assert.Equal(t, "world", response["hello"])
	assert.InDelta(t, float64(1), response["first"], 0)
	assert.Contains(t, response, "source")

	_, err := time.Parse(time.RFC822, response["time"].(string))
	require.NoError(t, err)
}

func TestSetLevel(t *testing.T) {
	log, buffer := newBufferLogger(t, logger.ERROR_LEVEL)

	log.Info("Hello World")
	log.InfoWithContext(context.Background(), "Hello World")

	assert.Empty(t, buffer.String())
}

func TestDefaultConfig(t *testing.T) {
	conf := logger.Default()

	assert.Equal(t, os.Stdout, conf.Writer)
	assert.Equal(t, time.RFC3339Nano, conf.TimeFormat)
	assert.Equal(t, logger.INFO_LEVEL, conf.Level)
}

func TestConfigValidation(t *testing.T) {
	conf := logger.Configuration{
		Level:      999,
		Writer:     io.Discard,
		TimeFormat: time.RFC3339,
	}

	err := conf.Validate()
	require.ErrorIs(t, err, logger.ErrInvalidLogLevel)

	conf.Level = logger.DEBUG_LEVEL
	assert.NoError(t, conf.Validate())
}

func TestLevels(t *testing.T) {
	log, buffer := newBufferLogger(t, logger.DEBUG_LEVEL)

	log.Error("Database error", slog.String("table", "sagas"))
	log.Warn("High memory usage", slog.String("usage", "85%"))
	log.Debug("Processing request", slog.String("method", "Invoke"))

	out := buffer.String()
	require.Contains(t, out, `"level":"ERROR"`)
	require.Contains(t, out, `"table":"sagas"`)
	require.Contains(t, out, `"level":"WARN"`)
	require.Contains(t, out, `"usage":"85%"`)
	require.Contains(t, out, `"level":"DEBUG"`)
	require.Contains(t, out, `"method":"Invoke"`)
}

func TestErrorWithContextAddsTrace(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	log, buffer := newBufferLogger(t, logger.ERROR_LEVEL)

	log.ErrorWithContext(context.Background(), "Request failed", slog.Int("status", 500))

	out := buffer.String()
	require.Contains(t, out, `"msg":"Request failed"`)
	require.Contains(t, out, `"status":500`)
	require.Contains(t, out, `"is_error":true`)
	require.Contains(t, out, `"traceID"`)
	require.Len(t, rec.Ended(), 1)
}

func TestInfoWithContextOnActiveSpan(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	log, buffer := newBufferLogger(t, logger.INFO_LEVEL)

	ctx, span := otel.Tracer("test").Start(context.Background(), "invoke")
	log.InfoWithContext(ctx, "step done", slog.String("step", "account"))
	span.End()

	require.Contains(t, buffer.String(), span.SpanContext().TraceID().String())

	spans := rec.Ended()
	require.Len(t, spans, 1)
	require.NotEmpty(t, spans[0].Events())
	assert.Equal(t, "log.INFO", spans[0].Events()[0].Name)
}
