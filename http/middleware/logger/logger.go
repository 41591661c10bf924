// Package logger_middleware logs every request served by the monitoring and
// profiling endpoints.
package logger_middleware

import (
	"log/slog"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/otel/trace"

	"github.com/shortlink-org/commandbus/logger"
)

type chilogger struct {
	log logger.Logger
}

// Logger recovers panics and logs each request. Successful requests are
// logged at debug level, since health checks and scrapes arrive every few seconds.
func Logger(log logger.Logger) func(next http.Handler) http.Handler {
	return chilogger{log: log}.middleware
}

func (c chilogger) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		defer func() {
			if rec := recover(); rec != nil {
				c.log.ErrorWithContext(r.Context(), "panic recovered",
					slog.Any("panic", rec),
					slog.String("stack", string(debug.Stack())),
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
				)
				http.Error(ww, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)

				return
			}

			fields := []slog.Attr{
				slog.Int("status", ww.Status()),
				slog.Int("bytes", ww.BytesWritten()),
				slog.Int64("took_ms", time.Since(start).Milliseconds()),
				slog.String("remote", r.RemoteAddr),
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
			}

			if sc := trace.SpanContextFromContext(r.Context()); sc.IsValid() {
				fields = append(fields, slog.String("trace_id", sc.TraceID().String()))
			}

			switch status := ww.Status(); {
			case status >= http.StatusInternalServerError:
				c.log.ErrorWithContext(r.Context(), "request completed", fields...)
			case status >= http.StatusBadRequest:
				c.log.WarnWithContext(r.Context(), "request completed", fields...)
			default:
				c.log.DebugWithContext(r.Context(), "request completed", fields...)
			}
		}()

		next.ServeHTTP(ww, r)
	})
}
