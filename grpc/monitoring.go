package grpc

import (
	"context"
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/trace"
)

func exemplarFromContext(ctx context.Context) prometheus.Labels {
	span := trace.SpanContextFromContext(ctx)
	if span.IsSampled() && span.HasTraceID() {
		return prometheus.Labels{"trace_id": span.TraceID().String()}
	}

	return nil
}

// asAlreadyRegistered lets a second channel or server reuse collectors that
// were registered by the first one.
func asAlreadyRegistered(err error, target *prometheus.AlreadyRegisteredError) bool {
	return errors.As(err, target)
}
