// Package grpc_logger logs failed command RPCs with the command type and the
// envelope meta of the call.
//
//nolint:revive // package name uses underscore for consistency with project structure
package grpc_logger

import (
	"context"
	"log/slog"
	"path"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protoreflect"

	"github.com/shortlink-org/commandbus/cqrs/message"
	"github.com/shortlink-org/commandbus/logger"
)

// observe tags the active span with the command type and logs err, if any.
func observe(ctx context.Context, log logger.Logger, method string, req any, err error, start time.Time) {
	commandType := CommandType(req)

	if span := trace.SpanFromContext(ctx); commandType != "" && span.IsRecording() {
		span.SetAttributes(attribute.String("command.type", commandType))
	}

	if err == nil {
		return
	}

	fields := []slog.Attr{
		slog.String("grpc.service", path.Dir(method)[1:]),
		slog.String("grpc.method", path.Base(method)),
		slog.String("code", status.Code(err).String()),
		slog.Int64("duration_us", time.Since(start).Microseconds()),
	}
	if commandType != "" {
		fields = append(fields, slog.String("command_type", commandType))
	}

	meta, _ := message.MetaFromContext(ctx)
	fields = append(fields, meta.LogAttrs()...)

	switch status.Code(err) {
	case codes.Unimplemented, codes.Internal, codes.Unavailable, codes.DataLoss:
		log.WarnWithContext(ctx, err.Error(), fields...)
	case codes.Unknown, codes.DeadlineExceeded, codes.PermissionDenied, codes.Unauthenticated:
		log.InfoWithContext(ctx, err.Error(), fields...)
	default:
		log.DebugWithContext(ctx, err.Error(), fields...)
	}
}

// CommandType reads the "type" field of an InvokeRequest without depending
// on the generated or dynamic message type.
func CommandType(req any) string {
	msg, ok := req.(proto.Message)
	if !ok {
		return ""
	}

	m := msg.ProtoReflect()
	field := m.Descriptor().Fields().ByName("type")
	if field == nil || field.Kind() != protoreflect.StringKind {
		return ""
	}

	return m.Get(field).String()
}
