package message

import (
	"context"
	"log/slog"
	"os"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

var (
	metadataNamespace = func() string {
		ns := strings.TrimSpace(os.Getenv("COMMANDBUS_METADATA_NAMESPACE"))
		if ns == "" {
			ns = "commandbus"
		}
		return strings.ToLower(ns)
	}()
	MetadataCommandType = metadataKey("command_type")
	MetadataReplyTo     = metadataKey("reply_to")
)

// Wire keys of the meta block. They are used both as gRPC header names and as
// keys of the request meta map.
const (
	HeaderCorrelationID = "x-correlation-id"
	HeaderUserID        = "x-user-id"
	HeaderSource        = "x-source"
	HeaderCommandID     = "x-command-id"
)

func metadataKey(suffix string) string {
	return metadataNamespace + "." + suffix
}

// ToMap flattens meta into a string map, skipping empty values.
func (m Meta) ToMap() map[string]string {
	out := make(map[string]string, 4)
	set := func(k, v string) {
		if v != "" {
			out[k] = v
		}
	}

	set(HeaderCorrelationID, m.CorrelationID)
	set(HeaderUserID, m.UserID)
	set(HeaderSource, m.Source)
	set(HeaderCommandID, m.CommandID)

	return out
}

// MetaFromMap rebuilds meta from a string map. Missing keys are left empty.
func MetaFromMap(src map[string]string) Meta {
	return Meta{
		CorrelationID: src[HeaderCorrelationID],
		UserID:        src[HeaderUserID],
		Source:        src[HeaderSource],
		CommandID:     src[HeaderCommandID],
	}
}

// IsZero reports whether no identifier is set.
func (m Meta) IsZero() bool {
	return m == Meta{}
}

// LogAttrs returns the non-empty identifiers as log attributes.
func (m Meta) LogAttrs() []slog.Attr {
	attrs := make([]slog.Attr, 0, 4)
	add := func(k, v string) {
		if v != "" {
			attrs = append(attrs, slog.String(k, v))
		}
	}

	add("correlation_id", m.CorrelationID)
	add("user_id", m.UserID)
	add("source", m.Source)
	add("command_id", m.CommandID)

	return attrs
}

// InjectTrace propagates the OTEL context of ctx into carrier.
func InjectTrace(ctx context.Context, carrier map[string]string) {
	if ctx == nil || carrier == nil {
		return
	}

	otel.GetTextMapPropagator().Inject(ctx, propagation.MapCarrier(carrier))
}

// ExtractTrace restores the OTEL context carried by carrier into ctx.
func ExtractTrace(ctx context.Context, carrier map[string]string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if len(carrier) == 0 {
		return ctx
	}

	return otel.GetTextMapPropagator().Extract(ctx, propagation.MapCarrier(carrier))
}

// CopyMetadata duplicates src into dst, allocating dst when needed.
func CopyMetadata(dst, src map[string]string) map[string]string {
	if src == nil {
		return dst
	}

	if dst == nil {
		dst = make(map[string]string, len(src))
	}

	for k, v := range src {
		dst[k] = v
	}

	return dst
}
