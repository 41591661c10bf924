package message

import "context"

type metaKey struct{}

// ContextWithMeta stores the meta of the command being handled in ctx.
func ContextWithMeta(ctx context.Context, meta Meta) context.Context {
	return context.WithValue(ctx, metaKey{}, meta)
}

// MetaFromContext returns the meta stored by ContextWithMeta.
func MetaFromContext(ctx context.Context) (Meta, bool) {
	if ctx == nil {
		return Meta{}, false
	}

	meta, ok := ctx.Value(metaKey{}).(Meta)
	return meta, ok
}
