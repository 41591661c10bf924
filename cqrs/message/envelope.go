package message

import "strings"

// Meta carries call-scoped identifiers. They are forwarded as transport
// headers and attached to every log line written for the command.
type Meta struct {
	CorrelationID string `json:"correlationId,omitempty"`
	UserID        string `json:"userId,omitempty"`
	Source        string `json:"source,omitempty"`
	CommandID     string `json:"commandId,omitempty"`
}

// Envelope is the uniform request wrapper carried through the bus.
// Type is the routing key; handlers are bound to it.
type Envelope[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
	Meta    *Meta  `json:"meta,omitempty"`
}

// New builds an envelope with an optional meta block.
func New[T any](commandType string, payload T, meta *Meta) Envelope[T] {
	return Envelope[T]{
		Type:    commandType,
		Payload: payload,
		Meta:    meta,
	}
}

// Erase converts a typed envelope into the untyped form used by the bus.
func Erase[T any](env Envelope[T]) Envelope[any] {
	return Envelope[any]{
		Type:    env.Type,
		Payload: env.Payload,
		Meta:    env.Meta,
	}
}

// WithMeta returns a copy of the envelope carrying meta. The original envelope
// is left untouched.
func (e Envelope[T]) WithMeta(meta Meta) Envelope[T] {
	e.Meta = &meta
	return e
}

// MetaOrEmpty returns a copy of the meta block, or an empty one.
func (e Envelope[T]) MetaOrEmpty() Meta {
	if e.Meta == nil {
		return Meta{}
	}

	return *e.Meta
}

// Module returns the module segment of the command type.
func (e Envelope[T]) Module() string {
	return ModuleOf(e.Type)
}

// ModuleOf returns the part of a command type before the first dot:
// "account.create" belongs to module "account".
func ModuleOf(commandType string) string {
	module, _, _ := strings.Cut(commandType, ".")
	return module
}
