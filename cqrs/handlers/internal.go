package handlers

import (
	"fmt"
	"reflect"

	"github.com/segmentio/encoding/json"
)

func handlerTypeOf[T any]() reflect.Type {
	return reflect.TypeOf((*T)(nil)).Elem()
}

// typedPayload converts an envelope payload into the handler's command type.
// In-process callers usually pass T itself (or *T); payloads that crossed a
// wire arrive as generic JSON values and are decoded again.
func typedPayload[T any](payload any) (T, error) {
	var zero T

	if payload == nil {
		return zero, nil
	}

	if typed, ok := payload.(T); ok {
		return typed, nil
	}

	// *T handed to a handler of T
	if rv := reflect.ValueOf(payload); rv.Kind() == reflect.Pointer && !rv.IsNil() {
		if typed, ok := rv.Elem().Interface().(T); ok {
			return typed, nil
		}
	}

	handlerType := handlerTypeOf[T]()
	if handlerType.Kind() == reflect.Interface {
		return zero, fmt.Errorf("%w: payload=%T handler=%s", errHandlerTypeMismatch, payload, handlerType)
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return zero, fmt.Errorf("%w: payload=%T handler=%s: %w", errHandlerTypeMismatch, payload, handlerType, err)
	}

	out := zero
	if err := json.Unmarshal(raw, &out); err != nil {
		return zero, fmt.Errorf("%w: payload=%T handler=%s: %w", errHandlerTypeMismatch, payload, handlerType, err)
	}

	return out, nil
}
