package handlers

import "errors"

var (
	errNilCommandLogic     = errors.New("cqrs/handlers: command handler logic is nil")
	errHandlerTypeMismatch = errors.New("cqrs/handlers: handler type mismatch")
	errNilRegisterer       = errors.New("cqrs/handlers: prometheus registerer is nil")
)
