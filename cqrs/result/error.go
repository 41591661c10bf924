package result

import (
	"errors"
	"fmt"
)

// Kind classifies an error. Handlers may return their own domain kinds;
// those are forwarded unchanged across every transport.
type Kind string

const (
	KindNoHandler Kind = "NO_HANDLER"
	KindTimeout   Kind = "TIMEOUT"
	KindSystem    Kind = "SYSTEM"
	KindNotFound  Kind = "NOT_FOUND"
)

// Error is the structured error carried by a failed Result.
type Error struct {
	Kind    Kind   `json:"kind"`
	Message string `json:"message"`

	cause error
}

// New creates an error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf creates an error of the given kind with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an error that keeps cause reachable through errors.Is/As.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, cause: cause}
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}

	return e.Message
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}

	return e.cause
}

// Is matches another *Error by kind and message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || e == nil || t == nil {
		return false
	}

	return e.Kind == t.Kind && e.Message == t.Message
}

// NoHandler reports that no handler is bound to the command type.
func NoHandler(commandType string) *Error {
	return Newf(KindNoHandler, "No handler registered for command %s", commandType)
}

// Timeout reports that a pipeline exceeded its budget.
func Timeout(commandType string, budgetMs int64) *Error {
	return Newf(KindTimeout, "Command %s timed out after %dms", commandType, budgetMs)
}

// System reports a generic failure.
func System(message string) *Error {
	return New(KindSystem, message)
}

// NotFound reports a repository miss.
func NotFound(message string) *Error {
	return New(KindNotFound, message)
}

// From converts a Go error into *Error. Existing *Error values anywhere in the
// chain are returned as-is; everything else becomes a system error.
func From(err error) *Error {
	if err == nil {
		return nil
	}

	var target *Error
	if errors.As(err, &target) {
		return target
	}

	return Wrap(KindSystem, err.Error(), err)
}

// IsKind reports whether err carries an *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	var target *Error
	if !errors.As(err, &target) {
		return false
	}

	return target.Kind == kind
}
