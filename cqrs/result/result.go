// Package result defines the Ok/Err union returned by every fallible bus,
// saga and repository operation.
package result

// Result carries either a value (with optional informational messages) or an error.
// The zero value is an Ok result holding the zero value of T.
type Result[T any] struct {
	value    T
	messages []string
	err      *Error
}

// Ok builds a successful result.
func Ok[T any](value T, messages ...string) Result[T] {
	return Result[T]{
		value:    value,
		messages: messages,
	}
}

// Err builds a failed result. A nil error is replaced with a system error so
// that Err never produces an Ok result by accident.
func Err[T any](err *Error) Result[T] {
	if err == nil {
		err = System("unknown error")
	}

	return Result[T]{err: err}
}

// Fail converts any Go error into a failed result, keeping *Error values as-is.
func Fail[T any](err error) Result[T] {
	return Err[T](From(err))
}

// IsOk reports whether the result carries a value.
func (r Result[T]) IsOk() bool {
	return r.err == nil
}

// IsErr reports whether the result carries an error.
func (r Result[T]) IsErr() bool {
	return r.err != nil
}

// Value returns the carried value. It is the zero value for failed results.
func (r Result[T]) Value() T {
	return r.value
}

// Messages returns informational messages attached to an Ok result.
func (r Result[T]) Messages() []string {
	return r.messages
}

// Error returns the carried error or nil.
func (r Result[T]) Error() *Error {
	return r.err
}

// Unwrap returns the result as a conventional Go pair.
func (r Result[T]) Unwrap() (T, error) {
	if r.err != nil {
		var zero T
		return zero, r.err
	}

	return r.value, nil
}

// Map transforms the value of an Ok result and passes errors through unchanged.
func Map[T, R any](r Result[T], fn func(T) R) Result[R] {
	if r.err != nil {
		return Err[R](r.err)
	}

	return Ok(fn(r.value), r.messages...)
}

// Then chains a fallible step after an Ok result.
func Then[T, R any](r Result[T], fn func(T) Result[R]) Result[R] {
	if r.err != nil {
		return Err[R](r.err)
	}

	return fn(r.value)
}
