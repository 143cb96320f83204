package reqbridge

import (
	"errors"
)

var (
	// ErrClosed is returned when submitting to a [Dispatcher] that has been
	// shut down, or pushing to a closed queue.
	ErrClosed = errors.New("reqbridge: dispatcher closed")

	// ErrInvalidRequest is wrapped by every [RequestError].
	ErrInvalidRequest = errors.New("reqbridge: invalid request")

	// ErrNilHost is returned by [New] if host is nil.
	ErrNilHost = errors.New("reqbridge: host must not be nil")
)

// RequestError is a configuration error, detected synchronously by
// [Dispatcher.Submit]. Requests failing validation are never dispatched.
type RequestError struct {
	Cause error
	Field string
}

// Error implements the error interface.
func (e *RequestError) Error() string {
	msg := ErrInvalidRequest.Error()
	if e.Field != "" {
		msg += ": " + e.Field
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap returns the underlying cause for use with [errors.Is] and [errors.As].
func (e *RequestError) Unwrap() error {
	return e.Cause
}

// Is matches [ErrInvalidRequest].
func (e *RequestError) Is(target error) bool {
	return target == ErrInvalidRequest
}

// InvariantError indicates a broken internal invariant, e.g. an outcome
// arriving when nothing is pending. It is raised via panic, continuing would
// corrupt handle accounting.
type InvariantError struct {
	Message string
}

// Error implements the error interface.
func (e *InvariantError) Error() string {
	if e.Message == "" {
		return "reqbridge: invariant violated"
	}
	return "reqbridge: invariant violated: " + e.Message
}
