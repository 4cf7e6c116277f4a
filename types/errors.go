package types

import (
	"errors"
	"fmt"
)

// Error kinds. Use errors.Is against these to classify an error.
var (
	ErrInvalidRequest = errors.New("invalid request")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrForbidden      = errors.New("forbidden")
	ErrNotFound       = errors.New("not found")
	ErrInternal       = errors.New("internal error")
)

// Error carries a human readable message for clients together with its kind.
type Error struct {
	Kind    error
	Message string
	Err     error // underlying cause, never shown to clients
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Is(target error) bool {
	return target == e.Kind
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(kind error, format string, args ...interface{}) error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func InvalidRequest(format string, args ...interface{}) error {
	return newError(ErrInvalidRequest, format, args...)
}

func Unauthorized(format string, args ...interface{}) error {
	return newError(ErrUnauthorized, format, args...)
}

func Forbidden(format string, args ...interface{}) error {
	return newError(ErrForbidden, format, args...)
}

func NotFound(format string, args ...interface{}) error {
	return newError(ErrNotFound, format, args...)
}

// Internal wraps err, keeping it out of the client facing message.
func Internal(err error, message string) error {
	return &Error{Kind: ErrInternal, Message: message, Err: err}
}

// ClientMessage returns the message that may be shown to an API client.
func ClientMessage(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return "internal server error"
}
