// Package domainerrors defines the coded errors the domain engine raises at
// its boundary. Every error carries a Code that transports map onto a status;
// the wrapped cause stays reachable through errors.Is/As for tests and logs.
package domainerrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Code classifies a domain error.
type Code string

const (
	// CodeValidation covers malformed input, unknown or unexposed filter
	// fields, and malformed transport-encoded filters.
	CodeValidation Code = "validation"
	// CodeNotFound means the operation's target id does not exist.
	CodeNotFound Code = "not_found"
	// CodeConflict means a uniqueness constraint was violated.
	CodeConflict Code = "conflict"
	// CodeIntegrity means a foreign-key constraint was violated.
	CodeIntegrity Code = "integrity"
	// CodeInternal is everything unclassified, including storage outages.
	CodeInternal Code = "internal"
)

// Error is a coded domain error.
type Error struct {
	Code    Code
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.cause }

// New builds a coded error with a human-readable message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf builds a coded error with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a cause to a coded error. The cause remains visible to
// errors.Is/As but is never serialized to clients.
func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, cause: cause}
}

// Is reports whether err carries the given code.
func Is(err error, code Code) bool {
	return CodeOf(err) == code
}

// CodeOf extracts the code from err, defaulting to CodeInternal so that
// unclassified failures never leak as client errors.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// Message returns the client-safe message for err. Unclassified errors get a
// generic message; internal detail stays in logs.
func Message(err error) string {
	var de *Error
	if errors.As(err, &de) {
		if de.Code == CodeInternal {
			return "internal error"
		}
		return de.Message
	}
	return "internal error"
}

// HTTPStatus maps a code onto the status the REST layer must return.
func HTTPStatus(code Code) int {
	switch code {
	case CodeValidation, CodeIntegrity:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	case CodeConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
