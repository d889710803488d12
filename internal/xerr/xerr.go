// Package xerr defines the flat error taxonomy visible at public boundaries.
//
// Every error carries a kind, a human message, and optionally a wrapped
// cause. Handlers at the tool boundary switch on the kind; internal code
// wraps causes with %w-compatible semantics via errors.Is/As.
package xerr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for public boundaries.
type Kind string

const (
	InvalidArgument Kind = "INVALID_ARGUMENT"
	NotFound        Kind = "NOT_FOUND"
	Conflict        Kind = "CONFLICT"
	Configuration   Kind = "CONFIGURATION"
	Embedding       Kind = "EMBEDDING"
	VectorDB        Kind = "VECTOR_DB"
	Database        Kind = "DATABASE"
	Cache           Kind = "CACHE"
	IO              Kind = "IO"
	Infrastructure  Kind = "INFRASTRUCTURE"
	Highlight       Kind = "HIGHLIGHT"
	Internal        Kind = "INTERNAL"
)

// Error is the structured error type used across mcbridge.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// New creates an error of the given kind.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an error of the given kind wrapping a cause.
func Wrap(kind Kind, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// KindOf extracts the kind from err, or Internal for foreign errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

// Message extracts the human message from err without its cause chain.
// Foreign errors yield a generic message so internals never cross a public
// boundary.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return "internal error"
}

// IsKind reports whether err (or any error it wraps) has the given kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}
