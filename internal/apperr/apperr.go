// Package apperr holds the error taxonomy shared by every layer. Each kind is a
// sentinel; concrete errors are defined against a kind so that callers can
// match either the specific error or the kind with errors.Is.
package apperr

import (
	"errors"
	"fmt"
)

// Error kinds.
var (
	ErrValidation          = errors.New("validation error")
	ErrNotFound            = errors.New("not found")
	ErrPreconditionFailed  = errors.New("precondition failed")
	ErrForbidden           = errors.New("forbidden")
	ErrConfiguration       = errors.New("configuration error")
	ErrExternalUnavailable = errors.New("external service unavailable")
	ErrOnChainRejected     = errors.New("rejected on chain")
)

var kinds = []error{
	ErrValidation,
	ErrNotFound,
	ErrPreconditionFailed,
	ErrForbidden,
	ErrConfiguration,
	ErrExternalUnavailable,
	ErrOnChainRejected,
}

// Error is a message bound to a kind and an optional cause.
type Error struct {
	kind  error
	msg   string
	cause error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return e.msg + ": " + e.cause.Error()
	}
	return e.msg
}

// Unwrap exposes both the kind and the cause to errors.Is / errors.As.
func (e *Error) Unwrap() []error {
	if e.cause != nil {
		return []error{e.kind, e.cause}
	}
	return []error{e.kind}
}

// Define declares a reusable sentinel of the given kind.
func Define(kind error, msg string) *Error {
	return &Error{kind: kind, msg: msg}
}

// New builds a one-off error of the given kind.
func New(kind error, format string, args ...interface{}) error {
	return &Error{kind: kind, msg: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind and message to an underlying cause.
func Wrap(kind, cause error, format string, args ...interface{}) error {
	return &Error{kind: kind, msg: fmt.Sprintf(format, args...), cause: cause}
}

// KindOf returns the taxonomy kind carried by err, or nil for unclassified errors.
func KindOf(err error) error {
	if err == nil {
		return nil
	}
	for _, k := range kinds {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}
