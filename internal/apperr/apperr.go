// Package apperr defines the typed failures returned by marketplace services.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies a failure for the transport layer.
type Kind int

// Kind constants define failure categories.
const (
	KindInternal Kind = iota
	KindValidation
	KindNotFound
	KindInvalidState
	KindConflict
	KindPaymentDeclined
	KindUnauthorized
	KindForbidden
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation_error"
	case KindNotFound:
		return "not_found"
	case KindInvalidState:
		return "invalid_state"
	case KindConflict:
		return "conflict"
	case KindPaymentDeclined:
		return "payment_declined"
	case KindUnauthorized:
		return "unauthorized"
	case KindForbidden:
		return "forbidden"
	default:
		return "internal"
	}
}

// Sentinels for errors.Is matching on kind.
var (
	ErrValidation      = &Error{Kind: KindValidation}
	ErrNotFound        = &Error{Kind: KindNotFound}
	ErrInvalidState    = &Error{Kind: KindInvalidState}
	ErrConflict        = &Error{Kind: KindConflict}
	ErrPaymentDeclined = &Error{Kind: KindPaymentDeclined}
	ErrUnauthorized    = &Error{Kind: KindUnauthorized}
	ErrForbidden       = &Error{Kind: KindForbidden}
)

// Error is a typed service failure.
type Error struct {
	Kind    Kind
	Op      string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	msg := e.Message
	if msg == "" {
		msg = e.Kind.String()
	}
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is matches any *Error of the same kind.
func (e *Error) Is(target error) bool {
	var other *Error
	if !errors.As(target, &other) || other == nil || e == nil {
		return false
	}
	return other.Kind == e.Kind
}

// New builds an error of the given kind.
func New(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Message: fmt.Sprintf(format, args...)}
}

// Wrap builds an error of the given kind around err.
func Wrap(kind Kind, op string, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Message: fmt.Sprintf(format, args...), Err: err}
}

// Validation builds a validation failure.
func Validation(op, format string, args ...any) *Error {
	return New(KindValidation, op, format, args...)
}

// NotFound builds a not-found failure.
func NotFound(op, format string, args ...any) *Error {
	return New(KindNotFound, op, format, args...)
}

// InvalidState builds an invalid-state failure.
func InvalidState(op, format string, args ...any) *Error {
	return New(KindInvalidState, op, format, args...)
}

// Conflict builds a conflict failure.
func Conflict(op, format string, args ...any) *Error {
	return New(KindConflict, op, format, args...)
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var typed *Error
	if errors.As(err, &typed) && typed != nil {
		return typed.Kind
	}
	return KindInternal
}

// MessageOf returns the user-facing message of a typed error.
func MessageOf(err error) string {
	var typed *Error
	if errors.As(err, &typed) && typed != nil && typed.Message != "" {
		return typed.Message
	}
	return "internal server error"
}
