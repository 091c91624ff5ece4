package apperr

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindParseFailure Kind = "parse_failure"
	KindInvalidTime  Kind = "invalid_time"
	KindNotFound     Kind = "not_found"
	KindStoreFailure Kind = "store_failure"
)

// Error is the application error carried across package boundaries.
// Delivery failures are not an Error kind; they travel as *delivery.Error.
// Handlers map the Kind to a user-facing message; the wrapped error is
// only ever logged.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches on Kind so sentinel comparisons work with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind && (t.Message == "" || t.Message == e.Message)
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Wrap(err error, kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

func NewParseFailure(message string) *Error {
	return New(KindParseFailure, message)
}

func NewInvalidTime(token string) *Error {
	return New(KindInvalidTime, fmt.Sprintf("invalid time token %q", token))
}

func NewNotFound(resource string, id int64) *Error {
	return New(KindNotFound, fmt.Sprintf("%s %d not found", resource, id))
}

func NewStoreFailure(op string, err error) *Error {
	return Wrap(err, KindStoreFailure, op)
}

// KindOf returns the Kind of the first *Error in err's chain, or "" if none.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return ""
}

func IsParseFailure(err error) bool { return KindOf(err) == KindParseFailure }
func IsInvalidTime(err error) bool  { return KindOf(err) == KindInvalidTime }
func IsNotFound(err error) bool     { return KindOf(err) == KindNotFound }
func IsStoreFailure(err error) bool { return KindOf(err) == KindStoreFailure }
