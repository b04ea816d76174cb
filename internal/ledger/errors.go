package ledger

import (
	"errors"
	"fmt"
)

// Kind classifies a domain failure so handlers can map it to an HTTP status
// without string matching.
type Kind string

const (
	KindNotFound          Kind = "not_found"
	KindForbidden         Kind = "forbidden"
	KindInvalidState      Kind = "invalid_state"
	KindInsufficientFunds Kind = "insufficient_funds"
	KindConflict          Kind = "conflict"
	KindInvalid           Kind = "validation_error"
)

// Error is a domain failure with a classification. Messages are written for
// the caller: invalid-state errors always name the current state.
type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

func NotFoundf(format string, args ...any) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

func Forbiddenf(format string, args ...any) *Error {
	return &Error{Kind: KindForbidden, Message: fmt.Sprintf(format, args...)}
}

func InvalidStatef(format string, args ...any) *Error {
	return &Error{Kind: KindInvalidState, Message: fmt.Sprintf(format, args...)}
}

func InsufficientFundsf(format string, args ...any) *Error {
	return &Error{Kind: KindInsufficientFunds, Message: fmt.Sprintf(format, args...)}
}

func Conflictf(format string, args ...any) *Error {
	return &Error{Kind: KindConflict, Message: fmt.Sprintf(format, args...)}
}

func Invalidf(format string, args ...any) *Error {
	return &Error{Kind: KindInvalid, Message: fmt.Sprintf(format, args...)}
}

// KindOf extracts the classification from an error chain. Infrastructure
// errors (sql failures and the like) report an empty Kind.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
