// Package ferr defines the error taxonomy the engine raises (spec.md §7)
// and the "reported" bookkeeping that lets main() log a catch-all message
// only for errors that no subsystem already logged.
package ferr

import (
	"fmt"

	"github.com/hashicorp/errwrap"
)

// Kind is the taxonomy of error categories the engine can raise.
type Kind string

const (
	AlreadyConnected Kind = "ALREADY_CONNECTED"
	NotConnected     Kind = "NOT_CONNECTED"
	Overflow         Kind = "OVERFLOW"
	TooLarge         Kind = "TOO_LARGE"
	NoSpace          Kind = "NO_SPACE"
	IO               Kind = "IO"
	InvalidInput     Kind = "INVALID_INPUT"
	Internal         Kind = "INTERNAL"
)

// Error is the engine's structured error type: a Kind, a message, an
// optional wrapped cause, and whether it has already been surfaced through
// the logging subsystem.
type Error struct {
	Kind     Kind
	Message  string
	Cause    error
	Reported bool
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds an unreported error of the given kind.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap builds an unreported error of the given kind around cause, using
// errwrap so the original error remains inspectable with errwrap.Walker.
func Wrap(kind Kind, cause error, format string, args ...any) *Error {
	msg := fmt.Sprintf(format, args...)
	return &Error{Kind: kind, Message: msg, Cause: errwrap.Wrapf(msg+": {{err}}", cause)}
}

// MarkReported returns err with Reported set, so the top-level handler
// knows a human-readable message was already logged for it.
func MarkReported(err error) error {
	var fe *Error
	if asFerr(err, &fe) {
		fe.Reported = true
		return fe
	}
	return &Error{Kind: Internal, Message: err.Error(), Reported: true}
}

// IsReported reports whether err (or a *Error wrapped within it) was
// already logged.
func IsReported(err error) bool {
	var fe *Error
	if asFerr(err, &fe) {
		return fe.Reported
	}
	return false
}

func asFerr(err error, out **Error) bool {
	for err != nil {
		if fe, ok := err.(*Error); ok {
			*out = fe
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
