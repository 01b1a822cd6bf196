package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for store facts. Stores return these (optionally wrapped) so
// the coordinator can translate them into coded errors.
var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("conflict")
	// ErrStale reports that a durable backend moved on since the in-memory state was loaded.
	ErrStale = errors.New("stale state")
	// ErrUnavailable reports that a durable backend could not complete a commit.
	ErrUnavailable = errors.New("backend unavailable")
	// ErrOutcomeUnknown reports that a durable commit was attempted but its result is unknown.
	ErrOutcomeUnknown = errors.New("commit outcome unknown")
)

// Code classifies an error for callers.
type Code string

// Error codes surfaced by the coordinator.
const (
	CodeNotFound        Code = "not_found"
	CodeValidation      Code = "validation_error"
	CodeForbidden       Code = "forbidden"
	CodeConflict        Code = "conflict"
	CodeConsistency     Code = "consistency_failure"
	CodeUnauthenticated Code = "unauthenticated"
	CodeInternal        Code = "internal"
)

// Error is a coded error. Only CodeConsistency is retried by the coordinator;
// every other code is deterministic.
type Error struct {
	Code    Code
	Message string
	Err     error
	// OutcomeUnknown is set when retries were exhausted after a commit may
	// already have reached the backend.
	OutcomeUnknown bool
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// New constructs a coded error.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf constructs a coded error with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to err.
func Wrap(err error, code Code, message string) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// CodeOf returns the code of the first coded error in err's chain, or
// CodeInternal when none is present.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// HasCode reports whether err carries code.
func HasCode(err error, code Code) bool {
	return err != nil && CodeOf(err) == code
}
