// Package domainerrors provides coded errors shared across modules. Codes let
// transport layers map failures to responses without string matching, and keep
// expected outcomes distinguishable from programming errors and faults.
package domainerrors

import (
	"errors"
	"fmt"
)

// Code classifies an error for callers and transport mapping.
type Code string

const (
	// CodeInvalidInput marks caller-misuse errors (bad arguments).
	CodeInvalidInput Code = "invalid_input"
	// CodeNotFound marks lookups for records that do not exist.
	CodeNotFound Code = "not_found"
	// CodeInternal marks unexpected infrastructure failures.
	CodeInternal Code = "internal"
	// CodeInvariantViolation marks detected corruption of domain invariants.
	// These are fatal for the affected aggregate and must surface loudly.
	CodeInvariantViolation Code = "invariant_violation"
)

// Error is a coded domain error, optionally wrapping a cause.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a coded error without a cause.
func New(code Code, message string) error {
	return &Error{Code: code, Message: message}
}

// Newf creates a coded error with a formatted message.
func Newf(code Code, format string, args ...any) error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap annotates a cause with a code and message. Returns nil for a nil cause
// so call sites can wrap unconditionally.
func Wrap(err error, code Code, message string) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: message, Err: err}
}

// CodeOf extracts the code from an error chain. Unknown errors map to
// CodeInternal so nothing leaks through transport unclassified.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// HasCode reports whether any error in the chain carries the given code.
func HasCode(err error, code Code) bool {
	var de *Error
	return errors.As(err, &de) && de.Code == code
}
