// Package errors provides a structured error type with wrapping and metadata
package errors

// Always import the project errors package as perr (platform/errors)

import (
	stderrs "errors"
	"fmt"
)

// ErrorCode defines supported error codes used across the engine
// Values are stable for wire compatibility; add sparingly
type ErrorCode uint16

const (
	// ErrorCodeUnknown is for unclassified errors
	ErrorCodeUnknown ErrorCode = iota

	// ErrorCodeFormat is for input that cannot be parsed at all; fails the file
	ErrorCodeFormat

	// ErrorCodeRecord is for a single malformed record; the file continues
	ErrorCodeRecord

	// ErrorCodeRegexTimeout is for a pattern evaluation exceeding its budget
	ErrorCodeRegexTimeout

	// ErrorCodeResourceUnavailable is for a missing monitoring subsystem;
	// the governor degrades to a static budget
	ErrorCodeResourceUnavailable

	// ErrorCodePathSecurity is for traversal or invalid target paths; fails
	// closed before any write
	ErrorCodePathSecurity

	// ErrorCodeWrite is for disk or IO failures mid-write
	ErrorCodeWrite

	// ErrorCodeCache is for cache state load/store failures
	ErrorCodeCache

	// ErrorCodeValidation is for invalid options or rule sets
	ErrorCodeValidation

	// ErrorCodeCanceled is for runs interrupted by the caller
	ErrorCodeCanceled
)

// Outcome is the per-file result reported past the engine boundary
type Outcome string

const (
	// OutcomeSucceeded means every record was processed cleanly
	OutcomeSucceeded Outcome = "succeeded"
	// OutcomePartial means some records errored or the run was interrupted
	OutcomePartial Outcome = "partial"
	// OutcomeFailed means the input was unreadable or unparseable
	OutcomeFailed Outcome = "failed"
)

// OutcomeOf maps an error to the per-file outcome it implies.
// Per-record errors never fail a file; only format, path, and IO errors do
func OutcomeOf(err error) Outcome {
	if err == nil {
		return OutcomeSucceeded
	}
	switch CodeOf(err) {
	case ErrorCodeFormat, ErrorCodePathSecurity, ErrorCodeWrite:
		return OutcomeFailed
	default:
		return OutcomePartial
	}
}

// Error is the structured error type with wrapping and metadata
// msg is human/developer facing; code is machine facing
// op is an optional operation tag; orig is the wrapped cause
type Error struct {
	orig error
	msg  string
	code ErrorCode
	op   string
}

// Error implements the error interface
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.orig != nil {
		return fmt.Sprintf("%s: %v", e.msg, e.orig)
	}
	return e.msg
}

// Unwrap returns the wrapped error, if any
func (e *Error) Unwrap() error { return e.orig }

// Code returns the error code
func (e *Error) Code() ErrorCode { return e.code }

// Op returns the operation label, if set
func (e *Error) Op() string { return e.op }

// Root returns the deepest wrapped cause
func Root(err error) error {
	for err != nil {
		u := stderrs.Unwrap(err)
		if u == nil {
			return err
		}
		err = u
	}
	return nil
}

// CodeOf extracts an ErrorCode from any error, defaulting to Unknown
func CodeOf(err error) ErrorCode {
	if e, ok := As(err); ok {
		return e.code
	}
	return ErrorCodeUnknown
}

// IsCode reports whether err has the given code
func IsCode(err error, code ErrorCode) bool { return CodeOf(err) == code }

// As unwraps and returns (*Error, true) if err is one of ours
func As(err error) (*Error, bool) {
	var e *Error
	if stderrs.As(err, &e) {
		return e, true
	}
	return nil, false
}

// WithOp attaches an operation label to an *Error (copy-on-write).
// If err isn't *Error, returns err unchanged
func WithOp(err error, op string) error {
	if e, ok := As(err); ok {
		c := *e
		c.op = op
		return &c
	}
	return err
}

// Constructors

// New returns a new *Error with the given code and message
func New(code ErrorCode, msg string) error { return &Error{code: code, msg: msg} }

// Newf returns a new *Error with code and formatted message
func Newf(code ErrorCode, format string, a ...any) error {
	return &Error{code: code, msg: fmt.Sprintf(format, a...)}
}

// Wrap returns a new *Error that wraps orig with code and message
func Wrap(orig error, code ErrorCode, msg string) error {
	return &Error{code: code, msg: msg, orig: orig}
}

// Wrapf returns a new *Error that wraps orig with code and formatted message
func Wrapf(orig error, code ErrorCode, format string, a ...any) error {
	return &Error{code: code, msg: fmt.Sprintf(format, a...), orig: orig}
}

// WrapIf wraps only when err != nil (helper for 1-liners)
func WrapIf(err error, code ErrorCode, msg string) error {
	if err == nil {
		return nil
	}
	return Wrap(err, code, msg)
}

// Sugar

// Formatf returns an unparseable-input error
func Formatf(format string, a ...any) error { return Newf(ErrorCodeFormat, format, a...) }

// Recordf returns a malformed-record error
func Recordf(format string, a ...any) error { return Newf(ErrorCodeRecord, format, a...) }

// PathSecurityf returns a path traversal/resolution error
func PathSecurityf(format string, a ...any) error { return Newf(ErrorCodePathSecurity, format, a...) }

// Writef returns a write failure error
func Writef(format string, a ...any) error { return Newf(ErrorCodeWrite, format, a...) }

// Validationf returns an invalid options/rule set error
func Validationf(format string, a ...any) error { return Newf(ErrorCodeValidation, format, a...) }
