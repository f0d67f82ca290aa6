// Package errors provides coded domain errors for linktrail.
//
// Per-item and per-source failures are carried as *Error values so that
// scan and import reports can aggregate them by Code:
//
//	if errors.Is(err, errors.ErrSourceTimeout) {
//	    report.TimedOut++
//	}
//
//	var domainErr *errors.Error
//	if errors.As(err, &domainErr) {
//	    failures[domainErr.Code]++
//	}
package errors

import (
	"errors"
	"fmt"
)

// Re-export standard library functions for convenience.
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
	Join   = errors.Join
)

// Code represents a machine-readable error code.
type Code string

// Error codes used throughout the application.
const (
	CodeInvalidURL            Code = "INVALID_URL"
	CodeSourceUnavailable     Code = "SOURCE_UNAVAILABLE"
	CodeSourceTimeout         Code = "SOURCE_TIMEOUT"
	CodeMalformedSourceSchema Code = "MALFORMED_SOURCE_SCHEMA"
	CodeFilterCompile         Code = "FILTER_COMPILE"
	CodeStoreWrite            Code = "STORE_WRITE"
	CodeNotFound              Code = "NOT_FOUND"
	CodeValidation            Code = "VALIDATION"
	CodeConflict              Code = "CONFLICT"
	CodeScanInProgress        Code = "SCAN_IN_PROGRESS"
	CodeInternal              Code = "INTERNAL"
)

// Error is a domain error with a code, message, and optional details.
type Error struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
	cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.cause)
	}
	return e.Message
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.cause
}

// Is reports whether target is an *Error with the same Code.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Code == t.Code
	}
	return false
}

// WithDetails returns a copy of the error carrying details.
func (e *Error) WithDetails(details any) *Error {
	return &Error{Code: e.Code, Message: e.Message, Details: details, cause: e.cause}
}

// WithCause returns a copy of the error wrapping err.
func (e *Error) WithCause(err error) *Error {
	return &Error{Code: e.Code, Message: e.Message, Details: e.Details, cause: err}
}

// Sentinel errors for use with errors.Is().
var (
	ErrInvalidURL            = &Error{Code: CodeInvalidURL, Message: "invalid url"}
	ErrSourceUnavailable     = &Error{Code: CodeSourceUnavailable, Message: "source unavailable"}
	ErrSourceTimeout         = &Error{Code: CodeSourceTimeout, Message: "source timed out"}
	ErrMalformedSourceSchema = &Error{Code: CodeMalformedSourceSchema, Message: "malformed source schema"}
	ErrFilterCompile         = &Error{Code: CodeFilterCompile, Message: "filter does not compile"}
	ErrStoreWrite            = &Error{Code: CodeStoreWrite, Message: "store write failed"}
	ErrNotFound              = &Error{Code: CodeNotFound, Message: "not found"}
	ErrValidation            = &Error{Code: CodeValidation, Message: "validation error"}
	ErrConflict              = &Error{Code: CodeConflict, Message: "conflict"}
	ErrScanInProgress        = &Error{Code: CodeScanInProgress, Message: "scan already in progress"}
	ErrInternal              = &Error{Code: CodeInternal, Message: "internal error"}
)

// New creates an error with the given code and message.
func New(code Code, msg string) *Error {
	return &Error{Code: code, Message: msg}
}

// Newf creates an error with the given code and formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap wraps an error with a code and message.
func Wrap(err error, code Code, msg string) *Error {
	return &Error{Code: code, Message: msg, cause: err}
}

// Wrapf wraps an error with a code and formatted message.
func Wrapf(err error, code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), cause: err}
}

// InvalidURLf creates an invalid url error.
func InvalidURLf(format string, args ...any) *Error {
	return Newf(CodeInvalidURL, format, args...)
}

// NotFoundf creates a not found error.
func NotFoundf(format string, args ...any) *Error {
	return Newf(CodeNotFound, format, args...)
}

// Validation creates a validation error.
func Validation(msg string) *Error {
	return New(CodeValidation, msg)
}

// Validationf creates a validation error with a formatted message.
func Validationf(format string, args ...any) *Error {
	return Newf(CodeValidation, format, args...)
}

// ValidationWithDetails creates a validation error with details.
func ValidationWithDetails(msg string, details any) *Error {
	return &Error{Code: CodeValidation, Message: msg, Details: details}
}

// CodeOf returns the Code of err if it is (or wraps) an *Error, otherwise
// CodeInternal.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}
