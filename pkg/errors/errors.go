// Package errors carries stable error codes across the store, service and
// HTTP layers.
package errors

import (
	"context"
	"errors"
	"fmt"
)

// Code is a stable, machine-readable error class.
type Code string

const (
	CodeUnknown      Code = "unknown"
	CodeInvalid      Code = "invalid"
	CodeNotFound     Code = "not_found"
	CodeConflict     Code = "conflict"
	CodeUnauthorized Code = "unauthorized"
	CodeForbidden    Code = "forbidden"
	CodeInternal     Code = "internal"
	CodeUnavailable  Code = "unavailable"
	CodeDeadline     Code = "deadline_exceeded"
)

// AppError pairs a Code and a caller-facing message with an optional cause.
type AppError struct {
	Code    Code
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err == nil {
		return string(e.Code) + ": " + e.Message
	}
	return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
}

func (e *AppError) Unwrap() error { return e.Err }

// New returns an error of code with a fixed message.
func New(code Code, message string) *AppError {
	return &AppError{Code: code, Message: message}
}

// Wrap attaches code and message to err. A context error keeps its own
// class: cancellation and deadlines become CodeDeadline whatever code asked.
func Wrap(err error, code Code, message string) *AppError {
	if err == nil {
		return New(code, message)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		code = CodeDeadline
	}
	return &AppError{Code: code, Message: message, Err: err}
}

func newf(code Code, format string, args []any) *AppError {
	return New(code, fmt.Sprintf(format, args...))
}

func NotFound(format string, args ...any) *AppError  { return newf(CodeNotFound, format, args) }
func Invalid(format string, args ...any) *AppError   { return newf(CodeInvalid, format, args) }
func Conflict(format string, args ...any) *AppError  { return newf(CodeConflict, format, args) }
func Forbidden(format string, args ...any) *AppError { return newf(CodeForbidden, format, args) }

// CodeOf returns the code of the first AppError in err's chain. Bare context
// errors map to CodeDeadline; anything else is CodeUnknown.
func CodeOf(err error) Code {
	var ae *AppError
	switch {
	case errors.As(err, &ae):
		return ae.Code
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return CodeDeadline
	}
	return CodeUnknown
}

// IsCode reports whether err carries code anywhere in its chain.
func IsCode(err error, code Code) bool {
	return CodeOf(err) == code
}

// IsClientFault reports errors caused by the request rather than the
// backend: retrying the same call cannot succeed.
func IsClientFault(err error) bool {
	switch CodeOf(err) {
	case CodeInvalid, CodeNotFound, CodeConflict, CodeUnauthorized, CodeForbidden:
		return true
	}
	return false
}
