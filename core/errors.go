package core

import (
	"context"
	"errors"
	"fmt"
)

// Code identifies a class of failure across the pipeline.
type Code string

const (
	CodeUnknown          Code = "unknown"
	CodeInvalidInput     Code = "invalid_input"
	CodeProvider         Code = "provider"
	CodeModel            Code = "model"
	CodeParse            Code = "parse"
	CodeValidation       Code = "validation"
	CodeActionHandler    Code = "action_handler"
	CodeNotFound         Code = "not_found"
	CodeDuplicate        Code = "duplicate"
	CodePlanStep         Code = "plan_step"
	CodeInvalidPlan      Code = "invalid_plan"
	CodeTimeout          Code = "timeout"
	CodeCancelled        Code = "cancelled"
	CodeRetriesExhausted Code = "retries_exhausted"
	CodeReplanLimit      Code = "replan_limit"
	CodeStorage          Code = "storage"
)

// Fatal reports whether errors with this code abort the caller's operation.
// Only malformed input is fatal; everything else degrades.
func (c Code) Fatal() bool {
	return c == CodeInvalidInput
}

// Error is a coded error. Source names the component (provider, action,
// step) the error originated from, when known.
type Error struct {
	Code    Code
	Source  string
	Message string
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Message

	switch {
	case e.Source != "" && msg != "":
		msg = fmt.Sprintf("%s %q: %s", e.Code, e.Source, msg)
	case e.Source != "":
		msg = fmt.Sprintf("%s %q", e.Code, e.Source)
	case msg == "":
		msg = string(e.Code)
	}

	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}

	return msg
}

// Unwrap exposes the cause.
func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error carrying the same code, so sentinel values work with
// errors.Is.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}

	return t.Code == e.Code && (t.Source == "" || t.Source == e.Source)
}

// NewError creates a coded error.
func NewError(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Errorf creates a coded error with a formatted message.
func Errorf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and source to err. Context errors keep their own
// timeout or cancellation code.
func Wrap(code Code, source string, err error) *Error {
	if err == nil {
		return nil
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		code = CodeTimeout
	case errors.Is(err, context.Canceled):
		code = CodeCancelled
	}

	return &Error{Code: code, Source: source, Err: err}
}

// CodeOf extracts the code from err. It returns "" for nil.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}

	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return CodeTimeout
	case errors.Is(err, context.Canceled):
		return CodeCancelled
	}

	return CodeUnknown
}

// Sentinels for errors.Is checks.
var (
	ErrInvalidInput     = &Error{Code: CodeInvalidInput}
	ErrProvider         = &Error{Code: CodeProvider}
	ErrModel            = &Error{Code: CodeModel}
	ErrParse            = &Error{Code: CodeParse}
	ErrValidation       = &Error{Code: CodeValidation}
	ErrActionHandler    = &Error{Code: CodeActionHandler}
	ErrNotFound         = &Error{Code: CodeNotFound}
	ErrDuplicate        = &Error{Code: CodeDuplicate}
	ErrPlanStep         = &Error{Code: CodePlanStep}
	ErrInvalidPlan      = &Error{Code: CodeInvalidPlan}
	ErrTimeout          = &Error{Code: CodeTimeout}
	ErrCancelled        = &Error{Code: CodeCancelled}
	ErrRetriesExhausted = &Error{Code: CodeRetriesExhausted}
	ErrReplanLimit      = &Error{Code: CodeReplanLimit}
	ErrStorage          = &Error{Code: CodeStorage}
)
