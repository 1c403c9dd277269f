// Package errors provides the coded domain errors shared by the ledger,
// the services and the HTTP layer.
//
// Services return *Error values; handlers map them to responses with
// HTTPStatus. Callers decide whether to retry with Retryable:
//
//	item, err := ledger.CreateItem(ctx, userID, in)
//	if errors.Is(err, errors.ErrConcurrency) {
//	    // the whole create may be retried
//	}
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Re-export standard library functions for convenience.
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
	Join   = errors.Join
	New    = errors.New
)

// Code represents a machine-readable error code.
type Code string

const (
	CodeValidation   Code = "VALIDATION"
	CodeNotFound     Code = "NOT_FOUND"
	CodeConcurrency  Code = "CONCURRENCY"
	CodeConsistency  Code = "CONSISTENCY"
	CodeUnauthorized Code = "UNAUTHORIZED"
	CodeForbidden    Code = "FORBIDDEN"
	CodeConflict     Code = "CONFLICT"
	CodeInternal     Code = "INTERNAL"
)

// HTTPStatus returns the HTTP status code for an error code.
func (c Code) HTTPStatus() int {
	switch c {
	case CodeValidation:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	case CodeConcurrency:
		return http.StatusServiceUnavailable
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeForbidden:
		return http.StatusForbidden
	case CodeConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// FieldError describes why a single input field was rejected.
type FieldError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// FieldErrors maps JSON field names to their rejection reason.
type FieldErrors map[string]FieldError

// Add records a field error and returns the map for chaining.
func (f FieldErrors) Add(field, code, message string) FieldErrors {
	f[field] = FieldError{Code: code, Message: message}
	return f
}

// Err returns a validation error carrying the field map, or nil when empty.
func (f FieldErrors) Err() error {
	if len(f) == 0 {
		return nil
	}
	return ValidationWithDetails("validation failed", f)
}

// Error is a domain error with a code, message, and optional details.
type Error struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.cause
}

// Is matches any *Error carrying the same Code.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Code == t.Code
	}
	return false
}

// HTTPStatus returns the HTTP status code for this error.
func (e *Error) HTTPStatus() int {
	return e.Code.HTTPStatus()
}

// Retryable reports whether the whole operation may be retried as is.
func (e *Error) Retryable() bool {
	return e.Code == CodeConcurrency
}

// WithDetails returns a copy of the error with details attached.
func (e *Error) WithDetails(details any) *Error {
	return &Error{Code: e.Code, Message: e.Message, Details: details, cause: e.cause}
}

// Sentinel errors for use with errors.Is().
var (
	ErrValidation   = &Error{Code: CodeValidation, Message: "validation error"}
	ErrNotFound     = &Error{Code: CodeNotFound, Message: "not found"}
	ErrConcurrency  = &Error{Code: CodeConcurrency, Message: "concurrent update, retry"}
	ErrConsistency  = &Error{Code: CodeConsistency, Message: "aggregate consistency fault"}
	ErrUnauthorized = &Error{Code: CodeUnauthorized, Message: "unauthorized"}
	ErrForbidden    = &Error{Code: CodeForbidden, Message: "forbidden"}
	ErrConflict     = &Error{Code: CodeConflict, Message: "conflict"}
	ErrInternal     = &Error{Code: CodeInternal, Message: "internal error"}
)

func Validation(msg string) *Error {
	return &Error{Code: CodeValidation, Message: msg}
}

func Validationf(format string, args ...any) *Error {
	return &Error{Code: CodeValidation, Message: fmt.Sprintf(format, args...)}
}

// ValidationWithDetails creates a validation error with details.
func ValidationWithDetails(msg string, details any) *Error {
	return &Error{Code: CodeValidation, Message: msg, Details: details}
}

// ValidationField creates a validation error for a single field.
func ValidationField(field, code, message string) *Error {
	return FieldErrors{}.Add(field, code, message).Err().(*Error)
}

func NotFound(msg string) *Error {
	return &Error{Code: CodeNotFound, Message: msg}
}

func NotFoundf(format string, args ...any) *Error {
	return &Error{Code: CodeNotFound, Message: fmt.Sprintf(format, args...)}
}

// Concurrency wraps a lock-wait timeout or a busy store.
func Concurrency(cause error) *Error {
	return &Error{Code: CodeConcurrency, Message: "concurrent update, retry", cause: cause}
}

// Consistency reports a state the aggregate transaction should make unreachable.
func Consistency(msg string, cause error) *Error {
	return &Error{Code: CodeConsistency, Message: msg, cause: cause}
}

func Unauthorized(msg string) *Error {
	return &Error{Code: CodeUnauthorized, Message: msg}
}

func Forbidden(msg string) *Error {
	return &Error{Code: CodeForbidden, Message: msg}
}

func Conflict(msg string) *Error {
	return &Error{Code: CodeConflict, Message: msg}
}

func Internal(msg string) *Error {
	return &Error{Code: CodeInternal, Message: msg}
}

// Wrap wraps an error with a code and message.
func Wrap(err error, code Code, msg string) *Error {
	return &Error{Code: code, Message: msg, cause: err}
}

// Wrapf wraps an error with a code and formatted message.
func Wrapf(err error, code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), cause: err}
}

// CodeOf returns the code of the first *Error in err's chain, or CodeInternal.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}
