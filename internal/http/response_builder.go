// Package http exposes the budget API over JSON.
//
// This file implements the builder used by every handler to write the
// response envelope.

package http

import (
	"encoding/json"
	"errors"
	"net/http"

	apperrors "familybudget/internal/errors"
	"familybudget/internal/log"
)

// Envelope is the body of every JSON response.
type Envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

// ResponseBuilder provides a fluent API for building JSON responses.
type ResponseBuilder struct {
	statusCode int
	headers    map[string]string
	envelope   Envelope
	noBody     bool
}

// NewResponse creates a new response builder with default 200 status.
func NewResponse() *ResponseBuilder {
	return &ResponseBuilder{
		statusCode: http.StatusOK,
		headers:    make(map[string]string),
		envelope:   Envelope{Success: true},
	}
}

// Status sets the HTTP status code for the response.
func (b *ResponseBuilder) Status(code int) *ResponseBuilder {
	b.statusCode = code
	return b
}

// Header adds a custom header to the response.
func (b *ResponseBuilder) Header(name, value string) *ResponseBuilder {
	b.headers[name] = value
	return b
}

// Data sets the payload of a successful response.
func (b *ResponseBuilder) Data(data any) *ResponseBuilder {
	b.envelope.Data = data
	return b
}

// Fail marks the response as failed with a code, message and optional
// details.
func (b *ResponseBuilder) Fail(code apperrors.Code, message string, details any) *ResponseBuilder {
	b.envelope = Envelope{
		Success: false,
		Error:   message,
		Code:    string(code),
		Details: details,
	}
	return b
}

// Empty drops the body, for 204 responses.
func (b *ResponseBuilder) Empty() *ResponseBuilder {
	b.noBody = true
	return b
}

// Write sends the built response to the http.ResponseWriter.
func (b *ResponseBuilder) Write(w http.ResponseWriter, logger *log.Logger) {
	for name, value := range b.headers {
		w.Header().Set(name, value)
	}
	if b.noBody {
		w.WriteHeader(b.statusCode)
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(b.statusCode)
	if err := json.NewEncoder(w).Encode(b.envelope); err != nil && logger != nil {
		logger.Error("Failed to encode JSON response", log.FieldError, err.Error())
	}
}

// ErrorResponse maps err to its status and envelope. Errors without a code
// become a 500 whose cause is not shown to the client.
func ErrorResponse(err error) *ResponseBuilder {
	var appErr *apperrors.Error
	if !errors.As(err, &appErr) {
		appErr = apperrors.Internal("internal server error")
	}

	b := NewResponse().
		Status(appErr.HTTPStatus()).
		Fail(appErr.Code, appErr.Message, appErr.Details)
	if appErr.Retryable() {
		b.Header("Retry-After", "1")
	}
	return b
}

// BadRequestError creates a 400 response for a malformed request.
func BadRequestError(message string) *ResponseBuilder {
	return NewResponse().
		Status(http.StatusBadRequest).
		Fail(apperrors.CodeValidation, message, nil)
}

// NotFoundError creates a 404 response.
func NotFoundError(message string) *ResponseBuilder {
	return NewResponse().
		Status(http.StatusNotFound).
		Fail(apperrors.CodeNotFound, message, nil)
}

// MethodNotAllowedError creates a 405 response.
func MethodNotAllowedError() *ResponseBuilder {
	return NewResponse().
		Status(http.StatusMethodNotAllowed).
		Fail("METHOD_NOT_ALLOWED", "method not allowed", nil)
}

// TooManyRequestsError creates a 429 response.
func TooManyRequestsError() *ResponseBuilder {
	return NewResponse().
		Status(http.StatusTooManyRequests).
		Fail("THROTTLED", "Request was throttled.", nil)
}
