// Package errors defines structured error types for the API.
package errors

import (
	"fmt"
	"net/http"
)

// ErrorCode defines specific error types for the API.
type ErrorCode string

const (
	// ErrValidationFailed is returned when input data fails validation
	ErrValidationFailed ErrorCode = "VALIDATION_FAILED"
	// ErrNotFound is returned when a resource is not found
	ErrNotFound ErrorCode = "NOT_FOUND"
	// ErrInstanceNotFound is returned when an instance id is not in the dataset
	ErrInstanceNotFound ErrorCode = "INSTANCE_NOT_FOUND"
	// ErrStorageError is returned when a storage operation fails
	ErrStorageError ErrorCode = "STORAGE_ERROR"
	// ErrInternal is returned when an unexpected server error occurs
	ErrInternal ErrorCode = "INTERNAL_ERROR"
	// ErrRateLimited is returned when a client exceeds the export rate limit
	ErrRateLimited ErrorCode = "RATE_LIMITED"
)

// ErrorWithStatus is an error that includes an HTTP status code and error code.
type ErrorWithStatus interface {
	Error() string
	StatusCode() int
	Code() ErrorCode
	Details() map[string]any
}

// APIError is a concrete error type with status code, code, and optional details.
type APIError struct {
	statusCode int
	code       ErrorCode
	message    string
	details    map[string]any
	wrappedErr error
}

// New creates a new APIError with the given status code and message.
func New(statusCode int, code ErrorCode, message string) *APIError {
	return &APIError{
		statusCode: statusCode,
		code:       code,
		message:    message,
	}
}

// WithDetail adds a single detail to the error.
func (e *APIError) WithDetail(key string, value any) *APIError {
	if e.details == nil {
		e.details = make(map[string]any)
	}
	e.details[key] = value
	return e
}

// Wrap wraps an underlying error.
func (e *APIError) Wrap(err error) *APIError {
	e.wrappedErr = err
	return e
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.wrappedErr != nil {
		return fmt.Sprintf("%s: %v", e.message, e.wrappedErr)
	}
	return e.message
}

// StatusCode returns the HTTP status code.
func (e *APIError) StatusCode() int {
	return e.statusCode
}

// Code returns the error code.
func (e *APIError) Code() ErrorCode {
	return e.code
}

// Details returns additional error details.
func (e *APIError) Details() map[string]any {
	return e.details
}

// Unwrap returns the wrapped error if any.
func (e *APIError) Unwrap() error {
	return e.wrappedErr
}

// NotFound creates a 404 Not Found error.
func NotFound(resource string) *APIError {
	return New(http.StatusNotFound, ErrNotFound, fmt.Sprintf("%s not found", resource))
}

// InstanceNotFound creates a 404 error for an unknown instance id.
func InstanceNotFound(id string) *APIError {
	return New(http.StatusNotFound, ErrInstanceNotFound, fmt.Sprintf("instance %s not found", id)).WithDetail("instanceId", id)
}

// BadRequest creates a 400 Bad Request error.
func BadRequest(message string) *APIError {
	return New(http.StatusBadRequest, ErrValidationFailed, message)
}

// Internal returns a 500 Internal Server Error.
func Internal(message string) *APIError {
	return New(http.StatusInternalServerError, ErrInternal, message)
}

// InternalWithError creates a 500 error wrapping an underlying error.
func InternalWithError(message string, err error) *APIError {
	return Internal(message).Wrap(err)
}

// Storage creates a 500 error for a failed storage operation.
func Storage(operation string, err error) *APIError {
	return New(http.StatusInternalServerError, ErrStorageError, operation).Wrap(err)
}

// RateLimited creates a 429 Too Many Requests error.
func RateLimited() *APIError {
	return New(http.StatusTooManyRequests, ErrRateLimited, "Too many export requests")
}
