package errors

import (
	"fmt"
	"net/http"
	"strings"
)

// ErrorType represents the type of error
type ErrorType string

const (
	// Client errors (4xx equivalent)
	ErrorTypeNotFound     ErrorType = "NOT_FOUND"
	ErrorTypeInvalidInput ErrorType = "INVALID_INPUT"
	ErrorTypeUnauthorized ErrorType = "UNAUTHORIZED"
	ErrorTypeForbidden    ErrorType = "FORBIDDEN"
	ErrorTypeConflict     ErrorType = "CONFLICT"
	ErrorTypeRateLimited  ErrorType = "RATE_LIMITED"

	// Server errors (5xx equivalent)
	ErrorTypeInternal    ErrorType = "INTERNAL"
	ErrorTypeUnavailable ErrorType = "UNAVAILABLE"
	ErrorTypeTimeout     ErrorType = "TIMEOUT"

	// Business logic errors
	ErrorTypeBusinessRule ErrorType = "BUSINESS_RULE"
	ErrorTypeDuplicate    ErrorType = "DUPLICATE"
)

// Error represents a structured error with context
type Error struct {
	Type       ErrorType              `json:"type"`
	Code       string                 `json:"code"`
	Message    string                 `json:"message"`
	Details    map[string]interface{} `json:"details,omitempty"`
	Cause      error                  `json:"-"`
	StatusCode int                    `json:"-"`
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// WithDetails adds details to the error
func (e *Error) WithDetails(key string, value interface{}) *Error {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// WithCause wraps an underlying error
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// New creates a new error
func New(errorType ErrorType, code, message string) *Error {
	e := &Error{
		Type:    errorType,
		Code:    code,
		Message: message,
	}

	switch errorType {
	case ErrorTypeNotFound:
		e.StatusCode = http.StatusNotFound
	case ErrorTypeInvalidInput:
		e.StatusCode = http.StatusBadRequest
	case ErrorTypeUnauthorized:
		e.StatusCode = http.StatusUnauthorized
	case ErrorTypeForbidden:
		e.StatusCode = http.StatusForbidden
	case ErrorTypeConflict, ErrorTypeDuplicate:
		e.StatusCode = http.StatusConflict
	case ErrorTypeRateLimited:
		e.StatusCode = http.StatusTooManyRequests
	case ErrorTypeTimeout:
		e.StatusCode = http.StatusRequestTimeout
	case ErrorTypeUnavailable:
		e.StatusCode = http.StatusServiceUnavailable
	default:
		e.StatusCode = http.StatusInternalServerError
	}

	return e
}

// Common error constructors

func NotFound(resource string, id interface{}) *Error {
	return New(ErrorTypeNotFound, "RESOURCE_NOT_FOUND",
		fmt.Sprintf("%s not found", resource)).
		WithDetails("resource", resource).
		WithDetails("id", id)
}

func InvalidInput(field string, reason string) *Error {
	return New(ErrorTypeInvalidInput, "INVALID_INPUT",
		fmt.Sprintf("Invalid input for field '%s': %s", field, reason)).
		WithDetails("field", field).
		WithDetails("reason", reason)
}

func Unauthorized(reason string) *Error {
	return New(ErrorTypeUnauthorized, "UNAUTHORIZED", reason)
}

func Conflict(resource string, reason string) *Error {
	return New(ErrorTypeConflict, "CONFLICT",
		fmt.Sprintf("Conflict with %s: %s", resource, reason)).
		WithDetails("resource", resource)
}

func Internal(message string) *Error {
	return New(ErrorTypeInternal, "INTERNAL_ERROR", message)
}

func Timeout(operation string) *Error {
	return New(ErrorTypeTimeout, "TIMEOUT",
		fmt.Sprintf("Operation '%s' timed out", operation)).
		WithDetails("operation", operation)
}

func Unavailable(message string) *Error {
	return New(ErrorTypeUnavailable, "UNAVAILABLE", message)
}

func Duplicate(resource string, field string, value interface{}) *Error {
	return New(ErrorTypeDuplicate, "DUPLICATE",
		fmt.Sprintf("%s with %s '%v' already exists", resource, field, value)).
		WithDetails("resource", resource).
		WithDetails("field", field).
		WithDetails("value", value)
}

// FromHTTPStatus converts an HTTP response status into a structured error
func FromHTTPStatus(statusCode int, message string) *Error {
	var errorType ErrorType
	switch statusCode {
	case http.StatusNotFound:
		errorType = ErrorTypeNotFound
	case http.StatusBadRequest:
		errorType = ErrorTypeInvalidInput
	case http.StatusUnauthorized:
		errorType = ErrorTypeUnauthorized
	case http.StatusForbidden:
		errorType = ErrorTypeForbidden
	case http.StatusConflict:
		errorType = ErrorTypeConflict
	case http.StatusTooManyRequests:
		errorType = ErrorTypeRateLimited
	case http.StatusRequestTimeout, http.StatusGatewayTimeout:
		errorType = ErrorTypeTimeout
	case http.StatusServiceUnavailable, http.StatusBadGateway:
		errorType = ErrorTypeUnavailable
	default:
		errorType = ErrorTypeInternal
	}

	e := New(errorType, fmt.Sprintf("HTTP_%d", statusCode), message)
	e.StatusCode = statusCode
	return e
}

// IsType checks if an error is of a specific type
func IsType(err error, errorType ErrorType) bool {
	if e, ok := err.(*Error); ok {
		return e.Type == errorType
	}
	return false
}

// IsRetryable reports whether a request that failed with err is worth retrying.
func IsRetryable(err error) bool {
	if e, ok := err.(*Error); ok {
		switch e.Type {
		case ErrorTypeUnavailable, ErrorTypeTimeout, ErrorTypeRateLimited:
			return true
		}
		return false
	}
	// Unstructured errors are assumed transient (network level)
	return true
}

// GetCode returns the error code if it's our error type
func GetCode(err error) string {
	if e, ok := err.(*Error); ok {
		return e.Code
	}
	return "UNKNOWN"
}

// IndicatesAlreadyDone reports whether an error message says the requested
// action already happened server side ("already accepted", "already exists").
// Such errors are informational: the caller refetches authoritative state
// instead of surfacing a failure.
func IndicatesAlreadyDone(err error) bool {
	if err == nil {
		return false
	}
	if e, ok := err.(*Error); ok && (e.Type == ErrorTypeConflict || e.Type == ErrorTypeDuplicate) {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "already")
}
