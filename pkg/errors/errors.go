package errors

import (
	"fmt"
	"net/http"
)

// ErrorType represents different types of application errors
type ErrorType string

const (
	ErrorTypeValidation     ErrorType = "validation"
	ErrorTypeAuthentication ErrorType = "authentication"
	ErrorTypeAuthorization  ErrorType = "authorization"
	ErrorTypeNotFound       ErrorType = "not_found"
	ErrorTypeInternal       ErrorType = "internal"
	ErrorTypeUnavailable    ErrorType = "unavailable"
	ErrorTypeRateLimit      ErrorType = "rate_limit"
)

// Machine-readable error codes surfaced to API clients
const (
	CodeInvalidLimit       = "invalid_limit"
	CodeInvalidFields      = "invalid_fields"
	CodeInvalidRange       = "invalid_range"
	CodeInvalidCursor      = "invalid_cursor"
	CodeInvalidDatetime    = "invalid_datetime"
	CodeWindowTooLarge     = "window_too_large"
	CodeMissingToken       = "missing_token"
	CodeInvalidToken       = "invalid_token"
	CodeTokenNotConfigured = "token_not_configured"
	CodeTooManyRequests    = "too_many_requests"
	CodeInsecureTransport  = "insecure_transport"
	CodeInvalidPhone       = "invalid_phone"
	CodeNoToken            = "no_token"
	CodeUnauthorized       = "unauthorized"
	CodeForbidden          = "forbidden"
	CodeNotFound           = "not_found"
	CodeInternal           = "internal_error"
)

// AppError represents a structured application error
type AppError struct {
	Type       ErrorType              `json:"type"`
	Code       string                 `json:"code"`
	Message    string                 `json:"message"`
	StatusCode int                    `json:"status_code"`
	RetryAfter int                    `json:"retry_after_seconds,omitempty"`
	Internal   error                  `json:"-"`
	Details    map[string]interface{} `json:"details,omitempty"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Internal != nil {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Internal.Error())
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the wrapped error
func (e *AppError) Unwrap() error {
	return e.Internal
}

// WithDetails attaches extra context to the error body
func (e *AppError) WithDetails(details map[string]interface{}) *AppError {
	e.Details = details
	return e
}

// NewValidationError creates a 400 error for bad client input
func NewValidationError(code, message string) *AppError {
	return &AppError{
		Type:       ErrorTypeValidation,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusBadRequest,
	}
}

// NewAuthenticationError creates a new authentication error
func NewAuthenticationError(code, message string) *AppError {
	return &AppError{
		Type:       ErrorTypeAuthentication,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusUnauthorized,
	}
}

// NewAuthorizationError creates a new authorization error
func NewAuthorizationError(message string) *AppError {
	return &AppError{
		Type:       ErrorTypeAuthorization,
		Code:       CodeForbidden,
		Message:    message,
		StatusCode: http.StatusForbidden,
	}
}

// NewUnavailableError creates a 503 for a dependency or configuration the
// server cannot serve without
func NewUnavailableError(code, message string) *AppError {
	return &AppError{
		Type:       ErrorTypeUnavailable,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusServiceUnavailable,
	}
}

// NewNotFoundError creates a new not found error
func NewNotFoundError(message string) *AppError {
	return &AppError{
		Type:       ErrorTypeNotFound,
		Code:       CodeNotFound,
		Message:    message,
		StatusCode: http.StatusNotFound,
	}
}

// NewInternalError creates a new internal server error
func NewInternalError(message string, internal error) *AppError {
	return &AppError{
		Type:       ErrorTypeInternal,
		Code:       CodeInternal,
		Message:    message,
		StatusCode: http.StatusInternalServerError,
		Internal:   internal,
	}
}

// NewRateLimitError creates a 429 carrying the retry hint in seconds
func NewRateLimitError(retryAfter int) *AppError {
	return &AppError{
		Type:       ErrorTypeRateLimit,
		Code:       CodeTooManyRequests,
		Message:    "Too many requests. Try again later.",
		StatusCode: http.StatusTooManyRequests,
		RetryAfter: retryAfter,
	}
}

// ErrorResponse represents the JSON error response
type ErrorResponse struct {
	Success bool `json:"success"`
	Error   struct {
		Type       ErrorType              `json:"type"`
		Code       string                 `json:"code"`
		Message    string                 `json:"message"`
		Status     int                    `json:"status"`
		Details    map[string]interface{} `json:"details,omitempty"`
		RetryAfter *int                   `json:"retry_after_seconds,omitempty"`
		RequestID  string                 `json:"request_id,omitempty"`
		Timestamp  string                 `json:"timestamp"`
	} `json:"error"`
}
