package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// ErrorCode represents application error codes
type ErrorCode string

const (
	ErrCodeInvalidInput       ErrorCode = "INVALID_INPUT"
	ErrCodeNotFound           ErrorCode = "NOT_FOUND"
	ErrCodeRateLimit          ErrorCode = "RATE_LIMIT_EXCEEDED"
	ErrCodeInternal           ErrorCode = "INTERNAL_ERROR"
	ErrCodeServiceUnavailable ErrorCode = "SERVICE_UNAVAILABLE"

	// Stream lifecycle classifications
	ErrCodeValidation       ErrorCode = "VALIDATION_ERROR"
	ErrCodeDirectoryLookup  ErrorCode = "DIRECTORY_LOOKUP_ERROR"
	ErrCodeCapacityExceeded ErrorCode = "CAPACITY_EXCEEDED"
	ErrCodeProvisioning     ErrorCode = "PROVISIONING_ERROR"
	ErrCodeStart            ErrorCode = "START_ERROR"
	ErrCodeTeardown         ErrorCode = "TEARDOWN_ERROR"
)

// AppError represents an application error with code and context
type AppError struct {
	Code       ErrorCode
	Message    string
	HTTPStatus int
	Cause      error
	Context    map[string]interface{}
}

// Error implements error interface
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.Cause
}

// Is matches another *AppError by code, so sentinel-style checks work:
// errors.Is(err, &AppError{Code: ErrCodeCapacityExceeded}).
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// WithContext adds context to the error
func (e *AppError) WithContext(key string, value interface{}) *AppError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// NewAppError creates a new application error
func NewAppError(code ErrorCode, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		Context:    make(map[string]interface{}),
	}
}

// WrapError wraps an existing error with application error
func WrapError(err error, code ErrorCode, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		Cause:      err,
		Context:    make(map[string]interface{}),
	}
}

// Common error constructors
func NewPayloadTooLargeError(limit int64) *AppError {
	return NewAppError(ErrCodeInvalidInput, "request body too large", http.StatusRequestEntityTooLarge).
		WithContext("max_bytes", limit)
}

func NewNotFoundError(resource string) *AppError {
	return NewAppError(ErrCodeNotFound, fmt.Sprintf("%s not found", resource), http.StatusNotFound)
}

func NewRateLimitError() *AppError {
	return NewAppError(ErrCodeRateLimit, "rate limit exceeded", http.StatusTooManyRequests)
}

func NewInternalError(message string) *AppError {
	return NewAppError(ErrCodeInternal, message, http.StatusInternalServerError)
}

func NewServiceUnavailableError(message string) *AppError {
	return NewAppError(ErrCodeServiceUnavailable, message, http.StatusServiceUnavailable)
}

// NewValidationError reports a missing or malformed request field.
func NewValidationError(message string) *AppError {
	return NewAppError(ErrCodeValidation, message, http.StatusBadRequest)
}

func NewDirectoryLookupError(cause error) *AppError {
	return WrapError(cause, ErrCodeDirectoryLookup, "meeting directory lookup failed", http.StatusBadGateway)
}

// NewCapacityExceededError is returned when the host already runs limit workers.
func NewCapacityExceededError(load, limit int) *AppError {
	return NewAppError(ErrCodeCapacityExceeded, "stream limit reached, try again later", http.StatusTooManyRequests).
		WithContext("current_load", load).
		WithContext("max_concurrent_streams", limit)
}

func NewProvisioningError(cause error, httpStatus int) *AppError {
	return WrapError(cause, ErrCodeProvisioning, "failed to create stream worker", httpStatus)
}

func NewStartError(cause error) *AppError {
	return WrapError(cause, ErrCodeStart, "failed to start stream worker", http.StatusInternalServerError)
}

func NewTeardownError(cause error) *AppError {
	return WrapError(cause, ErrCodeTeardown, "failed to stop stream worker", http.StatusInternalServerError)
}

// GetAppError extracts AppError from error chain
func GetAppError(err error) *AppError {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr
	}
	return nil
}

// KindOf returns the classification of err, or "" when err carries none.
func KindOf(err error) ErrorCode {
	if appErr := GetAppError(err); appErr != nil {
		return appErr.Code
	}
	return ""
}
