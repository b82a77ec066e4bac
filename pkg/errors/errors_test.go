package errors

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"
)

func TestAppError_Error(t *testing.T) {
	err := NewAppError(ErrCodeInvalidInput, "test error", 400)
	expected := "INVALID_INPUT: test error"
	if err.Error() != expected {
		t.Errorf("Error() = %v, want %v", err.Error(), expected)
	}
}

func TestAppError_WithCause(t *testing.T) {
	originalErr := errors.New("original error")
	err := WrapError(originalErr, ErrCodeInternal, "wrapped error", 500)

	if err.Cause != originalErr {
		t.Errorf("Cause = %v, want %v", err.Cause, originalErr)
	}
	if !strings.Contains(err.Error(), "original error") {
		t.Errorf("Error() should contain cause, got: %v", err.Error())
	}
	if !errors.Is(err, originalErr) {
		t.Error("errors.Is should reach the cause")
	}
}

func TestAppError_WithContext(t *testing.T) {
	err := NewAppError(ErrCodeInvalidInput, "test error", 400)
	err.WithContext("field", "value").WithContext("count", 42)

	if err.Context["field"] != "value" {
		t.Errorf("Context[field] = %v, want 'value'", err.Context["field"])
	}
	if err.Context["count"] != 42 {
		t.Errorf("Context[count] = %v, want 42", err.Context["count"])
	}
}

func TestLifecycleConstructors(t *testing.T) {
	cause := errors.New("boom")
	tests := []struct {
		name   string
		err    *AppError
		code   ErrorCode
		status int
	}{
		{"validation", NewValidationError("meetingId is required"), ErrCodeValidation, http.StatusBadRequest},
		{"directory", NewDirectoryLookupError(cause), ErrCodeDirectoryLookup, http.StatusBadGateway},
		{"capacity", NewCapacityExceededError(5, 5), ErrCodeCapacityExceeded, http.StatusTooManyRequests},
		{"provisioning", NewProvisioningError(cause, http.StatusConflict), ErrCodeProvisioning, http.StatusConflict},
		{"start", NewStartError(cause), ErrCodeStart, http.StatusInternalServerError},
		{"teardown", NewTeardownError(cause), ErrCodeTeardown, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Code != tt.code {
				t.Errorf("Code = %v, want %v", tt.err.Code, tt.code)
			}
			if tt.err.HTTPStatus != tt.status {
				t.Errorf("HTTPStatus = %v, want %v", tt.err.HTTPStatus, tt.status)
			}
		})
	}
}

func TestCapacityExceededContext(t *testing.T) {
	err := NewCapacityExceededError(3, 3)
	if err.Context["current_load"] != 3 || err.Context["max_concurrent_streams"] != 3 {
		t.Errorf("unexpected context: %v", err.Context)
	}
}

func TestCommonConstructors(t *testing.T) {
	tests := []struct {
		name   string
		err    *AppError
		code   ErrorCode
		status int
	}{
		{"payload", NewPayloadTooLargeError(1024), ErrCodeInvalidInput, http.StatusRequestEntityTooLarge},
		{"not found", NewNotFoundError("route"), ErrCodeNotFound, http.StatusNotFound},
		{"rate limit", NewRateLimitError(), ErrCodeRateLimit, http.StatusTooManyRequests},
		{"internal", NewInternalError("Internal server error"), ErrCodeInternal, http.StatusInternalServerError},
		{"unavailable", NewServiceUnavailableError("busy"), ErrCodeServiceUnavailable, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Code != tt.code || tt.err.HTTPStatus != tt.status {
				t.Errorf("got %s/%d, want %s/%d", tt.err.Code, tt.err.HTTPStatus, tt.code, tt.status)
			}
		})
	}
	if NewPayloadTooLargeError(1024).Context["max_bytes"] != int64(1024) {
		t.Error("payload error should carry the limit")
	}
}

func TestGetAppError(t *testing.T) {
	appErr := NewAppError(ErrCodeInvalidInput, "test", 400)

	if result := GetAppError(appErr); result != appErr {
		t.Errorf("GetAppError() = %v, want %v", result, appErr)
	}

	wrapped := fmt.Errorf("handler: %w", NewStartError(errors.New("cause")))
	if result := GetAppError(wrapped); result == nil || result.Code != ErrCodeStart {
		t.Errorf("GetAppError() should extract AppError from fmt-wrapped error, got %v", result)
	}

	if result := GetAppError(errors.New("regular error")); result != nil {
		t.Error("GetAppError() should return nil for regular error")
	}
}

func TestKindOfAndIs(t *testing.T) {
	err := fmt.Errorf("start: %w", NewCapacityExceededError(1, 1))

	if KindOf(err) != ErrCodeCapacityExceeded {
		t.Errorf("KindOf() = %v, want %v", KindOf(err), ErrCodeCapacityExceeded)
	}
	if !errors.Is(err, &AppError{Code: ErrCodeCapacityExceeded}) {
		t.Error("errors.Is should match by code")
	}
	if errors.Is(err, &AppError{Code: ErrCodeStart}) {
		t.Error("errors.Is should not match a different code")
	}
	if KindOf(errors.New("plain")) != "" {
		t.Error("KindOf() should be empty for unclassified errors")
	}
}
