package errors

import (
	"errors"
	"net/http"
	"testing"
)

func TestNew(t *testing.T) {
	err := New(CodeValidation, "validation failed", http.StatusUnprocessableEntity)

	if err.Code != CodeValidation {
		t.Errorf("expected code %s, got %s", CodeValidation, err.Code)
	}
	if err.Message != "validation failed" {
		t.Errorf("expected message 'validation failed', got %s", err.Message)
	}
	if err.HTTPStatus != http.StatusUnprocessableEntity {
		t.Errorf("expected status %d, got %d", http.StatusUnprocessableEntity, err.HTTPStatus)
	}
}

func TestWrap(t *testing.T) {
	originalErr := errors.New("database connection failed")
	wrapped := Wrap(originalErr, CodeInternal, "internal error", http.StatusInternalServerError)

	if wrapped.Err != originalErr {
		t.Errorf("expected wrapped error to contain original error")
	}
	if wrapped.Code != CodeInternal {
		t.Errorf("expected code %s, got %s", CodeInternal, wrapped.Code)
	}
}

func TestAppError_Error(t *testing.T) {
	tests := []struct {
		name     string
		appErr   *AppError
		expected string
	}{
		{
			name: "without underlying error",
			appErr: &AppError{
				Code:    CodeNotFound,
				Message: "appointment not found",
			},
			expected: "NOT_FOUND: appointment not found",
		},
		{
			name: "with underlying error",
			appErr: &AppError{
				Code:    CodeGateway,
				Message: "refund failed",
				Err:     errors.New("connection reset"),
			},
			expected: "GATEWAY_ERROR: refund failed (caused by: connection reset)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.appErr.Error()
			if got != tt.expected {
				t.Errorf("Error() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestAppError_Unwrap(t *testing.T) {
	originalErr := errors.New("original error")
	appErr := Wrap(originalErr, CodeInternal, "wrapped", http.StatusInternalServerError)

	unwrapped := errors.Unwrap(appErr)
	if unwrapped != originalErr {
		t.Errorf("Unwrap() should return original error")
	}
}

func TestInvalidTransition(t *testing.T) {
	err := InvalidTransition("appointment is not pending", "confirmed")

	if err.Code != CodeInvalidTransition {
		t.Errorf("expected code %s, got %s", CodeInvalidTransition, err.Code)
	}
	if err.HTTPStatus != http.StatusConflict {
		t.Errorf("expected status %d, got %d", http.StatusConflict, err.HTTPStatus)
	}
	if err.Details["current_status"] != "confirmed" {
		t.Errorf("expected current_status detail, got %v", err.Details)
	}
}

func TestPolicyViolation(t *testing.T) {
	err := PolicyViolation("reschedule limit reached")

	if err.Code != CodePolicyViolation {
		t.Errorf("expected code %s, got %s", CodePolicyViolation, err.Code)
	}
	if err.HTTPStatus != http.StatusUnprocessableEntity {
		t.Errorf("expected status %d, got %d", http.StatusUnprocessableEntity, err.HTTPStatus)
	}
}

func TestHasCode(t *testing.T) {
	err := Conflict("slot already booked")

	if !HasCode(err, CodeConflict) {
		t.Error("expected HasCode to match CONFLICT")
	}
	if HasCode(err, CodeNotFound) {
		t.Error("expected HasCode to reject NOT_FOUND")
	}
	if HasCode(errors.New("plain"), CodeConflict) {
		t.Error("expected HasCode to reject plain errors")
	}
}

func TestAsAppError(t *testing.T) {
	appErr := NotFound("Doctor")
	if got := AsAppError(appErr); got != appErr {
		t.Error("expected AsAppError to return the same AppError")
	}

	plain := errors.New("boom")
	converted := AsAppError(plain)
	if converted.Code != CodeInternal {
		t.Errorf("expected plain errors to convert to INTERNAL_ERROR, got %s", converted.Code)
	}
	if errors.Unwrap(converted) != plain {
		t.Error("expected converted error to wrap the original")
	}
}
