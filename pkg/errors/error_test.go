package errors_test

import (
	"errors"
	"fmt"
	"testing"

	. "autograde/pkg/errors"
)

func TestErrorCode_Message(t *testing.T) {
	tests := []struct {
		code ErrorCode
		want string
	}{
		{Success, "Success"},
		{GraderLoadFailed, "Failed to load grader"},
		{InvalidParams, "Invalid parameters"},
		{ReportWriteFailed, "Failed to write grade report"},
		{ErrorCode(99999), "Unknown error"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.code.Message(); got != tt.want {
				t.Errorf("Message() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestErrorCode_ExitCode(t *testing.T) {
	tests := []struct {
		code ErrorCode
		want int
	}{
		{Success, 0},
		{GraderLoadFailed, 2},
		{EnumerationFailed, 2},
		{ValidationFailed, 2},
		{ReportWriteFailed, 3},
		{StorageError, 4},
		{InternalServerError, 1},
	}

	for _, tt := range tests {
		t.Run(tt.code.Message(), func(t *testing.T) {
			if got := tt.code.ExitCode(); got != tt.want {
				t.Errorf("ExitCode() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNewf(t *testing.T) {
	err := Newf(DuplicateWorkItem, "student %s listed twice", "alice@example.com")

	want := "student alice@example.com listed twice"
	if err.Error() != want {
		t.Errorf("Error() = %v, want %v", err.Error(), want)
	}
	if err.Code != DuplicateWorkItem {
		t.Errorf("Code = %v, want %v", err.Code, DuplicateWorkItem)
	}
}

func TestWrap(t *testing.T) {
	originalErr := errors.New("disk full")
	wrappedErr := Wrap(originalErr, ReportWriteFailed)

	if wrappedErr.Code != ReportWriteFailed {
		t.Errorf("Code = %v, want %v", wrappedErr.Code, ReportWriteFailed)
	}
	if wrappedErr.Unwrap() != originalErr {
		t.Error("Unwrap() should return original error")
	}
	if wrappedErr.Error() != "disk full" {
		t.Errorf("Error() = %v, want %v", wrappedErr.Error(), "disk full")
	}
	if Wrap(nil, ReportWriteFailed) != nil {
		t.Error("Wrap(nil) should return nil")
	}
}

func TestWrapfKeepsCause(t *testing.T) {
	err := Wrapf(errors.New("permission denied"), ReportWriteFailed, "create report failed")

	want := "create report failed: permission denied"
	if err.Error() != want {
		t.Errorf("Error() = %v, want %v", err.Error(), want)
	}
}

func TestGetCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorCode
	}{
		{
			name: "nil error",
			err:  nil,
			want: Success,
		},
		{
			name: "custom error",
			err:  New(GraderLoadFailed),
			want: GraderLoadFailed,
		},
		{
			name: "wrapped custom error",
			err:  fmt.Errorf("run: %w", New(EnumerationFailed)),
			want: EnumerationFailed,
		},
		{
			name: "standard error",
			err:  errors.New("standard error"),
			want: InternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := GetCode(tt.err); got != tt.want {
				t.Errorf("GetCode() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIs(t *testing.T) {
	err := New(GraderTimeout)

	if !Is(err, GraderTimeout) {
		t.Error("Is() should return true for matching code")
	}
	if Is(err, GraderCrashed) {
		t.Error("Is() should return false for non-matching code")
	}
	if Is(nil, GraderTimeout) {
		t.Error("Is() should return false for nil error")
	}
}

func TestSetupFailure(t *testing.T) {
	if !SetupFailure(New(GraderLoadFailed)) {
		t.Error("grader load failure should be a setup failure")
	}
	if !SetupFailure(ConfigError("grading.workRoot", "required")) {
		t.Error("config error should be a setup failure")
	}
	if SetupFailure(New(ReportWriteFailed)) {
		t.Error("report failure should not be a setup failure")
	}
}

func TestValidationError(t *testing.T) {
	err := ValidationError("student", "empty")
	if err.Code != ValidationFailed {
		t.Error("ValidationError should use ValidationFailed code")
	}
	if err.Details["field"] != "student" {
		t.Error("Field detail not set")
	}
}
