package errors_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	. "reftester/pkg/errors"
)

func TestErrorCode_Message(t *testing.T) {
	tests := []struct {
		code ErrorCode
		want string
	}{
		{Success, "Success"},
		{NoURL, "no problem_url tag"},
		{MultipleURLs, "multiple problem_url tags"},
		{JudgeNotSupported, "judge not supported"},
		{SubmissionTimeout, "submission timeout"},
		{ErrorCode(1), "Unknown error"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.code.Message(); got != tt.want {
				t.Errorf("Message() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNew(t *testing.T) {
	err := New(IncludeNotFound)

	if err == nil {
		t.Fatal("Expected error, got nil")
	}

	if err.Code != IncludeNotFound {
		t.Errorf("Code = %v, want %v", err.Code, IncludeNotFound)
	}

	if err.Error() != IncludeNotFound.Message() {
		t.Errorf("Error() = %v, want %v", err.Error(), IncludeNotFound.Message())
	}
}

func TestNewf(t *testing.T) {
	err := Newf(JudgeNotSupported, "judge not supported: %s", "judge.example")

	want := "judge not supported: judge.example"
	if err.Error() != want {
		t.Errorf("Error() = %v, want %v", err.Error(), want)
	}
}

func TestWrap(t *testing.T) {
	originalErr := errors.New("connection refused")
	wrappedErr := Wrap(originalErr, JudgeUnavailable)

	if wrappedErr.Code != JudgeUnavailable {
		t.Errorf("Code = %v, want %v", wrappedErr.Code, JudgeUnavailable)
	}

	if wrappedErr.Unwrap() != originalErr {
		t.Error("Unwrap() should return original error")
	}

	want := "judge unavailable: connection refused"
	if wrappedErr.Error() != want {
		t.Errorf("Error() = %q, want %q", wrappedErr.Error(), want)
	}

	if Wrap(nil, JudgeUnavailable) != nil {
		t.Error("Wrap(nil) should return nil")
	}
}

func TestError_WithDetail(t *testing.T) {
	err := New(IncludeNotFound).
		WithDetail("path", "lib/segtree.cpp")

	if err.Details["path"] != "lib/segtree.cpp" {
		t.Error("path detail not set correctly")
	}
}

func TestGetCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorCode
	}{
		{name: "nil error", err: nil, want: Success},
		{name: "custom error", err: New(PollTimeout), want: PollTimeout},
		{name: "wrapped custom error", err: fmt.Errorf("attempt 2: %w", New(PollTimeout)), want: PollTimeout},
		{name: "standard error", err: errors.New("standard error"), want: InternalError},
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
	inner := New(SessionExpired)
	err := Wrap(inner, SubmitFailed)

	if !Is(err, SubmitFailed) {
		t.Error("Is() should return true for the outer code")
	}
	if !Is(err, SessionExpired) {
		t.Error("Is() should return true for a wrapped code")
	}
	if Is(err, NoURL) {
		t.Error("Is() should return false for non-matching code")
	}
	if Is(nil, NoURL) {
		t.Error("Is() should return false for nil error")
	}
}

func TestClassification(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		transient bool
		fatal     bool
	}{
		{name: "nil", err: nil},
		{name: "uncoded", err: errors.New("connection reset"), transient: true},
		{name: "correlation", err: New(CorrelationNotFound), transient: true},
		{name: "poll timeout", err: New(PollTimeout), transient: true},
		{name: "session expired", err: New(SessionExpired), transient: true},
		{name: "unsupported judge", err: New(JudgeNotSupported), fatal: true},
		{name: "login budget", err: New(AuthBudgetExceeded), fatal: true},
		{name: "rejected", err: New(SubmissionRejected), fatal: true},
		{name: "context canceled", err: context.Canceled},
		{name: "coded canceled", err: Wrap(context.Canceled, Canceled)},
		{name: "timeout wrapped as unavailable", err: Wrap(context.DeadlineExceeded, JudgeUnavailable), transient: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsTransient(tt.err); got != tt.transient {
				t.Errorf("IsTransient() = %v, want %v", got, tt.transient)
			}
			if got := IsFatal(tt.err); got != tt.fatal {
				t.Errorf("IsFatal() = %v, want %v", got, tt.fatal)
			}
		})
	}
}

func TestIsParsing(t *testing.T) {
	for _, code := range []ErrorCode{NoURL, MultipleURLs, IncludeNotFound, WrongExtension, FileReadFailed} {
		if !code.IsParsing() {
			t.Errorf("%d should be a parsing code", code)
		}
	}
	if SubmissionTimeout.IsParsing() {
		t.Error("SubmissionTimeout is not a parsing code")
	}
}
