package api

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestErrorInterface(t *testing.T) {
	var _ error = &Error{}
}

func TestErrorString(t *testing.T) {
	tests := []struct {
		name string
		err  *Error
		want string
	}{
		{"auth without status", NewAuthError("bad key"), "bad key"},
		{"auth from status", NewStatusError(401, "bad key"), "[401] bad key"},
		{"rate limit carries status", NewRateLimitError("slow down"), "[429] slow down"},
		{"server", NewServerError("boom", 503), "[503] boom"},
		{"timeout default", NewTimeoutError("", nil), "Request timed out"},
		{"connection default", NewConnectionError("", nil), "Connection failed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestKindForStatus(t *testing.T) {
	tests := []struct {
		status int
		want   ErrorKind
	}{
		{200, ""},
		{204, ""},
		{400, KindHTTP},
		{401, KindAuth},
		{403, KindHTTP},
		{404, KindHTTP},
		{409, KindHTTP},
		{429, KindRateLimit},
		{500, KindServer},
		{502, KindServer},
		{599, KindServer},
		{600, KindHTTP},
		{302, KindHTTP},
		{101, KindHTTP},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("status_%d", tt.status), func(t *testing.T) {
			if got := KindForStatus(tt.status); got != tt.want {
				t.Errorf("KindForStatus(%d) = %q, want %q", tt.status, got, tt.want)
			}
		})
	}
}

func TestNewStatusError(t *testing.T) {
	err := NewStatusError(401, "bad key")
	if err.Kind != KindAuth {
		t.Errorf("Kind = %q, want %q", err.Kind, KindAuth)
	}
	if err.Message != "bad key" {
		t.Errorf("Message = %q, want %q", err.Message, "bad key")
	}
	if err.StatusCode != 401 {
		t.Errorf("StatusCode = %d, want 401", err.StatusCode)
	}
}

func TestStatusMessage(t *testing.T) {
	if got := StatusMessage(404); got != "404 Not Found" {
		t.Errorf("StatusMessage(404) = %q", got)
	}
	if got := StatusMessage(799); got != "HTTP status 799" {
		t.Errorf("StatusMessage(799) = %q", got)
	}
}

func TestErrorsIsKindSentinel(t *testing.T) {
	wrapped := fmt.Errorf("calling backend: %w", NewRateLimitError("slow down"))

	if !errors.Is(wrapped, ErrRateLimit) {
		t.Error("errors.Is(wrapped, ErrRateLimit) = false, want true")
	}
	if errors.Is(wrapped, ErrServer) {
		t.Error("errors.Is(wrapped, ErrServer) = true, want false")
	}
	if KindOf(wrapped) != KindRateLimit {
		t.Errorf("KindOf = %q, want %q", KindOf(wrapped), KindRateLimit)
	}
	if !IsKind(wrapped, KindRateLimit) {
		t.Error("IsKind = false, want true")
	}
	if KindOf(errors.New("plain")) != "" {
		t.Error("KindOf(plain error) should be empty")
	}
}

func TestErrorUnwrapCause(t *testing.T) {
	err := NewTimeoutError("", context.DeadlineExceeded)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Error("timeout error should unwrap to context.DeadlineExceeded")
	}
}

func TestErrorRetryable(t *testing.T) {
	tests := []struct {
		err  *Error
		want bool
	}{
		{NewAuthError("x"), false},
		{NewRateLimitError("x"), true},
		{NewServerError("x", 500), true},
		{NewHTTPError("x", 404), false},
		{NewTimeoutError("", nil), true},
		{NewConnectionError("", nil), true},
		{NewValidationError("model", "x"), false},
		{NewStreamError("x", nil), false},
	}
	for _, tt := range tests {
		t.Run(string(tt.err.Kind), func(t *testing.T) {
			if got := tt.err.Retryable(); got != tt.want {
				t.Errorf("Retryable() = %v, want %v", got, tt.want)
			}
		})
	}
}
