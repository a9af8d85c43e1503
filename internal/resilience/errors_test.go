package resilience

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"explicit transient", NewTransientError(errors.New("503"), 503), true},
		{"wrapped transient", fmt.Errorf("search: %w", NewTransientError(errors.New("503"), 503)), true},
		{"rate limit", NewRateLimitError(errors.New("429"), time.Second), true},
		{"plain error", errors.New("invalid lead id"), false},
		{"connection reset string", errors.New("read tcp: connection reset by peer"), true},
		{"dns failure string", errors.New("dial tcp: no such host"), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsTransient(tt.err); got != tt.want {
				t.Errorf("IsTransient(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestIsRateLimited(t *testing.T) {
	if !IsRateLimited(NewRateLimitError(errors.New("429"), 0)) {
		t.Error("expected 429 to be rate limited")
	}
	if IsRateLimited(NewTransientError(errors.New("503"), 503)) {
		t.Error("503 is not rate limited")
	}
	if IsRateLimited(errors.New("plain")) {
		t.Error("plain error is not rate limited")
	}
}

func TestRetryAfterHint(t *testing.T) {
	err := fmt.Errorf("unlock: %w", NewRateLimitError(errors.New("429"), 45*time.Second))
	if got := RetryAfterHint(err); got != 45*time.Second {
		t.Errorf("expected 45s hint, got %v", got)
	}
	if got := RetryAfterHint(errors.New("plain")); got != 0 {
		t.Errorf("expected zero hint, got %v", got)
	}
}

func TestIsTransientHTTPStatus(t *testing.T) {
	for _, code := range []int{408, 429, 500, 502, 503, 504} {
		if !IsTransientHTTPStatus(code) {
			t.Errorf("expected %d transient", code)
		}
	}
	for _, code := range []int{200, 201, 400, 401, 403, 404, 422} {
		if IsTransientHTTPStatus(code) {
			t.Errorf("expected %d not transient", code)
		}
	}
}
