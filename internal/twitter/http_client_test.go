package twitter

import (
	"testing"
	"time"
)

func TestCalculateBackoff_RespectsRetryAfter(t *testing.T) {
	cfg := DefaultRetryConfig()

	retryAfter := 5 * time.Second
	backoff := CalculateBackoff(cfg, 0, retryAfter)

	// Should use Retry-After + 500ms padding
	expected := 5*time.Second + 500*time.Millisecond
	if backoff != expected {
		t.Errorf("expected backoff %v, got %v", expected, backoff)
	}
}

func TestCalculateBackoff_ExponentialGrowth(t *testing.T) {
	cfg := RetryConfig{
		MaxRetries:     5,
		InitialBackoff: 1 * time.Second,
		MaxBackoff:     30 * time.Second,
		Multiplier:     2.0,
		Jitter:         false,
	}

	// Attempt 0: 1s
	b0 := CalculateBackoff(cfg, 0, 0)
	if b0 != 1*time.Second {
		t.Errorf("attempt 0: expected 1s, got %v", b0)
	}

	// Attempt 1: 2s
	b1 := CalculateBackoff(cfg, 1, 0)
	if b1 != 2*time.Second {
		t.Errorf("attempt 1: expected 2s, got %v", b1)
	}

	// Attempt 2: 4s
	b2 := CalculateBackoff(cfg, 2, 0)
	if b2 != 4*time.Second {
		t.Errorf("attempt 2: expected 4s, got %v", b2)
	}
}

func TestCalculateBackoff_RespectsMaxBackoff(t *testing.T) {
	cfg := RetryConfig{
		MaxRetries:     10,
		InitialBackoff: 1 * time.Second,
		MaxBackoff:     10 * time.Second,
		Multiplier:     2.0,
		Jitter:         false,
	}

	b := CalculateBackoff(cfg, 8, 0)
	if b != 10*time.Second {
		t.Errorf("expected backoff capped at 10s, got %v", b)
	}
}

func TestParseRetryAfter(t *testing.T) {
	if d := parseRetryAfter("7"); d != 7*time.Second {
		t.Errorf("expected 7s, got %v", d)
	}
	if d := parseRetryAfter(""); d != 0 {
		t.Errorf("expected 0 for empty header, got %v", d)
	}
	if d := parseRetryAfter("soon"); d != 0 {
		t.Errorf("expected 0 for unparseable header, got %v", d)
	}
	if d := parseRetryAfter("-3"); d != 0 {
		t.Errorf("expected 0 for negative header, got %v", d)
	}
}

func TestStatusError_Retryable(t *testing.T) {
	cases := []struct {
		code      int
		retryable bool
	}{
		{400, false},
		{401, false},
		{404, false},
		{429, true},
		{500, true},
		{503, true},
	}

	for _, tc := range cases {
		se := &statusError{code: tc.code, path: "/test"}
		if se.retryable() != tc.retryable {
			t.Errorf("status %d: expected retryable=%v", tc.code, tc.retryable)
		}
	}
}
