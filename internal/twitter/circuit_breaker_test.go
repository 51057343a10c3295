package twitter

import (
	"testing"
	"time"
)

func TestCircuitBreaker_StartsClosed(t *testing.T) {
	cb := NewCircuitBreaker()

	if cb.State() != CBClosed {
		t.Errorf("expected initial state closed, got %s", cb.StateString())
	}
	if !cb.Allow() {
		t.Error("closed breaker should allow calls")
	}
}

func TestCircuitBreaker_OpensAfterThreshold(t *testing.T) {
	cb := NewCircuitBreaker()

	for i := 0; i < 5; i++ {
		cb.RecordFailure()
	}

	if cb.State() != CBOpen {
		t.Errorf("expected open after 5 failures, got %s", cb.StateString())
	}
	if cb.Allow() {
		t.Error("open breaker should reject calls")
	}
}

func TestCircuitBreaker_SuccessResetsFailureCount(t *testing.T) {
	cb := NewCircuitBreaker()

	for i := 0; i < 4; i++ {
		cb.RecordFailure()
	}
	cb.RecordSuccess()
	cb.RecordFailure()

	if cb.State() != CBClosed {
		t.Errorf("expected closed after success reset, got %s", cb.StateString())
	}
}

func TestCircuitBreaker_HalfOpenAfterTimeout(t *testing.T) {
	cb := NewCircuitBreaker()
	cb.resetTimeout = 10 * time.Millisecond

	for i := 0; i < 5; i++ {
		cb.RecordFailure()
	}
	if cb.Allow() {
		t.Fatal("expected rejection while open")
	}

	time.Sleep(20 * time.Millisecond)

	if !cb.Allow() {
		t.Fatal("expected probe allowed after reset timeout")
	}
	if cb.State() != CBHalfOpen {
		t.Errorf("expected half-open, got %s", cb.StateString())
	}
}

func TestCircuitBreaker_HalfOpenLimitsProbes(t *testing.T) {
	cb := NewCircuitBreaker()
	cb.resetTimeout = 10 * time.Millisecond

	for i := 0; i < 5; i++ {
		cb.RecordFailure()
	}
	time.Sleep(20 * time.Millisecond)

	// first Allow transitions to half-open and counts as probe 1
	if !cb.Allow() {
		t.Fatal("expected first probe allowed")
	}
	if !cb.Allow() {
		t.Fatal("expected second probe allowed")
	}
	if cb.Allow() {
		t.Error("expected third probe rejected in half-open")
	}
}

func TestCircuitBreaker_HalfOpenSuccessCloses(t *testing.T) {
	cb := NewCircuitBreaker()
	cb.resetTimeout = 10 * time.Millisecond

	for i := 0; i < 5; i++ {
		cb.RecordFailure()
	}
	time.Sleep(20 * time.Millisecond)
	cb.Allow()
	cb.RecordSuccess()

	if cb.State() != CBClosed {
		t.Errorf("expected closed after half-open success, got %s", cb.StateString())
	}
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	cb := NewCircuitBreaker()
	cb.resetTimeout = 10 * time.Millisecond

	for i := 0; i < 5; i++ {
		cb.RecordFailure()
	}
	time.Sleep(20 * time.Millisecond)
	cb.Allow()
	cb.RecordFailure()

	if cb.State() != CBOpen {
		t.Errorf("expected reopen after half-open failure, got %s", cb.StateString())
	}
}
