package circuitbreaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"
)

func TestCircuitBreakerStates(t *testing.T) {
	logger := zaptest.NewLogger(t)
	config := DefaultConfig()
	config.FailureThreshold = 3
	config.SuccessThreshold = 2
	config.Timeout = 100 * time.Millisecond

	cb := New("test", config, logger)
	ctx := context.Background()

	// Initially should be closed
	if cb.State() != StateClosed {
		t.Errorf("Expected initial state to be closed, got %s", cb.State())
	}

	// Successful calls don't change state
	for i := 0; i < 3; i++ {
		if err := cb.Execute(ctx, func() error { return nil }); err != nil {
			t.Errorf("Expected success, got error: %v", err)
		}
	}
	if cb.State() != StateClosed {
		t.Errorf("Expected state to remain closed, got %s", cb.State())
	}

	// Failure threshold triggers open state
	for i := 0; i < 3; i++ {
		if err := cb.Execute(ctx, func() error { return errors.New("test error") }); err == nil {
			t.Error("Expected error, got nil")
		}
	}
	if cb.State() != StateOpen {
		t.Errorf("Expected state to be open, got %s", cb.State())
	}

	// Open breaker rejects requests
	if err := cb.Execute(ctx, func() error { return nil }); err != ErrCircuitOpen {
		t.Errorf("Expected circuit open error, got %v", err)
	}

	// Wait for timeout, then the next admission transitions to half-open
	time.Sleep(150 * time.Millisecond)

	if err := cb.Allow(); err != nil {
		t.Fatalf("Expected admission after timeout, got %v", err)
	}
	if cb.State() != StateHalfOpen {
		t.Errorf("Expected state to be half-open, got %s", cb.State())
	}

	// Success threshold in half-open transitions to closed
	cb.RecordSuccess()
	for i := 0; i < 1; i++ {
		if err := cb.Execute(ctx, func() error { return nil }); err != nil {
			t.Errorf("Expected success, got error: %v", err)
		}
	}
	if cb.State() != StateClosed {
		t.Errorf("Expected state to be closed, got %s", cb.State())
	}
}

func TestCircuitBreakerHalfOpenFailureReopens(t *testing.T) {
	logger := zaptest.NewLogger(t)
	config := DefaultConfig()
	config.FailureThreshold = 2
	config.Timeout = 50 * time.Millisecond

	cb := New("test", config, logger)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		cb.Execute(ctx, func() error { return errors.New("boom") })
	}
	if cb.State() != StateOpen {
		t.Fatalf("Expected open, got %s", cb.State())
	}

	time.Sleep(75 * time.Millisecond)

	// One half-open failure reopens with a fresh timeout
	if err := cb.Execute(ctx, func() error { return errors.New("still failing") }); err == nil {
		t.Fatal("Expected error")
	}
	if cb.State() != StateOpen {
		t.Errorf("Expected reopened state, got %s", cb.State())
	}
	if err := cb.Execute(ctx, func() error { return nil }); err != ErrCircuitOpen {
		t.Errorf("Expected immediate rejection after reopen, got %v", err)
	}
}

func TestCircuitBreakerSuccessResetsFailureCount(t *testing.T) {
	logger := zaptest.NewLogger(t)
	config := DefaultConfig()
	config.FailureThreshold = 3

	cb := New("test", config, logger)
	ctx := context.Background()

	cb.Execute(ctx, func() error { return errors.New("one") })
	cb.Execute(ctx, func() error { return errors.New("two") })
	cb.Execute(ctx, func() error { return nil })

	if got := cb.Status().FailureCount; got != 0 {
		t.Errorf("Expected failure count reset to 0, got %d", got)
	}

	// Two more failures still must not open the breaker
	cb.Execute(ctx, func() error { return errors.New("one") })
	cb.Execute(ctx, func() error { return errors.New("two") })
	if cb.State() != StateClosed {
		t.Errorf("Expected closed after counter reset, got %s", cb.State())
	}
}

func TestCircuitBreakerStatusRetryIn(t *testing.T) {
	logger := zaptest.NewLogger(t)
	config := DefaultConfig()
	config.FailureThreshold = 1
	config.Timeout = time.Minute

	cb := New("test", config, logger)
	cb.RecordFailure()

	st := cb.Status()
	if st.State != StateOpen {
		t.Fatalf("Expected open, got %s", st.State)
	}
	if st.RetryIn <= 0 || st.RetryIn > time.Minute {
		t.Errorf("Expected retry_in in (0, 1m], got %v", st.RetryIn)
	}
}

func TestManagerHealthAndSnapshot(t *testing.T) {
	logger := zaptest.NewLogger(t)
	overrides := map[string]Config{
		"flaky": {FailureThreshold: 1, SuccessThreshold: 1, Timeout: time.Minute},
	}
	m := NewManager(DefaultConfig(), overrides, logger)

	// Unknown sources are healthy without instantiating a breaker
	if !m.IsHealthy("never-seen") {
		t.Error("Expected unseen source to be healthy")
	}

	m.Get("flaky").RecordFailure()
	if m.IsHealthy("flaky") {
		t.Error("Expected flaky source to be unhealthy after one failure")
	}

	snap := m.Snapshot()
	if st, ok := snap["flaky"]; !ok || st.State != StateOpen {
		t.Errorf("Expected snapshot to show flaky open, got %+v", snap)
	}
}

func TestStateChangeCallback(t *testing.T) {
	logger := zaptest.NewLogger(t)
	config := DefaultConfig()
	config.FailureThreshold = 2

	var callbackCalled bool
	var fromState, toState State
	config.OnStateChange = func(source string, from State, to State) {
		callbackCalled = true
		fromState = from
		toState = to
	}

	cb := New("test", config, logger)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		cb.Execute(ctx, func() error { return errors.New("error") })
	}

	if !callbackCalled {
		t.Error("Expected state change callback to be called")
	}
	if fromState != StateClosed || toState != StateOpen {
		t.Errorf("Expected transition from closed to open, got %s to %s", fromState, toState)
	}
}
