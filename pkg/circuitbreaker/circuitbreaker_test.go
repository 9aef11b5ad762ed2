package circuitbreaker

import (
	"errors"
	"testing"
	"time"
)

func testConfig() Config {
	return Config{
		FailureThreshold:    3,
		SuccessThreshold:    2,
		Timeout:             20 * time.Millisecond,
		HalfOpenMaxRequests: 2,
	}
}

var errBoom = errors.New("boom")

func TestCircuitBreaker_StartsClosed(t *testing.T) {
	cb := New(testConfig())
	if cb.State() != StateClosed {
		t.Errorf("initial state = %v, want %v", cb.State(), StateClosed)
	}
}

func TestCircuitBreaker_OpensAfterThreshold(t *testing.T) {
	cb := New(testConfig())

	for i := 0; i < 3; i++ {
		_ = cb.Execute(func() error { return errBoom })
	}

	if cb.State() != StateOpen {
		t.Fatalf("state after 3 failures = %v, want %v", cb.State(), StateOpen)
	}

	err := cb.Execute(func() error { t.Fatal("fn should not run while open"); return nil })
	if !errors.Is(err, ErrOpen) {
		t.Errorf("Execute while open = %v, want ErrOpen", err)
	}
}

func TestCircuitBreaker_SuccessResetsFailureCount(t *testing.T) {
	cb := New(testConfig())

	_ = cb.Execute(func() error { return errBoom })
	_ = cb.Execute(func() error { return errBoom })
	_ = cb.Execute(func() error { return nil }) // resets failureCount to 0
	_ = cb.Execute(func() error { return errBoom })
	_ = cb.Execute(func() error { return errBoom })

	if cb.State() != StateClosed {
		t.Errorf("state = %v, want %v (success should have reset the streak)", cb.State(), StateClosed)
	}
}

func TestCircuitBreaker_HalfOpenAfterTimeout(t *testing.T) {
	cfg := testConfig()
	cb := New(cfg)

	for i := 0; i < cfg.FailureThreshold; i++ {
		_ = cb.Execute(func() error { return errBoom })
	}
	if cb.State() != StateOpen {
		t.Fatalf("expected open, got %v", cb.State())
	}

	time.Sleep(cfg.Timeout + 5*time.Millisecond)

	ran := false
	_ = cb.Execute(func() error { ran = true; return nil })
	if !ran {
		t.Error("expected the probe call to run once the timeout elapsed")
	}
}

func TestCircuitBreaker_ClosesAfterSuccessThresholdInHalfOpen(t *testing.T) {
	cfg := testConfig()
	cb := New(cfg)

	for i := 0; i < cfg.FailureThreshold; i++ {
		_ = cb.Execute(func() error { return errBoom })
	}
	time.Sleep(cfg.Timeout + 5*time.Millisecond)

	for i := 0; i < cfg.SuccessThreshold; i++ {
		if err := cb.Execute(func() error { return nil }); err != nil {
			t.Fatalf("probe %d failed: %v", i, err)
		}
	}
	// the close transition is evaluated at the start of the *next*
	// Execute call, not inside the probe that hit the threshold.
	if err := cb.Execute(func() error { return nil }); err != nil {
		t.Fatalf("transition probe failed: %v", err)
	}

	if cb.State() != StateClosed {
		t.Errorf("state after %d successful probes = %v, want %v", cfg.SuccessThreshold, cb.State(), StateClosed)
	}
}

func TestCircuitBreaker_FailureInHalfOpenReopens(t *testing.T) {
	cfg := testConfig()
	cb := New(cfg)

	for i := 0; i < cfg.FailureThreshold; i++ {
		_ = cb.Execute(func() error { return errBoom })
	}
	time.Sleep(cfg.Timeout + 5*time.Millisecond)

	_ = cb.Execute(func() error { return errBoom }) // probe fails

	if cb.State() != StateOpen {
		t.Errorf("state after failed probe = %v, want %v", cb.State(), StateOpen)
	}
}

func TestCircuitBreaker_HalfOpenRejectsBeyondMaxRequests(t *testing.T) {
	cfg := testConfig()
	cb := New(cfg)

	for i := 0; i < cfg.FailureThreshold; i++ {
		_ = cb.Execute(func() error { return errBoom })
	}
	time.Sleep(cfg.Timeout + 5*time.Millisecond)

	// hold HalfOpenMaxRequests probes open by never letting them
	// complete before the next Execute call checks the gate.
	block := make(chan struct{})
	done := make(chan error, cfg.HalfOpenMaxRequests)
	for i := 0; i < cfg.HalfOpenMaxRequests; i++ {
		go func() {
			done <- cb.Execute(func() error { <-block; return nil })
		}()
	}
	// give the goroutines a chance to enter Execute and claim their slot
	time.Sleep(5 * time.Millisecond)

	err := cb.Execute(func() error { t.Error("fn should not run past HalfOpenMaxRequests"); return nil })
	if !errors.Is(err, ErrOpen) {
		t.Errorf("Execute beyond HalfOpenMaxRequests = %v, want ErrOpen", err)
	}

	close(block)
	for i := 0; i < cfg.HalfOpenMaxRequests; i++ {
		<-done
	}
}

func TestCircuitBreaker_Reset(t *testing.T) {
	cb := New(testConfig())
	for i := 0; i < 3; i++ {
		_ = cb.Execute(func() error { return errBoom })
	}
	if cb.State() != StateOpen {
		t.Fatalf("expected open before reset")
	}

	cb.Reset()
	if cb.State() != StateClosed {
		t.Errorf("state after Reset = %v, want %v", cb.State(), StateClosed)
	}

	ran := false
	_ = cb.Execute(func() error { ran = true; return nil })
	if !ran {
		t.Error("expected calls to pass through after Reset")
	}
}

func TestState_String(t *testing.T) {
	tests := map[State]string{
		StateClosed:   "closed",
		StateOpen:     "open",
		StateHalfOpen: "half-open",
	}
	for state, want := range tests {
		if got := state.String(); got != want {
			t.Errorf("State(%d).String() = %q, want %q", state, got, want)
		}
	}
}
