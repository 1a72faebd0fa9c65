// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package breaker

import (
	"errors"
	"testing"
	"time"
)

var errDisk = errors.New("disk full")

func newTestBreaker(now *time.Time) *CircuitBreaker {
	cb := New(Config{MaxFailures: 2, ResetTimeout: time.Minute, SuccessThreshold: 1})
	cb.now = func() time.Time { return *now }
	return cb
}

func TestCircuitBreaker_Trips(t *testing.T) {
	now := time.Unix(1000, 0)
	cb := newTestBreaker(&now)

	fail := func() error { return errDisk }
	if err := cb.Call(fail); !errors.Is(err, errDisk) {
		t.Fatalf("expected errDisk, got %v", err)
	}
	if cb.State() != StateClosed {
		t.Fatalf("expected closed after one failure, got %v", cb.State())
	}
	cb.Call(fail)
	if cb.State() != StateOpen {
		t.Fatalf("expected open after two failures, got %v", cb.State())
	}

	called := false
	err := cb.Call(func() error { called = true; return nil })
	if !errors.Is(err, ErrCircuitOpen) || called {
		t.Fatalf("expected call to be rejected, got %v (called=%v)", err, called)
	}

	now = now.Add(2 * time.Minute)
	if err := cb.Call(func() error { return nil }); err != nil {
		t.Fatalf("expected half-open probe to pass, got %v", err)
	}
	if cb.State() != StateClosed {
		t.Errorf("expected closed after successful probe, got %v", cb.State())
	}

	_, failures, trips := cb.Stats()
	if failures != 0 || trips != 1 {
		t.Errorf("Stats() failures=%d trips=%d, want 0 and 1", failures, trips)
	}
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	now := time.Unix(1000, 0)
	cb := newTestBreaker(&now)
	cb.Record(errDisk)
	cb.Record(errDisk)

	now = now.Add(2 * time.Minute)
	if err := cb.Allow(); err != nil {
		t.Fatalf("Allow() error = %v", err)
	}
	if cb.State() != StateHalfOpen {
		t.Fatalf("expected half-open, got %v", cb.State())
	}
	cb.Record(errDisk)
	if cb.State() != StateOpen {
		t.Errorf("expected open after half-open failure, got %v", cb.State())
	}
}

func TestCircuitBreaker_StateChangeCallback(t *testing.T) {
	cb := New(Config{MaxFailures: 1})
	changes := make(chan State, 1)
	cb.OnStateChange(func(from, to State) { changes <- to })

	cb.Record(errDisk)

	select {
	case to := <-changes:
		if to != StateOpen {
			t.Errorf("expected transition to open, got %v", to)
		}
	case <-time.After(time.Second):
		t.Fatal("state change callback not called")
	}
}

func TestState_String(t *testing.T) {
	for s, want := range map[State]string{StateClosed: "closed", StateHalfOpen: "half_open", StateOpen: "open", State(9): "unknown"} {
		if s.String() != want {
			t.Errorf("State(%d).String() = %q, want %q", s, s.String(), want)
		}
	}
}
