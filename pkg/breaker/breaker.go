// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package breaker stops work against a failing dependency, such as a full
// or read-only upload directory, until it has had time to recover.
package breaker

import (
	"errors"
	"sync"
	"time"
)

var (
	// ErrCircuitOpen is returned when the circuit breaker is open.
	ErrCircuitOpen = errors.New("circuit breaker is open")
)

// State represents the circuit breaker state.
type State int

const (
	StateClosed State = iota
	StateHalfOpen
	StateOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateHalfOpen:
		return "half_open"
	case StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

// Config holds circuit breaker configuration.
type Config struct {
	// MaxFailures is the number of consecutive failures before opening the circuit.
	MaxFailures int
	// ResetTimeout is how long to wait in Open state before transitioning to HalfOpen.
	ResetTimeout time.Duration
	// SuccessThreshold is the number of consecutive successes in HalfOpen before closing.
	SuccessThreshold int
}

// CircuitBreaker implements the circuit breaker pattern.
type CircuitBreaker struct {
	mu        sync.Mutex
	config    Config
	state     State
	failures  int
	successes int
	trips     int
	openedAt  time.Time
	now       func() time.Time
	onChange  func(from, to State)
}

// New creates a new circuit breaker.
func New(config Config) *CircuitBreaker {
	if config.MaxFailures <= 0 {
		config.MaxFailures = 5
	}
	if config.ResetTimeout <= 0 {
		config.ResetTimeout = 60 * time.Second
	}
	if config.SuccessThreshold <= 0 {
		config.SuccessThreshold = 2
	}

	return &CircuitBreaker{
		config: config,
		state:  StateClosed,
		now:    time.Now,
	}
}

// Call runs fn if the breaker allows it and records the outcome.
func (cb *CircuitBreaker) Call(fn func() error) error {
	if err := cb.Allow(); err != nil {
		return err
	}
	err := fn()
	cb.Record(err)
	return err
}

// Allow returns ErrCircuitOpen while the breaker is open. Once ResetTimeout
// has passed it moves to HalfOpen and lets calls through again.
func (cb *CircuitBreaker) Allow() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state != StateOpen {
		return nil
	}
	if cb.now().Sub(cb.openedAt) < cb.config.ResetTimeout {
		return ErrCircuitOpen
	}
	cb.setState(StateHalfOpen)
	return nil
}

// Record feeds the outcome of one guarded operation into the breaker.
func (cb *CircuitBreaker) Record(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if err != nil {
		cb.successes = 0
		cb.failures++
		if cb.state == StateHalfOpen || cb.failures >= cb.config.MaxFailures {
			cb.setState(StateOpen)
		}
		return
	}

	cb.failures = 0
	if cb.state == StateHalfOpen {
		cb.successes++
		if cb.successes >= cb.config.SuccessThreshold {
			cb.setState(StateClosed)
		}
	}
}

func (cb *CircuitBreaker) setState(to State) {
	if cb.state == to {
		return
	}
	from := cb.state
	cb.state = to
	cb.successes = 0
	switch to {
	case StateOpen:
		cb.openedAt = cb.now()
		cb.trips++
	case StateClosed:
		cb.failures = 0
	}

	if cb.onChange != nil {
		go cb.onChange(from, to)
	}
}

// State returns the current state of the circuit breaker.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// OnStateChange registers a callback for state changes. It runs on its own goroutine.
func (cb *CircuitBreaker) OnStateChange(fn func(from, to State)) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.onChange = fn
}

// Stats returns circuit breaker statistics.
func (cb *CircuitBreaker) Stats() (state State, failures, trips int) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state, cb.failures, cb.trips
}
