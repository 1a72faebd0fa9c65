// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package health provides health check and readiness endpoints.
package health

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/absmach/wasp/pkg/breaker"
)

// Status represents the health status.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// Check represents a single health check.
type Check struct {
	Name        string        `json:"name"`
	Status      Status        `json:"status"`
	Message     string        `json:"message,omitempty"`
	Critical    bool          `json:"critical,omitempty"`
	LastChecked time.Time     `json:"last_checked"`
	Duration    time.Duration `json:"duration_ms"`
}

// CheckFunc is a function that performs a health check.
type CheckFunc func(ctx context.Context) error

type registered struct {
	fn       CheckFunc
	critical bool
}

// Checker manages health checks.
type Checker struct {
	mu     sync.Mutex
	checks map[string]registered
	cache  map[string]*Check
	ttl    time.Duration
	now    func() time.Time
}

// NewChecker creates a new health checker.
func NewChecker(cacheTTL time.Duration) *Checker {
	if cacheTTL == 0 {
		cacheTTL = 10 * time.Second
	}
	return &Checker{
		checks: make(map[string]registered),
		cache:  make(map[string]*Check),
		ttl:    cacheTTL,
		now:    time.Now,
	}
}

// Register adds a health check. A failing check degrades the service.
func (c *Checker) Register(name string, check CheckFunc) {
	c.register(name, check, false)
}

// RegisterCritical adds a health check whose failure makes the service
// unhealthy.
func (c *Checker) RegisterCritical(name string, check CheckFunc) {
	c.register(name, check, true)
}

func (c *Checker) register(name string, check CheckFunc, critical bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checks[name] = registered{fn: check, critical: critical}
	delete(c.cache, name)
}

// Health returns the overall health status and the checks sorted by name.
func (c *Checker) Health(ctx context.Context) (Status, []Check) {
	c.mu.Lock()
	defer c.mu.Unlock()

	names := make([]string, 0, len(c.checks))
	for name := range c.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	checks := make([]Check, 0, len(names))
	overallStatus := StatusHealthy

	for _, name := range names {
		check, ok := c.cache[name]
		if !ok || c.now().Sub(check.LastChecked) >= c.ttl {
			check = c.run(ctx, name, c.checks[name])
			c.cache[name] = check
		}
		checks = append(checks, *check)

		if check.Status == StatusHealthy {
			continue
		}
		if check.Critical {
			overallStatus = StatusUnhealthy
		} else if overallStatus == StatusHealthy {
			overallStatus = StatusDegraded
		}
	}

	return overallStatus, checks
}

func (c *Checker) run(ctx context.Context, name string, r registered) *Check {
	start := c.now()
	err := r.fn(ctx)

	check := &Check{
		Name:        name,
		Status:      StatusHealthy,
		Critical:    r.critical,
		LastChecked: c.now(),
		Duration:    c.now().Sub(start),
	}
	if err != nil {
		check.Status = StatusUnhealthy
		check.Message = err.Error()
	}
	return check
}

// HTTPHandler returns an HTTP handler for health checks.
func (c *Checker) HTTPHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		status, checks := c.Health(ctx)

		code := http.StatusOK // Degraded still accepts traffic
		if status == StatusUnhealthy {
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, map[string]interface{}{
			"status": status,
			"checks": checks,
		})
	}
}

// LivenessHandler returns a simple liveness probe.
func LivenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"status": "alive",
		})
	}
}

// ReadinessHandler returns a readiness probe handler.
func (c *Checker) ReadinessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		status, checks := c.Health(ctx)

		code := http.StatusOK
		if status != StatusHealthy {
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, map[string]interface{}{
			"status": status,
			"checks": checks,
		})
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

// Writable is implemented by file sinks that can verify their backing
// storage.
type Writable interface {
	Writable() error
}

// SinkWritable checks that uploads can be written.
func SinkWritable(sink Writable) CheckFunc {
	return func(ctx context.Context) error {
		return sink.Writable()
	}
}

// ErrPoolSaturated is reported when the worker queue is nearly full.
var ErrPoolSaturated = errors.New("worker pool saturated")

// PoolSaturation fails once queued work reaches threshold (0..1) of the
// queue capacity.
func PoolSaturation(stats func() (workers, busy, queued int), capacity int, threshold float64) CheckFunc {
	return func(ctx context.Context) error {
		if capacity <= 0 {
			return nil
		}
		workers, busy, queued := stats()
		if float64(queued) >= threshold*float64(capacity) {
			return fmt.Errorf("%w: %d/%d workers busy, %d/%d queued", ErrPoolSaturated, busy, workers, queued, capacity)
		}
		return nil
	}
}

// BreakerClosed fails while the circuit breaker is open.
func BreakerClosed(cb *breaker.CircuitBreaker) CheckFunc {
	return func(ctx context.Context) error {
		if state := cb.State(); state == breaker.StateOpen {
			return fmt.Errorf("circuit breaker %s", state)
		}
		return nil
	}
}
