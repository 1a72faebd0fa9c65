// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package ratelimit

import (
	"errors"
	"testing"
	"time"

	perrors "github.com/absmach/wasp/pkg/errors"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func TestTokenBucket(t *testing.T) {
	c := &clock{t: time.Unix(0, 0)}
	tb := newTokenBucket(3, 2, c.now)

	for i := 0; i < 3; i++ {
		if !tb.Allow() {
			t.Fatalf("request %d rejected within burst", i)
		}
	}
	if tb.Allow() {
		t.Fatal("request allowed with an empty bucket")
	}

	c.t = c.t.Add(250 * time.Millisecond)
	if tb.Allow() {
		t.Error("half a token must not admit a request")
	}
	c.t = c.t.Add(250 * time.Millisecond)
	if !tb.Allow() {
		t.Error("fractional refills must add up to a token")
	}

	c.t = c.t.Add(time.Hour)
	if got := tb.Available(); got != 3 {
		t.Errorf("Available() = %d, want capacity 3", got)
	}
	if tb.AllowN(4) {
		t.Error("AllowN above capacity must fail")
	}
}

func TestLimiter_PerClient(t *testing.T) {
	l := NewLimiter(Config{Capacity: 1, RefillRate: 1})
	defer l.Close()
	c := &clock{t: time.Unix(0, 0)}
	l.now = c.now

	if err := l.Allow("10.0.0.1"); err != nil {
		t.Fatalf("Allow() error = %v", err)
	}
	err := l.Allow("10.0.0.1")
	if !errors.Is(err, ErrRateLimitExceeded) || !errors.Is(err, perrors.ErrRateLimited) {
		t.Errorf("Allow() error = %v, want %v", err, ErrRateLimitExceeded)
	}
	if perrors.StatusCode(err) != 429 {
		t.Errorf("StatusCode() = %d, want 429", perrors.StatusCode(err))
	}
	if err := l.Allow("10.0.0.2"); err != nil {
		t.Errorf("other client rejected: %v", err)
	}
	if got := l.Stats(); got != 2 {
		t.Errorf("Stats() = %d, want 2", got)
	}

	l.Remove("10.0.0.1")
	if err := l.Allow("10.0.0.1"); err != nil {
		t.Errorf("removed client starts with a full bucket, got %v", err)
	}
}

func TestLimiter_MaxClients(t *testing.T) {
	l := NewLimiter(Config{Capacity: 5, RefillRate: 1, MaxClients: 1})
	defer l.Close()

	if err := l.Allow("a"); err != nil {
		t.Fatalf("Allow() error = %v", err)
	}
	if err := l.Allow("b"); !errors.Is(err, ErrRateLimitExceeded) {
		t.Errorf("Allow() error = %v, want %v", err, ErrRateLimitExceeded)
	}
}

func TestLimiter_EvictIdle(t *testing.T) {
	l := NewLimiter(Config{Capacity: 1, RefillRate: 1, IdleTTL: time.Minute})
	defer l.Close()
	c := &clock{t: time.Unix(0, 0)}
	l.now = c.now

	l.Allow("old")
	c.t = c.t.Add(50 * time.Second)
	l.Allow("new")
	c.t = c.t.Add(20 * time.Second)

	l.mu.Lock()
	l.evictIdle()
	l.mu.Unlock()

	if got := l.Stats(); got != 1 {
		t.Errorf("Stats() = %d, want 1", got)
	}
	if _, ok := l.clients["new"]; !ok {
		t.Error("recently seen client evicted")
	}
}
