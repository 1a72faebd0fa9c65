// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package ratelimit admits requests per client using token buckets.
package ratelimit

import (
	"fmt"
	"sync"
	"time"

	perrors "github.com/absmach/wasp/pkg/errors"
)

// ErrRateLimitExceeded is returned when a client ran out of tokens. It
// matches perrors.ErrRateLimited.
var ErrRateLimitExceeded = fmt.Errorf("%w: client out of tokens", perrors.ErrRateLimited)

const (
	defaultMaxClients = 10000
	defaultIdleTTL    = 5 * time.Minute
)

// TokenBucket implements the token bucket algorithm for rate limiting.
type TokenBucket struct {
	mu         sync.Mutex
	capacity   float64
	tokens     float64
	refillRate float64 // tokens per second
	lastRefill time.Time
	now        func() time.Time
}

// NewTokenBucket creates a new token bucket rate limiter.
// capacity is the maximum number of tokens.
// refillRate is the number of tokens added per second.
func NewTokenBucket(capacity, refillRate int64) *TokenBucket {
	return newTokenBucket(capacity, refillRate, time.Now)
}

func newTokenBucket(capacity, refillRate int64, now func() time.Time) *TokenBucket {
	return &TokenBucket{
		capacity:   float64(capacity),
		tokens:     float64(capacity),
		refillRate: float64(refillRate),
		lastRefill: now(),
		now:        now,
	}
}

// Allow checks if a request should be allowed.
// Returns true if allowed, false if rate limited.
func (tb *TokenBucket) Allow() bool {
	return tb.AllowN(1)
}

// AllowN checks if N requests should be allowed.
func (tb *TokenBucket) AllowN(n int64) bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.refill()
	if tb.tokens >= float64(n) {
		tb.tokens -= float64(n)
		return true
	}
	return false
}

// refill adds tokens for the time elapsed since the last refill.
// Fractional tokens carry over.
func (tb *TokenBucket) refill() {
	now := tb.now()
	elapsed := now.Sub(tb.lastRefill).Seconds()
	tb.lastRefill = now
	if elapsed <= 0 {
		return
	}
	tb.tokens += elapsed * tb.refillRate
	if tb.tokens > tb.capacity {
		tb.tokens = tb.capacity
	}
}

// Available returns the number of whole tokens available.
func (tb *TokenBucket) Available() int64 {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.refill()
	return int64(tb.tokens)
}

// Config holds per-client limiter configuration.
type Config struct {
	// Capacity is the burst size per client.
	Capacity int64
	// RefillRate is the sustained requests per second per client.
	RefillRate int64
	// MaxClients bounds the number of tracked clients. New clients are
	// rejected while the table is full. If 0, uses 10000.
	MaxClients int
	// IdleTTL is how long an unused client bucket is kept. If 0, uses 5m.
	IdleTTL time.Duration
}

type client struct {
	bucket   *TokenBucket
	lastSeen time.Time
}

// Limiter manages per-client rate limiters, keyed by client address.
type Limiter struct {
	mu           sync.Mutex
	clients      map[string]*client
	config       Config
	now          func() time.Time
	cleanupTimer *time.Timer
	closed       bool
}

// NewLimiter creates a new rate limiter with per-client tracking.
func NewLimiter(config Config) *Limiter {
	if config.MaxClients <= 0 {
		config.MaxClients = defaultMaxClients
	}
	if config.IdleTTL <= 0 {
		config.IdleTTL = defaultIdleTTL
	}

	l := &Limiter{
		clients: make(map[string]*client),
		config:  config,
		now:     time.Now,
	}

	// Periodic cleanup of idle clients
	l.cleanupTimer = time.AfterFunc(config.IdleTTL, l.cleanup)

	return l
}

// Allow returns nil if a request from clientID is admitted and
// ErrRateLimitExceeded otherwise.
func (l *Limiter) Allow(clientID string) error {
	return l.AllowN(clientID, 1)
}

// AllowN admits n requests from clientID at once.
func (l *Limiter) AllowN(clientID string, n int64) error {
	l.mu.Lock()
	c, ok := l.clients[clientID]
	if !ok {
		if len(l.clients) >= l.config.MaxClients {
			l.mu.Unlock()
			return fmt.Errorf("%w: %d clients tracked", ErrRateLimitExceeded, l.config.MaxClients)
		}
		c = &client{bucket: newTokenBucket(l.config.Capacity, l.config.RefillRate, l.now)}
		l.clients[clientID] = c
	}
	c.lastSeen = l.now()
	l.mu.Unlock()

	if !c.bucket.AllowN(n) {
		return ErrRateLimitExceeded
	}
	return nil
}

// Remove removes a client's rate limiter.
func (l *Limiter) Remove(clientID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.clients, clientID)
}

// cleanup drops clients idle for longer than IdleTTL.
func (l *Limiter) cleanup() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return
	}
	l.evictIdle()
	l.cleanupTimer = time.AfterFunc(l.config.IdleTTL, l.cleanup)
}

func (l *Limiter) evictIdle() {
	cutoff := l.now().Add(-l.config.IdleTTL)
	for id, c := range l.clients {
		if c.lastSeen.Before(cutoff) {
			delete(l.clients, id)
		}
	}
}

// Stats returns limiter statistics.
func (l *Limiter) Stats() (clients int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.clients)
}

// Close stops the cleanup timer.
func (l *Limiter) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	if l.cleanupTimer != nil {
		l.cleanupTimer.Stop()
	}
}
