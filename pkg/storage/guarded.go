// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package storage

import (
	"errors"
	"fmt"
	"io"

	"github.com/absmach/wasp/pkg/breaker"
	perrors "github.com/absmach/wasp/pkg/errors"
)

var _ Sink = (*Guarded)(nil)

// Guarded wraps a Sink with a circuit breaker. Failed creates and writes
// count as failures; while the circuit is open Create fails fast with
// perrors.ErrSinkUnavailable. Open and Remove are never blocked so that
// cleanup keeps working during an outage.
type Guarded struct {
	sink Sink
	cb   *breaker.CircuitBreaker
}

// NewGuarded returns sink guarded by cb.
func NewGuarded(sink Sink, cb *breaker.CircuitBreaker) *Guarded {
	return &Guarded{sink: sink, cb: cb}
}

// Breaker returns the underlying circuit breaker.
func (g *Guarded) Breaker() *breaker.CircuitBreaker {
	return g.cb
}

// Create implements Sink.
func (g *Guarded) Create(name string) (File, error) {
	var f File
	err := g.cb.Call(func() error {
		var err error
		f, err = g.sink.Create(name)
		return err
	})
	if err != nil {
		return nil, unavailable(err)
	}
	return &guardedFile{File: f, cb: g.cb}, nil
}

// Open implements Sink.
func (g *Guarded) Open(path string) (io.ReadCloser, error) {
	return g.sink.Open(path)
}

// Remove implements Sink.
func (g *Guarded) Remove(path string) error {
	return g.sink.Remove(path)
}

func unavailable(err error) error {
	if errors.Is(err, breaker.ErrCircuitOpen) {
		return fmt.Errorf("%w: %w", perrors.ErrSinkUnavailable, err)
	}
	return err
}

type guardedFile struct {
	File
	cb *breaker.CircuitBreaker
}

func (f *guardedFile) Write(p []byte) (int, error) {
	n, err := f.File.Write(p)
	f.cb.Record(err)
	return n, err
}
