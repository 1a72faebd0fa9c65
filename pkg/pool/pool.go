// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package pool provides a fixed-size worker pool for connection handling.
package pool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
)

const (
	// DefaultWorkers is the default number of workers.
	DefaultWorkers = 100

	// queueFactor sizes the default queue relative to the worker count.
	queueFactor = 2
)

var (
	// ErrPoolClosed is returned when the pool is closed.
	ErrPoolClosed = errors.New("worker pool is closed")
	// ErrQueueFull is returned when no queue slot is available.
	ErrQueueFull = errors.New("worker queue is full")
)

// Task is a unit of work. The context is canceled when the pool is
// forced to stop.
type Task func(ctx context.Context)

// Config holds worker pool configuration.
type Config struct {
	// Workers is the number of goroutines serving tasks.
	// If 0, uses DefaultWorkers.
	Workers int
	// QueueSize is the number of tasks that may wait for a worker.
	// If 0, uses twice the number of workers.
	QueueSize int
	// Logger for pool events.
	Logger *slog.Logger
}

// Pool runs submitted tasks on a fixed set of workers.
type Pool struct {
	config Config
	tasks  chan Task
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.RWMutex
	closed bool

	busy      atomic.Int64
	completed atomic.Uint64
	panics    atomic.Uint64
}

// New creates a pool and starts its workers.
func New(config Config) *Pool {
	if config.Workers <= 0 {
		config.Workers = DefaultWorkers
	}
	if config.QueueSize <= 0 {
		config.QueueSize = config.Workers * queueFactor
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		config: config,
		tasks:  make(chan Task, config.QueueSize),
		ctx:    ctx,
		cancel: cancel,
	}
	for i := 0; i < config.Workers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
	return p
}

// Submit queues task, blocking until a slot frees up or ctx is done.
func (p *Pool) Submit(ctx context.Context, task Task) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return ErrPoolClosed
	}
	select {
	case p.tasks <- task:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TrySubmit queues task without blocking.
func (p *Pool) TrySubmit(task Task) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return ErrPoolClosed
	}
	select {
	case p.tasks <- task:
		return nil
	default:
		return ErrQueueFull
	}
}

// Close stops accepting tasks and waits for queued ones to finish.
// When ctx expires first, the task context is canceled and Close keeps
// waiting for the workers to return.
func (p *Pool) Close(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.tasks)
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.cancel()
		return nil
	case <-ctx.Done():
		p.cancel()
		<-done
		return fmt.Errorf("worker pool drain: %w", ctx.Err())
	}
}

// Stats returns pool statistics.
func (p *Pool) Stats() (workers, busy, queued int) {
	return p.config.Workers, int(p.busy.Load()), len(p.tasks)
}

// Completed returns the number of tasks run to completion.
func (p *Pool) Completed() uint64 {
	return p.completed.Load()
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()
	for task := range p.tasks {
		p.run(id, task)
	}
}

func (p *Pool) run(id int, task Task) {
	p.busy.Add(1)
	defer func() {
		p.busy.Add(-1)
		if r := recover(); r != nil {
			p.panics.Add(1)
			p.config.Logger.Error("worker task panicked",
				slog.Int("worker", id),
				slog.Any("panic", r))
			return
		}
		p.completed.Add(1)
	}()
	task(p.ctx)
}
