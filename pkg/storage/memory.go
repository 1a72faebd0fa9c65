// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package storage

import (
	"bytes"
	"fmt"
	"io"
	"sync"
)

var _ Sink = (*Memory)(nil)

// Memory keeps uploads in memory. Useful for tests and small deployments
// where uploads never reach disk.
type Memory struct {
	mu    sync.Mutex
	seq   int
	files map[string][]byte
}

// NewMemory returns an empty in-memory sink.
func NewMemory() *Memory {
	return &Memory{files: make(map[string][]byte)}
}

// Create implements Sink.
func (m *Memory) Create(name string) (File, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	return &memFile{sink: m, path: fmt.Sprintf("mem/%d/%s", m.seq, name)}, nil
}

// Open implements Sink.
func (m *Memory) Open(path string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.files[path]
	if !ok {
		return nil, ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

// Remove implements Sink.
func (m *Memory) Remove(path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.files[path]; !ok {
		return ErrNotFound
	}
	delete(m.files, path)
	return nil
}

// Len returns the number of stored files.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.files)
}

type memFile struct {
	sink   *Memory
	path   string
	buf    bytes.Buffer
	closed bool
}

func (f *memFile) Write(p []byte) (int, error) {
	if f.closed {
		return 0, ErrClosed
	}
	return f.buf.Write(p)
}

// Close publishes the file; it is not visible to Open before that.
func (f *memFile) Close() error {
	if f.closed {
		return ErrClosed
	}
	f.closed = true
	f.sink.mu.Lock()
	f.sink.files[f.path] = f.buf.Bytes()
	f.sink.mu.Unlock()
	return nil
}

func (f *memFile) Path() string {
	return f.path
}
