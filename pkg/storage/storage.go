// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package storage provides file sinks that receive uploaded payloads while
// a multipart body is being parsed.
package storage

import (
	"errors"
	"io"
)

var (
	// ErrNotFound is returned when a path does not exist in the sink.
	ErrNotFound = errors.New("file not found")

	// ErrClosed is returned when writing to a closed file.
	ErrClosed = errors.New("file already closed")
)

// File is an open, write-only sink file.
type File interface {
	io.Writer
	io.Closer

	// Path locates the file for Sink.Open and Sink.Remove.
	Path() string
}

// Sink stores uploaded payloads.
type Sink interface {
	// Create opens a new file for the upload named name. The sink picks
	// the actual path; name is only a hint.
	Create(name string) (File, error)

	// Open returns a reader over a previously written file.
	Open(path string) (io.ReadCloser, error)

	// Remove deletes a previously written file.
	Remove(path string) error
}
