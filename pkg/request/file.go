// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package request

import (
	"errors"
	"io"
	"sync/atomic"
)

// ErrNoStore is returned when an upload has no backing store.
var ErrNoStore = errors.New("uploaded file has no backing store")

// Store gives access to files written by a file sink.
type Store interface {
	Open(path string) (io.ReadCloser, error)
	Remove(path string) error
}

// UploadedFile describes one file part of a multipart body. The payload
// itself lives in Store under Path; it was streamed there while parsing.
type UploadedFile struct {
	// Name is the form field name.
	Name string
	// Filename is the client-supplied file name.
	Filename string
	// Size is the payload length in bytes.
	Size int64
	// Path locates the payload in Store. Empty when no file was selected.
	Path string
	// ContentType of the part, application/octet-stream if not given.
	ContentType string
	// Charset parameter of the part Content-Type, if any.
	Charset string
	// Boundary the part was parsed under.
	Boundary string
	// ContentDisposition is the raw Content-Disposition header of the part.
	ContentDisposition string
	// Store holds the payload.
	Store Store

	kept atomic.Bool
}

// Open returns a reader for the payload.
func (f *UploadedFile) Open() (io.ReadCloser, error) {
	if f.Store == nil || f.Path == "" {
		return nil, ErrNoStore
	}
	return f.Store.Open(f.Path)
}

// Keep stops Request.Close from removing the payload.
func (f *UploadedFile) Keep() {
	f.kept.Store(true)
}

// Kept reports whether Keep was called.
func (f *UploadedFile) Kept() bool {
	return f.kept.Load()
}

// Remove deletes the payload from Store unless it was kept.
func (f *UploadedFile) Remove() error {
	if f.Kept() || f.Store == nil || f.Path == "" {
		return nil
	}
	return f.Store.Remove(f.Path)
}

// RemoveFiles removes every payload in files that was not kept.
func RemoveFiles(files *Parameters[*UploadedFile]) error {
	var errs []error
	for _, key := range files.Keys() {
		for _, f := range files.GetAll(key) {
			if err := f.Remove(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}
