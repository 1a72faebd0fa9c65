// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package storage

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

var _ Sink = (*Disk)(nil)

// Disk writes uploads under a media root directory. Every upload gets a
// fresh random name that keeps only the extension of the client name.
type Disk struct {
	root string
	perm fs.FileMode
}

// NewDisk creates root if needed and returns a sink writing below it.
func NewDisk(root string) (*Disk, error) {
	if root == "" {
		return nil, fmt.Errorf("media root not configured")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve media root %s: %w", root, err)
	}
	if err := os.MkdirAll(abs, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create media root %s: %w", abs, err)
	}
	return &Disk{root: abs, perm: 0o640}, nil
}

// Root returns the absolute media root.
func (d *Disk) Root() string {
	return d.root
}

// Create implements Sink.
func (d *Disk) Create(name string) (File, error) {
	ext := strings.ToLower(filepath.Ext(filepath.Base(name)))
	if len(ext) > 16 {
		ext = ""
	}
	path := filepath.Join(d.root, uuid.NewString()+ext)
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, d.perm)
	if err != nil {
		return nil, fmt.Errorf("failed to create upload file: %w", err)
	}
	return &diskFile{File: f}, nil
}

// Open implements Sink.
func (d *Disk) Open(path string) (io.ReadCloser, error) {
	if err := d.contains(path); err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	return f, err
}

// Remove implements Sink.
func (d *Disk) Remove(path string) error {
	if err := d.contains(path); err != nil {
		return err
	}
	err := os.Remove(path)
	if errors.Is(err, fs.ErrNotExist) {
		return ErrNotFound
	}
	return err
}

// Writable checks that the media root accepts new files.
func (d *Disk) Writable() error {
	f, err := os.CreateTemp(d.root, ".probe-*")
	if err != nil {
		return err
	}
	name := f.Name()
	f.Close()
	return os.Remove(name)
}

func (d *Disk) contains(path string) error {
	rel, err := filepath.Rel(d.root, path)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") || filepath.IsAbs(rel) {
		return fmt.Errorf("path %s is outside media root", path)
	}
	return nil
}

type diskFile struct {
	*os.File
}

func (f *diskFile) Path() string {
	return f.Name()
}
