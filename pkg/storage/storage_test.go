// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package storage

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/absmach/wasp/pkg/breaker"
	perrors "github.com/absmach/wasp/pkg/errors"
)

func writeFile(t *testing.T, s Sink, name, content string) string {
	t.Helper()
	f, err := s.Create(name)
	if err != nil {
		t.Fatalf("Create(%q) error = %v", name, err)
	}
	if _, err := io.WriteString(f, content); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	return f.Path()
}

func readFile(t *testing.T, s Sink, path string) string {
	t.Helper()
	rc, err := s.Open(path)
	if err != nil {
		t.Fatalf("Open(%q) error = %v", path, err)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}
	return string(data)
}

func TestSinks(t *testing.T) {
	disk, err := NewDisk(t.TempDir())
	if err != nil {
		t.Fatalf("NewDisk() error = %v", err)
	}

	tests := []struct {
		name string
		sink Sink
	}{
		{"disk", disk},
		{"memory", NewMemory()},
		{"guarded", NewGuarded(NewMemory(), breaker.New(breaker.Config{}))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, tt.sink, "hello_world.txt", "Hello, World!")
			if got := readFile(t, tt.sink, path); got != "Hello, World!" {
				t.Errorf("content = %q, want %q", got, "Hello, World!")
			}
			if err := tt.sink.Remove(path); err != nil {
				t.Fatalf("Remove() error = %v", err)
			}
			if _, err := tt.sink.Open(path); !errors.Is(err, ErrNotFound) {
				t.Errorf("Open() after Remove error = %v, want ErrNotFound", err)
			}
			if err := tt.sink.Remove(path); !errors.Is(err, ErrNotFound) {
				t.Errorf("second Remove() error = %v, want ErrNotFound", err)
			}
		})
	}
}

func TestDisk_Names(t *testing.T) {
	root := t.TempDir()
	d, err := NewDisk(root)
	if err != nil {
		t.Fatalf("NewDisk() error = %v", err)
	}

	a := writeFile(t, d, "../../etc/passwd.TXT", "a")
	b := writeFile(t, d, "../../etc/passwd.TXT", "b")
	if a == b {
		t.Fatal("expected distinct paths for uploads with the same name")
	}
	for _, p := range []string{a, b} {
		if filepath.Dir(p) != d.Root() {
			t.Errorf("path %q not directly under %q", p, d.Root())
		}
		if !strings.HasSuffix(p, ".txt") {
			t.Errorf("path %q lost its extension", p)
		}
	}

	outside := filepath.Join(t.TempDir(), "x")
	if err := os.WriteFile(outside, []byte("x"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := d.Remove(outside); err == nil {
		t.Error("expected Remove outside media root to fail")
	}
	if _, err := d.Open(outside); err == nil {
		t.Error("expected Open outside media root to fail")
	}
	if err := d.Writable(); err != nil {
		t.Errorf("Writable() error = %v", err)
	}
}

func TestMemory_CloseTwice(t *testing.T) {
	m := NewMemory()
	f, _ := m.Create("a")
	if _, err := m.Open(f.Path()); !errors.Is(err, ErrNotFound) {
		t.Errorf("file visible before Close: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}
	if err := f.Close(); !errors.Is(err, ErrClosed) {
		t.Errorf("second Close() error = %v, want ErrClosed", err)
	}
	if _, err := f.Write([]byte("x")); !errors.Is(err, ErrClosed) {
		t.Errorf("Write() after Close error = %v, want ErrClosed", err)
	}
	if m.Len() != 1 {
		t.Errorf("Len() = %d, want 1", m.Len())
	}
}

type failingSink struct {
	Memory
	err error
}

func (s *failingSink) Create(string) (File, error) {
	return nil, s.err
}

func TestGuarded_OpensCircuit(t *testing.T) {
	diskFull := errors.New("no space left on device")
	cb := breaker.New(breaker.Config{MaxFailures: 2, ResetTimeout: time.Hour})
	g := NewGuarded(&failingSink{err: diskFull}, cb)

	for i := 0; i < 2; i++ {
		if _, err := g.Create("a"); !errors.Is(err, diskFull) {
			t.Fatalf("Create() #%d error = %v, want %v", i, err, diskFull)
		}
	}
	_, err := g.Create("a")
	if !errors.Is(err, perrors.ErrSinkUnavailable) {
		t.Fatalf("Create() with open circuit error = %v, want ErrSinkUnavailable", err)
	}
	if perrors.StatusCode(err) != 503 {
		t.Errorf("StatusCode() = %d, want 503", perrors.StatusCode(err))
	}
	if g.Breaker().State() != breaker.StateOpen {
		t.Errorf("breaker state = %v, want open", g.Breaker().State())
	}
}
