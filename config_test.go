// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package wasp

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/absmach/wasp/pkg/parser"
	"github.com/absmach/wasp/pkg/storage"
	"github.com/caarlos0/env/v11"
)

const testPrefix = "WASP_TEST_"

func TestNewConfig_Defaults(t *testing.T) {
	t.Setenv(testPrefix+"PORT", "8080")

	cfg, err := NewConfig(env.Options{Prefix: testPrefix})
	if err != nil {
		t.Fatalf("NewConfig() error = %v", err)
	}

	want := parser.Limits{MaxHeaderSize: 156051, MaxBodySize: 10 << 20, MaxReadSize: 65535}
	if got := cfg.Limits(); got != want {
		t.Errorf("Limits() = %+v, want %+v", got, want)
	}
	if got := cfg.Address(); got != ":8080" {
		t.Errorf("Address() = %q, want :8080", got)
	}
	if cfg.ReadTimeout != 30*time.Second || cfg.IdleTimeout != time.Minute {
		t.Errorf("timeouts = %v, %v", cfg.ReadTimeout, cfg.IdleTimeout)
	}
	if cfg.TLSConfig != nil {
		t.Error("TLS enabled without a certificate")
	}
}

func TestNewConfig_Overrides(t *testing.T) {
	t.Setenv(testPrefix+"HOST", "127.0.0.1")
	t.Setenv(testPrefix+"PORT", "9000")
	t.Setenv(testPrefix+"MAX_BODY_SIZE", "1024")
	t.Setenv(testPrefix+"WORKERS", "8")
	t.Setenv(testPrefix+"IDLE_TIMEOUT", "5s")
	t.Setenv(testPrefix+"REUSE_PORT", "true")

	cfg, err := NewConfig(env.Options{Prefix: testPrefix})
	if err != nil {
		t.Fatalf("NewConfig() error = %v", err)
	}
	if cfg.Address() != "127.0.0.1:9000" {
		t.Errorf("Address() = %q", cfg.Address())
	}
	if cfg.MaxBodySize != 1024 || cfg.Workers != 8 || cfg.IdleTimeout != 5*time.Second || !cfg.ReusePort {
		t.Errorf("overrides not applied: %+v", cfg)
	}
}

func TestNewConfig_Errors(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		err  error
	}{
		{"zero header size", map[string]string{"MAX_HEADER_SIZE": "0"}, ErrInvalidConfig},
		{"negative body size", map[string]string{"MAX_BODY_SIZE": "-1"}, ErrInvalidConfig},
		{"no workers", map[string]string{"WORKERS": "0"}, ErrInvalidConfig},
		{"negative queue wait", map[string]string{"QUEUE_WAIT": "-1s"}, ErrInvalidConfig},
		{"zero timeout", map[string]string{"READ_TIMEOUT": "0s"}, ErrInvalidConfig},
		{"cert without key", map[string]string{"CERT_FILE": "cert.pem"}, ErrInvalidConfig},
		{"client CA without cert", map[string]string{"CLIENT_CA_FILE": "ca.pem"}, ErrInvalidConfig},
		{"missing cert files", map[string]string{"CERT_FILE": "/nonexistent/cert.pem", "KEY_FILE": "/nonexistent/key.pem"}, os.ErrNotExist},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(testPrefix+k, v)
			}
			_, err := NewConfig(env.Options{Prefix: testPrefix})
			if !errors.Is(err, tt.err) {
				t.Errorf("NewConfig() error = %v, want %v", err, tt.err)
			}
		})
	}

	t.Run("malformed duration", func(t *testing.T) {
		t.Setenv(testPrefix+"IDLE_TIMEOUT", "soon")
		if _, err := NewConfig(env.Options{Prefix: testPrefix}); err == nil {
			t.Error("NewConfig() accepted a malformed duration")
		}
	})
}

func TestConfig_Sink(t *testing.T) {
	sink, err := Config{}.Sink()
	if err != nil {
		t.Fatalf("Sink() error = %v", err)
	}
	if _, ok := sink.(*storage.Memory); !ok {
		t.Errorf("Sink() = %T, want *storage.Memory", sink)
	}

	root := filepath.Join(t.TempDir(), "media")
	sink, err = Config{MediaRoot: root}.Sink()
	if err != nil {
		t.Fatalf("Sink() error = %v", err)
	}
	disk, ok := sink.(*storage.Disk)
	if !ok {
		t.Fatalf("Sink() = %T, want *storage.Disk", sink)
	}
	if err := disk.Writable(); err != nil {
		t.Errorf("Writable() error = %v", err)
	}
}
