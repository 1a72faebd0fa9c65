// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package wasp holds the configuration shared by the wasp binaries.
package wasp

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/absmach/wasp/pkg/parser"
	"github.com/absmach/wasp/pkg/storage"
	"github.com/caarlos0/env/v11"
)

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("invalid config")

// Config is the configuration of one HTTP listener. Fields are read from
// the environment under a prefix, e.g. WASP_HTTP_PORT.
type Config struct {
	Host string `env:"HOST" envDefault:""`
	Port string `env:"PORT" envDefault:""`

	// Size guards
	MaxHeaderSize int   `env:"MAX_HEADER_SIZE" envDefault:"156051"`
	MaxBodySize   int64 `env:"MAX_BODY_SIZE"   envDefault:"10485760"`
	MaxReadSize   int   `env:"MAX_READ_SIZE"   envDefault:"65535"`
	MaxFieldSize  int64 `env:"MAX_FIELD_SIZE"  envDefault:"1048576"`

	// MediaRoot is where uploads are written. Empty keeps them in memory.
	MediaRoot string `env:"MEDIA_ROOT" envDefault:""`

	// Connection handling
	Workers         int           `env:"WORKERS"          envDefault:"100"`
	QueueSize       int           `env:"QUEUE_SIZE"       envDefault:"200"`
	QueueWait       time.Duration `env:"QUEUE_WAIT"       envDefault:"0s"`
	ReadTimeout     time.Duration `env:"READ_TIMEOUT"     envDefault:"30s"`
	IdleTimeout     time.Duration `env:"IDLE_TIMEOUT"     envDefault:"60s"`
	WriteTimeout    time.Duration `env:"WRITE_TIMEOUT"    envDefault:"30s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"30s"`
	ReusePort       bool          `env:"REUSE_PORT"       envDefault:"false"`

	// TLS, enabled when CertFile is set. ClientCAFile turns on mTLS.
	CertFile     string `env:"CERT_FILE"      envDefault:""`
	KeyFile      string `env:"KEY_FILE"       envDefault:""`
	ClientCAFile string `env:"CLIENT_CA_FILE" envDefault:""`

	TLSConfig *tls.Config `env:"-"`
}

// NewConfig parses the environment with opts, validates the result and
// loads TLS material.
func NewConfig(opts env.Options) (Config, error) {
	var c Config
	if err := env.ParseWithOptions(&c, opts); err != nil {
		return Config{}, err
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}

	tlsConfig, err := c.loadTLS()
	if err != nil {
		return Config{}, err
	}
	c.TLSConfig = tlsConfig

	return c, nil
}

// Validate checks limits and timeouts.
func (c Config) Validate() error {
	switch {
	case c.MaxHeaderSize <= 0:
		return fmt.Errorf("%w: max header size must be positive", ErrInvalidConfig)
	case c.MaxBodySize <= 0:
		return fmt.Errorf("%w: max body size must be positive", ErrInvalidConfig)
	case c.MaxReadSize <= 0:
		return fmt.Errorf("%w: max read size must be positive", ErrInvalidConfig)
	case c.MaxFieldSize <= 0:
		return fmt.Errorf("%w: max field size must be positive", ErrInvalidConfig)
	case c.Workers <= 0:
		return fmt.Errorf("%w: workers must be positive", ErrInvalidConfig)
	case c.QueueSize < 0 || c.QueueWait < 0:
		return fmt.Errorf("%w: queue size and wait must not be negative", ErrInvalidConfig)
	case c.ReadTimeout <= 0 || c.IdleTimeout <= 0 || c.WriteTimeout <= 0 || c.ShutdownTimeout <= 0:
		return fmt.Errorf("%w: timeouts must be positive", ErrInvalidConfig)
	case (c.CertFile == "") != (c.KeyFile == ""):
		return fmt.Errorf("%w: cert file and key file must be set together", ErrInvalidConfig)
	case c.ClientCAFile != "" && c.CertFile == "":
		return fmt.Errorf("%w: client CA requires a server certificate", ErrInvalidConfig)
	}
	return nil
}

// Limits returns the parser size guards.
func (c Config) Limits() parser.Limits {
	return parser.Limits{
		MaxHeaderSize: c.MaxHeaderSize,
		MaxBodySize:   c.MaxBodySize,
		MaxReadSize:   c.MaxReadSize,
	}
}

// Address returns the listen address.
func (c Config) Address() string {
	return net.JoinHostPort(c.Host, c.Port)
}

// Sink returns the upload sink: a disk sink under MediaRoot, or memory.
func (c Config) Sink() (storage.Sink, error) {
	if c.MediaRoot == "" {
		return storage.NewMemory(), nil
	}
	disk, err := storage.NewDisk(c.MediaRoot)
	if err != nil {
		return nil, err
	}
	return disk, nil
}

func (c Config) loadTLS() (*tls.Config, error) {
	if c.CertFile == "" {
		return nil, nil
	}
	cert, err := tls.LoadX509KeyPair(c.CertFile, c.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load server certificate: %w", err)
	}
	tlsConfig := &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}
	if c.ClientCAFile == "" {
		return tlsConfig, nil
	}

	pem, err := os.ReadFile(c.ClientCAFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read client CA: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, fmt.Errorf("%w: no certificates in %s", ErrInvalidConfig, c.ClientCAFile)
	}
	tlsConfig.ClientCAs = pool
	tlsConfig.ClientAuth = tls.RequireAndVerifyClientCert
	return tlsConfig, nil
}
