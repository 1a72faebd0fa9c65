// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package parser

import (
	"bufio"
	"context"
	"io"

	"github.com/absmach/wasp/pkg/request"
)

const (
	// DefaultMaxHeaderSize bounds the request line plus header block.
	DefaultMaxHeaderSize = 156051

	// DefaultMaxBodySize bounds the decoded body.
	DefaultMaxBodySize = 10 << 20

	// DefaultMaxReadSize is the size of the per-connection read buffer.
	DefaultMaxReadSize = 65535
)

// Limits are process-wide size guards. They are set once at startup.
type Limits struct {
	// MaxHeaderSize is the largest accepted request line plus header block.
	MaxHeaderSize int

	// MaxBodySize is the largest accepted decoded body.
	MaxBodySize int64

	// MaxReadSize is the largest single read from the connection.
	MaxReadSize int
}

// WithDefaults fills zero limits with their defaults.
func (l Limits) WithDefaults() Limits {
	if l.MaxHeaderSize <= 0 {
		l.MaxHeaderSize = DefaultMaxHeaderSize
	}
	if l.MaxBodySize <= 0 {
		l.MaxBodySize = DefaultMaxBodySize
	}
	if l.MaxReadSize <= 0 {
		l.MaxReadSize = DefaultMaxReadSize
	}
	return l
}

// Parser reads requests off a connection.
//
// Parse is called in a loop for each keep-alive connection. It should:
//   - Read exactly one request from r, leaving any pipelined bytes buffered
//   - Write interim responses (100 Continue) to w when the client asks for them
//   - Return errors.ErrConnectionClosed when r ends before a request starts
//   - Return a *errors.ParseError for malformed or oversized input
//   - Return transport errors unchanged
type Parser interface {
	Parse(ctx context.Context, r *bufio.Reader, w io.Writer) (*request.Request, error)
}
