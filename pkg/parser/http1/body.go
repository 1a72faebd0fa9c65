// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package http1

import (
	"bufio"
	"errors"
	"io"
	"net"
	"slices"
	"syscall"

	perrors "github.com/absmach/wasp/pkg/errors"
)

// bodyReader reads one request body off the connection buffer, either a
// fixed Content-Length or a chunked stream. It never reads past the end
// of the body, so pipelined requests stay buffered.
type bodyReader struct {
	br *bufio.Reader

	length    int64
	remaining int64

	dec     *chunkedDecoder
	buf     []byte
	pending []byte

	// reserve caps how much is allocated ahead of bytes actually read.
	reserve int
}

func newBodyReader(br *bufio.Reader, h *Head, maxBody int64, maxTrailer, reserve int) *bodyReader {
	b := &bodyReader{br: br, reserve: reserve}
	if h.Chunked {
		b.dec = newChunkedDecoder(h.Header, maxBody, maxTrailer)
		return b
	}
	b.length = h.ContentLength
	b.remaining = h.ContentLength
	return b
}

// Read implements io.Reader over the decoded body.
func (b *bodyReader) Read(p []byte) (int, error) {
	if b.dec == nil {
		return b.readFixed(p)
	}
	for len(b.pending) == 0 {
		if b.dec.done() {
			return 0, io.EOF
		}
		b.buf = b.buf[:0]
		if err := b.fill(b); err != nil {
			return 0, err
		}
		b.pending = b.buf
	}
	n := copy(p, b.pending)
	b.pending = b.pending[n:]
	return n, nil
}

func (b *bodyReader) readFixed(p []byte) (int, error) {
	if b.remaining == 0 {
		return 0, io.EOF
	}
	if int64(len(p)) > b.remaining {
		p = p[:b.remaining]
	}
	n, err := b.br.Read(p)
	b.remaining -= int64(n)
	if err != nil && b.remaining > 0 && isClosed(err) {
		return n, b.mismatch()
	}
	return n, err
}

func (b *bodyReader) mismatch() error {
	return perrors.Parsef("body length mismatch: Content-Length %d, received %d", b.length, b.length-b.remaining)
}

// fill feeds whatever is buffered to the chunk decoder, blocking for at
// least one byte.
func (b *bodyReader) fill(sink chunkSink) error {
	if _, err := b.br.Peek(1); err != nil {
		if isClosed(err) {
			return perrors.Parse("connection closed inside chunked body")
		}
		return err
	}
	data, _ := b.br.Peek(b.br.Buffered())
	n, _, err := b.dec.Feed(data, sink)
	b.br.Discard(n)
	return err
}

// readAll collects the whole body.
func (b *bodyReader) readAll() ([]byte, error) {
	if b.dec == nil {
		return b.readFixedAll()
	}

	c := &collector{reserve: int64(b.reserve)}
	for !b.dec.done() {
		if err := b.fill(c); err != nil {
			return nil, err
		}
	}
	return c.body, nil
}

// readFixedAll reads Content-Length bytes, growing the buffer as data
// arrives instead of trusting the declared length up front.
func (b *bodyReader) readFixedAll() ([]byte, error) {
	body := make([]byte, 0, min(b.length, int64(max(b.reserve, 1))))
	for int64(len(body)) < b.length {
		if len(body) == cap(body) {
			body = slices.Grow(body, int(min(int64(len(body)), b.length-int64(len(body)))))
		}
		n, err := b.Read(body[len(body):cap(body)])
		body = body[:len(body)+n]
		if err != nil {
			if errors.Is(err, io.EOF) && b.remaining > 0 {
				return nil, b.mismatch()
			}
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, err
		}
	}
	return body, nil
}

// grow and write make bodyReader the chunk sink while streaming.
func (b *bodyReader) grow(int64) {}

func (b *bodyReader) write(p []byte) error {
	b.buf = append(b.buf, p...)
	return nil
}

// collector is the chunk sink used by readAll.
type collector struct {
	body    []byte
	reserve int64
}

// grow reserves room for an announced chunk, at most reserve bytes.
func (c *collector) grow(n int64) {
	if n = min(n, c.reserve); n > 0 {
		c.body = slices.Grow(c.body, int(n))
	}
}

func (c *collector) write(p []byte) error {
	c.body = append(c.body, p...)
	return nil
}

// isClosed reports errors that mean the peer went away.
func isClosed(err error) bool {
	return errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, syscall.ECONNRESET)
}
