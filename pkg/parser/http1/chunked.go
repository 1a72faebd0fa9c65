// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package http1

import (
	"strings"

	perrors "github.com/absmach/wasp/pkg/errors"
	"github.com/absmach/wasp/pkg/parser"
	"github.com/absmach/wasp/pkg/parser/chars"
	"github.com/absmach/wasp/pkg/request"
)

const maxChunkSizeDigits = 16

type chunkState uint8

const (
	chunkSize chunkState = iota
	chunkSizeMore
	chunkExt
	chunkSizeLF
	chunkData
	chunkDataCR
	chunkDataLF
	chunkTrailerStart
	chunkTrailer
	chunkTrailerLF
	chunkFinalLF
	chunkDone
)

// chunkSink receives decoded body bytes.
type chunkSink interface {
	// grow announces n more bytes before they are written.
	grow(n int64)
	write(p []byte) error
}

// chunkedDecoder strips chunked transfer coding. Trailer fields are
// merged into header, except the framing headers.
type chunkedDecoder struct {
	state     chunkState
	size      int64
	digits    int
	remaining int64
	total     int64
	maxBody   int64

	header      map[string]string
	line        []byte
	trailerSize int
	maxTrailer  int
}

func newChunkedDecoder(header map[string]string, maxBody int64, maxTrailer int) *chunkedDecoder {
	return &chunkedDecoder{
		header:     header,
		maxBody:    maxBody,
		maxTrailer: maxTrailer,
	}
}

// Total returns the number of decoded body bytes.
func (d *chunkedDecoder) Total() int64 {
	return d.total
}

func (d *chunkedDecoder) done() bool {
	return d.state == chunkDone
}

// Feed decodes data into sink and returns how many bytes of data were
// used. done reports the end of the trailer block; bytes after it belong
// to the next request.
func (d *chunkedDecoder) Feed(data []byte, sink chunkSink) (consumed int, done bool, err error) {
	i := 0
	for i < len(data) && d.state != chunkDone {
		if d.state == chunkData {
			n := int64(len(data) - i)
			if n > d.remaining {
				n = d.remaining
			}
			if err := sink.write(data[i : i+int(n)]); err != nil {
				return i, false, err
			}
			i += int(n)
			if d.remaining -= n; d.remaining == 0 {
				d.state = chunkDataCR
			}
			continue
		}
		if err := d.step(data[i], sink); err != nil {
			return i, false, err
		}
		i++
	}
	return i, d.state == chunkDone, nil
}

func (d *chunkedDecoder) step(c byte, sink chunkSink) error {
	switch d.state {
	case chunkSize:
		v, ok := chars.Unhex(int(c))
		if !ok {
			return perrors.Parsef("invalid chunk size: unexpected byte %q", c)
		}
		d.size = v
		d.digits = 1
		d.state = chunkSizeMore

	case chunkSizeMore:
		if v, ok := chars.Unhex(int(c)); ok {
			if d.digits++; d.digits > maxChunkSizeDigits || d.size > (1<<63-1)>>4 {
				return perrors.Parse("chunk size overflows")
			}
			d.size = d.size<<4 | v
			return nil
		}
		switch c {
		case ';', ' ', '\t':
			d.state = chunkExt
		case '\r':
			d.state = chunkSizeLF
		default:
			return perrors.Parsef("invalid chunk size: unexpected byte %q", c)
		}

	case chunkExt:
		switch {
		case c == '\r':
			d.state = chunkSizeLF
		case c != '\t' && chars.IsControl(int(c)):
			return perrors.Parsef("invalid chunk extension: unexpected byte %q", c)
		}

	case chunkSizeLF:
		if c != '\n' {
			return perrors.Parsef("expected LF after chunk size, got %q", c)
		}
		if d.size == 0 {
			d.state = chunkTrailerStart
			return nil
		}
		if d.size > d.maxBody-d.total {
			return perrors.EntityTooLarge("request body", d.maxBody)
		}
		sink.grow(d.size)
		d.total += d.size
		d.remaining = d.size
		d.state = chunkData

	case chunkDataCR:
		if c != '\r' {
			return perrors.Parsef("expected CR after chunk data, got %q", c)
		}
		d.state = chunkDataLF

	case chunkDataLF:
		if c != '\n' {
			return perrors.Parsef("expected LF after chunk data, got %q", c)
		}
		d.state = chunkSize

	case chunkTrailerStart:
		if c == '\r' {
			d.state = chunkFinalLF
			return nil
		}
		d.line = append(d.line[:0], c)
		d.state = chunkTrailer
		return d.countTrailer()

	case chunkTrailer:
		if c == '\r' {
			if err := d.mergeTrailer(); err != nil {
				return err
			}
			d.state = chunkTrailerLF
			return nil
		}
		d.line = append(d.line, c)
		return d.countTrailer()

	case chunkTrailerLF:
		if c != '\n' {
			return perrors.Parsef("expected LF after trailer field, got %q", c)
		}
		d.state = chunkTrailerStart

	case chunkFinalLF:
		if c != '\n' {
			return perrors.Parsef("expected LF after trailer block, got %q", c)
		}
		d.state = chunkDone
	}
	return nil
}

func (d *chunkedDecoder) countTrailer() error {
	if d.trailerSize++; d.trailerSize > d.maxTrailer {
		return perrors.EntityTooLarge("chunked trailer", int64(d.maxTrailer))
	}
	return nil
}

func (d *chunkedDecoder) mergeTrailer() error {
	name, value, err := parser.ParseField(d.line)
	if err != nil {
		return err
	}
	if strings.EqualFold(name, request.HeaderContentLength) || strings.EqualFold(name, request.HeaderTransferEncoding) {
		return nil
	}
	request.SetFold(d.header, name, value)
	return nil
}
