// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package http1

import (
	"bufio"
	"bytes"
	"context"
	"io"

	perrors "github.com/absmach/wasp/pkg/errors"
	"github.com/absmach/wasp/pkg/parser"
	"github.com/absmach/wasp/pkg/parser/form"
	"github.com/absmach/wasp/pkg/parser/multipart"
	"github.com/absmach/wasp/pkg/request"
	"github.com/absmach/wasp/pkg/storage"
)

var continueResponse = []byte("HTTP/1.1 100 Continue\r\n\r\n")

// Config configures a Parser.
type Config struct {
	parser.Limits

	// Sink receives uploaded files. Nil means an in-memory sink.
	Sink storage.Sink

	// MaxFieldSize bounds each non-file multipart field.
	MaxFieldSize int64
}

// Parser reads HTTP/1.x requests. It holds no per-request state and is
// safe for concurrent use.
type Parser struct {
	limits    parser.Limits
	multipart *multipart.Parser
}

var _ parser.Parser = (*Parser)(nil)

// New returns a Parser for cfg.
func New(cfg Config) *Parser {
	if cfg.Sink == nil {
		cfg.Sink = storage.NewMemory()
	}
	return &Parser{
		limits: cfg.Limits.WithDefaults(),
		multipart: multipart.New(multipart.Config{
			Sink:         cfg.Sink,
			MaxFieldSize: cfg.MaxFieldSize,
		}),
	}
}

// Limits returns the effective limits.
func (p *Parser) Limits() parser.Limits {
	return p.limits
}

// Parse implements parser.Parser.
func (p *Parser) Parse(ctx context.Context, r *bufio.Reader, w io.Writer) (*request.Request, error) {
	req, _, err := p.parse(ctx, r, w)
	return req, err
}

// ParseBytes parses data holding exactly one request. Bytes left over
// after the request are reported as a body length mismatch.
func (p *Parser) ParseBytes(data []byte) (*request.Request, error) {
	size := len(data)
	if size < 16 {
		size = 16
	}
	br := bufio.NewReaderSize(bytes.NewReader(data), size)
	req, h, err := p.parse(context.Background(), br, io.Discard)
	if err != nil {
		return nil, err
	}
	if extra := br.Buffered(); extra > 0 {
		req.Close()
		if h.Chunked {
			return nil, perrors.Parsef("%d unexpected bytes after chunked body", extra)
		}
		return nil, perrors.Parsef("body length mismatch: Content-Length %d, received %d", h.ContentLength, h.ContentLength+int64(extra))
	}
	return req, nil
}

func (p *Parser) parse(ctx context.Context, br *bufio.Reader, w io.Writer) (*request.Request, *Head, error) {
	h, err := p.readHead(br)
	if err != nil {
		return nil, nil, err
	}

	if h.Major == 0 {
		// A version-less request line ends at CR; drop its LF.
		if br.Buffered() > 0 {
			if b, _ := br.Peek(1); b[0] == '\n' {
				br.Discard(1)
			}
		}
	}

	if !h.Chunked && h.ContentLength > p.limits.MaxBodySize {
		return nil, nil, perrors.EntityTooLarge("request body", p.limits.MaxBodySize)
	}

	if h.ExpectContinue && (h.Chunked || h.ContentLength > 0) && w != nil {
		if _, err := w.Write(continueResponse); err != nil {
			return nil, nil, err
		}
	}

	var (
		content []byte
		post    *request.Parameters[string]
		files   *request.Parameters[*request.UploadedFile]
	)
	body := newBodyReader(br, h, p.limits.MaxBodySize, p.limits.MaxHeaderSize, p.limits.MaxReadSize)
	switch h.Kind {
	case request.ContentNone:
	case request.ContentMultipart:
		post, files, err = p.multipart.Parse(ctx, h.ContentType, body)
		if err != nil {
			return nil, nil, err
		}
		// Skip whatever follows the close delimiter.
		if _, err := io.Copy(io.Discard, body); err != nil {
			request.RemoveFiles(files)
			return nil, nil, err
		}
	default:
		if content, err = body.readAll(); err != nil {
			return nil, nil, err
		}
		if h.Kind == request.ContentURLEncoded {
			post = form.ParseBytes(content)
		}
	}

	req := request.New(request.Fields{
		Method:      h.Method,
		Path:        h.Path,
		Query:       h.Query,
		Major:       h.Major,
		Minor:       h.Minor,
		KeepAlive:   h.KeepAlive,
		Body:        content,
		Header:      h.Header,
		ContentKind: h.Kind,
		QueryParams: form.Parse(h.Query),
		FormParams:  post,
		Files:       files,
	})
	return req, h, nil
}

// readHead runs the header state machine over buffered bytes until the
// header block is complete.
func (p *Parser) readHead(br *bufio.Reader) (*Head, error) {
	hp := NewHeadParser(p.limits.MaxHeaderSize)
	for {
		if _, err := br.Peek(1); err != nil {
			switch {
			case !hp.Started() && isClosed(err):
				return nil, perrors.ErrConnectionClosed
			case isClosed(err):
				return nil, perrors.Parsef("connection closed in state %s", hp.State())
			default:
				return nil, err
			}
		}
		data, _ := br.Peek(br.Buffered())
		n, done, err := hp.Feed(data)
		br.Discard(n)
		if err != nil {
			return nil, err
		}
		if done {
			return hp.Head(), nil
		}
	}
}
