// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package multipart parses multipart/form-data bodies as a stream.
//
// The body is read through a fixed window. File payloads are written to a
// storage.Sink as they arrive, so memory use is bounded by the window and
// the field size limit regardless of upload size.
package multipart

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"unicode/utf8"

	perrors "github.com/absmach/wasp/pkg/errors"
	"github.com/absmach/wasp/pkg/parser"
	"github.com/absmach/wasp/pkg/request"
	"github.com/absmach/wasp/pkg/storage"
)

const (
	// DefaultWindowSize is the read window over the body.
	DefaultWindowSize = 16 << 10

	// DefaultMaxFieldSize bounds the payload of a single non-file part.
	DefaultMaxFieldSize = 1 << 20

	// DefaultContentType is used for file parts without a Content-Type.
	DefaultContentType = "application/octet-stream"

	maxBoundaryLen = 70
	minWindowSize  = 4 << 10
)

// Config configures a Parser.
type Config struct {
	// Sink receives file payloads. Nil means an in-memory sink.
	Sink storage.Sink

	// MaxFieldSize bounds each field payload.
	MaxFieldSize int64

	// WindowSize is the read window. It also bounds each part header block.
	WindowSize int
}

// Parser splits multipart/form-data bodies into fields and files.
// A Parser is safe for concurrent use.
type Parser struct {
	sink     storage.Sink
	maxField int64
	window   int
}

// New returns a Parser for cfg.
func New(cfg Config) *Parser {
	if cfg.Sink == nil {
		cfg.Sink = storage.NewMemory()
	}
	if cfg.MaxFieldSize <= 0 {
		cfg.MaxFieldSize = DefaultMaxFieldSize
	}
	if cfg.WindowSize < minWindowSize {
		cfg.WindowSize = DefaultWindowSize
	}
	return &Parser{
		sink:     cfg.Sink,
		maxField: cfg.MaxFieldSize,
		window:   cfg.WindowSize,
	}
}

// Boundary returns the boundary parameter of a multipart Content-Type.
func Boundary(contentType string) (string, error) {
	_, params, ok := parseParams(contentType)
	if !ok {
		return "", perrors.MultiPart("malformed Content-Type parameters")
	}
	b := params["boundary"]
	switch {
	case b == "":
		return "", perrors.MultiPart("missing boundary in Content-Type")
	case len(b) > maxBoundaryLen:
		return "", perrors.MultiPartf("boundary longer than %d bytes", maxBoundaryLen)
	}
	return b, nil
}

// Parse reads a multipart body from r. contentType is the request
// Content-Type holding the boundary. On error every file already written
// to the sink is removed.
func (p *Parser) Parse(ctx context.Context, contentType string, r io.Reader) (*request.Parameters[string], *request.Parameters[*request.UploadedFile], error) {
	boundary, err := Boundary(contentType)
	if err != nil {
		return nil, nil, err
	}

	fields := request.NewParameters[string]()
	files := request.NewParameters[*request.UploadedFile]()
	s := &scanner{
		p:        p,
		br:       bufio.NewReaderSize(r, p.window),
		boundary: boundary,
		dash:     []byte("--" + boundary),
		sep:      []byte("\r\n--" + boundary),
	}

	if err := s.run(ctx, fields, files); err != nil {
		request.RemoveFiles(files)
		return nil, nil, err
	}
	return fields, files, nil
}

type part struct {
	name        string
	filename    string
	isFile      bool
	disposition string
	contentType string
	charset     string
}

type scanner struct {
	p        *Parser
	br       *bufio.Reader
	boundary string
	dash     []byte // --boundary
	sep      []byte // CRLF--boundary
}

func (s *scanner) run(ctx context.Context, fields *request.Parameters[string], files *request.Parameters[*request.UploadedFile]) error {
	last, err := s.skipPreamble()
	if err != nil {
		return err
	}

	for !last {
		if err := ctx.Err(); err != nil {
			return err
		}

		pt, err := s.readPartHeader()
		if err != nil {
			return err
		}

		if !pt.isFile {
			var buf bytes.Buffer
			if last, err = s.copyPart(&limitedWriter{w: &buf, limit: s.p.maxField}); err != nil {
				return err
			}
			if !utf8.Valid(buf.Bytes()) {
				return perrors.MultiPartf("field %q is not valid UTF-8", pt.name)
			}
			fields.Append(pt.name, buf.String())
			continue
		}

		up := &request.UploadedFile{
			Name:               pt.name,
			Filename:           pt.filename,
			ContentType:        pt.contentType,
			Charset:            pt.charset,
			Boundary:           s.boundary,
			ContentDisposition: pt.disposition,
			Store:              s.p.sink,
		}
		if pt.filename == "" {
			// No file selected in the form.
			if last, err = s.copyPart(io.Discard); err != nil {
				return err
			}
			files.Append(pt.name, up)
			continue
		}
		if last, err = s.saveFile(up); err != nil {
			return err
		}
		files.Append(pt.name, up)
	}
	return nil
}

func (s *scanner) saveFile(up *request.UploadedFile) (bool, error) {
	f, err := s.p.sink.Create(up.Filename)
	if err != nil {
		return false, perrors.Wrap(err, "create upload file")
	}
	up.Path = f.Path()

	cw := &countingWriter{w: f}
	last, err := s.copyPart(cw)
	up.Size = cw.n
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		s.p.sink.Remove(up.Path)
		return false, err
	}
	return last, nil
}

// skipPreamble discards everything up to and including the first
// delimiter line. last reports a body made of the close delimiter alone.
func (s *scanner) skipPreamble() (last bool, err error) {
	lineStart := true
	for {
		line, err := s.br.ReadSlice('\n')
		// A fragment of a line longer than the window is never a delimiter.
		whole := lineStart
		lineStart = len(line) > 0 && line[len(line)-1] == '\n'
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		if !whole {
			line = nil
		}
		switch text := bytes.TrimRight(line, " \t\r\n"); {
		case bytes.Equal(text, s.dash):
			if err != nil {
				return false, perrors.MultiPart("unterminated multipart body")
			}
			return false, nil
		case len(text) == len(s.dash)+2 && bytes.HasPrefix(text, s.dash) && bytes.HasSuffix(text, []byte("--")):
			return true, nil
		}
		if errors.Is(err, io.EOF) {
			return false, perrors.MultiPart("missing opening boundary")
		}
		if err != nil {
			return false, err
		}
	}
}

// readPartHeader reads the header block of one part up to its blank line.
func (s *scanner) readPartHeader() (part, error) {
	var pt part
	header := make(map[string]string)
	size := 0
	for {
		line, err := s.br.ReadSlice('\n')
		size += len(line)
		if errors.Is(err, bufio.ErrBufferFull) || size > s.p.window {
			return pt, perrors.EntityTooLarge("part header", int64(s.p.window))
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return pt, perrors.MultiPart("part header block not terminated by a blank line")
			}
			return pt, err
		}

		line = bytes.TrimSuffix(bytes.TrimSuffix(line, []byte("\n")), []byte("\r"))
		if len(line) == 0 {
			break
		}
		name, value, err := parser.ParseField(line)
		if err != nil {
			return pt, perrors.MultiPartf("invalid part header: %v", err)
		}
		header[strings.ToLower(name)] = value
	}

	cd, ok := header["content-disposition"]
	if !ok {
		return pt, perrors.MultiPart("part without Content-Disposition")
	}
	disposition, params, ok := parseParams(cd)
	if !ok {
		return pt, perrors.MultiPart("malformed Content-Disposition parameters")
	}
	if !strings.EqualFold(disposition, "form-data") {
		return pt, perrors.MultiPartf("unexpected disposition %q", disposition)
	}
	if pt.name, ok = params["name"]; !ok || pt.name == "" {
		return pt, perrors.MultiPart("Content-Disposition without name")
	}
	pt.filename, pt.isFile = params["filename"]
	pt.disposition = cd

	pt.contentType = DefaultContentType
	if ct, ok := header["content-type"]; ok {
		media, ctParams, _ := parseParams(ct)
		if media != "" {
			pt.contentType = media
		}
		pt.charset = ctParams["charset"]
	}
	return pt, nil
}

// copyPart writes the part payload to w and consumes the delimiter that
// ends it. last reports the close delimiter. Bytes that could start the
// delimiter are held back until enough of the stream has been read.
func (s *scanner) copyPart(w io.Writer) (last bool, err error) {
	need := len(s.sep) + 2
	want := need
	for {
		if b := s.br.Buffered(); b > want {
			want = b
		}
		buf, perr := s.br.Peek(want)

		if i := bytes.Index(buf, s.sep); i >= 0 {
			if _, err := w.Write(buf[:i]); err != nil {
				return false, err
			}
			s.br.Discard(i + len(s.sep))
			return s.readDelimiterTail()
		}

		if perr != nil && !errors.Is(perr, bufio.ErrBufferFull) {
			if errors.Is(perr, io.EOF) {
				return false, perrors.MultiPart("unterminated multipart body: missing close delimiter")
			}
			return false, perr
		}

		safe := len(buf) - partialSuffix(buf, s.sep)
		if safe == 0 {
			want = len(buf) + 1
			continue
		}
		if _, err := w.Write(buf[:safe]); err != nil {
			return false, err
		}
		s.br.Discard(safe)
		want = need
	}
}

// readDelimiterTail reads what follows a delimiter: "--" for the close
// delimiter or the end of the line for the next part. Trailing spaces
// are allowed on the line.
func (s *scanner) readDelimiterTail() (bool, error) {
	line, err := s.br.ReadSlice('\n')
	if errors.Is(err, bufio.ErrBufferFull) {
		return false, perrors.MultiPart("malformed boundary delimiter")
	}
	text := bytes.TrimRight(line, " \t\r\n")
	switch {
	case bytes.Equal(text, []byte("--")):
		// The epilogue, if any, is ignored.
		return true, nil
	case len(text) == 0 && err == nil:
		return false, nil
	case len(text) == 0 && errors.Is(err, io.EOF):
		return false, perrors.MultiPart("unterminated multipart body: missing close delimiter")
	case err != nil && !errors.Is(err, io.EOF):
		return false, err
	default:
		return false, perrors.MultiPart("malformed boundary delimiter")
	}
}

// partialSuffix returns the length of the longest suffix of buf that is
// a proper prefix of sep.
func partialSuffix(buf, sep []byte) int {
	n := len(sep) - 1
	if n > len(buf) {
		n = len(buf)
	}
	for ; n > 0; n-- {
		if bytes.HasSuffix(buf, sep[:n]) {
			return n
		}
	}
	return 0
}

type limitedWriter struct {
	w     io.Writer
	n     int64
	limit int64
}

func (l *limitedWriter) Write(p []byte) (int, error) {
	if l.n+int64(len(p)) > l.limit {
		return 0, perrors.EntityTooLarge("form field", l.limit)
	}
	n, err := l.w.Write(p)
	l.n += int64(n)
	return n, err
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
