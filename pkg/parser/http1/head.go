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

const maxVersionDigits = 3

// Head is the request line and header block of one request.
type Head struct {
	Method string
	Path   string
	Query  string
	Major  int
	Minor  int

	// KeepAlive is decided from the version and the Connection header.
	KeepAlive bool

	// Header holds one entry per name, ignoring case. A repeated name
	// keeps its last value and the case it last arrived with.
	Header map[string]string

	ContentLength  int64
	Chunked        bool
	ExpectContinue bool
	ContentType    string
	Kind           request.ContentKind
}

// HeadParser is the request-line and header state machine. It consumes
// one byte per transition and stops right after the blank line that ends
// the header block.
type HeadParser struct {
	state   State
	maxSize int
	size    int

	buf     []byte
	name    string
	last    string
	digits  int
	folding bool

	hasTE     bool
	hasLength bool
	head      Head
}

// NewHeadParser returns a parser that rejects header blocks longer than
// maxSize bytes.
func NewHeadParser(maxSize int) *HeadParser {
	if maxSize <= 0 {
		maxSize = parser.DefaultMaxHeaderSize
	}
	return &HeadParser{
		maxSize: maxSize,
		head:    Head{Header: make(map[string]string)},
	}
}

// State returns the current state.
func (p *HeadParser) State() State {
	return p.state
}

// Head returns what was parsed so far. It is complete once Feed reports done.
func (p *HeadParser) Head() *Head {
	return &p.head
}

// Started reports whether any byte of a request line was seen. Blank
// lines before the request line do not count.
func (p *HeadParser) Started() bool {
	return p.state != StateMethodStart
}

// Feed runs the machine over data. It returns how many bytes belong to
// the header block and whether the block is complete; bytes past consumed
// are body or the next request.
func (p *HeadParser) Feed(data []byte) (consumed int, done bool, err error) {
	if p.state.Terminal() {
		return 0, true, nil
	}
	for i, c := range data {
		p.size++
		if p.size > p.maxSize {
			return i, false, perrors.EntityTooLarge("request header", int64(p.maxSize))
		}
		if err := p.step(c); err != nil {
			return i, false, err
		}
		if p.state.Terminal() {
			return i + 1, true, nil
		}
	}
	return len(data), false, nil
}

func (p *HeadParser) step(c byte) error {
	h := &p.head
	switch p.state {
	case StateMethodStart:
		if c == '\r' || c == '\n' {
			return nil
		}
		if !chars.IsToken(int(c)) {
			return perrors.Parse("unable to parse method type")
		}
		p.buf = append(p.buf[:0], c)
		p.state = StateMethod

	case StateMethod:
		switch {
		case c == ' ':
			h.Method = p.take()
			p.state = StatePath
		case chars.IsToken(int(c)):
			p.buf = append(p.buf, c)
		default:
			return perrors.Parse("unable to parse method type")
		}

	case StatePath:
		switch {
		case c == ' ':
			if len(p.buf) == 0 {
				return perrors.Parse("empty request path")
			}
			h.Path = p.take()
			p.state = StateVersionH
		case c == '?':
			h.Path = p.take()
			p.state = StateQuery
		case c == '#':
			h.Path = p.take()
			p.state = StateFragment
		case c == '\r':
			if len(p.buf) == 0 {
				return perrors.Parse("empty request path")
			}
			h.Path = p.take()
			p.http09()
		case chars.IsControl(int(c)):
			return perrors.Parsef("unable to parse path: unexpected byte %q", c)
		default:
			p.buf = append(p.buf, c)
		}

	case StateQuery:
		switch {
		case c == ' ':
			h.Query = p.take()
			p.state = StateVersionH
		case c == '#':
			h.Query = p.take()
			p.state = StateFragment
		case c == '\r':
			h.Query = p.take()
			p.http09()
		case chars.IsControl(int(c)):
			return perrors.Parsef("unable to parse query: unexpected byte %q", c)
		default:
			p.buf = append(p.buf, c)
		}

	case StateFragment:
		switch {
		case c == ' ':
			p.state = StateVersionH
		case c == '\r':
			p.http09()
		case chars.IsControl(int(c)):
			return perrors.Parsef("unable to parse fragment: unexpected byte %q", c)
		}

	case StateVersionH:
		return p.expect(c, 'H', StateVersionT1)
	case StateVersionT1:
		return p.expect(c, 'T', StateVersionT2)
	case StateVersionT2:
		return p.expect(c, 'T', StateVersionP)
	case StateVersionP:
		return p.expect(c, 'P', StateVersionSlash)
	case StateVersionSlash:
		return p.expect(c, '/', StateMajorStart)

	case StateMajorStart:
		if !chars.IsDigit(int(c)) {
			return perrors.Parsef("unable to parse version: expected major digit, got %q", c)
		}
		h.Major = int(c - '0')
		p.digits = 1
		p.state = StateMajor

	case StateMajor:
		switch {
		case c == '.':
			p.state = StateMinorStart
		case chars.IsDigit(int(c)):
			if p.digits++; p.digits > maxVersionDigits {
				return perrors.Parse("unable to parse version: major version too long")
			}
			h.Major = h.Major*10 + int(c-'0')
		default:
			return perrors.Parsef("unable to parse version: expected '.', got %q", c)
		}

	case StateMinorStart:
		if !chars.IsDigit(int(c)) {
			return perrors.Parsef("unable to parse version: expected minor digit, got %q", c)
		}
		h.Minor = int(c - '0')
		p.digits = 1
		p.state = StateMinor

	case StateMinor:
		switch {
		case c == '\r':
			p.state = StateRequestLineLF
		case chars.IsDigit(int(c)):
			if p.digits++; p.digits > maxVersionDigits {
				return perrors.Parse("unable to parse version: minor version too long")
			}
			h.Minor = h.Minor*10 + int(c-'0')
		default:
			return perrors.Parsef("unable to parse version: expected CR, got %q", c)
		}

	case StateRequestLineLF:
		if c != '\n' {
			return perrors.Parsef("expected LF after request line, got %q", c)
		}
		p.state = StateHeaderLineStart

	case StateHeaderLineStart:
		switch {
		case c == '\r':
			p.state = StateFinalLF
		case c == ' ' || c == '\t':
			if p.last == "" {
				return perrors.Parse("folded header line before any header")
			}
			p.folding = true
			p.state = StateHeaderLWS
		case chars.IsToken(int(c)):
			p.buf = append(p.buf[:0], c)
			p.state = StateHeaderName
		default:
			return perrors.Parsef("unable to parse header name: unexpected byte %q", c)
		}

	case StateHeaderLWS:
		switch {
		case c == ' ' || c == '\t':
		case c == '\r':
			p.buf = p.buf[:0]
			if err := p.commit(); err != nil {
				return err
			}
			p.state = StateHeaderLF
		case chars.IsControl(int(c)):
			return perrors.Parsef("unable to parse header value: unexpected byte %q", c)
		default:
			p.buf = append(p.buf[:0], c)
			p.state = StateHeaderValue
		}

	case StateHeaderName:
		switch {
		case c == ':':
			p.name = p.take()
			p.state = StateSpaceBeforeValue
		case chars.IsToken(int(c)):
			p.buf = append(p.buf, c)
		default:
			return perrors.Parsef("unable to parse header name: unexpected byte %q", c)
		}

	case StateSpaceBeforeValue:
		switch {
		case c == ' ' || c == '\t':
		case c == '\r':
			if err := p.commit(); err != nil {
				return err
			}
			p.state = StateHeaderLF
		case chars.IsControl(int(c)):
			return perrors.Parsef("unable to parse header value: unexpected byte %q", c)
		default:
			p.buf = append(p.buf, c)
			p.state = StateHeaderValue
		}

	case StateHeaderValue:
		switch {
		case c == '\r':
			if err := p.commit(); err != nil {
				return err
			}
			p.state = StateHeaderLF
		case c != '\t' && chars.IsControl(int(c)):
			return perrors.Parsef("unable to parse header value: unexpected byte %q", c)
		default:
			p.buf = append(p.buf, c)
		}

	case StateHeaderLF:
		if c != '\n' {
			return perrors.Parsef("expected LF after header line, got %q", c)
		}
		p.state = StateHeaderLineStart

	case StateFinalLF:
		if c != '\n' {
			return perrors.Parsef("expected LF after header block, got %q", c)
		}
		return p.finish()
	}
	return nil
}

func (p *HeadParser) expect(c, want byte, next State) error {
	if c != want {
		return perrors.Parsef("unable to parse version: expected '%c', got %q", want, c)
	}
	p.state = next
	return nil
}

// take returns the accumulated token and clears the buffer.
func (p *HeadParser) take() string {
	s := string(p.buf)
	p.buf = p.buf[:0]
	return s
}

// http09 ends a request line without a version.
func (p *HeadParser) http09() {
	p.head.Major, p.head.Minor = 0, 9
	p.head.KeepAlive = false
	p.state = StateDone
}

// commit stores the header line in p.buf under p.name, or appends it to
// the previous header when the line was folded.
func (p *HeadParser) commit() error {
	value := strings.TrimRight(p.take(), " \t")
	name := p.name
	if p.folding {
		p.folding = false
		name = p.last
		if prev := p.head.Header[name]; value == "" {
			value = prev
		} else if prev != "" {
			value = prev + " " + value
		}
	}
	request.SetFold(p.head.Header, name, value)
	p.last = name
	return p.special(name, value)
}

// special handles the headers that drive body framing.
func (p *HeadParser) special(name, value string) error {
	switch {
	case strings.EqualFold(name, request.HeaderContentLength):
		n, err := parseLength(value)
		if err != nil {
			return err
		}
		if p.hasLength && n != p.head.ContentLength {
			return perrors.Parsef("conflicting Content-Length values %d and %d", p.head.ContentLength, n)
		}
		p.hasLength = true
		p.head.ContentLength = n
	case strings.EqualFold(name, request.HeaderTransferEncoding):
		p.hasTE = true
		codings := strings.Split(value, ",")
		p.head.Chunked = strings.EqualFold(strings.TrimSpace(codings[len(codings)-1]), "chunked")
	}
	return nil
}

func parseLength(v string) (int64, error) {
	if v == "" {
		return 0, perrors.Parse("empty Content-Length")
	}
	var n int64
	for i := 0; i < len(v); i++ {
		if !chars.IsDigit(int(v[i])) {
			return 0, perrors.Parsef("invalid Content-Length %q", v)
		}
		d := int64(v[i] - '0')
		if n > (1<<63-1-d)/10 {
			return 0, perrors.Parsef("Content-Length %q overflows", v)
		}
		n = n*10 + d
	}
	return n, nil
}

// finish runs once the blank line ending the header block was read.
func (p *HeadParser) finish() error {
	h := &p.head

	h.KeepAlive = h.Major > 1 || (h.Major == 1 && h.Minor >= 1)
	if v, ok := request.LookupFold(h.Header, request.HeaderConnection); ok {
		switch {
		case parser.HasToken(v, "close"):
			h.KeepAlive = false
		case parser.HasToken(v, "keep-alive"):
			h.KeepAlive = true
		}
	}
	if v, ok := request.LookupFold(h.Header, request.HeaderExpect); ok {
		h.ExpectContinue = strings.EqualFold(v, "100-continue")
	}
	h.ContentType, _ = request.LookupFold(h.Header, request.HeaderContentType)

	if p.hasTE && !h.Chunked {
		return perrors.Parse("unsupported Transfer-Encoding: chunked must be the final coding")
	}

	switch {
	case h.Chunked:
		// Chunked framing overrides any Content-Length.
		h.ContentLength = 0
		h.Kind = request.Classify(h.ContentType)
		p.state = StateChunkSize
	case h.ContentLength == 0:
		h.Kind = request.ContentNone
		p.state = StateDone
	default:
		h.Kind = request.Classify(h.ContentType)
		p.state = StateBody
	}
	return nil
}
