// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package request holds the structured result of parsing one HTTP request.
package request

import (
	"fmt"
	"strings"
)

// ContentKind classifies the request body by its Content-Type.
type ContentKind uint8

const (
	// ContentNone means no body was expected.
	ContentNone ContentKind = iota
	ContentURLEncoded
	ContentJSON
	ContentMultipart
	ContentOther
)

func (k ContentKind) String() string {
	switch k {
	case ContentNone:
		return "none"
	case ContentURLEncoded:
		return "urlencoded"
	case ContentJSON:
		return "json"
	case ContentMultipart:
		return "multipart"
	case ContentOther:
		return "other"
	default:
		return "unknown"
	}
}

// Classify maps a Content-Type value to a ContentKind. The search is a
// case-sensitive substring match, tried in a fixed order: multipart,
// JSON, url-encoded.
func Classify(contentType string) ContentKind {
	switch {
	case strings.Contains(contentType, "multipart/form-data"):
		return ContentMultipart
	case strings.Contains(contentType, "application/json"):
		return ContentJSON
	case strings.Contains(contentType, "application/x-www-form-urlencoded"):
		return ContentURLEncoded
	default:
		return ContentOther
	}
}

// Fields carries everything the parsers collected for one request.
type Fields struct {
	Method      string
	Path        string
	Query       string
	Major       int
	Minor       int
	KeepAlive   bool
	Body        []byte
	Header      map[string]string
	ContentKind ContentKind
	QueryParams *Parameters[string]
	FormParams  *Parameters[string]
	Files       *Parameters[*UploadedFile]
}

// Request is an immutable parsed HTTP request.
type Request struct {
	method      string
	path        string
	query       string
	major       int
	minor       int
	keepAlive   bool
	body        []byte
	header      Header
	contentKind ContentKind
	queryParams *Parameters[string]
	formParams  *Parameters[string]
	files       *Parameters[*UploadedFile]
}

// New assembles a Request. Nil parameter sets are replaced with empty ones.
func New(s Fields) *Request {
	if s.Header == nil {
		s.Header = map[string]string{}
	}
	if s.QueryParams == nil {
		s.QueryParams = NewParameters[string]()
	}
	if s.FormParams == nil {
		s.FormParams = NewParameters[string]()
	}
	if s.Files == nil {
		s.Files = NewParameters[*UploadedFile]()
	}
	return &Request{
		method:      s.Method,
		path:        s.Path,
		query:       s.Query,
		major:       s.Major,
		minor:       s.Minor,
		keepAlive:   s.KeepAlive,
		body:        s.Body,
		header:      MakeHeader(s.Header),
		contentKind: s.ContentKind,
		queryParams: s.QueryParams,
		formParams:  s.FormParams,
		files:       s.Files,
	}
}

func (r *Request) Method() string { return r.method }

func (r *Request) Path() string { return r.path }

// Query returns the raw query string without the leading '?'.
func (r *Request) Query() string { return r.query }

func (r *Request) Major() int { return r.major }

func (r *Request) Minor() int { return r.minor }

// Version returns the protocol version as sent on the request line.
func (r *Request) Version() string {
	return fmt.Sprintf("HTTP/%d.%d", r.major, r.minor)
}

func (r *Request) KeepAlive() bool { return r.keepAlive }

// Body returns the decoded body. Multipart bodies are streamed into
// FormParams and Files instead, so Body is nil for them.
func (r *Request) Body() []byte { return r.body }

func (r *Request) Header() Header { return r.header }

func (r *Request) ContentKind() ContentKind { return r.contentKind }

// QueryParams returns parameters parsed from the query string.
func (r *Request) QueryParams() *Parameters[string] { return r.queryParams }

// FormParams returns parameters parsed from a url-encoded or multipart body.
func (r *Request) FormParams() *Parameters[string] { return r.formParams }

// Files returns uploads parsed from a multipart body.
func (r *Request) Files() *Parameters[*UploadedFile] { return r.files }

// Close removes uploaded payloads that were not kept.
func (r *Request) Close() error {
	return RemoveFiles(r.files)
}
