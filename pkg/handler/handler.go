// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package handler

import (
	"context"
	"crypto/x509"
	"encoding/base64"
	"strings"

	"github.com/absmach/wasp/pkg/request"
)

// Context contains connection metadata and the credentials of the current
// request. It is passed to Handler methods to provide auth context.
type Context struct {
	// SessionID is a unique identifier for this connection
	SessionID string

	// Username extracted from the Authorization header (HTTP basic auth)
	Username string

	// Password extracted from the Authorization header (raw bytes, not hashed)
	Password []byte

	// RemoteAddr is the client's network address
	RemoteAddr string

	// Protocol is the version of the current request (HTTP/1.1, HTTP/1.0, HTTP/0.9)
	Protocol string

	// Cert is the client's TLS certificate (if using mTLS)
	Cert *x509.Certificate

	// Requests is the number of requests read on this connection so far,
	// the current one included
	Requests int
}

// Response is the minimal reply the connection layer writes for a request.
type Response struct {
	// Status is the HTTP status code. Zero means 200.
	Status int

	// Header holds extra response headers. Content-Length and Connection
	// are set by the connection layer.
	Header map[string]string

	// Body is sent verbatim.
	Body []byte
}

// Handler defines authorization callbacks and the request hook invoked by
// the connection layer.
//
// Authorization methods (AuthConnect, AuthRequest) are called BEFORE the
// request reaches Handle. Returning an error rejects the connection or the
// request; a rejected request is answered with 403 and the connection is
// closed.
//
// Notification methods (OnConnect, OnDisconnect) are called for audit
// logging or metrics. Their errors are logged but don't change the outcome.
type Handler interface {
	// AuthConnect authorizes a client connection before any request is read.
	// Return an error to close the connection.
	AuthConnect(ctx context.Context, hctx *Context) error

	// AuthRequest authorizes a fully parsed request. Username and Password
	// in hctx hold the request's basic auth credentials, if any.
	AuthRequest(ctx context.Context, hctx *Context, req *request.Request) error

	// Handle serves an authorized request. Uploaded files are removed
	// after Handle returns unless marked with UploadedFile.Keep.
	Handle(ctx context.Context, hctx *Context, req *request.Request) (*Response, error)

	// OnConnect is called after a connection is authorized.
	OnConnect(ctx context.Context, hctx *Context) error

	// OnDisconnect is called when a connection ends (gracefully or due to error).
	OnDisconnect(ctx context.Context, hctx *Context) error
}

// BasicAuth extracts basic auth credentials from the Authorization header.
func BasicAuth(h request.Header) (username, password string, ok bool) {
	auth, found := h.Lookup("Authorization")
	if !found {
		return "", "", false
	}
	const prefix = "Basic "
	if len(auth) < len(prefix) || !strings.EqualFold(auth[:len(prefix)], prefix) {
		return "", "", false
	}
	decoded, err := base64.StdEncoding.DecodeString(strings.TrimSpace(auth[len(prefix):]))
	if err != nil {
		return "", "", false
	}
	username, password, ok = strings.Cut(string(decoded), ":")
	if !ok {
		return "", "", false
	}
	return username, password, true
}

// NoopHandler is a Handler implementation that allows everything and
// answers each request with an empty 200.
// Useful for testing or when no authorization is needed.
type NoopHandler struct{}

var _ Handler = (*NoopHandler)(nil)

func (h *NoopHandler) AuthConnect(ctx context.Context, hctx *Context) error {
	return nil
}

func (h *NoopHandler) AuthRequest(ctx context.Context, hctx *Context, req *request.Request) error {
	return nil
}

func (h *NoopHandler) Handle(ctx context.Context, hctx *Context, req *request.Request) (*Response, error) {
	return &Response{}, nil
}

func (h *NoopHandler) OnConnect(ctx context.Context, hctx *Context) error {
	return nil
}

func (h *NoopHandler) OnDisconnect(ctx context.Context, hctx *Context) error {
	return nil
}
