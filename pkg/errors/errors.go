// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package errors provides structured error handling for wasp.
//
// Parse failures are reported as *ParseError values. Each one carries a
// Kind, a human readable reason and the function, file and line of the
// check that rejected the input. Callers match on kind with errors.Is
// against the sentinels below, or map any error to a response status
// with StatusCode.
package errors

import (
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"runtime"
)

// Common error types
var (
	// ErrParse indicates a malformed request line, header or chunk framing.
	ErrParse = errors.New("parse error")

	// ErrMultiPart indicates a malformed multipart/form-data body.
	// Every multipart error also matches ErrParse.
	ErrMultiPart = errors.New("multipart parse error")

	// ErrEntityTooLarge indicates the header block or body exceeded its limit.
	ErrEntityTooLarge = errors.New("entity too large")

	// ErrConnectionClosed indicates the peer closed the connection between requests.
	ErrConnectionClosed = errors.New("connection closed")

	// ErrUnauthorized indicates the handler rejected the connection or request.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrRateLimited indicates rate limit exceeded.
	ErrRateLimited = errors.New("rate limit exceeded")

	// ErrSinkUnavailable indicates uploads cannot be stored right now.
	ErrSinkUnavailable = errors.New("file sink unavailable")
)

// Kind classifies a ParseError.
type Kind int

const (
	KindParse Kind = iota
	KindMultiPart
	KindEntityTooLarge
)

func (k Kind) String() string {
	switch k {
	case KindParse:
		return "parse"
	case KindMultiPart:
		return "multipart"
	case KindEntityTooLarge:
		return "entity_too_large"
	default:
		return "unknown"
	}
}

// ParseError is returned for every input the parsers reject.
type ParseError struct {
	Kind   Kind
	Reason string
	Func   string // function holding the failing check
	File   string
	Line   int
	Limit  int64 // configured limit, KindEntityTooLarge only
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	if e.File == "" {
		return fmt.Sprintf("%s: %s", e.sentinel(), e.Reason)
	}
	return fmt.Sprintf("%s: %s (%s at %s:%d)", e.sentinel(), e.Reason, e.Func, e.File, e.Line)
}

// Unwrap exposes the kind sentinels to errors.Is.
func (e *ParseError) Unwrap() []error {
	if e.Kind == KindMultiPart {
		return []error{ErrMultiPart, ErrParse}
	}
	return []error{e.sentinel()}
}

func (e *ParseError) sentinel() error {
	switch e.Kind {
	case KindMultiPart:
		return ErrMultiPart
	case KindEntityTooLarge:
		return ErrEntityTooLarge
	default:
		return ErrParse
	}
}

// Parse returns a KindParse error attributed to its caller.
func Parse(reason string) *ParseError {
	return newAt(2, KindParse, reason)
}

// Parsef is Parse with formatting.
func Parsef(format string, args ...any) *ParseError {
	return newAt(2, KindParse, fmt.Sprintf(format, args...))
}

// MultiPart returns a KindMultiPart error attributed to its caller.
func MultiPart(reason string) *ParseError {
	return newAt(2, KindMultiPart, reason)
}

// MultiPartf is MultiPart with formatting.
func MultiPartf(format string, args ...any) *ParseError {
	return newAt(2, KindMultiPart, fmt.Sprintf(format, args...))
}

// EntityTooLarge reports that what exceeded limit bytes.
func EntityTooLarge(what string, limit int64) *ParseError {
	e := newAt(2, KindEntityTooLarge, fmt.Sprintf("%s exceeds %d bytes", what, limit))
	e.Limit = limit
	return e
}

func newAt(skip int, kind Kind, reason string) *ParseError {
	e := &ParseError{Kind: kind, Reason: reason}
	if pc, file, line, ok := runtime.Caller(skip); ok {
		e.File = filepath.Base(file)
		e.Line = line
		if fn := runtime.FuncForPC(pc); fn != nil {
			e.Func = filepath.Base(fn.Name())
		}
	}
	return e
}

// KindOf returns the kind of the first ParseError in err's chain.
func KindOf(err error) (Kind, bool) {
	var pe *ParseError
	if errors.As(err, &pe) {
		return pe.Kind, true
	}
	return 0, false
}

// StatusCode maps err to the HTTP status the connection handler should send.
func StatusCode(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrEntityTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, ErrParse):
		return http.StatusBadRequest
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, ErrSinkUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// ConnError wraps an error with connection context.
type ConnError struct {
	Op         string // Operation that failed
	SessionID  string // Session identifier
	RemoteAddr string // Client address
	Err        error  // Underlying error
}

// Error implements the error interface.
func (e *ConnError) Error() string {
	if e.SessionID != "" {
		return fmt.Sprintf("%s [%s] %s: %v", e.Op, e.SessionID, e.RemoteAddr, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.RemoteAddr, e.Err)
}

// Unwrap returns the underlying error.
func (e *ConnError) Unwrap() error {
	return e.Err
}

// New creates a new ConnError.
func New(op, sessionID, remoteAddr string, err error) error {
	if err == nil {
		return nil
	}
	return &ConnError{
		Op:         op,
		SessionID:  sessionID,
		RemoteAddr: remoteAddr,
		Err:        err,
	}
}

// Wrap wraps an error with context.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}
