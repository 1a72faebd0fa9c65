// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package parser defines how the connection layer obtains structured
// requests from raw connection bytes.
//
// # Architecture Overview
//
// The connection layer owns the socket and a bufio.Reader sized by
// Limits.MaxReadSize. It hands that reader to a Parser once per request:
//
//	socket ──read──▶ bufio.Reader ──Peek/Discard──▶ state machines ──▶ request.Request
//
// The state machines only ever look at bytes already in the buffer; all
// blocking happens in the reader. Bytes that belong to the next request
// stay buffered, which is what makes keep-alive and pipelining work.
//
// # Components
//
//   - parser/chars: byte classes of the HTTP grammar
//   - parser/http1: request line, header and chunked state machines, body dispatch
//   - parser/form: application/x-www-form-urlencoded bodies and query strings
//   - parser/multipart: multipart/form-data bodies, streaming files to a sink
//
// # Errors
//
// Malformed input yields a *errors.ParseError of kind parse or multipart;
// exceeding a Limits field yields kind entity_too_large. Either is fatal
// for the request and the connection. Transport errors pass through
// unchanged.
package parser
