// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package http1 parses HTTP/1.0 and HTTP/1.1 requests from a buffered
// connection.
//
// A request goes through three stages:
//
//  1. HeadParser, a byte-at-a-time state machine over the request line
//     and header block. It enforces Limits.MaxHeaderSize while it runs.
//  2. The body reader, which frames the body by Content-Length or by
//     chunked transfer coding and enforces Limits.MaxBodySize.
//  3. Dispatch on Content-Type: url-encoded bodies go to package form,
//     multipart bodies are streamed to package multipart, anything else
//     is kept verbatim.
//
// The state machines only see bytes that are already buffered. Parse
// blocks in the bufio.Reader, never inside a machine, and stops reading
// exactly at the end of the request so the next one on a keep-alive
// connection is left in the buffer.
//
// Header line folding is accepted: a line starting with SP or HT
// continues the previous header, joined by a single space.
package http1
