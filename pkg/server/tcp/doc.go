// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package tcp implements the connection layer of wasp: a TCP server that
// reads HTTP/1.x requests with a pluggable parser and answers them through
// a handler.
//
// # Architecture
//
//	┌─────────┐         ┌─────────┐         ┌─────────┐
//	│ Client  │ ←─TCP─→ │  Server │ ──────→ │ Handler │
//	└─────────┘         └─────────┘         └─────────┘
//	                         ↓
//	                    ┌─────────┐
//	                    │ Parser  │
//	                    └─────────┘
//
// # Connection Flow
//
//  1. The accept loop hands each connection to the worker pool. When the
//     queue is full the connection is answered with 503 and closed.
//  2. A worker authorizes the connection (handler.AuthConnect).
//  3. The worker loops: wait for the next request, parse it, authorize it
//     (handler.AuthRequest), serve it (handler.Handle) and write the response.
//  4. The loop ends when the client closes, a request is not keep-alive,
//     or a request is rejected.
//  5. Server calls handler.OnDisconnect().
//
// One bufio.Reader is kept per connection for its whole lifetime, so bytes
// of a pipelined request read together with the previous one are not lost.
//
// # Error Responses
//
// Rejected requests are answered with a status line and the connection is
// closed:
//
//   - Malformed request or multipart body: 400
//   - Handler authorization failure: 403
//   - Header block or body over its limit: 413
//   - Rate limited: 429
//   - Handler failure: 500
//   - Upload sink unavailable or worker queue full: 503
//
// Read timeouts and transport errors close the connection without a response.
//
// # Timeouts
//
//   - ReadTimeout: reading one request, from its first byte to its last
//   - IdleTimeout: waiting for the next request on a keep-alive connection
//   - WriteTimeout: writing interim and final responses
//
// # Graceful Shutdown
//
// When context is canceled:
//
//  1. Server stops accepting new connections
//  2. Idle keep-alive connections are closed
//  3. Busy connections finish their current request and then close
//  4. After ShutdownTimeout, remaining connections are forcefully closed
//     and Serve returns ErrShutdownTimeout
//
// # Example
//
//	p := http1.New(http1.Config{Sink: sink})
//
//	cfg := tcp.Config{
//		Address:         ":8080",
//		Workers:         64,
//		ShutdownTimeout: 30 * time.Second,
//	}
//
//	server := tcp.New(cfg, p, &MyHandler{})
//	if err := server.Listen(ctx); err != nil {
//		log.Fatal(err)
//	}
package tcp
