// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package handler provides the interface that links the request parser to
// business logic.
//
// # Data Flow
//
//	Client → Server → Parser (builds Request) → Handler (authorizes, serves) → Server → Client
//
// # Handler Methods
//
// Authorization methods (Auth*) are called before a request is served:
//   - AuthConnect: Verifies the client when the connection is accepted
//   - AuthRequest: Authorizes a parsed request
//
// Handle serves an authorized request and returns a Response. Notification
// methods (On*) report connection lifecycle:
//   - OnConnect: Notifies an authorized connection
//   - OnDisconnect: Notifies disconnection
//
// # Context
//
// The Context struct carries connection metadata across all handler calls:
//   - SessionID: Unique identifier for this connection
//   - Username, Password: Basic auth credentials of the current request
//   - RemoteAddr: Client's network address
//   - Protocol: HTTP version of the current request
//   - Cert: Client certificate for TLS connections
//   - Requests: Requests read on this connection so far
//
// # Example
//
//	type MyHandler struct {
//		handler.NoopHandler
//		authService AuthService
//	}
//
//	func (h *MyHandler) AuthRequest(ctx context.Context, hctx *handler.Context, req *request.Request) error {
//		return h.authService.Authenticate(hctx.Username, hctx.Password)
//	}
//
//	func (h *MyHandler) Handle(ctx context.Context, hctx *handler.Context, req *request.Request) (*handler.Response, error) {
//		if f, ok := req.Files().Get("avatar"); ok {
//			f.Keep()
//		}
//		return &handler.Response{Status: http.StatusCreated}, nil
//	}
package handler
