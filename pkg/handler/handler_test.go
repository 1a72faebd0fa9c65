// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package handler

import (
	"context"
	"errors"
	"testing"

	"github.com/absmach/wasp/pkg/request"
)

func testRequest(header map[string]string) *request.Request {
	return request.New(request.Fields{
		Method: "GET",
		Path:   "/",
		Major:  1,
		Minor:  1,
		Header: header,
	})
}

func TestNoopHandler(t *testing.T) {
	handler := &NoopHandler{}
	ctx := context.Background()
	hctx := &Context{
		SessionID:  "test-session",
		Username:   "testuser",
		Password:   []byte("testpass"),
		RemoteAddr: "127.0.0.1:1234",
		Protocol:   "HTTP/1.1",
	}
	req := testRequest(map[string]string{"Host": "x"})

	tests := []struct {
		name string
		fn   func() error
	}{
		{
			name: "AuthConnect",
			fn:   func() error { return handler.AuthConnect(ctx, hctx) },
		},
		{
			name: "AuthRequest",
			fn:   func() error { return handler.AuthRequest(ctx, hctx, req) },
		},
		{
			name: "Handle",
			fn: func() error {
				resp, err := handler.Handle(ctx, hctx, req)
				if err == nil && resp == nil {
					return errors.New("nil response")
				}
				return err
			},
		},
		{
			name: "OnConnect",
			fn:   func() error { return handler.OnConnect(ctx, hctx) },
		},
		{
			name: "OnDisconnect",
			fn:   func() error { return handler.OnDisconnect(ctx, hctx) },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.fn(); err != nil {
				t.Errorf("%s() returned error: %v", tt.name, err)
			}
		})
	}
}

func TestBasicAuth(t *testing.T) {
	tests := []struct {
		name   string
		header map[string]string
		user   string
		pass   string
		ok     bool
	}{
		{
			name:   "valid",
			header: map[string]string{"Authorization": "Basic dXNlcjpwYXNz"},
			user:   "user",
			pass:   "pass",
			ok:     true,
		},
		{
			name:   "scheme case and lower header name",
			header: map[string]string{"authorization": "basic dXNlcjpwYXNz"},
			user:   "user",
			pass:   "pass",
			ok:     true,
		},
		{
			name:   "colon in password",
			header: map[string]string{"Authorization": "Basic dXNlcjpwOmFzcw=="},
			user:   "user",
			pass:   "p:ass",
			ok:     true,
		},
		{
			name:   "missing",
			header: map[string]string{},
		},
		{
			name:   "bearer",
			header: map[string]string{"Authorization": "Bearer token"},
		},
		{
			name:   "bad base64",
			header: map[string]string{"Authorization": "Basic !!!"},
		},
		{
			name:   "no colon",
			header: map[string]string{"Authorization": "Basic dXNlcg=="},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			user, pass, ok := BasicAuth(request.MakeHeader(tt.header))
			if ok != tt.ok || user != tt.user || pass != tt.pass {
				t.Errorf("BasicAuth() = %q, %q, %v, want %q, %q, %v", user, pass, ok, tt.user, tt.pass, tt.ok)
			}
		})
	}
}

// MockHandler is a mock implementation for testing.
type MockHandler struct {
	ConnectErr error
	RequestErr error
	HandleErr  error

	ConnectCalled      bool
	RequestCalled      bool
	HandleCalled       bool
	OnConnectCalled    bool
	OnDisconnectCalled bool

	LastPath string
}

func (m *MockHandler) AuthConnect(ctx context.Context, hctx *Context) error {
	m.ConnectCalled = true
	return m.ConnectErr
}

func (m *MockHandler) AuthRequest(ctx context.Context, hctx *Context, req *request.Request) error {
	m.RequestCalled = true
	m.LastPath = req.Path()
	return m.RequestErr
}

func (m *MockHandler) Handle(ctx context.Context, hctx *Context, req *request.Request) (*Response, error) {
	m.HandleCalled = true
	if m.HandleErr != nil {
		return nil, m.HandleErr
	}
	return &Response{Body: []byte(req.Path())}, nil
}

func (m *MockHandler) OnConnect(ctx context.Context, hctx *Context) error {
	m.OnConnectCalled = true
	return nil
}

func (m *MockHandler) OnDisconnect(ctx context.Context, hctx *Context) error {
	m.OnDisconnectCalled = true
	return nil
}

func TestMockHandler(t *testing.T) {
	mock := &MockHandler{
		ConnectErr: errors.New("connection error"),
	}

	ctx := context.Background()
	hctx := &Context{
		SessionID: "test",
		Username:  "user",
	}

	if err := mock.AuthConnect(ctx, hctx); err == nil {
		t.Error("Expected error from AuthConnect")
	}
	if !mock.ConnectCalled {
		t.Error("Expected ConnectCalled to be true")
	}

	req := testRequest(nil)
	if err := mock.AuthRequest(ctx, hctx, req); err != nil {
		t.Errorf("Unexpected error: %v", err)
	}
	if mock.LastPath != "/" {
		t.Errorf("Expected path /, got %s", mock.LastPath)
	}

	resp, err := mock.Handle(ctx, hctx, req)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if string(resp.Body) != "/" {
		t.Errorf("Expected body /, got %s", resp.Body)
	}

	if err := mock.OnDisconnect(ctx, hctx); err != nil {
		t.Errorf("Unexpected error: %v", err)
	}
	if !mock.OnDisconnectCalled {
		t.Error("Expected OnDisconnectCalled to be true")
	}
}
