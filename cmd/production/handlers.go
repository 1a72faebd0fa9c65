// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/absmach/wasp/pkg/handler"
	"github.com/absmach/wasp/pkg/metrics"
	"github.com/absmach/wasp/pkg/ratelimit"
	"github.com/absmach/wasp/pkg/request"
)

var (
	_ handler.Handler = (*RateLimitedHandler)(nil)
	_ handler.Handler = (*InstrumentedHandler)(nil)
)

// RateLimitedHandler wraps a handler with a global rate limit shared by
// all clients. Per-client limits are enforced by the server.
type RateLimitedHandler struct {
	handler       handler.Handler
	globalLimiter *ratelimit.TokenBucket
	metrics       *metrics.Metrics
	logger        *slog.Logger
}

// AuthConnect implements handler.Handler.
func (h *RateLimitedHandler) AuthConnect(ctx context.Context, hctx *handler.Context) error {
	return h.handler.AuthConnect(ctx, hctx)
}

// AuthRequest implements handler.Handler with rate limiting.
func (h *RateLimitedHandler) AuthRequest(ctx context.Context, hctx *handler.Context, req *request.Request) error {
	if !h.globalLimiter.Allow() {
		h.metrics.RateLimitedRequests.Inc()
		h.logger.Warn("Global rate limit exceeded",
			slog.String("remote", hctx.RemoteAddr),
			slog.String("method", req.Method()),
			slog.String("path", req.Path()))
		return ratelimit.ErrRateLimitExceeded
	}

	return h.handler.AuthRequest(ctx, hctx, req)
}

// Handle implements handler.Handler.
func (h *RateLimitedHandler) Handle(ctx context.Context, hctx *handler.Context, req *request.Request) (*handler.Response, error) {
	return h.handler.Handle(ctx, hctx, req)
}

// OnConnect implements handler.Handler.
func (h *RateLimitedHandler) OnConnect(ctx context.Context, hctx *handler.Context) error {
	return h.handler.OnConnect(ctx, hctx)
}

// OnDisconnect implements handler.Handler.
func (h *RateLimitedHandler) OnDisconnect(ctx context.Context, hctx *handler.Context) error {
	return h.handler.OnDisconnect(ctx, hctx)
}

// InstrumentedHandler wraps a handler with debug logging of handler
// latency. Connection and request counters are kept by the server.
type InstrumentedHandler struct {
	handler handler.Handler
	logger  *slog.Logger
	slow    time.Duration
}

// AuthConnect implements handler.Handler.
func (h *InstrumentedHandler) AuthConnect(ctx context.Context, hctx *handler.Context) error {
	return h.handler.AuthConnect(ctx, hctx)
}

// AuthRequest implements handler.Handler.
func (h *InstrumentedHandler) AuthRequest(ctx context.Context, hctx *handler.Context, req *request.Request) error {
	return h.handler.AuthRequest(ctx, hctx, req)
}

// Handle implements handler.Handler and warns about slow handlers.
func (h *InstrumentedHandler) Handle(ctx context.Context, hctx *handler.Context, req *request.Request) (*handler.Response, error) {
	start := time.Now()
	resp, err := h.handler.Handle(ctx, hctx, req)
	duration := time.Since(start)

	level := slog.LevelDebug
	if h.slow > 0 && duration >= h.slow {
		level = slog.LevelWarn
	}
	h.logger.Log(ctx, level, "request handled",
		slog.String("session", hctx.SessionID),
		slog.String("method", req.Method()),
		slog.String("path", req.Path()),
		slog.Int("files", req.Files().Len()),
		slog.Duration("duration", duration))

	return resp, err
}

// OnConnect implements handler.Handler.
func (h *InstrumentedHandler) OnConnect(ctx context.Context, hctx *handler.Context) error {
	return h.handler.OnConnect(ctx, hctx)
}

// OnDisconnect implements handler.Handler.
func (h *InstrumentedHandler) OnDisconnect(ctx context.Context, hctx *handler.Context) error {
	return h.handler.OnDisconnect(ctx, hctx)
}
