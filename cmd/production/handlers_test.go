// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"testing"

	perrors "github.com/absmach/wasp/pkg/errors"
	"github.com/absmach/wasp/pkg/handler"
	"github.com/absmach/wasp/pkg/metrics"
	"github.com/absmach/wasp/pkg/parser/http1"
	"github.com/absmach/wasp/pkg/ratelimit"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRateLimitedHandler_AuthRequest(t *testing.T) {
	m := metrics.New("test", prometheus.NewRegistry())
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := &InstrumentedHandler{
		handler: &RateLimitedHandler{
			handler:       &handler.NoopHandler{},
			globalLimiter: ratelimit.NewTokenBucket(2, 0),
			metrics:       m,
			logger:        logger,
		},
		logger: logger,
	}

	req, err := http1.New(http1.Config{}).ParseBytes([]byte("GET / HTTP/1.1\r\n\r\n"))
	if err != nil {
		t.Fatalf("ParseBytes() error = %v", err)
	}
	hctx := &handler.Context{SessionID: "s", RemoteAddr: "127.0.0.1:1"}

	for i := 0; i < 2; i++ {
		if err := h.AuthRequest(context.Background(), hctx, req); err != nil {
			t.Fatalf("AuthRequest() #%d error = %v", i, err)
		}
	}
	err = h.AuthRequest(context.Background(), hctx, req)
	if !errors.Is(err, ratelimit.ErrRateLimitExceeded) {
		t.Fatalf("AuthRequest() error = %v, want %v", err, ratelimit.ErrRateLimitExceeded)
	}
	wrapped := errors.Join(perrors.ErrUnauthorized, err)
	if got := perrors.StatusCode(wrapped); got != http.StatusTooManyRequests {
		t.Errorf("StatusCode() = %d, want %d", got, http.StatusTooManyRequests)
	}
	if got := testutil.ToFloat64(m.RateLimitedRequests); got != 1 {
		t.Errorf("rate limited requests = %v, want 1", got)
	}

	resp, err := h.Handle(context.Background(), hctx, req)
	if err != nil || resp == nil {
		t.Errorf("Handle() = %v, %v", resp, err)
	}
}
