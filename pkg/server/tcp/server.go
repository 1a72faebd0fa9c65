// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package tcp

import (
	"bufio"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	perrors "github.com/absmach/wasp/pkg/errors"
	"github.com/absmach/wasp/pkg/handler"
	"github.com/absmach/wasp/pkg/metrics"
	"github.com/absmach/wasp/pkg/parser"
	"github.com/absmach/wasp/pkg/pool"
	"github.com/absmach/wasp/pkg/ratelimit"
	"github.com/absmach/wasp/pkg/request"
	"github.com/google/uuid"
)

const (
	// DefaultReadTimeout bounds reading one request.
	DefaultReadTimeout = 30 * time.Second

	// DefaultIdleTimeout bounds the wait for the next request on a keep-alive connection.
	DefaultIdleTimeout = 60 * time.Second

	// DefaultWriteTimeout bounds writing one response.
	DefaultWriteTimeout = 30 * time.Second

	// DefaultShutdownTimeout is the default timeout for graceful shutdown.
	DefaultShutdownTimeout = 30 * time.Second
)

var (
	// ErrShutdownTimeout is returned when graceful shutdown exceeds the configured timeout.
	ErrShutdownTimeout = errors.New("shutdown timeout exceeded")
)

// Config holds the TCP server configuration.
type Config struct {
	// Address is the listen address (host:port)
	Address string

	// TLSConfig is optional TLS configuration for the listener
	TLSConfig *tls.Config

	// ReusePort sets SO_REUSEPORT on the listening socket so several
	// processes can share the address. Unix only.
	ReusePort bool

	// MaxReadSize is the size of each connection's read buffer.
	// If 0, uses parser.DefaultMaxReadSize.
	MaxReadSize int

	// Workers is the number of connections served at once.
	// If 0, uses pool.DefaultWorkers.
	Workers int

	// QueueSize is the number of accepted connections that may wait for a
	// worker. Connections beyond it are answered with 503.
	QueueSize int

	// QueueWait is how long the accept loop waits for a queue slot before
	// answering 503. If 0, a full queue rejects at once.
	QueueWait time.Duration

	// ReadTimeout bounds reading one request, headers and body.
	ReadTimeout time.Duration

	// IdleTimeout bounds the wait for the next request on a keep-alive connection.
	IdleTimeout time.Duration

	// WriteTimeout bounds writing interim and final responses.
	WriteTimeout time.Duration

	// ShutdownTimeout is the maximum time to wait for active connections to drain
	// during graceful shutdown. After this timeout, remaining connections are
	// forcefully closed.
	ShutdownTimeout time.Duration

	// Limiter optionally admits requests per client IP.
	Limiter *ratelimit.Limiter

	// Metrics is optional instrumentation.
	Metrics *metrics.Metrics

	// Logger for server events
	Logger *slog.Logger
}

// Server accepts connections and serves HTTP/1.x requests on them with a
// pluggable parser and handler. Each connection is served by one worker
// of a fixed-size pool for its whole keep-alive lifetime.
type Server struct {
	config  Config
	parser  parser.Parser
	handler handler.Handler
	pool    *pool.Pool
	readers sync.Pool

	mu       sync.Mutex
	conns    map[net.Conn]*atomic.Bool // value reports an idle connection
	draining atomic.Bool
}

// New creates a new TCP server with the given configuration, parser, and handler.
func New(cfg Config, p parser.Parser, h handler.Handler) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.MaxReadSize <= 0 {
		cfg.MaxReadSize = parser.DefaultMaxReadSize
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = DefaultReadTimeout
	}
	if cfg.IdleTimeout == 0 {
		cfg.IdleTimeout = DefaultIdleTimeout
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = DefaultWriteTimeout
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = DefaultShutdownTimeout
	}

	s := &Server{
		config:  cfg,
		parser:  p,
		handler: h,
		pool: pool.New(pool.Config{
			Workers:   cfg.Workers,
			QueueSize: cfg.QueueSize,
			Logger:    cfg.Logger,
		}),
		conns: make(map[net.Conn]*atomic.Bool),
	}
	s.readers.New = func() any {
		return bufio.NewReaderSize(nil, cfg.MaxReadSize)
	}
	return s
}

// Pool returns the worker pool serving connections.
func (s *Server) Pool() *pool.Pool {
	return s.pool
}

// Listen starts the TCP server and blocks until the context is cancelled.
// It implements graceful shutdown with connection draining.
func (s *Server) Listen(ctx context.Context) error {
	lc := net.ListenConfig{}
	if s.config.ReusePort {
		lc.Control = reusePort
	}
	listener, err := lc.Listen(ctx, "tcp", s.config.Address)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.config.Address, err)
	}
	return s.Serve(ctx, listener)
}

// Serve accepts connections on listener until ctx is cancelled, then
// drains them. The listener is closed on return.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	// Wrap with TLS if configured
	if s.config.TLSConfig != nil {
		listener = tls.NewListener(listener, s.config.TLSConfig)
		s.config.Logger.Info("TLS enabled", slog.String("address", listener.Addr().String()))
	}

	s.config.Logger.Info("TCP server started",
		slog.String("address", listener.Addr().String()),
		slog.Bool("reuse_port", s.config.ReusePort))

	// Accept loop
	acceptDone := make(chan struct{})
	go func() {
		defer close(acceptDone)
		for {
			conn, err := listener.Accept()
			if err != nil {
				select {
				case <-ctx.Done():
					// Expected error during shutdown
					return
				default:
				}
				if errors.Is(err, net.ErrClosed) {
					return
				}
				s.config.Logger.Error("failed to accept connection", slog.String("error", err.Error()))
				continue
			}
			s.dispatch(ctx, conn)
		}
	}()

	// Wait for shutdown signal
	select {
	case <-ctx.Done():
		s.config.Logger.Info("shutdown signal received, closing listener")
	case <-acceptDone:
		s.config.Logger.Warn("listener closed, shutting down")
	}

	// Close the listener to stop accepting new connections
	if err := listener.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		s.config.Logger.Error("error closing listener", slog.String("error", err.Error()))
	}

	// Wait for accept loop to finish
	<-acceptDone

	// Idle keep-alive connections are closed right away, busy ones finish
	// their current request.
	s.draining.Store(true)
	s.closeIdle()

	drainCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()
	if err := s.pool.Close(drainCtx); err != nil {
		s.config.Logger.Warn("shutdown timeout exceeded, forced connection closure")
		return ErrShutdownTimeout
	}
	s.config.Logger.Info("all connections closed gracefully")
	return nil
}

// dispatch hands conn to a worker, or answers 503 when the queue stays
// full for QueueWait.
func (s *Server) dispatch(ctx context.Context, conn net.Conn) {
	s.track(conn)
	task := func(ctx context.Context) {
		s.serveConn(ctx, conn)
	}
	var err error
	if s.config.QueueWait > 0 {
		waitCtx, cancel := context.WithTimeout(ctx, s.config.QueueWait)
		err = s.pool.Submit(waitCtx, task)
		cancel()
	} else {
		err = s.pool.TrySubmit(task)
	}
	if m := s.config.Metrics; m != nil {
		_, busy, queued := s.pool.Stats()
		m.ObservePool(busy, queued)
	}
	if err == nil {
		return
	}

	s.untrack(conn)
	s.config.Logger.Warn("worker pool full, rejecting connection",
		slog.String("remote", conn.RemoteAddr().String()),
		slog.String("error", err.Error()))
	conn.SetWriteDeadline(time.Now().Add(s.config.WriteTimeout))
	writeError(conn, http.StatusServiceUnavailable)
	conn.Close()
}

func (s *Server) serveConn(ctx context.Context, conn net.Conn) {
	defer s.untrack(conn)
	defer conn.Close()

	// A forced shutdown cancels ctx; unblock any pending read or write.
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	handle := func() error { return s.handleConn(ctx, conn) }
	var err error
	if m := s.config.Metrics; m != nil {
		err = m.ObserveConnection(handle)
	} else {
		err = handle()
	}
	if err != nil {
		s.config.Logger.Debug("connection handler error",
			slog.String("remote", conn.RemoteAddr().String()),
			slog.String("error", err.Error()))
	}
}

// handleConn processes a single client connection by:
// 1. Creating a handler context with connection metadata
// 2. Authorizing the connection
// 3. Reading and serving requests until the client or server ends keep-alive
// 4. Notifying the handler of the disconnect
func (s *Server) handleConn(ctx context.Context, conn net.Conn) error {
	sessionID := uuid.New().String()

	// Create handler context
	hctx := &handler.Context{
		SessionID:  sessionID,
		RemoteAddr: conn.RemoteAddr().String(),
	}

	// Extract client certificate if using TLS
	if tlsConn, ok := conn.(*tls.Conn); ok {
		tlsConn.SetDeadline(time.Now().Add(s.config.ReadTimeout))
		if err := tlsConn.Handshake(); err != nil {
			return perrors.New("tls handshake", sessionID, hctx.RemoteAddr, err)
		}
		state := tlsConn.ConnectionState()
		if len(state.PeerCertificates) > 0 {
			hctx.Cert = state.PeerCertificates[0]
		}
	}

	if err := s.handler.AuthConnect(ctx, hctx); err != nil {
		if m := s.config.Metrics; m != nil {
			m.AuthFailures.WithLabelValues("connect").Inc()
		}
		return perrors.New("auth connect", sessionID, hctx.RemoteAddr, fmt.Errorf("%w: %w", perrors.ErrUnauthorized, err))
	}
	if err := s.handler.OnConnect(ctx, hctx); err != nil {
		s.config.Logger.Error("connect handler error",
			slog.String("session", sessionID),
			slog.String("error", err.Error()))
	}

	// Notify disconnect
	defer func() {
		if err := s.handler.OnDisconnect(context.Background(), hctx); err != nil {
			s.config.Logger.Error("disconnect handler error",
				slog.String("session", sessionID),
				slog.String("error", err.Error()))
		}
		s.config.Logger.Debug("connection closed",
			slog.String("session", sessionID),
			slog.Int("requests", hctx.Requests))
	}()

	s.config.Logger.Debug("connection established",
		slog.String("session", sessionID),
		slog.String("remote", hctx.RemoteAddr))

	br := s.readers.Get().(*bufio.Reader)
	br.Reset(conn)
	defer func() {
		br.Reset(nil)
		s.readers.Put(br)
	}()

	for {
		if err := s.awaitRequest(conn, br, hctx.Requests == 0); err != nil {
			if isQuiet(err) {
				return nil
			}
			return perrors.New("await request", sessionID, hctx.RemoteAddr, err)
		}
		keepAlive, err := s.serveRequest(ctx, conn, br, hctx)
		if err != nil {
			return perrors.New("serve request", sessionID, hctx.RemoteAddr, err)
		}
		if !keepAlive {
			return nil
		}
	}
}

// awaitRequest blocks until the first byte of the next request is
// buffered. The connection counts as idle while it waits.
func (s *Server) awaitRequest(conn net.Conn, br *bufio.Reader, first bool) error {
	if br.Buffered() == 0 {
		idle := s.idleFlag(conn)
		idle.Store(true)
		if s.draining.Load() {
			return net.ErrClosed
		}

		timeout := s.config.IdleTimeout
		if first {
			timeout = s.config.ReadTimeout
		}
		conn.SetReadDeadline(time.Now().Add(timeout))
		_, err := br.Peek(1)
		idle.Store(false)
		if err != nil {
			return err
		}
	}

	now := time.Now()
	conn.SetReadDeadline(now.Add(s.config.ReadTimeout))
	conn.SetWriteDeadline(now.Add(s.config.WriteTimeout))
	return nil
}

// serveRequest reads one request and answers it. keepAlive reports
// whether the connection may carry another request.
func (s *Server) serveRequest(ctx context.Context, conn net.Conn, br *bufio.Reader, hctx *handler.Context) (keepAlive bool, err error) {
	m := s.config.Metrics

	if lim := s.config.Limiter; lim != nil {
		if err := lim.Allow(clientIP(conn)); err != nil {
			if m != nil {
				m.RateLimitedRequests.Inc()
			}
			s.respondError(conn, "", err)
			return false, err
		}
	}

	start := time.Now()
	req, err := s.parser.Parse(ctx, br, conn)
	if m != nil {
		m.ObserveParse(start, req, err)
	}
	if err != nil {
		switch {
		case errors.Is(err, perrors.ErrConnectionClosed):
			return false, nil
		case isTransport(err):
			// Nobody is left to answer.
			return false, err
		}
		s.logRejection(hctx, err)
		s.respondError(conn, "", err)
		return false, err
	}
	defer func() {
		if cerr := req.Close(); cerr != nil {
			s.config.Logger.Error("failed to remove uploaded files",
				slog.String("session", hctx.SessionID),
				slog.String("error", cerr.Error()))
		}
	}()

	hctx.Requests++
	hctx.Protocol = req.Version()
	user, pass, _ := handler.BasicAuth(req.Header())
	hctx.Username, hctx.Password = user, []byte(pass)

	if err := s.handler.AuthRequest(ctx, hctx, req); err != nil {
		if m != nil {
			m.AuthFailures.WithLabelValues("request").Inc()
		}
		err = fmt.Errorf("%w: %w", perrors.ErrUnauthorized, err)
		s.respondError(conn, req.Method(), err)
		return false, err
	}

	resp, err := s.handler.Handle(ctx, hctx, req)
	if err != nil {
		s.config.Logger.Error("request handler error",
			slog.String("session", hctx.SessionID),
			slog.String("method", req.Method()),
			slog.String("path", req.Path()),
			slog.String("error", err.Error()))
		s.respondError(conn, req.Method(), err)
		return false, err
	}
	if resp == nil {
		resp = &handler.Response{}
	}

	keepAlive = req.KeepAlive() && !s.draining.Load()
	if err := s.respond(conn, req, resp, keepAlive); err != nil {
		return false, err
	}
	return keepAlive, nil
}

func (s *Server) respond(conn net.Conn, req *request.Request, resp *handler.Response, keepAlive bool) error {
	status := resp.Status
	if status == 0 {
		status = http.StatusOK
	}
	if m := s.config.Metrics; m != nil {
		m.ObserveResponse(req.Method(), status)
	}
	if req.Major() == 0 {
		// HTTP/0.9 responses are the bare body.
		_, err := conn.Write(resp.Body)
		return err
	}
	return writeResponse(conn, status, resp.Header, resp.Body, keepAlive)
}

// respondError answers err with its mapped status and Connection: close.
func (s *Server) respondError(conn net.Conn, method string, err error) {
	status := perrors.StatusCode(err)
	if m := s.config.Metrics; m != nil {
		m.ObserveResponse(method, status)
	}
	conn.SetWriteDeadline(time.Now().Add(s.config.WriteTimeout))
	if werr := writeError(conn, status); werr != nil {
		s.config.Logger.Debug("failed to write error response",
			slog.String("remote", conn.RemoteAddr().String()),
			slog.String("error", werr.Error()))
	}
}

func (s *Server) logRejection(hctx *handler.Context, err error) {
	attrs := []any{
		slog.String("session", hctx.SessionID),
		slog.String("remote", hctx.RemoteAddr),
		slog.Int("status", perrors.StatusCode(err)),
	}
	var pe *perrors.ParseError
	if errors.As(err, &pe) {
		attrs = append(attrs,
			slog.String("kind", pe.Kind.String()),
			slog.String("reason", pe.Reason),
			slog.String("origin", fmt.Sprintf("%s %s:%d", pe.Func, pe.File, pe.Line)))
	} else {
		attrs = append(attrs, slog.String("error", err.Error()))
	}
	s.config.Logger.Warn("request rejected", attrs...)
}

func (s *Server) track(conn net.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conns[conn] = new(atomic.Bool)
}

func (s *Server) untrack(conn net.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conns, conn)
}

func (s *Server) idleFlag(conn net.Conn) *atomic.Bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if flag, ok := s.conns[conn]; ok {
		return flag
	}
	flag := new(atomic.Bool)
	s.conns[conn] = flag
	return flag
}

func (s *Server) closeIdle() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for conn, idle := range s.conns {
		if idle.Load() {
			conn.Close()
		}
	}
}

// isTransport reports failures of the connection itself, which end it
// without a response. Everything else is answered with its status.
func isTransport(err error) bool {
	var pe *perrors.ParseError
	if errors.As(err, &pe) {
		return false
	}
	return isQuiet(err) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}

// isQuiet reports the normal ways a connection ends between requests.
func isQuiet(err error) bool {
	if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) || errors.Is(err, syscall.ECONNRESET) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

func clientIP(conn net.Conn) string {
	addr := conn.RemoteAddr().String()
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}
