// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package main provides a production-ready wasp deployment with metrics,
// health checks, a circuit breaker around upload storage and rate limiting.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/absmach/wasp"
	"github.com/absmach/wasp/examples/simple"
	"github.com/absmach/wasp/pkg/breaker"
	"github.com/absmach/wasp/pkg/health"
	"github.com/absmach/wasp/pkg/metrics"
	"github.com/absmach/wasp/pkg/parser/http1"
	"github.com/absmach/wasp/pkg/ratelimit"
	"github.com/absmach/wasp/pkg/server/tcp"
	"github.com/absmach/wasp/pkg/storage"
	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
)

const envPrefix = "WASP_"

// Config holds the process level configuration. Listener settings are
// read separately into wasp.Config under the same prefix.
type Config struct {
	// Observability
	MetricsPort int    `env:"METRICS_PORT" envDefault:"9090"`
	HealthPort  int    `env:"HEALTH_PORT"  envDefault:"8081"`
	LogLevel    string `env:"LOG_LEVEL"    envDefault:"info"`
	LogFormat   string `env:"LOG_FORMAT"   envDefault:"json"`

	// Resource Limits
	MaxGoroutines  int           `env:"MAX_GOROUTINES"   envDefault:"50000"`
	PoolSaturation float64       `env:"POOL_SATURATION"  envDefault:"0.9"`
	SlowHandler    time.Duration `env:"SLOW_HANDLER"     envDefault:"1s"`

	// Circuit Breaker
	BreakerMaxFailures  int           `env:"BREAKER_MAX_FAILURES"  envDefault:"5"`
	BreakerResetTimeout time.Duration `env:"BREAKER_RESET_TIMEOUT" envDefault:"60s"`

	// Rate Limiting
	RateLimitCapacity  int64         `env:"RATE_LIMIT_CAPACITY"  envDefault:"100"`
	RateLimitRefill    int64         `env:"RATE_LIMIT_REFILL"    envDefault:"10"`
	RateLimitClients   int           `env:"RATE_LIMIT_CLIENTS"   envDefault:"10000"`
	RateLimitIdleTTL   time.Duration `env:"RATE_LIMIT_IDLE_TTL"  envDefault:"5m"`
	GlobalRateCapacity int64         `env:"GLOBAL_RATE_CAPACITY" envDefault:"10000"`
	GlobalRateRefill   int64         `env:"GLOBAL_RATE_REFILL"   envDefault:"1000"`
}

func main() {
	// Load configuration
	// .env file is optional
	_ = godotenv.Load()
	cfg := Config{}
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: envPrefix}); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse config: %v\n", err)
		os.Exit(1)
	}
	srvCfg, err := wasp.NewConfig(env.Options{Prefix: envPrefix})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse server config: %v\n", err)
		os.Exit(1)
	}
	if srvCfg.Port == "" {
		srvCfg.Port = "8080"
	}

	// Setup logger
	logger := setupLogger(cfg.LogLevel, cfg.LogFormat)
	logger.Info("Starting wasp in production mode",
		slog.String("address", srvCfg.Address()),
		slog.Int("workers", srvCfg.Workers),
		slog.Int("queue_size", srvCfg.QueueSize))

	// Create metrics
	m := metrics.New("wasp", nil)

	// Upload storage guarded by a circuit breaker
	sink, err := srvCfg.Sink()
	if err != nil {
		logger.Error("Failed to create upload sink", slog.String("error", err.Error()))
		os.Exit(1)
	}
	cb := breaker.New(breaker.Config{
		MaxFailures:      cfg.BreakerMaxFailures,
		ResetTimeout:     cfg.BreakerResetTimeout,
		SuccessThreshold: 2,
	})
	cb.OnStateChange(func(from, to breaker.State) {
		logger.Warn("Circuit breaker state changed",
			slog.String("from", from.String()),
			slog.String("to", to.String()))
		m.ObserveBreaker("media", int(to), to == breaker.StateOpen)
	})
	guarded := storage.NewGuarded(sink, cb)

	// Create rate limiters
	perClientLimiter := ratelimit.NewLimiter(ratelimit.Config{
		Capacity:   cfg.RateLimitCapacity,
		RefillRate: cfg.RateLimitRefill,
		MaxClients: cfg.RateLimitClients,
		IdleTTL:    cfg.RateLimitIdleTTL,
	})
	defer perClientLimiter.Close()
	globalLimiter := ratelimit.NewTokenBucket(cfg.GlobalRateCapacity, cfg.GlobalRateRefill)

	// Create handler chain
	h := &InstrumentedHandler{
		handler: &RateLimitedHandler{
			handler:       simple.New(logger),
			globalLimiter: globalLimiter,
			metrics:       m,
			logger:        logger,
		},
		logger: logger,
		slow:   cfg.SlowHandler,
	}

	p := http1.New(http1.Config{
		Limits:       srvCfg.Limits(),
		Sink:         guarded,
		MaxFieldSize: srvCfg.MaxFieldSize,
	})
	server := tcp.New(tcp.Config{
		Address:         srvCfg.Address(),
		TLSConfig:       srvCfg.TLSConfig,
		ReusePort:       srvCfg.ReusePort,
		MaxReadSize:     srvCfg.MaxReadSize,
		Workers:         srvCfg.Workers,
		QueueSize:       srvCfg.QueueSize,
		QueueWait:       srvCfg.QueueWait,
		ReadTimeout:     srvCfg.ReadTimeout,
		IdleTimeout:     srvCfg.IdleTimeout,
		WriteTimeout:    srvCfg.WriteTimeout,
		ShutdownTimeout: srvCfg.ShutdownTimeout,
		Limiter:         perClientLimiter,
		Metrics:         m,
		Logger:          logger,
	}, p, h)

	// Create health checker
	healthChecker := health.NewChecker(10 * time.Second)
	healthChecker.Register("goroutines", func(ctx context.Context) error {
		if count := runtime.NumGoroutine(); count > cfg.MaxGoroutines {
			return fmt.Errorf("too many goroutines: %d > %d", count, cfg.MaxGoroutines)
		}
		return nil
	})
	healthChecker.Register("worker_pool", health.PoolSaturation(server.Pool().Stats, srvCfg.QueueSize, cfg.PoolSaturation))
	healthChecker.RegisterCritical("media_breaker", health.BreakerClosed(cb))
	if w, ok := sink.(health.Writable); ok {
		healthChecker.RegisterCritical("media_storage", health.SinkWritable(w))
	}

	ctx, cancel := context.WithCancel(context.Background())
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return serveHTTP(ctx, "metrics", cfg.MetricsPort, metricsMux(), srvCfg.ShutdownTimeout, logger)
	})
	g.Go(func() error {
		return serveHTTP(ctx, "health", cfg.HealthPort, healthMux(healthChecker), srvCfg.ShutdownTimeout, logger)
	})
	g.Go(func() error {
		return server.Listen(ctx)
	})

	// Setup graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	// Wait for shutdown signal
	select {
	case sig := <-quit:
		logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
	case <-ctx.Done():
		logger.Info("Context cancelled")
	}

	// Cancel context to stop all servers
	cancel()

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Shutdown error", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("Graceful shutdown completed")
}

// setupLogger creates a structured logger with the specified level and format.
func setupLogger(level, format string) *slog.Logger {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: logLevel,
	}

	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}

func metricsMux() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

func healthMux(checker *health.Checker) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", checker.HTTPHandler())
	mux.HandleFunc("/ready", checker.ReadinessHandler())
	mux.HandleFunc("/live", health.LivenessHandler())
	return mux
}

// serveHTTP runs an auxiliary HTTP server until ctx is done.
func serveHTTP(ctx context.Context, name string, port int, h http.Handler, shutdownTimeout time.Duration, logger *slog.Logger) error {
	addr := fmt.Sprintf(":%d", port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      h,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting "+name+" server", slog.String("address", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("%s server: %w", name, err)
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
