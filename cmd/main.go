// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/absmach/wasp"
	"github.com/absmach/wasp/examples/simple"
	"github.com/absmach/wasp/pkg/parser/http1"
	"github.com/absmach/wasp/pkg/server/tcp"
	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"
)

const (
	httpWithoutTLS = "WASP_HTTP_"
	httpWithTLS    = "WASP_HTTPS_"
	httpWithmTLS   = "WASP_HTTPS_MTLS_"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	g, ctx := errgroup.WithContext(ctx)

	logHandler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	})
	logger := slog.New(logHandler)

	// Create handler
	handler := simple.New(logger)

	// Load .env file
	if err := godotenv.Load(); err != nil {
		logger.Warn("no .env file found, using environment variables")
	}

	for _, prefix := range []string{httpWithoutTLS, httpWithTLS, httpWithmTLS} {
		if err := startHTTPServer(g, ctx, prefix, handler, logger); err != nil {
			logger.Warn("HTTP server not started",
				slog.String("prefix", prefix),
				slog.String("error", err.Error()))
		}
	}

	// Signal handler
	g.Go(func() error {
		return StopSignalHandler(ctx, cancel, logger)
	})

	if err := g.Wait(); err != nil {
		logger.Error(fmt.Sprintf("wasp service terminated with error: %s", err))
	} else {
		logger.Info("wasp service stopped")
	}
}

func startHTTPServer(g *errgroup.Group, ctx context.Context, envPrefix string, handler *simple.Handler, logger *slog.Logger) error {
	cfg, err := wasp.NewConfig(env.Options{Prefix: envPrefix})
	if err != nil {
		return err
	}

	// Skip if port is not configured
	if cfg.Port == "" {
		return fmt.Errorf("port not configured")
	}

	sink, err := cfg.Sink()
	if err != nil {
		return err
	}

	p := http1.New(http1.Config{
		Limits:       cfg.Limits(),
		Sink:         sink,
		MaxFieldSize: cfg.MaxFieldSize,
	})

	server := tcp.New(tcp.Config{
		Address:         cfg.Address(),
		TLSConfig:       cfg.TLSConfig,
		ReusePort:       cfg.ReusePort,
		MaxReadSize:     cfg.MaxReadSize,
		Workers:         cfg.Workers,
		QueueSize:       cfg.QueueSize,
		QueueWait:       cfg.QueueWait,
		ReadTimeout:     cfg.ReadTimeout,
		IdleTimeout:     cfg.IdleTimeout,
		WriteTimeout:    cfg.WriteTimeout,
		ShutdownTimeout: cfg.ShutdownTimeout,
		Logger:          logger,
	}, p, handler)

	g.Go(func() error {
		return server.Listen(ctx)
	})

	logger.Info("HTTP server started", slog.String("prefix", envPrefix), slog.String("address", cfg.Address()))
	return nil
}

func StopSignalHandler(ctx context.Context, cancel context.CancelFunc, logger *slog.Logger) error {
	c := make(chan os.Signal, 2)
	signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-c:
		logger.Info("received shutdown signal")
		cancel()
		return nil
	case <-ctx.Done():
		return nil
	}
}
