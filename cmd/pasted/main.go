package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"ephemeral-paste/internal/clock"
	"ephemeral-paste/internal/config"
	"ephemeral-paste/internal/httpserver"
	"ephemeral-paste/internal/id"
	"ephemeral-paste/internal/metrics"
	"ephemeral-paste/internal/paste"
	"ephemeral-paste/internal/storage"
)

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}
	logger := newLogger(cfg.Log)
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("fatal", "error", err)
		os.Exit(1)
	}
	logger.Info("shutdown complete")
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	openCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	store, err := openStore(openCtx, cfg)
	cancel()
	if err != nil {
		return fmt.Errorf("open %s store: %w", cfg.Store, err)
	}
	defer store.Close()

	clk := clock.Real{}
	m := metrics.New()
	svc := paste.NewService(paste.NewRepository(store, id.New(id.DefaultLength), clk))

	srv, err := httpserver.New(httpserver.Config{
		Service:  svc,
		Clock:    clk,
		MaxBytes: cfg.MaxBytes,
		TestMode: cfg.TestMode,
		BaseURL:  cfg.BaseURL,
		Logger:   logger,
		Metrics:  m,
	})
	if err != nil {
		return fmt.Errorf("construct server: %w", err)
	}

	if purger, ok := store.(storage.Purger); ok {
		j := &httpserver.Janitor{
			Purger:   purger,
			Clock:    clk,
			Interval: cfg.JanitorInterval,
			Logger:   logger,
			Metrics:  m,
		}
		j.Start(ctx)
	}
	if cfg.TestMode {
		logger.Warn("test mode enabled: x-test-now-ms overrides the clock")
	}

	srvHTTP := &http.Server{
		Addr:              cfg.Addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", cfg.Addr, "store", cfg.Store)
		if err := srvHTTP.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srvHTTP.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown error", "error", err)
		}
		return nil
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	}
}

func newLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(cfg.Format, "json") {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}
