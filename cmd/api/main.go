package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"powersvc/internal"
	"powersvc/internal/config"
	"powersvc/internal/container"
)

func main() {
	// .env is optional
	_ = godotenv.Load()

	logger := internal.NewDefaultLogger()

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration: %v", err)
		os.Exit(1)
	}
	logger = internal.NewLogger(internal.ParseLogLevel(cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c, err := container.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize: %v", err)
		os.Exit(1)
	}

	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: c.Router(),
	}
	var ops *http.Server
	if cfg.Profiling.Enabled {
		ops = &http.Server{
			Addr:    ":" + cfg.Profiling.Port,
			Handler: c.OpsRouter(),
		}
	}

	errCh := make(chan error, 2)
	go func() {
		logger.Info("power service listening on %s", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()
	if ops != nil {
		go func() {
			logger.Info("ops server listening on %s", ops.Addr)
			errCh <- ops.ListenAndServe()
		}()
	}

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed: %v", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown: %v", err)
	}
	if ops != nil {
		if err := ops.Shutdown(shutdownCtx); err != nil {
			logger.Warn("ops shutdown: %v", err)
		}
	}
	if err := c.Close(shutdownCtx); err != nil {
		logger.Warn("container close: %v", err)
	}
	logger.Info("stopped")
}
