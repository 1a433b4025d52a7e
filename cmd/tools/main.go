package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"prepmate/internal/adapter/a2a"
	"prepmate/internal/adapter/mcpserver"
	"prepmate/internal/adapter/pdf"
	"prepmate/internal/adapter/secrets"
	"prepmate/internal/adapter/storage"
	"prepmate/internal/infra/config"
	"prepmate/internal/infra/logger"
	"prepmate/internal/infra/tracer"
	"prepmate/internal/usecase"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Config
	cfgPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	// 2. Logger & Tracer
	log, logCloser, err := logger.New(cfg.Logger)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer logCloser()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := secrets.Export(ctx, cfg.Secrets); err != nil {
		return fmt.Errorf("secrets: %w", err)
	}

	tracerShutdown, err := tracer.Setup(ctx, cfg.Tracer)
	if err != nil {
		return fmt.Errorf("tracer: %w", err)
	}
	defer tracerShutdown(context.Background())

	// 3. Storage
	store, err := storage.NewS3Store(ctx, cfg.Storage, log)
	if err != nil {
		return fmt.Errorf("storage: %w", err)
	}

	// 4. Research delegation
	research := a2a.NewClient(cfg.Research, log)

	// 5. PDF rendering
	converter, err := pdf.NewChromiumConverter(pdf.ChromiumConfig{}, log)
	if err != nil {
		return fmt.Errorf("pdf renderer: %w", err)
	}
	defer converter.Close()

	// 6. Tool server
	preps := usecase.NewPrepService(store, research, converter, log)
	srv, err := mcpserver.New(preps, log)
	if err != nil {
		return fmt.Errorf("tool server: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(cfg.Tools.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("tool server: %w", err)
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
