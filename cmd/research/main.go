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
	"prepmate/internal/adapter/llm"
	"prepmate/internal/adapter/secrets"
	"prepmate/internal/adapter/tool"
	"prepmate/internal/domain"
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

	// 3. Model provider
	model, err := llm.NewBedrockProvider(ctx, cfg.Model, log)
	if err != nil {
		return fmt.Errorf("model: %w", err)
	}

	// 4. Search tools
	if cfg.Research.SearxngURL == "" {
		return fmt.Errorf("research.searxng_url is required")
	}
	search := tool.NewWebSearchTool(tool.NewSearXNGBackend(cfg.Research.SearxngURL, log), log)

	// 5. Researcher & task server
	researcher := usecase.NewResearcher(model, []domain.Tool{search}, "", cfg.Research.MaxIterations, log)
	taskServer := a2a.NewServer(researcher, log)

	srv := &http.Server{
		Addr:              cfg.Research.Addr,
		Handler:           taskServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("research server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("research server: %w", err)
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
