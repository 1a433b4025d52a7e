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

	"prepmate/internal/adapter/gateway"
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

	// 4. Window guard
	counter, err := usecase.NewTiktokenCounter(cfg.Agent.TokenEncoding)
	if err != nil {
		return fmt.Errorf("token counter: %w", err)
	}
	guard := usecase.NewWindowGuard(counter, cfg.Agent.HistoryMaxTokens, log)

	// 5. Orchestrator
	systemPrompt := ""
	if cfg.Agent.SystemPromptFile != "" {
		data, err := os.ReadFile(cfg.Agent.SystemPromptFile)
		if err != nil {
			return fmt.Errorf("read system prompt: %w", err)
		}
		systemPrompt = string(data)
	}

	toolFactory := func(ctx context.Context, userEmail string) (domain.ToolSource, error) {
		return tool.NewMCPToolSource(ctx, cfg.Tools.MCPURL, userEmail, log)
	}
	orch := usecase.NewOrchestrator(model, toolFactory, guard, usecase.OrchestratorConfig{
		SystemPrompt:  systemPrompt,
		MaxIterations: cfg.Agent.MaxIterations,
	}, log)

	// 6. Gateway
	srv := gateway.NewServer(ctx, cfg.Gateway, gateway.NewChatHandler(orch, log), log)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("gateway: %w", err)
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
