package gateway

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"prepmate/internal/infra/config"
	"prepmate/internal/infra/middleware"
)

// Server is the chat backend's HTTP front: the /chat SSE endpoint behind
// CORS, security headers, and per-client rate limiting.
type Server struct {
	http   *http.Server
	logger *slog.Logger
}

// NewServer wires the chat handler into an HTTP server.
func NewServer(ctx context.Context, cfg config.GatewayConfig, chat *ChatHandler, logger *slog.Logger) *Server {
	mux := http.NewServeMux()
	mux.Handle("POST /chat", chat)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	var handler http.Handler = mux
	handler = middleware.RateLimit(ctx, middleware.RateLimitConfig{
		RequestsPerSec: cfg.RateLimitPerSec,
		BurstSize:      cfg.RateLimitBurst,
	})(handler)
	handler = middleware.SecurityHeaders(handler)
	handler = middleware.CORS(cfg.CORSOrigins)(handler)

	return &Server{
		http: &http.Server{
			Addr:              cfg.Addr,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
			// No WriteTimeout: SSE responses stay open for the whole run.
		},
		logger: logger,
	}
}

// Start serves until Shutdown.
func (s *Server) Start() error {
	s.logger.Info("gateway listening", "addr", s.http.Addr)
	return s.http.ListenAndServe()
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}
