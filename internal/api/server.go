// Package api exposes the retrieval backend over HTTP: chat with
// retrieval-augmented generation, document submission and inspection,
// and health probes for orchestration.
//
// File structure:
//   - server.go: HTTP server setup and lifecycle
//   - middleware.go: HTTP middleware (logging, recovery)
//   - health.go: health check endpoints (/health, /ready)
//   - chat.go: chat and conversation endpoints
//   - documents.go: document ingestion endpoints
//   - response.go: JSON response helpers
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/ragline/ragline/internal/generation"
	"github.com/ragline/ragline/internal/queue"
)

const (
	// DefaultAddr is the default listen address.
	DefaultAddr = "127.0.0.1:8080"

	// ShutdownTimeout is the maximum time to wait for graceful shutdown.
	ShutdownTimeout = 10 * time.Second

	// ReadHeaderTimeout bounds header reads against slow clients.
	ReadHeaderTimeout = 10 * time.Second

	// ReadTimeout is the maximum duration for reading the entire request.
	ReadTimeout = 30 * time.Second

	// WriteTimeout is generous to leave room for SSE streams.
	WriteTimeout = 5 * time.Minute

	// IdleTimeout is the keep-alive idle limit.
	IdleTimeout = 120 * time.Second
)

// ServerConfig carries the dependencies for the API server.
type ServerConfig struct {
	Assembler contextAssembler     // required
	Generator generation.Generator // required
	Documents documentStore        // required
	Broker    queue.Broker         // required
	Convs     conversationStore    // optional: nil disables conversation history
	Backends  map[string]Pinger    // readiness probe targets
	RateBurst int                  // per-IP rate limit burst (0 = default 60)
	Logger    *slog.Logger
}

// Server is the HTTP server for the retrieval backend.
type Server struct {
	mux     *http.ServeMux
	limiter *clientLimiter
	logger  *slog.Logger
}

// NewServer creates an HTTP server with all routes registered.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Assembler == nil {
		return nil, errors.New("assembler is required")
	}
	if cfg.Generator == nil {
		return nil, errors.New("generator is required")
	}
	if cfg.Documents == nil {
		return nil, errors.New("document store is required")
	}
	if cfg.Broker == nil {
		return nil, errors.New("queue broker is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	mux := http.NewServeMux()
	NewHealthHandler(cfg.Backends, logger).RegisterRoutes(mux)
	NewChatHandler(cfg.Assembler, cfg.Generator, cfg.Convs, logger).RegisterRoutes(mux)
	NewDocumentHandler(cfg.Documents, cfg.Broker, logger).RegisterRoutes(mux)

	burst := cfg.RateBurst
	if burst <= 0 {
		burst = 60
	}

	return &Server{
		mux:     mux,
		limiter: newClientLimiter(1.0, burst),
		logger:  logger,
	}, nil
}

// Handler returns the router with middleware applied.
// Middleware order: recovery → logging → rate limit → routes.
func (s *Server) Handler() http.Handler {
	return chain(s.mux,
		recoveryMiddleware(s.logger),
		loggingMiddleware(s.logger),
		rateLimitMiddleware(s.limiter, s.logger))
}

// Run starts the server and blocks until ctx is cancelled, then shuts
// down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	if addr == "" {
		addr = DefaultAddr
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: ReadHeaderTimeout,
		ReadTimeout:       ReadTimeout,
		WriteTimeout:      WriteTimeout,
		IdleTimeout:       IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting HTTP server", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutting down server: %w", err)
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
