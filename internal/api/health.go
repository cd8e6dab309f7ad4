package api

import (
	"context"
	"log/slog"
	"net/http"
)

// Pinger is a backend that can verify its connection.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler serves liveness and readiness probes.
type HealthHandler struct {
	backends map[string]Pinger
	logger   *slog.Logger
}

// NewHealthHandler creates a health handler over named backends.
// Nil backends are skipped so partial deployments still report ready.
func NewHealthHandler(backends map[string]Pinger, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{backends: backends, logger: logger}
}

// RegisterRoutes registers health routes on the given mux.
func (h *HealthHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", h.liveness)
	mux.HandleFunc("GET /ready", h.readiness)
}

// liveness returns 200 if the process is alive.
func (h *HealthHandler) liveness(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// readiness pings every backend and returns 503 if any fails.
func (h *HealthHandler) readiness(w http.ResponseWriter, r *http.Request) {
	for name, backend := range h.backends {
		if backend == nil {
			continue
		}
		if err := backend.Ping(r.Context()); err != nil {
			h.logger.Error("readiness check failed", "backend", name, "error", err)
			writeError(w, http.StatusServiceUnavailable, "not_ready", name+" not ready")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
