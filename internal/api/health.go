package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

const healthCheckTimeout = 5 * time.Second

// ArchiveChecker is the archive as seen by the health check.
type ArchiveChecker interface {
	Ping(ctx context.Context) error
	Count(ctx context.Context) (int64, error)
}

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	sessions func() int
	archive  ArchiveChecker // optional
}

// NewHealthHandler creates a new health handler. archive may be nil.
func NewHealthHandler(sessions func() int, archive ArchiveChecker) *HealthHandler {
	return &HealthHandler{sessions: sessions, archive: archive}
}

// Health returns the health status of the API and its dependencies.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	checks := map[string]string{"api": "ok"}
	status := map[string]interface{}{
		"status": "healthy",
		"checks": checks,
	}
	statusCode := http.StatusOK

	if h.sessions != nil {
		status["sessions"] = h.sessions()
	}

	if h.archive != nil {
		if err := h.archive.Ping(ctx); err != nil {
			slog.Error("Health check failed", "error", err)
			status["status"] = "degraded"
			checks["archive"] = "unreachable"
			statusCode = http.StatusServiceUnavailable
		} else {
			checks["archive"] = "ok"
			if n, err := h.archive.Count(ctx); err == nil {
				status["archived"] = n
			}
		}
	}

	JSON(w, statusCode, status)
}

// RegisterHealth registers the health check route.
func (h *HealthHandler) RegisterHealth(r chi.Router) {
	r.Get("/health", h.Health)
}
