package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/tahmidanik/dishari/internal/config"
	"github.com/tahmidanik/dishari/internal/store"
)

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	repo store.Repository
	cfg  *config.Config
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(repo store.Repository, cfg *config.Config) *HealthHandler {
	return &HealthHandler{repo: repo, cfg: cfg}
}

// RegisterHealth registers the health route.
func (h *HealthHandler) RegisterHealth(r chi.Router) {
	r.Get("/api/health", h.Health)
}

// Health returns the health status of the API and its dependencies.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	statusText := "ok"
	dbStatus := "ok"
	status := http.StatusOK
	if err := h.repo.Ping(ctx); err != nil {
		statusText = "degraded"
		dbStatus = "unreachable"
		status = http.StatusServiceUnavailable
	}

	JSON(w, status, map[string]any{
		"status":   statusText,
		"database": dbStatus,
		"model":    h.cfg.GeminiModel,
	})
}
