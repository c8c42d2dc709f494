package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/render"

	apierrors "tradepulse/internal/errors"
	"tradepulse/internal/services"
)

// HealthHandler handles health-related HTTP requests
type HealthHandler struct {
	service      *services.HealthService
	errorHandler *apierrors.ErrorHandler
	logger       *slog.Logger
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(service *services.HealthService, errorHandler *apierrors.ErrorHandler, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{
		service:      service,
		errorHandler: errorHandler,
		logger:       logger.With(slog.String("handler", "health")),
	}
}

// HealthCheck handles GET /api/health. A degraded store answers 503 so load
// balancers stop routing uploads to the instance.
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	status := h.service.HealthCheck(r.Context())
	if status.Status != "ok" {
		render.Status(r, http.StatusServiceUnavailable)
	}
	render.JSON(w, r, status)
}

// Version handles GET /api/version
func (h *HealthHandler) Version(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, h.service.Version())
}

// Stats handles GET /api/stats
func (h *HealthHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.Stats(r.Context())
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	render.JSON(w, r, map[string]interface{}{
		"status": "success",
		"data":   stats,
	})
}
