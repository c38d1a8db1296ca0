package handler

import (
	"context"
	"net/http"
	"time"

	"clicktrack/internal/container"
)

// HealthHandler handles health check requests
type HealthHandler struct {
	container *container.Container
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(container *container.Container) *HealthHandler {
	return &HealthHandler{
		container: container,
	}
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status     string            `json:"status"`
	Timestamp  time.Time         `json:"timestamp"`
	Version    string            `json:"version"`
	Service    string            `json:"service"`
	Schema     string            `json:"schema"`
	Components map[string]string `json:"components"`
}

// Check handles GET /health. The database is required; Redis only degrades
// the status.
func (h *HealthHandler) Check(w http.ResponseWriter, r *http.Request) {
	logger := h.container.GetLogger()

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	response := HealthResponse{
		Status:     "healthy",
		Timestamp:  time.Now().UTC(),
		Version:    h.container.GetConfig().ServiceVersion,
		Service:    ServiceName,
		Schema:     h.container.Schema.Table,
		Components: map[string]string{"database": "up"},
	}
	status := http.StatusOK

	if err := h.container.SQL.PingContext(ctx); err != nil {
		logger.WithError(err).Error("Database health check failed")
		response.Components["database"] = "down"
		response.Status = "unhealthy"
		status = http.StatusServiceUnavailable
	}

	if h.container.HasRedis() {
		response.Components["redis"] = "up"
		if err := h.container.GetRedisClient().Health(ctx); err != nil {
			logger.WithError(err).Warn("Redis health check failed")
			response.Components["redis"] = "down"
			if status == http.StatusOK {
				response.Status = "degraded"
			}
		}
	}

	writeJSON(w, status, response, logger)
}
