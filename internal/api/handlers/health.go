package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/MacJediWizard/slawatch/internal/db"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// HealthStatus represents the health status of a component.
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
)

// HealthResponse is the response for the health endpoint.
type HealthResponse struct {
	Status   HealthStatus  `json:"status"`
	Duration string        `json:"duration"`
	Pool     *db.PoolStats `json:"pool,omitempty"`
	Error    string        `json:"error,omitempty"`
}

// DatabaseHealthChecker defines the interface for database health checking.
type DatabaseHealthChecker interface {
	Ping(ctx context.Context) error
	Health() db.PoolStats
}

// HealthHandler handles health-related HTTP endpoints.
type HealthHandler struct {
	db     DatabaseHealthChecker
	logger zerolog.Logger
}

// NewHealthHandler creates a new HealthHandler.
func NewHealthHandler(db DatabaseHealthChecker, logger zerolog.Logger) *HealthHandler {
	return &HealthHandler{
		db:     db,
		logger: logger.With().Str("component", "health_handler").Logger(),
	}
}

// RegisterPublicRoutes registers health check routes that don't require authentication.
func (h *HealthHandler) RegisterPublicRoutes(r *gin.Engine) {
	r.GET("/health", h.Overall)
}

// Overall reports database reachability and pool usage.
// GET /health
func (h *HealthHandler) Overall(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	start := time.Now()
	if err := h.db.Ping(ctx); err != nil {
		h.logger.Error().Err(err).Msg("database health check failed")
		c.JSON(http.StatusServiceUnavailable, HealthResponse{
			Status:   HealthStatusUnhealthy,
			Duration: time.Since(start).String(),
			Error:    "database unreachable",
		})
		return
	}

	stats := h.db.Health()
	c.JSON(http.StatusOK, HealthResponse{
		Status:   HealthStatusHealthy,
		Duration: time.Since(start).String(),
		Pool:     &stats,
	})
}
