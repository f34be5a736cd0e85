package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/soundprediction/go-kgextract/pkg/server/dto"
)

const serviceName = "go-kgextract"

// Check is a named readiness check.
type Check struct {
	Name string
	Fn   func(ctx context.Context) error
}

// HealthHandler handles health check requests
type HealthHandler struct {
	checks []Check
}

// NewHealthHandler creates a health handler running checks on GET /ready.
func NewHealthHandler(checks ...Check) *HealthHandler {
	return &HealthHandler{checks: checks}
}

// HealthCheck handles GET /health
func (h *HealthHandler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": serviceName,
	})
}

// ReadinessCheck handles GET /ready
func (h *HealthHandler) ReadinessCheck(c *gin.Context) {
	for _, chk := range h.checks {
		if err := chk.Fn(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, dto.ErrorResponse{
				Error:   dto.ErrNotReady,
				Message: chk.Name + ": " + err.Error(),
				Code:    http.StatusServiceUnavailable,
			})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"status":  "ready",
		"service": serviceName,
	})
}
