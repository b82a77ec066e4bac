package http

import (
	"context"
	"net/http"

	"github.com/ulearning-intl/bigbluebutton-streaming/internal/infrastructure/monitoring"

	"github.com/gin-gonic/gin"
)

// ReadinessChecker reports the state of the process's dependencies.
type ReadinessChecker interface {
	CheckAll(ctx context.Context) monitoring.HealthStatus
}

type HealthHandler struct {
	checker ReadinessChecker
}

func NewHealthHandler(checker ReadinessChecker) *HealthHandler {
	return &HealthHandler{checker: checker}
}

func (h *HealthHandler) SetupRoutes(router gin.IRouter) {
	router.GET("/health", h.Health)
	router.GET("/ready", h.Ready)
}

// Health is liveness only: the process is serving requests.
func (h *HealthHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": monitoring.StatusHealthy})
}

func (h *HealthHandler) Ready(c *gin.Context) {
	status := h.checker.CheckAll(c.Request.Context())
	code := http.StatusOK
	if status.Status != monitoring.StatusHealthy {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, status)
}
