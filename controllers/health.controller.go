package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/adityajain-27/medical-ai-sub000/security"
)

const (
	ServiceName = "medical-ai-backend"

	healthTimeout = 3 * time.Second
)

// HealthCheck pings the store.
func (h *Handler) HealthCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthTimeout)
	defer cancel()

	if err := h.Store.Ping(ctx); err != nil {
		h.Logger.Warn("Health check failed", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":  "unhealthy",
			"service": ServiceName,
			"error":   "Database connection failed",
			"code":    security.CodeServiceUnhealthy,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"service":   ServiceName,
		"timestamp": h.now().Unix(),
	})
}

func Root(c *gin.Context) {
	c.String(http.StatusOK, "Hello World!")
}
