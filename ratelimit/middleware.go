package ratelimit

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/adityajain-27/medical-ai-sub000/security"
)

// Middleware limits requests per client IP. Limiter failures let the request
// through.
func Middleware(limiter KeyedRateLimiter, prefix string, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		ok, err := limiter.Check(c.Request.Context(), prefix+c.ClientIP(), 1)
		if err != nil {
			logger.Warn("rate limiter unavailable", zap.String("prefix", prefix), zap.Error(err))
			c.Next()
			return
		}
		if !ok {
			security.SendError(c, http.StatusTooManyRequests, security.CodeRateLimited, "Too many requests",
				"Too many requests. Please try again later.", nil)
			return
		}
		c.Next()
	}
}
