package security

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// Context keys set by AuthMiddleware.
const (
	ContextUserID   = "user_id"
	ContextUserRole = "user_role"
)

// AuthMiddleware verifies the bearer token and stores the caller's id and
// role in the gin context.
func AuthMiddleware(issuer *TokenIssuer) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenStr := c.GetHeader("Authorization")
		if tokenStr == "" {
			SendError(c, http.StatusUnauthorized, CodeMissingToken, "Authentication required",
				"Not authorized, no token", nil)
			return
		}

		// Remove "Bearer " prefix if present
		tokenStr = strings.TrimSpace(strings.TrimPrefix(tokenStr, "Bearer "))

		claims, err := issuer.Parse(tokenStr)
		if err != nil {
			SendError(c, http.StatusUnauthorized, CodeInvalidToken, "Invalid or expired token",
				"Not authorized, token failed", nil)
			return
		}
		if claims.ID == "" || claims.Role == "" {
			SendError(c, http.StatusUnauthorized, CodeInvalidUserInfo, "Invalid user information",
				"The token does not contain valid user information. Please login again", nil)
			return
		}

		c.Set(ContextUserID, claims.ID)
		c.Set(ContextUserRole, claims.Role)
		c.Next()
	}
}

// RequireRole admits callers whose token role is one of expectedRoles.
func RequireRole(expectedRoles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetString(ContextUserID)
		if userID == "" {
			SendError(c, http.StatusUnauthorized, CodeUserNotAuthenticated, "User not authenticated",
				"User authentication is required to access this resource", nil)
			return
		}

		role := c.GetString(ContextUserRole)
		for _, expected := range expectedRoles {
			if role == expected {
				c.Next()
				return
			}
		}

		var roleList string
		switch len(expectedRoles) {
		case 1:
			roleList = expectedRoles[0]
		case 2:
			roleList = expectedRoles[0] + " or " + expectedRoles[1]
		default:
			roleList = strings.Join(expectedRoles[:len(expectedRoles)-1], ", ") + ", or " + expectedRoles[len(expectedRoles)-1]
		}

		SendError(c, http.StatusForbidden, CodeInsufficientPermissions, "Insufficient permissions",
			"Access denied. This resource requires "+roleList+" role.",
			gin.H{
				"required_roles": expectedRoles,
				"user_role":      role,
			})
	}
}

// CORSMiddleware allows the configured origins. A single "*" allows any
// origin without credentials; credentials are only sent to listed origins.
func CORSMiddleware(origins []string) gin.HandlerFunc {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Requested-With", "Cache-Control", "X-Request-ID"},
		ExposeHeaders: []string{"X-Request-ID"},
		MaxAge:        24 * time.Hour,
	}
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
		cfg.AllowCredentials = true
	}
	return cors.New(cfg)
}
