package security

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// ErrorResponse is the JSON body of every error reply.
type ErrorResponse struct {
	Error   string      `json:"error"`
	Message string      `json:"message"`
	Code    string      `json:"code"`
	Details interface{} `json:"details,omitempty"`
}

const (
	// Authentication errors
	CodeMissingToken         = "MISSING_TOKEN"
	CodeInvalidToken         = "INVALID_TOKEN"
	CodeInvalidUserInfo      = "INVALID_USER_INFO"
	CodeUserNotAuthenticated = "USER_NOT_AUTHENTICATED"
	CodeInvalidCredentials   = "INVALID_CREDENTIALS"
	CodeUserExists           = "USER_EXISTS"

	// Authorization errors
	CodeInsufficientPermissions = "INSUFFICIENT_PERMISSIONS"

	// Validation errors
	CodeValidationError = "VALIDATION_ERROR"

	// Resource errors
	CodeResourceNotFound = "RESOURCE_NOT_FOUND"
	CodeIntakeGone       = "INTAKE_GONE"

	// Ledger errors
	CodeInsufficientCredits = "INSUFFICIENT_CREDITS"

	// Upstream errors
	CodeAIServiceError      = "AI_SERVICE_ERROR"
	CodeAIContractViolation = "AI_CONTRACT_VIOLATION"
	CodeMailError           = "MAIL_ERROR"

	CodeRateLimited = "RATE_LIMITED"

	// Server errors
	CodeDatabaseError    = "DATABASE_ERROR"
	CodeInternalError    = "INTERNAL_ERROR"
	CodeServiceUnhealthy = "SERVICE_UNHEALTHY"
)

// SendError writes the error envelope. message is what clients display.
func SendError(c *gin.Context, statusCode int, errorCode, errorMessage, message string, details interface{}) {
	response := ErrorResponse{
		Error:   errorMessage,
		Message: message,
		Code:    errorCode,
	}
	if details != nil {
		response.Details = details
	}
	c.AbortWithStatusJSON(statusCode, response)
}

func SendValidationError(c *gin.Context, message string, details interface{}) {
	SendError(c, http.StatusBadRequest, CodeValidationError, "Validation failed", message, details)
}

func SendNotFoundError(c *gin.Context, message string) {
	SendError(c, http.StatusNotFound, CodeResourceNotFound, "Resource not found", message, nil)
}

func SendDatabaseError(c *gin.Context, message string) {
	SendError(c, http.StatusInternalServerError, CodeDatabaseError, "Database error", message, nil)
}
