package controllers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/adityajain-27/medical-ai-sub000/aiclient"
	"github.com/adityajain-27/medical-ai-sub000/config"
	"github.com/adityajain-27/medical-ai-sub000/mailer"
	"github.com/adityajain-27/medical-ai-sub000/security"
	"github.com/adityajain-27/medical-ai-sub000/store"
)

// Handler holds the dependencies every route needs.
type Handler struct {
	Store  store.Store
	AI     *aiclient.Client
	Mailer mailer.Mailer
	Tokens *security.TokenIssuer
	Config *config.Config
	Logger *zap.Logger
	Now    func() time.Time
}

func NewHandler(st store.Store, ai *aiclient.Client, m mailer.Mailer, tokens *security.TokenIssuer, cfg *config.Config, logger *zap.Logger) *Handler {
	return &Handler{
		Store:  st,
		AI:     ai,
		Mailer: m,
		Tokens: tokens,
		Config: cfg,
		Logger: logger,
		Now:    time.Now,
	}
}

func (h *Handler) now() time.Time {
	if h.Now == nil {
		return time.Now()
	}
	return h.Now()
}

func userID(c *gin.Context) string {
	return c.GetString(security.ContextUserID)
}

func (h *Handler) logError(c *gin.Context, msg string, err error) {
	h.Logger.Error(msg,
		zap.String("path", c.FullPath()),
		zap.String("request_id", c.GetString("request_id")),
		zap.Error(err))
}

// dbError logs a store failure and replies 500 with msg.
func (h *Handler) dbError(c *gin.Context, msg string, err error) {
	h.logError(c, msg, err)
	security.SendDatabaseError(c, msg)
}

func (h *Handler) internalError(c *gin.Context, msg string, err error) {
	h.logError(c, msg, err)
	security.SendError(c, http.StatusInternalServerError, security.CodeInternalError, "Internal server error", msg, nil)
}

// aiError maps an AI client failure onto a 502 reply.
func (h *Handler) aiError(c *gin.Context, err error) {
	h.aiFailure(c, err, "AI service error")
}

func (h *Handler) aiFailure(c *gin.Context, err error, label string) {
	var contractErr *aiclient.ContractError
	var statusErr *aiclient.StatusError
	switch {
	case errors.As(err, &contractErr):
		h.Logger.Warn("AI contract violation", zap.String("path", c.FullPath()), zap.Error(err))
		security.SendError(c, http.StatusBadGateway, security.CodeAIContractViolation, "AI contract violation",
			"AI service returned an invalid response", gin.H{"reason": contractErr.Reason})
	case errors.As(err, &statusErr):
		h.Logger.Warn("AI service error", zap.String("path", c.FullPath()), zap.Int("status", statusErr.StatusCode))
		details := gin.H{"status": statusErr.StatusCode}
		if detail := statusErr.Detail(); detail != "" {
			details["detail"] = detail
		}
		security.SendError(c, http.StatusBadGateway, security.CodeAIServiceError, "AI service error",
			label, details)
	case errors.Is(err, aiclient.ErrUnavailable), errors.Is(err, context.DeadlineExceeded):
		h.Logger.Warn("AI service unavailable", zap.String("path", c.FullPath()), zap.Error(err))
		security.SendError(c, http.StatusBadGateway, security.CodeAIServiceError, "AI service error",
			"AI service unavailable", nil)
	default:
		h.internalError(c, "AI request failed", err)
	}
}

// recordAnalysis bumps the patient's analysis counter after an assessment is
// saved. A failure leaves totalAnalyses behind the stored assessments, so it
// is logged with both ids for reconciliation and the request still succeeds.
func (h *Handler) recordAnalysis(c *gin.Context, patientID, assessmentID string) {
	if err := h.Store.RecordAnalysis(c.Request.Context(), patientID, h.now()); err != nil {
		h.Logger.Error("Failed to record analysis",
			zap.String("path", c.FullPath()),
			zap.String("request_id", c.GetString("request_id")),
			zap.String("patient_id", patientID),
			zap.String("assessment_id", assessmentID),
			zap.Error(err))
	}
}

func patientNotFound(c *gin.Context) {
	security.SendNotFoundError(c, "Patient not found")
}
