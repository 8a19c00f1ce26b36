package controllers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/adityajain-27/medical-ai-sub000/aiclient"
	"github.com/adityajain-27/medical-ai-sub000/models"
	"github.com/adityajain-27/medical-ai-sub000/security"
	"github.com/adityajain-27/medical-ai-sub000/store"
)

type AssessInput struct {
	Symptoms        string                 `json:"symptoms" binding:"required"`
	Medications     []string               `json:"medications"`
	FollowupAnswers map[string]interface{} `json:"followup_answers"`
}

type FollowupInput struct {
	Symptoms    string   `json:"symptoms" binding:"required"`
	Medications []string `json:"medications"`
}

type ChatInput struct {
	Message string                   `json:"message" binding:"required"`
	History []map[string]interface{} `json:"history"`
}

var symptomsMessages = fieldMessages{"Symptoms": "Symptoms are required"}

// Assess charges one report, runs the AI pipeline and stores the result.
// The charge is refunded when the AI call or the insert fails.
func (h *Handler) Assess(c *gin.Context) {
	var input AssessInput
	if !bindJSON(c, &input, symptomsMessages) {
		return
	}
	if strings.TrimSpace(input.Symptoms) == "" {
		security.SendValidationError(c, "Symptoms are required", nil)
		return
	}

	ctx := c.Request.Context()
	uid := userID(c)
	remaining, err := h.Store.DeductCredits(ctx, uid, models.ReportCost)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrInsufficientCredits):
			insufficientCredits(c, remaining)
		case errors.Is(err, store.ErrNotFound):
			security.SendNotFoundError(c, "User not found")
		default:
			h.dbError(c, "Failed to reserve credits", err)
		}
		return
	}

	result, err := h.AI.Assess(ctx, aiclient.AssessRequest{
		Symptoms:        input.Symptoms,
		Medications:     input.Medications,
		FollowupAnswers: input.FollowupAnswers,
	})
	if err != nil {
		h.refund(ctx, uid)
		h.aiError(c, err)
		return
	}

	assessment := result.Assessment(uid, nil, input.Symptoms, input.Medications, input.FollowupAnswers)
	if err := h.Store.CreateAssessment(ctx, assessment); err != nil {
		h.refund(ctx, uid)
		h.dbError(c, "Failed to save assessment", err)
		return
	}

	c.JSON(http.StatusOK, result.Response(map[string]interface{}{
		"assessmentId":     assessment.ID,
		"creditsRemaining": remaining,
	}))
}

// refund returns a reserved report charge. It runs detached from the request
// so a client disconnect does not lose the credits.
func (h *Handler) refund(ctx context.Context, uid string) {
	if _, err := h.Store.AddCredits(context.WithoutCancel(ctx), uid, models.ReportCost); err != nil {
		h.Logger.Error("Failed to refund credits",
			zap.String("user_id", uid),
			zap.Int("amount", models.ReportCost),
			zap.Error(err))
	}
}

func (h *Handler) AssessmentHistory(c *gin.Context) {
	history, err := h.Store.ListUserAssessments(c.Request.Context(), userID(c))
	if err != nil {
		h.dbError(c, "Failed to load assessment history", err)
		return
	}
	if history == nil {
		history = []models.AssessmentSummary{}
	}
	c.JSON(http.StatusOK, history)
}

// GetAssessment returns an assessment the caller ran, or one attached to a
// patient the caller manages.
func (h *Handler) GetAssessment(c *gin.Context) {
	ctx := c.Request.Context()
	uid := userID(c)
	assessment, err := h.Store.GetAssessment(ctx, c.Param("id"))
	if errors.Is(err, store.ErrNotFound) {
		security.SendNotFoundError(c, "Assessment not found")
		return
	}
	if err != nil {
		h.dbError(c, "Failed to load assessment", err)
		return
	}
	if assessment.UserID != uid {
		if assessment.DoctorPatientID == nil {
			security.SendNotFoundError(c, "Assessment not found")
			return
		}
		if _, err := h.Store.GetPatient(ctx, uid, *assessment.DoctorPatientID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				security.SendNotFoundError(c, "Assessment not found")
				return
			}
			h.dbError(c, "Failed to load assessment", err)
			return
		}
	}
	c.JSON(http.StatusOK, assessment)
}

func (h *Handler) Followup(c *gin.Context) {
	var input FollowupInput
	if !bindJSON(c, &input, symptomsMessages) {
		return
	}
	if strings.TrimSpace(input.Symptoms) == "" {
		security.SendValidationError(c, "Symptoms are required", nil)
		return
	}
	payload, err := h.AI.Followup(c.Request.Context(), aiclient.FollowupRequest{
		Symptoms:    input.Symptoms,
		Medications: input.Medications,
	})
	if err != nil {
		h.aiError(c, err)
		return
	}
	c.Data(http.StatusOK, "application/json; charset=utf-8", payload)
}

func (h *Handler) Chat(c *gin.Context) {
	var input ChatInput
	if !bindJSON(c, &input, fieldMessages{"Message": "Message is required"}) {
		return
	}
	if strings.TrimSpace(input.Message) == "" {
		security.SendValidationError(c, "Message is required", nil)
		return
	}
	payload, err := h.AI.Chat(c.Request.Context(), aiclient.ChatRequest{
		Message: input.Message,
		History: input.History,
	})
	if err != nil {
		h.aiError(c, err)
		return
	}
	c.Data(http.StatusOK, "application/json; charset=utf-8", payload)
}
