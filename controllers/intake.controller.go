package controllers

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/adityajain-27/medical-ai-sub000/aiclient"
	"github.com/adityajain-27/medical-ai-sub000/mailer"
	"github.com/adityajain-27/medical-ai-sub000/models"
	"github.com/adityajain-27/medical-ai-sub000/security"
	"github.com/adityajain-27/medical-ai-sub000/store"
	"github.com/adityajain-27/medical-ai-sub000/utils"
)

const defaultDoctorName = "Your Doctor"

type SendIntakeInput struct {
	PatientID string `json:"patientId" binding:"required"`
}

type SubmitIntakeInput struct {
	Symptoms        string                 `json:"symptoms" binding:"required"`
	Medications     []string               `json:"medications"`
	FollowupAnswers map[string]interface{} `json:"followup_answers"`
}

func intakeGone(c *gin.Context, message string) {
	security.SendError(c, http.StatusGone, security.CodeIntakeGone, "Intake unavailable", message, nil)
}

func (h *Handler) doctorName(c *gin.Context, doctorID string) string {
	doctor, err := h.Store.GetUserByID(c.Request.Context(), doctorID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			h.Logger.Warn("Failed to load doctor", zap.String("doctor_id", doctorID), zap.Error(err))
		}
		return defaultDoctorName
	}
	if doctor.Name == "" {
		return defaultDoctorName
	}
	return doctor.Name
}

// SendIntake creates a one-time intake link for a managed patient and
// e-mails it to them.
func (h *Handler) SendIntake(c *gin.Context) {
	var input SendIntakeInput
	if !bindJSON(c, &input, fieldMessages{"PatientID": "patientId is required"}) {
		return
	}
	if strings.TrimSpace(input.PatientID) == "" {
		security.SendValidationError(c, "patientId is required", nil)
		return
	}

	ctx := c.Request.Context()
	doctorID := userID(c)
	patient, err := h.Store.GetPatient(ctx, doctorID, input.PatientID)
	if errors.Is(err, store.ErrNotFound) {
		patientNotFound(c)
		return
	}
	if err != nil {
		h.dbError(c, "Failed to load patient", err)
		return
	}
	if strings.TrimSpace(patient.Email) == "" {
		security.SendValidationError(c, "Patient has no email address on file.", nil)
		return
	}

	token, err := utils.GenerateIntakeToken()
	if err != nil {
		h.internalError(c, "Failed to generate intake token", err)
		return
	}
	intake := &models.IntakeRequest{
		Token:     token,
		PatientID: patient.ID,
		DoctorID:  doctorID,
		Status:    models.IntakePending,
		ExpiresAt: h.now().Add(models.IntakeTTL),
	}
	if err := h.Store.CreateIntake(ctx, intake); err != nil {
		h.dbError(c, "Failed to create intake request", err)
		return
	}

	url := strings.TrimRight(h.Config.AppURL, "/") + "/intake/" + token
	msg, err := mailer.IntakeEmail(patient.Name, patient.Email, h.doctorName(c, doctorID), url, int(models.IntakeTTL.Hours()/24))
	if err != nil {
		h.internalError(c, "Failed to render intake email", err)
		return
	}
	if err := h.Mailer.Send(ctx, msg); err != nil {
		h.Logger.Error("Intake send error",
			zap.String("patient_id", patient.ID),
			zap.String("request_id", c.GetString("request_id")),
			zap.Error(err))
		security.SendError(c, http.StatusInternalServerError, security.CodeMailError, "Mail error",
			"Failed to send intake form", nil)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": fmt.Sprintf("Intake form sent to %s", patient.Email),
		"token":   token,
	})
}

// GetIntake is public: the token is the credential.
func (h *Handler) GetIntake(c *gin.Context) {
	ctx := c.Request.Context()
	intake, err := h.Store.GetIntakeByToken(ctx, c.Param("token"))
	if errors.Is(err, store.ErrNotFound) {
		security.SendNotFoundError(c, "Intake link not found or expired.")
		return
	}
	if err != nil {
		h.dbError(c, "Failed to load intake request", err)
		return
	}
	if intake.Completed() {
		intakeGone(c, "This intake form has already been submitted.")
		return
	}
	if intake.Expired(h.now()) {
		intakeGone(c, "This intake link has expired.")
		return
	}

	resp := gin.H{
		"patientName":   nil,
		"patientAge":    nil,
		"patientGender": nil,
		"doctorName":    nil,
		"expiresAt":     intake.ExpiresAt,
	}
	patient, err := h.Store.GetPatientByID(ctx, intake.PatientID)
	switch {
	case err == nil:
		resp["patientName"] = patient.Name
		resp["patientAge"] = patient.Age
		resp["patientGender"] = patient.Gender
	case !errors.Is(err, store.ErrNotFound):
		h.dbError(c, "Failed to load patient", err)
		return
	}
	doctor, err := h.Store.GetUserByID(ctx, intake.DoctorID)
	switch {
	case err == nil:
		resp["doctorName"] = doctor.Name
	case !errors.Is(err, store.ErrNotFound):
		h.dbError(c, "Failed to load doctor", err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// SubmitIntake runs the patient's answers through the AI service and files
// the result under the requesting doctor.
func (h *Handler) SubmitIntake(c *gin.Context) {
	ctx := c.Request.Context()
	token := c.Param("token")
	intake, err := h.Store.GetIntakeByToken(ctx, token)
	if errors.Is(err, store.ErrNotFound) {
		security.SendNotFoundError(c, "Intake link not found.")
		return
	}
	if err != nil {
		h.dbError(c, "Failed to load intake request", err)
		return
	}
	if intake.Completed() {
		intakeGone(c, "Already submitted.")
		return
	}
	if intake.Expired(h.now()) {
		intakeGone(c, "Link expired.")
		return
	}

	var input SubmitIntakeInput
	if !bindJSON(c, &input, fieldMessages{"Symptoms": "Symptoms are required."}) {
		return
	}
	if strings.TrimSpace(input.Symptoms) == "" {
		security.SendValidationError(c, "Symptoms are required.", nil)
		return
	}

	patient, err := h.Store.GetPatientByID(ctx, intake.PatientID)
	if errors.Is(err, store.ErrNotFound) {
		patientNotFound(c)
		return
	}
	if err != nil {
		h.dbError(c, "Failed to load patient", err)
		return
	}

	symptoms := utils.ComposeSymptoms(patient, input.Symptoms, "")
	meds := utils.MergeMedications(input.Medications, patient)
	result, err := h.AI.Assess(ctx, aiclient.AssessRequest{
		Symptoms:        symptoms,
		Medications:     meds,
		FollowupAnswers: input.FollowupAnswers,
	})
	if err != nil {
		h.aiError(c, err)
		return
	}

	patientRef := patient.ID
	assessment := result.Assessment(intake.DoctorID, &patientRef, symptoms, meds, input.FollowupAnswers)
	if err := h.Store.CreateAssessment(ctx, assessment); err != nil {
		h.dbError(c, "Failed to save assessment", err)
		return
	}
	h.recordAnalysis(c, patient.ID, assessment.ID)
	if err := h.Store.CompleteIntake(ctx, token); err != nil {
		// A concurrent submit already completed the link; this assessment
		// is kept all the same.
		if !errors.Is(err, store.ErrIntakeNotPending) {
			h.dbError(c, "Failed to complete intake request", err)
			return
		}
		h.Logger.Warn("Intake completed concurrently", zap.String("intake_id", intake.ID))
	}

	c.JSON(http.StatusOK, gin.H{"message": "Assessment complete! Your doctor has been notified."})
}
