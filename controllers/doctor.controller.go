package controllers

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/adityajain-27/medical-ai-sub000/aiclient"
	"github.com/adityajain-27/medical-ai-sub000/models"
	"github.com/adityajain-27/medical-ai-sub000/security"
	"github.com/adityajain-27/medical-ai-sub000/store"
	"github.com/adityajain-27/medical-ai-sub000/utils"
)

const statsWindow = 7 * 24 * time.Hour

var dataURLPrefix = regexp.MustCompile(`^data:([\w.+-]+/[\w.+-]+);base64,`)

type CreatePatientInput struct {
	Name               string   `json:"name" binding:"required,max=100"`
	Age                *flexInt `json:"age" binding:"required,min=0,max=150"`
	Gender             string   `json:"gender" binding:"required,oneof=male female other"`
	Email              string   `json:"email" binding:"omitempty,email"`
	Phone              string   `json:"phone" binding:"omitempty,max=20"`
	MedicalHistory     string   `json:"medicalHistory"`
	CurrentMedications []string `json:"currentMedications"`
	Allergies          string   `json:"allergies"`
	BloodGroup         string   `json:"bloodGroup" binding:"omitempty,max=10"`
}

type AnalyzeInput struct {
	Symptoms    string          `json:"symptoms" binding:"required"`
	Medications []string        `json:"medications"`
	Severity    json.RawMessage `json:"severity"`
}

type AnalyzeImageInput struct {
	AnalyzeInput
	ImageBase64 string `json:"imageBase64" binding:"required"`
	ImageType   string `json:"imageType" binding:"omitempty,max=100"`
}

var (
	patientMessages = fieldMessages{
		"Name.required":   "Name, age and gender are required",
		"Age.required":    "Name, age and gender are required",
		"Gender.required": "Name, age and gender are required",
		"Age":             "Age must be between 0 and 150",
		"Gender":          "Gender must be male, female or other",
		"Email":           "Email address is not valid",
		"Status":          "Status must be active or inactive",
	}
	analyzeMessages = fieldMessages{
		"Symptoms":    "Symptoms are required",
		"ImageBase64": "Image is required",
	}
)

// flexInt accepts 42 as well as "42".
type flexInt int

func (f *flexInt) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		b = []byte(strings.TrimSpace(s))
	}
	n, err := strconv.Atoi(string(b))
	if err != nil {
		return errors.New("age must be a whole number")
	}
	*f = flexInt(n)
	return nil
}

// severityText renders the optional severity the way the dashboard sends it:
// a number, a string or nothing. Zero and blank mean unset.
func severityText(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var n float64
	if err := json.Unmarshal(raw, &n); err == nil {
		if n == 0 {
			return ""
		}
		return strconv.FormatFloat(n, 'f', -1, 64)
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	return ""
}

// decodeImage strips an optional data URL prefix and returns the bytes and
// the content type it announced.
func decodeImage(encoded string) ([]byte, string, error) {
	encoded = strings.TrimSpace(encoded)
	var contentType string
	if m := dataURLPrefix.FindStringSubmatch(encoded); m != nil {
		contentType = m[1]
		encoded = encoded[len(m[0]):]
	}
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, "", err
	}
	return data, contentType, nil
}

func (h *Handler) ListPatients(c *gin.Context) {
	ctx := c.Request.Context()
	patients, err := h.Store.ListPatients(ctx, userID(c))
	if err != nil {
		h.dbError(c, "Failed to load patients", err)
		return
	}
	ids := make([]string, len(patients))
	for i := range patients {
		ids[i] = patients[i].ID
	}
	latest, err := h.Store.LatestAssessments(ctx, ids)
	if err != nil {
		h.dbError(c, "Failed to load latest assessments", err)
		return
	}

	items := make([]models.PatientListItem, 0, len(patients))
	for _, p := range patients {
		item := models.PatientListItem{DoctorPatient: p}
		if a, ok := latest[p.ID]; ok {
			triage := a.Triage
			createdAt := a.CreatedAt
			symptoms := a.Symptoms
			item.LatestTriage = &triage
			item.LastVisit = &createdAt
			item.LastSymptoms = &symptoms
		}
		items = append(items, item)
	}
	c.JSON(http.StatusOK, items)
}

func (h *Handler) CreatePatient(c *gin.Context) {
	var input CreatePatientInput
	if !bindJSON(c, &input, patientMessages) {
		return
	}
	input.Name = strings.TrimSpace(input.Name)
	if input.Name == "" {
		security.SendValidationError(c, "Name, age and gender are required", nil)
		return
	}

	meds := input.CurrentMedications
	if meds == nil {
		meds = []string{}
	}
	patient := &models.DoctorPatient{
		DoctorID:           userID(c),
		Name:               input.Name,
		Age:                int(*input.Age),
		Gender:             input.Gender,
		Email:              strings.TrimSpace(input.Email),
		Phone:              strings.TrimSpace(input.Phone),
		MedicalHistory:     input.MedicalHistory,
		CurrentMedications: meds,
		Allergies:          input.Allergies,
		BloodGroup:         input.BloodGroup,
	}
	if err := h.Store.CreatePatient(c.Request.Context(), patient); err != nil {
		h.dbError(c, "Failed to create patient", err)
		return
	}
	c.JSON(http.StatusCreated, patient)
}

func (h *Handler) GetPatient(c *gin.Context) {
	ctx := c.Request.Context()
	patient, err := h.Store.GetPatient(ctx, userID(c), c.Param("id"))
	if errors.Is(err, store.ErrNotFound) {
		patientNotFound(c)
		return
	}
	if err != nil {
		h.dbError(c, "Failed to load patient", err)
		return
	}
	assessments, err := h.Store.ListPatientAssessments(ctx, patient.ID)
	if err != nil {
		h.dbError(c, "Failed to load patient assessments", err)
		return
	}
	if assessments == nil {
		assessments = []models.Assessment{}
	}
	c.JSON(http.StatusOK, gin.H{
		"patient":     patient,
		"assessments": assessments,
	})
}

func (h *Handler) ListPatientAssessments(c *gin.Context) {
	ctx := c.Request.Context()
	patient, err := h.Store.GetPatient(ctx, userID(c), c.Param("id"))
	if errors.Is(err, store.ErrNotFound) {
		patientNotFound(c)
		return
	}
	if err != nil {
		h.dbError(c, "Failed to load patient", err)
		return
	}
	assessments, err := h.Store.ListPatientAssessments(ctx, patient.ID)
	if err != nil {
		h.dbError(c, "Failed to load patient assessments", err)
		return
	}
	if assessments == nil {
		assessments = []models.Assessment{}
	}
	c.JSON(http.StatusOK, assessments)
}

func (h *Handler) UpdatePatient(c *gin.Context) {
	var upd models.PatientUpdate
	if !bindJSON(c, &upd, patientMessages) {
		return
	}
	if upd.Name != nil {
		name := strings.TrimSpace(*upd.Name)
		if name == "" {
			security.SendValidationError(c, "Name cannot be empty", nil)
			return
		}
		upd.Name = &name
	}
	if upd.CurrentMedications != nil && *upd.CurrentMedications == nil {
		meds := []string{}
		upd.CurrentMedications = &meds
	}
	if upd.Empty() {
		security.SendValidationError(c, "No fields to update", nil)
		return
	}

	patient, err := h.Store.UpdatePatient(c.Request.Context(), userID(c), c.Param("id"), upd)
	if errors.Is(err, store.ErrNotFound) {
		patientNotFound(c)
		return
	}
	if err != nil {
		h.dbError(c, "Failed to update patient", err)
		return
	}
	c.JSON(http.StatusOK, patient)
}

func (h *Handler) DeletePatient(c *gin.Context) {
	err := h.Store.DeletePatient(c.Request.Context(), userID(c), c.Param("id"))
	if errors.Is(err, store.ErrNotFound) {
		patientNotFound(c)
		return
	}
	if err != nil {
		h.dbError(c, "Failed to delete patient", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Patient removed"})
}

func (h *Handler) AnalyzePatient(c *gin.Context) {
	h.analyzePatient(c, false)
}

func (h *Handler) AnalyzePatientImage(c *gin.Context) {
	h.analyzePatient(c, true)
}

// analyzePatient runs an assessment on behalf of a managed patient. Doctor
// analyses are not charged.
func (h *Handler) analyzePatient(c *gin.Context, withImage bool) {
	ctx := c.Request.Context()
	doctorID := userID(c)
	patient, err := h.Store.GetPatient(ctx, doctorID, c.Param("id"))
	if errors.Is(err, store.ErrNotFound) {
		patientNotFound(c)
		return
	}
	if err != nil {
		h.dbError(c, "Failed to load patient", err)
		return
	}

	var input AnalyzeImageInput
	var dst interface{} = &input.AnalyzeInput
	if withImage {
		dst = &input
	}
	if !bindJSON(c, dst, analyzeMessages) {
		return
	}
	if strings.TrimSpace(input.Symptoms) == "" {
		security.SendValidationError(c, "Symptoms are required", nil)
		return
	}

	symptoms := utils.ComposeSymptoms(patient, input.Symptoms, severityText(input.Severity))
	meds := utils.MergeMedications(input.Medications, patient)

	var result *aiclient.Result
	if withImage {
		if strings.TrimSpace(input.ImageBase64) == "" {
			security.SendValidationError(c, "Image is required", nil)
			return
		}
		image, announced, err := decodeImage(input.ImageBase64)
		if err != nil {
			security.SendValidationError(c, "Image is not valid base64", nil)
			return
		}
		contentType := input.ImageType
		if contentType == "" {
			contentType = announced
		}
		result, err = h.AI.AssessImage(ctx, aiclient.ImageRequest{
			Symptoms:    symptoms,
			Medications: meds,
			Image:       image,
			ContentType: contentType,
		})
		if err != nil {
			h.aiFailure(c, err, "AI vision service error")
			return
		}
	} else {
		result, err = h.AI.Assess(ctx, aiclient.AssessRequest{
			Symptoms:    symptoms,
			Medications: meds,
		})
		if err != nil {
			h.aiError(c, err)
			return
		}
	}

	patientRef := patient.ID
	assessment := result.Assessment(doctorID, &patientRef, symptoms, meds, nil)
	if err := h.Store.CreateAssessment(ctx, assessment); err != nil {
		h.dbError(c, "Failed to save assessment", err)
		return
	}
	h.recordAnalysis(c, patient.ID, assessment.ID)
	c.JSON(http.StatusOK, result.Response(map[string]interface{}{
		"assessmentId": assessment.ID,
	}))
}

// doctorAssessment is an assessment with its patient populated.
type doctorAssessment struct {
	models.Assessment
	Patient *models.PatientRef `json:"patient"`
}

func (h *Handler) ListDoctorAssessments(c *gin.Context) {
	ctx := c.Request.Context()
	patients, err := h.Store.ListPatients(ctx, userID(c))
	if err != nil {
		h.dbError(c, "Failed to load patients", err)
		return
	}
	refs := make(map[string]models.PatientRef, len(patients))
	ids := make([]string, 0, len(patients))
	for i := range patients {
		refs[patients[i].ID] = patients[i].Ref()
		ids = append(ids, patients[i].ID)
	}
	assessments, err := h.Store.ListAssessmentsForPatients(ctx, ids)
	if err != nil {
		h.dbError(c, "Failed to load assessments", err)
		return
	}

	out := make([]doctorAssessment, 0, len(assessments))
	for _, a := range assessments {
		item := doctorAssessment{Assessment: a}
		if a.DoctorPatientID != nil {
			if ref, ok := refs[*a.DoctorPatientID]; ok {
				item.Patient = &ref
			}
		}
		out = append(out, item)
	}
	c.JSON(http.StatusOK, out)
}

func (h *Handler) DoctorStats(c *gin.Context) {
	ctx := c.Request.Context()
	ids, err := h.Store.ListPatientIDs(ctx, userID(c))
	if err != nil {
		h.dbError(c, "Failed to load patients", err)
		return
	}
	agg, err := h.Store.AssessmentStats(ctx, ids, h.now().Add(-statsWindow))
	if err != nil {
		h.dbError(c, "Failed to compute stats", err)
		return
	}
	c.JSON(http.StatusOK, buildDoctorStats(len(ids), agg))
}

func buildDoctorStats(totalPatients int, agg *models.AssessmentStats) models.DoctorStats {
	stats := models.DoctorStats{
		TotalPatients:     totalPatients,
		TotalAssessments:  agg.Total,
		RecentAssessments: agg.Recent,
		TriageBreakdown: models.TriageBreakdown{
			Red:    agg.TriageCounts[models.TriageRed],
			Yellow: agg.TriageCounts[models.TriageYellow],
			Green:  agg.TriageCounts[models.TriageGreen],
		},
		TopConditions: agg.TopConditions,
	}
	if agg.AvgUrgency != nil {
		avg := math.Round(*agg.AvgUrgency*10) / 10
		stats.AvgUrgencyScore = &avg
	}
	if stats.TopConditions == nil {
		stats.TopConditions = []models.ConditionCount{}
	}
	return stats
}
