package models

import (
	"time"
)

// Triage colours as returned by the AI service.
const (
	TriageRed    = "RED"
	TriageYellow = "YELLOW"
	TriageGreen  = "GREEN"
)

type Triage struct {
	Color        string   `json:"color" bson:"color"`
	Label        string   `json:"label" bson:"label"`
	UrgencyScore *float64 `json:"urgency_score" bson:"urgency_score"`
	Reason       string   `json:"reason" bson:"reason"`
}

type SOAPNote struct {
	Subjective string `json:"subjective" bson:"subjective"`
	Objective  string `json:"objective" bson:"objective"`
	Assessment string `json:"assessment" bson:"assessment"`
	Plan       string `json:"plan" bson:"plan"`
}

type Condition struct {
	Name        string `json:"name" bson:"name"`
	Probability string `json:"probability" bson:"probability"`
	ICDCode     string `json:"icd_code" bson:"icd_code"`
}

type DrugInteraction struct {
	Drug1       string `json:"drug1" bson:"drug1"`
	Drug2       string `json:"drug2" bson:"drug2"`
	Severity    string `json:"severity" bson:"severity"`
	Mechanism   string `json:"mechanism,omitempty" bson:"mechanism,omitempty"`
	Description string `json:"description" bson:"description"`
	Action      string `json:"action,omitempty" bson:"action,omitempty"`
}

// Assessment is one persisted AI analysis. It is never modified after insert.
type Assessment struct {
	ID               string                 `json:"_id"`
	UserID           string                 `json:"userId"`
	DoctorPatientID  *string                `json:"doctorPatientId"`
	Symptoms         string                 `json:"symptoms"`
	Medications      []string               `json:"medications"`
	Triage           Triage                 `json:"triage"`
	FollowupAnswers  map[string]interface{} `json:"followupAnswers"`
	SOAPNote         SOAPNote               `json:"soapNote"`
	Conditions       []Condition            `json:"conditions"`
	DrugInteractions []DrugInteraction      `json:"drugInteractions"`
	RedFlags         []string               `json:"redFlags"`
	CreatedAt        time.Time              `json:"createdAt"`
	UpdatedAt        time.Time              `json:"updatedAt"`
}

// AssessmentSummary is the history row shown on the patient dashboard.
type AssessmentSummary struct {
	ID        string    `json:"_id"`
	Symptoms  string    `json:"symptoms"`
	Triage    Triage    `json:"triage"`
	CreatedAt time.Time `json:"createdAt"`
}

func (a *Assessment) Summary() AssessmentSummary {
	return AssessmentSummary{
		ID:        a.ID,
		Symptoms:  a.Symptoms,
		Triage:    a.Triage,
		CreatedAt: a.CreatedAt,
	}
}

type ConditionCount struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// AssessmentStats is the raw aggregate a store computes over a set of
// doctor-managed patients.
type AssessmentStats struct {
	Total         int
	Recent        int
	TriageCounts  map[string]int
	AvgUrgency    *float64
	TopConditions []ConditionCount
}

type TriageBreakdown struct {
	Red    int `json:"RED"`
	Yellow int `json:"YELLOW"`
	Green  int `json:"GREEN"`
}

type DoctorStats struct {
	TotalPatients     int              `json:"totalPatients"`
	TotalAssessments  int              `json:"totalAssessments"`
	RecentAssessments int              `json:"recentAssessments"`
	AvgUrgencyScore   *float64         `json:"avgUrgencyScore"`
	TriageBreakdown   TriageBreakdown  `json:"triageBreakdown"`
	TopConditions     []ConditionCount `json:"topConditions"`
}
