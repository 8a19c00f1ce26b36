package aiclient

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/adityajain-27/medical-ai-sub000/models"
)

// ContractError means the AI service answered 2xx with a payload that does
// not match the assessment contract.
type ContractError struct {
	Reason string
}

func (e *ContractError) Error() string {
	return "aiclient: AI response violates contract: " + e.Reason
}

// Result is a validated assessment. Raw holds every top-level field the
// service sent so responses can echo fields this package does not model.
type Result struct {
	Triage           models.Triage
	SOAPNote         models.SOAPNote
	Conditions       []models.Condition
	DrugInteractions []models.DrugInteraction
	RedFlags         []string
	Raw              map[string]json.RawMessage
}

type resultWire struct {
	Triage           *triageWire       `json:"triage"`
	SOAPNote         *models.SOAPNote  `json:"soap_note"`
	Conditions       []conditionWire   `json:"conditions"`
	DrugInteractions []json.RawMessage `json:"drug_interactions"`
	RedFlags         []string          `json:"red_flags"`
}

type triageWire struct {
	Color        string     `json:"color"`
	Label        string     `json:"label"`
	UrgencyScore looseScore `json:"urgency_score"`
	Reason       string     `json:"reason"`
}

func (t *triageWire) model() models.Triage {
	return models.Triage{
		Color:        t.Color,
		Label:        t.Label,
		UrgencyScore: t.UrgencyScore.value,
		Reason:       t.Reason,
	}
}

type conditionWire struct {
	Name        looseString `json:"name"`
	Probability looseString `json:"probability"`
	ICDCode     looseString `json:"icd_code"`
}

// looseString takes a JSON string, number or boolean and keeps its text.
// The model writes probabilities as "high" as often as 0.82.
type looseString string

func (l *looseString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case len(b) == 0 || string(b) == "null":
		return nil
	case b[0] == '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*l = looseString(s)
		return nil
	case string(b) == "true" || string(b) == "false":
		*l = looseString(b)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("expected a string or number, got %s", b)
	}
	*l = looseString(n.String())
	return nil
}

// looseScore takes a JSON number or a numeric string. Null and "" leave it
// unset.
type looseScore struct {
	value *float64
}

func (l *looseScore) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		return nil
	}
	text := string(b)
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		text = strings.TrimSpace(s)
		if text == "" {
			return nil
		}
	}
	f, err := strconv.ParseFloat(text, 64)
	if err != nil || math.IsNaN(f) {
		return fmt.Errorf("urgency_score %s is not a number", b)
	}
	l.value = &f
	return nil
}

func parseResult(body []byte) (*Result, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, &ContractError{Reason: "response is not a JSON object"}
	}
	var wire resultWire
	if err := json.Unmarshal(body, &wire); err != nil {
		return nil, &ContractError{Reason: err.Error()}
	}
	res := &Result{
		Conditions: make([]models.Condition, 0, len(wire.Conditions)),
		RedFlags:   wire.RedFlags,
		Raw:        raw,
	}
	for _, c := range wire.Conditions {
		res.Conditions = append(res.Conditions, models.Condition{
			Name:        string(c.Name),
			Probability: string(c.Probability),
			ICDCode:     string(c.ICDCode),
		})
	}
	if res.RedFlags == nil {
		res.RedFlags = []string{}
	}
	if wire.Triage != nil {
		res.Triage = wire.Triage.model()
	}
	if wire.SOAPNote != nil {
		res.SOAPNote = *wire.SOAPNote
	}
	res.DrugInteractions = make([]models.DrugInteraction, 0, len(wire.DrugInteractions))
	for _, item := range wire.DrugInteractions {
		di, err := parseInteraction(item)
		if err != nil {
			return nil, err
		}
		res.DrugInteractions = append(res.DrugInteractions, di)
	}
	if wire.Triage == nil {
		return nil, &ContractError{Reason: "triage missing"}
	}
	if wire.SOAPNote == nil {
		return nil, &ContractError{Reason: "soap_note missing"}
	}
	if err := res.Validate(); err != nil {
		return nil, err
	}
	return res, nil
}

// parseInteraction accepts the structured form and the plain string some
// service versions emit.
func parseInteraction(item json.RawMessage) (models.DrugInteraction, error) {
	var di models.DrugInteraction
	if err := json.Unmarshal(item, &di); err == nil {
		return di, nil
	}
	var s string
	if err := json.Unmarshal(item, &s); err == nil {
		return models.DrugInteraction{Description: s}, nil
	}
	return di, &ContractError{Reason: "drug_interactions entry is neither an object nor a string"}
}

func (r *Result) Validate() error {
	switch r.Triage.Color {
	case models.TriageRed, models.TriageYellow, models.TriageGreen:
	default:
		return &ContractError{Reason: fmt.Sprintf("triage color %q", r.Triage.Color)}
	}
	if s := r.Triage.UrgencyScore; s != nil && (*s < 0 || *s > 10) {
		return &ContractError{Reason: fmt.Sprintf("urgency_score %v out of range", *s)}
	}
	return nil
}

// Assessment maps the result onto an unsaved Assessment.
func (r *Result) Assessment(userID string, doctorPatientID *string, symptoms string, medications []string, followup map[string]interface{}) *models.Assessment {
	if medications == nil {
		medications = []string{}
	}
	if followup == nil {
		followup = map[string]interface{}{}
	}
	return &models.Assessment{
		UserID:           userID,
		DoctorPatientID:  doctorPatientID,
		Symptoms:         symptoms,
		Medications:      medications,
		Triage:           r.Triage,
		FollowupAnswers:  followup,
		SOAPNote:         r.SOAPNote,
		Conditions:       r.Conditions,
		DrugInteractions: r.DrugInteractions,
		RedFlags:         r.RedFlags,
	}
}

// Response returns the service payload with extra fields merged in.
func (r *Result) Response(extra map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(r.Raw)+len(extra))
	for k, v := range r.Raw {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}
