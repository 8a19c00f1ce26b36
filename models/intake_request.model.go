package models

import (
	"time"
)

const (
	IntakePending   = "pending"
	IntakeCompleted = "completed"

	IntakeTTL = 7 * 24 * time.Hour
)

// IntakeRequest is a one-time link a doctor sends so a patient can submit
// symptoms without an account.
type IntakeRequest struct {
	ID        string    `json:"_id"`
	Token     string    `json:"token"`
	PatientID string    `json:"patientId"`
	DoctorID  string    `json:"doctorId"`
	Status    string    `json:"status"`
	ExpiresAt time.Time `json:"expiresAt"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (r *IntakeRequest) Completed() bool {
	return r.Status == IntakeCompleted
}

// Expired reports whether now is past the link's expiry.
func (r *IntakeRequest) Expired(now time.Time) bool {
	return now.After(r.ExpiresAt)
}
