package models

import (
	"time"
)

const (
	PatientStatusActive   = "active"
	PatientStatusInactive = "inactive"
)

// DoctorPatient is a patient record owned by a single doctor. It is not a
// User account.
type DoctorPatient struct {
	ID                 string     `json:"_id"`
	PatientID          string     `json:"patientId"`
	DoctorID           string     `json:"doctorId"`
	Name               string     `json:"name"`
	Age                int        `json:"age"`
	Gender             string     `json:"gender"`
	Email              string     `json:"email"`
	Phone              string     `json:"phone"`
	MedicalHistory     string     `json:"medicalHistory"`
	CurrentMedications []string   `json:"currentMedications"`
	Allergies          string     `json:"allergies"`
	BloodGroup         string     `json:"bloodGroup"`
	Status             string     `json:"status"`
	LastAnalysisAt     *time.Time `json:"lastAnalysisAt"`
	TotalAnalyses      int        `json:"totalAnalyses"`
	CreatedAt          time.Time  `json:"createdAt"`
	UpdatedAt          time.Time  `json:"updatedAt"`
}

// PatientUpdate is a partial update of the editable DoctorPatient fields.
type PatientUpdate struct {
	Name               *string   `json:"name" binding:"omitempty,max=100"`
	Age                *int      `json:"age" binding:"omitempty,min=0,max=150"`
	Gender             *string   `json:"gender" binding:"omitempty,oneof=male female other"`
	Email              *string   `json:"email"`
	Phone              *string   `json:"phone" binding:"omitempty,max=20"`
	MedicalHistory     *string   `json:"medicalHistory"`
	CurrentMedications *[]string `json:"currentMedications"`
	Allergies          *string   `json:"allergies"`
	BloodGroup         *string   `json:"bloodGroup" binding:"omitempty,max=10"`
	Status             *string   `json:"status" binding:"omitempty,oneof=active inactive"`
}

func (p PatientUpdate) Empty() bool {
	return p.Name == nil && p.Age == nil && p.Gender == nil && p.Email == nil &&
		p.Phone == nil && p.MedicalHistory == nil && p.CurrentMedications == nil &&
		p.Allergies == nil && p.BloodGroup == nil && p.Status == nil
}

// Apply copies the non-nil fields onto dp.
func (p PatientUpdate) Apply(dp *DoctorPatient) {
	if p.Name != nil {
		dp.Name = *p.Name
	}
	if p.Age != nil {
		dp.Age = *p.Age
	}
	if p.Gender != nil {
		dp.Gender = *p.Gender
	}
	if p.Email != nil {
		dp.Email = *p.Email
	}
	if p.Phone != nil {
		dp.Phone = *p.Phone
	}
	if p.MedicalHistory != nil {
		dp.MedicalHistory = *p.MedicalHistory
	}
	if p.CurrentMedications != nil {
		dp.CurrentMedications = *p.CurrentMedications
	}
	if p.Allergies != nil {
		dp.Allergies = *p.Allergies
	}
	if p.BloodGroup != nil {
		dp.BloodGroup = *p.BloodGroup
	}
	if p.Status != nil {
		dp.Status = *p.Status
	}
}

// PatientListItem is a patient with the triage of its newest assessment.
type PatientListItem struct {
	DoctorPatient
	LatestTriage *Triage    `json:"latestTriage"`
	LastVisit    *time.Time `json:"lastVisit"`
	LastSymptoms *string    `json:"lastSymptoms"`
}

// PatientRef is the subset of a patient embedded in doctor-wide assessment lists.
type PatientRef struct {
	ID        string `json:"_id"`
	Name      string `json:"name"`
	Age       int    `json:"age"`
	Gender    string `json:"gender"`
	PatientID string `json:"patientId"`
}

func (dp *DoctorPatient) Ref() PatientRef {
	return PatientRef{ID: dp.ID, Name: dp.Name, Age: dp.Age, Gender: dp.Gender, PatientID: dp.PatientID}
}
