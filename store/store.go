// Package store defines the persistence contract of the triage API. Every
// backend (MongoDB, PostgreSQL, memory) implements Store.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/adityajain-27/medical-ai-sub000/models"
)

var (
	ErrNotFound            = errors.New("store: not found")
	ErrDuplicate           = errors.New("store: duplicate key")
	ErrInsufficientCredits = errors.New("store: insufficient credits")
	ErrIntakeNotPending    = errors.New("store: intake request is not pending")
)

type Users interface {
	// CreateUser inserts u and fills in its ID and timestamps. A zero
	// Credits value is stored as models.DefaultCredits.
	CreateUser(ctx context.Context, u *models.User) error
	GetUserByID(ctx context.Context, id string) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	UpdateUser(ctx context.Context, id string, upd models.UserUpdate) (*models.User, error)

	// Credits returns the balance, initialising it to DefaultCredits when the
	// stored document has none.
	Credits(ctx context.Context, id string) (int, error)
	// DeductCredits atomically subtracts amount only when the balance covers
	// it and returns the new balance. ErrInsufficientCredits otherwise.
	DeductCredits(ctx context.Context, id string, amount int) (int, error)
	AddCredits(ctx context.Context, id string, amount int) (int, error)
}

type Assessments interface {
	CreateAssessment(ctx context.Context, a *models.Assessment) error
	GetAssessment(ctx context.Context, id string) (*models.Assessment, error)
	// ListUserAssessments returns summaries newest first.
	ListUserAssessments(ctx context.Context, userID string) ([]models.AssessmentSummary, error)
	ListPatientAssessments(ctx context.Context, patientID string) ([]models.Assessment, error)
	ListAssessmentsForPatients(ctx context.Context, patientIDs []string) ([]models.Assessment, error)
	// LatestAssessments maps each patient id that has at least one
	// assessment to its newest one.
	LatestAssessments(ctx context.Context, patientIDs []string) (map[string]models.Assessment, error)
	AssessmentStats(ctx context.Context, patientIDs []string, since time.Time) (*models.AssessmentStats, error)
}

// Patients scopes every doctor-facing operation by doctorID inside the
// query itself. A patient owned by another doctor is ErrNotFound.
type Patients interface {
	// CreatePatient fills in ID, PatientID, Status and timestamps.
	CreatePatient(ctx context.Context, p *models.DoctorPatient) error
	ListPatients(ctx context.Context, doctorID string) ([]models.DoctorPatient, error)
	GetPatient(ctx context.Context, doctorID, id string) (*models.DoctorPatient, error)
	GetPatientByID(ctx context.Context, id string) (*models.DoctorPatient, error)
	UpdatePatient(ctx context.Context, doctorID, id string, upd models.PatientUpdate) (*models.DoctorPatient, error)
	DeletePatient(ctx context.Context, doctorID, id string) error
	ListPatientIDs(ctx context.Context, doctorID string) ([]string, error)
	// RecordAnalysis increments totalAnalyses and stamps lastAnalysisAt.
	RecordAnalysis(ctx context.Context, id string, at time.Time) error
}

type Intakes interface {
	// CreateIntake fills in ID and timestamps. Token, Status and ExpiresAt
	// are set by the caller.
	CreateIntake(ctx context.Context, r *models.IntakeRequest) error
	GetIntakeByToken(ctx context.Context, token string) (*models.IntakeRequest, error)
	// CompleteIntake moves a pending request to completed.
	// ErrIntakeNotPending when it was already completed.
	CompleteIntake(ctx context.Context, token string) error
}

type Store interface {
	Users
	Assessments
	Patients
	Intakes

	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}

// TopConditionsLimit bounds the condition leaderboard on the doctor dashboard.
const TopConditionsLimit = 5
