// Package memstore is an in-memory store.Store used for local development
// (DB_DRIVER=memory) and tests.
package memstore

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/adityajain-27/medical-ai-sub000/models"
	"github.com/adityajain-27/medical-ai-sub000/store"
	"github.com/adityajain-27/medical-ai-sub000/utils"
)

type Store struct {
	mu          sync.Mutex
	now         func() time.Time
	users       map[string]*models.User
	assessments map[string]*models.Assessment
	patients    map[string]*models.DoctorPatient
	intakes     map[string]*models.IntakeRequest // keyed by token

	// insertion order keeps "newest first" stable when timestamps tie
	seq        int
	assessSeq  map[string]int
	patientSeq map[string]int
}

var _ store.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		now:         time.Now,
		users:       make(map[string]*models.User),
		assessments: make(map[string]*models.Assessment),
		patients:    make(map[string]*models.DoctorPatient),
		intakes:     make(map[string]*models.IntakeRequest),
		assessSeq:   make(map[string]int),
		patientSeq:  make(map[string]int),
	}
}

// SetClock overrides the time source used for generated timestamps.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func (s *Store) Ping(ctx context.Context) error  { return nil }
func (s *Store) Close(ctx context.Context) error { return nil }

func newID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:24]
}

func (s *Store) nextSeq() int {
	s.seq++
	return s.seq
}

// Users

func (s *Store) CreateUser(ctx context.Context, u *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.users {
		if existing.Email == u.Email {
			return store.ErrDuplicate
		}
	}
	now := s.now()
	u.ID = newID()
	if u.Credits == 0 {
		u.Credits = models.DefaultCredits
	}
	if u.Role == "" {
		u.Role = models.RolePatient
	}
	u.CreatedAt, u.UpdatedAt = now, now
	cp := *u
	s.users[u.ID] = &cp
	return nil
}

func (s *Store) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) UpdateUser(ctx context.Context, id string, upd models.UserUpdate) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if upd.Name != nil {
		u.Name = *upd.Name
	}
	if upd.Position != nil {
		u.Position = *upd.Position
	}
	if upd.Qualification != nil {
		u.Qualification = *upd.Qualification
	}
	if upd.PasswordHash != nil {
		u.PasswordHash = *upd.PasswordHash
	}
	u.UpdatedAt = s.now()
	cp := *u
	return &cp, nil
}

func (s *Store) Credits(ctx context.Context, id string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return 0, store.ErrNotFound
	}
	return u.Credits, nil
}

func (s *Store) DeductCredits(ctx context.Context, id string, amount int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return 0, store.ErrNotFound
	}
	if u.Credits < amount {
		return u.Credits, store.ErrInsufficientCredits
	}
	u.Credits -= amount
	return u.Credits, nil
}

func (s *Store) AddCredits(ctx context.Context, id string, amount int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return 0, store.ErrNotFound
	}
	u.Credits += amount
	return u.Credits, nil
}

// Assessments

func cloneAssessment(a *models.Assessment) models.Assessment {
	cp := *a
	cp.Medications = append([]string{}, a.Medications...)
	cp.Conditions = append([]models.Condition{}, a.Conditions...)
	cp.DrugInteractions = append([]models.DrugInteraction{}, a.DrugInteractions...)
	cp.RedFlags = append([]string{}, a.RedFlags...)
	if a.DoctorPatientID != nil {
		id := *a.DoctorPatientID
		cp.DoctorPatientID = &id
	}
	return cp
}

func (s *Store) CreateAssessment(ctx context.Context, a *models.Assessment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	a.ID = newID()
	a.CreatedAt, a.UpdatedAt = now, now
	cp := cloneAssessment(a)
	s.assessments[a.ID] = &cp
	s.assessSeq[a.ID] = s.nextSeq()
	return nil
}

func (s *Store) GetAssessment(ctx context.Context, id string) (*models.Assessment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.assessments[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := cloneAssessment(a)
	return &cp, nil
}

// sortedAssessments returns the assessments matching keep, newest first.
// Callers must hold s.mu.
func (s *Store) sortedAssessments(keep func(*models.Assessment) bool) []models.Assessment {
	var out []models.Assessment
	for _, a := range s.assessments {
		if keep(a) {
			out = append(out, cloneAssessment(a))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return s.assessSeq[out[i].ID] > s.assessSeq[out[j].ID]
	})
	return out
}

func idSet(ids []string) map[string]bool {
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}

func (s *Store) ListUserAssessments(ctx context.Context, userID string) ([]models.AssessmentSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.sortedAssessments(func(a *models.Assessment) bool { return a.UserID == userID })
	out := make([]models.AssessmentSummary, 0, len(list))
	for i := range list {
		out = append(out, list[i].Summary())
	}
	return out, nil
}

func (s *Store) ListPatientAssessments(ctx context.Context, patientID string) ([]models.Assessment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.sortedAssessments(func(a *models.Assessment) bool {
		return a.DoctorPatientID != nil && *a.DoctorPatientID == patientID
	})
	if out == nil {
		out = []models.Assessment{}
	}
	return out, nil
}

func (s *Store) ListAssessmentsForPatients(ctx context.Context, patientIDs []string) ([]models.Assessment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	set := idSet(patientIDs)
	out := s.sortedAssessments(func(a *models.Assessment) bool {
		return a.DoctorPatientID != nil && set[*a.DoctorPatientID]
	})
	if out == nil {
		out = []models.Assessment{}
	}
	return out, nil
}

func (s *Store) LatestAssessments(ctx context.Context, patientIDs []string) (map[string]models.Assessment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	set := idSet(patientIDs)
	latest := make(map[string]models.Assessment)
	for _, a := range s.sortedAssessments(func(a *models.Assessment) bool {
		return a.DoctorPatientID != nil && set[*a.DoctorPatientID]
	}) {
		pid := *a.DoctorPatientID
		if _, seen := latest[pid]; !seen {
			latest[pid] = a
		}
	}
	return latest, nil
}

func (s *Store) AssessmentStats(ctx context.Context, patientIDs []string, since time.Time) (*models.AssessmentStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	set := idSet(patientIDs)
	stats := &models.AssessmentStats{TriageCounts: make(map[string]int)}
	conditions := make(map[string]int)
	var urgencySum float64
	var urgencyN int
	for _, a := range s.assessments {
		if a.DoctorPatientID == nil || !set[*a.DoctorPatientID] {
			continue
		}
		stats.Total++
		if !a.CreatedAt.Before(since) {
			stats.Recent++
		}
		stats.TriageCounts[a.Triage.Color]++
		if a.Triage.UrgencyScore != nil {
			urgencySum += *a.Triage.UrgencyScore
			urgencyN++
		}
		for _, c := range a.Conditions {
			conditions[c.Name]++
		}
	}
	if urgencyN > 0 {
		avg := urgencySum / float64(urgencyN)
		stats.AvgUrgency = &avg
	}
	for name, n := range conditions {
		stats.TopConditions = append(stats.TopConditions, models.ConditionCount{Name: name, Count: n})
	}
	sort.Slice(stats.TopConditions, func(i, j int) bool {
		if stats.TopConditions[i].Count != stats.TopConditions[j].Count {
			return stats.TopConditions[i].Count > stats.TopConditions[j].Count
		}
		return stats.TopConditions[i].Name < stats.TopConditions[j].Name
	})
	if len(stats.TopConditions) > store.TopConditionsLimit {
		stats.TopConditions = stats.TopConditions[:store.TopConditionsLimit]
	}
	return stats, nil
}

// Patients

func clonePatient(p *models.DoctorPatient) models.DoctorPatient {
	cp := *p
	cp.CurrentMedications = append([]string{}, p.CurrentMedications...)
	if p.LastAnalysisAt != nil {
		t := *p.LastAnalysisAt
		cp.LastAnalysisAt = &t
	}
	return cp
}

func (s *Store) CreatePatient(ctx context.Context, p *models.DoctorPatient) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	p.ID = newID()
	p.PatientID = s.uniquePatientID(now)
	if p.Status == "" {
		p.Status = models.PatientStatusActive
	}
	p.CreatedAt, p.UpdatedAt = now, now
	cp := clonePatient(p)
	s.patients[p.ID] = &cp
	s.patientSeq[p.ID] = s.nextSeq()
	return nil
}

// uniquePatientID draws codes until one is unused. Callers must hold s.mu.
func (s *Store) uniquePatientID(now time.Time) string {
	for {
		id := utils.GeneratePatientID(now)
		taken := false
		for _, existing := range s.patients {
			if existing.PatientID == id {
				taken = true
				break
			}
		}
		if !taken {
			return id
		}
	}
}

func (s *Store) ListPatients(ctx context.Context, doctorID string) ([]models.DoctorPatient, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []models.DoctorPatient{}
	for _, p := range s.patients {
		if p.DoctorID == doctorID {
			out = append(out, clonePatient(p))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return s.patientSeq[out[i].ID] > s.patientSeq[out[j].ID]
	})
	return out, nil
}

func (s *Store) GetPatient(ctx context.Context, doctorID, id string) (*models.DoctorPatient, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.patients[id]
	if !ok || p.DoctorID != doctorID {
		return nil, store.ErrNotFound
	}
	cp := clonePatient(p)
	return &cp, nil
}

func (s *Store) GetPatientByID(ctx context.Context, id string) (*models.DoctorPatient, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.patients[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := clonePatient(p)
	return &cp, nil
}

func (s *Store) UpdatePatient(ctx context.Context, doctorID, id string, upd models.PatientUpdate) (*models.DoctorPatient, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.patients[id]
	if !ok || p.DoctorID != doctorID {
		return nil, store.ErrNotFound
	}
	upd.Apply(p)
	p.UpdatedAt = s.now()
	cp := clonePatient(p)
	return &cp, nil
}

func (s *Store) DeletePatient(ctx context.Context, doctorID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.patients[id]
	if !ok || p.DoctorID != doctorID {
		return store.ErrNotFound
	}
	delete(s.patients, id)
	delete(s.patientSeq, id)
	return nil
}

func (s *Store) ListPatientIDs(ctx context.Context, doctorID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := []string{}
	for id, p := range s.patients {
		if p.DoctorID == doctorID {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *Store) RecordAnalysis(ctx context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.patients[id]
	if !ok {
		return store.ErrNotFound
	}
	p.TotalAnalyses++
	t := at
	p.LastAnalysisAt = &t
	p.UpdatedAt = s.now()
	return nil
}

// Intakes

func (s *Store) CreateIntake(ctx context.Context, r *models.IntakeRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.intakes[r.Token]; exists {
		return store.ErrDuplicate
	}
	now := s.now()
	r.ID = newID()
	if r.Status == "" {
		r.Status = models.IntakePending
	}
	r.CreatedAt, r.UpdatedAt = now, now
	cp := *r
	s.intakes[r.Token] = &cp
	return nil
}

func (s *Store) GetIntakeByToken(ctx context.Context, token string) (*models.IntakeRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.intakes[token]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (s *Store) CompleteIntake(ctx context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.intakes[token]
	if !ok {
		return store.ErrNotFound
	}
	if r.Status != models.IntakePending {
		return store.ErrIntakeNotPending
	}
	r.Status = models.IntakeCompleted
	r.UpdatedAt = s.now()
	return nil
}
