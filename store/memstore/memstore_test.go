package memstore

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/adityajain-27/medical-ai-sub000/models"
	"github.com/adityajain-27/medical-ai-sub000/store"
)

func newUser(t *testing.T, s *Store, email string) *models.User {
	t.Helper()
	u := &models.User{Name: "Asha", Email: email, PasswordHash: "x", Role: models.RolePatient}
	if err := s.CreateUser(context.Background(), u); err != nil {
		t.Fatal(err)
	}
	return u
}

func TestCreateUserDefaults(t *testing.T) {
	s := New()
	u := newUser(t, s, "asha@example.com")
	if u.ID == "" || u.Credits != models.DefaultCredits {
		t.Fatalf("Unexpected user %+v", u)
	}
	if err := s.CreateUser(context.Background(), &models.User{Email: "asha@example.com"}); !errors.Is(err, store.ErrDuplicate) {
		t.Fatalf("Expected ErrDuplicate, got %v", err)
	}
}

func TestDeductCredits(t *testing.T) {
	ctx := context.Background()
	s := New()
	u := newUser(t, s, "asha@example.com")

	for _, want := range []int{350, 200, 50} {
		got, err := s.DeductCredits(ctx, u.ID, models.ReportCost)
		if err != nil {
			t.Fatal(err)
		}
		if got != want {
			t.Fatalf("Expected balance %d, got %d", want, got)
		}
	}
	got, err := s.DeductCredits(ctx, u.ID, models.ReportCost)
	if !errors.Is(err, store.ErrInsufficientCredits) {
		t.Fatalf("Expected ErrInsufficientCredits, got %v", err)
	}
	if got != 50 {
		t.Fatalf("Expected balance 50 to be reported, got %d", got)
	}
	if bal, _ := s.Credits(ctx, u.ID); bal != 50 {
		t.Fatalf("Failed debit changed the balance to %d", bal)
	}
	if _, err := s.DeductCredits(ctx, "missing", 1); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("Expected ErrNotFound, got %v", err)
	}
}

func TestDeductCreditsConcurrent(t *testing.T) {
	ctx := context.Background()
	s := New()
	u := newUser(t, s, "asha@example.com")

	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.DeductCredits(ctx, u.ID, models.ReportCost); err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if succeeded != 3 {
		t.Fatalf("Expected 3 successful debits, got %d", succeeded)
	}
	if bal, _ := s.Credits(ctx, u.ID); bal != 50 {
		t.Fatalf("Expected balance 50, got %d", bal)
	}
}

func TestPatientsScopedByDoctor(t *testing.T) {
	ctx := context.Background()
	s := New()
	p := &models.DoctorPatient{DoctorID: "doc-1", Name: "Ravi", Age: 40, Gender: "male"}
	if err := s.CreatePatient(ctx, p); err != nil {
		t.Fatal(err)
	}
	if p.Status != models.PatientStatusActive || p.PatientID == "" {
		t.Fatalf("Unexpected patient %+v", p)
	}
	if _, err := s.GetPatient(ctx, "doc-2", p.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("Expected ErrNotFound for another doctor, got %v", err)
	}
	name := "Ravi K"
	if _, err := s.UpdatePatient(ctx, "doc-2", p.ID, models.PatientUpdate{Name: &name}); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("Expected ErrNotFound for another doctor, got %v", err)
	}
	if err := s.DeletePatient(ctx, "doc-2", p.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("Expected ErrNotFound for another doctor, got %v", err)
	}
	if got, err := s.GetPatient(ctx, "doc-1", p.ID); err != nil || got.Name != "Ravi" {
		t.Fatalf("Expected patient untouched, got %+v, %v", got, err)
	}
}

func TestAssessmentOrderingAndStats(t *testing.T) {
	ctx := context.Background()
	s := New()
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := base
	s.SetClock(func() time.Time { return clock })

	pid := "patient-1"
	score := func(v float64) *float64 { return &v }
	add := func(color string, urgency *float64, conditions ...string) *models.Assessment {
		a := &models.Assessment{UserID: "doc-1", DoctorPatientID: &pid, Triage: models.Triage{Color: color, UrgencyScore: urgency}}
		for _, c := range conditions {
			a.Conditions = append(a.Conditions, models.Condition{Name: c})
		}
		if err := s.CreateAssessment(ctx, a); err != nil {
			t.Fatal(err)
		}
		return a
	}

	first := add(models.TriageGreen, score(2), "Cold")
	clock = base.Add(10 * 24 * time.Hour)
	second := add(models.TriageRed, score(9), "Flu", "Cold")
	third := add(models.TriageYellow, nil, "Flu")

	list, err := s.ListPatientAssessments(ctx, pid)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 3 || list[0].ID != third.ID || list[1].ID != second.ID || list[2].ID != first.ID {
		t.Fatalf("Expected newest first, got %v", list)
	}

	latest, err := s.LatestAssessments(ctx, []string{pid, "other"})
	if err != nil {
		t.Fatal(err)
	}
	if len(latest) != 1 || latest[pid].ID != third.ID {
		t.Fatalf("Unexpected latest %v", latest)
	}

	stats, err := s.AssessmentStats(ctx, []string{pid}, clock.Add(-7*24*time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if stats.Total != 3 || stats.Recent != 2 {
		t.Fatalf("Unexpected totals %+v", stats)
	}
	if stats.AvgUrgency == nil || *stats.AvgUrgency != 5.5 {
		t.Fatalf("Expected average urgency 5.5, got %v", stats.AvgUrgency)
	}
	if stats.TriageCounts[models.TriageRed] != 1 || stats.TriageCounts[models.TriageGreen] != 1 {
		t.Fatalf("Unexpected triage counts %v", stats.TriageCounts)
	}
	if len(stats.TopConditions) != 2 || stats.TopConditions[0].Name != "Cold" || stats.TopConditions[0].Count != 2 {
		t.Fatalf("Unexpected top conditions %v", stats.TopConditions)
	}
}

func TestCompleteIntakeOnce(t *testing.T) {
	ctx := context.Background()
	s := New()
	r := &models.IntakeRequest{Token: "tok", PatientID: "p", DoctorID: "d", ExpiresAt: time.Now().Add(time.Hour)}
	if err := s.CreateIntake(ctx, r); err != nil {
		t.Fatal(err)
	}
	if err := s.CompleteIntake(ctx, "tok"); err != nil {
		t.Fatal(err)
	}
	if err := s.CompleteIntake(ctx, "tok"); !errors.Is(err, store.ErrIntakeNotPending) {
		t.Fatalf("Expected ErrIntakeNotPending, got %v", err)
	}
	if err := s.CompleteIntake(ctx, "nope"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("Expected ErrNotFound, got %v", err)
	}
}
