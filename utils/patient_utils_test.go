package utils

import (
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/adityajain-27/medical-ai-sub000/models"
)

func TestGeneratePatientID(t *testing.T) {
	now := time.UnixMilli(1700000000000)
	id := GeneratePatientID(now)
	if !regexp.MustCompile(`^PT-[0-9A-Z]+-[0-9A-Z]{3}$`).MatchString(id) {
		t.Fatalf("Unexpected patient id %q", id)
	}
	if !strings.HasPrefix(id, "PT-LOYW3V28-") {
		t.Fatalf("Expected base36 millis prefix, got %q", id)
	}
}

func TestGenerateIntakeToken(t *testing.T) {
	a, err := GenerateIntakeToken()
	if err != nil {
		t.Fatal(err)
	}
	b, err := GenerateIntakeToken()
	if err != nil {
		t.Fatal(err)
	}
	if len(a) != 64 || !regexp.MustCompile(`^[0-9a-f]+$`).MatchString(a) {
		t.Fatalf("Unexpected token %q", a)
	}
	if a == b {
		t.Fatal("Expected distinct tokens")
	}
}

func TestComposeSymptoms(t *testing.T) {
	p := &models.DoctorPatient{Gender: "female", Age: 34}
	if got := ComposeSymptoms(p, "headache", ""); got != "Patient: female, Age 34. headache" {
		t.Fatalf("Unexpected context %q", got)
	}

	p.MedicalHistory = "migraine"
	p.Allergies = "penicillin"
	want := "Patient: female, Age 34. headache Symptom severity: 7/10. Medical history: migraine. Allergies: penicillin."
	if got := ComposeSymptoms(p, "headache", "7"); got != want {
		t.Fatalf("Expected %q, got %q", want, got)
	}
}

func TestMergeMedications(t *testing.T) {
	p := &models.DoctorPatient{CurrentMedications: []string{"metformin"}}
	got := MergeMedications([]string{"aspirin"}, p)
	if len(got) != 2 || got[0] != "aspirin" || got[1] != "metformin" {
		t.Fatalf("Unexpected medications %v", got)
	}
	if got := MergeMedications(nil, &models.DoctorPatient{}); got == nil || len(got) != 0 {
		t.Fatalf("Expected empty non-nil slice, got %#v", got)
	}
}
