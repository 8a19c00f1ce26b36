package utils

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/adityajain-27/medical-ai-sub000/models"
)

const base36 = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"

// GeneratePatientID builds a human-readable patient code of the form
// PT-<base36 millis>-<3 random base36 chars>.
func GeneratePatientID(now time.Time) string {
	ts := strings.ToUpper(strconv.FormatInt(now.UnixMilli(), 36))
	suffix := make([]byte, 3)
	for i := range suffix {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(base36))))
		if err != nil {
			// crypto/rand does not fail on supported platforms
			panic(err)
		}
		suffix[i] = base36[n.Int64()]
	}
	return fmt.Sprintf("PT-%s-%s", ts, suffix)
}

// GenerateIntakeToken returns 32 random bytes hex encoded.
func GenerateIntakeToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// ComposeSymptoms prefixes the raw symptom text with the patient's
// demographics and history so the AI service sees the full context.
// severity is omitted when empty.
func ComposeSymptoms(p *models.DoctorPatient, symptoms, severity string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Patient: %s, Age %d. %s", p.Gender, p.Age, symptoms)
	if severity != "" {
		fmt.Fprintf(&b, " Symptom severity: %s/10.", severity)
	}
	if p.MedicalHistory != "" {
		fmt.Fprintf(&b, " Medical history: %s.", p.MedicalHistory)
	}
	if p.Allergies != "" {
		fmt.Fprintf(&b, " Allergies: %s.", p.Allergies)
	}
	return b.String()
}

// MergeMedications appends the patient's current medications to the ones
// given with the request.
func MergeMedications(requested []string, p *models.DoctorPatient) []string {
	meds := make([]string, 0, len(requested)+len(p.CurrentMedications))
	meds = append(meds, requested...)
	meds = append(meds, p.CurrentMedications...)
	return meds
}
