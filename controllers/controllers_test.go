package controllers_test

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/adityajain-27/medical-ai-sub000/aiclient"
	"github.com/adityajain-27/medical-ai-sub000/config"
	"github.com/adityajain-27/medical-ai-sub000/controllers"
	"github.com/adityajain-27/medical-ai-sub000/mailer"
	"github.com/adityajain-27/medical-ai-sub000/routes"
	"github.com/adityajain-27/medical-ai-sub000/security"
	"github.com/adityajain-27/medical-ai-sub000/store"
	"github.com/adityajain-27/medical-ai-sub000/store/memstore"
)

const aiResult = `{
	"triage": {"color": "RED", "label": "Emergency", "urgency_score": 8.46, "reason": "chest pain"},
	"soap_note": {"subjective": "s", "objective": "o", "assessment": "a", "plan": "p"},
	"conditions": [{"name": "Angina", "probability": "high", "icd_code": "I20"}],
	"drug_interactions": [],
	"red_flags": ["radiating pain"],
	"disclaimer": "not a diagnosis"
}`

type fakeAI struct {
	mu       sync.Mutex
	status   int
	calls    map[string]int
	symptoms []string
	meds     [][]string
	images   [][]byte
}

func (f *fakeAI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[r.URL.Path]++
	if f.status != 0 {
		w.WriteHeader(f.status)
		io.WriteString(w, `{"detail": "model overloaded"}`)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	switch r.URL.Path {
	case "/assess":
		var req aiclient.AssessRequest
		json.NewDecoder(r.Body).Decode(&req)
		f.symptoms = append(f.symptoms, req.Symptoms)
		f.meds = append(f.meds, req.Medications)
		io.WriteString(w, aiResult)
	case "/assess/image":
		f.symptoms = append(f.symptoms, r.FormValue("symptoms"))
		file, _, err := r.FormFile("image")
		if err == nil {
			b, _ := io.ReadAll(file)
			f.images = append(f.images, b)
		}
		io.WriteString(w, aiResult)
	case "/followup":
		io.WriteString(w, `{"questions": ["How long?"]}`)
	case "/chat":
		io.WriteString(w, `{"reply": "Rest and hydrate."}`)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (f *fakeAI) setStatus(status int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status = status
}

func (f *fakeAI) count(path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[path]
}

type recordingMailer struct {
	mu   sync.Mutex
	err  error
	sent []mailer.Message
}

func (m *recordingMailer) Send(ctx context.Context, msg mailer.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, msg)
	return nil
}

type testEnv struct {
	t      *testing.T
	router *gin.Engine
	store  *memstore.Store
	ai     *fakeAI
	mail   *recordingMailer
	logs   *observer.ObservedLogs
	now    time.Time
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return newTestEnvWithStore(t, func(s *memstore.Store) store.Store { return s })
}

// newTestEnvWithStore lets a test wrap the memory store the handlers see.
func newTestEnvWithStore(t *testing.T, wrap func(*memstore.Store) store.Store) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	core, logs := observer.New(zap.InfoLevel)
	env := &testEnv{
		t:     t,
		store: memstore.New(),
		ai:    &fakeAI{calls: make(map[string]int)},
		mail:  &recordingMailer{},
		logs:  logs,
		now:   time.Now(),
	}
	aiSrv := httptest.NewServer(env.ai)
	t.Cleanup(aiSrv.Close)

	issuer, err := security.NewTokenIssuer("test-secret", time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	cfg := &config.Config{AppURL: "http://app.test"}
	h := controllers.NewHandler(wrap(env.store), aiclient.New(aiSrv.URL, nil), env.mail, issuer, cfg, zap.New(core))
	h.Now = func() time.Time { return env.now }

	env.router = gin.New()
	routes.Register(env.router, h, issuer, nil)
	return env
}

func (e *testEnv) do(method, path, token string, body interface{}) (*httptest.ResponseRecorder, map[string]interface{}) {
	e.t.Helper()
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			e.t.Fatal(err)
		}
		reader = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)

	var out map[string]interface{}
	if strings.HasPrefix(strings.TrimSpace(rec.Body.String()), "{") {
		if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
			e.t.Fatalf("Decode %s %s: %s", method, path, err)
		}
	}
	return rec, out
}

func (e *testEnv) expect(rec *httptest.ResponseRecorder, status int) {
	e.t.Helper()
	if rec.Code != status {
		e.t.Fatalf("Expected %d, got %d: %s", status, rec.Code, rec.Body.String())
	}
}

// signup creates an account and returns its token and id.
func (e *testEnv) signup(email, role string) (string, string) {
	e.t.Helper()
	rec, body := e.do("POST", "/api/auth/signup", "", gin.H{
		"name": "User " + email, "email": email, "password": "secret1", "role": role,
	})
	e.expect(rec, http.StatusCreated)
	return body["token"].(string), body["userId"].(string)
}

func (e *testEnv) credits(token string) int {
	e.t.Helper()
	rec, body := e.do("GET", "/api/credits", token, nil)
	e.expect(rec, http.StatusOK)
	return int(body["credits"].(float64))
}

func (e *testEnv) createPatient(token string, fields gin.H) map[string]interface{} {
	e.t.Helper()
	rec, body := e.do("POST", "/api/doctor/patients", token, fields)
	e.expect(rec, http.StatusCreated)
	return body
}

func TestAuthFlow(t *testing.T) {
	env := newTestEnv(t)

	rec, body := env.do("POST", "/api/auth/signup", "", gin.H{"name": "Asha", "email": "asha@example.com", "password": "secret1"})
	env.expect(rec, http.StatusCreated)
	user := body["user"].(map[string]interface{})
	if user["role"] != "patient" {
		t.Fatalf("Expected default role patient, got %v", user["role"])
	}
	if _, ok := user["credits"]; ok {
		t.Fatal("Signup response must not carry credits")
	}

	rec, body = env.do("POST", "/api/auth/signup", "", gin.H{"name": "Asha", "email": "asha@example.com", "password": "secret1"})
	env.expect(rec, http.StatusBadRequest)
	if body["message"] != "User already exists" {
		t.Fatalf("Unexpected message %v", body["message"])
	}

	rec, _ = env.do("POST", "/api/auth/signup", "", gin.H{"name": "B", "email": "b@example.com", "password": "123"})
	env.expect(rec, http.StatusBadRequest)

	rec, body = env.do("POST", "/api/auth/login", "", gin.H{"email": "nobody@example.com", "password": "secret1"})
	env.expect(rec, http.StatusBadRequest)
	if body["message"] != "User does not exist" {
		t.Fatalf("Unexpected message %v", body["message"])
	}
	rec, body = env.do("POST", "/api/auth/login", "", gin.H{"email": "asha@example.com", "password": "wrong12"})
	env.expect(rec, http.StatusBadRequest)
	if body["message"] != "Invalid password" {
		t.Fatalf("Unexpected message %v", body["message"])
	}

	rec, body = env.do("POST", "/api/auth/login", "", gin.H{"email": "asha@example.com", "password": "secret1"})
	env.expect(rec, http.StatusOK)
	token := body["token"].(string)

	rec, body = env.do("GET", "/api/auth/me", token, nil)
	env.expect(rec, http.StatusOK)
	if body["credits"].(float64) != 500 {
		t.Fatalf("Expected 500 credits, got %v", body["credits"])
	}
	if strings.Contains(rec.Body.String(), "secret1") || strings.Contains(rec.Body.String(), "$2a$") {
		t.Fatal("Profile leaked password material")
	}

	rec, body = env.do("PUT", "/api/auth/me", token, gin.H{"name": "Asha R", "position": "Nurse"})
	env.expect(rec, http.StatusOK)
	if body["name"] != "Asha R" || body["position"] != "Nurse" {
		t.Fatalf("Unexpected profile %v", body)
	}
	rec, _ = env.do("PUT", "/api/auth/me", token, gin.H{"name": "  "})
	env.expect(rec, http.StatusBadRequest)
	rec, _ = env.do("PUT", "/api/auth/me", token, gin.H{})
	env.expect(rec, http.StatusBadRequest)

	rec, _ = env.do("GET", "/api/auth/me", "", nil)
	env.expect(rec, http.StatusUnauthorized)
}

func TestRequestValidation(t *testing.T) {
	env := newTestEnv(t)
	patient, _ := env.signup("asha@example.com", "patient")
	doctor, _ := env.signup("dr.rao@example.com", "doctor")
	pid := env.createPatient(doctor, gin.H{"name": "Ravi", "age": 40, "gender": "male"})["_id"].(string)

	cases := []struct {
		name    string
		method  string
		path    string
		token   string
		body    gin.H
		message string
		field   string
		rule    string
	}{
		{"signup missing name", "POST", "/api/auth/signup", "", gin.H{"email": "b@example.com", "password": "secret1"},
			"Name, email and password are required", "Name", "required"},
		{"signup short password", "POST", "/api/auth/signup", "", gin.H{"name": "B", "email": "b@example.com", "password": "123"},
			"Password must be at least 6 characters", "Password", "min"},
		{"signup bad email", "POST", "/api/auth/signup", "", gin.H{"name": "B", "email": "not-an-email", "password": "secret1"},
			"Email address is not valid", "Email", "email"},
		{"signup bad role", "POST", "/api/auth/signup", "", gin.H{"name": "B", "email": "b@example.com", "password": "secret1", "role": "admin"},
			"Role must be patient or doctor", "Role", "oneof"},
		{"login empty", "POST", "/api/auth/login", "", gin.H{},
			"Email and password are required", "Email", "required"},
		{"profile short password", "PUT", "/api/auth/me", patient, gin.H{"password": "abc"},
			"Password must be at least 6 characters", "Password", "min"},
		{"buy without package", "POST", "/api/credits/buy", patient, gin.H{},
			"Invalid package", "PackageID", "required"},
		{"assess without symptoms", "POST", "/api/assess", patient, gin.H{"medications": []string{"aspirin"}},
			"Symptoms are required", "Symptoms", "required"},
		{"chat without message", "POST", "/api/assess/chat", patient, gin.H{},
			"Message is required", "Message", "required"},
		{"patient negative age", "POST", "/api/doctor/patients", doctor, gin.H{"name": "Ravi", "age": -1, "gender": "male"},
			"Age must be between 0 and 150", "Age", "min"},
		{"patient age over limit", "POST", "/api/doctor/patients", doctor, gin.H{"name": "Ravi", "age": "151", "gender": "male"},
			"Age must be between 0 and 150", "Age", "max"},
		{"patient bad gender", "POST", "/api/doctor/patients", doctor, gin.H{"name": "Ravi", "age": 40, "gender": "robot"},
			"Gender must be male, female or other", "Gender", "oneof"},
		{"update bad status", "PUT", "/api/doctor/patients/" + pid, doctor, gin.H{"status": "archived"},
			"Status must be active or inactive", "Status", "oneof"},
		{"update bad age", "PUT", "/api/doctor/patients/" + pid, doctor, gin.H{"age": 200},
			"Age must be between 0 and 150", "Age", "max"},
		{"analyze image without image", "POST", "/api/doctor/patients/" + pid + "/analyze/image", doctor, gin.H{"symptoms": "rash"},
			"Image is required", "ImageBase64", "required"},
		{"intake without patient", "POST", "/api/intake/send", doctor, gin.H{},
			"patientId is required", "PatientID", "required"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec, body := env.do(tc.method, tc.path, tc.token, tc.body)
			env.expect(rec, http.StatusBadRequest)
			if body["code"] != security.CodeValidationError || body["message"] != tc.message {
				t.Fatalf("Unexpected error %v", body)
			}
			details, ok := body["details"].([]interface{})
			if !ok || len(details) == 0 {
				t.Fatalf("Expected field details, got %v", body["details"])
			}
			first := details[0].(map[string]interface{})
			if first["field"] != tc.field || first["rule"] != tc.rule {
				t.Fatalf("Expected %s/%s, got %v", tc.field, tc.rule, first)
			}
		})
	}
}

func TestCreditLedger(t *testing.T) {
	env := newTestEnv(t)
	token, _ := env.signup("asha@example.com", "patient")

	rec, body := env.do("GET", "/api/credits", token, nil)
	env.expect(rec, http.StatusOK)
	if len(body["packages"].([]interface{})) != 3 {
		t.Fatalf("Expected 3 packages, got %v", body["packages"])
	}

	rec, body = env.do("POST", "/api/credits/deduct", token, nil)
	env.expect(rec, http.StatusOK)
	if body["credits"].(float64) != 350 || body["deducted"].(float64) != 150 {
		t.Fatalf("Unexpected deduct reply %v", body)
	}

	rec, body = env.do("POST", "/api/credits/buy", token, gin.H{"packageId": "standard"})
	env.expect(rec, http.StatusOK)
	if body["credits"].(float64) != 1100 || body["added"].(float64) != 750 {
		t.Fatalf("Unexpected buy reply %v", body)
	}

	rec, body = env.do("POST", "/api/credits/buy", token, gin.H{"packageId": "gold"})
	env.expect(rec, http.StatusBadRequest)
	if body["message"] != "Invalid package" {
		t.Fatalf("Unexpected message %v", body["message"])
	}
	if got := env.credits(token); got != 1100 {
		t.Fatalf("Invalid package changed balance to %d", got)
	}

	for i := 0; i < 7; i++ {
		rec, _ = env.do("POST", "/api/credits", token, nil)
		env.expect(rec, http.StatusOK)
	}
	rec, body = env.do("POST", "/api/credits/deduct", token, nil)
	env.expect(rec, http.StatusPaymentRequired)
	if body["credits"].(float64) != 50 || body["required"].(float64) != 150 {
		t.Fatalf("Unexpected 402 body %v", body)
	}
}

func TestAssessChargesAndRefunds(t *testing.T) {
	env := newTestEnv(t)
	token, userID := env.signup("asha@example.com", "patient")

	rec, _ := env.do("POST", "/api/assess", token, gin.H{"symptoms": "  "})
	env.expect(rec, http.StatusBadRequest)
	if env.credits(token) != 500 {
		t.Fatal("Validation failure must not charge")
	}

	rec, body := env.do("POST", "/api/assess", token, gin.H{"symptoms": "chest pain", "medications": []string{"aspirin"}})
	env.expect(rec, http.StatusOK)
	if body["creditsRemaining"].(float64) != 350 {
		t.Fatalf("Expected 350 credits remaining, got %v", body["creditsRemaining"])
	}
	if body["disclaimer"] != "not a diagnosis" {
		t.Fatal("Expected AI payload to be echoed")
	}
	assessmentID := body["assessmentId"].(string)

	env.ai.setStatus(http.StatusServiceUnavailable)
	rec, body = env.do("POST", "/api/assess", token, gin.H{"symptoms": "chest pain"})
	env.expect(rec, http.StatusBadGateway)
	if details, _ := body["details"].(map[string]interface{}); details["detail"] != "model overloaded" {
		t.Fatalf("Expected upstream detail, got %v", body)
	}
	if got := env.credits(token); got != 350 {
		t.Fatalf("Expected refund to 350, got %d", got)
	}
	env.ai.setStatus(0)

	for i := 0; i < 2; i++ {
		rec, _ = env.do("POST", "/api/assess", token, gin.H{"symptoms": "cough"})
		env.expect(rec, http.StatusOK)
	}
	calls := env.ai.count("/assess")
	rec, body = env.do("POST", "/api/assess", token, gin.H{"symptoms": "cough"})
	env.expect(rec, http.StatusPaymentRequired)
	if body["credits"].(float64) != 50 {
		t.Fatalf("Unexpected 402 body %v", body)
	}
	if env.ai.count("/assess") != calls {
		t.Fatal("AI service called without credits")
	}

	rec, _ = env.do("GET", "/api/assess/history", token, nil)
	env.expect(rec, http.StatusOK)
	var history []map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &history); err != nil {
		t.Fatal(err)
	}
	if len(history) != 3 {
		t.Fatalf("Expected 3 history rows, got %d", len(history))
	}

	rec, body = env.do("GET", "/api/assess/"+assessmentID, token, nil)
	env.expect(rec, http.StatusOK)
	if body["userId"] != userID || body["symptoms"] != "chest pain" {
		t.Fatalf("Unexpected assessment %v", body)
	}

	other, _ := env.signup("ravi@example.com", "patient")
	rec, _ = env.do("GET", "/api/assess/"+assessmentID, other, nil)
	env.expect(rec, http.StatusNotFound)
	rec, _ = env.do("GET", "/api/assess/not-an-id", token, nil)
	env.expect(rec, http.StatusNotFound)
}

func TestAssessContractViolationRefunds(t *testing.T) {
	env := newTestEnv(t)
	token, _ := env.signup("asha@example.com", "patient")

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"triage": {"color": "PURPLE"}, "soap_note": {}}`)
	}))
	defer srv.Close()
	issuer, _ := security.NewTokenIssuer("test-secret", time.Hour)
	h := controllers.NewHandler(env.store, aiclient.New(srv.URL, nil), env.mail, issuer, &config.Config{}, zap.NewNop())
	env.router = gin.New()
	routes.Register(env.router, h, issuer, nil)

	rec, body := env.do("POST", "/api/assess", token, gin.H{"symptoms": "cough"})
	env.expect(rec, http.StatusBadGateway)
	if body["code"] != security.CodeAIContractViolation {
		t.Fatalf("Expected contract violation, got %v", body["code"])
	}
	if got := env.credits(token); got != 500 {
		t.Fatalf("Expected full refund, got %d", got)
	}
}

func TestFollowupAndChat(t *testing.T) {
	env := newTestEnv(t)
	token, _ := env.signup("asha@example.com", "patient")

	rec, body := env.do("POST", "/api/assess/followup", token, gin.H{"symptoms": "fever"})
	env.expect(rec, http.StatusOK)
	if len(body["questions"].([]interface{})) != 1 {
		t.Fatalf("Unexpected followup %v", body)
	}
	rec, body = env.do("POST", "/api/assess/chat", token, gin.H{"message": "What now?"})
	env.expect(rec, http.StatusOK)
	if body["reply"] != "Rest and hydrate." {
		t.Fatalf("Unexpected chat %v", body)
	}
	if env.credits(token) != 500 {
		t.Fatal("Followup and chat must not charge")
	}
}

func TestDoctorPatients(t *testing.T) {
	env := newTestEnv(t)
	doctor, doctorID := env.signup("dr.rao@example.com", "doctor")
	otherDoctor, _ := env.signup("dr.iyer@example.com", "doctor")
	patientToken, _ := env.signup("asha@example.com", "patient")

	rec, _ := env.do("GET", "/api/doctor/patients", patientToken, nil)
	env.expect(rec, http.StatusForbidden)

	rec, body := env.do("POST", "/api/doctor/patients", doctor, gin.H{"name": "Ravi"})
	env.expect(rec, http.StatusBadRequest)
	if body["message"] != "Name, age and gender are required" {
		t.Fatalf("Unexpected message %v", body["message"])
	}
	rec, _ = env.do("POST", "/api/doctor/patients", doctor, gin.H{"name": "Ravi", "age": 200, "gender": "male"})
	env.expect(rec, http.StatusBadRequest)
	rec, _ = env.do("POST", "/api/doctor/patients", doctor, gin.H{"name": "Ravi", "age": 40, "gender": "robot"})
	env.expect(rec, http.StatusBadRequest)

	patient := env.createPatient(doctor, gin.H{
		"name": "Ravi", "age": "40", "gender": "male",
		"medicalHistory": "hypertension", "currentMedications": []string{"amlodipine"},
	})
	pid := patient["_id"].(string)
	if patient["doctorId"] != doctorID || patient["status"] != "active" {
		t.Fatalf("Unexpected patient %v", patient)
	}
	if !strings.HasPrefix(patient["patientId"].(string), "PT-") {
		t.Fatalf("Unexpected patient code %v", patient["patientId"])
	}

	for _, path := range []string{"/api/doctor/patients/" + pid, "/api/doctor/patients/" + pid + "/assessments"} {
		rec, _ = env.do("GET", path, otherDoctor, nil)
		env.expect(rec, http.StatusNotFound)
	}
	rec, _ = env.do("PUT", "/api/doctor/patients/"+pid, otherDoctor, gin.H{"name": "Hijacked"})
	env.expect(rec, http.StatusNotFound)
	rec, _ = env.do("DELETE", "/api/doctor/patients/"+pid, otherDoctor, nil)
	env.expect(rec, http.StatusNotFound)
	rec, _ = env.do("POST", "/api/doctor/patients/"+pid+"/analyze", otherDoctor, gin.H{"symptoms": "x"})
	env.expect(rec, http.StatusNotFound)

	rec, body = env.do("PUT", "/api/doctor/patients/"+pid, doctor, gin.H{"phone": "555-0100", "doctorId": "someone-else"})
	env.expect(rec, http.StatusOK)
	if body["phone"] != "555-0100" || body["doctorId"] != doctorID {
		t.Fatalf("Unexpected update %v", body)
	}
	rec, _ = env.do("PUT", "/api/doctor/patients/"+pid, doctor, gin.H{"status": "archived"})
	env.expect(rec, http.StatusBadRequest)

	rec, body = env.do("POST", "/api/doctor/patients/"+pid+"/analyze", doctor, gin.H{
		"symptoms": "chest pain", "medications": []string{"aspirin"}, "severity": 7,
	})
	env.expect(rec, http.StatusOK)
	if body["assessmentId"] == nil {
		t.Fatal("Expected assessmentId")
	}
	want := "Patient: male, Age 40. chest pain Symptom severity: 7/10. Medical history: hypertension."
	if got := env.ai.symptoms[len(env.ai.symptoms)-1]; got != want {
		t.Fatalf("Expected context %q, got %q", want, got)
	}
	if meds := env.ai.meds[len(env.ai.meds)-1]; len(meds) != 2 || meds[1] != "amlodipine" {
		t.Fatalf("Expected merged medications, got %v", meds)
	}
	if env.credits(doctor) != 500 {
		t.Fatal("Doctor analyses must not charge")
	}

	image := []byte{0xFF, 0xD8, 0xFF, 0xE0}
	rec, _ = env.do("POST", "/api/doctor/patients/"+pid+"/analyze/image", doctor, gin.H{
		"symptoms":    "rash",
		"severity":    "4",
		"imageBase64": "data:image/png;base64," + base64.StdEncoding.EncodeToString(image),
	})
	env.expect(rec, http.StatusOK)
	if got := env.ai.images[len(env.ai.images)-1]; !bytes.Equal(got, image) {
		t.Fatalf("Expected decoded image bytes, got %v", got)
	}
	rec, _ = env.do("POST", "/api/doctor/patients/"+pid+"/analyze/image", doctor, gin.H{"symptoms": "rash", "imageBase64": "%%%"})
	env.expect(rec, http.StatusBadRequest)
	rec, body = env.do("POST", "/api/doctor/patients/"+pid+"/analyze/image", doctor, gin.H{"symptoms": "rash"})
	env.expect(rec, http.StatusBadRequest)
	if body["message"] != "Image is required" {
		t.Fatalf("Unexpected message %v", body["message"])
	}

	rec, body = env.do("GET", "/api/doctor/patients/"+pid, doctor, nil)
	env.expect(rec, http.StatusOK)
	if n := len(body["assessments"].([]interface{})); n != 2 {
		t.Fatalf("Expected 2 assessments, got %d", n)
	}
	if got := body["patient"].(map[string]interface{})["totalAnalyses"].(float64); got != 2 {
		t.Fatalf("Expected totalAnalyses 2, got %v", got)
	}

	rec, _ = env.do("GET", "/api/doctor/patients", doctor, nil)
	env.expect(rec, http.StatusOK)
	var list []map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 || list[0]["latestTriage"] == nil || list[0]["lastVisit"] == nil {
		t.Fatalf("Unexpected patient list %v", list)
	}

	rec, _ = env.do("GET", "/api/doctor/assessments", doctor, nil)
	env.expect(rec, http.StatusOK)
	var assessments []map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &assessments); err != nil {
		t.Fatal(err)
	}
	if len(assessments) != 2 {
		t.Fatalf("Expected 2 assessments, got %d", len(assessments))
	}
	if ref := assessments[0]["patient"].(map[string]interface{}); ref["name"] != "Ravi" {
		t.Fatalf("Expected populated patient, got %v", ref)
	}

	rec, body = env.do("GET", "/api/doctor/stats", doctor, nil)
	env.expect(rec, http.StatusOK)
	if body["totalPatients"].(float64) != 1 || body["totalAssessments"].(float64) != 2 || body["recentAssessments"].(float64) != 2 {
		t.Fatalf("Unexpected stats %v", body)
	}
	if body["avgUrgencyScore"].(float64) != 8.5 {
		t.Fatalf("Expected rounded average 8.5, got %v", body["avgUrgencyScore"])
	}
	if body["triageBreakdown"].(map[string]interface{})["RED"].(float64) != 2 {
		t.Fatalf("Unexpected breakdown %v", body["triageBreakdown"])
	}

	rec, body = env.do("GET", "/api/doctor/stats", otherDoctor, nil)
	env.expect(rec, http.StatusOK)
	if body["totalAssessments"].(float64) != 0 || body["avgUrgencyScore"] != nil {
		t.Fatalf("Expected empty stats, got %v", body)
	}

	rec, body = env.do("DELETE", "/api/doctor/patients/"+pid, doctor, nil)
	env.expect(rec, http.StatusOK)
	if body["message"] != "Patient removed" {
		t.Fatalf("Unexpected message %v", body["message"])
	}
	rec, _ = env.do("GET", "/api/doctor/patients/"+pid, doctor, nil)
	env.expect(rec, http.StatusNotFound)
}

func TestDoctorCanReadPatientAssessment(t *testing.T) {
	env := newTestEnv(t)
	doctor, _ := env.signup("dr.rao@example.com", "doctor")
	otherDoctor, _ := env.signup("dr.iyer@example.com", "doctor")
	pid := env.createPatient(doctor, gin.H{"name": "Ravi", "age": 40, "gender": "male"})["_id"].(string)

	rec, body := env.do("POST", "/api/doctor/patients/"+pid+"/analyze", doctor, gin.H{"symptoms": "cough"})
	env.expect(rec, http.StatusOK)
	id := body["assessmentId"].(string)

	rec, _ = env.do("GET", "/api/assess/"+id, doctor, nil)
	env.expect(rec, http.StatusOK)
	rec, _ = env.do("GET", "/api/assess/"+id, otherDoctor, nil)
	env.expect(rec, http.StatusNotFound)
}

// counterFailingStore saves assessments but cannot bump analysis counters.
type counterFailingStore struct {
	*memstore.Store
}

func (s counterFailingStore) RecordAnalysis(ctx context.Context, id string, at time.Time) error {
	return errors.New("connection reset")
}

func TestRecordAnalysisFailureIsLoggedAsError(t *testing.T) {
	env := newTestEnvWithStore(t, func(s *memstore.Store) store.Store { return counterFailingStore{s} })
	doctor, _ := env.signup("dr.rao@example.com", "doctor")
	pid := env.createPatient(doctor, gin.H{"name": "Ravi", "age": 40, "gender": "male", "email": "ravi@example.com"})["_id"].(string)

	rec, body := env.do("POST", "/api/doctor/patients/"+pid+"/analyze", doctor, gin.H{"symptoms": "cough"})
	env.expect(rec, http.StatusOK)
	analyzed := body["assessmentId"].(string)

	rec, body = env.do("POST", "/api/intake/send", doctor, gin.H{"patientId": pid})
	env.expect(rec, http.StatusOK)
	rec, _ = env.do("POST", "/api/intake/"+body["token"].(string)+"/submit", "", gin.H{"symptoms": "dizzy"})
	env.expect(rec, http.StatusOK)

	entries := env.logs.FilterMessage("Failed to record analysis").All()
	if len(entries) != 2 {
		t.Fatalf("Expected 2 logged failures, got %d", len(entries))
	}
	for _, e := range entries {
		if e.Level != zap.ErrorLevel {
			t.Fatalf("Expected error level, got %s", e.Level)
		}
		if e.ContextMap()["patient_id"] != pid {
			t.Fatalf("Expected patient_id %s, got %v", pid, e.ContextMap())
		}
	}
	if entries[0].ContextMap()["assessment_id"] != analyzed {
		t.Fatalf("Expected assessment_id %s, got %v", analyzed, entries[0].ContextMap())
	}

	rec, body = env.do("GET", "/api/doctor/patients/"+pid, doctor, nil)
	env.expect(rec, http.StatusOK)
	if n := len(body["assessments"].([]interface{})); n != 2 {
		t.Fatalf("Expected both assessments kept, got %d", n)
	}
}

func TestIntakeFlow(t *testing.T) {
	env := newTestEnv(t)
	doctor, doctorID := env.signup("dr.rao@example.com", "doctor")
	pid := env.createPatient(doctor, gin.H{"name": "Ravi", "age": 40, "gender": "male", "email": "ravi@example.com"})["_id"].(string)
	noEmail := env.createPatient(doctor, gin.H{"name": "Meena", "age": 30, "gender": "female"})["_id"].(string)

	rec, body := env.do("POST", "/api/intake/send", doctor, gin.H{})
	env.expect(rec, http.StatusBadRequest)
	if body["message"] != "patientId is required" {
		t.Fatalf("Unexpected message %v", body["message"])
	}
	rec, body = env.do("POST", "/api/intake/send", doctor, gin.H{"patientId": noEmail})
	env.expect(rec, http.StatusBadRequest)
	if body["message"] != "Patient has no email address on file." {
		t.Fatalf("Unexpected message %v", body["message"])
	}
	otherDoctor, _ := env.signup("dr.iyer@example.com", "doctor")
	rec, _ = env.do("POST", "/api/intake/send", otherDoctor, gin.H{"patientId": pid})
	env.expect(rec, http.StatusNotFound)

	rec, body = env.do("POST", "/api/intake/send", doctor, gin.H{"patientId": pid})
	env.expect(rec, http.StatusOK)
	token := body["token"].(string)
	if body["message"] != "Intake form sent to ravi@example.com" || len(token) != 64 {
		t.Fatalf("Unexpected send reply %v", body)
	}
	if len(env.mail.sent) != 1 {
		t.Fatalf("Expected one e-mail, got %d", len(env.mail.sent))
	}
	msg := env.mail.sent[0]
	if msg.ToEmail != "ravi@example.com" || !strings.Contains(msg.HTML, "http://app.test/intake/"+token) {
		t.Fatalf("Unexpected e-mail %+v", msg)
	}
	if !strings.HasPrefix(msg.Subject, "User dr.rao@example.com has requested") {
		t.Fatalf("Expected doctor name in subject, got %q", msg.Subject)
	}

	rec, _ = env.do("GET", "/api/intake/unknown", "", nil)
	env.expect(rec, http.StatusNotFound)

	rec, body = env.do("GET", "/api/intake/"+token, "", nil)
	env.expect(rec, http.StatusOK)
	if body["patientName"] != "Ravi" || body["patientAge"].(float64) != 40 || body["doctorName"] != "User dr.rao@example.com" {
		t.Fatalf("Unexpected intake info %v", body)
	}

	rec, body = env.do("POST", "/api/intake/"+token+"/submit", "", gin.H{"symptoms": " "})
	env.expect(rec, http.StatusBadRequest)
	if body["message"] != "Symptoms are required." {
		t.Fatalf("Unexpected message %v", body["message"])
	}

	rec, body = env.do("POST", "/api/intake/"+token+"/submit", "", gin.H{"symptoms": "dizzy"})
	env.expect(rec, http.StatusOK)
	if body["message"] != "Assessment complete! Your doctor has been notified." {
		t.Fatalf("Unexpected message %v", body["message"])
	}
	if got := env.ai.symptoms[len(env.ai.symptoms)-1]; got != "Patient: male, Age 40. dizzy" {
		t.Fatalf("Unexpected context %q", got)
	}

	rec, body = env.do("GET", "/api/doctor/patients/"+pid, doctor, nil)
	env.expect(rec, http.StatusOK)
	list := body["assessments"].([]interface{})
	if len(list) != 1 || list[0].(map[string]interface{})["userId"] != doctorID {
		t.Fatalf("Expected assessment filed under the doctor, got %v", list)
	}

	rec, body = env.do("GET", "/api/intake/"+token, "", nil)
	env.expect(rec, http.StatusGone)
	if body["message"] != "This intake form has already been submitted." {
		t.Fatalf("Unexpected message %v", body["message"])
	}
	rec, body = env.do("POST", "/api/intake/"+token+"/submit", "", gin.H{"symptoms": "dizzy"})
	env.expect(rec, http.StatusGone)
	if body["message"] != "Already submitted." {
		t.Fatalf("Unexpected message %v", body["message"])
	}
}

func TestIntakeExpired(t *testing.T) {
	env := newTestEnv(t)
	doctor, _ := env.signup("dr.rao@example.com", "doctor")
	pid := env.createPatient(doctor, gin.H{"name": "Ravi", "age": 40, "gender": "male", "email": "ravi@example.com"})["_id"].(string)

	rec, body := env.do("POST", "/api/intake/send", doctor, gin.H{"patientId": pid})
	env.expect(rec, http.StatusOK)
	token := body["token"].(string)

	env.now = env.now.Add(8 * 24 * time.Hour)
	rec, body = env.do("GET", "/api/intake/"+token, "", nil)
	env.expect(rec, http.StatusGone)
	if body["message"] != "This intake link has expired." {
		t.Fatalf("Unexpected message %v", body["message"])
	}
	rec, body = env.do("POST", "/api/intake/"+token+"/submit", "", gin.H{"symptoms": "dizzy"})
	env.expect(rec, http.StatusGone)
	if body["message"] != "Link expired." {
		t.Fatalf("Unexpected message %v", body["message"])
	}
	if env.ai.count("/assess") != 0 {
		t.Fatal("Expired link reached the AI service")
	}
}

func TestIntakeMailFailure(t *testing.T) {
	env := newTestEnv(t)
	env.mail.err = mailer.ErrNotConfigured
	doctor, _ := env.signup("dr.rao@example.com", "doctor")
	pid := env.createPatient(doctor, gin.H{"name": "Ravi", "age": 40, "gender": "male", "email": "ravi@example.com"})["_id"].(string)

	rec, body := env.do("POST", "/api/intake/send", doctor, gin.H{"patientId": pid})
	env.expect(rec, http.StatusInternalServerError)
	if body["code"] != security.CodeMailError {
		t.Fatalf("Expected mail error, got %v", body["code"])
	}
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	rec, body := env.do("GET", "/api/health", "", nil)
	env.expect(rec, http.StatusOK)
	if body["status"] != "healthy" {
		t.Fatalf("Unexpected health %v", body)
	}
	rec, _ = env.do("GET", "/", "", nil)
	env.expect(rec, http.StatusOK)
	if rec.Body.String() != "Hello World!" {
		t.Fatalf("Unexpected root body %q", rec.Body.String())
	}
}
