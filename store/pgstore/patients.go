package pgstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/adityajain-27/medical-ai-sub000/models"
	"github.com/adityajain-27/medical-ai-sub000/store"
	"github.com/adityajain-27/medical-ai-sub000/utils"
)

const patientIDAttempts = 3

const patientColumns = `id, patient_id, doctor_id, name, age, gender, email, phone, medical_history,
    current_medications, allergies, blood_group, status, last_analysis_at, total_analyses, created_at, updated_at`

func scanPatient(row interface{ Scan(...interface{}) error }) (models.DoctorPatient, error) {
	var p models.DoctorPatient
	var last sql.NullTime
	err := row.Scan(&p.ID, &p.PatientID, &p.DoctorID, &p.Name, &p.Age, &p.Gender, &p.Email, &p.Phone,
		&p.MedicalHistory, pq.Array(&p.CurrentMedications), &p.Allergies, &p.BloodGroup, &p.Status,
		&last, &p.TotalAnalyses, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return p, err
	}
	if last.Valid {
		t := last.Time
		p.LastAnalysisAt = &t
	}
	if p.CurrentMedications == nil {
		p.CurrentMedications = []string{}
	}
	return p, nil
}

func (s *Store) CreatePatient(ctx context.Context, p *models.DoctorPatient) error {
	doctorID, err := parseID(p.DoctorID)
	if err != nil {
		return err
	}
	if p.Status == "" {
		p.Status = models.PatientStatusActive
	}
	p.CurrentMedications = nonNil(p.CurrentMedications)
	now := s.now()
	id := uuid.NewString()
	var patientID string
	for attempt := 1; ; attempt++ {
		patientID = utils.GeneratePatientID(s.now())
		_, err = s.db.ExecContext(ctx, `
            INSERT INTO doctor_patients (id, patient_id, doctor_id, name, age, gender, email, phone,
                medical_history, current_medications, allergies, blood_group, status, created_at, updated_at)
            VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $14)
        `, id, patientID, doctorID, p.Name, p.Age, p.Gender, p.Email, p.Phone, p.MedicalHistory,
			pq.Array(p.CurrentMedications), p.Allergies, p.BloodGroup, p.Status, now)
		err = translate(err, "insert patient")
		if !errors.Is(err, store.ErrDuplicate) || attempt == patientIDAttempts {
			break
		}
	}
	if err != nil {
		return err
	}
	p.ID = id
	p.PatientID = patientID
	p.DoctorID = doctorID
	p.CreatedAt, p.UpdatedAt = now, now
	return nil
}

func (s *Store) ListPatients(ctx context.Context, doctorID string) ([]models.DoctorPatient, error) {
	did, err := parseID(doctorID)
	if err != nil {
		return []models.DoctorPatient{}, nil
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+patientColumns+` FROM doctor_patients
        WHERE doctor_id = $1 ORDER BY created_at DESC, seq DESC`, did)
	if err != nil {
		return nil, translate(err, "find patients")
	}
	defer rows.Close()

	out := []models.DoctorPatient{}
	for rows.Next() {
		p, err := scanPatient(rows)
		if err != nil {
			return nil, translate(err, "scan patient")
		}
		out = append(out, p)
	}
	return out, translate(rows.Err(), "iterate patients")
}

func (s *Store) GetPatient(ctx context.Context, doctorID, id string) (*models.DoctorPatient, error) {
	pid, err := parseID(id)
	if err != nil {
		return nil, err
	}
	did, err := parseID(doctorID)
	if err != nil {
		return nil, err
	}
	p, err := scanPatient(s.db.QueryRowContext(ctx, `SELECT `+patientColumns+` FROM doctor_patients
        WHERE id = $1 AND doctor_id = $2`, pid, did))
	if err != nil {
		return nil, translate(err, "find patient")
	}
	return &p, nil
}

func (s *Store) GetPatientByID(ctx context.Context, id string) (*models.DoctorPatient, error) {
	pid, err := parseID(id)
	if err != nil {
		return nil, err
	}
	p, err := scanPatient(s.db.QueryRowContext(ctx, `SELECT `+patientColumns+` FROM doctor_patients WHERE id = $1`, pid))
	if err != nil {
		return nil, translate(err, "find patient")
	}
	return &p, nil
}

func (s *Store) UpdatePatient(ctx context.Context, doctorID, id string, upd models.PatientUpdate) (*models.DoctorPatient, error) {
	pid, err := parseID(id)
	if err != nil {
		return nil, err
	}
	did, err := parseID(doctorID)
	if err != nil {
		return nil, err
	}
	sets := []string{"updated_at = $3"}
	args := []interface{}{pid, did, s.now()}
	add := func(col string, v interface{}) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)))
	}
	if upd.Name != nil {
		add("name", *upd.Name)
	}
	if upd.Age != nil {
		add("age", *upd.Age)
	}
	if upd.Gender != nil {
		add("gender", *upd.Gender)
	}
	if upd.Email != nil {
		add("email", *upd.Email)
	}
	if upd.Phone != nil {
		add("phone", *upd.Phone)
	}
	if upd.MedicalHistory != nil {
		add("medical_history", *upd.MedicalHistory)
	}
	if upd.CurrentMedications != nil {
		add("current_medications", pq.Array(nonNil(*upd.CurrentMedications)))
	}
	if upd.Allergies != nil {
		add("allergies", *upd.Allergies)
	}
	if upd.BloodGroup != nil {
		add("blood_group", *upd.BloodGroup)
	}
	if upd.Status != nil {
		add("status", *upd.Status)
	}

	query := `UPDATE doctor_patients SET ` + strings.Join(sets, ", ") +
		` WHERE id = $1 AND doctor_id = $2 RETURNING ` + patientColumns
	p, err := scanPatient(s.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		return nil, translate(err, "update patient")
	}
	return &p, nil
}

func (s *Store) DeletePatient(ctx context.Context, doctorID, id string) error {
	pid, err := parseID(id)
	if err != nil {
		return err
	}
	did, err := parseID(doctorID)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM doctor_patients WHERE id = $1 AND doctor_id = $2`, pid, did)
	if err != nil {
		return translate(err, "delete patient")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) ListPatientIDs(ctx context.Context, doctorID string) ([]string, error) {
	did, err := parseID(doctorID)
	if err != nil {
		return []string{}, nil
	}
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM doctor_patients WHERE doctor_id = $1`, did)
	if err != nil {
		return nil, translate(err, "find patient ids")
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, translate(err, "scan patient id")
		}
		ids = append(ids, id)
	}
	return ids, translate(rows.Err(), "iterate patient ids")
}

func (s *Store) RecordAnalysis(ctx context.Context, id string, at time.Time) error {
	pid, err := parseID(id)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `
        UPDATE doctor_patients
        SET total_analyses = total_analyses + 1, last_analysis_at = $2, updated_at = $3
        WHERE id = $1
    `, pid, at, s.now())
	if err != nil {
		return translate(err, "record analysis")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	return nil
}
