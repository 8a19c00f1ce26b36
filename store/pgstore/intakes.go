package pgstore

import (
	"context"

	"github.com/google/uuid"

	"github.com/adityajain-27/medical-ai-sub000/models"
	"github.com/adityajain-27/medical-ai-sub000/store"
)

func (s *Store) CreateIntake(ctx context.Context, r *models.IntakeRequest) error {
	patientID, err := parseID(r.PatientID)
	if err != nil {
		return err
	}
	doctorID, err := parseID(r.DoctorID)
	if err != nil {
		return err
	}
	if r.Status == "" {
		r.Status = models.IntakePending
	}
	now := s.now()
	id := uuid.NewString()
	_, err = s.db.ExecContext(ctx, `
        INSERT INTO intake_requests (id, token, patient_id, doctor_id, status, expires_at, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
    `, id, r.Token, patientID, doctorID, r.Status, r.ExpiresAt, now)
	if err != nil {
		return translate(err, "insert intake")
	}
	r.ID = id
	r.CreatedAt, r.UpdatedAt = now, now
	return nil
}

func (s *Store) GetIntakeByToken(ctx context.Context, token string) (*models.IntakeRequest, error) {
	var r models.IntakeRequest
	err := s.db.QueryRowContext(ctx, `
        SELECT id, token, patient_id, doctor_id, status, expires_at, created_at, updated_at
        FROM intake_requests WHERE token = $1
    `, token).Scan(&r.ID, &r.Token, &r.PatientID, &r.DoctorID, &r.Status, &r.ExpiresAt, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, translate(err, "find intake")
	}
	return &r, nil
}

func (s *Store) CompleteIntake(ctx context.Context, token string) error {
	res, err := s.db.ExecContext(ctx, `
        UPDATE intake_requests SET status = $2, updated_at = $4
        WHERE token = $1 AND status = $3
    `, token, models.IntakeCompleted, models.IntakePending, s.now())
	if err != nil {
		return translate(err, "complete intake")
	}
	if n, _ := res.RowsAffected(); n == 1 {
		return nil
	}
	if _, err := s.GetIntakeByToken(ctx, token); err != nil {
		return err
	}
	return store.ErrIntakeNotPending
}
