package pgstore

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/adityajain-27/medical-ai-sub000/models"
	"github.com/adityajain-27/medical-ai-sub000/store"
)

const assessmentColumns = `id, user_id, doctor_patient_id, symptoms, medications, triage, followup_answers,
    soap_note, conditions, drug_interactions, red_flags, created_at, updated_at`

func scanAssessment(row interface{ Scan(...interface{}) error }) (models.Assessment, error) {
	var a models.Assessment
	var patientID sql.NullString
	err := row.Scan(&a.ID, &a.UserID, &patientID, &a.Symptoms, pq.Array(&a.Medications),
		jsonb{&a.Triage}, jsonb{&a.FollowupAnswers}, jsonb{&a.SOAPNote}, jsonb{&a.Conditions},
		jsonb{&a.DrugInteractions}, pq.Array(&a.RedFlags), &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return a, err
	}
	if patientID.Valid {
		a.DoctorPatientID = &patientID.String
	}
	return a, nil
}

func (s *Store) CreateAssessment(ctx context.Context, a *models.Assessment) error {
	userID, err := parseID(a.UserID)
	if err != nil {
		return err
	}
	var patientID sql.NullString
	if a.DoctorPatientID != nil {
		pid, err := parseID(*a.DoctorPatientID)
		if err != nil {
			return err
		}
		patientID = sql.NullString{String: pid, Valid: true}
	}
	followup := a.FollowupAnswers
	if followup == nil {
		followup = map[string]interface{}{}
	}
	conditions := a.Conditions
	if conditions == nil {
		conditions = []models.Condition{}
	}
	interactions := a.DrugInteractions
	if interactions == nil {
		interactions = []models.DrugInteraction{}
	}
	now := s.now()
	id := uuid.NewString()
	_, err = s.db.ExecContext(ctx, `
        INSERT INTO assessments (id, user_id, doctor_patient_id, symptoms, medications, triage, followup_answers,
            soap_note, conditions, drug_interactions, red_flags, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $12)
    `, id, userID, patientID, a.Symptoms, pq.Array(nonNil(a.Medications)), jsonb{a.Triage}, jsonb{followup},
		jsonb{a.SOAPNote}, jsonb{conditions}, jsonb{interactions}, pq.Array(nonNil(a.RedFlags)), now)
	if err != nil {
		return translate(err, "insert assessment")
	}
	a.ID = id
	a.CreatedAt, a.UpdatedAt = now, now
	return nil
}

func (s *Store) GetAssessment(ctx context.Context, id string) (*models.Assessment, error) {
	aid, err := parseID(id)
	if err != nil {
		return nil, err
	}
	a, err := scanAssessment(s.db.QueryRowContext(ctx, `SELECT `+assessmentColumns+` FROM assessments WHERE id = $1`, aid))
	if err != nil {
		return nil, translate(err, "find assessment")
	}
	return &a, nil
}

func (s *Store) queryAssessments(ctx context.Context, query string, args ...interface{}) ([]models.Assessment, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, translate(err, "find assessments")
	}
	defer rows.Close()

	out := []models.Assessment{}
	for rows.Next() {
		a, err := scanAssessment(rows)
		if err != nil {
			return nil, translate(err, "scan assessment")
		}
		out = append(out, a)
	}
	return out, translate(rows.Err(), "iterate assessments")
}

func (s *Store) ListUserAssessments(ctx context.Context, userID string) ([]models.AssessmentSummary, error) {
	uid, err := parseID(userID)
	if err != nil {
		return []models.AssessmentSummary{}, nil
	}
	rows, err := s.db.QueryContext(ctx, `
        SELECT id, symptoms, triage, created_at
        FROM assessments
        WHERE user_id = $1
        ORDER BY created_at DESC, seq DESC
    `, uid)
	if err != nil {
		return nil, translate(err, "find assessments")
	}
	defer rows.Close()

	out := []models.AssessmentSummary{}
	for rows.Next() {
		var sum models.AssessmentSummary
		if err := rows.Scan(&sum.ID, &sum.Symptoms, jsonb{&sum.Triage}, &sum.CreatedAt); err != nil {
			return nil, translate(err, "scan assessment")
		}
		out = append(out, sum)
	}
	return out, translate(rows.Err(), "iterate assessments")
}

func (s *Store) ListPatientAssessments(ctx context.Context, patientID string) ([]models.Assessment, error) {
	pid, err := parseID(patientID)
	if err != nil {
		return []models.Assessment{}, nil
	}
	return s.queryAssessments(ctx, `SELECT `+assessmentColumns+` FROM assessments
        WHERE doctor_patient_id = $1 ORDER BY created_at DESC, seq DESC`, pid)
}

func (s *Store) ListAssessmentsForPatients(ctx context.Context, patientIDs []string) ([]models.Assessment, error) {
	return s.queryAssessments(ctx, `SELECT `+assessmentColumns+` FROM assessments
        WHERE doctor_patient_id = ANY($1::uuid[]) ORDER BY created_at DESC, seq DESC`, parseIDs(patientIDs))
}

func (s *Store) LatestAssessments(ctx context.Context, patientIDs []string) (map[string]models.Assessment, error) {
	list, err := s.queryAssessments(ctx, `SELECT DISTINCT ON (doctor_patient_id) `+assessmentColumns+`
        FROM assessments
        WHERE doctor_patient_id = ANY($1::uuid[])
        ORDER BY doctor_patient_id, created_at DESC, seq DESC`, parseIDs(patientIDs))
	if err != nil {
		return nil, err
	}
	latest := make(map[string]models.Assessment, len(list))
	for _, a := range list {
		latest[*a.DoctorPatientID] = a
	}
	return latest, nil
}

func (s *Store) AssessmentStats(ctx context.Context, patientIDs []string, since time.Time) (*models.AssessmentStats, error) {
	ids := parseIDs(patientIDs)
	stats := &models.AssessmentStats{TriageCounts: make(map[string]int)}

	var avg sql.NullFloat64
	err := s.db.QueryRowContext(ctx, `
        SELECT COUNT(*),
               COUNT(*) FILTER (WHERE created_at >= $2),
               AVG((triage->>'urgency_score')::float8)
        FROM assessments
        WHERE doctor_patient_id = ANY($1::uuid[])
    `, ids, since).Scan(&stats.Total, &stats.Recent, &avg)
	if err != nil {
		return nil, translate(err, "count assessments")
	}
	if avg.Valid {
		v := avg.Float64
		stats.AvgUrgency = &v
	}

	rows, err := s.db.QueryContext(ctx, `
        SELECT COALESCE(triage->>'color', ''), COUNT(*)
        FROM assessments
        WHERE doctor_patient_id = ANY($1::uuid[])
        GROUP BY 1
    `, ids)
	if err != nil {
		return nil, translate(err, "triage breakdown")
	}
	for rows.Next() {
		var color string
		var n int
		if err := rows.Scan(&color, &n); err != nil {
			rows.Close()
			return nil, translate(err, "scan triage breakdown")
		}
		stats.TriageCounts[color] += n
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, translate(err, "iterate triage breakdown")
	}

	rows, err = s.db.QueryContext(ctx, `
        SELECT c->>'name' AS name, COUNT(*) AS n
        FROM assessments,
             jsonb_array_elements(CASE WHEN jsonb_typeof(conditions) = 'array' THEN conditions ELSE '[]'::jsonb END) AS c
        WHERE doctor_patient_id = ANY($1::uuid[])
        GROUP BY name
        ORDER BY n DESC, name ASC
        LIMIT $2
    `, ids, store.TopConditionsLimit)
	if err != nil {
		return nil, translate(err, "top conditions")
	}
	defer rows.Close()
	for rows.Next() {
		var c models.ConditionCount
		var name sql.NullString
		if err := rows.Scan(&name, &c.Count); err != nil {
			return nil, translate(err, "scan top conditions")
		}
		c.Name = name.String
		stats.TopConditions = append(stats.TopConditions, c)
	}
	return stats, translate(rows.Err(), "iterate top conditions")
}
