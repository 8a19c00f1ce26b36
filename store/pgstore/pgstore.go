// Package pgstore implements store.Store on PostgreSQL with raw SQL over
// database/sql and lib/pq. Nested assessment fields live in JSONB columns.
package pgstore

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/adityajain-27/medical-ai-sub000/store"
)

type Store struct {
	db  *sql.DB
	now func() time.Time
}

var _ store.Store = (*Store)(nil)

func New(db *sql.DB) *Store {
	return &Store{db: db, now: time.Now}
}

const schema = `
CREATE TABLE IF NOT EXISTS users (
    id            UUID PRIMARY KEY,
    name          TEXT NOT NULL,
    email         TEXT NOT NULL UNIQUE,
    password_hash TEXT NOT NULL,
    role          TEXT NOT NULL DEFAULT 'patient',
    credits       INTEGER,
    position      TEXT NOT NULL DEFAULT '',
    qualification TEXT NOT NULL DEFAULT '',
    created_at    TIMESTAMPTZ NOT NULL,
    updated_at    TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS doctor_patients (
    id                  UUID PRIMARY KEY,
    seq                 BIGSERIAL,
    patient_id          TEXT NOT NULL UNIQUE,
    doctor_id           UUID NOT NULL,
    name                TEXT NOT NULL,
    age                 INTEGER NOT NULL,
    gender              TEXT NOT NULL,
    email               TEXT NOT NULL DEFAULT '',
    phone               TEXT NOT NULL DEFAULT '',
    medical_history     TEXT NOT NULL DEFAULT '',
    current_medications TEXT[] NOT NULL DEFAULT '{}',
    allergies           TEXT NOT NULL DEFAULT '',
    blood_group         TEXT NOT NULL DEFAULT '',
    status              TEXT NOT NULL DEFAULT 'active',
    last_analysis_at    TIMESTAMPTZ,
    total_analyses      INTEGER NOT NULL DEFAULT 0,
    created_at          TIMESTAMPTZ NOT NULL,
    updated_at          TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS doctor_patients_doctor_idx ON doctor_patients (doctor_id, created_at DESC);

CREATE TABLE IF NOT EXISTS assessments (
    id                UUID PRIMARY KEY,
    seq               BIGSERIAL,
    user_id           UUID NOT NULL,
    doctor_patient_id UUID,
    symptoms          TEXT NOT NULL,
    medications       TEXT[] NOT NULL DEFAULT '{}',
    triage            JSONB NOT NULL,
    followup_answers  JSONB NOT NULL DEFAULT '{}',
    soap_note         JSONB NOT NULL,
    conditions        JSONB NOT NULL DEFAULT '[]',
    drug_interactions JSONB NOT NULL DEFAULT '[]',
    red_flags         TEXT[] NOT NULL DEFAULT '{}',
    created_at        TIMESTAMPTZ NOT NULL,
    updated_at        TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS assessments_user_idx ON assessments (user_id, created_at DESC);
CREATE INDEX IF NOT EXISTS assessments_patient_idx ON assessments (doctor_patient_id, created_at DESC);

CREATE TABLE IF NOT EXISTS intake_requests (
    id         UUID PRIMARY KEY,
    token      TEXT NOT NULL UNIQUE,
    patient_id UUID NOT NULL,
    doctor_id  UUID NOT NULL,
    status     TEXT NOT NULL DEFAULT 'pending',
    expires_at TIMESTAMPTZ NOT NULL,
    created_at TIMESTAMPTZ NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL
);
`

// Migrate creates the tables and indexes when they do not exist yet.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("pgstore: migrate: %w", err)
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Close(ctx context.Context) error {
	return s.db.Close()
}

// uniqueViolation is the SQLSTATE Postgres reports for a unique index clash.
const uniqueViolation = "23505"

func translate(err error, op string) error {
	var pqErr *pq.Error
	switch {
	case err == nil:
		return nil
	case errors.Is(err, sql.ErrNoRows):
		return store.ErrNotFound
	case errors.As(err, &pqErr) && pqErr.Code == uniqueViolation:
		return store.ErrDuplicate
	default:
		return fmt.Errorf("pgstore: %s: %w", op, err)
	}
}

// parseID rejects ids Postgres would refuse to cast to UUID. Such ids can
// never match a row.
func parseID(id string) (string, error) {
	u, err := uuid.Parse(id)
	if err != nil {
		return "", store.ErrNotFound
	}
	return u.String(), nil
}

func parseIDs(ids []string) pq.StringArray {
	out := make(pq.StringArray, 0, len(ids))
	for _, id := range ids {
		if u, err := uuid.Parse(id); err == nil {
			out = append(out, u.String())
		}
	}
	return out
}

// jsonb stores the value v points at as a JSONB column.
type jsonb struct {
	v interface{}
}

func (j jsonb) Value() (driver.Value, error) {
	return json.Marshal(j.v)
}

func (j jsonb) Scan(value interface{}) error {
	if value == nil {
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return fmt.Errorf("pgstore: unexpected jsonb type %T", value)
	}
	return json.Unmarshal(bytes, j.v)
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
