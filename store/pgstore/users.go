package pgstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/adityajain-27/medical-ai-sub000/models"
	"github.com/adityajain-27/medical-ai-sub000/store"
)

const userColumns = `id, name, email, password_hash, role, credits, position, qualification, created_at, updated_at`

func scanUser(row interface{ Scan(...interface{}) error }) (*models.User, error) {
	var u models.User
	var credits sql.NullInt64
	err := row.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.Role, &credits,
		&u.Position, &u.Qualification, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	u.Credits = models.DefaultCredits
	if credits.Valid {
		u.Credits = int(credits.Int64)
	}
	return &u, nil
}

func (s *Store) CreateUser(ctx context.Context, u *models.User) error {
	if u.Credits == 0 {
		u.Credits = models.DefaultCredits
	}
	if u.Role == "" {
		u.Role = models.RolePatient
	}
	now := s.now()
	id := uuid.NewString()
	_, err := s.db.ExecContext(ctx, `
        INSERT INTO users (id, name, email, password_hash, role, credits, position, qualification, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)
    `, id, u.Name, u.Email, u.PasswordHash, u.Role, u.Credits, u.Position, u.Qualification, now)
	if err != nil {
		return translate(err, "insert user")
	}
	u.ID = id
	u.CreatedAt, u.UpdatedAt = now, now
	return nil
}

func (s *Store) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	uid, err := parseID(id)
	if err != nil {
		return nil, err
	}
	u, err := scanUser(s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, uid))
	if err != nil {
		return nil, translate(err, "find user")
	}
	return u, nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email))
	if err != nil {
		return nil, translate(err, "find user")
	}
	return u, nil
}

func (s *Store) UpdateUser(ctx context.Context, id string, upd models.UserUpdate) (*models.User, error) {
	uid, err := parseID(id)
	if err != nil {
		return nil, err
	}
	sets := []string{"updated_at = $2"}
	args := []interface{}{uid, s.now()}
	add := func(col string, v *string) {
		if v == nil {
			return
		}
		args = append(args, *v)
		sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)))
	}
	add("name", upd.Name)
	add("position", upd.Position)
	add("qualification", upd.Qualification)
	add("password_hash", upd.PasswordHash)

	query := `UPDATE users SET ` + strings.Join(sets, ", ") + ` WHERE id = $1 RETURNING ` + userColumns
	u, err := scanUser(s.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		return nil, translate(err, "update user")
	}
	return u, nil
}

// Credits initialises a missing balance in the same statement that reads it.
func (s *Store) Credits(ctx context.Context, id string) (int, error) {
	uid, err := parseID(id)
	if err != nil {
		return 0, err
	}
	var credits int
	err = s.db.QueryRowContext(ctx, `
        UPDATE users SET credits = COALESCE(credits, $2)
        WHERE id = $1
        RETURNING credits
    `, uid, models.DefaultCredits).Scan(&credits)
	if err != nil {
		return 0, translate(err, "credits")
	}
	return credits, nil
}

func (s *Store) DeductCredits(ctx context.Context, id string, amount int) (int, error) {
	uid, err := parseID(id)
	if err != nil {
		return 0, err
	}
	var credits int
	err = s.db.QueryRowContext(ctx, `
        UPDATE users SET credits = COALESCE(credits, $3) - $2, updated_at = $4
        WHERE id = $1 AND COALESCE(credits, $3) >= $2
        RETURNING credits
    `, uid, amount, models.DefaultCredits, s.now()).Scan(&credits)
	if err == nil {
		return credits, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, translate(err, "deduct credits")
	}
	balance, err := s.Credits(ctx, id)
	if err != nil {
		return 0, err
	}
	return balance, store.ErrInsufficientCredits
}

func (s *Store) AddCredits(ctx context.Context, id string, amount int) (int, error) {
	uid, err := parseID(id)
	if err != nil {
		return 0, err
	}
	var credits int
	err = s.db.QueryRowContext(ctx, `
        UPDATE users SET credits = COALESCE(credits, $3) + $2, updated_at = $4
        WHERE id = $1
        RETURNING credits
    `, uid, amount, models.DefaultCredits, s.now()).Scan(&credits)
	if err != nil {
		return 0, translate(err, "add credits")
	}
	return credits, nil
}
