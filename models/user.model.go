package models

import (
	"time"
)

const (
	RolePatient = "patient"
	RoleDoctor  = "doctor"

	// DefaultCredits is the balance every new account starts with.
	DefaultCredits = 500
)

type User struct {
	ID            string    `json:"_id"`
	Name          string    `json:"name"`
	Email         string    `json:"email"`
	PasswordHash  string    `json:"-"`
	Role          string    `json:"role"`
	Credits       int       `json:"credits"`
	Position      string    `json:"position"`
	Qualification string    `json:"qualification"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// UserSummary is the trimmed user returned alongside auth tokens.
type UserSummary struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Email         string `json:"email"`
	Role          string `json:"role"`
	Position      string `json:"position,omitempty"`
	Qualification string `json:"qualification,omitempty"`
}

func (u *User) Summary() UserSummary {
	return UserSummary{
		ID:            u.ID,
		Name:          u.Name,
		Email:         u.Email,
		Role:          u.Role,
		Position:      u.Position,
		Qualification: u.Qualification,
	}
}

// UserUpdate carries the profile fields a user may change about themselves.
// Nil fields are left untouched.
type UserUpdate struct {
	Name          *string
	Position      *string
	Qualification *string
	PasswordHash  *string
}

func (u UserUpdate) Empty() bool {
	return u.Name == nil && u.Position == nil && u.Qualification == nil && u.PasswordHash == nil
}
