package models

import "time"

// User is an analyst account. Passwords are stored as bcrypt hashes only.
type User struct {
	ID           int64      `json:"id"`
	Username     string     `json:"username"`
	PasswordHash string     `json:"-"`
	Email        string     `json:"email,omitempty"`
	Role         string     `json:"role"`
	Active       bool       `json:"is_active"`
	LastLogin    *time.Time `json:"last_login,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

const (
	RoleAnalyst = "analyst"
	RoleAdmin   = "admin"
)
