package accounts

import (
	"errors"
	"strings"
	"time"
)

var (
	// ErrUserNotFound is returned when no user has the given key
	ErrUserNotFound = errors.New("user not found")
	// ErrEmailTaken is returned by Create when the email is already registered
	ErrEmailTaken = errors.New("email has already been taken")
	// ErrInvalidCredentials covers both unknown email and wrong password
	ErrInvalidCredentials = errors.New("the provided credentials do not match our records")
)

// User is a local account. Email is the identity key shared with the
// partner application.
type User struct {
	ID           int64     `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// NormalizeEmail trims and lowercases an email address
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
