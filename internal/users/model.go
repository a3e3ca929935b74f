package users

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// User is a customer or slot-owner account.
type User struct {
	ID           uuid.UUID `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	Phone        string    `json:"phone"`
	PasswordHash string    `json:"-"`
	Role         string    `json:"role"` // patient, owner or superuser
	CreatedAt    time.Time `json:"createdAt"`
}

var (
	// ErrUserNotFound is returned when a user does not exist.
	ErrUserNotFound = errors.New("user not found")

	// ErrEmailTaken is returned when the email is already registered.
	ErrEmailTaken = errors.New("email already registered")

	// ErrInvalidCredentials is returned on a failed login.
	ErrInvalidCredentials = errors.New("invalid email or password")

	// ErrInvalidRegistration is returned for malformed registration input.
	ErrInvalidRegistration = errors.New("name, email and password are required")
)

// RegisterRequest is the body of POST /api/register.
type RegisterRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Phone    string `json:"phone"`
	Password string `json:"password"`
}

// Validate checks the registration fields.
func (r *RegisterRequest) Validate() error {
	if strings.TrimSpace(r.Name) == "" || strings.TrimSpace(r.Email) == "" || len(r.Password) < 8 {
		return ErrInvalidRegistration
	}
	return nil
}
