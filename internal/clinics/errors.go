package clinics

import "errors"

var (
	// ErrClinicNotFound is returned when a clinic does not exist.
	ErrClinicNotFound = errors.New("clinic not found")

	// ErrInvalidName is returned when the clinic name is missing.
	ErrInvalidName = errors.New("clinic name is required")

	// ErrMissingUsername is returned when the login username is missing.
	ErrMissingUsername = errors.New("username is required")

	// ErrWeakPassword is returned when the password is under 8 characters.
	ErrWeakPassword = errors.New("password must be at least 8 characters")

	// ErrUsernameTaken is returned when the username is already in use.
	ErrUsernameTaken = errors.New("username already taken")

	// ErrInvalidCredentials is returned on a failed login.
	ErrInvalidCredentials = errors.New("invalid username or password")
)
