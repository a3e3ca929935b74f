package clinics

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Doctor is a practitioner record attached to a clinic.
type Doctor struct {
	Name           string `json:"name"`
	Specialization string `json:"specialization"`
	Degree         string `json:"degree"`
}

// Clinic represents a tenant account.
type Clinic struct {
	ID       uuid.UUID `json:"id"`
	Name     string    `json:"name"`
	Address  string    `json:"address"`
	Phone    string    `json:"phone"`
	Email    string    `json:"email"`
	Username string    `json:"username"`
	// PasswordHash is never serialized.
	PasswordHash string   `json:"-"`
	Doctors      []Doctor `json:"doctors"`
	// Legacy single-doctor fields retained for rows imported from the old
	// system. New writes go through Doctors.
	DoctorName           string    `json:"doctorName,omitempty"`
	DoctorSpecialization string    `json:"doctorSpecialization,omitempty"`
	Archived             bool      `json:"archived"`
	CreatedAt            time.Time `json:"createdAt"`
	UpdatedAt            time.Time `json:"updatedAt"`
}

// CreateClinicRequest is the admin request body for creating a clinic.
type CreateClinicRequest struct {
	Name     string   `json:"name"`
	Address  string   `json:"address"`
	Phone    string   `json:"phone"`
	Email    string   `json:"email"`
	Username string   `json:"username"`
	Password string   `json:"password"`
	Doctors  []Doctor `json:"doctors"`
}

// Validate validates the create clinic request
func (r *CreateClinicRequest) Validate() error {
	if strings.TrimSpace(r.Name) == "" {
		return ErrInvalidName
	}
	if strings.TrimSpace(r.Username) == "" {
		return ErrMissingUsername
	}
	if len(r.Password) < 8 {
		return ErrWeakPassword
	}
	return nil
}

// UpdateClinicRequest is the admin request body for updating a clinic.
// Nil fields are left unchanged.
type UpdateClinicRequest struct {
	Name    *string   `json:"name,omitempty"`
	Address *string   `json:"address,omitempty"`
	Phone   *string   `json:"phone,omitempty"`
	Email   *string   `json:"email,omitempty"`
	Doctors *[]Doctor `json:"doctors,omitempty"`
}

// ApplyTo mutates the clinic with the non-nil fields of the request.
func (r *UpdateClinicRequest) ApplyTo(c *Clinic) {
	if r.Name != nil {
		c.Name = *r.Name
	}
	if r.Address != nil {
		c.Address = *r.Address
	}
	if r.Phone != nil {
		c.Phone = *r.Phone
	}
	if r.Email != nil {
		c.Email = *r.Email
	}
	if r.Doctors != nil {
		c.Doctors = *r.Doctors
	}
	c.UpdatedAt = time.Now().UTC()
}
