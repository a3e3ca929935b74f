package bookings

import (
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

// VerificationStatus is the booking confirmation state.
type VerificationStatus string

const (
	// VerificationPending marks a booking awaiting its one-time code.
	VerificationPending VerificationStatus = "pending"
	// VerificationVerified marks a confirmed booking.
	VerificationVerified VerificationStatus = "verified"
)

// CapacityWindow is the tolerance applied when matching a requested start
// time to existing slots for the same clinic. Requests within ±60s of each
// other compete for the same capacity.
const CapacityWindow = 60 * time.Second

// DefaultMaxBookings is the per-slot booking ceiling.
const DefaultMaxBookings = 3

// Slot is a bookable time window belonging to a clinic.
type Slot struct {
	ID          uuid.UUID  `json:"id"`
	ClinicID    uuid.UUID  `json:"clinicId"`
	OwnerUserID *uuid.UUID `json:"ownerUserId,omitempty"`
	StartTime   time.Time  `json:"startTime"`
	EndTime     time.Time  `json:"endTime"`
	MaxBookings int        `json:"maxBookings"`
	IsBooked    bool       `json:"isBooked"`
	Cancelled   bool       `json:"cancelled"`
	// CreatedOnDemand is true for slots materialized by a booking request
	// rather than published by a clinic. On-demand slots are removed together
	// with their booking.
	CreatedOnDemand bool      `json:"createdOnDemand"`
	CreatedAt       time.Time `json:"createdAt"`
}

// Booking is a reservation against a slot.
type Booking struct {
	ID                    uuid.UUID          `json:"id"`
	SlotID                uuid.UUID          `json:"slotId"`
	UserID                *uuid.UUID         `json:"userId,omitempty"`
	CustomerName          string             `json:"customerName"`
	CustomerPhone         string             `json:"customerPhone"`
	CustomerEmail         string             `json:"customerEmail"`
	VerificationStatus    VerificationStatus `json:"verificationStatus"`
	VerificationCode      *string            `json:"-"`
	VerificationExpiresAt *time.Time         `json:"-"`
	CreatedAt             time.Time          `json:"createdAt"`
}

// Expired reports whether a pending booking's code window has lapsed.
func (b *Booking) Expired(now time.Time) bool {
	return b.VerificationStatus == VerificationPending &&
		b.VerificationExpiresAt != nil &&
		now.After(*b.VerificationExpiresAt)
}

// BookingWithSlot joins a booking to its slot for listings.
type BookingWithSlot struct {
	Booking
	Slot Slot `json:"slot"`
}

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// PublicBookingRequest is the body of the public booking endpoints.
type PublicBookingRequest struct {
	CustomerName  string `json:"customerName"`
	CustomerPhone string `json:"customerPhone"`
	CustomerEmail string `json:"customerEmail"`
	ClinicID      string `json:"clinicId"`
	// ClinicName is accepted for compatibility with older clients but the
	// clinic is always resolved by id.
	ClinicName string `json:"clinicName,omitempty"`
	StartTime  string `json:"startTime"`
	EndTime    string `json:"endTime"`
}

// Validate checks the request and returns the parsed fields.
func (r *PublicBookingRequest) Validate() (clinicID uuid.UUID, start, end time.Time, err error) {
	if strings.TrimSpace(r.CustomerName) == "" {
		return uuid.Nil, time.Time{}, time.Time{}, fieldError("customerName is required")
	}
	if strings.TrimSpace(r.CustomerPhone) == "" {
		return uuid.Nil, time.Time{}, time.Time{}, fieldError("customerPhone is required")
	}
	if !emailPattern.MatchString(r.CustomerEmail) {
		return uuid.Nil, time.Time{}, time.Time{}, fieldError("customerEmail is invalid")
	}
	clinicID, err = uuid.Parse(r.ClinicID)
	if err != nil {
		return uuid.Nil, time.Time{}, time.Time{}, fieldError("clinicId is invalid")
	}
	start, err = time.Parse(time.RFC3339, r.StartTime)
	if err != nil {
		return uuid.Nil, time.Time{}, time.Time{}, fieldError("startTime must be RFC3339")
	}
	end, err = time.Parse(time.RFC3339, r.EndTime)
	if err != nil {
		return uuid.Nil, time.Time{}, time.Time{}, fieldError("endTime must be RFC3339")
	}
	if !end.After(start) {
		return uuid.Nil, time.Time{}, time.Time{}, fieldError("endTime must be after startTime")
	}
	return clinicID, start, end, nil
}

// AuthenticatedBookingRequest is the body of POST /api/bookings. Either an
// existing slot id or a clinic id with a time window must be supplied.
type AuthenticatedBookingRequest struct {
	SlotID        string `json:"slotId,omitempty"`
	ClinicID      string `json:"clinicId,omitempty"`
	StartTime     string `json:"startTime,omitempty"`
	EndTime       string `json:"endTime,omitempty"`
	CustomerName  string `json:"customerName"`
	CustomerPhone string `json:"customerPhone"`
	CustomerEmail string `json:"customerEmail"`
}

// Validate checks the request. When slotID is non-nil the existing-slot path
// applies and the window fields are ignored.
func (r *AuthenticatedBookingRequest) Validate() (slotID *uuid.UUID, clinicID uuid.UUID, start, end time.Time, err error) {
	if strings.TrimSpace(r.CustomerName) == "" {
		return nil, uuid.Nil, time.Time{}, time.Time{}, fieldError("customerName is required")
	}
	if !emailPattern.MatchString(r.CustomerEmail) {
		return nil, uuid.Nil, time.Time{}, time.Time{}, fieldError("customerEmail is invalid")
	}
	if r.SlotID != "" {
		id, perr := uuid.Parse(r.SlotID)
		if perr != nil {
			return nil, uuid.Nil, time.Time{}, time.Time{}, fieldError("slotId is invalid")
		}
		return &id, uuid.Nil, time.Time{}, time.Time{}, nil
	}
	clinicID, err = uuid.Parse(r.ClinicID)
	if err != nil {
		return nil, uuid.Nil, time.Time{}, time.Time{}, fieldError("clinicId is invalid")
	}
	start, err = time.Parse(time.RFC3339, r.StartTime)
	if err != nil {
		return nil, uuid.Nil, time.Time{}, time.Time{}, fieldError("startTime must be RFC3339")
	}
	end, err = time.Parse(time.RFC3339, r.EndTime)
	if err != nil {
		return nil, uuid.Nil, time.Time{}, time.Time{}, fieldError("endTime must be RFC3339")
	}
	if !end.After(start) {
		return nil, uuid.Nil, time.Time{}, time.Time{}, fieldError("endTime must be after startTime")
	}
	return nil, clinicID, start, end, nil
}

// CreateSlotRequest is the body of POST /api/clinic/slots.
type CreateSlotRequest struct {
	StartTime   string `json:"startTime"`
	EndTime     string `json:"endTime"`
	MaxBookings int    `json:"maxBookings,omitempty"`
}

// Validate checks the request and returns the parsed window.
func (r *CreateSlotRequest) Validate() (start, end time.Time, err error) {
	start, err = time.Parse(time.RFC3339, r.StartTime)
	if err != nil {
		return time.Time{}, time.Time{}, fieldError("startTime must be RFC3339")
	}
	end, err = time.Parse(time.RFC3339, r.EndTime)
	if err != nil {
		return time.Time{}, time.Time{}, fieldError("endTime must be RFC3339")
	}
	if !end.After(start) {
		return time.Time{}, time.Time{}, fieldError("endTime must be after startTime")
	}
	if r.MaxBookings < 0 {
		return time.Time{}, time.Time{}, fieldError("maxBookings must not be negative")
	}
	return start, end, nil
}

// FieldError is a validation failure tied to a named field.
type FieldError struct{ msg string }

func (e *FieldError) Error() string { return e.msg }

func fieldError(msg string) error { return &FieldError{msg: msg} }
