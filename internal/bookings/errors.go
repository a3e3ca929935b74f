package bookings

import "errors"

var (
	// ErrSlotNotFound is returned when a slot does not exist.
	ErrSlotNotFound = errors.New("slot not found")

	// ErrBookingNotFound is returned when a booking does not exist.
	ErrBookingNotFound = errors.New("booking not found")

	// ErrCapacityExceeded is returned when the clinic's time window is full.
	ErrCapacityExceeded = errors.New("no capacity left for this time slot")

	// ErrSlotAlreadyBooked is returned when booking a taken slot.
	ErrSlotAlreadyBooked = errors.New("slot is already booked")

	// ErrAlreadyVerified is returned for OTP operations on confirmed bookings.
	ErrAlreadyVerified = errors.New("booking is already verified")

	// ErrCodeMismatch is returned when the supplied code is wrong.
	ErrCodeMismatch = errors.New("verification code does not match")

	// ErrCodeExpired is returned when the code window has lapsed. The booking
	// and its slot are removed; the caller must book again.
	ErrCodeExpired = errors.New("verification code expired, please book again")

	// ErrNotClinicBooking is returned when a clinic cancels a booking it does
	// not own.
	ErrNotClinicBooking = errors.New("booking does not belong to this clinic")
)
