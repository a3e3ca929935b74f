package bookings

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// CountPolicy selects which bookings occupy capacity during admission.
type CountPolicy int

const (
	// CountVerifiedOnly counts confirmed bookings (primary public flow).
	CountVerifiedOnly CountPolicy = iota
	// CountActive additionally counts pending bookings whose code has not
	// expired (stricter pre-check used before issuing a code).
	CountActive
)

// AdmitParams describes an atomic capacity admission: the repository counts
// occupying bookings for the clinic within ±CapacityWindow of StartTime and
// inserts the slot and booking only while the count is below MaxBookings.
type AdmitParams struct {
	ClinicID      uuid.UUID
	UserID        *uuid.UUID
	CustomerName  string
	CustomerPhone string
	CustomerEmail string
	StartTime     time.Time
	EndTime       time.Time
	MaxBookings   int
	Status        VerificationStatus
	Code          *string
	CodeExpiresAt *time.Time
	Policy        CountPolicy
}

// Repository defines the interface for slot and booking storage.
type Repository interface {
	AdmitBooking(ctx context.Context, params AdmitParams) (*Booking, *Slot, error)
	CountOccupied(ctx context.Context, clinicID uuid.UUID, start time.Time, policy CountPolicy) (int, error)

	GetBooking(ctx context.Context, id uuid.UUID) (*Booking, error)
	GetSlot(ctx context.Context, id uuid.UUID) (*Slot, error)

	ConfirmBooking(ctx context.Context, bookingID, clinicID uuid.UUID, start time.Time, max int) error
	UpdateCode(ctx context.Context, bookingID uuid.UUID, code string, expiresAt time.Time) error
	DeleteBookingCascade(ctx context.Context, bookingID uuid.UUID) error
	DeleteBooking(ctx context.Context, bookingID uuid.UUID) error

	CreateSlot(ctx context.Context, slot *Slot) error
	BookSlot(ctx context.Context, slotID uuid.UUID, booking *Booking) error
	ResetSlot(ctx context.Context, slotID uuid.UUID) error
	DeleteSlot(ctx context.Context, slotID uuid.UUID) error
	ListSlotsByClinic(ctx context.Context, clinicID uuid.UUID) ([]*Slot, error)

	ListByClinic(ctx context.Context, clinicID uuid.UUID) ([]*BookingWithSlot, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]*BookingWithSlot, error)
}

// InMemoryRepository is a Repository backed by process memory. The mutex
// serializes admission, so the capacity invariant holds without a database.
type InMemoryRepository struct {
	mu       sync.Mutex
	slots    map[uuid.UUID]*Slot
	bookings map[uuid.UUID]*Booking
	now      func() time.Time
}

// NewInMemoryRepository creates a new in-memory repository
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		slots:    make(map[uuid.UUID]*Slot),
		bookings: make(map[uuid.UUID]*Booking),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (r *InMemoryRepository) countOccupiedLocked(clinicID uuid.UUID, start time.Time, policy CountPolicy) int {
	lo := start.Add(-CapacityWindow)
	hi := start.Add(CapacityWindow)
	now := r.now()

	count := 0
	for _, b := range r.bookings {
		slot, ok := r.slots[b.SlotID]
		if !ok || slot.ClinicID != clinicID {
			continue
		}
		if slot.StartTime.Before(lo) || slot.StartTime.After(hi) {
			continue
		}
		switch b.VerificationStatus {
		case VerificationVerified:
			count++
		case VerificationPending:
			if policy == CountActive && b.VerificationExpiresAt != nil && now.Before(*b.VerificationExpiresAt) {
				count++
			}
		}
	}
	return count
}

// AdmitBooking performs the atomic count-then-insert admission.
func (r *InMemoryRepository) AdmitBooking(ctx context.Context, params AdmitParams) (*Booking, *Slot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	max := params.MaxBookings
	if max <= 0 {
		max = DefaultMaxBookings
	}
	if r.countOccupiedLocked(params.ClinicID, params.StartTime, params.Policy) >= max {
		return nil, nil, ErrCapacityExceeded
	}

	now := r.now()
	slot := &Slot{
		ID:              uuid.New(),
		ClinicID:        params.ClinicID,
		OwnerUserID:     params.UserID,
		StartTime:       params.StartTime,
		EndTime:         params.EndTime,
		MaxBookings:     max,
		IsBooked:        true,
		CreatedOnDemand: true,
		CreatedAt:       now,
	}
	booking := &Booking{
		ID:                    uuid.New(),
		SlotID:                slot.ID,
		UserID:                params.UserID,
		CustomerName:          params.CustomerName,
		CustomerPhone:         params.CustomerPhone,
		CustomerEmail:         params.CustomerEmail,
		VerificationStatus:    params.Status,
		VerificationCode:      params.Code,
		VerificationExpiresAt: params.CodeExpiresAt,
		CreatedAt:             now,
	}
	r.slots[slot.ID] = slot
	r.bookings[booking.ID] = booking

	slotCopy := *slot
	bookingCopy := *booking
	return &bookingCopy, &slotCopy, nil
}

// CountOccupied counts bookings occupying the clinic's window.
func (r *InMemoryRepository) CountOccupied(ctx context.Context, clinicID uuid.UUID, start time.Time, policy CountPolicy) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.countOccupiedLocked(clinicID, start, policy), nil
}

// GetBooking retrieves a booking by ID.
func (r *InMemoryRepository) GetBooking(ctx context.Context, id uuid.UUID) (*Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.bookings[id]
	if !ok {
		return nil, ErrBookingNotFound
	}
	cp := *b
	return &cp, nil
}

// GetSlot retrieves a slot by ID.
func (r *InMemoryRepository) GetSlot(ctx context.Context, id uuid.UUID) (*Slot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.slots[id]
	if !ok {
		return nil, ErrSlotNotFound
	}
	cp := *s
	return &cp, nil
}

// ConfirmBooking marks a booking verified and books its slot, but only while
// the clinic's verified count in the ±window is still below max. The count and
// the status flip happen under one lock so a pair of confirmations cannot both
// squeeze into the last opening.
func (r *InMemoryRepository) ConfirmBooking(ctx context.Context, bookingID, clinicID uuid.UUID, start time.Time, max int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if max <= 0 {
		max = DefaultMaxBookings
	}
	if r.countOccupiedLocked(clinicID, start, CountVerifiedOnly) >= max {
		return ErrCapacityExceeded
	}

	b, ok := r.bookings[bookingID]
	if !ok {
		return ErrBookingNotFound
	}
	b.VerificationStatus = VerificationVerified
	b.VerificationCode = nil
	b.VerificationExpiresAt = nil
	if slot, ok := r.slots[b.SlotID]; ok {
		slot.IsBooked = true
	}
	return nil
}

// UpdateCode replaces the pending booking's code and expiry.
func (r *InMemoryRepository) UpdateCode(ctx context.Context, bookingID uuid.UUID, code string, expiresAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.bookings[bookingID]
	if !ok {
		return ErrBookingNotFound
	}
	b.VerificationCode = &code
	b.VerificationExpiresAt = &expiresAt
	return nil
}

// DeleteBookingCascade removes a booking together with its slot.
func (r *InMemoryRepository) DeleteBookingCascade(ctx context.Context, bookingID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.bookings[bookingID]
	if !ok {
		return ErrBookingNotFound
	}
	delete(r.slots, b.SlotID)
	delete(r.bookings, bookingID)
	return nil
}

// DeleteBooking removes only the booking row.
func (r *InMemoryRepository) DeleteBooking(ctx context.Context, bookingID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.bookings[bookingID]; !ok {
		return ErrBookingNotFound
	}
	delete(r.bookings, bookingID)
	return nil
}

// CreateSlot stores a clinic-published slot.
func (r *InMemoryRepository) CreateSlot(ctx context.Context, slot *Slot) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if slot.ID == uuid.Nil {
		slot.ID = uuid.New()
	}
	if slot.MaxBookings <= 0 {
		slot.MaxBookings = DefaultMaxBookings
	}
	if slot.CreatedAt.IsZero() {
		slot.CreatedAt = r.now()
	}
	cp := *slot
	r.slots[slot.ID] = &cp
	return nil
}

// BookSlot attaches a booking to an existing unbooked slot.
func (r *InMemoryRepository) BookSlot(ctx context.Context, slotID uuid.UUID, booking *Booking) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	slot, ok := r.slots[slotID]
	if !ok {
		return ErrSlotNotFound
	}
	if slot.IsBooked || slot.Cancelled {
		return ErrSlotAlreadyBooked
	}
	slot.IsBooked = true

	if booking.ID == uuid.Nil {
		booking.ID = uuid.New()
	}
	booking.SlotID = slotID
	if booking.CreatedAt.IsZero() {
		booking.CreatedAt = r.now()
	}
	cp := *booking
	r.bookings[booking.ID] = &cp
	return nil
}

// ResetSlot clears the booked flag.
func (r *InMemoryRepository) ResetSlot(ctx context.Context, slotID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	slot, ok := r.slots[slotID]
	if !ok {
		return ErrSlotNotFound
	}
	slot.IsBooked = false
	return nil
}

// DeleteSlot removes a slot and any bookings referencing it.
func (r *InMemoryRepository) DeleteSlot(ctx context.Context, slotID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.slots[slotID]; !ok {
		return ErrSlotNotFound
	}
	delete(r.slots, slotID)
	for id, b := range r.bookings {
		if b.SlotID == slotID {
			delete(r.bookings, id)
		}
	}
	return nil
}

// ListSlotsByClinic returns the clinic's slots ordered by start time.
func (r *InMemoryRepository) ListSlotsByClinic(ctx context.Context, clinicID uuid.UUID) ([]*Slot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*Slot
	for _, s := range r.slots {
		if s.ClinicID == clinicID {
			cp := *s
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out, nil
}

// ListByClinic returns the clinic's bookings joined to their slots.
func (r *InMemoryRepository) ListByClinic(ctx context.Context, clinicID uuid.UUID) ([]*BookingWithSlot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*BookingWithSlot
	for _, b := range r.bookings {
		slot, ok := r.slots[b.SlotID]
		if !ok || slot.ClinicID != clinicID {
			continue
		}
		out = append(out, &BookingWithSlot{Booking: *b, Slot: *slot})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Slot.StartTime.Before(out[j].Slot.StartTime) })
	return out, nil
}

// ListByUser returns the user's bookings joined to their slots.
func (r *InMemoryRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]*BookingWithSlot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*BookingWithSlot
	for _, b := range r.bookings {
		if b.UserID == nil || *b.UserID != userID {
			continue
		}
		slot, ok := r.slots[b.SlotID]
		if !ok {
			continue
		}
		out = append(out, &BookingWithSlot{Booking: *b, Slot: *slot})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Slot.StartTime.Before(out[j].Slot.StartTime) })
	return out, nil
}
