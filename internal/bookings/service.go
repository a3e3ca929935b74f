package bookings

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/careslot/careslot/internal/clinics"
	"github.com/careslot/careslot/internal/observability/metrics"
	"github.com/careslot/careslot/pkg/logging"
)

// ClinicDirectory resolves clinic tenants. Archived clinics are treated as
// missing on the booking paths.
type ClinicDirectory interface {
	GetByID(ctx context.Context, id uuid.UUID) (*clinics.Clinic, error)
}

// Notifier records in-app notifications for users.
type Notifier interface {
	Notify(ctx context.Context, userID uuid.UUID, message string) error
}

// Mailer sends the booking lifecycle emails. All sends are best effort.
type Mailer interface {
	SendVerificationCode(ctx context.Context, to, name, code string, expiresAt time.Time)
	SendBookingConfirmation(ctx context.Context, to, name, clinicName string, start time.Time)
	SendBookingCancellation(ctx context.Context, to, name, clinicName string, start time.Time)
}

// ServiceConfig tunes the booking service.
type ServiceConfig struct {
	MaxBookings int
	CodeTTL     time.Duration
}

// Service implements the booking lifecycle.
type Service struct {
	repo     Repository
	clinics  ClinicDirectory
	notifier Notifier
	mailer   Mailer
	metrics  *metrics.BookingMetrics
	logger   *logging.Logger
	tracer   trace.Tracer

	maxBookings int
	codeTTL     time.Duration

	now     func() time.Time
	genCode func() (string, error)
}

// NewService wires a booking service. notifier, mailer and m may be nil.
func NewService(repo Repository, dir ClinicDirectory, notifier Notifier, mailer Mailer, m *metrics.BookingMetrics, cfg ServiceConfig, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.MaxBookings <= 0 {
		cfg.MaxBookings = DefaultMaxBookings
	}
	if cfg.CodeTTL <= 0 {
		cfg.CodeTTL = 10 * time.Minute
	}
	return &Service{
		repo:        repo,
		clinics:     dir,
		notifier:    notifier,
		mailer:      mailer,
		metrics:     m,
		logger:      logger,
		tracer:      otel.Tracer("careslot/bookings"),
		maxBookings: cfg.MaxBookings,
		codeTTL:     cfg.CodeTTL,
		now:         func() time.Time { return time.Now().UTC() },
		genCode:     generateCode,
	}
}

func generateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "", fmt.Errorf("bookings: generate code: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

// resolveClinic returns the clinic if it exists and is not archived.
func (s *Service) resolveClinic(ctx context.Context, id uuid.UUID) (*clinics.Clinic, error) {
	clinic, err := s.clinics.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if clinic.Archived {
		return nil, clinics.ErrClinicNotFound
	}
	return clinic, nil
}

// CreatePublic books an appointment for an anonymous customer. The booking is
// confirmed immediately; admission is atomic against the capacity ceiling.
func (s *Service) CreatePublic(ctx context.Context, req PublicBookingRequest) (*Booking, error) {
	ctx, span := s.tracer.Start(ctx, "bookings.CreatePublic")
	defer span.End()

	clinicID, start, end, err := req.Validate()
	if err != nil {
		return nil, err
	}
	clinic, err := s.resolveClinic(ctx, clinicID)
	if err != nil {
		return nil, err
	}

	booking, slot, err := s.repo.AdmitBooking(ctx, AdmitParams{
		ClinicID:      clinicID,
		CustomerName:  req.CustomerName,
		CustomerPhone: req.CustomerPhone,
		CustomerEmail: req.CustomerEmail,
		StartTime:     start,
		EndTime:       end,
		MaxBookings:   s.maxBookings,
		Status:        VerificationVerified,
		Policy:        CountVerifiedOnly,
	})
	if err != nil {
		if errors.Is(err, ErrCapacityExceeded) {
			s.metrics.ObserveCapacityRejected()
		}
		return nil, err
	}

	s.metrics.ObserveCreated("public")
	s.logger.Info("public booking created",
		"booking_id", booking.ID, "clinic_id", clinicID, "start", slot.StartTime)
	if s.mailer != nil {
		s.mailer.SendBookingConfirmation(ctx, booking.CustomerEmail, booking.CustomerName, clinic.Name, slot.StartTime)
	}
	return booking, nil
}

// CreatePending starts the one-time-code flow: the booking is created pending
// and a 6-digit code is emailed to the customer. Pending bookings with live
// codes occupy capacity during admission so a burst of requests cannot
// oversubscribe the window.
func (s *Service) CreatePending(ctx context.Context, req PublicBookingRequest) (*Booking, error) {
	ctx, span := s.tracer.Start(ctx, "bookings.CreatePending")
	defer span.End()

	clinicID, start, end, err := req.Validate()
	if err != nil {
		return nil, err
	}
	if _, err := s.resolveClinic(ctx, clinicID); err != nil {
		return nil, err
	}

	code, err := s.genCode()
	if err != nil {
		return nil, err
	}
	expiresAt := s.now().Add(s.codeTTL)

	booking, _, err := s.repo.AdmitBooking(ctx, AdmitParams{
		ClinicID:      clinicID,
		CustomerName:  req.CustomerName,
		CustomerPhone: req.CustomerPhone,
		CustomerEmail: req.CustomerEmail,
		StartTime:     start,
		EndTime:       end,
		MaxBookings:   s.maxBookings,
		Status:        VerificationPending,
		Code:          &code,
		CodeExpiresAt: &expiresAt,
		Policy:        CountActive,
	})
	if err != nil {
		if errors.Is(err, ErrCapacityExceeded) {
			s.metrics.ObserveCapacityRejected()
		}
		return nil, err
	}

	s.metrics.ObserveCreated("pending")
	s.logger.Info("pending booking created", "booking_id", booking.ID, "clinic_id", clinicID)
	if s.mailer != nil {
		s.mailer.SendVerificationCode(ctx, booking.CustomerEmail, booking.CustomerName, code, expiresAt)
	}
	return booking, nil
}

// Verify confirms a pending booking with its one-time code. An expired code
// removes the booking and its slot; the customer must book again. Capacity is
// re-checked at verification time because verified bookings may have filled
// the window since the code was issued.
func (s *Service) Verify(ctx context.Context, bookingID uuid.UUID, code string) error {
	ctx, span := s.tracer.Start(ctx, "bookings.Verify")
	defer span.End()

	booking, err := s.repo.GetBooking(ctx, bookingID)
	if err != nil {
		return err
	}
	if booking.VerificationStatus == VerificationVerified {
		return ErrAlreadyVerified
	}
	if booking.Expired(s.now()) {
		if err := s.repo.DeleteBookingCascade(ctx, bookingID); err != nil {
			s.logger.Error("expired booking cleanup failed", "error", err, "booking_id", bookingID)
		}
		s.metrics.ObserveVerification("expired")
		return ErrCodeExpired
	}
	if booking.VerificationCode == nil || *booking.VerificationCode != code {
		s.metrics.ObserveVerification("mismatch")
		return ErrCodeMismatch
	}

	slot, err := s.repo.GetSlot(ctx, booking.SlotID)
	if err != nil {
		return err
	}
	if err := s.repo.ConfirmBooking(ctx, bookingID, slot.ClinicID, slot.StartTime, s.maxBookings); err != nil {
		if errors.Is(err, ErrCapacityExceeded) {
			if derr := s.repo.DeleteBookingCascade(ctx, bookingID); derr != nil {
				s.logger.Error("full-window booking cleanup failed", "error", derr, "booking_id", bookingID)
			}
			s.metrics.ObserveVerification("capacity")
			s.metrics.ObserveCapacityRejected()
		}
		return err
	}
	s.metrics.ObserveVerification("success")
	s.logger.Info("booking verified", "booking_id", bookingID, "clinic_id", slot.ClinicID)

	if s.mailer != nil {
		clinicName := ""
		if clinic, cerr := s.clinics.GetByID(ctx, slot.ClinicID); cerr == nil {
			clinicName = clinic.Name
		}
		s.mailer.SendBookingConfirmation(ctx, booking.CustomerEmail, booking.CustomerName, clinicName, slot.StartTime)
	}
	return nil
}

// Resend issues a fresh code for a pending booking. If the previous code has
// already expired the booking is removed and the customer must book again.
func (s *Service) Resend(ctx context.Context, bookingID uuid.UUID) error {
	ctx, span := s.tracer.Start(ctx, "bookings.Resend")
	defer span.End()

	booking, err := s.repo.GetBooking(ctx, bookingID)
	if err != nil {
		return err
	}
	if booking.VerificationStatus == VerificationVerified {
		return ErrAlreadyVerified
	}
	if booking.Expired(s.now()) {
		if err := s.repo.DeleteBookingCascade(ctx, bookingID); err != nil {
			s.logger.Error("expired booking cleanup failed", "error", err, "booking_id", bookingID)
		}
		return ErrCodeExpired
	}

	code, err := s.genCode()
	if err != nil {
		return err
	}
	expiresAt := s.now().Add(s.codeTTL)
	if err := s.repo.UpdateCode(ctx, bookingID, code, expiresAt); err != nil {
		return err
	}
	s.logger.Info("verification code resent", "booking_id", bookingID)
	if s.mailer != nil {
		s.mailer.SendVerificationCode(ctx, booking.CustomerEmail, booking.CustomerName, code, expiresAt)
	}
	return nil
}

// CreateAuthenticated books for a signed-in user, either claiming an existing
// published slot or materializing an on-demand slot for a clinic and window.
// In-app notifications go to the booking user and, for claimed slots, the
// slot's owner.
func (s *Service) CreateAuthenticated(ctx context.Context, userID uuid.UUID, req AuthenticatedBookingRequest) (*Booking, error) {
	ctx, span := s.tracer.Start(ctx, "bookings.CreateAuthenticated")
	defer span.End()

	slotID, clinicID, start, end, err := req.Validate()
	if err != nil {
		return nil, err
	}

	var booking *Booking
	var slot *Slot
	if slotID != nil {
		slot, err = s.repo.GetSlot(ctx, *slotID)
		if err != nil {
			return nil, err
		}
		if _, err = s.resolveClinic(ctx, slot.ClinicID); err != nil {
			return nil, err
		}
		booking = &Booking{
			UserID:             &userID,
			CustomerName:       req.CustomerName,
			CustomerPhone:      req.CustomerPhone,
			CustomerEmail:      req.CustomerEmail,
			VerificationStatus: VerificationVerified,
		}
		if err = s.repo.BookSlot(ctx, *slotID, booking); err != nil {
			return nil, err
		}
	} else {
		if _, err = s.resolveClinic(ctx, clinicID); err != nil {
			return nil, err
		}
		booking, slot, err = s.repo.AdmitBooking(ctx, AdmitParams{
			ClinicID:      clinicID,
			UserID:        &userID,
			CustomerName:  req.CustomerName,
			CustomerPhone: req.CustomerPhone,
			CustomerEmail: req.CustomerEmail,
			StartTime:     start,
			EndTime:       end,
			MaxBookings:   s.maxBookings,
			Status:        VerificationVerified,
			Policy:        CountVerifiedOnly,
		})
		if err != nil {
			if errors.Is(err, ErrCapacityExceeded) {
				s.metrics.ObserveCapacityRejected()
			}
			return nil, err
		}
	}

	s.metrics.ObserveCreated("authenticated")
	s.logger.Info("authenticated booking created",
		"booking_id", booking.ID, "user_id", userID, "slot_id", booking.SlotID)

	if s.notifier != nil {
		msg := fmt.Sprintf("Your appointment on %s is confirmed.", slot.StartTime.Format(time.RFC1123))
		if err := s.notifier.Notify(ctx, userID, msg); err != nil {
			s.logger.Error("booking notification failed", "error", err, "user_id", userID)
		}
		if slot.OwnerUserID != nil && *slot.OwnerUserID != userID {
			ownerMsg := fmt.Sprintf("Your slot on %s was booked.", slot.StartTime.Format(time.RFC1123))
			if err := s.notifier.Notify(ctx, *slot.OwnerUserID, ownerMsg); err != nil {
				s.logger.Error("owner notification failed", "error", err, "user_id", *slot.OwnerUserID)
			}
		}
	}
	return booking, nil
}

// Cancel removes a booking on behalf of the clinic that owns its slot.
// On-demand slots are deleted with the booking; published slots are reopened.
func (s *Service) Cancel(ctx context.Context, clinicID, bookingID uuid.UUID) error {
	ctx, span := s.tracer.Start(ctx, "bookings.Cancel")
	defer span.End()

	booking, err := s.repo.GetBooking(ctx, bookingID)
	if err != nil {
		return err
	}
	slot, err := s.repo.GetSlot(ctx, booking.SlotID)
	if err != nil {
		return err
	}
	if slot.ClinicID != clinicID {
		return ErrNotClinicBooking
	}

	if err := s.repo.DeleteBooking(ctx, bookingID); err != nil {
		return err
	}
	if slot.CreatedOnDemand {
		if err := s.repo.DeleteSlot(ctx, slot.ID); err != nil && !errors.Is(err, ErrSlotNotFound) {
			s.logger.Error("slot cleanup failed", "error", err, "slot_id", slot.ID)
		}
	} else {
		if err := s.repo.ResetSlot(ctx, slot.ID); err != nil {
			s.logger.Error("slot reset failed", "error", err, "slot_id", slot.ID)
		}
	}

	s.metrics.ObserveCancelled()
	s.logger.Info("booking cancelled", "booking_id", bookingID, "clinic_id", clinicID)

	if s.mailer != nil {
		clinicName := ""
		if clinic, cerr := s.clinics.GetByID(ctx, clinicID); cerr == nil {
			clinicName = clinic.Name
		}
		s.mailer.SendBookingCancellation(ctx, booking.CustomerEmail, booking.CustomerName, clinicName, slot.StartTime)
	}
	return nil
}

// PublishSlot creates a bookable slot for the clinic.
func (s *Service) PublishSlot(ctx context.Context, clinicID uuid.UUID, req CreateSlotRequest) (*Slot, error) {
	start, end, err := req.Validate()
	if err != nil {
		return nil, err
	}
	slot := &Slot{
		ClinicID:    clinicID,
		StartTime:   start,
		EndTime:     end,
		MaxBookings: req.MaxBookings,
	}
	if err := s.repo.CreateSlot(ctx, slot); err != nil {
		return nil, err
	}
	s.logger.Info("slot published", "slot_id", slot.ID, "clinic_id", clinicID, "start", start)
	return slot, nil
}

// ListSlots returns the clinic's slots.
func (s *Service) ListSlots(ctx context.Context, clinicID uuid.UUID) ([]*Slot, error) {
	return s.repo.ListSlotsByClinic(ctx, clinicID)
}

// RemoveSlot deletes a clinic's own slot together with any bookings on it.
func (s *Service) RemoveSlot(ctx context.Context, clinicID, slotID uuid.UUID) error {
	slot, err := s.repo.GetSlot(ctx, slotID)
	if err != nil {
		return err
	}
	if slot.ClinicID != clinicID {
		return ErrNotClinicBooking
	}
	return s.repo.DeleteSlot(ctx, slotID)
}

// ListClinicBookings returns the clinic's bookings with their slots.
func (s *Service) ListClinicBookings(ctx context.Context, clinicID uuid.UUID) ([]*BookingWithSlot, error) {
	return s.repo.ListByClinic(ctx, clinicID)
}

// ListUserBookings returns the user's bookings with their slots.
func (s *Service) ListUserBookings(ctx context.Context, userID uuid.UUID) ([]*BookingWithSlot, error) {
	return s.repo.ListByUser(ctx, userID)
}
