package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/careslot/careslot/pkg/logging"
)

// BookingMailer composes and sends the booking lifecycle emails. Sends are
// best effort: failures are logged and never surfaced to the booking flow.
type BookingMailer struct {
	sender EmailSender
	logger *logging.Logger
}

// NewBookingMailer creates a mailer backed by the given sender.
func NewBookingMailer(sender EmailSender, logger *logging.Logger) *BookingMailer {
	if logger == nil {
		logger = logging.Default()
	}
	return &BookingMailer{sender: sender, logger: logger}
}

func (m *BookingMailer) send(ctx context.Context, msg EmailMessage) {
	if m == nil || m.sender == nil {
		return
	}
	if err := m.sender.Send(ctx, msg); err != nil {
		m.logger.Error("booking email send failed", "error", err, "to", msg.To, "subject", msg.Subject)
	}
}

// SendVerificationCode emails the one-time code for a pending booking.
func (m *BookingMailer) SendVerificationCode(ctx context.Context, to, name, code string, expiresAt time.Time) {
	body := fmt.Sprintf(
		"Hello %s,\n\nYour CareSlot verification code is: %s\n\nIt expires at %s. If you did not request a booking, you can ignore this email.\n",
		name, code, expiresAt.Format(time.RFC1123),
	)
	m.send(ctx, EmailMessage{
		To:      to,
		ToName:  name,
		Subject: "Your CareSlot verification code",
		Body:    body,
	})
}

// SendBookingConfirmation emails the customer once a booking is confirmed.
func (m *BookingMailer) SendBookingConfirmation(ctx context.Context, to, name, clinicName string, start time.Time) {
	body := fmt.Sprintf(
		"Hello %s,\n\nYour appointment at %s on %s is confirmed.\n\nSee you then,\nCareSlot\n",
		name, clinicName, start.Format(time.RFC1123),
	)
	m.send(ctx, EmailMessage{
		To:      to,
		ToName:  name,
		Subject: "Your appointment is confirmed",
		Body:    body,
	})
}

// SendBookingCancellation emails the customer when a clinic cancels.
func (m *BookingMailer) SendBookingCancellation(ctx context.Context, to, name, clinicName string, start time.Time) {
	body := fmt.Sprintf(
		"Hello %s,\n\nYour appointment at %s on %s has been cancelled by the clinic.\n\nPlease book a new time if needed.\nCareSlot\n",
		name, clinicName, start.Format(time.RFC1123),
	)
	m.send(ctx, EmailMessage{
		To:      to,
		ToName:  name,
		Subject: "Your appointment was cancelled",
		Body:    body,
	})
}
