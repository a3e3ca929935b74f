package notify

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captureSender struct {
	sent []EmailMessage
	err  error
}

func (c *captureSender) Send(_ context.Context, msg EmailMessage) error {
	c.sent = append(c.sent, msg)
	return c.err
}

func TestSendVerificationCode(t *testing.T) {
	sender := &captureSender{}
	mailer := NewBookingMailer(sender, nil)

	expires := time.Date(2026, 3, 1, 12, 10, 0, 0, time.UTC)
	mailer.SendVerificationCode(context.Background(), "jane@example.com", "Jane", "482913", expires)

	require.Len(t, sender.sent, 1)
	msg := sender.sent[0]
	assert.Equal(t, "jane@example.com", msg.To)
	assert.Contains(t, msg.Body, "482913")
	assert.Contains(t, msg.Subject, "verification code")
}

func TestSendBookingConfirmation(t *testing.T) {
	sender := &captureSender{}
	mailer := NewBookingMailer(sender, nil)

	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	mailer.SendBookingConfirmation(context.Background(), "jane@example.com", "Jane", "Lakeside Clinic", start)

	require.Len(t, sender.sent, 1)
	assert.True(t, strings.Contains(sender.sent[0].Body, "Lakeside Clinic"))
}

func TestSendIsBestEffort(t *testing.T) {
	sender := &captureSender{err: errors.New("smtp down")}
	mailer := NewBookingMailer(sender, nil)

	// Must not panic or propagate the error.
	mailer.SendBookingCancellation(context.Background(), "jane@example.com", "Jane", "Lakeside Clinic", time.Now())
	require.Len(t, sender.sent, 1)
}

func TestNilMailerIsSafe(t *testing.T) {
	var mailer *BookingMailer
	mailer.SendBookingConfirmation(context.Background(), "a@b.c", "A", "Clinic", time.Now())
}

func TestStubSenderNeverFails(t *testing.T) {
	stub := NewStubEmailSender(nil)
	err := stub.Send(context.Background(), EmailMessage{To: "x@y.z", Subject: "hi"})
	assert.NoError(t, err)
}
