package notifications

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Notification is an in-app message shown to a user.
type Notification struct {
	ID        uuid.UUID `json:"id"`
	UserID    uuid.UUID `json:"userId"`
	Message   string    `json:"message"`
	Read      bool      `json:"read"`
	CreatedAt time.Time `json:"createdAt"`
}

var (
	// ErrNotificationNotFound indicates the notification does not exist or
	// belongs to another user.
	ErrNotificationNotFound = errors.New("notification not found")
)
