package notifications

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/careslot/careslot/pkg/logging"
)

// Service creates notifications on behalf of other packages.
type Service struct {
	repo   Repository
	logger *logging.Logger
}

// NewService creates a notifications service.
func NewService(repo Repository, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{repo: repo, logger: logger}
}

// Notify records an in-app notification for the user.
func (s *Service) Notify(ctx context.Context, userID uuid.UUID, message string) error {
	n := &Notification{UserID: userID, Message: message}
	if err := s.repo.Create(ctx, n); err != nil {
		return fmt.Errorf("notifications: notify failed: %w", err)
	}
	return nil
}
