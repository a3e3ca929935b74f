package notifications

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Repository defines storage operations for notifications.
type Repository interface {
	Create(ctx context.Context, n *Notification) error
	ListByUser(ctx context.Context, userID uuid.UUID) ([]*Notification, error)
	MarkRead(ctx context.Context, id, userID uuid.UUID) error
}

// InMemoryRepository is a thread-safe in-memory implementation of Repository.
type InMemoryRepository struct {
	mu    sync.RWMutex
	items map[uuid.UUID]*Notification
}

// NewInMemoryRepository creates a new in-memory notification repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{items: make(map[uuid.UUID]*Notification)}
}

// Create inserts a new notification.
func (r *InMemoryRepository) Create(_ context.Context, n *Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	clone := *n
	r.items[n.ID] = &clone
	return nil
}

// ListByUser returns the user's notifications, newest first.
func (r *InMemoryRepository) ListByUser(_ context.Context, userID uuid.UUID) ([]*Notification, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Notification, 0)
	for _, n := range r.items {
		if n.UserID == userID {
			clone := *n
			out = append(out, &clone)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// MarkRead flags a notification as read. The user must own it.
func (r *InMemoryRepository) MarkRead(_ context.Context, id, userID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	n, ok := r.items[id]
	if !ok || n.UserID != userID {
		return ErrNotificationNotFound
	}
	n.Read = true
	return nil
}
