package clinics

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Repository defines the interface for clinic storage
type Repository interface {
	Create(ctx context.Context, clinic *Clinic) error
	GetByID(ctx context.Context, id uuid.UUID) (*Clinic, error)
	GetByUsername(ctx context.Context, username string) (*Clinic, error)
	List(ctx context.Context, includeArchived bool) ([]*Clinic, error)
	Update(ctx context.Context, clinic *Clinic) error
	SetArchived(ctx context.Context, id uuid.UUID, archived bool) error
	UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string) error
}

// InMemoryRepository is a Repository backed by process memory, used in tests
// and when no database is configured.
type InMemoryRepository struct {
	mu      sync.RWMutex
	clinics map[uuid.UUID]*Clinic
}

// NewInMemoryRepository creates a new in-memory repository
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{clinics: make(map[uuid.UUID]*Clinic)}
}

// Create stores a new clinic.
func (r *InMemoryRepository) Create(ctx context.Context, clinic *Clinic) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.clinics {
		if existing.Username == clinic.Username {
			return ErrUsernameTaken
		}
	}
	cp := *clinic
	r.clinics[clinic.ID] = &cp
	return nil
}

// GetByID retrieves a clinic by ID.
func (r *InMemoryRepository) GetByID(ctx context.Context, id uuid.UUID) (*Clinic, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	clinic, ok := r.clinics[id]
	if !ok {
		return nil, ErrClinicNotFound
	}
	cp := *clinic
	return &cp, nil
}

// GetByUsername retrieves a clinic by login username.
func (r *InMemoryRepository) GetByUsername(ctx context.Context, username string) (*Clinic, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, clinic := range r.clinics {
		if clinic.Username == username {
			cp := *clinic
			return &cp, nil
		}
	}
	return nil, ErrClinicNotFound
}

// List returns clinics ordered by creation time.
func (r *InMemoryRepository) List(ctx context.Context, includeArchived bool) ([]*Clinic, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Clinic, 0, len(r.clinics))
	for _, clinic := range r.clinics {
		if clinic.Archived && !includeArchived {
			continue
		}
		cp := *clinic
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// Update replaces the stored clinic.
func (r *InMemoryRepository) Update(ctx context.Context, clinic *Clinic) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.clinics[clinic.ID]; !ok {
		return ErrClinicNotFound
	}
	cp := *clinic
	r.clinics[clinic.ID] = &cp
	return nil
}

// SetArchived flips the soft-delete flag.
func (r *InMemoryRepository) SetArchived(ctx context.Context, id uuid.UUID, archived bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	clinic, ok := r.clinics[id]
	if !ok {
		return ErrClinicNotFound
	}
	clinic.Archived = archived
	clinic.UpdatedAt = time.Now().UTC()
	return nil
}

// UpdatePassword replaces the stored password hash.
func (r *InMemoryRepository) UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	clinic, ok := r.clinics[id]
	if !ok {
		return ErrClinicNotFound
	}
	clinic.PasswordHash = passwordHash
	clinic.UpdatedAt = time.Now().UTC()
	return nil
}
