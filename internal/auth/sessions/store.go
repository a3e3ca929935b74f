// Package sessions provides the opaque-token session store backing clinic,
// patient and owner logins.
package sessions

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Role tags the kind of actor a session belongs to.
type Role string

const (
	RolePatient   Role = "patient"
	RoleOwner     Role = "owner"
	RoleSuperuser Role = "superuser"
	RoleClinic    Role = "clinic"
	RoleDoctor    Role = "doctor"
)

// Principal identifies the acting account behind a session token.
type Principal struct {
	Subject  string `json:"subject"`
	Role     Role   `json:"role"`
	ClinicID string `json:"clinic_id,omitempty"`
}

// ErrSessionNotFound is returned for unknown or expired tokens.
var ErrSessionNotFound = errors.New("session not found")

const keyPrefix = "careslot:session:"

// Store persists sessions in redis with a TTL.
type Store struct {
	client *redis.Client
	ttl    time.Duration
}

// NewStore creates a session store. ttl bounds session lifetime.
func NewStore(client *redis.Client, ttl time.Duration) *Store {
	if client == nil {
		panic("sessions: redis client required")
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Store{client: client, ttl: ttl}
}

// Create stores the principal under a fresh opaque token.
func (s *Store) Create(ctx context.Context, p Principal) (string, error) {
	token, err := newToken()
	if err != nil {
		return "", err
	}
	payload, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("sessions: marshal principal: %w", err)
	}
	if err := s.client.Set(ctx, keyPrefix+token, payload, s.ttl).Err(); err != nil {
		return "", fmt.Errorf("sessions: store failed: %w", err)
	}
	return token, nil
}

// Get resolves a token to its principal, refreshing the TTL.
func (s *Store) Get(ctx context.Context, token string) (Principal, error) {
	payload, err := s.client.Get(ctx, keyPrefix+token).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Principal{}, ErrSessionNotFound
		}
		return Principal{}, fmt.Errorf("sessions: load failed: %w", err)
	}
	var p Principal
	if err := json.Unmarshal(payload, &p); err != nil {
		return Principal{}, fmt.Errorf("sessions: unmarshal principal: %w", err)
	}
	// Sliding expiry: active sessions stay alive.
	_ = s.client.Expire(ctx, keyPrefix+token, s.ttl).Err()
	return p, nil
}

// Destroy removes a session token. Unknown tokens are not an error.
func (s *Store) Destroy(ctx context.Context, token string) error {
	if err := s.client.Del(ctx, keyPrefix+token).Err(); err != nil {
		return fmt.Errorf("sessions: destroy failed: %w", err)
	}
	return nil
}

func newToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("sessions: token generation failed: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
