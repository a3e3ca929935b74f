package notifications

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresRepository stores notifications in the relational database.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository initializes a repo backed by pgxpool.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	if pool == nil {
		panic("notifications: pgx pool required")
	}
	return &PostgresRepository{pool: pool}
}

// Create inserts a new notification row.
func (r *PostgresRepository) Create(ctx context.Context, n *Notification) error {
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	err := r.pool.QueryRow(ctx, `
		INSERT INTO notifications (id, user_id, message)
		VALUES ($1, $2, $3)
		RETURNING created_at
	`, n.ID, n.UserID, n.Message).Scan(&n.CreatedAt)
	if err != nil {
		return fmt.Errorf("notifications: insert failed: %w", err)
	}
	return nil
}

// ListByUser returns the user's notifications, newest first.
func (r *PostgresRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]*Notification, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, user_id, message, read, created_at
		FROM notifications
		WHERE user_id = $1
		ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("notifications: select failed: %w", err)
	}
	defer rows.Close()

	out := make([]*Notification, 0)
	for rows.Next() {
		var n Notification
		if err := rows.Scan(&n.ID, &n.UserID, &n.Message, &n.Read, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("notifications: scan failed: %w", err)
		}
		out = append(out, &n)
	}
	return out, rows.Err()
}

// MarkRead flags a notification as read. The user must own it.
func (r *PostgresRepository) MarkRead(ctx context.Context, id, userID uuid.UUID) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE notifications SET read = TRUE WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("notifications: update failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotificationNotFound
	}
	return nil
}
