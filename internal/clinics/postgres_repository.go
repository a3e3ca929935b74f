package clinics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresRepository stores clinics in the relational database.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository initializes a repo backed by pgxpool.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	if pool == nil {
		panic("clinics: pgx pool required")
	}
	return &PostgresRepository{pool: pool}
}

const clinicColumns = `id, name, address, phone, email, username, password_hash,
	doctors, doctor_name, doctor_specialization, archived, created_at, updated_at`

// Create inserts a new clinic row.
func (r *PostgresRepository) Create(ctx context.Context, clinic *Clinic) error {
	doctors, err := json.Marshal(clinic.Doctors)
	if err != nil {
		return fmt.Errorf("clinics: marshal doctors: %w", err)
	}
	query := `
		INSERT INTO clinics (id, name, address, phone, email, username, password_hash, doctors)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at
	`
	err = r.pool.QueryRow(ctx, query,
		clinic.ID,
		clinic.Name,
		clinic.Address,
		clinic.Phone,
		clinic.Email,
		clinic.Username,
		clinic.PasswordHash,
		doctors,
	).Scan(&clinic.CreatedAt, &clinic.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrUsernameTaken
		}
		return fmt.Errorf("clinics: insert failed: %w", err)
	}
	return nil
}

// GetByID fetches a clinic by primary key.
func (r *PostgresRepository) GetByID(ctx context.Context, id uuid.UUID) (*Clinic, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+clinicColumns+` FROM clinics WHERE id = $1`, id)
	return scanClinic(row)
}

// GetByUsername fetches a clinic by login username.
func (r *PostgresRepository) GetByUsername(ctx context.Context, username string) (*Clinic, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+clinicColumns+` FROM clinics WHERE username = $1`, username)
	return scanClinic(row)
}

// List returns clinics, optionally including archived tenants.
func (r *PostgresRepository) List(ctx context.Context, includeArchived bool) ([]*Clinic, error) {
	query := `SELECT ` + clinicColumns + ` FROM clinics`
	if !includeArchived {
		query += ` WHERE archived = FALSE`
	}
	query += ` ORDER BY created_at`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("clinics: select failed: %w", err)
	}
	defer rows.Close()

	var out []*Clinic
	for rows.Next() {
		clinic, err := scanClinic(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, clinic)
	}
	return out, rows.Err()
}

// Update replaces the mutable clinic columns.
func (r *PostgresRepository) Update(ctx context.Context, clinic *Clinic) error {
	doctors, err := json.Marshal(clinic.Doctors)
	if err != nil {
		return fmt.Errorf("clinics: marshal doctors: %w", err)
	}
	tag, err := r.pool.Exec(ctx, `
		UPDATE clinics
		SET name = $2, address = $3, phone = $4, email = $5, doctors = $6, updated_at = NOW()
		WHERE id = $1
	`, clinic.ID, clinic.Name, clinic.Address, clinic.Phone, clinic.Email, doctors)
	if err != nil {
		return fmt.Errorf("clinics: update failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrClinicNotFound
	}
	return nil
}

// SetArchived flips the soft-delete flag.
func (r *PostgresRepository) SetArchived(ctx context.Context, id uuid.UUID, archived bool) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE clinics SET archived = $2, updated_at = NOW() WHERE id = $1`, id, archived)
	if err != nil {
		return fmt.Errorf("clinics: archive failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrClinicNotFound
	}
	return nil
}

// UpdatePassword replaces the password hash.
func (r *PostgresRepository) UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE clinics SET password_hash = $2, updated_at = NOW() WHERE id = $1`, id, passwordHash)
	if err != nil {
		return fmt.Errorf("clinics: update password failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrClinicNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanClinic(row rowScanner) (*Clinic, error) {
	var clinic Clinic
	var doctors []byte
	err := row.Scan(
		&clinic.ID,
		&clinic.Name,
		&clinic.Address,
		&clinic.Phone,
		&clinic.Email,
		&clinic.Username,
		&clinic.PasswordHash,
		&doctors,
		&clinic.DoctorName,
		&clinic.DoctorSpecialization,
		&clinic.Archived,
		&clinic.CreatedAt,
		&clinic.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrClinicNotFound
		}
		return nil, fmt.Errorf("clinics: scan failed: %w", err)
	}
	if len(doctors) > 0 {
		if err := json.Unmarshal(doctors, &clinic.Doctors); err != nil {
			return nil, fmt.Errorf("clinics: unmarshal doctors: %w", err)
		}
	}
	return &clinic, nil
}
