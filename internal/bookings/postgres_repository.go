package bookings

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// PgxPool is the subset of pgxpool.Pool the repository needs. pgxmock
// satisfies it in tests.
type PgxPool interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresRepository stores slots and bookings in the relational database.
type PostgresRepository struct {
	pool PgxPool
}

// NewPostgresRepository initializes a repo backed by pgxpool.
func NewPostgresRepository(pool PgxPool) *PostgresRepository {
	if pool == nil {
		panic("bookings: pgx pool required")
	}
	return &PostgresRepository{pool: pool}
}

const countOccupiedSQL = `
		SELECT COUNT(*)
		FROM bookings b
		JOIN slots s ON s.id = b.slot_id
		WHERE s.clinic_id = $1
		  AND s.start_time >= $2 AND s.start_time <= $3
		  AND (b.verification_status = 'verified'
		       OR ($4 AND b.verification_status = 'pending' AND b.verification_expires_at > NOW()))`

// AdmitBooking wraps the capacity count and the slot+booking inserts in one
// transaction. A per-clinic advisory lock serializes concurrent admissions so
// two requests cannot both observe a free window and both write.
func (r *PostgresRepository) AdmitBooking(ctx context.Context, params AdmitParams) (*Booking, *Slot, error) {
	max := params.MaxBookings
	if max <= 0 {
		max = DefaultMaxBookings
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("bookings: begin admission: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx,
		`SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`,
		params.ClinicID.String()); err != nil {
		return nil, nil, fmt.Errorf("bookings: advisory lock: %w", err)
	}

	var count int
	err = tx.QueryRow(ctx, countOccupiedSQL,
		params.ClinicID,
		params.StartTime.Add(-CapacityWindow),
		params.StartTime.Add(CapacityWindow),
		params.Policy == CountActive,
	).Scan(&count)
	if err != nil {
		return nil, nil, fmt.Errorf("bookings: capacity count: %w", err)
	}
	if count >= max {
		return nil, nil, ErrCapacityExceeded
	}

	slot := &Slot{
		ID:              uuid.New(),
		ClinicID:        params.ClinicID,
		OwnerUserID:     params.UserID,
		StartTime:       params.StartTime,
		EndTime:         params.EndTime,
		MaxBookings:     max,
		IsBooked:        true,
		CreatedOnDemand: true,
	}
	err = tx.QueryRow(ctx, `
		INSERT INTO slots (id, clinic_id, owner_user_id, start_time, end_time, max_bookings, is_booked, created_on_demand)
		VALUES ($1, $2, $3, $4, $5, $6, TRUE, TRUE)
		RETURNING created_at
	`, slot.ID, slot.ClinicID, slot.OwnerUserID, slot.StartTime, slot.EndTime, slot.MaxBookings).Scan(&slot.CreatedAt)
	if err != nil {
		return nil, nil, fmt.Errorf("bookings: insert slot: %w", err)
	}

	booking := &Booking{
		ID:                    uuid.New(),
		SlotID:                slot.ID,
		UserID:                params.UserID,
		CustomerName:          params.CustomerName,
		CustomerPhone:         params.CustomerPhone,
		CustomerEmail:         params.CustomerEmail,
		VerificationStatus:    params.Status,
		VerificationCode:      params.Code,
		VerificationExpiresAt: params.CodeExpiresAt,
	}
	err = tx.QueryRow(ctx, `
		INSERT INTO bookings (id, slot_id, user_id, customer_name, customer_phone, customer_email,
			verification_status, verification_code, verification_expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at
	`, booking.ID, booking.SlotID, booking.UserID, booking.CustomerName, booking.CustomerPhone,
		booking.CustomerEmail, booking.VerificationStatus, booking.VerificationCode,
		booking.VerificationExpiresAt).Scan(&booking.CreatedAt)
	if err != nil {
		return nil, nil, fmt.Errorf("bookings: insert booking: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, nil, fmt.Errorf("bookings: commit admission: %w", err)
	}
	return booking, slot, nil
}

// CountOccupied counts bookings occupying the clinic's window.
func (r *PostgresRepository) CountOccupied(ctx context.Context, clinicID uuid.UUID, start time.Time, policy CountPolicy) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, countOccupiedSQL,
		clinicID,
		start.Add(-CapacityWindow),
		start.Add(CapacityWindow),
		policy == CountActive,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("bookings: capacity count: %w", err)
	}
	return count, nil
}

const bookingColumns = `id, slot_id, user_id, customer_name, customer_phone, customer_email,
	verification_status, verification_code, verification_expires_at, created_at`

// GetBooking fetches a booking by primary key.
func (r *PostgresRepository) GetBooking(ctx context.Context, id uuid.UUID) (*Booking, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = $1`, id)
	var b Booking
	err := row.Scan(&b.ID, &b.SlotID, &b.UserID, &b.CustomerName, &b.CustomerPhone, &b.CustomerEmail,
		&b.VerificationStatus, &b.VerificationCode, &b.VerificationExpiresAt, &b.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrBookingNotFound
		}
		return nil, fmt.Errorf("bookings: select booking: %w", err)
	}
	return &b, nil
}

const slotColumns = `id, clinic_id, owner_user_id, start_time, end_time, max_bookings,
	is_booked, cancelled, created_on_demand, created_at`

// GetSlot fetches a slot by primary key.
func (r *PostgresRepository) GetSlot(ctx context.Context, id uuid.UUID) (*Slot, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+slotColumns+` FROM slots WHERE id = $1`, id)
	var s Slot
	err := row.Scan(&s.ID, &s.ClinicID, &s.OwnerUserID, &s.StartTime, &s.EndTime, &s.MaxBookings,
		&s.IsBooked, &s.Cancelled, &s.CreatedOnDemand, &s.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSlotNotFound
		}
		return nil, fmt.Errorf("bookings: select slot: %w", err)
	}
	return &s, nil
}

// ConfirmBooking marks a booking verified and books its slot, but only while
// the clinic's verified count in the ±window is still below max. It takes the
// same per-clinic advisory lock as AdmitBooking, so confirmations serialize
// with admissions and with each other.
func (r *PostgresRepository) ConfirmBooking(ctx context.Context, bookingID, clinicID uuid.UUID, start time.Time, max int) error {
	if max <= 0 {
		max = DefaultMaxBookings
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("bookings: begin confirmation: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx,
		`SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`,
		clinicID.String()); err != nil {
		return fmt.Errorf("bookings: advisory lock: %w", err)
	}

	var count int
	err = tx.QueryRow(ctx, countOccupiedSQL,
		clinicID,
		start.Add(-CapacityWindow),
		start.Add(CapacityWindow),
		false,
	).Scan(&count)
	if err != nil {
		return fmt.Errorf("bookings: capacity count: %w", err)
	}
	if count >= max {
		return ErrCapacityExceeded
	}

	tag, err := tx.Exec(ctx, `
		UPDATE bookings
		SET verification_status = 'verified', verification_code = NULL, verification_expires_at = NULL
		WHERE id = $1
	`, bookingID)
	if err != nil {
		return fmt.Errorf("bookings: mark verified: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrBookingNotFound
	}
	if _, err = tx.Exec(ctx, `
		UPDATE slots SET is_booked = TRUE
		WHERE id = (SELECT slot_id FROM bookings WHERE id = $1)
	`, bookingID); err != nil {
		return fmt.Errorf("bookings: book slot after verify: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("bookings: commit confirmation: %w", err)
	}
	return nil
}

// UpdateCode replaces the pending booking's code and expiry.
func (r *PostgresRepository) UpdateCode(ctx context.Context, bookingID uuid.UUID, code string, expiresAt time.Time) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE bookings SET verification_code = $2, verification_expires_at = $3 WHERE id = $1
	`, bookingID, code, expiresAt)
	if err != nil {
		return fmt.Errorf("bookings: update code: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrBookingNotFound
	}
	return nil
}

// DeleteBookingCascade removes a booking together with its slot. Deleting the
// slot cascades to the booking via the FK.
func (r *PostgresRepository) DeleteBookingCascade(ctx context.Context, bookingID uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM slots WHERE id = (SELECT slot_id FROM bookings WHERE id = $1)
	`, bookingID)
	if err != nil {
		return fmt.Errorf("bookings: cascade delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrBookingNotFound
	}
	return nil
}

// DeleteBooking removes only the booking row.
func (r *PostgresRepository) DeleteBooking(ctx context.Context, bookingID uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM bookings WHERE id = $1`, bookingID)
	if err != nil {
		return fmt.Errorf("bookings: delete booking: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrBookingNotFound
	}
	return nil
}

// CreateSlot stores a clinic-published slot.
func (r *PostgresRepository) CreateSlot(ctx context.Context, slot *Slot) error {
	if slot.ID == uuid.Nil {
		slot.ID = uuid.New()
	}
	if slot.MaxBookings <= 0 {
		slot.MaxBookings = DefaultMaxBookings
	}
	err := r.pool.QueryRow(ctx, `
		INSERT INTO slots (id, clinic_id, owner_user_id, start_time, end_time, max_bookings, is_booked, created_on_demand)
		VALUES ($1, $2, $3, $4, $5, $6, FALSE, FALSE)
		RETURNING created_at
	`, slot.ID, slot.ClinicID, slot.OwnerUserID, slot.StartTime, slot.EndTime, slot.MaxBookings).Scan(&slot.CreatedAt)
	if err != nil {
		return fmt.Errorf("bookings: insert slot: %w", err)
	}
	return nil
}

// BookSlot attaches a booking to an existing unbooked slot. The conditional
// update doubles as the taken-check, so the operation is race-free.
func (r *PostgresRepository) BookSlot(ctx context.Context, slotID uuid.UUID, booking *Booking) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("bookings: begin book slot: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, `
		UPDATE slots SET is_booked = TRUE WHERE id = $1 AND is_booked = FALSE AND cancelled = FALSE
	`, slotID)
	if err != nil {
		return fmt.Errorf("bookings: claim slot: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Distinguish missing from taken.
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM slots WHERE id = $1)`, slotID).Scan(&exists); err != nil {
			return fmt.Errorf("bookings: check slot: %w", err)
		}
		if !exists {
			return ErrSlotNotFound
		}
		return ErrSlotAlreadyBooked
	}

	if booking.ID == uuid.Nil {
		booking.ID = uuid.New()
	}
	booking.SlotID = slotID
	err = tx.QueryRow(ctx, `
		INSERT INTO bookings (id, slot_id, user_id, customer_name, customer_phone, customer_email, verification_status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at
	`, booking.ID, booking.SlotID, booking.UserID, booking.CustomerName, booking.CustomerPhone,
		booking.CustomerEmail, booking.VerificationStatus).Scan(&booking.CreatedAt)
	if err != nil {
		return fmt.Errorf("bookings: insert booking: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("bookings: commit book slot: %w", err)
	}
	return nil
}

// ResetSlot clears the booked flag.
func (r *PostgresRepository) ResetSlot(ctx context.Context, slotID uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `UPDATE slots SET is_booked = FALSE WHERE id = $1`, slotID)
	if err != nil {
		return fmt.Errorf("bookings: reset slot: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrSlotNotFound
	}
	return nil
}

// DeleteSlot removes a slot; bookings cascade via the FK.
func (r *PostgresRepository) DeleteSlot(ctx context.Context, slotID uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM slots WHERE id = $1`, slotID)
	if err != nil {
		return fmt.Errorf("bookings: delete slot: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrSlotNotFound
	}
	return nil
}

// ListSlotsByClinic returns the clinic's slots ordered by start time.
func (r *PostgresRepository) ListSlotsByClinic(ctx context.Context, clinicID uuid.UUID) ([]*Slot, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+slotColumns+` FROM slots WHERE clinic_id = $1 ORDER BY start_time`, clinicID)
	if err != nil {
		return nil, fmt.Errorf("bookings: list slots: %w", err)
	}
	defer rows.Close()

	var out []*Slot
	for rows.Next() {
		var s Slot
		if err := rows.Scan(&s.ID, &s.ClinicID, &s.OwnerUserID, &s.StartTime, &s.EndTime, &s.MaxBookings,
			&s.IsBooked, &s.Cancelled, &s.CreatedOnDemand, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("bookings: scan slot: %w", err)
		}
		out = append(out, &s)
	}
	return out, rows.Err()
}

const joinedColumns = `b.id, b.slot_id, b.user_id, b.customer_name, b.customer_phone, b.customer_email,
	b.verification_status, b.verification_code, b.verification_expires_at, b.created_at,
	s.id, s.clinic_id, s.owner_user_id, s.start_time, s.end_time, s.max_bookings,
	s.is_booked, s.cancelled, s.created_on_demand, s.created_at`

// ListByClinic returns the clinic's bookings joined to their slots.
func (r *PostgresRepository) ListByClinic(ctx context.Context, clinicID uuid.UUID) ([]*BookingWithSlot, error) {
	return r.listJoined(ctx, `s.clinic_id = $1`, clinicID)
}

// ListByUser returns the user's bookings joined to their slots.
func (r *PostgresRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]*BookingWithSlot, error) {
	return r.listJoined(ctx, `b.user_id = $1`, userID)
}

func (r *PostgresRepository) listJoined(ctx context.Context, where string, arg any) ([]*BookingWithSlot, error) {
	query := `SELECT ` + joinedColumns + `
		FROM bookings b JOIN slots s ON s.id = b.slot_id
		WHERE ` + where + ` ORDER BY s.start_time`
	rows, err := r.pool.Query(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("bookings: list joined: %w", err)
	}
	defer rows.Close()

	var out []*BookingWithSlot
	for rows.Next() {
		var bw BookingWithSlot
		err := rows.Scan(
			&bw.ID, &bw.SlotID, &bw.UserID, &bw.CustomerName, &bw.CustomerPhone, &bw.CustomerEmail,
			&bw.VerificationStatus, &bw.VerificationCode, &bw.VerificationExpiresAt, &bw.CreatedAt,
			&bw.Slot.ID, &bw.Slot.ClinicID, &bw.Slot.OwnerUserID, &bw.Slot.StartTime, &bw.Slot.EndTime,
			&bw.Slot.MaxBookings, &bw.Slot.IsBooked, &bw.Slot.Cancelled, &bw.Slot.CreatedOnDemand,
			&bw.Slot.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("bookings: scan joined: %w", err)
		}
		out = append(out, &bw)
	}
	return out, rows.Err()
}
