// Package postgres stores bookings and holds in Postgres using pgx. Both
// tables carry a unique (slot_date, slot_time) index, so the stores implement
// the conditional-insert capabilities.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wolfman30/clinic-booking/internal/reservation"
	"github.com/wolfman30/clinic-booking/internal/schedule"
)

const uniqueViolation = "23505"

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

const bookingColumns = `id, email, phone, name, service_ref, to_char(slot_date, 'YYYY-MM-DD'), slot_time,
	price, deposit, created_at, rescheduled_once`

// BookingRepository persists bookings in the appointments table.
type BookingRepository struct {
	db querier
}

// NewBookingRepository creates a booking repository on a pool.
func NewBookingRepository(pool *pgxpool.Pool) *BookingRepository {
	if pool == nil {
		panic("postgres: pgx pool required")
	}
	return &BookingRepository{db: pool}
}

func newBookingRepositoryWithExec(db querier) *BookingRepository {
	if db == nil {
		panic("postgres: exec required")
	}
	return &BookingRepository{db: db}
}

func (r *BookingRepository) ListByDate(ctx context.Context, date schedule.Date) ([]reservation.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM appointments WHERE slot_date = $1::date ORDER BY slot_time, created_at`
	return r.queryBookings(ctx, "list bookings", query, date.String())
}

func (r *BookingRepository) FindBySlot(ctx context.Context, slot schedule.Slot) ([]reservation.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM appointments WHERE slot_date = $1::date AND slot_time = $2`
	return r.queryBookings(ctx, "find bookings", query, slot.Date.String(), slot.Time.String())
}

func (r *BookingRepository) Get(ctx context.Context, id string) (reservation.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM appointments WHERE id = $1`
	b, err := scanBooking(r.db.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return reservation.Booking{}, reservation.ErrNotFound
	}
	if err != nil {
		return reservation.Booking{}, fmt.Errorf("postgres: get booking: %w", err)
	}
	return b, nil
}

const insertBooking = `
	INSERT INTO appointments (id, email, phone, name, service_ref, slot_date, slot_time, price, deposit, created_at, rescheduled_once)
	VALUES ($1, $2, $3, $4, $5, $6::date, $7, $8, $9, $10, $11)`

// Insert stores b. The unique slot index still applies, so a duplicate slot
// is reported as ErrSlotTaken.
func (r *BookingRepository) Insert(ctx context.Context, b reservation.Booking) (reservation.Booking, error) {
	b = withBookingID(b)
	row := r.db.QueryRow(ctx, insertBooking+` RETURNING `+bookingColumns, bookingArgs(b)...)
	stored, err := scanBooking(row)
	if isUniqueViolation(err) {
		return reservation.Booking{}, reservation.ErrSlotTaken
	}
	if err != nil {
		return reservation.Booking{}, fmt.Errorf("postgres: insert booking: %w", err)
	}
	return stored, nil
}

// ClaimBookingSlot inserts b only if its slot is free.
func (r *BookingRepository) ClaimBookingSlot(ctx context.Context, b reservation.Booking) (reservation.Booking, error) {
	b = withBookingID(b)
	query := insertBooking + ` ON CONFLICT (slot_date, slot_time) DO NOTHING RETURNING ` + bookingColumns
	stored, err := scanBooking(r.db.QueryRow(ctx, query, bookingArgs(b)...))
	if errors.Is(err, pgx.ErrNoRows) || isUniqueViolation(err) {
		return reservation.Booking{}, reservation.ErrSlotTaken
	}
	if err != nil {
		return reservation.Booking{}, fmt.Errorf("postgres: claim booking slot: %w", err)
	}
	return stored, nil
}

// Reschedule moves the booking and sets the flag in one guarded update.
func (r *BookingRepository) Reschedule(ctx context.Context, current reservation.Booking, to schedule.Slot) (reservation.Booking, error) {
	query := `
		UPDATE appointments
		SET slot_date = $2::date, slot_time = $3, rescheduled_once = TRUE
		WHERE id = $1 AND NOT rescheduled_once
		RETURNING ` + bookingColumns
	moved, err := scanBooking(r.db.QueryRow(ctx, query, current.ID, to.Date.String(), to.Time.String()))
	switch {
	case err == nil:
		return moved, nil
	case isUniqueViolation(err):
		return reservation.Booking{}, reservation.ErrSlotTaken
	case !errors.Is(err, pgx.ErrNoRows):
		return reservation.Booking{}, fmt.Errorf("postgres: reschedule booking: %w", err)
	}
	if _, err := r.Get(ctx, current.ID); err != nil {
		return reservation.Booking{}, err
	}
	return reservation.Booking{}, reservation.ErrAlreadyRescheduled
}

func (r *BookingRepository) queryBookings(ctx context.Context, op, query string, args ...any) ([]reservation.Booking, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: %s: %w", op, err)
	}
	defer rows.Close()

	var out []reservation.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: %s: scan: %w", op, err)
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: %s: %w", op, err)
	}
	return out, nil
}

func withBookingID(b reservation.Booking) reservation.Booking {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	if b.CreatedAt.IsZero() {
		b.CreatedAt = time.Now().UTC()
	}
	return b
}

func bookingArgs(b reservation.Booking) []any {
	return []any{
		b.ID, b.Email, b.Phone, b.Name, b.ServiceRef, b.Date.String(), b.Time.String(),
		b.Price, b.Deposit, b.CreatedAt, b.RescheduledOnce,
	}
}

func scanBooking(row pgx.Row) (reservation.Booking, error) {
	var (
		b         reservation.Booking
		date, tod string
	)
	if err := row.Scan(&b.ID, &b.Email, &b.Phone, &b.Name, &b.ServiceRef, &date, &tod,
		&b.Price, &b.Deposit, &b.CreatedAt, &b.RescheduledOnce); err != nil {
		return reservation.Booking{}, err
	}
	slot, err := schedule.ParseSlot(date, tod)
	if err != nil {
		return reservation.Booking{}, err
	}
	b.Date, b.Time = slot.Date, slot.Time
	return b, nil
}

const holdColumns = `id, owner_email, owner_phone, service_ref, to_char(slot_date, 'YYYY-MM-DD'), slot_time, expires_at`

// HoldRepository persists holds in the pending_bookings table.
type HoldRepository struct {
	db querier
}

// NewHoldRepository creates a hold repository on a pool.
func NewHoldRepository(pool *pgxpool.Pool) *HoldRepository {
	if pool == nil {
		panic("postgres: pgx pool required")
	}
	return &HoldRepository{db: pool}
}

func newHoldRepositoryWithExec(db querier) *HoldRepository {
	if db == nil {
		panic("postgres: exec required")
	}
	return &HoldRepository{db: db}
}

func (r *HoldRepository) ListByDate(ctx context.Context, date schedule.Date) ([]reservation.Hold, error) {
	query := `SELECT ` + holdColumns + ` FROM pending_bookings WHERE slot_date = $1::date ORDER BY slot_time`
	return r.queryHolds(ctx, "list holds", query, date.String())
}

func (r *HoldRepository) FindBySlot(ctx context.Context, slot schedule.Slot) ([]reservation.Hold, error) {
	query := `SELECT ` + holdColumns + ` FROM pending_bookings WHERE slot_date = $1::date AND slot_time = $2`
	return r.queryHolds(ctx, "find holds", query, slot.Date.String(), slot.Time.String())
}

func (r *HoldRepository) FindByOwner(ctx context.Context, email string) ([]reservation.Hold, error) {
	query := `SELECT ` + holdColumns + ` FROM pending_bookings WHERE owner_email = $1 ORDER BY expires_at`
	return r.queryHolds(ctx, "find owned holds", query, reservation.NormalizeEmail(email))
}

const insertHold = `
	INSERT INTO pending_bookings (id, owner_email, owner_phone, service_ref, slot_date, slot_time, expires_at)
	VALUES ($1, $2, $3, $4, $5::date, $6, $7)`

// Insert stores h. A row already on the slot is reported as ErrSlotLocked.
func (r *HoldRepository) Insert(ctx context.Context, h reservation.Hold) (reservation.Hold, error) {
	h = withHoldID(h)
	stored, err := scanHold(r.db.QueryRow(ctx, insertHold+` RETURNING `+holdColumns, holdArgs(h)...))
	if isUniqueViolation(err) {
		return reservation.Hold{}, reservation.ErrSlotLocked
	}
	if err != nil {
		return reservation.Hold{}, fmt.Errorf("postgres: insert hold: %w", err)
	}
	return stored, nil
}

// ClaimHoldSlot inserts h, overwriting an expired or same-owner row on the slot.
func (r *HoldRepository) ClaimHoldSlot(ctx context.Context, h reservation.Hold, now time.Time) (reservation.Hold, error) {
	h = withHoldID(h)
	query := insertHold + `
	ON CONFLICT (slot_date, slot_time) DO UPDATE
	SET id = EXCLUDED.id,
		owner_email = EXCLUDED.owner_email,
		owner_phone = EXCLUDED.owner_phone,
		service_ref = EXCLUDED.service_ref,
		expires_at = EXCLUDED.expires_at
	WHERE pending_bookings.expires_at <= $8 OR pending_bookings.owner_email = EXCLUDED.owner_email
	RETURNING ` + holdColumns
	args := append(holdArgs(h), now)
	stored, err := scanHold(r.db.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return reservation.Hold{}, reservation.ErrSlotLocked
	}
	if err != nil {
		return reservation.Hold{}, fmt.Errorf("postgres: claim hold slot: %w", err)
	}
	return stored, nil
}

// Delete removes the hold by id. Missing rows are ignored.
func (r *HoldRepository) Delete(ctx context.Context, h reservation.Hold) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM pending_bookings WHERE id = $1`, h.ID); err != nil {
		return fmt.Errorf("postgres: delete hold: %w", err)
	}
	return nil
}

func (r *HoldRepository) queryHolds(ctx context.Context, op, query string, args ...any) ([]reservation.Hold, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: %s: %w", op, err)
	}
	defer rows.Close()

	var out []reservation.Hold
	for rows.Next() {
		h, err := scanHold(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: %s: scan: %w", op, err)
		}
		out = append(out, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: %s: %w", op, err)
	}
	return out, nil
}

func withHoldID(h reservation.Hold) reservation.Hold {
	if h.ID == "" {
		h.ID = uuid.NewString()
	}
	h.Email = reservation.NormalizeEmail(h.Email)
	return h
}

func holdArgs(h reservation.Hold) []any {
	return []any{h.ID, h.Email, h.Phone, h.ServiceRef, h.Date.String(), h.Time.String(), h.ExpiresAt}
}

func scanHold(row pgx.Row) (reservation.Hold, error) {
	var (
		h         reservation.Hold
		date, tod string
	)
	if err := row.Scan(&h.ID, &h.Email, &h.Phone, &h.ServiceRef, &date, &tod, &h.ExpiresAt); err != nil {
		return reservation.Hold{}, err
	}
	slot, err := schedule.ParseSlot(date, tod)
	if err != nil {
		return reservation.Hold{}, err
	}
	h.Date, h.Time = slot.Date, slot.Time
	return h, nil
}
