package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/clinic-booking/internal/reservation"
	"github.com/wolfman30/clinic-booking/internal/schedule"
)

var (
	monday  = schedule.Date{Year: 2026, Month: time.October, Day: 19}
	slot14  = schedule.Slot{Date: monday, Time: schedule.At(14)}
	created = time.Date(2026, time.October, 14, 9, 0, 0, 0, time.UTC)
)

var bookingCols = []string{"id", "email", "phone", "name", "service_ref", "slot_date", "slot_time", "price", "deposit", "created_at", "rescheduled_once"}
var holdCols = []string{"id", "owner_email", "owner_phone", "service_ref", "slot_date", "slot_time", "expires_at"}

func newMock(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgx mock: %v", err)
	}
	t.Cleanup(func() {
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unmet expectations: %v", err)
		}
		mock.Close()
	})
	return mock
}

func bookingRow(id string, hour int, rescheduled bool) []any {
	return []any{id, "alice@example.com", "555", "Alice", "facial", "2026-10-19", schedule.At(hour).String(), int64(1000), int64(500), created, rescheduled}
}

func sampleBooking() reservation.Booking {
	return reservation.Booking{
		ID: "b-1", Email: "alice@example.com", Phone: "555", Name: "Alice", ServiceRef: "facial",
		Date: monday, Time: schedule.At(14), Price: 1000, Deposit: 500, CreatedAt: created,
	}
}

func TestBookingFindBySlot(t *testing.T) {
	mock := newMock(t)
	repo := newBookingRepositoryWithExec(mock)

	mock.ExpectQuery("FROM appointments WHERE slot_date").
		WithArgs("2026-10-19", "14:00").
		WillReturnRows(pgxmock.NewRows(bookingCols).AddRow(bookingRow("b-1", 14, false)...))

	got, err := repo.FindBySlot(context.Background(), slot14)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, sampleBooking(), got[0])
}

func TestBookingGetNotFound(t *testing.T) {
	mock := newMock(t)
	repo := newBookingRepositoryWithExec(mock)

	mock.ExpectQuery("FROM appointments WHERE id").
		WithArgs("missing").
		WillReturnRows(pgxmock.NewRows(bookingCols))

	_, err := repo.Get(context.Background(), "missing")
	if !errors.Is(err, reservation.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestBookingClaimSlot(t *testing.T) {
	mock := newMock(t)
	repo := newBookingRepositoryWithExec(mock)
	b := sampleBooking()

	mock.ExpectQuery("INSERT INTO appointments").
		WithArgs("b-1", "alice@example.com", "555", "Alice", "facial", "2026-10-19", "14:00", int64(1000), int64(500), created, false).
		WillReturnRows(pgxmock.NewRows(bookingCols).AddRow(bookingRow("b-1", 14, false)...))
	got, err := repo.ClaimBookingSlot(context.Background(), b)
	require.NoError(t, err)
	assert.Equal(t, b, got)

	mock.ExpectQuery("ON CONFLICT").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows(bookingCols))
	_, err = repo.ClaimBookingSlot(context.Background(), b)
	if !errors.Is(err, reservation.ErrSlotTaken) {
		t.Fatalf("expected ErrSlotTaken, got %v", err)
	}
}

func TestBookingInsertUniqueViolation(t *testing.T) {
	mock := newMock(t)
	repo := newBookingRepositoryWithExec(mock)

	mock.ExpectQuery("INSERT INTO appointments").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(&pgconn.PgError{Code: "23505"})

	_, err := repo.Insert(context.Background(), sampleBooking())
	if !errors.Is(err, reservation.ErrSlotTaken) {
		t.Fatalf("expected ErrSlotTaken, got %v", err)
	}
}

func TestBookingReschedule(t *testing.T) {
	mock := newMock(t)
	repo := newBookingRepositoryWithExec(mock)
	to := schedule.Slot{Date: monday, Time: schedule.At(16)}

	mock.ExpectQuery("UPDATE appointments").
		WithArgs("b-1", "2026-10-19", "16:00").
		WillReturnRows(pgxmock.NewRows(bookingCols).AddRow(bookingRow("b-1", 16, true)...))
	moved, err := repo.Reschedule(context.Background(), sampleBooking(), to)
	require.NoError(t, err)
	assert.True(t, moved.RescheduledOnce)
	assert.Equal(t, to, moved.Slot())

	mock.ExpectQuery("UPDATE appointments").
		WithArgs("b-1", "2026-10-19", "16:00").
		WillReturnRows(pgxmock.NewRows(bookingCols))
	mock.ExpectQuery("FROM appointments WHERE id").
		WithArgs("b-1").
		WillReturnRows(pgxmock.NewRows(bookingCols).AddRow(bookingRow("b-1", 16, true)...))
	_, err = repo.Reschedule(context.Background(), sampleBooking(), to)
	if !errors.Is(err, reservation.ErrAlreadyRescheduled) {
		t.Fatalf("expected ErrAlreadyRescheduled, got %v", err)
	}
}

func TestBookingQueryFailure(t *testing.T) {
	mock := newMock(t)
	repo := newBookingRepositoryWithExec(mock)

	mock.ExpectQuery("FROM appointments WHERE slot_date").
		WithArgs("2026-10-19").
		WillReturnError(errors.New("connection refused"))

	_, err := repo.ListByDate(context.Background(), monday)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "postgres: list bookings")
}

func TestHoldClaimSlot(t *testing.T) {
	mock := newMock(t)
	repo := newHoldRepositoryWithExec(mock)
	now := created
	h := reservation.Hold{ID: "h-1", Email: "Alice@Example.com", ServiceRef: "facial", Date: monday, Time: schedule.At(14), ExpiresAt: now.Add(10 * time.Minute)}

	mock.ExpectQuery("ON CONFLICT \\(slot_date, slot_time\\) DO UPDATE").
		WithArgs("h-1", "alice@example.com", "", "facial", "2026-10-19", "14:00", h.ExpiresAt, now).
		WillReturnRows(pgxmock.NewRows(holdCols).AddRow("h-1", "alice@example.com", "", "facial", "2026-10-19", "14:00", h.ExpiresAt))
	got, err := repo.ClaimHoldSlot(context.Background(), h, now)
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", got.Email)
	assert.Equal(t, slot14, got.Slot())

	mock.ExpectQuery("INSERT INTO pending_bookings").
		WithArgs("h-1", "alice@example.com", "", "facial", "2026-10-19", "14:00", h.ExpiresAt, now).
		WillReturnRows(pgxmock.NewRows(holdCols))
	_, err = repo.ClaimHoldSlot(context.Background(), h, now)
	if !errors.Is(err, reservation.ErrSlotLocked) {
		t.Fatalf("expected ErrSlotLocked, got %v", err)
	}
}

func TestHoldFindByOwnerAndDelete(t *testing.T) {
	mock := newMock(t)
	repo := newHoldRepositoryWithExec(mock)
	expires := created.Add(10 * time.Minute)

	mock.ExpectQuery("FROM pending_bookings WHERE owner_email").
		WithArgs("alice@example.com").
		WillReturnRows(pgxmock.NewRows(holdCols).AddRow("h-1", "alice@example.com", "555", "facial", "2026-10-19", "14:00", expires))
	holds, err := repo.FindByOwner(context.Background(), " ALICE@example.com")
	require.NoError(t, err)
	require.Len(t, holds, 1)
	assert.Equal(t, expires, holds[0].ExpiresAt)

	mock.ExpectExec("DELETE FROM pending_bookings").WithArgs("h-1").WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectExec("DELETE FROM pending_bookings").WithArgs("h-1").WillReturnResult(pgxmock.NewResult("DELETE", 0))
	require.NoError(t, repo.Delete(context.Background(), holds[0]))
	require.NoError(t, repo.Delete(context.Background(), holds[0]), "deleting twice is not an error")
}
