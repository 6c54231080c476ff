package reservation

import (
	"context"
	"time"

	"github.com/wolfman30/clinic-booking/internal/schedule"
)

// BookingStore persists confirmed bookings.
type BookingStore interface {
	ListByDate(ctx context.Context, date schedule.Date) ([]Booking, error)
	FindBySlot(ctx context.Context, slot schedule.Slot) ([]Booking, error)
	// Get returns ErrNotFound for unknown ids.
	Get(ctx context.Context, id string) (Booking, error)
	// Insert stores b, assigning an id when empty.
	Insert(ctx context.Context, b Booking) (Booking, error)
	// Reschedule moves current to the new slot and sets RescheduledOnce in a
	// single update. It returns ErrAlreadyRescheduled when the flag is already
	// set and ErrNotFound when the booking is gone.
	Reschedule(ctx context.Context, current Booking, to schedule.Slot) (Booking, error)
}

// BookingSlotClaimer is implemented by stores that can insert a booking only
// if no booking holds the slot, in one atomic write.
type BookingSlotClaimer interface {
	// ClaimBookingSlot returns ErrSlotTaken when the slot is occupied.
	ClaimBookingSlot(ctx context.Context, b Booking) (Booking, error)
}

// HoldStore persists pending holds.
type HoldStore interface {
	ListByDate(ctx context.Context, date schedule.Date) ([]Hold, error)
	FindBySlot(ctx context.Context, slot schedule.Slot) ([]Hold, error)
	FindByOwner(ctx context.Context, email string) ([]Hold, error)
	Insert(ctx context.Context, h Hold) (Hold, error)
	// Delete is idempotent: deleting a missing hold is not an error.
	Delete(ctx context.Context, h Hold) error
}

// HoldSlotClaimer is implemented by stores that can insert a hold only if no
// live hold of another owner covers the slot, in one atomic write.
type HoldSlotClaimer interface {
	// ClaimHoldSlot returns ErrSlotLocked when a live foreign hold exists.
	ClaimHoldSlot(ctx context.Context, h Hold, now time.Time) (Hold, error)
}

// Notifier delivers templated messages. Callers treat it as best effort.
type Notifier interface {
	Send(ctx context.Context, templateID string, params map[string]string) error
}

// Policy is the clinic's scheduling policy.
type Policy struct {
	Hours    schedule.Hours
	Location *time.Location
	HoldTTL  time.Duration
}

// PolicySource yields the current scheduling policy.
type PolicySource interface {
	Policy(ctx context.Context) (Policy, error)
}

// PriceList resolves the listed price of a service.
type PriceList interface {
	// Price returns ErrUnknownService for unknown refs.
	Price(ctx context.Context, serviceRef string) (int64, error)
}

// Recorder receives operation outcomes for metrics.
type Recorder interface {
	ObserveHold(outcome string)
	ObserveConfirm(outcome string)
	ObserveReschedule(outcome string)
	ObserveNotification(templateID, status string)
}

// StaticPolicy serves a fixed policy.
type StaticPolicy Policy

func (p StaticPolicy) Policy(context.Context) (Policy, error) {
	return Policy(p), nil
}

// DefaultPolicy uses the default clinic hours in UTC with the default TTL.
func DefaultPolicy() Policy {
	return Policy{Hours: schedule.DefaultHours(), Location: time.UTC, HoldTTL: DefaultHoldTTL}
}

// StaticPrices serves prices from a map.
type StaticPrices map[string]int64

func (p StaticPrices) Price(_ context.Context, serviceRef string) (int64, error) {
	price, ok := p[serviceRef]
	if !ok {
		return 0, ErrUnknownService
	}
	return price, nil
}

type nopRecorder struct{}

func (nopRecorder) ObserveHold(string)                 {}
func (nopRecorder) ObserveConfirm(string)              {}
func (nopRecorder) ObserveReschedule(string)           {}
func (nopRecorder) ObserveNotification(string, string) {}

type nopNotifier struct{}

func (nopNotifier) Send(context.Context, string, map[string]string) error { return nil }
