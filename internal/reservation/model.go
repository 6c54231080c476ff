package reservation

import (
	"strings"
	"time"

	"github.com/wolfman30/clinic-booking/internal/schedule"
)

// Collection names used by document-style stores.
const (
	CollectionBookings = "appointments"
	CollectionHolds    = "pendingBookings"
)

// DefaultHoldTTL is how long a hold stays live after creation.
const DefaultHoldTTL = 600 * time.Second

// bookedDisplayWindow is how long a booking for today keeps its "occupied" badge.
const bookedDisplayWindow = 60 * time.Minute

// Requester identifies the party acting on a slot.
type Requester struct {
	Email string `json:"email"`
	Phone string `json:"phone,omitempty"`
	Name  string `json:"name,omitempty"`
}

// NormalizeEmail lowercases and trims an email for comparisons and storage.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (r Requester) normalized() Requester {
	r.Email = NormalizeEmail(r.Email)
	r.Phone = strings.TrimSpace(r.Phone)
	r.Name = strings.TrimSpace(r.Name)
	return r
}

// Booking is a confirmed reservation of one slot.
type Booking struct {
	ID              string             `json:"id"`
	Email           string             `json:"email"`
	Phone           string             `json:"phone,omitempty"`
	Name            string             `json:"name,omitempty"`
	ServiceRef      string             `json:"service_ref"`
	Date            schedule.Date      `json:"date"`
	Time            schedule.TimeOfDay `json:"time"`
	Price           int64              `json:"price"`
	Deposit         int64              `json:"deposit"`
	CreatedAt       time.Time          `json:"created_at"`
	RescheduledOnce bool               `json:"rescheduled_once"`
}

func (b Booking) Slot() schedule.Slot {
	return schedule.Slot{Date: b.Date, Time: b.Time}
}

// OwnedBy reports whether email owns the booking.
func (b Booking) OwnedBy(email string) bool {
	return NormalizeEmail(b.Email) == NormalizeEmail(email)
}

// DisplayExpired reports whether a booking for today is more than an hour past
// its start. It only drives the UI badge; the slot stays booked.
func (b Booking) DisplayExpired(now time.Time, loc *time.Location) bool {
	local := now.In(loc)
	if schedule.DateOf(local) != b.Date {
		return false
	}
	return !local.Before(b.Slot().Start(loc).Add(bookedDisplayWindow))
}

// Hold is a temporary exclusive claim on a slot pending payment.
type Hold struct {
	ID         string             `json:"id"`
	Email      string             `json:"email"`
	Phone      string             `json:"phone,omitempty"`
	ServiceRef string             `json:"service_ref"`
	Date       schedule.Date      `json:"date"`
	Time       schedule.TimeOfDay `json:"time"`
	ExpiresAt  time.Time          `json:"expires_at"`
}

func (h Hold) Slot() schedule.Slot {
	return schedule.Slot{Date: h.Date, Time: h.Time}
}

// LiveAt is the liveness predicate every reader applies: expiry must be after now.
func (h Hold) LiveAt(now time.Time) bool {
	return h.ExpiresAt.After(now)
}

// Remaining returns the time left on the hold, never negative.
func (h Hold) Remaining(now time.Time) time.Duration {
	if d := h.ExpiresAt.Sub(now); d > 0 {
		return d
	}
	return 0
}

// OwnedBy reports whether email owns the hold.
func (h Hold) OwnedBy(email string) bool {
	return NormalizeEmail(h.Email) == NormalizeEmail(email)
}

// DepositFor returns the deposit due for a listed price: half, rounded down.
func DepositFor(price int64) int64 {
	return price / 2
}
