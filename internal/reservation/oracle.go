package reservation

import (
	"context"
	"errors"
	"time"

	"github.com/wolfman30/clinic-booking/internal/schedule"
)

// Status is the availability of one slot from one viewer's perspective.
type Status string

const (
	StatusFree        Status = "free"
	StatusBooked      Status = "booked"
	StatusHeldByOther Status = "held_by_other"
	StatusHeldBySelf  Status = "held_by_self"
	StatusPast        Status = "past"
	StatusLunch       Status = "lunch"
)

// Viewer is the party asking about availability. ServiceRef is set on the
// reschedule path, where a hold counts as the viewer's own only if it is for
// the booking being edited.
type Viewer struct {
	Email      string
	ServiceRef string
}

// SlotView is the classification of one slot.
type SlotView struct {
	Time           schedule.TimeOfDay `json:"time"`
	Status         Status             `json:"status"`
	DisplayExpired bool               `json:"display_expired,omitempty"`
	HoldExpiresAt  *time.Time         `json:"hold_expires_at,omitempty"`
}

// Oracle answers slot availability questions.
type Oracle struct {
	deps Deps
}

// NewOracle constructs an Oracle.
func NewOracle(d Deps) *Oracle {
	return &Oracle{deps: d.withDefaults()}
}

// Classify returns the status of a single slot. Slots the calendar does not
// offer on that weekday are rejected.
func (o *Oracle) Classify(ctx context.Context, viewer Viewer, slot schedule.Slot) (SlotView, error) {
	p, err := o.deps.policy(ctx)
	if err != nil {
		return SlotView{}, err
	}
	if slot.Date.IsZero() {
		return SlotView{}, Invalid("date", "required")
	}
	if !p.Hours.Offers(slot.Date.Weekday(), slot.Time) {
		return SlotView{}, Invalid("time", "slot is not offered on this day")
	}
	bookings, err := o.deps.Bookings.FindBySlot(ctx, slot)
	if err != nil {
		return SlotView{}, unavailable("find bookings", err)
	}
	holds, err := o.deps.Holds.FindBySlot(ctx, slot)
	if err != nil {
		return SlotView{}, unavailable("find holds", err)
	}
	return classify(p, o.deps.Clock.Now(), viewer, slot, bookings, holds), nil
}

// DayView classifies every calendar slot of date with a single read of each
// collection.
func (o *Oracle) DayView(ctx context.Context, viewer Viewer, date schedule.Date) ([]SlotView, error) {
	if date.IsZero() {
		return nil, Invalid("date", "required")
	}
	p, err := o.deps.policy(ctx)
	if err != nil {
		return nil, err
	}
	bookings, err := o.deps.Bookings.ListByDate(ctx, date)
	if err != nil {
		return nil, unavailable("list bookings", err)
	}
	holds, err := o.deps.Holds.ListByDate(ctx, date)
	if err != nil {
		return nil, unavailable("list holds", err)
	}
	now := o.deps.Clock.Now()
	times := p.Hours.Slots(date.Weekday())
	views := make([]SlotView, 0, len(times))
	for _, t := range times {
		slot := schedule.Slot{Date: date, Time: t}
		views = append(views, classify(p, now, viewer, slot, bookings, holds))
	}
	return views, nil
}

// classify is the pure decision: lunch, past, booked, then holds. Rows for
// other slots are ignored. A booked slot keeps its badge after it turns past.
func classify(p Policy, now time.Time, viewer Viewer, slot schedule.Slot, bookings []Booking, holds []Hold) SlotView {
	view := SlotView{Time: slot.Time, Status: StatusFree}
	if p.Hours.IsLunch(slot.Time) {
		view.Status = StatusLunch
		return view
	}
	booking, booked := bookingFor(slot, bookings)
	if booked {
		view.DisplayExpired = booking.DisplayExpired(now, p.Location)
	}
	if isPast(p.Location, now, slot) {
		view.Status = StatusPast
		return view
	}
	if booked {
		view.Status = StatusBooked
		return view
	}
	for _, h := range holds {
		if h.Slot() != slot || !h.LiveAt(now) {
			continue
		}
		if viewer.owns(h) {
			expires := h.ExpiresAt
			view.Status = StatusHeldBySelf
			view.HoldExpiresAt = &expires
			return view
		}
		view.Status = StatusHeldByOther
	}
	return view
}

func bookingFor(slot schedule.Slot, bookings []Booking) (Booking, bool) {
	for _, b := range bookings {
		if b.Slot() == slot {
			return b, true
		}
	}
	return Booking{}, false
}

func (v Viewer) owns(h Hold) bool {
	if v.Email == "" || !h.OwnedBy(v.Email) {
		return false
	}
	return v.ServiceRef == "" || v.ServiceRef == h.ServiceRef
}

// Lookup returns a booking owned by email.
func (o *Oracle) Lookup(ctx context.Context, email, bookingID string) (Booking, error) {
	email = NormalizeEmail(email)
	if email == "" {
		return Booking{}, Invalid("email", "required")
	}
	b, err := o.deps.Bookings.Get(ctx, bookingID)
	if errors.Is(err, ErrNotFound) {
		return Booking{}, ErrNotFound
	}
	if err != nil {
		return Booking{}, unavailable("get booking", err)
	}
	if !b.OwnedBy(email) {
		return Booking{}, ErrNotOwner
	}
	return b, nil
}
