package reservation

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/clinic-booking/internal/schedule"
)

// RescheduleRequest moves a booking to a new slot.
type RescheduleRequest struct {
	Requester Requester
	BookingID string
	To        schedule.Slot
}

// Rescheduler moves a confirmed booking exactly once.
type Rescheduler struct {
	deps Deps
}

// NewRescheduler constructs a Rescheduler.
func NewRescheduler(d Deps) *Rescheduler {
	return &Rescheduler{deps: d.withDefaults()}
}

// Reschedule checks ownership and the use-once flag before any availability
// read, then applies the confirm checks to the new slot. A live hold of the
// same requester and service on the new slot is tolerated and discarded after
// the move.
func (r *Rescheduler) Reschedule(ctx context.Context, req RescheduleRequest) (booking Booking, err error) {
	req.Requester = req.Requester.normalized()
	ctx, span := tracer.Start(ctx, "reservation.reschedule_booking")
	defer span.End()
	span.SetAttributes(slotAttrs(req.To, req.Requester.Email)...)
	span.SetAttributes(attribute.String("clinic.booking_id", req.BookingID))
	defer func() {
		r.deps.Metrics.ObserveReschedule(outcome(err))
		err = finish(span, err)
	}()

	fields := fieldErrors{}
	if req.Requester.Email == "" {
		fields.add("email", "required")
	}
	if req.BookingID == "" {
		fields.add("booking_id", "required")
	}
	if req.To.Date.IsZero() {
		fields.add("date", "required")
	}
	if err := fields.err(); err != nil {
		return Booking{}, err
	}

	current, err := r.deps.Bookings.Get(ctx, req.BookingID)
	if errors.Is(err, ErrNotFound) {
		return Booking{}, ErrNotFound
	}
	if err != nil {
		return Booking{}, unavailable("get booking", err)
	}
	if !current.OwnedBy(req.Requester.Email) {
		return Booking{}, ErrNotOwner
	}
	if current.RescheduledOnce {
		return Booking{}, ErrAlreadyRescheduled
	}
	if current.Slot() == req.To {
		return Booking{}, Invalid("time", "booking is already at this slot")
	}

	p, err := r.deps.policy(ctx)
	if err != nil {
		return Booking{}, err
	}
	now := r.deps.Clock.Now()
	if err := checkBookable(p, now, req.To); err != nil {
		return Booking{}, err
	}

	occupying, err := r.deps.Bookings.FindBySlot(ctx, req.To)
	if err != nil {
		return Booking{}, unavailable("find bookings", err)
	}
	for _, b := range occupying {
		if b.ID != current.ID {
			return Booking{}, ErrSlotTaken
		}
	}

	holds, err := r.deps.Holds.FindBySlot(ctx, req.To)
	if err != nil {
		return Booking{}, unavailable("find holds", err)
	}
	live, err := pruneExpired(ctx, r.deps, holds, now)
	if err != nil {
		return Booking{}, err
	}
	self := Viewer{Email: current.Email, ServiceRef: current.ServiceRef}
	tolerated := make([]Hold, 0, 1)
	for _, h := range live {
		if !self.owns(h) {
			return Booking{}, ErrSlotLocked
		}
		tolerated = append(tolerated, h)
	}

	previous := current.Slot()
	booking, err = r.deps.Bookings.Reschedule(ctx, current, req.To)
	switch {
	case errors.Is(err, ErrAlreadyRescheduled), errors.Is(err, ErrSlotTaken):
		return Booking{}, err
	case errors.Is(err, ErrNotFound):
		return Booking{}, ErrNotFound
	case err != nil:
		return Booking{}, unavailable("reschedule booking", err)
	}
	r.deps.Logger.Info("booking rescheduled",
		"booking_id", booking.ID,
		"email", booking.Email,
		"from", previous.String(),
		"slot", booking.Slot().String(),
	)

	params := BookingParams(booking)
	params["previous_date"] = previous.Date.String()
	params["previous_time"] = previous.Time.String()
	r.deps.notify(ctx, TemplateBookingRescheduled, params)

	for _, h := range tolerated {
		if err := r.deps.Holds.Delete(ctx, h); err != nil {
			r.deps.Logger.Warn("failed to discard hold", "hold_id", h.ID, "email", h.Email, "error", err)
		}
	}
	return booking, nil
}
