package reservation

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/wolfman30/clinic-booking/internal/schedule"
)

// ConfirmRequest promotes the requester's hold into a booking.
// PaymentAsserted is the client's self-certification that the deposit was paid.
type ConfirmRequest struct {
	Requester       Requester
	Slot            schedule.Slot
	ServiceRef      string
	PaymentAsserted bool
}

// Confirmer turns a live hold into a confirmed booking.
type Confirmer struct {
	deps Deps
}

// NewConfirmer constructs a Confirmer.
func NewConfirmer(d Deps) *Confirmer {
	return &Confirmer{deps: d.withDefaults()}
}

// Confirm re-checks the slot, verifies the caller's hold, inserts the booking,
// notifies and finally discards the hold.
func (c *Confirmer) Confirm(ctx context.Context, req ConfirmRequest) (booking Booking, err error) {
	req.Requester = req.Requester.normalized()
	ctx, span := tracer.Start(ctx, "reservation.confirm_booking")
	defer span.End()
	span.SetAttributes(slotAttrs(req.Slot, req.Requester.Email)...)
	defer func() {
		c.deps.Metrics.ObserveConfirm(outcome(err))
		err = finish(span, err)
	}()

	fields := fieldErrors{}
	if err := validateSlotRequest(req.Requester.Email, req.Slot, req.ServiceRef); err != nil {
		var verr *ValidationError
		if errors.As(err, &verr) {
			for k, v := range verr.Fields {
				fields.add(k, v)
			}
		}
	}
	if !req.PaymentAsserted {
		fields.add("payment_asserted", "payment must be confirmed before booking")
	}
	if err := fields.err(); err != nil {
		return Booking{}, err
	}

	price, err := c.deps.Prices.Price(ctx, req.ServiceRef)
	if errors.Is(err, ErrUnknownService) {
		return Booking{}, Invalid("service_ref", "unknown service")
	}
	if err != nil {
		return Booking{}, unavailable("load price", err)
	}

	holds, err := c.deps.Holds.FindBySlot(ctx, req.Slot)
	if err != nil {
		return Booking{}, unavailable("find holds", err)
	}
	mine := make([]Hold, 0, 1)
	for _, h := range holds {
		if h.OwnedBy(req.Requester.Email) && h.ServiceRef == req.ServiceRef {
			mine = append(mine, h)
		}
	}

	existing, err := c.deps.Bookings.FindBySlot(ctx, req.Slot)
	if err != nil {
		return Booking{}, unavailable("find bookings", err)
	}
	if len(existing) > 0 {
		c.discard(ctx, mine)
		return Booking{}, ErrSlotTaken
	}

	now := c.deps.Clock.Now()
	live, err := pruneExpired(ctx, c.deps, mine, now)
	if err != nil {
		return Booking{}, err
	}
	if len(live) == 0 {
		if len(mine) > 0 {
			return Booking{}, ErrHoldExpired
		}
		return Booking{}, ErrHoldNotFound
	}

	booking = Booking{
		ID:         uuid.NewString(),
		Email:      req.Requester.Email,
		Phone:      req.Requester.Phone,
		Name:       req.Requester.Name,
		ServiceRef: req.ServiceRef,
		Date:       req.Slot.Date,
		Time:       req.Slot.Time,
		Price:      price,
		Deposit:    DepositFor(price),
		CreatedAt:  now,
	}
	if claimer, ok := c.deps.Bookings.(BookingSlotClaimer); ok {
		booking, err = claimer.ClaimBookingSlot(ctx, booking)
	} else {
		booking, err = c.deps.Bookings.Insert(ctx, booking)
	}
	if errors.Is(err, ErrSlotTaken) {
		c.discard(ctx, live)
		return Booking{}, ErrSlotTaken
	}
	if err != nil {
		return Booking{}, unavailable("insert booking", err)
	}
	c.deps.Logger.Info("booking confirmed",
		"booking_id", booking.ID,
		"email", booking.Email,
		"slot", booking.Slot().String(),
		"deposit", booking.Deposit,
	)

	c.deps.notify(ctx, TemplateBookingConfirmed, BookingParams(booking))
	c.discard(ctx, live)
	return booking, nil
}

// discard deletes holds after the outcome is already decided, so failures are
// only logged. Leftover rows lapse on their own.
func (c *Confirmer) discard(ctx context.Context, holds []Hold) {
	for _, h := range holds {
		if err := c.deps.Holds.Delete(ctx, h); err != nil {
			c.deps.Logger.Warn("failed to discard hold", "hold_id", h.ID, "email", h.Email, "error", err)
		}
	}
}
