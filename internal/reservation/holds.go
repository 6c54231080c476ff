package reservation

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/wolfman30/clinic-booking/internal/schedule"
)

// AcquireRequest asks for a hold on one slot.
type AcquireRequest struct {
	Requester  Requester
	Slot       schedule.Slot
	ServiceRef string
}

// HoldManager creates, renews, counts down and cancels holds. A requester has
// at most one hold; acquiring again replaces it.
type HoldManager struct {
	deps Deps
}

// NewHoldManager constructs a HoldManager.
func NewHoldManager(d Deps) *HoldManager {
	return &HoldManager{deps: d.withDefaults()}
}

// Acquire places a hold on req.Slot for req.Requester. Any earlier hold of the
// requester is discarded first, so acquiring the same slot again renews it.
func (m *HoldManager) Acquire(ctx context.Context, req AcquireRequest) (hold Hold, err error) {
	req.Requester = req.Requester.normalized()
	ctx, span := tracer.Start(ctx, "reservation.acquire_hold")
	defer span.End()
	span.SetAttributes(slotAttrs(req.Slot, req.Requester.Email)...)
	defer func() {
		m.deps.Metrics.ObserveHold(outcome(err))
		err = finish(span, err)
	}()

	if err := validateSlotRequest(req.Requester.Email, req.Slot, req.ServiceRef); err != nil {
		return Hold{}, err
	}
	p, err := m.deps.policy(ctx)
	if err != nil {
		return Hold{}, err
	}
	now := m.deps.Clock.Now()
	if err := checkBookable(p, now, req.Slot); err != nil {
		return Hold{}, err
	}
	if _, err := m.deps.Prices.Price(ctx, req.ServiceRef); err != nil {
		if errors.Is(err, ErrUnknownService) {
			return Hold{}, Invalid("service_ref", "unknown service")
		}
		return Hold{}, unavailable("load price", err)
	}

	if err := m.releaseOwned(ctx, req.Requester.Email); err != nil {
		return Hold{}, err
	}

	bookings, err := m.deps.Bookings.FindBySlot(ctx, req.Slot)
	if err != nil {
		return Hold{}, unavailable("find bookings", err)
	}
	if len(bookings) > 0 {
		return Hold{}, ErrSlotTaken
	}

	existing, err := m.deps.Holds.FindBySlot(ctx, req.Slot)
	if err != nil {
		return Hold{}, unavailable("find holds", err)
	}
	live, err := pruneExpired(ctx, m.deps, existing, now)
	if err != nil {
		return Hold{}, err
	}
	for _, h := range live {
		if !h.OwnedBy(req.Requester.Email) {
			return Hold{}, ErrSlotLocked
		}
	}

	hold = Hold{
		ID:         uuid.NewString(),
		Email:      req.Requester.Email,
		Phone:      req.Requester.Phone,
		ServiceRef: req.ServiceRef,
		Date:       req.Slot.Date,
		Time:       req.Slot.Time,
		ExpiresAt:  now.Add(p.HoldTTL),
	}
	if claimer, ok := m.deps.Holds.(HoldSlotClaimer); ok {
		hold, err = claimer.ClaimHoldSlot(ctx, hold, now)
	} else {
		hold, err = m.deps.Holds.Insert(ctx, hold)
	}
	if errors.Is(err, ErrSlotLocked) {
		return Hold{}, ErrSlotLocked
	}
	if err != nil {
		return Hold{}, unavailable("insert hold", err)
	}
	m.deps.Logger.Info("hold acquired",
		"hold_id", hold.ID,
		"email", hold.Email,
		"slot", hold.Slot().String(),
		"expires_at", hold.ExpiresAt,
	)
	return hold, nil
}

// Cancel deletes the requester's hold with holdID. Missing holds are not an error.
func (m *HoldManager) Cancel(ctx context.Context, email, holdID string) error {
	email = NormalizeEmail(email)
	fields := fieldErrors{}
	if email == "" {
		fields.add("email", "required")
	}
	if holdID == "" {
		fields.add("hold_id", "required")
	}
	if err := fields.err(); err != nil {
		return err
	}
	owned, err := m.deps.Holds.FindByOwner(ctx, email)
	if err != nil {
		return unavailable("find holds", err)
	}
	for _, h := range owned {
		if h.ID != holdID {
			continue
		}
		if err := m.deps.Holds.Delete(ctx, h); err != nil {
			return unavailable("delete hold", err)
		}
		m.deps.Logger.Info("hold cancelled", "hold_id", h.ID, "email", email, "slot", h.Slot().String())
	}
	return nil
}

// Countdown is the state of the requester's current hold.
type Countdown struct {
	Hold      Hold          `json:"hold"`
	Remaining time.Duration `json:"-"`
}

// Seconds returns the whole seconds left, rounded up.
func (c Countdown) Seconds() int64 {
	return int64((c.Remaining + time.Second - 1) / time.Second)
}

// Current returns the requester's live hold and its remaining time. A lapsed
// hold is deleted and reported as ErrHoldExpired; no hold is ErrHoldNotFound.
func (m *HoldManager) Current(ctx context.Context, email string) (Countdown, error) {
	email = NormalizeEmail(email)
	if email == "" {
		return Countdown{}, Invalid("email", "required")
	}
	owned, err := m.deps.Holds.FindByOwner(ctx, email)
	if err != nil {
		return Countdown{}, unavailable("find holds", err)
	}
	if len(owned) == 0 {
		return Countdown{}, ErrHoldNotFound
	}
	now := m.deps.Clock.Now()
	live, err := pruneExpired(ctx, m.deps, owned, now)
	if err != nil {
		return Countdown{}, err
	}
	if len(live) == 0 {
		return Countdown{}, ErrHoldExpired
	}
	current := live[0]
	for _, h := range live[1:] {
		if h.ExpiresAt.After(current.ExpiresAt) {
			current = h
		}
	}
	return Countdown{Hold: current, Remaining: current.Remaining(now)}, nil
}

// releaseOwned deletes every hold owned by email.
func (m *HoldManager) releaseOwned(ctx context.Context, email string) error {
	owned, err := m.deps.Holds.FindByOwner(ctx, email)
	if err != nil {
		return unavailable("find owned holds", err)
	}
	for _, h := range owned {
		if err := m.deps.Holds.Delete(ctx, h); err != nil {
			return unavailable("delete owned hold", err)
		}
		m.deps.Logger.Debug("released previous hold", "hold_id", h.ID, "email", email, "slot", h.Slot().String())
	}
	return nil
}

// pruneExpired deletes the expired holds in holds and returns the live ones.
func pruneExpired(ctx context.Context, d Deps, holds []Hold, now time.Time) ([]Hold, error) {
	live := make([]Hold, 0, len(holds))
	for _, h := range holds {
		if h.LiveAt(now) {
			live = append(live, h)
			continue
		}
		if err := d.Holds.Delete(ctx, h); err != nil {
			return nil, unavailable("delete expired hold", err)
		}
		d.Logger.Info("expired hold removed", "hold_id", h.ID, "email", h.Email, "slot", h.Slot().String())
	}
	return live, nil
}

func validateSlotRequest(email string, slot schedule.Slot, serviceRef string) error {
	fields := fieldErrors{}
	if email == "" {
		fields.add("email", "required")
	}
	if slot.Date.IsZero() {
		fields.add("date", "required")
	}
	if serviceRef == "" {
		fields.add("service_ref", "required")
	}
	return fields.err()
}
