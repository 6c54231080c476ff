// Package reservation implements the clinic's slot-reservation protocol: the
// availability oracle, hold manager, booking confirmer and reschedule gate.
//
// Components keep no authoritative state. Every mutation re-reads the stores
// first, and hold expiry is evaluated lazily with Hold.LiveAt.
package reservation

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/wolfman30/clinic-booking/internal/clock"
	"github.com/wolfman30/clinic-booking/internal/schedule"
	"github.com/wolfman30/clinic-booking/pkg/logging"
)

var tracer = otel.Tracer("clinic.internal.reservation")

// Operation outcomes reported to the Recorder.
const (
	OutcomeSuccess = "success"
)

// Deps wires the collaborators shared by every component.
type Deps struct {
	Bookings BookingStore
	Holds    HoldStore
	Policies PolicySource
	Prices   PriceList
	Notifier Notifier
	Clock    clock.Clock
	Logger   *logging.Logger
	Metrics  Recorder
}

func (d Deps) withDefaults() Deps {
	if d.Bookings == nil {
		panic("reservation: booking store required")
	}
	if d.Holds == nil {
		panic("reservation: hold store required")
	}
	if d.Policies == nil {
		d.Policies = StaticPolicy(DefaultPolicy())
	}
	if d.Prices == nil {
		d.Prices = StaticPrices{}
	}
	if d.Notifier == nil {
		d.Notifier = nopNotifier{}
	}
	if d.Clock == nil {
		d.Clock = clock.NewSystem()
	}
	if d.Logger == nil {
		d.Logger = logging.Default()
	}
	if d.Metrics == nil {
		d.Metrics = nopRecorder{}
	}
	return d
}

// policy loads the current policy and fills gaps with defaults.
func (d Deps) policy(ctx context.Context) (Policy, error) {
	p, err := d.Policies.Policy(ctx)
	if err != nil {
		return Policy{}, unavailable("load policy", err)
	}
	if p.Location == nil {
		p.Location = time.UTC
	}
	if p.HoldTTL <= 0 {
		p.HoldTTL = DefaultHoldTTL
	}
	return p, nil
}

// Service bundles the four protocol components over one set of dependencies.
type Service struct {
	Oracle      *Oracle
	Holds       *HoldManager
	Confirmer   *Confirmer
	Rescheduler *Rescheduler
}

// New constructs every component.
func New(d Deps) *Service {
	d = d.withDefaults()
	return &Service{
		Oracle:      NewOracle(d),
		Holds:       NewHoldManager(d),
		Confirmer:   NewConfirmer(d),
		Rescheduler: NewRescheduler(d),
	}
}

// checkBookable validates that slot is an offered, non-lunch, future slot.
func checkBookable(p Policy, now time.Time, slot schedule.Slot) error {
	switch {
	case !p.Hours.Offers(slot.Date.Weekday(), slot.Time):
		return Invalid("time", "slot is not offered on this day")
	case p.Hours.IsLunch(slot.Time):
		return Invalid("time", "slot falls in the lunch break")
	case isPast(p.Location, now, slot):
		return Invalid("date", "slot is in the past")
	}
	return nil
}

// isPast applies the grace rule: a slot stays bookable during the first half
// of its own hour.
func isPast(loc *time.Location, now time.Time, slot schedule.Slot) bool {
	local := now.In(loc)
	today := schedule.DateOf(local)
	switch {
	case slot.Date.Before(today):
		return true
	case slot.Date != today:
		return false
	case slot.Time.Hour < local.Hour():
		return true
	case slot.Time.Hour == local.Hour():
		return local.Minute() >= 30
	}
	return false
}

func slotAttrs(slot schedule.Slot, email string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("clinic.slot", slot.String()),
		attribute.String("clinic.requester", email),
	}
}

// finish records the outcome on the span and returns err unchanged.
func finish(span trace.Span, err error) error {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(KindOf(err)))
	}
	return err
}

// outcome maps an error to a metrics label.
func outcome(err error) string {
	if err == nil {
		return OutcomeSuccess
	}
	return string(KindOf(err))
}
