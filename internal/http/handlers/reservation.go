package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/wolfman30/clinic-booking/internal/clock"
	"github.com/wolfman30/clinic-booking/internal/http/middleware"
	"github.com/wolfman30/clinic-booking/internal/reservation"
	"github.com/wolfman30/clinic-booking/internal/schedule"
	"github.com/wolfman30/clinic-booking/pkg/logging"
)

// ReservationConfig wires the reservation endpoints.
type ReservationConfig struct {
	Service *reservation.Service
	Logger  *logging.Logger
	Clock   clock.Clock
	// HoldRateLimit wraps POST /holds when set.
	HoldRateLimit func(http.Handler) http.Handler
	// CountdownInterval is the tick period of the countdown stream.
	CountdownInterval time.Duration
}

// ReservationHandler serves schedule, hold and booking endpoints.
type ReservationHandler struct {
	svc       *reservation.Service
	logger    *logging.Logger
	clock     clock.Clock
	holdLimit func(http.Handler) http.Handler
	tick      time.Duration
}

func NewReservationHandler(cfg ReservationConfig) *ReservationHandler {
	if cfg.Service == nil {
		panic("handlers: reservation service cannot be nil")
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.NewSystem()
	}
	if cfg.CountdownInterval <= 0 {
		cfg.CountdownInterval = time.Second
	}
	return &ReservationHandler{
		svc:       cfg.Service,
		logger:    cfg.Logger,
		clock:     cfg.Clock,
		holdLimit: cfg.HoldRateLimit,
		tick:      cfg.CountdownInterval,
	}
}

// Register mounts the endpoints on r.
func (h *ReservationHandler) Register(r chi.Router) {
	r.Get("/schedule/{date}", h.DayView)
	r.Get("/schedule/{date}/slots/{time}", h.ClassifySlot)

	r.Route("/holds", func(r chi.Router) {
		if h.holdLimit != nil {
			r.With(h.holdLimit).Post("/", h.AcquireHold)
		} else {
			r.Post("/", h.AcquireHold)
		}
		r.Get("/current", h.CurrentHold)
		r.Get("/current/ws", h.CountdownStream)
		r.Delete("/{holdID}", h.CancelHold)
	})

	r.Route("/bookings", func(r chi.Router) {
		r.Post("/", h.ConfirmBooking)
		r.Get("/{bookingID}", h.GetBooking)
		r.Post("/{bookingID}/reschedule", h.RescheduleBooking)
	})
}

type requesterFields struct {
	Email string `json:"email" validate:"required,email,max=254"`
	Name  string `json:"name,omitempty" validate:"max=200"`
	Phone string `json:"phone,omitempty" validate:"max=32"`
}

// HoldRequest is the body of POST /holds.
type HoldRequest struct {
	requesterFields
	Date       string `json:"date" validate:"required"`
	Time       string `json:"time" validate:"required"`
	ServiceRef string `json:"service_ref" validate:"required,max=128"`
}

// ConfirmBookingRequest is the body of POST /bookings.
type ConfirmBookingRequest struct {
	requesterFields
	Date            string `json:"date" validate:"required"`
	Time            string `json:"time" validate:"required"`
	ServiceRef      string `json:"service_ref" validate:"required,max=128"`
	PaymentAsserted bool   `json:"payment_asserted"`
}

// RescheduleBookingRequest is the body of POST /bookings/{bookingID}/reschedule.
type RescheduleBookingRequest struct {
	requesterFields
	Date string `json:"date" validate:"required"`
	Time string `json:"time" validate:"required"`
}

// HoldResponse describes a freshly acquired hold.
type HoldResponse struct {
	Hold             reservation.Hold `json:"hold"`
	ExpiresInSeconds int64            `json:"expires_in_seconds"`
}

// CountdownResponse is the body of GET /holds/current.
type CountdownResponse struct {
	Hold             reservation.Hold `json:"hold"`
	RemainingSeconds int64            `json:"remaining_seconds"`
}

// DayViewResponse lists every slot of a day.
type DayViewResponse struct {
	Date  schedule.Date          `json:"date"`
	Slots []reservation.SlotView `json:"slots"`
}

// DayView handles GET /schedule/{date}.
func (h *ReservationHandler) DayView(w http.ResponseWriter, r *http.Request) {
	date, err := schedule.ParseDate(chi.URLParam(r, "date"))
	if err != nil {
		writeError(w, h.logger, reservation.Invalid("date", "must be YYYY-MM-DD"))
		return
	}
	views, err := h.svc.Oracle.DayView(r.Context(), viewerFrom(r), date)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, DayViewResponse{Date: date, Slots: views})
}

// ClassifySlot handles GET /schedule/{date}/slots/{time}.
func (h *ReservationHandler) ClassifySlot(w http.ResponseWriter, r *http.Request) {
	slot, err := parseSlot(chi.URLParam(r, "date"), chi.URLParam(r, "time"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	view, err := h.svc.Oracle.Classify(r.Context(), viewerFrom(r), slot)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// AcquireHold handles POST /holds.
func (h *ReservationHandler) AcquireHold(w http.ResponseWriter, r *http.Request) {
	var req HoldRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	req.requesterFields = withIdentity(r, req.requesterFields)
	if err := validateStruct(req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	slot, err := parseSlot(req.Date, req.Time)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	hold, err := h.svc.Holds.Acquire(r.Context(), reservation.AcquireRequest{
		Requester:  req.requester(),
		Slot:       slot,
		ServiceRef: req.ServiceRef,
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	cd := reservation.Countdown{Hold: hold, Remaining: hold.Remaining(h.clock.Now())}
	writeJSON(w, http.StatusCreated, HoldResponse{Hold: hold, ExpiresInSeconds: cd.Seconds()})
}

// CurrentHold handles GET /holds/current.
func (h *ReservationHandler) CurrentHold(w http.ResponseWriter, r *http.Request) {
	cd, err := h.svc.Holds.Current(r.Context(), emailFrom(r))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, CountdownResponse{Hold: cd.Hold, RemainingSeconds: cd.Seconds()})
}

// CancelHold handles DELETE /holds/{holdID}.
func (h *ReservationHandler) CancelHold(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Holds.Cancel(r.Context(), emailFrom(r), chi.URLParam(r, "holdID")); err != nil {
		writeError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ConfirmBooking handles POST /bookings.
func (h *ReservationHandler) ConfirmBooking(w http.ResponseWriter, r *http.Request) {
	var req ConfirmBookingRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	req.requesterFields = withIdentity(r, req.requesterFields)
	if err := validateStruct(req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	slot, err := parseSlot(req.Date, req.Time)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	booking, err := h.svc.Confirmer.Confirm(r.Context(), reservation.ConfirmRequest{
		Requester:       req.requester(),
		Slot:            slot,
		ServiceRef:      req.ServiceRef,
		PaymentAsserted: req.PaymentAsserted,
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, booking)
}

// GetBooking handles GET /bookings/{bookingID}.
func (h *ReservationHandler) GetBooking(w http.ResponseWriter, r *http.Request) {
	booking, err := h.svc.Oracle.Lookup(r.Context(), emailFrom(r), chi.URLParam(r, "bookingID"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, booking)
}

// RescheduleBooking handles POST /bookings/{bookingID}/reschedule.
func (h *ReservationHandler) RescheduleBooking(w http.ResponseWriter, r *http.Request) {
	var req RescheduleBookingRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	req.requesterFields = withIdentity(r, req.requesterFields)
	if err := validateStruct(req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	to, err := parseSlot(req.Date, req.Time)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	booking, err := h.svc.Rescheduler.Reschedule(r.Context(), reservation.RescheduleRequest{
		Requester: req.requester(),
		BookingID: chi.URLParam(r, "bookingID"),
		To:        to,
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, booking)
}

func (f requesterFields) requester() reservation.Requester {
	return reservation.Requester{Email: f.Email, Name: f.Name, Phone: f.Phone}
}

// withIdentity overrides body-asserted fields with the verified token identity.
func withIdentity(r *http.Request, f requesterFields) requesterFields {
	id, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		return f
	}
	f.Email = id.Email
	if id.Name != "" {
		f.Name = id.Name
	}
	if id.Phone != "" {
		f.Phone = id.Phone
	}
	return f
}

func emailFrom(r *http.Request) string {
	if id, ok := middleware.IdentityFromContext(r.Context()); ok {
		return id.Email
	}
	return strings.TrimSpace(r.URL.Query().Get("email"))
}

func viewerFrom(r *http.Request) reservation.Viewer {
	return reservation.Viewer{
		Email:      reservation.NormalizeEmail(emailFrom(r)),
		ServiceRef: strings.TrimSpace(r.URL.Query().Get("service_ref")),
	}
}

func parseSlot(date, tod string) (schedule.Slot, error) {
	var slot schedule.Slot
	var err error
	fields := map[string]string{}
	if slot.Date, err = schedule.ParseDate(date); err != nil {
		fields["date"] = "must be YYYY-MM-DD"
	}
	if slot.Time, err = schedule.ParseTimeOfDay(tod); err != nil {
		fields["time"] = "must be HH:MM"
	}
	if len(fields) > 0 {
		return schedule.Slot{}, &reservation.ValidationError{Fields: fields}
	}
	return slot, nil
}
