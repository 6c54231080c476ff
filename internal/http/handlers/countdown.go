package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/wolfman30/clinic-booking/internal/reservation"
	"golang.org/x/net/websocket"
)

// Countdown stream message types.
const (
	CountdownTick    = "tick"
	CountdownExpired = "expired"
	CountdownNone    = "none"
	CountdownError   = "error"
)

// CountdownMessage is one frame of the countdown stream.
type CountdownMessage struct {
	Type             string           `json:"type"`
	HoldID           string           `json:"hold_id,omitempty"`
	RemainingSeconds int64            `json:"remaining_seconds"`
	Kind             reservation.Kind `json:"kind,omitempty"`
}

// CountdownStream upgrades to a WebSocket and pushes the requester's remaining
// hold time every tick. When the hold lapses it is deleted, an "expired" frame
// is sent and the stream closes.
func (h *ReservationHandler) CountdownStream(w http.ResponseWriter, r *http.Request) {
	email := emailFrom(r)
	if email == "" {
		writeError(w, h.logger, reservation.Invalid("email", "required"))
		return
	}
	websocket.Handler(func(conn *websocket.Conn) {
		h.serveCountdown(conn, r, email)
	}).ServeHTTP(w, r)
}

func (h *ReservationHandler) serveCountdown(conn *websocket.Conn, r *http.Request, email string) {
	ctx := r.Context()
	ticker := time.NewTicker(h.tick)
	defer ticker.Stop()

	var last *reservation.Hold
	for {
		cd, err := h.svc.Holds.Current(ctx, email)
		if err != nil && !errors.Is(err, reservation.ErrHoldExpired) && !errors.Is(err, reservation.ErrHoldNotFound) {
			h.logger.Warn("countdown lookup failed", "email", email, "error", err)
		}
		msg := countdownFrame(cd, err, last, h.clock.Now())
		if sendErr := websocket.JSON.Send(conn, msg); sendErr != nil {
			return
		}
		if msg.Type != CountdownTick {
			return
		}
		hold := cd.Hold
		last = &hold
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// countdownFrame builds the next frame. A hold the stream already showed that
// has since lapsed is reported as expired even if another request pruned it
// first and the lookup found nothing.
func countdownFrame(cd reservation.Countdown, err error, last *reservation.Hold, now time.Time) CountdownMessage {
	msg := CountdownMessage{Type: CountdownTick}
	switch {
	case err == nil:
		msg.HoldID = cd.Hold.ID
		msg.RemainingSeconds = cd.Seconds()
	case errors.Is(err, reservation.ErrHoldExpired):
		msg.Type = CountdownExpired
	case errors.Is(err, reservation.ErrHoldNotFound):
		msg.Type = CountdownNone
		if last != nil && !last.LiveAt(now) {
			msg.Type = CountdownExpired
			msg.HoldID = last.ID
		}
	default:
		msg.Type = CountdownError
		msg.Kind = reservation.KindOf(err)
	}
	return msg
}
