package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/wolfman30/clinic-booking/internal/reservation"
	"github.com/wolfman30/clinic-booking/pkg/logging"
)

const maxBodyBytes = 1 << 16

type errorResponse struct {
	Error  string            `json:"error"`
	Kind   reservation.Kind  `json:"kind"`
	Fields map[string]string `json:"fields,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func statusFor(kind reservation.Kind) int {
	switch kind {
	case reservation.KindValidation:
		return http.StatusBadRequest
	case reservation.KindForbidden:
		return http.StatusForbidden
	case reservation.KindNotFound:
		return http.StatusNotFound
	case reservation.KindSlotTaken, reservation.KindSlotLocked, reservation.KindAlreadyRescheduled:
		return http.StatusConflict
	case reservation.KindHoldExpired:
		return http.StatusGone
	default:
		return http.StatusServiceUnavailable
	}
}

// writeError maps a reservation error onto the HTTP error body.
func writeError(w http.ResponseWriter, logger *logging.Logger, err error) {
	kind := reservation.KindOf(err)
	resp := errorResponse{Error: err.Error(), Kind: kind}

	var verr *reservation.ValidationError
	if errors.As(err, &verr) {
		resp.Error = "invalid request"
		resp.Fields = verr.Fields
	}
	if kind == reservation.KindUnavailable {
		logger.Error("reservation backend unavailable", "error", err)
		resp.Error = "service temporarily unavailable, please try again"
		w.Header().Set("Retry-After", "5")
	}
	writeJSON(w, statusFor(kind), resp)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return reservation.Invalid("body", "invalid JSON payload")
	}
	return nil
}
