package reservation

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Kind classifies every error an operation can return to the UI layer.
type Kind string

const (
	KindValidation         Kind = "validation"
	KindSlotTaken          Kind = "slot_taken"
	KindSlotLocked         Kind = "slot_locked"
	KindHoldExpired        Kind = "hold_expired"
	KindAlreadyRescheduled Kind = "already_rescheduled"
	KindNotFound           Kind = "not_found"
	KindForbidden          Kind = "forbidden"
	KindUnavailable        Kind = "collaborator_unavailable"
)

var (
	// ErrSlotTaken means a confirmed booking already occupies the slot.
	ErrSlotTaken = errors.New("reservation: slot already booked")
	// ErrSlotLocked means another requester holds a live claim on the slot.
	ErrSlotLocked = errors.New("reservation: slot held by another requester")
	// ErrHoldExpired means the hold lapsed before it was used.
	ErrHoldExpired = errors.New("reservation: hold expired")
	// ErrHoldNotFound means the requester has no hold to act on.
	ErrHoldNotFound = errors.New("reservation: hold not found")
	// ErrAlreadyRescheduled means the one-time reschedule was already spent.
	ErrAlreadyRescheduled = errors.New("reservation: booking already rescheduled")
	// ErrNotFound is returned by stores for unknown ids.
	ErrNotFound = errors.New("reservation: not found")
	// ErrNotOwner means the booking belongs to another requester.
	ErrNotOwner = errors.New("reservation: booking belongs to another requester")
	// ErrUnknownService is returned by price lists for unknown service refs.
	ErrUnknownService = errors.New("reservation: unknown service")
	// ErrUnavailable wraps store and notifier failures.
	ErrUnavailable = errors.New("reservation: service temporarily unavailable, please retry")
)

// ValidationError lists invalid request fields.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", k, e.Fields[k]))
	}
	return "reservation: invalid request: " + strings.Join(parts, "; ")
}

// Invalid builds a single-field ValidationError.
func Invalid(field, msg string) *ValidationError {
	return &ValidationError{Fields: map[string]string{field: msg}}
}

type fieldErrors map[string]string

func (f fieldErrors) add(field, msg string) {
	if _, ok := f[field]; !ok {
		f[field] = msg
	}
}

func (f fieldErrors) err() error {
	if len(f) == 0 {
		return nil
	}
	return &ValidationError{Fields: map[string]string(f)}
}

// unavailable converts a collaborator failure at the operation boundary.
func unavailable(op string, err error) error {
	return fmt.Errorf("reservation: %s: %w: %w", op, ErrUnavailable, err)
}

// KindOf maps any error returned by this package to its Kind.
func KindOf(err error) Kind {
	var verr *ValidationError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &verr):
		return KindValidation
	case errors.Is(err, ErrSlotTaken):
		return KindSlotTaken
	case errors.Is(err, ErrSlotLocked):
		return KindSlotLocked
	case errors.Is(err, ErrHoldExpired), errors.Is(err, ErrHoldNotFound):
		return KindHoldExpired
	case errors.Is(err, ErrAlreadyRescheduled):
		return KindAlreadyRescheduled
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrNotOwner):
		return KindForbidden
	default:
		return KindUnavailable
	}
}
