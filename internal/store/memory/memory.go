// Package memory provides in-process booking and hold stores partitioned by
// date. They suit local development and tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wolfman30/clinic-booking/internal/reservation"
	"github.com/wolfman30/clinic-booking/internal/schedule"
)

// BookingStore keeps bookings in memory.
type BookingStore struct {
	mu     sync.RWMutex
	byDate map[schedule.Date]map[string]reservation.Booking
	dates  map[string]schedule.Date
}

// NewBookingStore creates an empty booking store.
func NewBookingStore() *BookingStore {
	return &BookingStore{
		byDate: make(map[schedule.Date]map[string]reservation.Booking),
		dates:  make(map[string]schedule.Date),
	}
}

func (s *BookingStore) ListByDate(_ context.Context, date schedule.Date) ([]reservation.Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]reservation.Booking, 0, len(s.byDate[date]))
	for _, b := range s.byDate[date] {
		out = append(out, b)
	}
	sortBookings(out)
	return out, nil
}

func (s *BookingStore) FindBySlot(_ context.Context, slot schedule.Slot) ([]reservation.Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.atSlot(slot), nil
}

func (s *BookingStore) Get(_ context.Context, id string) (reservation.Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	date, ok := s.dates[id]
	if !ok {
		return reservation.Booking{}, reservation.ErrNotFound
	}
	return s.byDate[date][id], nil
}

func (s *BookingStore) Insert(_ context.Context, b reservation.Booking) (reservation.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.put(b), nil
}

// ClaimBookingSlot inserts b unless a booking already holds its slot.
func (s *BookingStore) ClaimBookingSlot(_ context.Context, b reservation.Booking) (reservation.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.atSlot(b.Slot())) > 0 {
		return reservation.Booking{}, reservation.ErrSlotTaken
	}
	return s.put(b), nil
}

func (s *BookingStore) Reschedule(_ context.Context, current reservation.Booking, to schedule.Slot) (reservation.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	date, ok := s.dates[current.ID]
	if !ok {
		return reservation.Booking{}, reservation.ErrNotFound
	}
	stored := s.byDate[date][current.ID]
	if stored.RescheduledOnce {
		return reservation.Booking{}, reservation.ErrAlreadyRescheduled
	}
	for _, other := range s.atSlot(to) {
		if other.ID != stored.ID {
			return reservation.Booking{}, reservation.ErrSlotTaken
		}
	}
	delete(s.byDate[date], stored.ID)
	stored.Date, stored.Time = to.Date, to.Time
	stored.RescheduledOnce = true
	return s.put(stored), nil
}

// Len returns the number of stored bookings.
func (s *BookingStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.dates)
}

func (s *BookingStore) put(b reservation.Booking) reservation.Booking {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	if prev, ok := s.dates[b.ID]; ok {
		delete(s.byDate[prev], b.ID)
	}
	day, ok := s.byDate[b.Date]
	if !ok {
		day = make(map[string]reservation.Booking)
		s.byDate[b.Date] = day
	}
	day[b.ID] = b
	s.dates[b.ID] = b.Date
	return b
}

func (s *BookingStore) atSlot(slot schedule.Slot) []reservation.Booking {
	var out []reservation.Booking
	for _, b := range s.byDate[slot.Date] {
		if b.Time == slot.Time {
			out = append(out, b)
		}
	}
	sortBookings(out)
	return out
}

// HoldStore keeps holds in memory.
type HoldStore struct {
	mu     sync.RWMutex
	byDate map[schedule.Date]map[string]reservation.Hold
}

// NewHoldStore creates an empty hold store.
func NewHoldStore() *HoldStore {
	return &HoldStore{byDate: make(map[schedule.Date]map[string]reservation.Hold)}
}

func (s *HoldStore) ListByDate(_ context.Context, date schedule.Date) ([]reservation.Hold, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]reservation.Hold, 0, len(s.byDate[date]))
	for _, h := range s.byDate[date] {
		out = append(out, h)
	}
	sortHolds(out)
	return out, nil
}

func (s *HoldStore) FindBySlot(_ context.Context, slot schedule.Slot) ([]reservation.Hold, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.atSlot(slot), nil
}

func (s *HoldStore) FindByOwner(_ context.Context, email string) ([]reservation.Hold, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []reservation.Hold
	for _, day := range s.byDate {
		for _, h := range day {
			if h.OwnedBy(email) {
				out = append(out, h)
			}
		}
	}
	sortHolds(out)
	return out, nil
}

func (s *HoldStore) Insert(_ context.Context, h reservation.Hold) (reservation.Hold, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.put(h), nil
}

// ClaimHoldSlot inserts h unless another owner has a live hold on its slot.
// Expired and same-owner rows on the slot are replaced.
func (s *HoldStore) ClaimHoldSlot(_ context.Context, h reservation.Hold, now time.Time) (reservation.Hold, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, other := range s.atSlot(h.Slot()) {
		if other.LiveAt(now) && !other.OwnedBy(h.Email) {
			return reservation.Hold{}, reservation.ErrSlotLocked
		}
	}
	for _, other := range s.atSlot(h.Slot()) {
		delete(s.byDate[other.Date], other.ID)
	}
	return s.put(h), nil
}

func (s *HoldStore) Delete(_ context.Context, h reservation.Hold) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if day, ok := s.byDate[h.Date]; ok {
		delete(day, h.ID)
		return nil
	}
	for _, day := range s.byDate {
		delete(day, h.ID)
	}
	return nil
}

// Len returns the number of stored holds, live or not.
func (s *HoldStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, day := range s.byDate {
		n += len(day)
	}
	return n
}

func (s *HoldStore) put(h reservation.Hold) reservation.Hold {
	if h.ID == "" {
		h.ID = uuid.NewString()
	}
	day, ok := s.byDate[h.Date]
	if !ok {
		day = make(map[string]reservation.Hold)
		s.byDate[h.Date] = day
	}
	day[h.ID] = h
	return h
}

func (s *HoldStore) atSlot(slot schedule.Slot) []reservation.Hold {
	var out []reservation.Hold
	for _, h := range s.byDate[slot.Date] {
		if h.Time == slot.Time {
			out = append(out, h)
		}
	}
	sortHolds(out)
	return out
}

// WithoutBookingClaims hides the conditional insert of a booking store, so
// callers fall back to check-then-write.
func WithoutBookingClaims(s reservation.BookingStore) reservation.BookingStore {
	return struct{ reservation.BookingStore }{s}
}

// WithoutHoldClaims hides the conditional insert of a hold store.
func WithoutHoldClaims(s reservation.HoldStore) reservation.HoldStore {
	return struct{ reservation.HoldStore }{s}
}

func sortBookings(bs []reservation.Booking) {
	sort.Slice(bs, func(i, j int) bool {
		if bs[i].Time != bs[j].Time {
			return bs[i].Time.Before(bs[j].Time)
		}
		return bs[i].CreatedAt.Before(bs[j].CreatedAt)
	})
}

func sortHolds(hs []reservation.Hold) {
	sort.Slice(hs, func(i, j int) bool {
		if hs[i].Date != hs[j].Date {
			return hs[i].Date.Before(hs[j].Date)
		}
		if hs[i].Time != hs[j].Time {
			return hs[i].Time.Before(hs[j].Time)
		}
		return hs[i].ExpiresAt.Before(hs[j].ExpiresAt)
	})
}
