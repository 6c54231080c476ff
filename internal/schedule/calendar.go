// Package schedule computes the clinic's bookable time-of-day slots.
package schedule

import "time"

// DayHours bounds the slot start times of a day, both ends inclusive.
type DayHours struct {
	FirstStart TimeOfDay `json:"first_start"`
	LastStart  TimeOfDay `json:"last_start"`
}

// Window is a half-open [Start, End) range of the day.
type Window struct {
	Start TimeOfDay `json:"start"`
	End   TimeOfDay `json:"end"`
}

// Contains reports whether t falls inside the window.
func (w Window) Contains(t TimeOfDay) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

// Hours is the clinic's opening schedule.
type Hours struct {
	Weekday DayHours `json:"weekday"`
	Weekend DayHours `json:"weekend"`
	Lunch   Window   `json:"lunch"`
}

// DefaultHours: Mon-Fri 10:00-19:00 starts, Sat-Sun 11:00-19:00, lunch 12:00-12:30.
func DefaultHours() Hours {
	return Hours{
		Weekday: DayHours{FirstStart: At(10), LastStart: At(19)},
		Weekend: DayHours{FirstStart: At(11), LastStart: At(19)},
		Lunch:   Window{Start: At(12), End: TimeOfDay{Hour: 12, Minute: 30}},
	}
}

// GenerateSlots returns the default hourly start times for weekday.
func GenerateSlots(weekday time.Weekday) []TimeOfDay {
	return DefaultHours().Slots(weekday)
}

// Slots returns hourly start times for weekday. The lunch slot is included;
// filtering it is the availability layer's job.
func (h Hours) Slots(weekday time.Weekday) []TimeOfDay {
	day := h.Weekday
	if IsWeekend(weekday) {
		day = h.Weekend
	}
	var out []TimeOfDay
	for t := day.FirstStart; !day.LastStart.Before(t); t = (TimeOfDay{Hour: t.Hour + 1, Minute: t.Minute}) {
		out = append(out, t)
	}
	return out
}

// Offers reports whether t is one of the generated start times for weekday.
func (h Hours) Offers(weekday time.Weekday, t TimeOfDay) bool {
	for _, s := range h.Slots(weekday) {
		if s == t {
			return true
		}
	}
	return false
}

// IsLunch reports whether t falls in the lunch break.
func (h Hours) IsLunch(t TimeOfDay) bool {
	return h.Lunch.Contains(t)
}

func IsWeekend(d time.Weekday) bool {
	return d == time.Saturday || d == time.Sunday
}
