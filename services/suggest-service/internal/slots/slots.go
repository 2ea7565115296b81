package slots

import (
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/md-rashed-zaman/slotsuggest/services/suggest-service/internal/model"
)

// CandidateSlot is one bookable interval, expressed in the availability's timezone.
type CandidateSlot struct {
	Start      time.Time
	End        time.Time
	ProviderID string
}

// MarshalJSON renders the slot as ISO-8601 strings carrying the local offset.
func (s CandidateSlot) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Wire())
}

// ISOLayout always writes a numeric UTC offset, +00:00 rather than Z.
const ISOLayout = "2006-01-02T15:04:05-07:00"

// WireSlot is the serialized form of a CandidateSlot.
type WireSlot struct {
	StartISO   string `json:"start_iso"`
	EndISO     string `json:"end_iso"`
	ProviderID string `json:"provider_id"`
}

func (s CandidateSlot) Wire() WireSlot {
	return WireSlot{
		StartISO:   s.Start.Format(ISOLayout),
		EndISO:     s.End.Format(ISOLayout),
		ProviderID: s.ProviderID,
	}
}

type TimezoneError struct {
	Name string
	Err  error
}

func (e *TimezoneError) Error() string {
	return fmt.Sprintf("unknown timezone %q: %v", e.Name, e.Err)
}

func (e *TimezoneError) Unwrap() error { return e.Err }

// ComputeSlots enumerates up to maxSlots free slots in chronological order.
//
// Dates are walked from DateRange.Start to DateRange.End inclusive and each
// day is stepped from the business-hours start in slot-length increments. A
// step is emitted when its weekday is preferred, its start falls inside a
// preferred window (if any), it overlaps no booking, and the gap to every
// booking that ends before it or starts after it is at least BufferMinutes.
//
// An unknown timezone yields a *TimezoneError. Malformed bookings are
// ignored. An inverted date range or maxSlots <= 0 yields no slots.
func ComputeSlots(spec model.AvailabilitySpec, maxSlots int) ([]CandidateSlot, error) {
	loc, err := time.LoadLocation(spec.Timezone)
	if err != nil {
		return nil, &TimezoneError{Name: spec.Timezone, Err: err}
	}
	if maxSlots <= 0 {
		return []CandidateSlot{}, nil
	}

	from, err := time.Parse(time.DateOnly, spec.DateRange.Start)
	if err != nil {
		return nil, fmt.Errorf("date_range.start: %w", err)
	}
	to, err := time.Parse(time.DateOnly, spec.DateRange.End)
	if err != nil {
		return nil, fmt.Errorf("date_range.end: %w", err)
	}
	openMin, err := model.ClockMinutes(spec.BusinessHours.Start)
	if err != nil {
		return nil, fmt.Errorf("business_hours.start: %w", err)
	}
	closeMin, err := model.ClockMinutes(spec.BusinessHours.End)
	if err != nil {
		return nil, fmt.Errorf("business_hours.end: %w", err)
	}
	windows, err := parseWindows(spec.PreferredTimes)
	if err != nil {
		return nil, err
	}
	if spec.SlotLengthMinutes <= 0 {
		return nil, fmt.Errorf("slot_length_minutes must be positive, got %d", spec.SlotLengthMinutes)
	}

	length := time.Duration(spec.SlotLengthMinutes) * time.Minute
	buffer := time.Duration(spec.BufferMinutes) * time.Minute
	bookings := ParseBookings(spec.ExistingAppointments, loc)
	days := weekdaySet(spec.PreferredDays)

	out := make([]CandidateSlot, 0, maxSlots)
	for d := from; !d.After(to) && len(out) < maxSlots; d = d.AddDate(0, 0, 1) {
		dayStart := time.Date(d.Year(), d.Month(), d.Day(), openMin/60, openMin%60, 0, 0, loc)
		dayEnd := time.Date(d.Year(), d.Month(), d.Day(), closeMin/60, closeMin%60, 0, 0, loc)

		for start := dayStart; start.Before(dayEnd) && len(out) < maxSlots; start = start.Add(length) {
			end := start.Add(length)
			if end.After(dayEnd) {
				break
			}
			if !days[mondayIndex(start.Weekday())] {
				continue
			}
			if !inWindows(start, windows) {
				continue
			}
			if overlapsAny(start, end, bookings) {
				continue
			}
			if !respectsBuffer(start, end, bookings, buffer) {
				continue
			}
			out = append(out, CandidateSlot{Start: start, End: end, ProviderID: spec.ProviderID})
		}
	}
	return out, nil
}

type window struct{ start, end int }

func parseWindows(in []model.TimeWindow) ([]window, error) {
	out := make([]window, 0, len(in))
	for i, w := range in {
		start, err := model.ClockMinutes(w.Start)
		if err != nil {
			return nil, fmt.Errorf("preferred_times[%d].start: %w", i, err)
		}
		end, err := model.ClockMinutes(w.End)
		if err != nil {
			return nil, fmt.Errorf("preferred_times[%d].end: %w", i, err)
		}
		out = append(out, window{start: start, end: end})
	}
	return out, nil
}

// inWindows reports whether t's local minute-of-day lies in [start, end) of
// any window. No windows means no restriction.
func inWindows(t time.Time, windows []window) bool {
	if len(windows) == 0 {
		return true
	}
	cur := t.Hour()*60 + t.Minute()
	for _, w := range windows {
		if w.start <= cur && cur < w.end {
			return true
		}
	}
	return false
}

// weekdaySet indexes preferred days Monday=0. An empty list means Monday
// through Friday.
func weekdaySet(days []int) [7]bool {
	var set [7]bool
	if len(days) == 0 {
		days = []int{0, 1, 2, 3, 4}
	}
	for _, d := range days {
		if d >= 0 && d < 7 {
			set[d] = true
		}
	}
	return set
}

// mondayIndex maps time.Weekday (Sunday=0) to Monday=0..Sunday=6.
func mondayIndex(w time.Weekday) int {
	return (int(w) + 6) % 7
}
