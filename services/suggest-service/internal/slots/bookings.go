package slots

import (
	"strings"
	"time"

	"github.com/md-rashed-zaman/slotsuggest/services/suggest-service/internal/model"
)

// Interval is a parsed booking, half-open [Start, End).
type Interval struct {
	Start time.Time
	End   time.Time
}

var offsetLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04Z07:00",
}

var localLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04",
	time.DateOnly,
}

// ParseBookings parses booking timestamps once per computation. Values
// without a UTC offset are taken as wall-clock times in loc. Entries whose
// start or end cannot be parsed are dropped.
func ParseBookings(in []model.ExistingBooking, loc *time.Location) []Interval {
	out := make([]Interval, 0, len(in))
	for _, b := range in {
		start, ok := ParseTimestamp(b.Start, loc)
		if !ok {
			continue
		}
		end, ok := ParseTimestamp(b.End, loc)
		if !ok {
			continue
		}
		out = append(out, Interval{Start: start, End: end})
	}
	return out
}

// ParseTimestamp accepts ISO-8601 date-times with or without an offset, a
// space in place of the T separator, and bare dates.
func ParseTimestamp(raw string, loc *time.Location) (time.Time, bool) {
	s := strings.TrimSpace(raw)
	if len(s) > 10 && s[10] == ' ' {
		s = s[:10] + "T" + s[11:]
	}
	for _, layout := range offsetLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	for _, layout := range localLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func overlapsAny(start, end time.Time, bookings []Interval) bool {
	for _, b := range bookings {
		// Half-open intervals: [start,end) overlaps [b.Start,b.End) iff start < b.End && b.Start < end.
		if start.Before(b.End) && b.Start.Before(end) {
			return true
		}
	}
	return false
}

// respectsBuffer only looks at bookings adjacent to the slot: one that ends
// at or before start, or one that starts at or after end.
func respectsBuffer(start, end time.Time, bookings []Interval, buffer time.Duration) bool {
	if buffer <= 0 {
		return true
	}
	for _, b := range bookings {
		switch {
		case !b.Start.Before(end):
			if b.Start.Sub(end) < buffer {
				return false
			}
		case !b.End.After(start):
			if start.Sub(b.End) < buffer {
				return false
			}
		}
	}
	return true
}
