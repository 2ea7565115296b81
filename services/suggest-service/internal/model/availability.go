package model

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
)

const (
	DefaultSlotLengthMinutes = 30
	DefaultBufferMinutes     = 10
	DefaultBusinessStart     = "09:00"
	DefaultBusinessEnd       = "17:00"
)

// TimeWindow is a half-open [Start, End) range of HH:MM times within a day.
type TimeWindow struct {
	Start string `json:"start" validate:"required,clock"`
	End   string `json:"end" validate:"required,clock"`
}

// DateSpan is an inclusive range of YYYY-MM-DD calendar dates.
type DateSpan struct {
	Start string `json:"start" validate:"required,datetime=2006-01-02"`
	End   string `json:"end" validate:"required,datetime=2006-01-02"`
}

// ExistingBooking is an already-booked interval. Values are ISO-8601 date-times;
// those without an offset are read in the availability's timezone.
type ExistingBooking struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// AvailabilitySpec is the normalized availability record the slot engine
// runs on.
type AvailabilitySpec struct {
	ProviderID           string            `json:"provider_id" validate:"required"`
	Timezone             string            `json:"timezone" validate:"required,timezone"`
	SlotLengthMinutes    int               `json:"slot_length_minutes" validate:"min=5,max=120"`
	BufferMinutes        int               `json:"buffer_minutes" validate:"min=0,max=60"`
	BusinessHours        TimeWindow        `json:"business_hours"`
	DateRange            DateSpan          `json:"date_range"`
	ExistingAppointments []ExistingBooking `json:"existing_appointments"`
	PreferredDays        []int             `json:"preferred_days" validate:"dive,min=0,max=6"`
	PreferredTimes       []TimeWindow      `json:"preferred_times" validate:"dive"`
}

// NewAvailabilitySpec returns a spec with every optional field at its default.
func NewAvailabilitySpec(providerID, timezone string, dates DateSpan) AvailabilitySpec {
	spec := defaults()
	spec.ProviderID = providerID
	spec.Timezone = timezone
	spec.DateRange = dates
	return spec
}

func defaults() AvailabilitySpec {
	return AvailabilitySpec{
		SlotLengthMinutes:    DefaultSlotLengthMinutes,
		BufferMinutes:        DefaultBufferMinutes,
		BusinessHours:        TimeWindow{Start: DefaultBusinessStart, End: DefaultBusinessEnd},
		ExistingAppointments: []ExistingBooking{},
		PreferredDays:        []int{0, 1, 2, 3, 4},
		PreferredTimes:       []TimeWindow{},
	}
}

// UnmarshalJSON fills fields missing from the document with their defaults.
// Explicit zero values (for example "buffer_minutes": 0) are kept.
func (s *AvailabilitySpec) UnmarshalJSON(data []byte) error {
	type plain AvailabilitySpec
	out := plain(defaults())
	if err := json.Unmarshal(data, &out); err != nil {
		return err
	}
	if out.ExistingAppointments == nil {
		out.ExistingAppointments = []ExistingBooking{}
	}
	if out.PreferredTimes == nil {
		out.PreferredTimes = []TimeWindow{}
	}
	*s = AvailabilitySpec(out)
	return nil
}

// ClockMinutes converts HH:MM into minutes after midnight.
func ClockMinutes(s string) (int, error) {
	h, m, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok || len(h) != 2 || len(m) != 2 {
		return 0, fmt.Errorf("invalid time of day %q", s)
	}
	hour, err := strconv.Atoi(h)
	if err != nil || hour < 0 || hour > 23 {
		return 0, fmt.Errorf("invalid time of day %q", s)
	}
	minute, err := strconv.Atoi(m)
	if err != nil || minute < 0 || minute > 59 {
		return 0, fmt.Errorf("invalid time of day %q", s)
	}
	return hour*60 + minute, nil
}
