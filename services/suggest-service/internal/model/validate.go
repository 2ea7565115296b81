package model

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// DefaultMaxDateSpanDays bounds how many calendar days one request may scan.
const DefaultMaxDateSpanDays = 366

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("clock", func(fl validator.FieldLevel) bool {
		_, err := ClockMinutes(fl.Field().String())
		return err == nil
	})
	return v
}

// FieldError describes one invalid field using its JSON path.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Message)
	}
	return "invalid availability: " + strings.Join(parts, "; ")
}

// Validate checks field ranges and formats, then the cross-field rules:
// business hours must start before they end and the date range may not
// exceed maxSpanDays (DefaultMaxDateSpanDays when <= 0).
func Validate(spec AvailabilitySpec, maxSpanDays int) error {
	if maxSpanDays <= 0 {
		maxSpanDays = DefaultMaxDateSpanDays
	}
	verr := &ValidationError{}

	if err := validate.Struct(spec); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return err
		}
		for _, fe := range fieldErrs {
			verr.Fields = append(verr.Fields, FieldError{Field: fieldPath(fe), Message: describe(fe)})
		}
	}

	if start, err1 := ClockMinutes(spec.BusinessHours.Start); err1 == nil {
		if end, err2 := ClockMinutes(spec.BusinessHours.End); err2 == nil && end <= start {
			verr.Fields = append(verr.Fields, FieldError{Field: "business_hours", Message: "start must be before end"})
		}
	}
	for i, w := range spec.PreferredTimes {
		start, err1 := ClockMinutes(w.Start)
		end, err2 := ClockMinutes(w.End)
		if err1 == nil && err2 == nil && end <= start {
			verr.Fields = append(verr.Fields, FieldError{Field: fmt.Sprintf("preferred_times[%d]", i), Message: "start must be before end"})
		}
	}

	from, err1 := time.Parse(time.DateOnly, spec.DateRange.Start)
	to, err2 := time.Parse(time.DateOnly, spec.DateRange.End)
	if err1 == nil && err2 == nil && to.Sub(from) > time.Duration(maxSpanDays-1)*24*time.Hour {
		verr.Fields = append(verr.Fields, FieldError{
			Field:   "date_range",
			Message: fmt.Sprintf("must span at most %d days", maxSpanDays),
		})
	}

	if len(verr.Fields) > 0 {
		return verr
	}
	return nil
}

// fieldPath drops the root struct name from the validator namespace.
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if _, rest, ok := strings.Cut(ns, "."); ok {
		return rest
	}
	return ns
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		return "must be at least " + fe.Param()
	case "max":
		return "must be at most " + fe.Param()
	case "clock":
		return "must be HH:MM"
	case "datetime":
		return "must be YYYY-MM-DD"
	case "timezone":
		return "must be an IANA timezone name"
	default:
		return "failed " + fe.Tag() + " validation"
	}
}
