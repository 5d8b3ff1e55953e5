package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// ScheduleKind discriminates the three schedule shapes.
type ScheduleKind string

const (
	ScheduleExactKind     ScheduleKind = "exact"
	ScheduleRecurringKind ScheduleKind = "recurring_weekly"
	ScheduleFuzzyKind     ScheduleKind = "fuzzy"
)

// ScheduleExact is a schedule with a concrete start instant.
type ScheduleExact struct {
	DateStart time.Time  `json:"date_start"`
	DateEnd   *time.Time `json:"date_end,omitempty"`
	Timezone  string     `json:"timezone,omitempty"`
}

// ScheduleRecurringWeekly is a weekday → times-of-day schedule with an
// optional validity window.
type ScheduleRecurringWeekly struct {
	Times      map[string][]string `json:"schedule"`
	ValidFrom  *time.Time          `json:"valid_from,omitempty"`
	ValidUntil *time.Time          `json:"valid_until,omitempty"`
	Timezone   string              `json:"timezone,omitempty"`
}

var validWeekdays = map[string]struct{}{
	"monday": {}, "tuesday": {}, "wednesday": {}, "thursday": {},
	"friday": {}, "saturday": {}, "sunday": {},
}

// Validate rejects unknown weekday names.
func (r ScheduleRecurringWeekly) Validate() error {
	for day := range r.Times {
		if _, ok := validWeekdays[day]; !ok {
			return fmt.Errorf("invalid weekday: %q", day)
		}
	}
	return nil
}

// ScheduleFuzzy is a free-text schedule ("every weekend", "in the evenings").
type ScheduleFuzzy struct {
	Description      string     `json:"description"`
	ApproximateStart *time.Time `json:"approximate_start,omitempty"`
	ApproximateEnd   *time.Time `json:"approximate_end,omitempty"`
}

// Schedule is a tagged union over the three mutually exclusive schedule
// shapes. Exactly the variant matching Kind is non-nil.
type Schedule struct {
	Kind      ScheduleKind
	Exact     *ScheduleExact
	Recurring *ScheduleRecurringWeekly
	Fuzzy     *ScheduleFuzzy
}

// NewExactSchedule wraps an exact schedule in the union.
func NewExactSchedule(s ScheduleExact) *Schedule {
	return &Schedule{Kind: ScheduleExactKind, Exact: &s}
}

// NewRecurringSchedule wraps a recurring-weekly schedule in the union.
func NewRecurringSchedule(s ScheduleRecurringWeekly) *Schedule {
	return &Schedule{Kind: ScheduleRecurringKind, Recurring: &s}
}

// NewFuzzySchedule wraps a fuzzy schedule in the union.
func NewFuzzySchedule(s ScheduleFuzzy) *Schedule {
	return &Schedule{Kind: ScheduleFuzzyKind, Fuzzy: &s}
}

// StartDay returns the schedule's start day as YYYY-MM-DD, or "" when the
// variant carries no usable date. Exact uses the start instant; recurring
// uses the validity window start; fuzzy uses the approximate start.
func (s *Schedule) StartDay() string {
	if s == nil {
		return ""
	}
	switch s.Kind {
	case ScheduleExactKind:
		if s.Exact != nil {
			return s.Exact.DateStart.Format("2006-01-02")
		}
	case ScheduleRecurringKind:
		if s.Recurring != nil && s.Recurring.ValidFrom != nil {
			return s.Recurring.ValidFrom.Format("2006-01-02")
		}
	case ScheduleFuzzyKind:
		if s.Fuzzy != nil && s.Fuzzy.ApproximateStart != nil {
			return s.Fuzzy.ApproximateStart.Format("2006-01-02")
		}
	}
	return ""
}

// Summary returns a short human-readable description used in index payloads.
func (s *Schedule) Summary() string {
	if s == nil {
		return ""
	}
	switch s.Kind {
	case ScheduleExactKind:
		if s.Exact == nil {
			return ""
		}
		return s.Exact.DateStart.Format(time.RFC3339)
	case ScheduleRecurringKind:
		if s.Recurring == nil {
			return ""
		}
		return fmt.Sprintf("weekly on %d day(s)", len(s.Recurring.Times))
	case ScheduleFuzzyKind:
		if s.Fuzzy == nil {
			return ""
		}
		return s.Fuzzy.Description
	}
	return ""
}

// scheduleEnvelope is the flat wire form: the variant's fields plus a "type"
// discriminator.
type scheduleEnvelope struct {
	Type             ScheduleKind        `json:"type"`
	DateStart        *time.Time          `json:"date_start,omitempty"`
	DateEnd          *time.Time          `json:"date_end,omitempty"`
	Times            map[string][]string `json:"schedule,omitempty"`
	ValidFrom        *time.Time          `json:"valid_from,omitempty"`
	ValidUntil       *time.Time          `json:"valid_until,omitempty"`
	Timezone         string              `json:"timezone,omitempty"`
	Description      string              `json:"description,omitempty"`
	ApproximateStart *time.Time          `json:"approximate_start,omitempty"`
	ApproximateEnd   *time.Time          `json:"approximate_end,omitempty"`
}

// MarshalJSON flattens the union into a single object with a "type" field.
func (s Schedule) MarshalJSON() ([]byte, error) {
	env := scheduleEnvelope{Type: s.Kind}
	switch s.Kind {
	case ScheduleExactKind:
		if s.Exact == nil {
			return nil, fmt.Errorf("exact schedule missing variant data")
		}
		start := s.Exact.DateStart
		env.DateStart = &start
		env.DateEnd = s.Exact.DateEnd
		env.Timezone = s.Exact.Timezone
	case ScheduleRecurringKind:
		if s.Recurring == nil {
			return nil, fmt.Errorf("recurring schedule missing variant data")
		}
		env.Times = s.Recurring.Times
		env.ValidFrom = s.Recurring.ValidFrom
		env.ValidUntil = s.Recurring.ValidUntil
		env.Timezone = s.Recurring.Timezone
	case ScheduleFuzzyKind:
		if s.Fuzzy == nil {
			return nil, fmt.Errorf("fuzzy schedule missing variant data")
		}
		env.Description = s.Fuzzy.Description
		env.ApproximateStart = s.Fuzzy.ApproximateStart
		env.ApproximateEnd = s.Fuzzy.ApproximateEnd
	default:
		return nil, fmt.Errorf("unknown schedule kind: %q", s.Kind)
	}
	return json.Marshal(env)
}

// UnmarshalJSON restores the union from its flat wire form.
func (s *Schedule) UnmarshalJSON(data []byte) error {
	var env scheduleEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return err
	}
	switch env.Type {
	case ScheduleExactKind:
		if env.DateStart == nil {
			return fmt.Errorf("exact schedule missing date_start")
		}
		s.Kind = ScheduleExactKind
		s.Exact = &ScheduleExact{
			DateStart: *env.DateStart,
			DateEnd:   env.DateEnd,
			Timezone:  env.Timezone,
		}
	case ScheduleRecurringKind:
		recurring := ScheduleRecurringWeekly{
			Times:      env.Times,
			ValidFrom:  env.ValidFrom,
			ValidUntil: env.ValidUntil,
			Timezone:   env.Timezone,
		}
		if err := recurring.Validate(); err != nil {
			return err
		}
		s.Kind = ScheduleRecurringKind
		s.Recurring = &recurring
	case ScheduleFuzzyKind:
		s.Kind = ScheduleFuzzyKind
		s.Fuzzy = &ScheduleFuzzy{
			Description:      env.Description,
			ApproximateStart: env.ApproximateStart,
			ApproximateEnd:   env.ApproximateEnd,
		}
	default:
		return fmt.Errorf("unknown schedule kind: %q", env.Type)
	}
	return nil
}
