package recurrence

import (
	"errors"
	"fmt"
	"time"
)

// Kind names the five supported recurrence variants.
type Kind string

const (
	Never   Kind = "never"
	Daily   Kind = "daily"
	Weekly  Kind = "weekly"
	Monthly Kind = "monthly"
	Annual  Kind = "annual"
)

var ErrMalformedRule = errors.New("malformed recurrence rule")

// Rule mirrors the storage columns of an event's recurrence descriptor.
// Exactly one variant must be set; the discriminating fields are mutually
// exclusive. Weekday is 0=Monday..6=Sunday, MonthDay 1..31, YearMonth 1..12.
type Rule struct {
	Single    bool
	Daily     bool
	Weekday   *int
	MonthDay  *int
	YearDay   *int
	YearMonth *int
}

// NewRule derives a rule for the given kind from the event's UTC start
// instant. The embedded weekday/day/month values are computed from the UTC
// calendar date, not the creator's local date, and are never recomputed
// afterwards.
func NewRule(kind Kind, startUTC time.Time) (Rule, error) {
	utc := startUTC.UTC()
	switch kind {
	case Never:
		return Rule{Single: true}, nil
	case Daily:
		return Rule{Daily: true}, nil
	case Weekly:
		wd := WeekdayIndex(utc.Weekday())
		return Rule{Weekday: &wd}, nil
	case Monthly:
		day := utc.Day()
		return Rule{MonthDay: &day}, nil
	case Annual:
		day := utc.Day()
		month := int(utc.Month())
		return Rule{YearDay: &day, YearMonth: &month}, nil
	default:
		return Rule{}, fmt.Errorf("%w: unknown kind %q", ErrMalformedRule, kind)
	}
}

// Kind returns the active variant, or ErrMalformedRule when zero or more
// than one of the discriminating fields is set.
func (r Rule) Kind() (Kind, error) {
	var kinds []Kind
	if r.Single {
		kinds = append(kinds, Never)
	}
	if r.Daily {
		kinds = append(kinds, Daily)
	}
	if r.Weekday != nil {
		kinds = append(kinds, Weekly)
	}
	if r.MonthDay != nil {
		kinds = append(kinds, Monthly)
	}
	if r.YearDay != nil || r.YearMonth != nil {
		if r.YearDay == nil || r.YearMonth == nil {
			return "", fmt.Errorf("%w: annual rule needs both day and month", ErrMalformedRule)
		}
		kinds = append(kinds, Annual)
	}
	if len(kinds) != 1 {
		return "", fmt.Errorf("%w: %d variants set", ErrMalformedRule, len(kinds))
	}
	return kinds[0], nil
}

// WeekdayIndex converts time.Weekday (Sunday=0) to the stored Monday=0 form.
func WeekdayIndex(wd time.Weekday) int {
	return (int(wd) + 6) % 7
}

// Schedule is the recurrence-relevant slice of an event: the stored UTC
// start instant plus its rule. Schedules are immutable values, safe to use
// from concurrent goroutines.
type Schedule struct {
	StartAt time.Time
	Rule    Rule
}

// Matches reports whether the schedule produces an occurrence on the given
// local calendar date in loc, honouring the cancellation set.
func (s Schedule) Matches(date LocalDate, canceled CancelSet, loc *time.Location) (bool, error) {
	kind, err := s.Rule.Kind()
	if err != nil {
		return false, err
	}
	if canceled.Has(date) {
		return false, nil
	}

	startDate := DateOf(s.StartAt.In(loc))
	if date.Compare(startDate) < 0 {
		return false, nil
	}

	switch kind {
	case Never:
		return date == startDate, nil
	case Daily:
		return true, nil
	case Weekly:
		return WeekdayIndex(date.Weekday()) == *s.Rule.Weekday, nil
	case Monthly:
		// Effective-day clamping: a day-31 rule falls on the last day of
		// shorter months.
		effective := *s.Rule.MonthDay
		if last := DaysIn(date.Year, date.Month); effective > last {
			effective = last
		}
		return date.Day == effective, nil
	case Annual:
		return int(date.Month) == *s.Rule.YearMonth && date.Day == *s.Rule.YearDay, nil
	}
	return false, nil
}

// Instants enumerates all occurrence instants on local dates in the
// half-open window [from, to), attaching the schedule's localized
// time-of-day to each matching date. Instants before the event's own start
// instant are omitted.
func (s Schedule) Instants(from, to LocalDate, canceled CancelSet, loc *time.Location) ([]time.Time, error) {
	startLocal := s.StartAt.In(loc)
	var out []time.Time
	for d := from; d.Compare(to) < 0; d = d.AddDays(1) {
		ok, err := s.Matches(d, canceled, loc)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		at := time.Date(d.Year, d.Month, d.Day,
			startLocal.Hour(), startLocal.Minute(), startLocal.Second(), 0, loc)
		if at.Before(s.StartAt) {
			continue
		}
		out = append(out, at)
	}
	return out, nil
}
