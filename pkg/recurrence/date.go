package recurrence

import (
	"fmt"
	"time"
)

// LocalDate is a calendar date without a time-of-day, interpreted in some
// IANA zone by the caller. It is comparable and usable as a map key.
type LocalDate struct {
	Year  int
	Month time.Month
	Day   int
}

// DateOf truncates a timestamp to its calendar date in the timestamp's own
// location.
func DateOf(t time.Time) LocalDate {
	y, m, d := t.Date()
	return LocalDate{Year: y, Month: m, Day: d}
}

// ParseDate parses a date in ISO "2006-01-02" form.
func ParseDate(s string) (LocalDate, error) {
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return LocalDate{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return DateOf(t), nil
}

func (d LocalDate) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

// Compare orders dates chronologically: -1, 0 or +1.
func (d LocalDate) Compare(o LocalDate) int {
	switch {
	case d.Year != o.Year:
		return cmp(d.Year, o.Year)
	case d.Month != o.Month:
		return cmp(int(d.Month), int(o.Month))
	default:
		return cmp(d.Day, o.Day)
	}
}

func cmp(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// AddDays returns the date shifted by n calendar days, normalized.
func (d LocalDate) AddDays(n int) LocalDate {
	return DateOf(time.Date(d.Year, d.Month, d.Day+n, 0, 0, 0, 0, time.UTC))
}

// Weekday returns the day of week of the date.
func (d LocalDate) Weekday() time.Weekday {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC).Weekday()
}

// In returns midnight of the date in the given location.
func (d LocalDate) In(loc *time.Location) time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, loc)
}

// DaysIn returns the number of days in the given month.
func DaysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// CancelSet is the set of local dates on which single occurrences of a
// recurring event have been suppressed.
type CancelSet map[LocalDate]struct{}

// NewCancelSet builds a set from a list of dates.
func NewCancelSet(dates ...LocalDate) CancelSet {
	s := make(CancelSet, len(dates))
	for _, d := range dates {
		s[d] = struct{}{}
	}
	return s
}

func (s CancelSet) Has(d LocalDate) bool {
	_, ok := s[d]
	return ok
}

func (s CancelSet) Add(d LocalDate) {
	s[d] = struct{}{}
}
