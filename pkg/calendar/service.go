package calendar

import (
	"context"
	"fmt"
	"sort"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/napomni/napomni/internal/utils"
	"github.com/napomni/napomni/pkg/event"
	"github.com/napomni/napomni/pkg/recurrence"
	"github.com/napomni/napomni/pkg/user"
)

// EventSource is the storage slice the aggregator consumes: a coarse
// candidate fetch whose result is refined by the occurrence engine.
type EventSource interface {
	FindCandidates(ctx context.Context, f event.CandidateFilter) ([]event.Event, error)
}

type Service struct {
	events        EventSource
	users         user.Service
	clock         utils.Clock
	lookaheadDays int
}

func NewService(events EventSource, users user.Service, clock utils.Clock, lookaheadDays int) *Service {
	if lookaheadDays <= 0 {
		lookaheadDays = DefaultLookaheadDays
	}
	return &Service{events: events, users: users, clock: clock, lookaheadDays: lookaheadDays}
}

// MonthCounts returns the number of occurrences per day (1..N) of the given
// month in the viewer's zone. A malformed candidate event is skipped and
// logged so one bad row cannot blank the whole calendar view.
func (s *Service) MonthCounts(ctx context.Context, viewer user.User, year int, month time.Month) (map[int]int, error) {
	loc, err := s.users.Zone(viewer)
	if err != nil {
		return nil, err
	}

	daysIn := recurrence.DaysIn(year, month)
	monthStartUTC := time.Date(year, month, 1, 0, 0, 0, 0, loc).UTC()
	monthEndUTC := time.Date(year, month, daysIn, 23, 59, 59, 0, loc).UTC()

	candidates, err := s.events.FindCandidates(ctx, event.CandidateFilter{
		Owner:        viewer.Ref(),
		StartBefore:  monthEndUTC,
		SingleAfter:  monthStartUTC,
		AnnualMonths: []int{int(monthStartUTC.Month()), int(monthEndUTC.Month())},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch month candidates: %w", err)
	}

	// Index 0 holds daily events that have not been spread over the month
	// yet; it never leaves this function.
	counts := make([]int, daysIn+1)
	var dailies []event.Event

	for _, e := range candidates {
		kind, err := e.Rule.Kind()
		if err != nil {
			log.Errorf("skipping event %d in month view: %v", e.ID, err)
			continue
		}
		if kind == recurrence.Daily {
			counts[0]++
			dailies = append(dailies, e)
			continue
		}

		sched := e.Schedule()
		canceled := e.CancelSet()
		for d := 1; d <= daysIn; d++ {
			date := recurrence.LocalDate{Year: year, Month: month, Day: d}
			ok, err := sched.Matches(date, canceled, loc)
			if err != nil {
				log.Errorf("skipping event %d in month view: %v", e.ID, err)
				break
			}
			if ok {
				counts[d]++
			}
		}
	}

	// Daily events are spread in a final pass because the started-mid-month
	// rule differs between the creation month (only days >= the start day)
	// and every later month (all days).
	for _, e := range dailies {
		counts[0]--
		startDate := recurrence.DateOf(e.StartAt.In(loc))
		lastDay := recurrence.LocalDate{Year: year, Month: month, Day: daysIn}
		if startDate.Compare(lastDay) > 0 {
			continue
		}
		from := 1
		if startDate.Year == year && startDate.Month == month {
			from = startDate.Day
		}
		canceled := e.CancelSet()
		for d := from; d <= daysIn; d++ {
			date := recurrence.LocalDate{Year: year, Month: month, Day: d}
			if !canceled.Has(date) {
				counts[d]++
			}
		}
	}

	out := make(map[int]int, daysIn)
	for d := 1; d <= daysIn; d++ {
		out[d] = counts[d]
	}
	return out, nil
}

// DayEvents lists the viewer's events occurring on one local calendar date,
// sorted by localized start time.
func (s *Service) DayEvents(ctx context.Context, viewer user.User, date recurrence.LocalDate) ([]DayEvent, error) {
	loc, err := s.users.Zone(viewer)
	if err != nil {
		return nil, err
	}

	dayStartUTC := date.In(loc).UTC()
	dayEndUTC := time.Date(date.Year, date.Month, date.Day, 23, 59, 59, 0, loc).UTC()

	candidates, err := s.events.FindCandidates(ctx, event.CandidateFilter{
		Owner:        viewer.Ref(),
		StartBefore:  dayEndUTC,
		SingleAfter:  dayStartUTC,
		AnnualMonths: []int{int(dayStartUTC.Month()), int(dayEndUTC.Month())},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch day candidates: %w", err)
	}

	out := make([]DayEvent, 0, len(candidates))
	for _, e := range candidates {
		kind, err := e.Rule.Kind()
		if err != nil {
			log.Errorf("skipping event %d in day view: %v", e.ID, err)
			continue
		}
		ok, err := e.Schedule().Matches(date, e.CancelSet(), loc)
		if err != nil || !ok {
			continue
		}

		item := DayEvent{
			EventID:     e.ID,
			Description: e.Description,
			Emoji:       e.Emoji,
			Start:       e.StartAt.In(loc).Format("15:04"),
			Recurrence:  kind,
		}
		if !e.StopAt.IsZero() {
			item.Stop = e.StopAt.In(loc).Format("15:04")
		}
		out = append(out, item)
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Start < out[j].Start })
	return out, nil
}

// Upcoming returns the viewer's occurrences over the next lookaheadDays
// local days (the configured default when zero), sorted ascending by
// instant. Ties keep candidate order.
func (s *Service) Upcoming(ctx context.Context, viewer user.User, lookaheadDays int) ([]Occurrence, error) {
	if lookaheadDays <= 0 {
		lookaheadDays = s.lookaheadDays
	}

	loc, err := s.users.Zone(viewer)
	if err != nil {
		return nil, err
	}

	today := recurrence.DateOf(s.clock.Now().In(loc))
	windowEnd := today.AddDays(lookaheadDays)

	candidates, err := s.events.FindCandidates(ctx, event.CandidateFilter{
		Owner:       viewer.Ref(),
		StartBefore: windowEnd.In(loc).UTC(),
		SingleAfter: today.In(loc).UTC(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch upcoming candidates: %w", err)
	}

	var out []Occurrence
	for _, e := range candidates {
		instants, err := e.Schedule().Instants(today, windowEnd, e.CancelSet(), loc)
		if err != nil {
			log.Errorf("skipping event %d in upcoming view: %v", e.ID, err)
			continue
		}
		for _, at := range instants {
			out = append(out, Occurrence{
				EventID:     e.ID,
				At:          at,
				Description: e.Description,
				Emoji:       e.Emoji,
			})
		}
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].At.Before(out[j].At) })
	return out, nil
}
