package reminder

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/napomni/napomni/internal/utils"
	"github.com/napomni/napomni/pkg/event"
	"github.com/napomni/napomni/pkg/recurrence"
	"github.com/napomni/napomni/pkg/user"
)

const defaultPageSize = 400

// EventSource is the storage slice the dispatcher scans: a coarse
// minute-of-day pre-filter over all users' events, refined per event by the
// occurrence engine.
type EventSource interface {
	FindByUTCMinutes(ctx context.Context, minutesOfDay []int, limit, offset int) ([]event.Event, error)
}

// Dispatcher sends due reminders. Sends run sequentially per recipient with
// a small delay in between to respect platform rate limits; one failed send
// never aborts the rest of the batch.
type Dispatcher struct {
	events    EventSource
	users     user.Service
	sender    Sender
	clock     utils.Clock
	sendDelay time.Duration
	pageSize  int
}

func NewDispatcher(events EventSource, users user.Service, sender Sender, clock utils.Clock, sendDelay time.Duration) *Dispatcher {
	return &Dispatcher{
		events:    events,
		users:     users,
		sender:    sender,
		clock:     clock,
		sendDelay: sendDelay,
		pageSize:  defaultPageSize,
	}
}

// DispatchDue notifies owners of events starting this minute.
func (d *Dispatcher) DispatchDue(ctx context.Context) error {
	target := d.clock.Now().UTC().Truncate(time.Minute)
	return d.dispatch(ctx, target, false)
}

// DispatchUpcoming notifies owners of events starting in exactly one hour.
func (d *Dispatcher) DispatchUpcoming(ctx context.Context) error {
	target := d.clock.Now().UTC().Truncate(time.Minute).Add(time.Hour)
	return d.dispatch(ctx, target, true)
}

func (d *Dispatcher) dispatch(ctx context.Context, target time.Time, upcoming bool) error {
	minutes := candidateMinutes(target.Hour()*60 + target.Minute())

	for offset := 0; ; offset += d.pageSize {
		candidates, err := d.events.FindByUTCMinutes(ctx, minutes, d.pageSize, offset)
		if err != nil {
			return fmt.Errorf("failed to scan events for %s: %w", target, err)
		}
		if len(candidates) == 0 {
			return nil
		}

		for _, e := range candidates {
			localAt, ok := d.occursAt(ctx, e, target)
			if !ok {
				continue
			}
			if err := d.sender.Send(ctx, e.Owner, reminderText(e, localAt, upcoming)); err != nil {
				log.Errorf("failed to send reminder for event %d: %v", e.ID, err)
			}
			time.Sleep(d.sendDelay)
		}
	}
}

// candidateMinutes widens the target minute with the offsets a DST rule can
// put between an event's stored UTC minute and its occurrence minute in the
// owner's zone. Duplicates collapse; occursAt does the exact match.
func candidateMinutes(minuteOfDay int) []int {
	offsets := []int{0, -60, -30, 30, 60}
	minutes := make([]int, 0, len(offsets))
	seen := make(map[int]bool, len(offsets))
	for _, off := range offsets {
		m := ((minuteOfDay+off)%1440 + 1440) % 1440
		if !seen[m] {
			seen[m] = true
			minutes = append(minutes, m)
		}
	}
	return minutes
}

// occursAt checks the coarse minute match against the exact occurrence
// rules in the owner's zone. On match it returns the occurrence instant
// localized for the owner.
func (d *Dispatcher) occursAt(ctx context.Context, e event.Event, target time.Time) (time.Time, bool) {
	owner, err := d.users.FindByRef(ctx, e.Owner)
	if err != nil {
		log.Errorf("skipping reminder of event %d: owner lookup failed: %v", e.ID, err)
		return time.Time{}, false
	}
	loc, err := d.users.Zone(owner)
	if err != nil {
		log.Errorf("skipping reminder of event %d: %v", e.ID, err)
		return time.Time{}, false
	}

	date := recurrence.DateOf(target.In(loc))
	instants, err := e.Schedule().Instants(date, date.AddDays(1), e.CancelSet(), loc)
	if err != nil {
		log.Errorf("skipping reminder of event %d: %v", e.ID, err)
		return time.Time{}, false
	}
	for _, at := range instants {
		if at.Equal(target) {
			return at, true
		}
	}
	return time.Time{}, false
}

func reminderText(e event.Event, target time.Time, upcoming bool) string {
	text := "⏰ Reminder"
	if upcoming {
		text += "\nIn 1 hour:"
	}
	if e.Emoji != "" {
		text += "\n" + e.Emoji
	}
	return text + fmt.Sprintf("\n⏱️ %s\n📝 %s", target.Format("15:04"), e.Description)
}
