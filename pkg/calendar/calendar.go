package calendar

import (
	"time"

	"github.com/napomni/napomni/pkg/recurrence"
)

// DefaultLookaheadDays is the window of the nearest-occurrences query.
const DefaultLookaheadDays = 10

// Occurrence is one concrete instance of an event inside the lookahead
// window, localized to the querying user's zone.
type Occurrence struct {
	EventID     int
	At          time.Time
	Description string
	Emoji       string
}

// DayEvent is one event surfacing on a queried local date.
type DayEvent struct {
	EventID     int
	Description string
	Emoji       string
	Start       string // "15:04", localized
	Stop        string // empty when the event has no end time
	Recurrence  recurrence.Kind
}
