package event

import (
	"errors"
	"time"

	"github.com/napomni/napomni/pkg/recurrence"
	"github.com/napomni/napomni/pkg/user"
)

var ErrNotFound = errors.New("event not found")

// Event is one calendar event owned by exactly one user. Fan-out copies are
// full independent rows: the copy keeps the creator's identity for
// notifications but shares no storage with the original.
type Event struct {
	ID          int
	Description string
	Emoji       string
	StartAt     time.Time // UTC
	StopAt      time.Time // zero when the event has no end time
	Rule        recurrence.Rule

	OwnerID   int // internal user id, 0 when the owner row is unresolved
	Owner     user.PlatformRef
	CreatorID int
	Creator   user.PlatformRef

	Canceled []recurrence.LocalDate
}

// Schedule returns the recurrence-relevant slice of the event for the
// occurrence engine.
func (e Event) Schedule() recurrence.Schedule {
	return recurrence.Schedule{StartAt: e.StartAt, Rule: e.Rule}
}

// CancelSet returns the event's cancellation exceptions as a lookup set.
func (e Event) CancelSet() recurrence.CancelSet {
	return recurrence.NewCancelSet(e.Canceled...)
}

// OwnedBy reports whether the given user owns this event, matching either
// the internal id or one of the platform identities.
func (e Event) OwnedBy(u user.User) bool {
	if e.OwnerID != 0 && e.OwnerID == u.ID {
		return true
	}
	if e.Owner.TelegramID != 0 && e.Owner.TelegramID == u.TelegramID {
		return true
	}
	return e.Owner.MaxID != 0 && e.Owner.MaxID == u.MaxID
}

// CandidateFilter is the coarse storage-side pre-filter for occurrence
// queries. It selects a superset of the true match set; exactness is
// enforced afterwards by the occurrence engine.
type CandidateFilter struct {
	Owner user.PlatformRef
	// StartBefore is the UTC upper bound: candidates must start at or
	// before it.
	StartBefore time.Time
	// SingleAfter floors single events: rows with the never-variant must
	// start at or after it. Zero disables the floor.
	SingleAfter time.Time
	// AnnualMonths restricts annual candidates to the given month numbers
	// when non-empty.
	AnnualMonths []int
}
