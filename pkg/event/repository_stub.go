package event

import (
	"context"
	"sort"
	"sync"

	"github.com/napomni/napomni/pkg/recurrence"
	"github.com/napomni/napomni/pkg/user"
)

// Participant is a recorded fan-out participant row, kept by the stub for
// assertions.
type Participant struct {
	EventID int
	UserID  int
	Ref     user.PlatformRef
}

// RepositoryStub is an in-memory Repository for tests, with the same
// snapshot-rollback transaction behaviour as the user repo stub.
type RepositoryStub struct {
	mu             sync.RWMutex
	events         map[int]Event
	participants   []Participant
	nextId         int
	transactionErr error
}

func NewRepositoryStub() *RepositoryStub {
	return &RepositoryStub{
		events: make(map[int]Event),
		nextId: 1,
	}
}

func (r *RepositoryStub) WithTransaction(ctx context.Context, fn func(repo Repository) error) error {
	r.mu.Lock()

	originalEvents := make(map[int]Event, len(r.events))
	for k, v := range r.events {
		originalEvents[k] = v
	}
	originalParticipants := append([]Participant(nil), r.participants...)
	originalNextId := r.nextId

	r.mu.Unlock()

	err := fn(r)

	r.mu.Lock()
	defer r.mu.Unlock()

	if err != nil || r.transactionErr != nil {
		r.events = originalEvents
		r.participants = originalParticipants
		r.nextId = originalNextId
		txErr := r.transactionErr
		r.transactionErr = nil
		if err != nil {
			return err
		}
		return txErr
	}

	return nil
}

func (r *RepositoryStub) SetTransactionError(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transactionErr = err
}

func (r *RepositoryStub) StoreEvent(ctx context.Context, e Event) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextId++
	e.ID = r.nextId
	r.events[e.ID] = e
	return e.ID, nil
}

func (r *RepositoryStub) GetEvent(ctx context.Context, id int) (Event, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.events[id]
	if !ok {
		return Event{}, ErrNotFound
	}
	return e, nil
}

func (r *RepositoryStub) UpdateEvent(ctx context.Context, e Event) (Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.events[e.ID]
	if !ok {
		return Event{}, ErrNotFound
	}
	stored.Description = e.Description
	stored.Emoji = e.Emoji
	stored.StartAt = e.StartAt
	stored.StopAt = e.StopAt
	stored.Rule = e.Rule
	r.events[e.ID] = stored
	return stored, nil
}

func (r *RepositoryStub) DeleteEvent(ctx context.Context, id int) (Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.events[id]
	if !ok {
		return Event{}, ErrNotFound
	}
	delete(r.events, id)

	kept := r.participants[:0]
	for _, p := range r.participants {
		if p.EventID != id {
			kept = append(kept, p)
		}
	}
	r.participants = kept
	return e, nil
}

func (r *RepositoryStub) FindCandidates(ctx context.Context, f CandidateFilter) ([]Event, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []Event
	for _, e := range r.events {
		if !r.matchesOwner(e, f.Owner) {
			continue
		}
		if e.StartAt.After(f.StartBefore) {
			continue
		}
		kind, err := e.Rule.Kind()
		if err != nil {
			continue
		}
		switch kind {
		case recurrence.Never:
			if e.StartAt.Before(f.SingleAfter) {
				continue
			}
		case recurrence.Annual:
			if len(f.AnnualMonths) > 0 && !containsInt(f.AnnualMonths, *e.Rule.YearMonth) {
				continue
			}
		}
		result = append(result, e)
	}

	sort.Slice(result, func(i, j int) bool { return result[i].StartAt.Before(result[j].StartAt) })
	return result, nil
}

func (r *RepositoryStub) FindByUTCMinutes(ctx context.Context, minutesOfDay []int, limit, offset int) ([]Event, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var matched []Event
	for _, e := range r.events {
		at := e.StartAt.UTC()
		if containsInt(minutesOfDay, at.Hour()*60+at.Minute()) {
			matched = append(matched, e)
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].ID < matched[j].ID })

	if offset >= len(matched) {
		return nil, nil
	}
	matched = matched[offset:]
	if limit < len(matched) {
		matched = matched[:limit]
	}
	return matched, nil
}

func (r *RepositoryStub) StoreCancellation(ctx context.Context, eventID int, date recurrence.LocalDate) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.events[eventID]
	if !ok {
		return ErrNotFound
	}
	e.Canceled = append(e.Canceled, date)
	r.events[eventID] = e
	return nil
}

func (r *RepositoryStub) StoreParticipant(ctx context.Context, eventID int, participantUserID int, ref user.PlatformRef) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.participants = append(r.participants, Participant{EventID: eventID, UserID: participantUserID, Ref: ref})
	return nil
}

// AllEvents returns a stable snapshot ordered by id, for assertions.
func (r *RepositoryStub) AllEvents() []Event {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Event, 0, len(r.events))
	for _, e := range r.events {
		result = append(result, e)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}

func (r *RepositoryStub) Participants() []Participant {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Participant(nil), r.participants...)
}

func (r *RepositoryStub) matchesOwner(e Event, ref user.PlatformRef) bool {
	if ref.TelegramID != 0 && e.Owner.TelegramID == ref.TelegramID {
		return true
	}
	return ref.MaxID != 0 && e.Owner.MaxID == ref.MaxID
}

func containsInt(values []int, v int) bool {
	for _, candidate := range values {
		if candidate == v {
			return true
		}
	}
	return false
}
