package event

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/napomni/napomni/internal/event_bus"
	"github.com/napomni/napomni/pkg/recurrence"
	"github.com/napomni/napomni/pkg/user"
)

// CreateInput carries the user-entered event draft. Date and times are in
// the owner's local zone; conversion to UTC happens here.
type CreateInput struct {
	Date        recurrence.LocalDate
	StartTime   string // "15:04"
	StopTime    string // optional
	Description string
	Emoji       string
	Recurrence  recurrence.Kind
	// Participants receive independent fan-out copies of the event.
	Participants []user.PlatformRef
}

type Service struct {
	repo  Repository
	users user.Service
	bus   *event_bus.EventBus
}

func NewService(repo Repository, users user.Service, bus *event_bus.EventBus) *Service {
	return &Service{repo: repo, users: users, bus: bus}
}

// Create stores the owner's event and fans it out to every invited
// participant as an independent copy. The recurrence descriptor is derived
// from the UTC-converted start instant at creation time and never
// recomputed.
func (s *Service) Create(ctx context.Context, owner user.User, in CreateInput) (Event, error) {
	loc, err := s.users.Zone(owner)
	if err != nil {
		return Event{}, err
	}

	startUTC, err := localInstant(in.Date, in.StartTime, loc)
	if err != nil {
		return Event{}, err
	}
	var stopUTC time.Time
	if in.StopTime != "" {
		stopUTC, err = localInstant(in.Date, in.StopTime, loc)
		if err != nil {
			return Event{}, err
		}
	}

	rule, err := recurrence.NewRule(in.Recurrence, startUTC)
	if err != nil {
		return Event{}, err
	}

	e := Event{
		Description: in.Description,
		Emoji:       in.Emoji,
		StartAt:     startUTC,
		StopAt:      stopUTC,
		Rule:        rule,
		OwnerID:     owner.ID,
		Owner:       owner.Ref(),
		CreatorID:   owner.ID,
		Creator:     owner.Ref(),
	}
	id, err := s.repo.StoreEvent(ctx, e)
	if err != nil {
		return Event{}, fmt.Errorf("failed to store event: %w", err)
	}
	e.ID = id

	s.fanOut(ctx, e, in.Participants)

	return e, nil
}

// Update rewrites the editable fields of an owned event in place. The new
// start instant is converted through the owner's current zone and the
// recurrence descriptor is derived again from it, exactly as on create.
// Editing a fan-out copy never touches the original or its sibling copies.
func (s *Service) Update(ctx context.Context, owner user.User, eventID int, in CreateInput) (Event, error) {
	e, err := s.repo.GetEvent(ctx, eventID)
	if err != nil {
		return Event{}, err
	}
	if !e.OwnedBy(owner) {
		return Event{}, ErrNotFound
	}

	loc, err := s.users.Zone(owner)
	if err != nil {
		return Event{}, err
	}

	startUTC, err := localInstant(in.Date, in.StartTime, loc)
	if err != nil {
		return Event{}, err
	}
	var stopUTC time.Time
	if in.StopTime != "" {
		stopUTC, err = localInstant(in.Date, in.StopTime, loc)
		if err != nil {
			return Event{}, err
		}
	}

	rule, err := recurrence.NewRule(in.Recurrence, startUTC)
	if err != nil {
		return Event{}, err
	}

	e.Description = in.Description
	e.Emoji = in.Emoji
	e.StartAt = startUTC
	e.StopAt = stopUTC
	e.Rule = rule

	updated, err := s.repo.UpdateEvent(ctx, e)
	if err != nil {
		return Event{}, fmt.Errorf("failed to update event: %w", err)
	}
	return updated, nil
}

// fanOut clones the event into each participant's own calendar. Copies are
// fully independent rows; only the creator fields tie them back to the
// author. A failure for one participant never aborts the rest.
func (s *Service) fanOut(ctx context.Context, original Event, participants []user.PlatformRef) {
	for _, ref := range participants {
		if ref.IsZero() {
			continue
		}

		participantID := 0
		if u, err := s.users.FindByRef(ctx, ref); err == nil {
			participantID = u.ID
		}

		copy := original
		copy.ID = 0
		copy.OwnerID = participantID
		copy.Owner = ref
		copy.Canceled = nil
		copyID, err := s.repo.StoreEvent(ctx, copy)
		if err != nil {
			log.Errorf("failed to fan out event %d to %+v: %v", original.ID, ref, err)
			continue
		}

		if err := s.repo.StoreParticipant(ctx, original.ID, participantID, ref); err != nil {
			log.Errorf("failed to record participant of event %d: %v", original.ID, err)
		}

		if err := s.bus.Publish(event_bus.NewEvent(ctx, event_bus.TypeEventInvited, event_bus.EventInvited{
			EventID:     copyID,
			To:          ref,
			From:        original.Creator,
			Description: original.Description,
			StartAt:     original.StartAt,
		})); err != nil {
			log.Errorf("failed to publish invite for event %d: %v", copyID, err)
		}
	}
}

// DeleteOutcome reports what a delete call actually did: a recurring event
// asked to go away on one date gains a cancellation exception, anything
// else loses its row.
type DeleteOutcome struct {
	Canceled bool
	Event    Event
}

// Delete removes one occurrence (when the event recurs and a date is given)
// or the whole event. The removed row is returned for confirmation
// messaging.
func (s *Service) Delete(ctx context.Context, owner user.User, eventID int, onDate *recurrence.LocalDate) (DeleteOutcome, error) {
	e, err := s.repo.GetEvent(ctx, eventID)
	if err != nil {
		return DeleteOutcome{}, err
	}
	if !e.OwnedBy(owner) {
		return DeleteOutcome{}, ErrNotFound
	}

	if !e.Rule.Single && onDate != nil {
		if err := s.repo.StoreCancellation(ctx, e.ID, *onDate); err != nil {
			return DeleteOutcome{}, fmt.Errorf("failed to cancel occurrence: %w", err)
		}
		return DeleteOutcome{Canceled: true, Event: e}, nil
	}

	deleted, err := s.repo.DeleteEvent(ctx, e.ID)
	if err != nil {
		return DeleteOutcome{}, err
	}
	return DeleteOutcome{Event: deleted}, nil
}

// Snooze creates a new single-occurrence event shifted from the reminded
// instant. The original occurrence is left untouched, so the user gets both
// the original schedule and the snoozed reminder.
func (s *Service) Snooze(ctx context.Context, owner user.User, eventID int, remindedAt time.Time, shift time.Duration) (Event, error) {
	e, err := s.repo.GetEvent(ctx, eventID)
	if err != nil {
		return Event{}, err
	}
	if !e.OwnedBy(owner) {
		return Event{}, ErrNotFound
	}

	snoozed := Event{
		Description: e.Description,
		Emoji:       e.Emoji,
		StartAt:     remindedAt.Add(shift).UTC(),
		Rule:        recurrence.Rule{Single: true},
		OwnerID:     e.OwnerID,
		Owner:       e.Owner,
		CreatorID:   e.CreatorID,
		Creator:     e.Creator,
	}
	id, err := s.repo.StoreEvent(ctx, snoozed)
	if err != nil {
		return Event{}, fmt.Errorf("failed to store snoozed event: %w", err)
	}
	snoozed.ID = id
	return snoozed, nil
}

// Decline deletes the caller's fan-out copy and notifies the creator. The
// original event and all other copies stay untouched.
func (s *Service) Decline(ctx context.Context, owner user.User, eventID int) (Event, error) {
	e, err := s.repo.GetEvent(ctx, eventID)
	if err != nil {
		return Event{}, err
	}
	if !e.OwnedBy(owner) {
		return Event{}, ErrNotFound
	}

	deleted, err := s.repo.DeleteEvent(ctx, e.ID)
	if err != nil {
		return Event{}, err
	}

	if err := s.bus.Publish(event_bus.NewEvent(ctx, event_bus.TypeEventDeclined, event_bus.EventDeclined{
		EventID:     deleted.ID,
		Creator:     deleted.Creator,
		DeclinedBy:  owner.Ref(),
		Description: deleted.Description,
	})); err != nil {
		log.Errorf("failed to publish decline of event %d: %v", deleted.ID, err)
	}
	return deleted, nil
}

func localInstant(d recurrence.LocalDate, hhmm string, loc *time.Location) (time.Time, error) {
	tod, err := time.Parse("15:04", hhmm)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid time %q: %w", hhmm, err)
	}
	local := time.Date(d.Year, d.Month, d.Day, tod.Hour(), tod.Minute(), 0, 0, loc)
	return local.UTC(), nil
}
