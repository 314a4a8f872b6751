package event

import (
	"context"
	"testing"
	"time"

	"github.com/napomni/napomni/internal/event_bus"
	"github.com/napomni/napomni/pkg/recurrence"
	"github.com/napomni/napomni/pkg/user"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupService(t *testing.T) (*Service, *RepositoryStub, *user.ServiceImpl, *event_bus.EventBus) {
	t.Helper()
	repo := NewRepositoryStub()
	users := user.NewService(user.NewRepoStub(), "Europe/Moscow")
	bus := event_bus.NewEventBus()
	return NewService(repo, users, bus), repo, users, bus
}

func TestService_Create(t *testing.T) {
	t.Run("converts local input to a UTC instant", func(t *testing.T) {
		service, _, users, _ := setupService(t)
		ctx := context.Background()
		owner, err := users.Upsert(ctx, user.User{TelegramID: 100})
		require.NoError(t, err)

		created, err := service.Create(ctx, owner, CreateInput{
			Date:        recurrence.LocalDate{Year: 2024, Month: time.June, Day: 1},
			StartTime:   "09:00",
			Description: "standup",
			Recurrence:  recurrence.Daily,
		})

		require.NoError(t, err)
		// 09:00 Moscow is 06:00 UTC
		assert.Equal(t, time.Date(2024, 6, 1, 6, 0, 0, 0, time.UTC), created.StartAt.UTC())
		assert.True(t, created.Rule.Daily)
	})

	t.Run("derives the recurrence descriptor from the UTC instant", func(t *testing.T) {
		service, _, users, _ := setupService(t)
		ctx := context.Background()
		owner, err := users.Upsert(ctx, user.User{TelegramID: 100})
		require.NoError(t, err)

		// local midnight in Moscow lands on the previous UTC day
		created, err := service.Create(ctx, owner, CreateInput{
			Date:        recurrence.LocalDate{Year: 2024, Month: time.June, Day: 10},
			StartTime:   "00:30",
			Description: "night owl",
			Recurrence:  recurrence.Monthly,
		})

		require.NoError(t, err)
		require.NotNil(t, created.Rule.MonthDay)
		assert.Equal(t, 9, *created.Rule.MonthDay)
	})

	t.Run("rejects an invalid time of day", func(t *testing.T) {
		service, _, users, _ := setupService(t)
		ctx := context.Background()
		owner, err := users.Upsert(ctx, user.User{TelegramID: 100})
		require.NoError(t, err)

		_, err = service.Create(ctx, owner, CreateInput{
			Date:        recurrence.LocalDate{Year: 2024, Month: time.June, Day: 1},
			StartTime:   "25:70",
			Description: "broken",
			Recurrence:  recurrence.Never,
		})

		assert.Error(t, err)
	})
}

func TestService_Create_FanOut(t *testing.T) {
	service, repo, users, bus := setupService(t)
	ctx := context.Background()
	owner, err := users.Upsert(ctx, user.User{TelegramID: 100})
	require.NoError(t, err)
	known, err := users.Upsert(ctx, user.User{TelegramID: 200})
	require.NoError(t, err)

	var invites []event_bus.EventInvited
	event_bus.SubscribeTyped(bus, event_bus.TypeEventInvited, func(e event_bus.EventT[event_bus.EventInvited]) error {
		invites = append(invites, e.Data)
		return nil
	})

	created, err := service.Create(ctx, owner, CreateInput{
		Date:        recurrence.LocalDate{Year: 2024, Month: time.June, Day: 1},
		StartTime:   "18:00",
		Description: "bbq",
		Recurrence:  recurrence.Never,
		Participants: []user.PlatformRef{
			{TelegramID: 200},
			{MaxID: 300}, // never seen before, stored with platform id only
		},
	})
	require.NoError(t, err)

	// one original plus one independent copy per participant
	all := repo.AllEvents()
	require.Len(t, all, 3)
	for _, e := range all {
		assert.Equal(t, "bbq", e.Description)
		assert.Equal(t, owner.Ref(), e.Creator)
	}

	participants := repo.Participants()
	require.Len(t, participants, 2)
	assert.Equal(t, created.ID, participants[0].EventID)
	assert.Equal(t, known.ID, participants[0].UserID)
	assert.Zero(t, participants[1].UserID)

	require.Len(t, invites, 2)
	assert.Equal(t, user.PlatformRef{TelegramID: 200}, invites[0].To)
	assert.Equal(t, owner.Ref(), invites[0].From)

	// deleting the creator's row leaves the copies untouched
	_, err = service.Delete(ctx, owner, created.ID, nil)
	require.NoError(t, err)
	assert.Len(t, repo.AllEvents(), 2)
}

func TestService_Update(t *testing.T) {
	t.Run("rewrites fields and re-derives the descriptor", func(t *testing.T) {
		service, _, users, _ := setupService(t)
		ctx := context.Background()
		owner, err := users.Upsert(ctx, user.User{TelegramID: 100})
		require.NoError(t, err)

		created, err := service.Create(ctx, owner, CreateInput{
			Date:        recurrence.LocalDate{Year: 2024, Month: time.June, Day: 1},
			StartTime:   "09:00",
			Description: "standup",
			Recurrence:  recurrence.Daily,
		})
		require.NoError(t, err)

		// when
		updated, err := service.Update(ctx, owner, created.ID, CreateInput{
			Date:        recurrence.LocalDate{Year: 2024, Month: time.June, Day: 15},
			StartTime:   "10:30",
			Description: "standup (moved)",
			Recurrence:  recurrence.Monthly,
		})

		// then
		require.NoError(t, err)
		assert.Equal(t, created.ID, updated.ID)
		assert.Equal(t, "standup (moved)", updated.Description)
		// 10:30 Moscow is 07:30 UTC, descriptor derived from the UTC day
		assert.Equal(t, time.Date(2024, 6, 15, 7, 30, 0, 0, time.UTC), updated.StartAt.UTC())
		require.NotNil(t, updated.Rule.MonthDay)
		assert.Equal(t, 15, *updated.Rule.MonthDay)
		assert.False(t, updated.Rule.Daily)
	})

	t.Run("rejects an event owned by someone else", func(t *testing.T) {
		service, _, users, _ := setupService(t)
		ctx := context.Background()
		owner, err := users.Upsert(ctx, user.User{TelegramID: 100})
		require.NoError(t, err)
		stranger, err := users.Upsert(ctx, user.User{TelegramID: 999})
		require.NoError(t, err)

		created, err := service.Create(ctx, owner, CreateInput{
			Date:        recurrence.LocalDate{Year: 2024, Month: time.June, Day: 1},
			StartTime:   "09:00",
			Description: "standup",
			Recurrence:  recurrence.Never,
		})
		require.NoError(t, err)

		_, err = service.Update(ctx, stranger, created.ID, CreateInput{
			Date:        recurrence.LocalDate{Year: 2024, Month: time.June, Day: 2},
			StartTime:   "09:00",
			Description: "hijacked",
			Recurrence:  recurrence.Never,
		})

		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("editing a fan-out copy leaves the original untouched", func(t *testing.T) {
		service, repo, users, _ := setupService(t)
		ctx := context.Background()
		owner, err := users.Upsert(ctx, user.User{TelegramID: 100})
		require.NoError(t, err)
		guest, err := users.Upsert(ctx, user.User{TelegramID: 200})
		require.NoError(t, err)

		created, err := service.Create(ctx, owner, CreateInput{
			Date:         recurrence.LocalDate{Year: 2024, Month: time.June, Day: 1},
			StartTime:    "09:00",
			Description:  "team lunch",
			Recurrence:   recurrence.Never,
			Participants: []user.PlatformRef{{TelegramID: 200}},
		})
		require.NoError(t, err)

		all := repo.AllEvents()
		require.Len(t, all, 2)
		copyID := all[1].ID

		_, err = service.Update(ctx, guest, copyID, CreateInput{
			Date:        recurrence.LocalDate{Year: 2024, Month: time.June, Day: 2},
			StartTime:   "12:00",
			Description: "team lunch (my slot)",
			Recurrence:  recurrence.Never,
		})
		require.NoError(t, err)

		original, err := repo.GetEvent(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, "team lunch", original.Description)
		assert.Equal(t, created.StartAt, original.StartAt)
	})
}

func TestService_Delete(t *testing.T) {
	t.Run("deletes a single event outright", func(t *testing.T) {
		service, repo, users, _ := setupService(t)
		ctx := context.Background()
		owner, err := users.Upsert(ctx, user.User{TelegramID: 100})
		require.NoError(t, err)
		created, err := service.Create(ctx, owner, CreateInput{
			Date: recurrence.LocalDate{Year: 2024, Month: time.June, Day: 1}, StartTime: "10:00",
			Description: "dentist", Recurrence: recurrence.Never,
		})
		require.NoError(t, err)

		outcome, err := service.Delete(ctx, owner, created.ID, nil)

		require.NoError(t, err)
		assert.False(t, outcome.Canceled)
		assert.Equal(t, "dentist", outcome.Event.Description)
		assert.Empty(t, repo.AllEvents())
	})

	t.Run("cancels one occurrence of a recurring event", func(t *testing.T) {
		service, repo, users, _ := setupService(t)
		ctx := context.Background()
		owner, err := users.Upsert(ctx, user.User{TelegramID: 100})
		require.NoError(t, err)
		created, err := service.Create(ctx, owner, CreateInput{
			Date: recurrence.LocalDate{Year: 2024, Month: time.June, Day: 1}, StartTime: "09:00",
			Description: "standup", Recurrence: recurrence.Daily,
		})
		require.NoError(t, err)

		date := recurrence.LocalDate{Year: 2024, Month: time.June, Day: 12}
		outcome, err := service.Delete(ctx, owner, created.ID, &date)

		require.NoError(t, err)
		assert.True(t, outcome.Canceled)
		stored, err := repo.GetEvent(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, []recurrence.LocalDate{date}, stored.Canceled)
	})

	t.Run("hides other users' events", func(t *testing.T) {
		service, _, users, _ := setupService(t)
		ctx := context.Background()
		owner, err := users.Upsert(ctx, user.User{TelegramID: 100})
		require.NoError(t, err)
		stranger, err := users.Upsert(ctx, user.User{TelegramID: 999})
		require.NoError(t, err)
		created, err := service.Create(ctx, owner, CreateInput{
			Date: recurrence.LocalDate{Year: 2024, Month: time.June, Day: 1}, StartTime: "10:00",
			Description: "private", Recurrence: recurrence.Never,
		})
		require.NoError(t, err)

		_, err = service.Delete(ctx, stranger, created.ID, nil)

		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestService_Snooze(t *testing.T) {
	service, repo, users, _ := setupService(t)
	ctx := context.Background()
	owner, err := users.Upsert(ctx, user.User{TelegramID: 100})
	require.NoError(t, err)
	created, err := service.Create(ctx, owner, CreateInput{
		Date: recurrence.LocalDate{Year: 2024, Month: time.June, Day: 1}, StartTime: "09:00",
		Description: "standup", Recurrence: recurrence.Daily,
	})
	require.NoError(t, err)

	remindedAt := time.Date(2024, 6, 5, 6, 0, 0, 0, time.UTC)
	snoozed, err := service.Snooze(ctx, owner, created.ID, remindedAt, 15*time.Minute)

	require.NoError(t, err)
	assert.True(t, snoozed.Rule.Single)
	assert.Equal(t, remindedAt.Add(15*time.Minute), snoozed.StartAt)

	// the original stays as it was, the snooze is an extra row
	all := repo.AllEvents()
	require.Len(t, all, 2)
	original, err := repo.GetEvent(ctx, created.ID)
	require.NoError(t, err)
	assert.True(t, original.Rule.Daily)
	assert.Empty(t, original.Canceled)
}

func TestService_Decline(t *testing.T) {
	service, repo, users, bus := setupService(t)
	ctx := context.Background()
	creator, err := users.Upsert(ctx, user.User{TelegramID: 100})
	require.NoError(t, err)
	invitee, err := users.Upsert(ctx, user.User{TelegramID: 200})
	require.NoError(t, err)

	var declines []event_bus.EventDeclined
	event_bus.SubscribeTyped(bus, event_bus.TypeEventDeclined, func(e event_bus.EventT[event_bus.EventDeclined]) error {
		declines = append(declines, e.Data)
		return nil
	})

	_, err = service.Create(ctx, creator, CreateInput{
		Date: recurrence.LocalDate{Year: 2024, Month: time.June, Day: 1}, StartTime: "18:00",
		Description: "bbq", Recurrence: recurrence.Never,
		Participants: []user.PlatformRef{invitee.Ref()},
	})
	require.NoError(t, err)

	var copyID int
	for _, e := range repo.AllEvents() {
		if e.Owner == invitee.Ref() {
			copyID = e.ID
		}
	}
	require.NotZero(t, copyID)

	declined, err := service.Decline(ctx, invitee, copyID)

	require.NoError(t, err)
	assert.Equal(t, "bbq", declined.Description)
	assert.Len(t, repo.AllEvents(), 1) // creator's original survives
	require.Len(t, declines, 1)
	assert.Equal(t, creator.Ref(), declines[0].Creator)
	assert.Equal(t, invitee.Ref(), declines[0].DeclinedBy)
}
