package calendar

import (
	"context"
	"testing"
	"time"

	"github.com/napomni/napomni/internal/utils"
	"github.com/napomni/napomni/pkg/event"
	"github.com/napomni/napomni/pkg/recurrence"
	"github.com/napomni/napomni/pkg/user"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupCalendar(t *testing.T) (*Service, *event.RepositoryStub, user.User, *utils.MockClock) {
	t.Helper()
	repo := event.NewRepositoryStub()
	users := user.NewService(user.NewRepoStub(), "Europe/Moscow")
	viewer, err := users.Upsert(context.Background(), user.User{TelegramID: 100})
	require.NoError(t, err)
	clock := &utils.MockClock{FixedNow: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
	return NewService(repo, users, clock, 0), repo, viewer, clock
}

// msk builds a UTC instant from Moscow wall-clock time.
func msk(year int, month time.Month, day, hour, min int) time.Time {
	loc, _ := time.LoadLocation("Europe/Moscow")
	return time.Date(year, month, day, hour, min, 0, 0, loc).UTC()
}

func storeEvent(t *testing.T, repo *event.RepositoryStub, e event.Event) int {
	t.Helper()
	id, err := repo.StoreEvent(context.Background(), e)
	require.NoError(t, err)
	return id
}

func TestService_MonthCounts(t *testing.T) {
	t.Run("single and monthly events land on their days", func(t *testing.T) {
		service, repo, viewer, _ := setupCalendar(t)
		day := 31
		storeEvent(t, repo, event.Event{
			Description: "pay rent",
			StartAt:     msk(2024, time.January, 31, 12, 0),
			Rule:        recurrence.Rule{MonthDay: &day},
			Owner:       viewer.Ref(),
		})
		storeEvent(t, repo, event.Event{
			Description: "dentist",
			StartAt:     msk(2024, time.June, 14, 10, 0),
			Rule:        recurrence.Rule{Single: true},
			Owner:       viewer.Ref(),
		})

		counts, err := service.MonthCounts(context.Background(), viewer, 2024, time.June)

		require.NoError(t, err)
		assert.Equal(t, 1, counts[14])
		// June has no 31st: the monthly event clamps to the last day
		assert.Equal(t, 1, counts[30])
		assert.Equal(t, 0, counts[1])
		assert.Len(t, counts, 30)
	})

	t.Run("daily events cover the month from their start day", func(t *testing.T) {
		service, repo, viewer, _ := setupCalendar(t)
		id := storeEvent(t, repo, event.Event{
			Description: "standup",
			StartAt:     msk(2024, time.June, 10, 9, 0),
			Rule:        recurrence.Rule{Daily: true},
			Owner:       viewer.Ref(),
		})
		require.NoError(t, repo.StoreCancellation(context.Background(), id,
			recurrence.LocalDate{Year: 2024, Month: time.June, Day: 12}))

		counts, err := service.MonthCounts(context.Background(), viewer, 2024, time.June)

		require.NoError(t, err)
		// nothing before the start day in the creation month
		assert.Equal(t, 0, counts[9])
		assert.Equal(t, 1, counts[10])
		assert.Equal(t, 0, counts[12]) // canceled
		assert.Equal(t, 1, counts[30])

		// in a later month the same daily covers every day
		later, err := service.MonthCounts(context.Background(), viewer, 2024, time.July)
		require.NoError(t, err)
		assert.Equal(t, 1, later[1])
		assert.Equal(t, 1, later[31])
	})

	t.Run("is idempotent", func(t *testing.T) {
		service, repo, viewer, _ := setupCalendar(t)
		storeEvent(t, repo, event.Event{
			Description: "standup",
			StartAt:     msk(2024, time.January, 1, 9, 0),
			Rule:        recurrence.Rule{Daily: true},
			Owner:       viewer.Ref(),
		})

		first, err := service.MonthCounts(context.Background(), viewer, 2024, time.June)
		require.NoError(t, err)
		second, err := service.MonthCounts(context.Background(), viewer, 2024, time.June)
		require.NoError(t, err)

		assert.Equal(t, first, second)
	})

	t.Run("a single event contributes exactly one occurrence", func(t *testing.T) {
		service, repo, viewer, _ := setupCalendar(t)
		storeEvent(t, repo, event.Event{
			Description: "concert",
			StartAt:     msk(2024, time.June, 21, 19, 0),
			Rule:        recurrence.Rule{Single: true},
			Owner:       viewer.Ref(),
		})

		counts, err := service.MonthCounts(context.Background(), viewer, 2024, time.June)

		require.NoError(t, err)
		total := 0
		for _, c := range counts {
			total += c
		}
		assert.Equal(t, 1, total)
	})

	t.Run("skips malformed rows instead of failing", func(t *testing.T) {
		service, repo, viewer, _ := setupCalendar(t)
		day := 5
		storeEvent(t, repo, event.Event{
			Description: "broken",
			StartAt:     msk(2024, time.June, 5, 9, 0),
			Rule:        recurrence.Rule{Daily: true, MonthDay: &day}, // two variants at once
			Owner:       viewer.Ref(),
		})
		storeEvent(t, repo, event.Event{
			Description: "fine",
			StartAt:     msk(2024, time.June, 5, 10, 0),
			Rule:        recurrence.Rule{Single: true},
			Owner:       viewer.Ref(),
		})

		counts, err := service.MonthCounts(context.Background(), viewer, 2024, time.June)

		require.NoError(t, err)
		assert.Equal(t, 1, counts[5])
	})
}

func TestService_DayEvents(t *testing.T) {
	service, repo, viewer, _ := setupCalendar(t)
	storeEvent(t, repo, event.Event{
		Description: "lunch",
		StartAt:     msk(2024, time.June, 14, 13, 0),
		StopAt:      msk(2024, time.June, 14, 14, 0),
		Rule:        recurrence.Rule{Single: true},
		Owner:       viewer.Ref(),
	})
	storeEvent(t, repo, event.Event{
		Description: "standup",
		StartAt:     msk(2024, time.June, 1, 9, 30),
		Rule:        recurrence.Rule{Daily: true},
		Owner:       viewer.Ref(),
	})

	items, err := service.DayEvents(context.Background(), viewer,
		recurrence.LocalDate{Year: 2024, Month: time.June, Day: 14})

	require.NoError(t, err)
	require.Len(t, items, 2)
	// sorted by localized start time
	assert.Equal(t, "standup", items[0].Description)
	assert.Equal(t, "09:30", items[0].Start)
	assert.Equal(t, "lunch", items[1].Description)
	assert.Equal(t, "13:00", items[1].Start)
	assert.Equal(t, "14:00", items[1].Stop)
	assert.Equal(t, recurrence.Never, items[1].Recurrence)
}

func TestService_Upcoming(t *testing.T) {
	service, repo, viewer, clock := setupCalendar(t)
	clock.SetNow(msk(2024, time.June, 1, 8, 0))

	storeEvent(t, repo, event.Event{
		Description: "standup",
		StartAt:     msk(2024, time.May, 1, 9, 0),
		Rule:        recurrence.Rule{Daily: true},
		Owner:       viewer.Ref(),
	})
	storeEvent(t, repo, event.Event{
		Description: "dentist",
		StartAt:     msk(2024, time.June, 3, 10, 30),
		Rule:        recurrence.Rule{Single: true},
		Owner:       viewer.Ref(),
	})
	storeEvent(t, repo, event.Event{
		Description: "too far",
		StartAt:     msk(2024, time.June, 25, 10, 0),
		Rule:        recurrence.Rule{Single: true},
		Owner:       viewer.Ref(),
	})

	occurrences, err := service.Upcoming(context.Background(), viewer, 0)

	require.NoError(t, err)
	// the 10-day window holds ten daily occurrences and one single visit
	require.Len(t, occurrences, 11)
	for i := 1; i < len(occurrences); i++ {
		assert.False(t, occurrences[i].At.Before(occurrences[i-1].At))
	}

	var dentist []time.Time
	for _, o := range occurrences {
		if o.Description == "dentist" {
			dentist = append(dentist, o.At)
		}
	}
	require.Len(t, dentist, 1)
	assert.True(t, dentist[0].Equal(msk(2024, time.June, 3, 10, 30)))
}

func TestService_Upcoming_ConfiguredLookahead(t *testing.T) {
	repo := event.NewRepositoryStub()
	users := user.NewService(user.NewRepoStub(), "Europe/Moscow")
	viewer, err := users.Upsert(context.Background(), user.User{TelegramID: 100})
	require.NoError(t, err)
	clock := &utils.MockClock{FixedNow: msk(2024, time.June, 1, 8, 0)}
	service := NewService(repo, users, clock, 3)

	storeEvent(t, repo, event.Event{
		Description: "standup",
		StartAt:     msk(2024, time.May, 1, 9, 0),
		Rule:        recurrence.Rule{Daily: true},
		Owner:       viewer.Ref(),
	})

	// zero falls back to the configured window, not the built-in ten days
	occurrences, err := service.Upcoming(context.Background(), viewer, 0)

	require.NoError(t, err)
	assert.Len(t, occurrences, 3)
}
