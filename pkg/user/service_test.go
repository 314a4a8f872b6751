package user

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServiceImpl_Upsert(t *testing.T) {
	t.Run("creates an active row on first interaction", func(t *testing.T) {
		repo := NewRepoStub()
		service := NewService(repo, "Europe/Moscow")

		u, err := service.Upsert(context.Background(), User{TelegramID: 100, FirstName: "Anna"})

		require.NoError(t, err)
		assert.NotZero(t, u.ID)
		assert.True(t, u.IsActive)
	})

	t.Run("refreshes the stored profile without losing fields", func(t *testing.T) {
		repo := NewRepoStub()
		service := NewService(repo, "Europe/Moscow")
		ctx := context.Background()
		first, err := service.Upsert(ctx, User{TelegramID: 100, FirstName: "Anna", Username: "anna"})
		require.NoError(t, err)

		// the new interaction carries no username
		updated, err := service.Upsert(ctx, User{TelegramID: 100, FirstName: "Anya"})

		require.NoError(t, err)
		assert.Equal(t, first.ID, updated.ID)
		assert.Equal(t, "Anya", updated.FirstName)
		assert.Equal(t, "anna", updated.Username)
		assert.Len(t, repo.AllUsers(), 1)
	})

	t.Run("reactivates a contact row registered earlier", func(t *testing.T) {
		repo := NewRepoStub()
		service := NewService(repo, "Europe/Moscow")
		ctx := context.Background()
		owner, err := service.Upsert(ctx, User{TelegramID: 100})
		require.NoError(t, err)
		contact, err := service.RegisterContact(ctx, owner, User{TelegramID: 200})
		require.NoError(t, err)
		assert.False(t, contact.IsActive)

		activated, err := service.Upsert(ctx, User{TelegramID: 200})

		require.NoError(t, err)
		assert.Equal(t, contact.ID, activated.ID)
		assert.True(t, activated.IsActive)
	})

	t.Run("rejects a user without any platform identity", func(t *testing.T) {
		service := NewService(NewRepoStub(), "Europe/Moscow")

		_, err := service.Upsert(context.Background(), User{FirstName: "Nobody"})

		assert.ErrorIs(t, err, ErrNoIdentity)
	})
}

func TestServiceImpl_RegisterContact(t *testing.T) {
	repo := NewRepoStub()
	service := NewService(repo, "Europe/Moscow")
	ctx := context.Background()
	owner, err := service.Upsert(ctx, User{TelegramID: 100})
	require.NoError(t, err)

	contact, err := service.RegisterContact(ctx, owner, User{TelegramID: 200, FirstName: "Boris"})

	require.NoError(t, err)
	assert.False(t, contact.IsActive)
	assert.True(t, repo.HasRelation(owner.ID, contact.ID))
}

func TestServiceImpl_FindByRef(t *testing.T) {
	repo := NewRepoStub()
	service := NewService(repo, "Europe/Moscow")
	ctx := context.Background()
	created, err := service.Upsert(ctx, User{TelegramID: 100, MaxID: 200})
	require.NoError(t, err)

	byTg, err := service.FindByRef(ctx, PlatformRef{TelegramID: 100})
	require.NoError(t, err)
	assert.Equal(t, created.ID, byTg.ID)

	byMax, err := service.FindByRef(ctx, PlatformRef{MaxID: 200})
	require.NoError(t, err)
	assert.Equal(t, created.ID, byMax.ID)

	_, err = service.FindByRef(ctx, PlatformRef{TelegramID: 999})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestServiceImpl_Zone(t *testing.T) {
	service := NewService(NewRepoStub(), "Europe/Moscow")

	t.Run("uses the user's own zone", func(t *testing.T) {
		loc, err := service.Zone(User{Timezone: "Asia/Yekaterinburg"})
		require.NoError(t, err)
		assert.Equal(t, "Asia/Yekaterinburg", loc.String())
	})

	t.Run("falls back to the default zone", func(t *testing.T) {
		loc, err := service.Zone(User{})
		require.NoError(t, err)
		assert.Equal(t, "Europe/Moscow", loc.String())
	})

	t.Run("reports an unknown zone", func(t *testing.T) {
		_, err := service.Zone(User{Timezone: "Mars/Olympus"})
		assert.ErrorIs(t, err, ErrUnknownTimezone)
	})
}
