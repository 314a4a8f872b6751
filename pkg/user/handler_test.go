package user

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func linkRequest(t *testing.T, caller User, body LinkIdentitiesDTO) *http.Request {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/api/user/link", bytes.NewReader(raw))
	return req.WithContext(WithUser(req.Context(), caller))
}

func TestHandler_LinkIdentities(t *testing.T) {
	t.Run("links the caller's identity to the given counterpart", func(t *testing.T) {
		repo := NewRepoStub()
		service := NewService(repo, "Europe/Moscow")
		handler := NewHandler(service, NewReconciler(repo))
		caller, err := service.Upsert(context.Background(), User{TelegramID: 100})
		require.NoError(t, err)

		rec := httptest.NewRecorder()
		handler.LinkIdentities(rec, linkRequest(t, caller, LinkIdentitiesDTO{MaxID: 500}))

		require.Equal(t, http.StatusOK, rec.Code)
		linked, err := service.FindByRef(context.Background(), PlatformRef{MaxID: 500})
		require.NoError(t, err)
		assert.Equal(t, int64(100), linked.TelegramID)
	})

	t.Run("rejects a link between two foreign accounts", func(t *testing.T) {
		repo := NewRepoStub()
		service := NewService(repo, "Europe/Moscow")
		handler := NewHandler(service, NewReconciler(repo))
		caller, err := service.Upsert(context.Background(), User{TelegramID: 100})
		require.NoError(t, err)

		// body names somebody else's Telegram account
		rec := httptest.NewRecorder()
		handler.LinkIdentities(rec, linkRequest(t, caller, LinkIdentitiesDTO{TelegramID: 999, MaxID: 500}))

		assert.Equal(t, http.StatusForbidden, rec.Code)
		_, err = service.FindByRef(context.Background(), PlatformRef{MaxID: 500})
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("requires the counterpart id", func(t *testing.T) {
		repo := NewRepoStub()
		service := NewService(repo, "Europe/Moscow")
		handler := NewHandler(service, NewReconciler(repo))
		caller, err := service.Upsert(context.Background(), User{TelegramID: 100})
		require.NoError(t, err)

		rec := httptest.NewRecorder()
		handler.LinkIdentities(rec, linkRequest(t, caller, LinkIdentitiesDTO{}))

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("requires an authenticated caller", func(t *testing.T) {
		repo := NewRepoStub()
		service := NewService(repo, "Europe/Moscow")
		handler := NewHandler(service, NewReconciler(repo))

		raw, err := json.Marshal(LinkIdentitiesDTO{TelegramID: 100, MaxID: 500})
		require.NoError(t, err)
		req := httptest.NewRequest(http.MethodPost, "/api/user/link", bytes.NewReader(raw))
		rec := httptest.NewRecorder()
		handler.LinkIdentities(rec, req)

		assert.Equal(t, http.StatusForbidden, rec.Code)
	})
}
