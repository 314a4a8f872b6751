package user

import (
	"encoding/json"
	"net/http"

	log "github.com/sirupsen/logrus"

	"github.com/napomni/napomni/internal/rest"
)

type UserDTO struct {
	ID           int    `json:"id"`
	TelegramID   int64  `json:"telegramId,omitempty"`
	MaxID        int64  `json:"maxId,omitempty"`
	Username     string `json:"username,omitempty"`
	FirstName    string `json:"firstName,omitempty"`
	LastName     string `json:"lastName,omitempty"`
	Timezone     string `json:"timezone,omitempty"`
	LanguageCode string `json:"languageCode,omitempty"`
}

type LinkIdentitiesDTO struct {
	TelegramID int64 `json:"telegramId"`
	MaxID      int64 `json:"maxId"`
}

type LinkResultDTO struct {
	OK      bool   `json:"ok"`
	Message string `json:"message"`
}

type ContactDTO struct {
	TelegramID int64  `json:"telegramId,omitempty"`
	MaxID      int64  `json:"maxId,omitempty"`
	Username   string `json:"username,omitempty"`
	FirstName  string `json:"firstName,omitempty"`
	LastName   string `json:"lastName,omitempty"`
}

type Handler struct {
	service    Service
	reconciler *Reconciler
}

func NewHandler(service Service, reconciler *Reconciler) *Handler {
	return &Handler{service: service, reconciler: reconciler}
}

func (handler *Handler) CurrentUser(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	u, err := Current(r.Context())
	if err != nil {
		rest.Error(w, err.Error(), http.StatusForbidden)
		return
	}

	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(toUserDTO(u)); err != nil {
		rest.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
}

// LinkIdentities ties the caller's Telegram and Max accounts to one user
// record, merging two existing records when both platforms are known. One
// side of the link is always the caller's own authenticated identity; the
// body only names the counterpart on the other platform.
func (handler *Handler) LinkIdentities(w http.ResponseWriter, r *http.Request) {
	log.Debug("Linking platform identities")
	w.Header().Set("Content-Type", "application/json")

	caller, err := Current(r.Context())
	if err != nil {
		rest.Error(w, err.Error(), http.StatusForbidden)
		return
	}

	var dto LinkIdentitiesDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		rest.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var tgID, maxID int64
	switch {
	case caller.TelegramID != 0:
		if dto.TelegramID != 0 && dto.TelegramID != caller.TelegramID {
			rest.Error(w, "cannot link accounts of another user", http.StatusForbidden)
			return
		}
		tgID, maxID = caller.TelegramID, dto.MaxID
	case caller.MaxID != 0:
		if dto.MaxID != 0 && dto.MaxID != caller.MaxID {
			rest.Error(w, "cannot link accounts of another user", http.StatusForbidden)
			return
		}
		tgID, maxID = dto.TelegramID, caller.MaxID
	}
	if tgID == 0 || maxID == 0 {
		rest.Error(w, "counterpart platform id is required", http.StatusBadRequest)
		return
	}

	result, err := handler.reconciler.LinkIdentities(r.Context(), tgID, maxID)
	if err != nil {
		rest.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	status := http.StatusOK
	if !result.OK {
		status = http.StatusConflict
	}
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(LinkResultDTO{OK: result.OK, Message: result.Message}); err != nil {
		rest.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
}

// RegisterContact stores a contact shared by the caller. The contact row is
// inactive until that person talks to the bot themselves.
func (handler *Handler) RegisterContact(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	owner, err := Current(r.Context())
	if err != nil {
		rest.Error(w, err.Error(), http.StatusForbidden)
		return
	}

	var dto ContactDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		rest.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	contact, err := handler.service.RegisterContact(r.Context(), owner, User{
		TelegramID: dto.TelegramID,
		MaxID:      dto.MaxID,
		Username:   dto.Username,
		FirstName:  dto.FirstName,
		LastName:   dto.LastName,
	})
	if err != nil {
		rest.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	w.WriteHeader(http.StatusCreated)
	if err := json.NewEncoder(w).Encode(toUserDTO(contact)); err != nil {
		rest.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
}

func toUserDTO(u User) UserDTO {
	return UserDTO{
		ID:           u.ID,
		TelegramID:   u.TelegramID,
		MaxID:        u.MaxID,
		Username:     u.Username,
		FirstName:    u.FirstName,
		LastName:     u.LastName,
		Timezone:     u.Timezone,
		LanguageCode: u.LanguageCode,
	}
}
