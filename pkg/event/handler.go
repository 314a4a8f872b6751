package event

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"

	"github.com/napomni/napomni/internal/rest"
	"github.com/napomni/napomni/pkg/recurrence"
	"github.com/napomni/napomni/pkg/user"
)

type ParticipantDTO struct {
	TelegramID int64 `json:"telegramId,omitempty"`
	MaxID      int64 `json:"maxId,omitempty"`
}

type CreateEventDTO struct {
	Date         string           `json:"date"` // "2006-01-02", owner's local date
	StartTime    string           `json:"startTime"`
	StopTime     string           `json:"stopTime,omitempty"`
	Description  string           `json:"description"`
	Emoji        string           `json:"emoji,omitempty"`
	Recurrence   recurrence.Kind  `json:"recurrence"`
	Participants []ParticipantDTO `json:"participants,omitempty"`
}

type EventDTO struct {
	ID          int             `json:"id"`
	Description string          `json:"description"`
	Emoji       string          `json:"emoji,omitempty"`
	StartAt     time.Time       `json:"startAt"`
	StopAt      *time.Time      `json:"stopAt,omitempty"`
	Recurrence  recurrence.Kind `json:"recurrence"`
}

type DeleteOutcomeDTO struct {
	Canceled bool     `json:"canceled"`
	Event    EventDTO `json:"event"`
}

type SnoozeDTO struct {
	RemindedAt   time.Time `json:"remindedAt"`
	ShiftMinutes int       `json:"shiftMinutes"`
}

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service}
}

func (handler *Handler) Create(w http.ResponseWriter, r *http.Request) {
	log.Debug("Creating new event")
	w.Header().Set("Content-Type", "application/json")

	owner, err := user.Current(r.Context())
	if err != nil {
		rest.Error(w, err.Error(), http.StatusForbidden)
		return
	}

	var dto CreateEventDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		rest.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	date, err := recurrence.ParseDate(dto.Date)
	if err != nil {
		rest.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	participants := make([]user.PlatformRef, 0, len(dto.Participants))
	for _, p := range dto.Participants {
		participants = append(participants, user.PlatformRef{TelegramID: p.TelegramID, MaxID: p.MaxID})
	}

	created, err := handler.service.Create(r.Context(), owner, CreateInput{
		Date:         date,
		StartTime:    dto.StartTime,
		StopTime:     dto.StopTime,
		Description:  dto.Description,
		Emoji:        dto.Emoji,
		Recurrence:   dto.Recurrence,
		Participants: participants,
	})
	if err != nil {
		if errors.Is(err, recurrence.ErrMalformedRule) {
			rest.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		rest.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusCreated)
	if err := json.NewEncoder(w).Encode(toEventDTO(created)); err != nil {
		rest.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
}

// Update replaces the editable fields of an event. The body shape matches
// create, minus participants: editing never re-runs fan-out.
func (handler *Handler) Update(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	owner, err := user.Current(r.Context())
	if err != nil {
		rest.Error(w, err.Error(), http.StatusForbidden)
		return
	}
	eventID, err := pathEventID(r)
	if err != nil {
		rest.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var dto CreateEventDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		rest.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	date, err := recurrence.ParseDate(dto.Date)
	if err != nil {
		rest.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	updated, err := handler.service.Update(r.Context(), owner, eventID, CreateInput{
		Date:        date,
		StartTime:   dto.StartTime,
		StopTime:    dto.StopTime,
		Description: dto.Description,
		Emoji:       dto.Emoji,
		Recurrence:  dto.Recurrence,
	})
	if errors.Is(err, ErrNotFound) {
		rest.Error(w, "event not found", http.StatusNotFound)
		return
	} else if errors.Is(err, recurrence.ErrMalformedRule) {
		rest.Error(w, err.Error(), http.StatusBadRequest)
		return
	} else if err != nil {
		rest.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(toEventDTO(updated)); err != nil {
		rest.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
}

// Delete removes an event, or only one occurrence of it when the "date"
// query parameter names a local calendar date and the event recurs.
func (handler *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	owner, err := user.Current(r.Context())
	if err != nil {
		rest.Error(w, err.Error(), http.StatusForbidden)
		return
	}
	eventID, err := pathEventID(r)
	if err != nil {
		rest.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var onDate *recurrence.LocalDate
	if raw := r.URL.Query().Get("date"); raw != "" {
		date, err := recurrence.ParseDate(raw)
		if err != nil {
			rest.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		onDate = &date
	}

	outcome, err := handler.service.Delete(r.Context(), owner, eventID, onDate)
	if errors.Is(err, ErrNotFound) {
		rest.Error(w, "event not found", http.StatusNotFound)
		return
	} else if err != nil {
		rest.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(DeleteOutcomeDTO{Canceled: outcome.Canceled, Event: toEventDTO(outcome.Event)}); err != nil {
		rest.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
}

func (handler *Handler) Snooze(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	owner, err := user.Current(r.Context())
	if err != nil {
		rest.Error(w, err.Error(), http.StatusForbidden)
		return
	}
	eventID, err := pathEventID(r)
	if err != nil {
		rest.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var dto SnoozeDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		rest.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if dto.ShiftMinutes <= 0 {
		rest.Error(w, "shiftMinutes must be positive", http.StatusBadRequest)
		return
	}

	snoozed, err := handler.service.Snooze(r.Context(), owner, eventID, dto.RemindedAt, time.Duration(dto.ShiftMinutes)*time.Minute)
	if errors.Is(err, ErrNotFound) {
		rest.Error(w, "event not found", http.StatusNotFound)
		return
	} else if err != nil {
		rest.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusCreated)
	if err := json.NewEncoder(w).Encode(toEventDTO(snoozed)); err != nil {
		rest.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
}

func (handler *Handler) Decline(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	owner, err := user.Current(r.Context())
	if err != nil {
		rest.Error(w, err.Error(), http.StatusForbidden)
		return
	}
	eventID, err := pathEventID(r)
	if err != nil {
		rest.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	declined, err := handler.service.Decline(r.Context(), owner, eventID)
	if errors.Is(err, ErrNotFound) {
		rest.Error(w, "event not found", http.StatusNotFound)
		return
	} else if err != nil {
		rest.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(toEventDTO(declined)); err != nil {
		rest.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
}

func pathEventID(r *http.Request) (int, error) {
	id, err := strconv.Atoi(mux.Vars(r)["eventId"])
	if err != nil {
		return 0, errors.New("invalid event id")
	}
	return id, nil
}

func toEventDTO(e Event) EventDTO {
	dto := EventDTO{
		ID:          e.ID,
		Description: e.Description,
		Emoji:       e.Emoji,
		StartAt:     e.StartAt,
	}
	if !e.StopAt.IsZero() {
		stop := e.StopAt
		dto.StopAt = &stop
	}
	if kind, err := e.Rule.Kind(); err == nil {
		dto.Recurrence = kind
	}
	return dto
}
