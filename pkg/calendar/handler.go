package calendar

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/napomni/napomni/internal/rest"
	"github.com/napomni/napomni/pkg/recurrence"
	"github.com/napomni/napomni/pkg/user"
)

type MonthDTO struct {
	Year   int         `json:"year"`
	Month  int         `json:"month"`
	Counts map[int]int `json:"counts"`
}

type DayEventDTO struct {
	ID          int             `json:"id"`
	Description string          `json:"description"`
	Emoji       string          `json:"emoji,omitempty"`
	Start       string          `json:"start"`
	Stop        string          `json:"stop,omitempty"`
	Recurrence  recurrence.Kind `json:"recurrence"`
}

type OccurrenceDTO struct {
	ID          int       `json:"id"`
	At          time.Time `json:"at"`
	Description string    `json:"description"`
	Emoji       string    `json:"emoji,omitempty"`
}

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service}
}

func (handler *Handler) GetMonth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	viewer, err := user.Current(r.Context())
	if err != nil {
		rest.Error(w, err.Error(), http.StatusForbidden)
		return
	}

	year, err := strconv.Atoi(r.URL.Query().Get("year"))
	if err != nil {
		rest.Error(w, "invalid year", http.StatusBadRequest)
		return
	}
	month, err := strconv.Atoi(r.URL.Query().Get("month"))
	if err != nil || month < 1 || month > 12 {
		rest.Error(w, "invalid month", http.StatusBadRequest)
		return
	}

	counts, err := handler.service.MonthCounts(r.Context(), viewer, year, time.Month(month))
	if err != nil {
		rest.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(MonthDTO{Year: year, Month: month, Counts: counts}); err != nil {
		rest.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
}

func (handler *Handler) GetDay(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	viewer, err := user.Current(r.Context())
	if err != nil {
		rest.Error(w, err.Error(), http.StatusForbidden)
		return
	}

	date, err := recurrence.ParseDate(r.URL.Query().Get("date"))
	if err != nil {
		rest.Error(w, "invalid date", http.StatusBadRequest)
		return
	}

	items, err := handler.service.DayEvents(r.Context(), viewer, date)
	if err != nil {
		rest.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	dtos := make([]DayEventDTO, 0, len(items))
	for _, item := range items {
		dtos = append(dtos, DayEventDTO{
			ID:          item.EventID,
			Description: item.Description,
			Emoji:       item.Emoji,
			Start:       item.Start,
			Stop:        item.Stop,
			Recurrence:  item.Recurrence,
		})
	}

	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(dtos); err != nil {
		rest.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
}

func (handler *Handler) GetUpcoming(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	viewer, err := user.Current(r.Context())
	if err != nil {
		rest.Error(w, err.Error(), http.StatusForbidden)
		return
	}

	days := 0
	if raw := r.URL.Query().Get("days"); raw != "" {
		days, err = strconv.Atoi(raw)
		if err != nil || days < 0 {
			rest.Error(w, "invalid days", http.StatusBadRequest)
			return
		}
	}

	occurrences, err := handler.service.Upcoming(r.Context(), viewer, days)
	if err != nil {
		rest.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	dtos := make([]OccurrenceDTO, 0, len(occurrences))
	for _, o := range occurrences {
		dtos = append(dtos, OccurrenceDTO{
			ID:          o.EventID,
			At:          o.At,
			Description: o.Description,
			Emoji:       o.Emoji,
		})
	}

	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(dtos); err != nil {
		rest.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
}
