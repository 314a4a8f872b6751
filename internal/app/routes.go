package app

import (
	"github.com/gorilla/mux"
	"github.com/napomni/napomni/internal/config"
)

// RegisterRoutes registers all API endpoints.
func RegisterRoutes(r *mux.Router, deps *Dependencies, cfg config.Application) {

	// Events
	r.HandleFunc("/api/event", deps.EventHandler.Create).Methods("POST")
	r.HandleFunc("/api/event/{eventId}", deps.EventHandler.Update).Methods("PUT")
	r.HandleFunc("/api/event/{eventId}", deps.EventHandler.Delete).Methods("DELETE")
	r.HandleFunc("/api/event/{eventId}/snooze", deps.EventHandler.Snooze).Methods("POST")
	r.HandleFunc("/api/event/{eventId}/decline", deps.EventHandler.Decline).Methods("POST")

	// Calendar views
	r.HandleFunc("/api/calendar/month", deps.CalendarHandler.GetMonth).Queries("year", "{year}", "month", "{month}").Methods("GET")
	r.HandleFunc("/api/calendar/day", deps.CalendarHandler.GetDay).Queries("date", "{date}").Methods("GET")
	r.HandleFunc("/api/calendar/upcoming", deps.CalendarHandler.GetUpcoming).Methods("GET")

	// User management
	r.HandleFunc("/api/user/current", deps.UserHandler.CurrentUser).Methods("GET")
	r.HandleFunc("/api/user/link", deps.UserHandler.LinkIdentities).Methods("POST")
	r.HandleFunc("/api/user/contact", deps.UserHandler.RegisterContact).Methods("POST")
}
