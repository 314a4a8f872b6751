package app

import (
	"database/sql"
	"time"

	"github.com/napomni/napomni/internal/config"
	"github.com/napomni/napomni/internal/event_bus"
	"github.com/napomni/napomni/internal/utils"
	"github.com/napomni/napomni/pkg/calendar"
	"github.com/napomni/napomni/pkg/event"
	"github.com/napomni/napomni/pkg/reminder"
	"github.com/napomni/napomni/pkg/user"
)

// Dependencies holds all services and handlers for the application.
type Dependencies struct {
	Bus *event_bus.EventBus

	UserRepo       user.Repo
	UserService    user.Service
	UserReconciler *user.Reconciler
	UserHandler    *user.Handler

	EventRepo    event.Repository
	EventService *event.Service
	EventHandler *event.Handler

	CalendarService *calendar.Service
	CalendarHandler *calendar.Handler

	Sender            reminder.Sender
	ReminderNotifier  *reminder.Notifier
	ReminderScheduler *reminder.Scheduler

	Clock utils.Clock
}

// BuildDependencies initializes and wires all application services and handlers.
func BuildDependencies(db *sql.DB, cfg config.Application) *Dependencies {
	deps := &Dependencies{}

	deps.Bus = event_bus.NewEventBus()
	deps.Clock = &utils.SystemClock{}

	deps.UserRepo = user.NewRepo(db)
	deps.UserService = user.NewService(deps.UserRepo, cfg.Timezone)
	deps.UserReconciler = user.NewReconciler(deps.UserRepo)
	deps.UserHandler = user.NewHandler(deps.UserService, deps.UserReconciler)

	deps.EventRepo = event.NewRepository(db)
	deps.EventService = event.NewService(deps.EventRepo, deps.UserService, deps.Bus)
	deps.EventHandler = event.NewHandler(deps.EventService)

	deps.CalendarService = calendar.NewService(deps.EventRepo, deps.UserService, deps.Clock, cfg.Reminder.LookaheadDays)
	deps.CalendarHandler = calendar.NewHandler(deps.CalendarService)

	sendDelay := time.Duration(cfg.Reminder.SendDelayMs) * time.Millisecond
	deps.Sender = reminder.LogSender{}
	deps.ReminderNotifier = reminder.NewNotifier(deps.Sender, sendDelay)
	deps.ReminderNotifier.Register(deps.Bus)
	dispatcher := reminder.NewDispatcher(deps.EventRepo, deps.UserService, deps.Sender, deps.Clock, sendDelay)
	deps.ReminderScheduler = reminder.NewScheduler(dispatcher)

	return deps
}
