package reminder

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"
)

// Scheduler drives the dispatcher from a per-minute cron. Jobs run in UTC
// because event start times are stored as UTC instants.
type Scheduler struct {
	cron       *cron.Cron
	dispatcher *Dispatcher
}

func NewScheduler(dispatcher *Dispatcher) *Scheduler {
	return &Scheduler{
		cron:       cron.New(cron.WithLocation(time.UTC)),
		dispatcher: dispatcher,
	}
}

// Start registers the reminder jobs and begins running them. It returns
// immediately; call Stop to shut down.
func (s *Scheduler) Start(ctx context.Context) error {
	if _, err := s.cron.AddFunc("* * * * *", func() { s.run(ctx) }); err != nil {
		return fmt.Errorf("failed to schedule reminder job: %w", err)
	}

	s.cron.Start()
	log.Info("Reminder scheduler started")
	return nil
}

// Stop halts the cron and waits for a running job to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	log.Info("Reminder scheduler stopped")
}

func (s *Scheduler) run(ctx context.Context) {
	if err := s.dispatcher.DispatchDue(ctx); err != nil {
		log.Errorf("due reminder dispatch failed: %v", err)
	}
	if err := s.dispatcher.DispatchUpcoming(ctx); err != nil {
		log.Errorf("upcoming reminder dispatch failed: %v", err)
	}
}
