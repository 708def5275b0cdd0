/**
 * @description
 * Cron scheduler for background settlement jobs. Currently runs a single job
 * that sweeps hash time locked payments past their deadline and returns the
 * locked funds.
 */

package app

import (
	"context"
	"log"

	"github.com/robfig/cron/v3"
)

// Scheduler manages the background cron jobs.
type Scheduler struct {
	cron     *cron.Cron
	service  *Service
	schedule string
}

// NewScheduler creates a scheduler running the HTLC sweep on the given cron
// schedule, e.g. "@every 1m".
func NewScheduler(service *Service, schedule string) *Scheduler {
	cronLogger := cron.PrintfLogger(log.Default())
	c := cron.New(cron.WithChain(cron.Recover(cronLogger)))
	return &Scheduler{
		cron:     c,
		service:  service,
		schedule: schedule,
	}
}

// Start registers the jobs and starts the cron scheduler.
func (s *Scheduler) Start() {
	if _, err := s.cron.AddFunc(s.schedule, s.sweepExpiredHTLCs); err != nil {
		log.Printf("level=error component=scheduler msg=\"failed to schedule htlc sweep\" schedule=%q err=%v", s.schedule, err)
		return
	}
	log.Printf("level=info component=scheduler msg=\"scheduled htlc sweep\" schedule=%q", s.schedule)
	s.cron.Start()
}

func (s *Scheduler) sweepExpiredHTLCs() {
	if n := s.service.SweepExpiredHTLCs(); n > 0 {
		log.Printf("level=info component=scheduler msg=\"swept expired htlc payments\" count=%d", n)
	}
}

// Stop gracefully stops the cron scheduler.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}
