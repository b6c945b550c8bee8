// Package scheduler wires up the cron job that periodically re-scans
// every watched listing for amendments.
package scheduler

import (
	"context"
	"fmt"
	"log"

	"github.com/robfig/cron/v3"

	"github.com/asquitt/govtech-sniper/internal/ingest"
)

// Scheduler wraps robfig/cron around the ingest worker.
type Scheduler struct {
	cron   *cron.Cron
	worker *ingest.Worker
	spec   string
}

// New creates a Scheduler that fires every intervalHours hours.
func New(worker *ingest.Worker, intervalHours int) *Scheduler {
	if intervalHours < 1 {
		intervalHours = 6
	}
	return &Scheduler{
		cron:   cron.New(cron.WithLogger(cron.DefaultLogger)),
		worker: worker,
		spec:   fmt.Sprintf("@every %dh", intervalHours),
	}
}

// Start registers the job and starts the scheduler. One scan runs
// immediately so fresh deployments don't wait for the first tick.
func (s *Scheduler) Start(ctx context.Context) error {
	_, err := s.cron.AddFunc(s.spec, func() {
		s.worker.ScanAll(ctx)
	})
	if err != nil {
		return fmt.Errorf("cron.AddFunc: %w", err)
	}

	s.cron.Start()
	log.Printf("[Scheduler] Cron started with spec %s", s.spec)

	go s.worker.ScanAll(ctx)

	return nil
}

// Stop gracefully shuts down the scheduler.
func (s *Scheduler) Stop() {
	s.cron.Stop()
	log.Println("[Scheduler] Cron stopped")
}
