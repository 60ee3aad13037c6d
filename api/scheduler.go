/*
scheduler.go - Nightly maintenance scheduler

PURPOSE:
  Runs the engine's batch jobs on a cron schedule: anniversary grants
  first, then a full balance reconciliation so "used" is rebuilt from the
  approved requests after any out-of-band change.

DESIGN:
  - robfig/cron with SkipIfStillRunning, so a slow run never overlaps
    the next tick
  - Each run gets its own timeout context
  - Failures are logged; the next tick tries again

USAGE:
  s, err := NewMaintenanceScheduler(engine, "0 3 * * *")
  s.Start()
  // ... later
  s.Stop()

SEE ALSO:
  - handlers.go: RecomputeAll / GrantAnniversaries (manual triggers)
  - vacation/reconciler.go: BalanceReconciler
*/
package api

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/warp/vacation-engine/vacation"
)

// MaintenanceScheduler handles automated grants and reconciliation.
type MaintenanceScheduler struct {
	Engine   *vacation.Engine
	Schedule string
	Timeout  time.Duration

	cron *cron.Cron
}

// NewMaintenanceScheduler validates the cron expression and registers the job.
func NewMaintenanceScheduler(engine *vacation.Engine, schedule string) (*MaintenanceScheduler, error) {
	s := &MaintenanceScheduler{
		Engine:   engine,
		Schedule: schedule,
		Timeout:  10 * time.Minute,
		cron:     cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger))),
	}
	if _, err := s.cron.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.Timeout)
		defer cancel()
		if err := s.RunNow(ctx); err != nil {
			log.Printf("[Scheduler] Run failed: %v", err)
		}
	}); err != nil {
		return nil, fmt.Errorf("invalid schedule %q: %w", schedule, err)
	}
	return s, nil
}

// Start begins the scheduler.
func (s *MaintenanceScheduler) Start() {
	s.cron.Start()
	log.Printf("[Scheduler] Started schedule=%q", s.Schedule)
}

// Stop stops the scheduler and waits for a running job to finish.
func (s *MaintenanceScheduler) Stop() {
	<-s.cron.Stop().Done()
	log.Println("[Scheduler] Stopped")
}

// RunNow applies anniversary grants and then recomputes every balance.
func (s *MaintenanceScheduler) RunNow(ctx context.Context) error {
	started := time.Now()

	grants, err := s.Engine.Granter.GrantAll(ctx)
	if err != nil {
		return fmt.Errorf("anniversary grants: %w", err)
	}
	granted := 0
	for _, g := range grants {
		if g.DaysGranted > 0 {
			granted++
		}
	}

	batch, err := s.Engine.Reconciler.RecomputeAll(ctx, "scheduler")
	if err != nil {
		return fmt.Errorf("reconciliation: %w", err)
	}

	log.Printf("[Scheduler] Completed in %v: %d grants applied, run %s (%d processed, %d failed)",
		time.Since(started).Round(time.Millisecond), granted,
		batch.Run.ID, batch.Run.Processed, batch.Run.Failed)
	return nil
}
