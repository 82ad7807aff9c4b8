// Package scheduler runs the periodic rule application and cleanup jobs.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Veraticus/cumin/internal/common"
	"github.com/Veraticus/cumin/internal/config"
	"github.com/Veraticus/cumin/internal/engine"
	"github.com/robfig/cron/v3"
)

// Jobs is the part of the engine the scheduler drives.
type Jobs interface {
	ApplyRulesForOwners(ctx context.Context, owners []string, opts engine.BatchOptions) (*engine.BatchSummary, error)
	CleanupAllStaleRules(ctx context.Context, maxAgeDays, minUsage int) (int, error)
}

// Scheduler runs batch application and stale rule cleanup on cron specs.
// A run still in progress when its next tick fires is skipped.
type Scheduler struct {
	cron      *cron.Cron
	jobs      Jobs
	cancel    context.CancelFunc
	retry     common.RetryOptions
	cfg       config.Schedule
	applyID   cron.EntryID
	cleanupID cron.EntryID
	mu        sync.Mutex
}

// New creates a scheduler; call Start to begin running jobs.
func New(jobs Jobs, cfg config.Schedule) *Scheduler {
	return &Scheduler{
		cron: cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		jobs: jobs,
		cfg:  cfg,
		retry: common.RetryOptions{
			MaxAttempts:  3,
			InitialDelay: time.Second,
			MaxDelay:     30 * time.Second,
		},
	}
}

// Start registers both jobs and starts the cron loop. Jobs stop receiving
// new work once ctx is canceled or Stop is called.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		return fmt.Errorf("scheduler already started")
	}

	runCtx, cancel := context.WithCancel(ctx)

	applyID, err := s.cron.AddFunc(s.cfg.ApplySpec, func() { s.logRun("apply", s.RunApply(runCtx)) })
	if err != nil {
		cancel()
		return fmt.Errorf("%w: apply schedule %q: %w", common.ErrInvalidConfig, s.cfg.ApplySpec, err)
	}
	cleanupID, err := s.cron.AddFunc(s.cfg.CleanupSpec, func() { s.logRun("cleanup", s.RunCleanup(runCtx)) })
	if err != nil {
		s.cron.Remove(applyID)
		cancel()
		return fmt.Errorf("%w: cleanup schedule %q: %w", common.ErrInvalidConfig, s.cfg.CleanupSpec, err)
	}

	s.applyID = applyID
	s.cleanupID = cleanupID

	s.cancel = cancel
	s.cron.Start()

	slog.Info("Scheduler started",
		"apply", s.cfg.ApplySpec,
		"cleanup", s.cfg.CleanupSpec)
	return nil
}

// Stop cancels running jobs and waits for them to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	<-s.cron.Stop().Done()
	slog.Info("Scheduler stopped")
}

// NextRuns returns when the apply and cleanup jobs run next. Both are zero
// before Start.
func (s *Scheduler) NextRuns() (apply, cleanup time.Time) {
	s.mu.Lock()
	applyID, cleanupID := s.applyID, s.cleanupID
	s.mu.Unlock()

	if applyID == 0 {
		return time.Time{}, time.Time{}
	}
	return s.cron.Entry(applyID).Next, s.cron.Entry(cleanupID).Next
}

// RunApply applies rules for every owner once.
func (s *Scheduler) RunApply(ctx context.Context) error {
	return common.WithRetry(ctx, func() error {
		summary, err := s.jobs.ApplyRulesForOwners(ctx, nil, engine.BatchOptions{
			MaxTransactions: s.cfg.MaxTransactions,
		})
		if err != nil {
			return err
		}
		slog.Info("Scheduled apply finished",
			"run_id", summary.RunID,
			"updated", summary.Updated,
			"considered", summary.Considered,
			"failed", summary.Failed)
		return nil
	}, s.retry)
}

// RunCleanup removes stale rules of every owner once.
func (s *Scheduler) RunCleanup(ctx context.Context) error {
	return common.WithRetry(ctx, func() error {
		removed, err := s.jobs.CleanupAllStaleRules(ctx, s.cfg.MaxAgeDays, s.cfg.MinUsage)
		if err != nil {
			return err
		}
		slog.Info("Scheduled cleanup finished", "removed", removed)
		return nil
	}, s.retry)
}

func (s *Scheduler) logRun(job string, err error) {
	if err != nil {
		slog.Error("Scheduled job failed", "job", job, "error", err)
	}
}
