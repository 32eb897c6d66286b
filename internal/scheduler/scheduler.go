// Package scheduler wires up the cron job that periodically sweeps jobs
// stuck in PENDING and runs auto-assignment for each of them.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/Le520407/swift-fix-pro-sub002/internal/matching"
)

// sweepBatchSize caps how many stale jobs one sweep may pick up.
const sweepBatchSize = 20

// StaleJobSource lists jobs still PENDING after a given age.
type StaleJobSource interface {
	ListStalePendingJobs(ctx context.Context, olderThan time.Duration, limit int) ([]string, error)
}

// Sweeper wraps robfig/cron and manages the assignment sweep loop.
type Sweeper struct {
	cron     *cron.Cron
	source   StaleJobSource
	matcher  *matching.Service
	staleAge time.Duration
	spec     string // cron spec, e.g. "@every 15m"
	log      *slog.Logger
}

// New creates a Sweeper that fires every intervalMinutes minutes, picking up
// jobs that have sat in PENDING longer than staleAge.
func New(source StaleJobSource, matcher *matching.Service, intervalMinutes int, staleAge time.Duration, log *slog.Logger) *Sweeper {
	return &Sweeper{
		cron:     cron.New(),
		source:   source,
		matcher:  matcher,
		staleAge: staleAge,
		spec:     fmt.Sprintf("@every %dm", intervalMinutes),
		log:      log,
	}
}

// Start registers the sweep and starts the scheduler.
func (s *Sweeper) Start(ctx context.Context) error {
	_, err := s.cron.AddFunc(s.spec, func() {
		s.runSweep(ctx)
	})
	if err != nil {
		return fmt.Errorf("cron.AddFunc: %w", err)
	}

	s.cron.Start()
	s.log.Info("assignment sweeper started", "spec", s.spec, "staleAge", s.staleAge)
	return nil
}

// Stop gracefully shuts down the scheduler.
func (s *Sweeper) Stop() {
	s.cron.Stop()
	s.log.Info("assignment sweeper stopped")
}

// runSweep auto-assigns every stale pending job, continuing past per-job
// failures.
func (s *Sweeper) runSweep(ctx context.Context) {
	ids, err := s.source.ListStalePendingJobs(ctx, s.staleAge, sweepBatchSize)
	if err != nil {
		s.log.Error("listing stale pending jobs failed", "err", err)
		return
	}
	if len(ids) == 0 {
		return
	}

	s.log.Info("sweeping stale pending jobs", "count", len(ids))
	for _, id := range ids {
		_, _, err := s.matcher.AutoAssignJob(ctx, id)
		switch {
		case err == nil:
		case errors.Is(err, matching.ErrNoProviders):
			s.log.Warn("sweep found no provider for job", "jobId", id)
		default:
			s.log.Error("sweep auto-assign failed", "jobId", id, "err", err)
		}
	}
}
