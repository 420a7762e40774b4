package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/aivideopro/aivideopro/internal/metrics"
	"github.com/aivideopro/aivideopro/internal/model"
)

// TimeoutError is recorded on jobs the sweeper gives up on.
const TimeoutError = "timed out waiting for backend"

const sweepBatchSize = 100

// Sweeper fails processing jobs still unfinished a timeout after they were
// submitted. Heartbeats do not extend the deadline.
type Sweeper struct {
	jobs     *JobService
	store    JobStore
	logger   *slog.Logger
	metrics  metrics.Recorder
	timeout  time.Duration
	interval time.Duration
	now      func() time.Time
}

// NewSweeper creates a sweeper over the given service.
func NewSweeper(jobs *JobService, timeout, interval time.Duration, logger *slog.Logger) *Sweeper {
	return &Sweeper{
		jobs:     jobs,
		store:    jobs.store,
		logger:   logger.With("component", "service.sweeper"),
		metrics:  jobs.metrics,
		timeout:  timeout,
		interval: interval,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Run sweeps every interval until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("job sweeper started", "timeout", s.timeout, "interval", s.interval)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("job sweeper stopped")
			return nil
		case <-ticker.C:
			if _, err := s.SweepOnce(ctx); err != nil && ctx.Err() == nil {
				s.logger.Error("sweep failed", "error", err)
			}
		}
	}
}

// SweepOnce fails one batch of stale jobs and returns how many it failed.
func (s *Sweeper) SweepOnce(ctx context.Context) (int, error) {
	cutoff := s.now().Add(-s.timeout)
	stale, err := s.store.ListStaleJobs(ctx, cutoff, sweepBatchSize)
	if err != nil {
		return 0, err
	}

	failed := 0
	for _, job := range stale {
		changed, err := s.jobs.ApplyStatusUpdate(ctx, "sweeper", model.StatusUpdate{
			JobID:  job.ID,
			Status: model.JobStatusFailed,
			Error:  TimeoutError,
		})
		if err != nil {
			s.logger.Warn("failed to time out job", "job_id", job.ID, "error", err)
			continue
		}
		if changed {
			failed++
		}
	}

	if failed > 0 {
		s.metrics.IncJobsTimedOut(failed)
		s.logger.Info("timed out stale jobs", "count", failed)
	}
	return failed, nil
}
