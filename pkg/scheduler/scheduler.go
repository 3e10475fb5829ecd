// Package scheduler finds due enrollments and dispatches them to the
// step executor through a worker pool. It is the only engine component
// with a time dimension: everything else reacts to events or to the
// batches this poller claims.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/magnusmagz/crm-k-sub002/pkg/engine"
	"github.com/magnusmagz/crm-k-sub002/pkg/models"
	"github.com/magnusmagz/crm-k-sub002/pkg/persistence"
)

const (
	defaultPollInterval = 5 * time.Second
	defaultBatchSize    = 50
	defaultWorkerCount  = 4

	// A claim older than this is considered abandoned and may be
	// re-claimed by another worker.
	defaultClaimTTL = 2 * time.Minute
)

type Config struct {
	WorkerID     string
	PollInterval time.Duration
	BatchSize    int
	WorkerCount  int
	ClaimTTL     time.Duration
}

func (c *Config) applyDefaults() {
	if c.PollInterval <= 0 {
		c.PollInterval = defaultPollInterval
	}

	if c.BatchSize <= 0 {
		c.BatchSize = defaultBatchSize
	}

	if c.WorkerCount <= 0 {
		c.WorkerCount = defaultWorkerCount
	}

	if c.ClaimTTL <= 0 {
		c.ClaimTTL = defaultClaimTTL
	}
}

// Scheduler polls for due enrollments on a fixed interval, claims them
// atomically, and feeds them to a pool of workers. The claim keeps two
// workers (or two scheduler instances) from advancing the same
// enrollment concurrently.
type Scheduler struct {
	logger      *slog.Logger
	persistence persistence.Persistence
	executor    *engine.Executor
	config      Config
	now         func() time.Time

	jobs   chan *models.Enrollment
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewScheduler(
	logger *slog.Logger,
	persist persistence.Persistence,
	executor *engine.Executor,
	config Config,
) *Scheduler {
	config.applyDefaults()

	return &Scheduler{
		logger:      logger.With("module", "scheduler", "worker_id", config.WorkerID),
		persistence: persist,
		executor:    executor,
		config:      config,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Start launches the poll loop and the worker pool. It returns
// immediately; use Stop for a graceful shutdown.
func (s *Scheduler) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.jobs = make(chan *models.Enrollment)

	for i := 0; i < s.config.WorkerCount; i++ {
		s.wg.Add(1)

		go s.worker(ctx, i)
	}

	s.wg.Add(1)

	go s.pollLoop(ctx)

	s.logger.Info("Scheduler started",
		"poll_interval", s.config.PollInterval,
		"workers", s.config.WorkerCount,
		"batch_size", s.config.BatchSize)
}

// Stop cancels the poll loop and waits for in-flight work to finish.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}

	s.wg.Wait()
	s.logger.Info("Scheduler stopped")
}

func (s *Scheduler) pollLoop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.PollInterval)
	defer ticker.Stop()

	// First pass immediately so a restart drains the backlog without
	// waiting out a full interval.
	s.dispatchDue(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.dispatchDue(ctx)
		}
	}
}

// dispatchDue claims one batch of due enrollments and hands each to the
// worker pool exactly once.
func (s *Scheduler) dispatchDue(ctx context.Context) {
	now := s.now()

	claimed, err := s.persistence.ClaimDueEnrollments(ctx, now, s.config.BatchSize, s.config.WorkerID, s.config.ClaimTTL)
	if err != nil {
		s.logger.Error("Failed to claim due enrollments", "error", err)

		return
	}

	if len(claimed) == 0 {
		return
	}

	s.logger.Debug("Claimed due enrollments", "count", len(claimed))

	for _, enrollment := range claimed {
		select {
		case <-ctx.Done():
			// Shutting down mid-batch: release what we cannot process so
			// another instance picks it up without waiting out the TTL.
			s.release(context.WithoutCancel(ctx), enrollment)

			return
		case s.jobs <- enrollment:
		}
	}
}

func (s *Scheduler) worker(ctx context.Context, id int) {
	defer s.wg.Done()

	logger := s.logger.With("worker", id)

	for {
		select {
		case <-ctx.Done():
			return
		case enrollment := <-s.jobs:
			if err := s.executor.Process(ctx, enrollment); err != nil {
				logger.Error("Failed to process enrollment",
					"enrollment_id", enrollment.ID,
					"error", err)
			}

			s.release(context.WithoutCancel(ctx), enrollment)
		}
	}
}

// release clears the claim after a step commits (or fails). A missed
// release is recoverable: the claim TTL makes the row eligible again.
func (s *Scheduler) release(ctx context.Context, enrollment *models.Enrollment) {
	if err := s.persistence.ReleaseClaim(ctx, enrollment.ID, s.config.WorkerID); err != nil {
		s.logger.Warn("Failed to release enrollment claim",
			"enrollment_id", enrollment.ID,
			"error", err)
	}
}
