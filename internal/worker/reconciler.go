package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/auralforge/auralforge/internal/model"
	"github.com/auralforge/auralforge/internal/queue"
)

const reconcileBatch = 100

// ReconcileStore finds jobs whose enqueue never completed and jobs a dead
// worker left in processing.
type ReconcileStore interface {
	ListUnqueuedJobs(ctx context.Context, olderThan time.Time, limit int) ([]*model.Job, error)
	ListStaleProcessingJobs(ctx context.Context, updatedBefore time.Time, limit int) ([]*model.Job, error)
	ReleaseStaleJob(ctx context.Context, id, lastError string) (*model.Job, error)
	SetQueueJobID(ctx context.Context, id, queueJobID string) error
}

// StaleJobError is stored on jobs the reconciler takes back from a worker.
const StaleJobError = "worker lost while processing"

// Enqueuer appends a message to its queue.
type Enqueuer interface {
	Enqueue(ctx context.Context, msg queue.Message) (string, error)
}

// Reconciler re-enqueues queued jobs that have no stream entry, closing the
// gap between the row insert and XADD. It also requeues processing jobs
// whose stream entry was lost, which XAUTOCLAIM cannot recover.
type Reconciler struct {
	jobs       ReconcileStore
	producer   Enqueuer
	grace      time.Duration
	staleAfter time.Duration
	logger     *slog.Logger
	now        func() time.Time

	cron *cron.Cron
	mu   sync.Mutex
}

// NewReconciler creates a Reconciler. Jobs younger than grace are left
// alone since their API request may still be enqueueing them. Processing
// jobs are requeued once untouched for staleAfter; zero disables that sweep.
func NewReconciler(jobs ReconcileStore, producer Enqueuer, grace, staleAfter time.Duration, logger *slog.Logger) *Reconciler {
	return &Reconciler{
		jobs:       jobs,
		producer:   producer,
		grace:      grace,
		staleAfter: staleAfter,
		logger:     logger.With("component", "worker.reconciler"),
		now:        time.Now,
	}
}

// Start schedules RunOnce on a cron spec such as "@every 1m".
func (r *Reconciler) Start(spec string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cron != nil {
		return fmt.Errorf("reconciler already started")
	}

	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := c.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if _, err := r.RunOnce(ctx); err != nil {
			r.logger.Error("reconcile failed", "error", err)
		}
	}); err != nil {
		return fmt.Errorf("invalid reconcile schedule %q: %w", spec, err)
	}

	c.Start()
	r.cron = c
	r.logger.Info("reconciler started", "schedule", spec, "grace", r.grace, "stale_after", r.staleAfter)
	return nil
}

// Shutdown stops the schedule and waits for a running pass.
func (r *Reconciler) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	c := r.cron
	r.cron = nil
	r.mu.Unlock()
	if c == nil {
		return nil
	}

	select {
	case <-c.Stop().Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunOnce enqueues one batch of stranded jobs and returns how many made it.
func (r *Reconciler) RunOnce(ctx context.Context) (int, error) {
	jobs, err := r.jobs.ListUnqueuedJobs(ctx, r.now().Add(-r.grace), reconcileBatch)
	if err != nil {
		return 0, err
	}

	enqueued := 0
	for _, job := range jobs {
		if r.enqueue(ctx, queue.NewMessage(job)) {
			enqueued++
		}
	}
	if len(jobs) > 0 {
		r.logger.Info("reconciled unqueued jobs", "found", len(jobs), "enqueued", enqueued)
	}

	recovered, err := r.recoverStale(ctx)
	if err != nil {
		return enqueued, err
	}
	return enqueued + recovered, nil
}

// recoverStale moves abandoned processing jobs back to queued with a fresh
// message. A concurrent XAUTOCLAIM redelivery loses the CAS race harmlessly.
func (r *Reconciler) recoverStale(ctx context.Context) (int, error) {
	if r.staleAfter <= 0 {
		return 0, nil
	}
	stale, err := r.jobs.ListStaleProcessingJobs(ctx, r.now().Add(-r.staleAfter), reconcileBatch)
	if err != nil {
		return 0, err
	}

	recovered := 0
	for _, job := range stale {
		requeued, err := r.jobs.ReleaseStaleJob(ctx, job.ID, StaleJobError)
		if err != nil {
			if errors.Is(err, model.ErrInvalidTransition) {
				continue
			}
			r.logger.Error("failed to requeue stale job", "job_id", job.ID, "error", err)
			continue
		}
		msg := queue.NewMessage(requeued)
		msg.Attempt = requeued.Attempts + 1
		if r.enqueue(ctx, msg) {
			recovered++
		}
	}
	if len(stale) > 0 {
		r.logger.Warn("requeued stale processing jobs", "found", len(stale), "requeued", recovered)
	}
	return recovered, nil
}

func (r *Reconciler) enqueue(ctx context.Context, msg queue.Message) bool {
	streamID, err := r.producer.Enqueue(ctx, msg)
	if err != nil {
		// The row stays queued without a stream id, so a later pass retries it.
		r.logger.Error("re-enqueue failed", "job_id", msg.JobID, "error", err)
		return false
	}
	if err := r.jobs.SetQueueJobID(ctx, msg.JobID, streamID); err != nil {
		r.logger.Error("failed to record stream id", "job_id", msg.JobID, "stream_id", streamID, "error", err)
	}
	return true
}
