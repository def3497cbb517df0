package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/auralforge/auralforge/internal/model"
	"github.com/auralforge/auralforge/internal/queue"
	"github.com/auralforge/auralforge/internal/repository"
	"github.com/auralforge/auralforge/internal/tracing"
)

const maxErrorLen = 500

// JobStore is the job state the dispatcher drives.
type JobStore interface {
	GetJob(ctx context.Context, id string) (*model.Job, error)
	MarkProcessing(ctx context.Context, id string) (*model.Job, error)
	CompleteJob(ctx context.Context, id string, result json.RawMessage, resultURL, s3Path *string) (*model.Job, error)
	FailJob(ctx context.Context, id, reason string) (*model.Job, error)
	RequeueJob(ctx context.Context, id, lastError string) (*model.Job, error)
}

// Notifier is told about every job that reaches a terminal status.
type Notifier interface {
	NotifyJob(ctx context.Context, job *model.Job) error
}

// Dispatcher implements queue.Handler on top of the jobs table.
type Dispatcher struct {
	jobs       JobStore
	processors map[model.JobType]Processor
	notifier   Notifier
	logger     *slog.Logger
}

// NewDispatcher wires processors by job type. notifier may be nil.
func NewDispatcher(jobs JobStore, processors map[model.JobType]Processor, notifier Notifier, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		jobs:       jobs,
		processors: processors,
		notifier:   notifier,
		logger:     logger.With("component", "worker.dispatcher"),
	}
}

// Handle moves the job to processing, runs its processor and stores the result.
func (d *Dispatcher) Handle(ctx context.Context, msg *queue.Message) (err error) {
	ctx, span := tracing.Start(tracing.Extract(ctx, msg.Trace), "job.process",
		attribute.String("auralforge.job.id", msg.JobID),
		attribute.String("auralforge.job.type", string(msg.Type)),
		attribute.Int("auralforge.job.attempt", msg.Attempt),
	)
	defer func() {
		if err != nil && !errors.Is(err, queue.ErrSkip) {
			tracing.Fail(span, err)
		}
		span.End()
	}()

	job, err := d.jobs.GetJob(ctx, msg.JobID)
	if err != nil {
		if errors.Is(err, repository.ErrJobNotFound) {
			return queue.Permanent(err)
		}
		return fmt.Errorf("load job: %w", err)
	}
	if job.Type != msg.Type {
		return queue.Permanent(fmt.Errorf("message type %s does not match job type %s", msg.Type, job.Type))
	}

	proc, ok := d.processors[job.Type]
	if !ok {
		return queue.Permanent(fmt.Errorf("no processor for job type %s", job.Type))
	}

	switch {
	case job.Status == model.JobStatusProcessing && msg.Reclaimed:
		// The previous consumer died mid-job; put it back before taking it.
		if _, err := d.jobs.RequeueJob(ctx, job.ID, "worker interrupted"); err != nil {
			return fmt.Errorf("requeue reclaimed job: %w", err)
		}
	case job.Status == model.JobStatusProcessing:
		return fmt.Errorf("%w: job already processing", queue.ErrSkip)
	default:
		if err := model.CheckTransition(job.Status, model.JobStatusProcessing); err != nil {
			return fmt.Errorf("%w: %w", queue.ErrSkip, err)
		}
	}

	job, err = d.jobs.MarkProcessing(ctx, job.ID)
	if err != nil {
		if errors.Is(err, model.ErrInvalidTransition) {
			return fmt.Errorf("%w: %v", queue.ErrSkip, err)
		}
		return fmt.Errorf("mark processing: %w", err)
	}

	out, err := proc.Process(ctx, job)
	if err != nil {
		return err
	}

	result, err := json.Marshal(out.Result)
	if err != nil {
		return queue.Permanent(fmt.Errorf("marshal result: %w", err))
	}

	done, err := d.jobs.CompleteJob(ctx, job.ID, result, out.ResultURL, out.S3Path)
	if err != nil {
		return fmt.Errorf("complete job: %w", err)
	}
	d.notify(ctx, done)
	return nil
}

// Retry returns the job to queued so the next attempt can claim it.
func (d *Dispatcher) Retry(ctx context.Context, msg *queue.Message, cause error) error {
	_, err := d.jobs.RequeueJob(ctx, msg.JobID, errorText(cause))
	if err == nil || !errors.Is(err, model.ErrInvalidTransition) {
		return err
	}

	// The attempt failed before MarkProcessing; a queued job needs nothing.
	job, getErr := d.jobs.GetJob(ctx, msg.JobID)
	if getErr != nil {
		return getErr
	}
	if job.Status == model.JobStatusQueued {
		return nil
	}
	return err
}

// Fail marks the job failed and notifies its callback.
func (d *Dispatcher) Fail(ctx context.Context, msg *queue.Message, cause error) error {
	job, err := d.jobs.FailJob(ctx, msg.JobID, errorText(cause))
	switch {
	case errors.Is(err, repository.ErrJobNotFound):
		d.logger.Warn("failing a job that does not exist", "job_id", msg.JobID)
		return nil
	case errors.Is(err, model.ErrInvalidTransition):
		d.logger.Info("job already terminal, leaving it", "job_id", msg.JobID, "error", err)
		return nil
	case err != nil:
		return err
	}
	d.notify(ctx, job)
	return nil
}

func (d *Dispatcher) notify(ctx context.Context, job *model.Job) {
	if d.notifier == nil {
		return
	}
	if err := d.notifier.NotifyJob(ctx, job); err != nil {
		d.logger.Error("failed to record job callback", "job_id", job.ID, "error", err)
	}
}

// errorText strips queue markers so the stored error reads naturally. The
// cut lands on a rune boundary; Postgres rejects invalid UTF-8 in TEXT.
func errorText(err error) string {
	msg := strings.TrimPrefix(err.Error(), queue.ErrPermanent.Error()+": ")
	if len(msg) > maxErrorLen {
		msg = msg[:maxErrorLen]
	}
	return strings.ToValidUTF8(msg, "")
}
