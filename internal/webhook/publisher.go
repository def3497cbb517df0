package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/auralforge/auralforge/internal/model"
)

// notificationStore is the write side the publisher needs.
type notificationStore interface {
	Create(ctx context.Context, n *model.JobNotification) error
}

// Publisher writes a notification row when a job with a callback URL
// reaches a terminal status.
type Publisher struct {
	store   notificationStore
	baseURL string
	logger  *slog.Logger
	now     func() time.Time
}

// NewPublisher creates a Publisher. baseURL is the public API origin used to
// turn result paths into links a callback receiver can follow.
func NewPublisher(store notificationStore, baseURL string, logger *slog.Logger) *Publisher {
	return &Publisher{
		store:   store,
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  logger.With("component", "webhook.publisher"),
		now:     time.Now,
	}
}

// NotifyJob records a callback for job. Jobs without a callback URL or
// that are not yet terminal are ignored. Repeat calls for the same event
// are no-ops.
func (p *Publisher) NotifyJob(ctx context.Context, job *model.Job) error {
	if job.CallbackURL == nil || *job.CallbackURL == "" {
		return nil
	}
	if !job.Status.IsTerminal() {
		return nil
	}

	now := p.now().UTC()
	id := ulid.Make().String()
	event := model.EventTypeForStatus(job.Status)

	resp := job.ToResponse()
	if resp.ResultURL != nil && strings.HasPrefix(*resp.ResultURL, "/") && p.baseURL != "" {
		abs := p.baseURL + *resp.ResultURL
		resp.ResultURL = &abs
	}

	payload, err := json.Marshal(model.CallbackPayload{
		EventType: event,
		EventID:   id,
		Timestamp: now,
		Job:       resp,
	})
	if err != nil {
		return fmt.Errorf("marshal callback payload: %w", err)
	}

	n := &model.JobNotification{
		ID:          id,
		JobID:       job.ID,
		EventType:   event,
		CallbackURL: *job.CallbackURL,
		PayloadJSON: string(payload),
		Status:      model.DeliveryStatusPending,
		MaxAttempts: DefaultMaxAttempts,
		NextRetryAt: now,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := p.store.Create(ctx, n); err != nil {
		if errors.Is(err, ErrNotificationExists) {
			p.logger.Debug("notification already recorded", "job_id", job.ID, "event", event)
			return nil
		}
		return fmt.Errorf("create notification: %w", err)
	}

	p.logger.Debug("notification recorded",
		"notification_id", n.ID,
		"job_id", job.ID,
		"event", event,
		"target_host", ExtractHost(n.CallbackURL),
	)
	return nil
}
