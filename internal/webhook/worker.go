package webhook

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/auralforge/auralforge/internal/metrics"
	"github.com/auralforge/auralforge/internal/model"
)

const (
	DefaultBatchSize       = 50
	DefaultPollInterval    = 5 * time.Second
	DefaultMetricsInterval = 10 * time.Second
)

// deliveryStore is the subset of Repository the worker drives.
type deliveryStore interface {
	ClaimDue(ctx context.Context, now time.Time, limit int) ([]*model.JobNotification, error)
	MarkDelivered(ctx context.Context, id string, httpStatus int, at time.Time) error
	MarkFailed(ctx context.Context, id string, httpStatus *int, errMsg string, at, nextRetryAt time.Time, exhausted bool) error
	PendingCount(ctx context.Context) (int64, error)
}

// WorkerOptions tunes the delivery loop. Zero values take defaults.
type WorkerOptions struct {
	BatchSize    int
	PollInterval time.Duration
	Validation   ValidationOptions
	Client       *http.Client
}

// Worker polls due notifications and POSTs them to their callback URLs.
type Worker struct {
	store        deliveryStore
	secret       string
	client       *http.Client
	logger       *slog.Logger
	metrics      metrics.Recorder
	validation   ValidationOptions
	batchSize    int
	pollInterval time.Duration
	now          func() time.Time

	mu          sync.Mutex
	started     bool
	lastMetrics time.Time
}

// NewWorker creates a delivery worker that signs with secret.
func NewWorker(store deliveryStore, secret string, logger *slog.Logger, recorder metrics.Recorder, opts WorkerOptions) *Worker {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.Client == nil {
		opts.Client = NewHTTPClient(opts.Validation.AllowInsecure)
	}
	return &Worker{
		store:        store,
		secret:       secret,
		client:       opts.Client,
		logger:       logger.With("component", "webhook.worker"),
		metrics:      recorder,
		validation:   opts.Validation,
		batchSize:    opts.BatchSize,
		pollInterval: opts.PollInterval,
		now:          time.Now,
	}
}

// Run polls until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return errors.New("webhook worker already started")
	}
	w.started = true
	w.mu.Unlock()

	w.logger.Info("webhook worker started", "poll_interval", w.pollInterval)

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("webhook worker stopping")
			return nil
		case <-ticker.C:
			if _, err := w.ProcessOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
				w.logger.Error("process notifications", "error", err)
			}
		}
	}
}

// ProcessOnce delivers one batch and returns how many were attempted.
func (w *Worker) ProcessOnce(ctx context.Context) (int, error) {
	w.maybeUpdateQueueDepth(ctx)

	due, err := w.store.ClaimDue(ctx, w.now(), w.batchSize)
	if err != nil {
		return 0, fmt.Errorf("claim due notifications: %w", err)
	}

	for _, n := range due {
		if err := w.deliver(ctx, n); err != nil {
			w.logger.Warn("record delivery outcome", "notification_id", n.ID, "error", err)
		}
	}
	return len(due), nil
}

func (w *Worker) deliver(ctx context.Context, n *model.JobNotification) error {
	if err := ValidateCallbackURL(n.CallbackURL, w.validation); err != nil {
		// A URL that fails validation will never succeed.
		return w.recordFailure(ctx, n, nil, err.Error(), true)
	}

	ts := w.now().Unix()
	payload := []byte(n.PayloadJSON)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.CallbackURL, bytes.NewReader(payload))
	if err != nil {
		return w.recordFailure(ctx, n, nil, fmt.Sprintf("build request: %v", err), true)
	}
	signedHeaders{
		Signature:  Sign(w.secret, ts, payload),
		Timestamp:  strconv.FormatInt(ts, 10),
		DeliveryID: n.ID,
		Event:      string(n.EventType),
	}.apply(req)

	start := time.Now()
	resp, err := w.client.Do(req)
	if err != nil {
		return w.recordFailure(ctx, n, nil, err.Error(), false)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1024))

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		w.logger.Info("callback delivered",
			"notification_id", n.ID,
			"job_id", n.JobID,
			"target_host", ExtractHost(n.CallbackURL),
			"http_status", resp.StatusCode,
			"duration_ms", time.Since(start).Milliseconds(),
		)
		w.metrics.IncNotificationDelivery(string(model.DeliveryStatusSuccess))
		return w.store.MarkDelivered(ctx, n.ID, resp.StatusCode, w.now())
	}

	code := resp.StatusCode
	return w.recordFailure(ctx, n, &code, fmt.Sprintf("HTTP %d", code), false)
}

func (w *Worker) recordFailure(ctx context.Context, n *model.JobNotification, httpStatus *int, msg string, permanent bool) error {
	attempts := n.AttemptCount + 1
	now := w.now()
	expired := now.Sub(n.CreatedAt) > MaxDeliveryWindow(n.MaxAttempts)
	exhausted := permanent || expired || IsExhausted(attempts, n.MaxAttempts)

	status := model.DeliveryStatusFailed
	if exhausted {
		status = model.DeliveryStatusExhausted
	}

	w.logger.Warn("callback delivery failed",
		"notification_id", n.ID,
		"job_id", n.JobID,
		"attempt", attempts,
		"exhausted", exhausted,
		"expired", expired,
		"error", msg,
	)
	w.metrics.IncNotificationDelivery(string(status))

	return w.store.MarkFailed(ctx, n.ID, httpStatus, msg, now, now.Add(NextRetryDelay(attempts-1)), exhausted)
}

func (w *Worker) maybeUpdateQueueDepth(ctx context.Context) {
	if time.Since(w.lastMetrics) < DefaultMetricsInterval {
		return
	}
	w.lastMetrics = time.Now()

	depth, err := w.store.PendingCount(ctx)
	if err != nil {
		w.logger.Warn("count pending notifications", "error", err)
		return
	}
	w.metrics.SetQueueDepth("notifications", depth)
}
