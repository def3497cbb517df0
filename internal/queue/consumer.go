package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/auralforge/auralforge/internal/metrics"
)

const (
	// DefaultBlockTimeout is how long to block waiting for messages.
	DefaultBlockTimeout = 5 * time.Second

	// DefaultMaxAttempts is how many deliveries a job gets before it fails.
	DefaultMaxAttempts = 3

	// DefaultJobTimeout bounds a single Handle call.
	DefaultJobTimeout = 60 * time.Second

	// DefaultClaimInterval is how often to scan pending messages.
	DefaultClaimInterval = 10 * time.Second

	// DefaultClaimIdle is the idle time before reclaiming pending messages.
	// It must exceed the job timeout or live jobs get stolen.
	DefaultClaimIdle = 2 * time.Minute

	// DefaultPromoteInterval is how often delayed retries are checked.
	DefaultPromoteInterval = time.Second

	// DefaultMetricsInterval is how often to refresh queue depth metrics.
	DefaultMetricsInterval = 5 * time.Second

	promoteBatch = 100
)

var (
	// ErrPermanent marks a handler error that must not be retried.
	ErrPermanent = errors.New("permanent failure")

	// ErrSkip tells the consumer to acknowledge without retrying or failing,
	// for example a duplicate delivery of a job that already finished.
	ErrSkip = errors.New("skip message")

	// errPoison marks an entry that could not be decoded and was dead-lettered.
	errPoison = errors.New("poison message")
)

// Permanent wraps err so the consumer fails the job immediately.
func Permanent(err error) error {
	return fmt.Errorf("%w: %w", ErrPermanent, err)
}

// Handler processes messages for one queue.
type Handler interface {
	// Handle runs the job. A nil error acknowledges the message.
	Handle(ctx context.Context, msg *Message) error
	// Retry is called before a failed attempt is rescheduled.
	Retry(ctx context.Context, msg *Message, cause error) error
	// Fail is called once attempts are exhausted or the error is permanent.
	Fail(ctx context.Context, msg *Message, cause error) error
}

// Consumer reads one queue as a member of the workers consumer group.
type Consumer struct {
	redis           *redis.Client
	producer        *Producer
	handler         Handler
	queue           string
	logger          *slog.Logger
	metrics         metrics.Recorder
	consumerID      string
	blockTimeout    time.Duration
	maxAttempts     int
	jobTimeout      time.Duration
	claimInterval   time.Duration
	claimIdle       time.Duration
	promoteInterval time.Duration
	metricsInterval time.Duration
	claimStartID    string
	lastClaim       time.Time
	lastPromote     time.Time
	lastMetrics     time.Time
	now             func() time.Time

	started  bool
	draining bool
	cancel   context.CancelFunc
	done     chan struct{}
	mu       sync.Mutex
}

// ConsumerOptions overrides consumer defaults. Zero values keep the default.
type ConsumerOptions struct {
	MaxAttempts     int
	JobTimeout      time.Duration
	BlockTimeout    time.Duration
	ClaimInterval   time.Duration
	ClaimIdle       time.Duration
	PromoteInterval time.Duration
	MetricsInterval time.Duration
}

// NewConsumer creates a consumer for queue.
func NewConsumer(client *redis.Client, queue string, handler Handler, logger *slog.Logger, consumerID string, recorder metrics.Recorder, opts ConsumerOptions) *Consumer {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	c := &Consumer{
		redis:           client,
		producer:        NewProducer(client, logger),
		handler:         handler,
		queue:           queue,
		logger:          logger.With("component", "queue.consumer", "queue", queue, "consumer_id", consumerID),
		metrics:         recorder,
		consumerID:      consumerID,
		blockTimeout:    DefaultBlockTimeout,
		maxAttempts:     DefaultMaxAttempts,
		jobTimeout:      DefaultJobTimeout,
		claimInterval:   DefaultClaimInterval,
		claimIdle:       DefaultClaimIdle,
		promoteInterval: DefaultPromoteInterval,
		metricsInterval: DefaultMetricsInterval,
		claimStartID:    "0-0",
		now:             time.Now,
	}
	if opts.MaxAttempts > 0 {
		c.maxAttempts = opts.MaxAttempts
	}
	if opts.JobTimeout > 0 {
		c.jobTimeout = opts.JobTimeout
	}
	if opts.BlockTimeout > 0 {
		c.blockTimeout = opts.BlockTimeout
	}
	if opts.ClaimInterval > 0 {
		c.claimInterval = opts.ClaimInterval
	}
	if opts.ClaimIdle > 0 {
		c.claimIdle = opts.ClaimIdle
	}
	if opts.PromoteInterval > 0 {
		c.promoteInterval = opts.PromoteInterval
	}
	if opts.MetricsInterval > 0 {
		c.metricsInterval = opts.MetricsInterval
	}
	return c
}

// Run starts the consumer loop. Blocks until context is cancelled.
func (c *Consumer) Run(ctx context.Context) error {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return errors.New("consumer already started")
	}
	c.started = true
	c.done = make(chan struct{})
	ctx, c.cancel = context.WithCancel(ctx)
	c.mu.Unlock()

	defer close(c.done)

	if err := EnsureGroup(ctx, c.redis, c.queue); err != nil {
		return fmt.Errorf("ensure consumer group: %w", err)
	}

	c.logger.Info("queue consumer started")

	for {
		c.mu.Lock()
		draining := c.draining
		c.mu.Unlock()

		if draining {
			c.logger.Info("queue consumer draining, stopping")
			return nil
		}

		select {
		case <-ctx.Done():
			c.logger.Info("queue consumer stopping")
			return nil
		default:
			if err := c.processOnce(ctx); err != nil {
				if errors.Is(err, context.Canceled) {
					return nil
				}
				c.logger.Error("process error", "error", err)
				sleep(ctx, time.Second)
			}
		}
	}
}

// Shutdown stops reading and waits for the in-flight message to finish.
func (c *Consumer) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	if !c.started {
		c.mu.Unlock()
		return nil
	}
	c.draining = true
	cancel := c.cancel
	done := c.done
	c.mu.Unlock()

	c.logger.Info("queue consumer shutdown initiated")

	if cancel != nil {
		cancel()
	}

	if done != nil {
		select {
		case <-done:
			c.logger.Info("queue consumer shutdown complete")
			return nil
		case <-ctx.Done():
			c.logger.Warn("queue consumer shutdown timed out")
			return ctx.Err()
		}
	}
	return nil
}

// EnsureGroup creates the workers group on a queue stream if missing.
func EnsureGroup(ctx context.Context, client *redis.Client, queue string) error {
	err := client.XGroupCreateMkStream(ctx, StreamKey(queue), ConsumerGroup, "0").Err()
	if err != nil && !isConsumerGroupExistsError(err) {
		return err
	}
	return nil
}

// processOnce handles at most one message.
func (c *Consumer) processOnce(ctx context.Context) error {
	c.maybeUpdateQueueDepth(ctx)
	c.maybePromoteDelayed(ctx)

	claimed, err := c.maybeClaimPending(ctx)
	if err != nil {
		c.logger.Warn("failed to claim pending messages", "error", err)
	}

	var (
		raw       redis.XMessage
		reclaimed bool
	)
	switch {
	case len(claimed) > 0:
		raw, reclaimed = claimed[0], true
	default:
		messages, err := c.readOne(ctx)
		if err != nil {
			return err
		}
		if len(messages) == 0 {
			return nil
		}
		raw = messages[0]
	}

	msg, err := c.parseMessage(ctx, raw)
	if err != nil {
		if !errors.Is(err, errPoison) {
			// The dead-letter copy was not written; keep the entry pending.
			return fmt.Errorf("dead-letter poison message %s: %w", raw.ID, err)
		}
		// Poison messages are dead-lettered by parseMessage; drop them from the PEL.
		return c.ack(ctx, raw.ID)
	}
	msg.Reclaimed = reclaimed

	// Once a message is taken, finish it even if shutdown cancels ctx.
	bctx := context.WithoutCancel(ctx)
	if err := c.dispatch(bctx, msg); err != nil {
		// Leave the entry pending; XAUTOCLAIM hands it out again after claimIdle.
		return fmt.Errorf("job %s left pending: %w", msg.JobID, err)
	}
	return c.ack(bctx, raw.ID)
}

// dispatch runs the handler and applies the retry policy. Retries travel as
// new entries, so the caller acks unless dispatch returns an error: that
// means the job's bookkeeping failed and the message must be redelivered.
func (c *Consumer) dispatch(ctx context.Context, msg *Message) error {
	start := c.now()
	jobType := string(msg.Type)
	logger := c.logger.With("job_id", msg.JobID, "attempt", msg.Attempt, "stream_id", msg.StreamID)

	hctx, cancel := context.WithTimeout(ctx, c.jobTimeout)
	err := c.handler.Handle(hctx, msg)
	cancel()
	c.metrics.ObserveJobDuration(jobType, c.now().Sub(start))

	switch {
	case err == nil:
		c.metrics.IncJobProcessed(jobType, "completed")
		logger.Info("job completed", "duration_ms", c.now().Sub(start).Milliseconds())
		return nil

	case errors.Is(err, ErrSkip):
		logger.Info("job skipped", "reason", err.Error())
		return nil

	case errors.Is(err, ErrPermanent) || msg.Attempt >= c.maxAttempts:
		logger.Warn("job failed", "error", err, "max_attempts", c.maxAttempts)
		if ferr := c.handler.Fail(ctx, msg, err); ferr != nil {
			logger.Error("failed to record job failure", "error", ferr)
			return fmt.Errorf("record failure: %w", ferr)
		}
		reason := "exhausted"
		if errors.Is(err, ErrPermanent) {
			reason = "permanent"
		}
		if derr := c.producer.DeadLetter(ctx, *msg, reason, err.Error()); derr != nil {
			return fmt.Errorf("dead-letter: %w", derr)
		}
		c.metrics.IncJobProcessed(jobType, "dead_lettered")
		return nil
	}

	delay := Backoff(msg.Attempt)
	logger.Warn("job attempt failed, retrying", "error", err, "backoff_ms", delay.Milliseconds())
	if rerr := c.handler.Retry(ctx, msg, err); rerr != nil {
		logger.Error("failed to requeue job", "error", rerr)
		return fmt.Errorf("requeue: %w", rerr)
	}

	next := *msg
	next.Attempt++
	next.EnqueuedAt = c.now().UTC()
	if serr := c.producer.Schedule(ctx, next, c.now().Add(delay)); serr != nil {
		// Fall back to an immediate retry so the queued row is not stranded.
		logger.Error("failed to schedule retry, enqueueing now", "error", serr)
		if _, eerr := c.producer.Enqueue(ctx, next); eerr != nil {
			logger.Error("failed to enqueue retry", "error", eerr)
			return fmt.Errorf("enqueue retry: %w", eerr)
		}
	}
	c.metrics.IncJobProcessed(jobType, "retried")
	return nil
}

// maybeClaimPending takes over a message whose consumer stopped acking it.
func (c *Consumer) maybeClaimPending(ctx context.Context) ([]redis.XMessage, error) {
	if c.claimInterval <= 0 || c.claimIdle <= 0 {
		return nil, nil
	}
	if !c.lastClaim.IsZero() && c.now().Sub(c.lastClaim) < c.claimInterval {
		return nil, nil
	}

	c.lastClaim = c.now()
	messages, start, err := c.redis.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   StreamKey(c.queue),
		Group:    ConsumerGroup,
		Consumer: c.consumerID,
		MinIdle:  c.claimIdle,
		Start:    c.claimStartID,
		Count:    1,
	}).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("xautoclaim: %w", err)
	}
	if start != "" {
		c.claimStartID = start
	}
	if len(messages) > 0 {
		c.logger.Warn("reclaimed stale message", "message_id", messages[0].ID)
	}
	return messages, nil
}

func (c *Consumer) maybePromoteDelayed(ctx context.Context) {
	if !c.lastPromote.IsZero() && c.now().Sub(c.lastPromote) < c.promoteInterval {
		return
	}
	c.lastPromote = c.now()

	n, err := c.producer.PromoteDue(ctx, c.queue, c.now(), promoteBatch)
	if err != nil {
		c.logger.Warn("failed to promote delayed retries", "error", err)
		return
	}
	if n > 0 {
		c.logger.Debug("promoted delayed retries", "count", n)
	}
}

func (c *Consumer) maybeUpdateQueueDepth(ctx context.Context) {
	if c.metricsInterval <= 0 {
		return
	}
	if !c.lastMetrics.IsZero() && c.now().Sub(c.lastMetrics) < c.metricsInterval {
		return
	}
	c.lastMetrics = c.now()

	depth, err := c.producer.Depth(ctx, c.queue)
	if err != nil {
		c.logger.Warn("failed to read queue depth", "error", err)
		return
	}
	c.metrics.SetQueueDepth(c.queue, depth)
}

// readOne reads the next new message with XREADGROUP.
func (c *Consumer) readOne(ctx context.Context) ([]redis.XMessage, error) {
	streams, err := c.redis.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    ConsumerGroup,
		Consumer: c.consumerID,
		Streams:  []string{StreamKey(c.queue), ">"},
		Count:    1,
		Block:    c.blockTimeout,
	}).Result()

	if errors.Is(err, redis.Nil) || (err == nil && len(streams) == 0) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("xreadgroup: %w", err)
	}

	return streams[0].Messages, nil
}

// parseMessage decodes a stream entry. Malformed entries are dead-lettered.
func (c *Consumer) parseMessage(ctx context.Context, raw redis.XMessage) (*Message, error) {
	payload, ok := raw.Values[payloadField].(string)
	if !ok {
		err := errors.New("payload field missing or not a string")
		if derr := c.producer.deadLetterRaw(ctx, c.queue, raw.ID, "", "invalid_format", err.Error()); derr != nil {
			return nil, errors.Join(err, derr)
		}
		c.metrics.IncJobProcessed("unknown", "dead_lettered")
		return nil, fmt.Errorf("%w: %w", errPoison, err)
	}

	msg, err := DecodeMessage(payload)
	if err != nil {
		if derr := c.producer.deadLetterRaw(ctx, c.queue, raw.ID, payload, "invalid_message", err.Error()); derr != nil {
			return nil, errors.Join(err, derr)
		}
		c.metrics.IncJobProcessed("unknown", "dead_lettered")
		return nil, fmt.Errorf("%w: %w", errPoison, err)
	}
	msg.StreamID = raw.ID
	return &msg, nil
}

// ack acknowledges a processed message.
func (c *Consumer) ack(ctx context.Context, id string) error {
	if err := c.redis.XAck(ctx, StreamKey(c.queue), ConsumerGroup, id).Err(); err != nil {
		return fmt.Errorf("xack: %w", err)
	}
	return nil
}

// isConsumerGroupExistsError checks if the error is "BUSYGROUP" (group exists).
func isConsumerGroupExistsError(err error) bool {
	return err != nil && strings.HasPrefix(err.Error(), "BUSYGROUP")
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
