package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/auralforge/auralforge/internal/tracing"
)

// Producer appends messages to queue streams.
type Producer struct {
	redis  *redis.Client
	logger *slog.Logger
}

// NewProducer creates a producer on an existing client.
func NewProducer(client *redis.Client, logger *slog.Logger) *Producer {
	return &Producer{
		redis:  client,
		logger: logger.With("component", "queue.producer"),
	}
}

// Enqueue adds msg to its queue and returns the stream entry ID.
func (p *Producer) Enqueue(ctx context.Context, msg Message) (string, error) {
	if msg.Trace == nil {
		msg.Trace = tracing.Inject(ctx)
	}
	payload, err := msg.Encode()
	if err != nil {
		return "", err
	}

	id, err := p.redis.XAdd(ctx, &redis.XAddArgs{
		Stream: StreamKey(msg.Queue()),
		MaxLen: MaxStreamLen,
		Approx: true,
		ID:     "*",
		Values: map[string]interface{}{
			"job_id":     msg.JobID,
			payloadField: payload,
		},
	}).Result()
	if err != nil {
		return "", fmt.Errorf("xadd %s: %w", msg.Queue(), err)
	}

	p.logger.Debug("job enqueued",
		"job_id", msg.JobID,
		"queue", msg.Queue(),
		"attempt", msg.Attempt,
		"stream_id", id,
	)
	return id, nil
}

// Schedule parks msg until at, after which a consumer moves it back onto
// the stream.
func (p *Producer) Schedule(ctx context.Context, msg Message, at time.Time) error {
	payload, err := msg.Encode()
	if err != nil {
		return err
	}
	err = p.redis.ZAdd(ctx, DelayedKey(msg.Queue()), redis.Z{
		Score:  float64(at.UnixMilli()),
		Member: payload,
	}).Err()
	if err != nil {
		return fmt.Errorf("zadd %s: %w", DelayedKey(msg.Queue()), err)
	}
	return nil
}

// PromoteDue moves delayed messages whose time has come onto the stream.
// ZREM decides ownership, so concurrent promoters never duplicate an entry.
func (p *Producer) PromoteDue(ctx context.Context, queue string, now time.Time, limit int64) (int, error) {
	key := DelayedKey(queue)
	due, err := p.redis.ZRangeByScore(ctx, key, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatInt(now.UnixMilli(), 10),
		Count: limit,
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("zrangebyscore %s: %w", key, err)
	}

	promoted := 0
	for _, payload := range due {
		removed, err := p.redis.ZRem(ctx, key, payload).Result()
		if err != nil {
			return promoted, fmt.Errorf("zrem %s: %w", key, err)
		}
		if removed == 0 {
			continue
		}

		msg, err := DecodeMessage(payload)
		if err != nil {
			if derr := p.deadLetterRaw(ctx, queue, "", payload, "invalid_format", err.Error()); derr != nil {
				p.logger.Error("dropped undecodable delayed retry", "queue", queue, "error", derr)
			}
			continue
		}
		if _, err := p.Enqueue(ctx, msg); err != nil {
			// Put it back so the retry is not lost.
			if zerr := p.redis.ZAdd(ctx, key, redis.Z{Score: float64(now.UnixMilli()), Member: payload}).Err(); zerr != nil {
				return promoted, fmt.Errorf("promote job %s: %w (put back: %w)", msg.JobID, err, zerr)
			}
			return promoted, err
		}
		promoted++
	}
	return promoted, nil
}

// DeadLetter copies msg to the queue's dead-letter stream.
func (p *Producer) DeadLetter(ctx context.Context, msg Message, reason, detail string) error {
	payload, err := msg.Encode()
	if err != nil {
		return err
	}
	return p.deadLetterRaw(ctx, msg.Queue(), msg.StreamID, payload, reason, detail)
}

func (p *Producer) deadLetterRaw(ctx context.Context, queue, originalID, payload, reason, detail string) error {
	p.logger.Warn("dead-lettering message",
		"queue", queue,
		"message_id", originalID,
		"reason", reason,
		"detail", detail,
	)

	_, err := p.redis.XAdd(ctx, &redis.XAddArgs{
		Stream: DeadLetterKey(queue),
		MaxLen: MaxDeadLetterLen,
		Approx: true,
		ID:     "*",
		Values: map[string]interface{}{
			"original_id":      originalID,
			"original_stream":  StreamKey(queue),
			"reason":           reason,
			"detail":           detail,
			payloadField:       payload,
			"dead_lettered_at": time.Now().UTC().Format(time.RFC3339),
		},
	}).Result()
	if err != nil {
		p.logger.Error("failed to write to dead-letter queue",
			"queue", queue,
			"message_id", originalID,
			"error", err,
		)
		return fmt.Errorf("xadd %s: %w", DeadLetterKey(queue), err)
	}
	return nil
}

// Depth reports entries not yet acknowledged by the group: pending plus lag.
// Before the group exists it falls back to the stream length.
func (p *Producer) Depth(ctx context.Context, queue string) (int64, error) {
	groups, err := p.redis.XInfoGroups(ctx, StreamKey(queue)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		if isNoSuchKeyError(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("xinfo groups %s: %w", queue, err)
	}
	for _, group := range groups {
		if group.Name == ConsumerGroup {
			return group.Pending + group.Lag, nil
		}
	}
	n, err := p.redis.XLen(ctx, StreamKey(queue)).Result()
	if err != nil {
		return 0, fmt.Errorf("xlen %s: %w", queue, err)
	}
	return n, nil
}

// isNoSuchKeyError matches the error XINFO returns for a missing stream.
func isNoSuchKeyError(err error) bool {
	return err != nil && err.Error() == "ERR no such key"
}
