// Package queue moves jobs between the API and workers over Redis Streams.
package queue

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/auralforge/auralforge/internal/model"
)

const (
	// ConsumerGroup is the consumer group every worker joins.
	ConsumerGroup = "workers"

	// MaxStreamLen is the approximate max length of a queue stream.
	MaxStreamLen = 100000

	// MaxDeadLetterLen is the approximate max length of a dead-letter stream.
	MaxDeadLetterLen = 10000

	payloadField = "payload"
)

// StreamKey is the Redis stream backing a queue.
func StreamKey(queue string) string {
	return "queue:" + queue
}

// DeadLetterKey is the stream holding messages that will not be retried.
func DeadLetterKey(queue string) string {
	return "queue:" + queue + ":dlq"
}

// DelayedKey is the sorted set of retries waiting for their backoff.
func DelayedKey(queue string) string {
	return "queue:" + queue + ":delayed"
}

// Message is the payload carried by a queue entry.
type Message struct {
	JobID      string        `json:"jobId"`
	TeamID     string        `json:"teamId"`
	Type       model.JobType `json:"type"`
	Attempt    int           `json:"attempt"`
	EnqueuedAt time.Time     `json:"enqueuedAt"`
	// Trace carries the submitting request's trace context.
	Trace map[string]string `json:"trace,omitempty"`

	// Set by the consumer, not serialized.
	StreamID  string `json:"-"`
	Reclaimed bool   `json:"-"`
}

// NewMessage builds the first-attempt message for a job.
func NewMessage(job *model.Job) Message {
	return Message{
		JobID:      job.ID,
		TeamID:     job.TeamID,
		Type:       job.Type,
		Attempt:    1,
		EnqueuedAt: time.Now().UTC(),
	}
}

// Queue is the queue name the message belongs on.
func (m Message) Queue() string {
	return m.Type.QueueName()
}

// Encode serializes the message for a stream entry.
func (m Message) Encode() (string, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("marshal message: %w", err)
	}
	return string(data), nil
}

// DecodeMessage parses and validates a stream payload.
func DecodeMessage(payload string) (Message, error) {
	var m Message
	if err := json.Unmarshal([]byte(payload), &m); err != nil {
		return Message{}, fmt.Errorf("unmarshal message: %w", err)
	}
	if err := m.Validate(); err != nil {
		return Message{}, err
	}
	return m, nil
}

// Validate checks the fields a worker needs.
func (m Message) Validate() error {
	var errs []error
	if m.JobID == "" {
		errs = append(errs, errors.New("jobId is required"))
	}
	if !m.Type.IsValid() {
		errs = append(errs, fmt.Errorf("unknown job type %q", m.Type))
	}
	if m.Attempt < 1 {
		errs = append(errs, fmt.Errorf("attempt must be >= 1, got %d", m.Attempt))
	}
	return errors.Join(errs...)
}
