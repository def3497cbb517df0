package model

import "time"

// EventType names a job callback event.
type EventType string

const (
	EventJobCompleted EventType = "job.completed"
	EventJobFailed    EventType = "job.failed"
)

// EventTypeForStatus maps a terminal job status to its callback event.
func EventTypeForStatus(status JobStatus) EventType {
	if status == JobStatusCompleted {
		return EventJobCompleted
	}
	return EventJobFailed
}

// DeliveryStatus represents callback delivery state.
type DeliveryStatus string

const (
	DeliveryStatusPending   DeliveryStatus = "pending"
	DeliveryStatusSuccess   DeliveryStatus = "success"
	DeliveryStatusFailed    DeliveryStatus = "failed"
	DeliveryStatusExhausted DeliveryStatus = "exhausted"
)

// JobNotification is one callback delivery for a finished job.
type JobNotification struct {
	ID             string
	JobID          string
	EventType      EventType
	CallbackURL    string
	PayloadJSON    string
	Status         DeliveryStatus
	AttemptCount   int
	MaxAttempts    int
	NextRetryAt    time.Time
	LastAttemptAt  *time.Time
	LastHTTPStatus *int
	LastError      *string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// CanRetry returns true if delivery can be retried.
func (n *JobNotification) CanRetry() bool {
	return n.Status == DeliveryStatusFailed && n.AttemptCount < n.MaxAttempts
}

// IsTerminal returns true if delivery is in a terminal state.
func (n *JobNotification) IsTerminal() bool {
	return n.Status == DeliveryStatusSuccess || n.Status == DeliveryStatusExhausted
}

// CallbackPayload is the JSON body POSTed to a job callback URL.
type CallbackPayload struct {
	EventType EventType   `json:"eventType"`
	EventID   string      `json:"eventId"`
	Timestamp time.Time   `json:"timestamp"`
	Job       JobResponse `json:"job"`
}

// NotificationResponse is a delivery as shown to API clients. The payload
// is omitted because it repeats the job.
type NotificationResponse struct {
	ID             string         `json:"id"`
	EventType      EventType      `json:"eventType"`
	CallbackURL    string         `json:"callbackUrl"`
	Status         DeliveryStatus `json:"status"`
	AttemptCount   int            `json:"attemptCount"`
	MaxAttempts    int            `json:"maxAttempts"`
	NextRetryAt    *time.Time     `json:"nextRetryAt,omitempty"`
	LastAttemptAt  *time.Time     `json:"lastAttemptAt,omitempty"`
	LastHTTPStatus *int           `json:"lastHttpStatus,omitempty"`
	LastError      *string        `json:"lastError,omitempty"`
	CreatedAt      time.Time      `json:"createdAt"`
}

// ToResponse converts a notification for the API.
func (n *JobNotification) ToResponse() NotificationResponse {
	resp := NotificationResponse{
		ID:             n.ID,
		EventType:      n.EventType,
		CallbackURL:    n.CallbackURL,
		Status:         n.Status,
		AttemptCount:   n.AttemptCount,
		MaxAttempts:    n.MaxAttempts,
		LastAttemptAt:  n.LastAttemptAt,
		LastHTTPStatus: n.LastHTTPStatus,
		LastError:      n.LastError,
		CreatedAt:      n.CreatedAt,
	}
	if !n.IsTerminal() {
		next := n.NextRetryAt
		resp.NextRetryAt = &next
	}
	return resp
}
