// Package metrics provides lightweight hooks for instrumentation.
package metrics

import "time"

// Recorder captures metric events for the application.
// The API records submissions; workers record processing and queue depth.
type Recorder interface {
	// HTTP metrics
	ObserveHTTPRequest(method, route string, status int, duration time.Duration)

	// Job submission metrics
	IncJobSubmitted(jobType string)
	IncJobEnqueueFailed(jobType string)

	// Job processing metrics
	IncJobProcessed(jobType, outcome string) // outcome: "completed", "failed", "retried", "dead_lettered"
	ObserveJobDuration(jobType string, duration time.Duration)
	SetQueueDepth(queue string, depth int64)

	// Callback delivery metrics
	IncNotificationDelivery(status string) // status: "success", "failed", "exhausted"
}

// Snapshotter exposes a snapshot of current metrics.
type Snapshotter interface {
	Snapshot() Snapshot
}
