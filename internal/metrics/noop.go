package metrics

import "time"

// NoopRecorder implements Recorder with no-op methods.
type NoopRecorder struct{}

// NewNoop returns a Recorder that discards all metrics.
func NewNoop() Recorder {
	return &NoopRecorder{}
}

func (n *NoopRecorder) ObserveHTTPRequest(string, string, int, time.Duration) {}
func (n *NoopRecorder) IncJobSubmitted(string) {}
func (n *NoopRecorder) IncJobEnqueueFailed(string) {}
func (n *NoopRecorder) IncJobProcessed(string, string) {}
func (n *NoopRecorder) ObserveJobDuration(string, time.Duration) {}
func (n *NoopRecorder) SetQueueDepth(string, int64) {}
func (n *NoopRecorder) IncNotificationDelivery(string) {}
