package metrics

import (
	"maps"
	"sync"
	"time"
)

// Snapshot captures current in-memory counters. Map keys are
// "<jobType>" or "<jobType>:<outcome>" as noted per field.
type Snapshot struct {
	HTTPRequests         uint64
	JobsSubmitted        map[string]uint64 // by job type
	EnqueueFailures      map[string]uint64 // by job type
	JobsProcessed        map[string]uint64 // by "type:outcome"
	JobDurationCount     uint64
	QueueDepth           map[string]int64  // by queue
	NotificationDelivery map[string]uint64 // by status
}

// InMemoryRecorder stores metrics in memory for tests.
type InMemoryRecorder struct {
	mu   sync.Mutex
	snap Snapshot
}

// NewInMemory returns a Recorder that stores counters in memory.
func NewInMemory() *InMemoryRecorder {
	return &InMemoryRecorder{snap: Snapshot{
		JobsSubmitted:        map[string]uint64{},
		EnqueueFailures:      map[string]uint64{},
		JobsProcessed:        map[string]uint64{},
		QueueDepth:           map[string]int64{},
		NotificationDelivery: map[string]uint64{},
	}}
}

// Snapshot returns a copy of the counters.
func (m *InMemoryRecorder) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := m.snap
	out.JobsSubmitted = maps.Clone(m.snap.JobsSubmitted)
	out.EnqueueFailures = maps.Clone(m.snap.EnqueueFailures)
	out.JobsProcessed = maps.Clone(m.snap.JobsProcessed)
	out.QueueDepth = maps.Clone(m.snap.QueueDepth)
	out.NotificationDelivery = maps.Clone(m.snap.NotificationDelivery)
	return out
}

func (m *InMemoryRecorder) ObserveHTTPRequest(string, string, int, time.Duration) {
	m.mu.Lock()
	m.snap.HTTPRequests++
	m.mu.Unlock()
}

func (m *InMemoryRecorder) IncJobSubmitted(jobType string) {
	m.mu.Lock()
	m.snap.JobsSubmitted[jobType]++
	m.mu.Unlock()
}

func (m *InMemoryRecorder) IncJobEnqueueFailed(jobType string) {
	m.mu.Lock()
	m.snap.EnqueueFailures[jobType]++
	m.mu.Unlock()
}

func (m *InMemoryRecorder) IncJobProcessed(jobType, outcome string) {
	m.mu.Lock()
	m.snap.JobsProcessed[jobType+":"+outcome]++
	m.mu.Unlock()
}

func (m *InMemoryRecorder) ObserveJobDuration(string, time.Duration) {
	m.mu.Lock()
	m.snap.JobDurationCount++
	m.mu.Unlock()
}

func (m *InMemoryRecorder) SetQueueDepth(queue string, depth int64) {
	m.mu.Lock()
	m.snap.QueueDepth[queue] = depth
	m.mu.Unlock()
}

func (m *InMemoryRecorder) IncNotificationDelivery(status string) {
	m.mu.Lock()
	m.snap.NotificationDelivery[status]++
	m.mu.Unlock()
}
