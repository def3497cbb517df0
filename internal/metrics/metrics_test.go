package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestInMemoryRecorder_Snapshot(t *testing.T) {
	t.Parallel()

	m := NewInMemory()
	m.IncJobSubmitted("tts")
	m.IncJobSubmitted("tts")
	m.IncJobProcessed("tts", "completed")
	m.SetQueueDepth("tts", 7)
	m.IncNotificationDelivery("success")

	snap := m.Snapshot()
	assert.Equal(t, uint64(2), snap.JobsSubmitted["tts"])
	assert.Equal(t, uint64(1), snap.JobsProcessed["tts:completed"])
	assert.Equal(t, int64(7), snap.QueueDepth["tts"])
	assert.Equal(t, uint64(1), snap.NotificationDelivery["success"])

	// Snapshots are copies.
	snap.JobsSubmitted["tts"] = 100
	assert.Equal(t, uint64(2), m.Snapshot().JobsSubmitted["tts"])
}

func TestPrometheusRecorder_Collectors(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	p := NewPrometheus(reg)

	p.IncJobSubmitted("stt")
	p.IncJobProcessed("stt", "failed")
	p.SetQueueDepth("stt", 3)
	p.ObserveHTTPRequest("GET", "/v1/jobs/{id}", 200, 10*time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(p.jobsSubmitted.WithLabelValues("stt")))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.jobsProcessed.WithLabelValues("stt", "failed")))
	assert.Equal(t, 3.0, testutil.ToFloat64(p.queueDepth.WithLabelValues("stt")))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.httpRequests.WithLabelValues("GET", "/v1/jobs/{id}", "200")))
}

func TestRecorderImplementations(t *testing.T) {
	t.Parallel()

	var _ Recorder = NewNoop()
	var _ Recorder = NewInMemory()
	var _ Recorder = NewPrometheus(prometheus.NewRegistry())
	var _ Snapshotter = NewInMemory()
}
