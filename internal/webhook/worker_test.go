package webhook

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/auralforge/auralforge/internal/metrics"
	"github.com/auralforge/auralforge/internal/model"
)

type outcome struct {
	status    model.DeliveryStatus
	httpCode  *int
	nextRetry time.Time
}

type fakeStore struct {
	mu       sync.Mutex
	due      []*model.JobNotification
	created  []*model.JobNotification
	outcomes map[string]outcome
}

func newFakeStore(due ...*model.JobNotification) *fakeStore {
	return &fakeStore{due: due, outcomes: map[string]outcome{}}
}

func (s *fakeStore) Create(_ context.Context, n *model.JobNotification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.created {
		if c.JobID == n.JobID && c.EventType == n.EventType {
			return ErrNotificationExists
		}
	}
	s.created = append(s.created, n)
	return nil
}

func (s *fakeStore) ClaimDue(context.Context, time.Time, int) ([]*model.JobNotification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	due := s.due
	s.due = nil
	return due, nil
}

func (s *fakeStore) MarkDelivered(_ context.Context, id string, code int, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outcomes[id] = outcome{status: model.DeliveryStatusSuccess, httpCode: &code}
	return nil
}

func (s *fakeStore) MarkFailed(_ context.Context, id string, code *int, _ string, _, next time.Time, exhausted bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	status := model.DeliveryStatusFailed
	if exhausted {
		status = model.DeliveryStatusExhausted
	}
	s.outcomes[id] = outcome{status: status, httpCode: code, nextRetry: next}
	return nil
}

func (s *fakeStore) PendingCount(context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.due)), nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testNotification(id, url string, attempts int) *model.JobNotification {
	return &model.JobNotification{
		ID:           id,
		JobID:        "job-" + id,
		EventType:    model.EventJobCompleted,
		CallbackURL:  url,
		PayloadJSON:  `{"eventType":"job.completed"}`,
		Status:       model.DeliveryStatusPending,
		AttemptCount: attempts,
		MaxAttempts:  DefaultMaxAttempts,
		CreatedAt:    time.Now(),
	}
}

func newTestWorker(store deliveryStore, rec metrics.Recorder) *Worker {
	return NewWorker(store, "whsec_test", discardLogger(), rec, WorkerOptions{
		Validation: ValidationOptions{AllowInsecure: true},
	})
}

func TestWorker_DeliversSignedPayload(t *testing.T) {
	var (
		gotHeaders http.Header
		gotBody    []byte
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeaders = r.Header.Clone()
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	store := newFakeStore(testNotification("n1", srv.URL, 0))
	rec := metrics.NewInMemory()
	w := newTestWorker(store, rec)

	n, err := w.ProcessOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	assert.Equal(t, model.DeliveryStatusSuccess, store.outcomes["n1"].status)
	assert.Equal(t, "n1", gotHeaders.Get(HeaderDeliveryID))
	assert.Equal(t, "job.completed", gotHeaders.Get(HeaderEvent))
	assert.Equal(t, "application/json", gotHeaders.Get("Content-Type"))

	ts, err := strconv.ParseInt(gotHeaders.Get(HeaderTimestamp), 10, 64)
	require.NoError(t, err)
	assert.NoError(t, Verify("whsec_test", gotHeaders.Get(HeaderSignature), ts, gotBody, DefaultReplayWindow, time.Now()))
	assert.Equal(t, uint64(1), rec.Snapshot().NotificationDelivery["success"])
}

func TestWorker_Non2xxSchedulesRetry(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	store := newFakeStore(testNotification("n1", srv.URL, 0))
	w := newTestWorker(store, nil)

	before := time.Now()
	_, err := w.ProcessOnce(context.Background())
	require.NoError(t, err)

	got := store.outcomes["n1"]
	assert.Equal(t, model.DeliveryStatusFailed, got.status)
	require.NotNil(t, got.httpCode)
	assert.Equal(t, http.StatusBadGateway, *got.httpCode)
	assert.True(t, got.nextRetry.After(before.Add(40*time.Second)), "first retry should wait about a minute")
}

func TestWorker_LastAttemptExhausts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	store := newFakeStore(testNotification("n1", srv.URL, DefaultMaxAttempts-1))
	w := newTestWorker(store, nil)

	_, err := w.ProcessOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, model.DeliveryStatusExhausted, store.outcomes["n1"].status)
}

func TestWorker_GivesUpPastDeliveryWindow(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	// Attempts remain, but the delivery worker was down for a day.
	n := testNotification("n1", srv.URL, 1)
	n.CreatedAt = time.Now().Add(-MaxDeliveryWindow(DefaultMaxAttempts) - time.Hour)
	store := newFakeStore(n)
	w := newTestWorker(store, nil)

	_, err := w.ProcessOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, model.DeliveryStatusExhausted, store.outcomes["n1"].status)
}

func TestWorker_RejectedURLIsExhaustedWithoutRequest(t *testing.T) {
	store := newFakeStore(testNotification("n1", "https://10.0.0.5/hook", 0))
	w := NewWorker(store, "s", discardLogger(), nil, WorkerOptions{})

	_, err := w.ProcessOnce(context.Background())
	require.NoError(t, err)

	got := store.outcomes["n1"]
	assert.Equal(t, model.DeliveryStatusExhausted, got.status)
	assert.Nil(t, got.httpCode)
}

func TestWorker_DoesNotFollowRedirects(t *testing.T) {
	var hits int
	target := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits++
	}))
	defer target.Close()
	redirector := httptest.NewServer(http.RedirectHandler(target.URL, http.StatusFound))
	defer redirector.Close()

	store := newFakeStore(testNotification("n1", redirector.URL, 0))
	w := newTestWorker(store, nil)

	_, err := w.ProcessOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, hits)
	assert.Equal(t, model.DeliveryStatusFailed, store.outcomes["n1"].status)
}

func TestPublisher_NotifyJob(t *testing.T) {
	store := newFakeStore()
	p := NewPublisher(store, "https://api.auralforge.test/", discardLogger())

	url := "https://example.com/hook"
	result := "/v1/assets/job-1/audio"
	job := &model.Job{ID: "job-1", Type: model.JobTypeTTS, QueueName: "tts", Status: model.JobStatusCompleted, CallbackURL: &url, ResultURL: &result}

	require.NoError(t, p.NotifyJob(context.Background(), job))
	require.NoError(t, p.NotifyJob(context.Background(), job), "repeat is a no-op")
	require.Len(t, store.created, 1)

	n := store.created[0]
	assert.Equal(t, model.EventJobCompleted, n.EventType)
	assert.Equal(t, model.DeliveryStatusPending, n.Status)
	assert.Equal(t, DefaultMaxAttempts, n.MaxAttempts)

	var payload model.CallbackPayload
	require.NoError(t, json.Unmarshal([]byte(n.PayloadJSON), &payload))
	assert.Equal(t, n.ID, payload.EventID)
	assert.Equal(t, "job-1", payload.Job.ID)
	assert.Equal(t, model.JobStatusCompleted, payload.Job.Status)
	require.NotNil(t, payload.Job.ResultURL)
	assert.Equal(t, "https://api.auralforge.test/v1/assets/job-1/audio", *payload.Job.ResultURL)
	assert.Equal(t, "/v1/assets/job-1/audio", *job.ResultURL, "the job itself keeps the relative path")
}

func TestPublisher_SkipsWithoutCallbackOrBeforeTerminal(t *testing.T) {
	store := newFakeStore()
	p := NewPublisher(store, "", discardLogger())
	url := "https://example.com/hook"

	require.NoError(t, p.NotifyJob(context.Background(), &model.Job{ID: "a", Status: model.JobStatusFailed}))
	require.NoError(t, p.NotifyJob(context.Background(), &model.Job{ID: "b", Status: model.JobStatusProcessing, CallbackURL: &url}))
	assert.Empty(t, store.created)
}
