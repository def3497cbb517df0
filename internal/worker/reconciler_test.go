package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/auralforge/auralforge/internal/model"
	"github.com/auralforge/auralforge/internal/queue"
)

type unqueuedFake struct {
	jobs          []*model.Job
	stale         []*model.Job
	olderThan     time.Time
	staleBefore   time.Time
	streamIDs     map[string]string
	released      []string
	releaseErrFor map[string]error
}

func (f *unqueuedFake) ListUnqueuedJobs(_ context.Context, olderThan time.Time, _ int) ([]*model.Job, error) {
	f.olderThan = olderThan
	return f.jobs, nil
}

func (f *unqueuedFake) ListStaleProcessingJobs(_ context.Context, updatedBefore time.Time, _ int) ([]*model.Job, error) {
	f.staleBefore = updatedBefore
	return f.stale, nil
}

func (f *unqueuedFake) ReleaseStaleJob(_ context.Context, id, lastError string) (*model.Job, error) {
	if err := f.releaseErrFor[id]; err != nil {
		return nil, err
	}
	f.released = append(f.released, id)
	for _, job := range f.stale {
		if job.ID == id {
			out := *job
			out.Status = model.JobStatusQueued
			out.Error = &lastError
			return &out, nil
		}
	}
	return nil, errors.New("unknown job")
}

func (f *unqueuedFake) SetQueueJobID(_ context.Context, id, streamID string) error {
	if f.streamIDs == nil {
		f.streamIDs = map[string]string{}
	}
	f.streamIDs[id] = streamID
	return nil
}

type enqueuerFake struct {
	failFor string
	sent    []queue.Message
}

func (e *enqueuerFake) Enqueue(_ context.Context, msg queue.Message) (string, error) {
	if msg.JobID == e.failFor {
		return "", errors.New("redis down")
	}
	e.sent = append(e.sent, msg)
	return "1-" + msg.JobID, nil
}

func TestReconciler_RunOnce(t *testing.T) {
	store := &unqueuedFake{jobs: []*model.Job{
		{ID: "a", TeamID: "t", Type: model.JobTypeTTS},
		{ID: "b", TeamID: "t", Type: model.JobTypeSTT},
		{ID: "c", TeamID: "t", Type: model.JobTypeCloning},
	}}
	producer := &enqueuerFake{failFor: "b"}

	r := NewReconciler(store, producer, 2*time.Minute, 0, discardLogger())
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return now }

	n, err := r.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, now.Add(-2*time.Minute), store.olderThan)
	assert.Equal(t, map[string]string{"a": "1-a", "c": "1-c"}, store.streamIDs)

	require.Len(t, producer.sent, 2)
	assert.Equal(t, "cloning", producer.sent[1].Queue())
	assert.Equal(t, 1, producer.sent[0].Attempt)
}

func TestReconciler_RequeuesStaleProcessingJobs(t *testing.T) {
	store := &unqueuedFake{
		stale: []*model.Job{
			{ID: "s1", TeamID: "t", Type: model.JobTypeTTS, Status: model.JobStatusProcessing, Attempts: 2},
			{ID: "s2", TeamID: "t", Type: model.JobTypeSTT, Status: model.JobStatusProcessing, Attempts: 1},
		},
		// s2 finished between the scan and the update.
		releaseErrFor: map[string]error{"s2": model.ErrInvalidTransition},
	}
	producer := &enqueuerFake{}

	r := NewReconciler(store, producer, 2*time.Minute, 10*time.Minute, discardLogger())
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return now }

	n, err := r.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, now.Add(-10*time.Minute), store.staleBefore)
	assert.Equal(t, []string{"s1"}, store.released)

	require.Len(t, producer.sent, 1)
	assert.Equal(t, "s1", producer.sent[0].JobID)
	assert.Equal(t, 3, producer.sent[0].Attempt, "next attempt follows the recorded ones")
	assert.Equal(t, map[string]string{"s1": "1-s1"}, store.streamIDs)
}

func TestReconciler_StaleSweepDisabledByZero(t *testing.T) {
	store := &unqueuedFake{stale: []*model.Job{{ID: "s1", Type: model.JobTypeTTS, Status: model.JobStatusProcessing}}}
	r := NewReconciler(store, &enqueuerFake{}, time.Minute, 0, discardLogger())

	n, err := r.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, store.released)
}

func TestReconciler_StartRejectsBadSchedule(t *testing.T) {
	r := NewReconciler(&unqueuedFake{}, &enqueuerFake{}, time.Minute, 10*time.Minute, discardLogger())
	assert.Error(t, r.Start("not a schedule"))
	assert.NoError(t, r.Shutdown(context.Background()))
}

func TestReconciler_StartAndShutdown(t *testing.T) {
	r := NewReconciler(&unqueuedFake{}, &enqueuerFake{}, time.Minute, 10*time.Minute, discardLogger())
	require.NoError(t, r.Start("@every 1h"))
	assert.Error(t, r.Start("@every 1h"), "second start must fail")
	assert.NoError(t, r.Shutdown(context.Background()))
}
