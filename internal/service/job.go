package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/auralforge/auralforge/internal/metrics"
	"github.com/auralforge/auralforge/internal/model"
	"github.com/auralforge/auralforge/internal/queue"
	"github.com/auralforge/auralforge/internal/repository"
	"github.com/auralforge/auralforge/internal/storage"
	"github.com/auralforge/auralforge/internal/webhook"
)

// Job listing page sizes.
const (
	DefaultJobPageSize = 20
	MaxJobPageSize     = 100
)

// EnqueueFailedReason is the error stored on jobs that never reached a queue.
const EnqueueFailedReason = "enqueue_failed"

// JobStore is the persistence JobService needs.
type JobStore interface {
	CreateJob(ctx context.Context, job *model.Job) (*model.Job, bool, error)
	GetJobForTeam(ctx context.Context, teamID, id string) (*model.Job, error)
	ListJobs(ctx context.Context, filter repository.JobFilter) ([]*model.Job, error)
	SetQueueJobID(ctx context.Context, id, queueJobID string) error
	FailJob(ctx context.Context, id, reason string) (*model.Job, error)
	GetProject(ctx context.Context, teamID, id string) (*model.Project, error)
	ListProjects(ctx context.Context, teamID string) ([]*model.Project, error)
	ListVoiceClones(ctx context.Context, teamID string) ([]*model.VoiceClone, error)
}

// Enqueuer pushes job messages onto their queue.
type Enqueuer interface {
	Enqueue(ctx context.Context, msg queue.Message) (string, error)
}

// AssetStore reads stored job artifacts.
type AssetStore interface {
	Get(ctx context.Context, key string) (*storage.Object, error)
}

// JobServiceOptions tunes JobService.
type JobServiceOptions struct {
	// Callback URL checks. AllowInsecure is for local development.
	Validation webhook.ValidationOptions
}

// JobService submits, tracks and serves audio jobs.
type JobService struct {
	store    JobStore
	queue    Enqueuer
	assets   AssetStore
	recorder metrics.Recorder
	logger   *slog.Logger
	opts     JobServiceOptions
	now      func() time.Time
}

// NewJobService creates a JobService.
func NewJobService(store JobStore, q Enqueuer, assets AssetStore, recorder metrics.Recorder, logger *slog.Logger, opts JobServiceOptions) *JobService {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	return &JobService{
		store:    store,
		queue:    q,
		assets:   assets,
		recorder: recorder,
		logger:   logger.With("component", "service.job"),
		opts:     opts,
		now:      time.Now,
	}
}

// SubmitOptions are fields shared by every submission.
type SubmitOptions struct {
	ProjectID      string
	CallbackURL    string
	IdempotencyKey string
}

// TTSInput is a speech synthesis request.
type TTSInput struct {
	SubmitOptions
	Text     string
	VoiceID  string
	Language string
	Format   string
	Speed    *float64
	Pitch    *float64
}

// STTInput is a transcription request.
type STTInput struct {
	SubmitOptions
	Language    string
	SourceJobID string
	AudioURL    string
}

// CloneInput is a voice cloning request.
type CloneInput struct {
	SubmitOptions
	Name        string
	SampleJobID string
	SampleURL   string
}

// Submission is the outcome of a submit call. Created is false when an
// Idempotency-Key matched an earlier job.
type Submission struct {
	Job     *model.Job
	Created bool
}

// SubmitTTS queues a text-to-speech job.
func (s *JobService) SubmitTTS(ctx context.Context, ac *model.AuthContext, in TTSInput) (*Submission, error) {
	if strings.TrimSpace(in.Text) == "" {
		return nil, invalid("text", "is required")
	}
	if strings.TrimSpace(in.VoiceID) == "" {
		return nil, invalid("voiceId", "is required")
	}
	requested := strings.ToLower(in.Format)
	switch requested {
	case "":
		requested = model.FormatWAV
	case model.FormatWAV, model.FormatMP3:
	default:
		return nil, invalid("format", "must be wav or mp3")
	}

	params, err := json.Marshal(model.TTSParams{
		Speed:           in.Speed,
		Pitch:           in.Pitch,
		RequestedFormat: requested,
	})
	if err != nil {
		return nil, err
	}

	// Only WAV is produced, so that is what the job advertises.
	format := model.FormatWAV
	text := in.Text
	voice := in.VoiceID
	job := &model.Job{
		Type:      model.JobTypeTTS,
		VoiceID:   &voice,
		Language:  optional(in.Language),
		Format:    &format,
		InputText: &text,
		Params:    params,
	}
	return s.submit(ctx, ac, job, in.SubmitOptions)
}

// SubmitSTT queues a speech-to-text job.
func (s *JobService) SubmitSTT(ctx context.Context, ac *model.AuthContext, in STTInput) (*Submission, error) {
	if in.SourceJobID != "" {
		if _, err := s.store.GetJobForTeam(ctx, ac.TeamID, in.SourceJobID); err != nil {
			if errors.Is(err, repository.ErrJobNotFound) {
				return nil, invalid("sourceJobId", "unknown job")
			}
			return nil, err
		}
	}

	params, err := json.Marshal(model.STTParams{SourceJobID: in.SourceJobID, AudioURL: in.AudioURL})
	if err != nil {
		return nil, err
	}
	job := &model.Job{
		Type:     model.JobTypeSTT,
		Language: optional(in.Language),
		Params:   params,
	}
	return s.submit(ctx, ac, job, in.SubmitOptions)
}

// SubmitClone queues a voice cloning job.
func (s *JobService) SubmitClone(ctx context.Context, ac *model.AuthContext, in CloneInput) (*Submission, error) {
	params, err := json.Marshal(model.CloningParams{
		Name:        strings.TrimSpace(in.Name),
		SampleJobID: in.SampleJobID,
		SampleURL:   in.SampleURL,
	})
	if err != nil {
		return nil, err
	}
	job := &model.Job{Type: model.JobTypeCloning, Params: params}
	return s.submit(ctx, ac, job, in.SubmitOptions)
}

// submit persists the job, then enqueues it. A job whose enqueue fails is
// marked failed so it never sits queued with nothing behind it.
func (s *JobService) submit(ctx context.Context, ac *model.AuthContext, job *model.Job, opts SubmitOptions) (*Submission, error) {
	if ac.TeamID == "" {
		return nil, ErrNoTeam
	}

	if opts.CallbackURL != "" {
		if err := webhook.ValidateCallbackURL(opts.CallbackURL, s.opts.Validation); err != nil {
			return nil, invalid("callbackUrl", err.Error())
		}
		cb := opts.CallbackURL
		job.CallbackURL = &cb
	}

	projectID, err := s.resolveProject(ctx, ac, opts.ProjectID)
	if err != nil {
		return nil, err
	}

	job.ID = ulid.Make().String()
	job.TeamID = ac.TeamID
	job.ProjectID = projectID
	job.Status = model.JobStatusQueued
	job.QueueName = job.Type.QueueName()
	job.RequestedBy = requester(ac)
	job.IdempotencyKey = optional(opts.IdempotencyKey)
	job.CreatedAt = s.now().UTC()

	stored, created, err := s.store.CreateJob(ctx, job)
	if err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}
	if !created {
		s.logger.Info("idempotent replay", "job_id", stored.ID, "team_id", ac.TeamID)
		return &Submission{Job: stored}, nil
	}

	log := s.logger.With("job_id", stored.ID, "type", stored.Type, "team_id", stored.TeamID)

	streamID, err := s.queue.Enqueue(ctx, queue.NewMessage(stored))
	if err != nil {
		s.recorder.IncJobEnqueueFailed(string(stored.Type))
		log.Error("enqueue failed", "error", err)
		if _, failErr := s.store.FailJob(context.WithoutCancel(ctx), stored.ID, EnqueueFailedReason); failErr != nil {
			log.Error("failed to mark job as enqueue_failed", "error", failErr)
		}
		return nil, fmt.Errorf("%w: %v", ErrQueueUnavailable, err)
	}

	if err := s.store.SetQueueJobID(ctx, stored.ID, streamID); err != nil {
		// The reconciler only picks up rows without a stream ID, so a
		// missing one here can cause a duplicate enqueue. Workers skip
		// jobs that are no longer queued.
		log.Error("failed to record queue job id", "stream_id", streamID, "error", err)
	} else {
		stored.QueueJobID = &streamID
	}

	s.recorder.IncJobSubmitted(string(stored.Type))
	log.Info("job submitted", "stream_id", streamID)
	return &Submission{Job: stored, Created: true}, nil
}

// resolveProject picks the project a job is filed under: the explicit
// one, the calling key's project, or the team's oldest project.
func (s *JobService) resolveProject(ctx context.Context, ac *model.AuthContext, requested string) (*string, error) {
	if requested != "" {
		if ac.ProjectID != "" && ac.ProjectID != requested {
			return nil, fmt.Errorf("%w: key is bound to another project", ErrForbidden)
		}
		if _, err := s.store.GetProject(ctx, ac.TeamID, requested); err != nil {
			if errors.Is(err, repository.ErrProjectNotFound) {
				return nil, invalid("projectId", "unknown project")
			}
			return nil, err
		}
		return &requested, nil
	}

	if ac.ProjectID != "" {
		id := ac.ProjectID
		return &id, nil
	}

	projects, err := s.store.ListProjects(ctx, ac.TeamID)
	if err != nil {
		return nil, err
	}
	if len(projects) == 0 {
		return nil, nil
	}
	// Listed newest first.
	id := projects[len(projects)-1].ID
	return &id, nil
}

// Get returns a job of the caller's team. Jobs of other teams are reported
// as missing.
func (s *JobService) Get(ctx context.Context, teamID, id string) (*model.Job, error) {
	if teamID == "" {
		return nil, ErrNoTeam
	}
	job, err := s.store.GetJobForTeam(ctx, teamID, id)
	if err != nil {
		if errors.Is(err, repository.ErrJobNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return job, nil
}

// ListJobsInput filters and pages the job list.
type ListJobsInput struct {
	ProjectID string
	Type      string
	Status    string
	Cursor    string
	Limit     int
}

// JobPage is one page of jobs.
type JobPage struct {
	Jobs       []model.JobResponse `json:"data"`
	NextCursor string              `json:"nextCursor,omitempty"`
	HasMore    bool                `json:"hasMore"`
}

// List returns the team's jobs, newest first.
func (s *JobService) List(ctx context.Context, teamID string, in ListJobsInput) (*JobPage, error) {
	if teamID == "" {
		return nil, ErrNoTeam
	}

	filter := repository.JobFilter{TeamID: teamID, ProjectID: in.ProjectID}
	if in.Type != "" {
		filter.Type = model.JobType(in.Type)
		if !filter.Type.IsValid() {
			return nil, invalid("type", "must be tts, stt or cloning")
		}
	}
	if in.Status != "" {
		filter.Status = model.JobStatus(in.Status)
		if !filter.Status.IsValid() {
			return nil, invalid("status", "must be queued, processing, completed or failed")
		}
	}
	if in.Cursor != "" {
		c, err := repository.DecodeJobCursor(in.Cursor)
		if err != nil {
			return nil, invalid("cursor", "is malformed")
		}
		filter.After = c
	}

	limit := in.Limit
	switch {
	case limit <= 0:
		limit = DefaultJobPageSize
	case limit > MaxJobPageSize:
		limit = MaxJobPageSize
	}
	filter.Limit = limit + 1

	jobs, err := s.store.ListJobs(ctx, filter)
	if err != nil {
		return nil, err
	}

	page := &JobPage{Jobs: make([]model.JobResponse, 0, min(len(jobs), limit))}
	if len(jobs) > limit {
		jobs = jobs[:limit]
		last := jobs[limit-1]
		page.HasMore = true
		page.NextCursor = repository.EncodeJobCursor(&repository.JobCursor{CreatedAt: last.CreatedAt, ID: last.ID})
	}
	for _, j := range jobs {
		page.Jobs = append(page.Jobs, j.ToResponse())
	}
	return page, nil
}

// Asset is a job's stored audio ready to stream.
type Asset struct {
	Body          io.ReadCloser
	ContentType   string
	ContentLength int64
}

// Asset opens the audio produced by a job. The caller closes Body.
func (s *JobService) Asset(ctx context.Context, teamID, jobID string) (*Asset, error) {
	job, err := s.Get(ctx, teamID, jobID)
	if err != nil {
		return nil, err
	}
	if job.S3Path == nil || *job.S3Path == "" {
		return nil, ErrNotFound
	}

	obj, err := s.assets.Get(ctx, *job.S3Path)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			s.logger.Warn("job asset missing from storage", "job_id", job.ID, "key", *job.S3Path)
			return nil, ErrNotFound
		}
		return nil, err
	}

	format := ""
	if job.Format != nil {
		format = *job.Format
	}
	return &Asset{
		Body:          obj.Body,
		ContentType:   model.AudioContentType(format),
		ContentLength: obj.ContentLength,
	}, nil
}

// ListVoices returns the team's voice clones.
func (s *JobService) ListVoices(ctx context.Context, teamID string) ([]*model.VoiceClone, error) {
	if teamID == "" {
		return nil, ErrNoTeam
	}
	return s.store.ListVoiceClones(ctx, teamID)
}

func requester(ac *model.AuthContext) string {
	if ac.UserID != "" {
		return ac.UserID
	}
	return ac.PrincipalID()
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
