package sdk

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// Job statuses.
const (
	StatusQueued     = "queued"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// Submission acknowledges a queued job.
type Submission struct {
	ID               string `json:"id"`
	JobID            string `json:"jobId"`
	EstimatedSeconds int    `json:"estimatedSeconds,omitempty"`
	Status           string `json:"status,omitempty"`
}

// Job is the polling view of a job.
type Job struct {
	ID          string          `json:"id"`
	Type        string          `json:"type"`
	Queue       string          `json:"queue"`
	Status      string          `json:"status"`
	ResultURL   *string         `json:"resultUrl"`
	Format      *string         `json:"format"`
	Result      json.RawMessage `json:"result,omitempty"`
	Error       *string         `json:"error"`
	Attempts    int             `json:"attempts"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
	CompletedAt *time.Time      `json:"completedAt,omitempty"`
}

// Done reports whether the job reached a terminal status.
func (j *Job) Done() bool {
	return j.Status == StatusCompleted || j.Status == StatusFailed
}

// SynthesizeRequest asks for speech audio.
type SynthesizeRequest struct {
	Text        string   `json:"text"`
	VoiceID     string   `json:"voiceId"`
	Language    string   `json:"language,omitempty"`
	Format      string   `json:"format,omitempty"`
	ProjectID   string   `json:"projectId,omitempty"`
	Speed       *float64 `json:"speed,omitempty"`
	Pitch       *float64 `json:"pitch,omitempty"`
	CallbackURL string   `json:"callbackUrl,omitempty"`
}

// TranscribeRequest asks for a transcript.
type TranscribeRequest struct {
	Language    string `json:"language,omitempty"`
	SourceJobID string `json:"sourceJobId,omitempty"`
	AudioURL    string `json:"audioUrl,omitempty"`
	ProjectID   string `json:"projectId,omitempty"`
	CallbackURL string `json:"callbackUrl,omitempty"`
}

// CloneRequest asks for a custom voice.
type CloneRequest struct {
	Name        string `json:"name,omitempty"`
	SampleJobID string `json:"sampleJobId,omitempty"`
	SampleURL   string `json:"sampleUrl,omitempty"`
	ProjectID   string `json:"projectId,omitempty"`
	CallbackURL string `json:"callbackUrl,omitempty"`
}

// Voice is a team voice clone.
type Voice struct {
	ID        string    `json:"id"`
	JobID     string    `json:"jobId"`
	Name      string    `json:"name"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
}

// TTSService submits speech synthesis jobs.
type TTSService struct{ c *Client }

// Synthesize queues a TTS job.
func (s *TTSService) Synthesize(ctx context.Context, req SynthesizeRequest, opts ...RequestOption) (*Submission, error) {
	var out Submission
	if err := s.c.do(ctx, http.MethodPost, "/v1/tts/synthesize", req, &out, opts...); err != nil {
		return nil, err
	}
	return &out, nil
}

// STTService submits transcription jobs.
type STTService struct{ c *Client }

// Transcribe queues an STT job.
func (s *STTService) Transcribe(ctx context.Context, req TranscribeRequest, opts ...RequestOption) (*Submission, error) {
	var out Submission
	if err := s.c.do(ctx, http.MethodPost, "/v1/stt/transcribe", req, &out, opts...); err != nil {
		return nil, err
	}
	return &out, nil
}

// VoicesService manages voice clones.
type VoicesService struct{ c *Client }

// Clone queues a cloning job.
func (s *VoicesService) Clone(ctx context.Context, req CloneRequest, opts ...RequestOption) (*Submission, error) {
	var out Submission
	if err := s.c.do(ctx, http.MethodPost, "/v1/voices/clone", req, &out, opts...); err != nil {
		return nil, err
	}
	return &out, nil
}

// List returns the team's voice clones.
func (s *VoicesService) List(ctx context.Context) ([]Voice, error) {
	var out []Voice
	if err := s.c.do(ctx, http.MethodGet, "/v1/voices", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// JobsService polls jobs.
type JobsService struct{ c *Client }

// Get fetches one job.
func (s *JobsService) Get(ctx context.Context, id string) (*Job, error) {
	var out Job
	if err := s.c.do(ctx, http.MethodGet, "/v1/jobs/"+url.PathEscape(id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// WaitOptions tunes JobsService.Wait. Zero values take defaults.
type WaitOptions struct {
	// Interval between polls. Default 1s.
	Interval time.Duration
	// Timeout bounds the whole wait. Default 2m; ctx may cut it shorter.
	Timeout time.Duration
}

// Wait polls a job until it completes or fails. A failed job is returned
// together with an error wrapping ErrJobFailed.
func (s *JobsService) Wait(ctx context.Context, id string, opts WaitOptions) (*Job, error) {
	if opts.Interval <= 0 {
		opts.Interval = time.Second
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 2 * time.Minute
	}
	ctx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	ticker := time.NewTicker(opts.Interval)
	defer ticker.Stop()

	for {
		job, err := s.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if job.Done() {
			if job.Status == StatusFailed {
				reason := "unknown"
				if job.Error != nil {
					reason = *job.Error
				}
				return job, fmt.Errorf("%w: %s", ErrJobFailed, reason)
			}
			return job, nil
		}

		select {
		case <-ctx.Done():
			return job, fmt.Errorf("wait for job %s: %w", id, ctx.Err())
		case <-ticker.C:
		}
	}
}
