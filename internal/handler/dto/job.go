package dto

import (
	"github.com/auralforge/auralforge/internal/model"
	"github.com/auralforge/auralforge/internal/service"
)

// SynthesizeRequest is the body of POST /v1/tts/synthesize.
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

// TranscribeRequest is the body of POST /v1/stt/transcribe.
type TranscribeRequest struct {
	Language    string `json:"language,omitempty"`
	SourceJobID string `json:"sourceJobId,omitempty"`
	AudioURL    string `json:"audioUrl,omitempty"`
	ProjectID   string `json:"projectId,omitempty"`
	CallbackURL string `json:"callbackUrl,omitempty"`
}

// CloneRequest is the body of POST /v1/voices/clone.
type CloneRequest struct {
	Name        string `json:"name,omitempty"`
	SampleJobID string `json:"sampleJobId,omitempty"`
	SampleURL   string `json:"sampleUrl,omitempty"`
	ProjectID   string `json:"projectId,omitempty"`
	CallbackURL string `json:"callbackUrl,omitempty"`
}

// SubmitResponse acknowledges a queued job. jobId repeats id for clients
// written against older responses.
type SubmitResponse struct {
	ID               string          `json:"id"`
	JobID            string          `json:"jobId"`
	EstimatedSeconds int             `json:"estimatedSeconds,omitempty"`
	Status           model.JobStatus `json:"status,omitempty"`
}

// ToSubmitResponse builds the acknowledgement for a submitted job. Cloning
// jobs report their status, the rest an estimate.
func ToSubmitResponse(job *model.Job) SubmitResponse {
	resp := SubmitResponse{ID: job.ID, JobID: job.ID}
	if job.Type == model.JobTypeCloning {
		resp.Status = job.Status
	} else {
		resp.EstimatedSeconds = job.Type.EstimatedSeconds()
	}
	return resp
}

// JobListResponse is a page of jobs.
type JobListResponse struct {
	Data       []model.JobResponse `json:"data"`
	NextCursor string              `json:"nextCursor,omitempty"`
	HasMore    bool                `json:"hasMore"`
}

// ToJobListResponse converts a service page.
func ToJobListResponse(page *service.JobPage) JobListResponse {
	data := page.Jobs
	if data == nil {
		data = []model.JobResponse{}
	}
	return JobListResponse{Data: data, NextCursor: page.NextCursor, HasMore: page.HasMore}
}
