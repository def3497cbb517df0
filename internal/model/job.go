package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// JobType selects the processing pipeline and the queue a job runs on.
type JobType string

const (
	JobTypeTTS     JobType = "tts"
	JobTypeSTT     JobType = "stt"
	JobTypeCloning JobType = "cloning"
)

// JobTypes lists every job type in queue order.
var JobTypes = []JobType{JobTypeTTS, JobTypeSTT, JobTypeCloning}

// IsValid reports whether t is a known job type.
func (t JobType) IsValid() bool {
	switch t {
	case JobTypeTTS, JobTypeSTT, JobTypeCloning:
		return true
	}
	return false
}

// QueueName is the name of the queue serving this job type.
func (t JobType) QueueName() string {
	return string(t)
}

// EstimatedSeconds is the completion estimate reported at submission.
func (t JobType) EstimatedSeconds() int {
	switch t {
	case JobTypeTTS:
		return 3
	case JobTypeSTT:
		return 10
	default:
		return 0
	}
}

// JobStatus is the lifecycle state of a job.
type JobStatus string

const (
	JobStatusQueued     JobStatus = "queued"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// ErrInvalidTransition is returned when a status change is not allowed
// or the job was not in the expected state.
var ErrInvalidTransition = errors.New("invalid job status transition")

var jobTransitions = map[JobStatus][]JobStatus{
	JobStatusQueued:     {JobStatusProcessing, JobStatusFailed},
	JobStatusProcessing: {JobStatusCompleted, JobStatusFailed, JobStatusQueued},
}

// IsValid reports whether s is a known status.
func (s JobStatus) IsValid() bool {
	switch s {
	case JobStatusQueued, JobStatusProcessing, JobStatusCompleted, JobStatusFailed:
		return true
	}
	return false
}

// IsTerminal reports whether no further transitions are possible.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// CanTransition reports whether a job may move from one status to another.
// processing -> queued is the retry path.
func CanTransition(from, to JobStatus) bool {
	for _, next := range jobTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// CheckTransition returns ErrInvalidTransition when from -> to is not allowed.
func CheckTransition(from, to JobStatus) error {
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	return nil
}

// StatusesInto lists the statuses that may move to `to`, in a stable order.
// The repository uses it as the guard of its compare-and-set updates.
func StatusesInto(to JobStatus) []string {
	var from []string
	for _, s := range []JobStatus{JobStatusQueued, JobStatusProcessing, JobStatusCompleted, JobStatusFailed} {
		if CanTransition(s, to) {
			from = append(from, string(s))
		}
	}
	return from
}

// Audio formats accepted on TTS requests.
const (
	FormatWAV = "wav"
	FormatMP3 = "mp3"
)

// AudioContentType returns the MIME type served for an audio format.
func AudioContentType(format string) string {
	if format == FormatMP3 {
		return "audio/mpeg"
	}
	return "audio/wav"
}

// Job tracks one asynchronous audio-processing request.
type Job struct {
	ID             string
	TeamID         string
	ProjectID      *string
	Type           JobType
	Status         JobStatus
	QueueName      string
	QueueJobID     *string
	RequestedBy    string
	VoiceID        *string
	Language       *string
	Format         *string
	InputText      *string
	Params         json.RawMessage
	Result         json.RawMessage
	ResultURL      *string
	S3Path         *string
	Error          *string
	Attempts       int
	IdempotencyKey *string
	CallbackURL    *string
	CreatedAt      time.Time
	UpdatedAt      time.Time
	StartedAt      *time.Time
	CompletedAt    *time.Time
}

// JobResponse is the polling view of a job.
type JobResponse struct {
	ID          string          `json:"id"`
	Type        JobType         `json:"type"`
	Queue       string          `json:"queue"`
	Status      JobStatus       `json:"status"`
	ResultURL   *string         `json:"resultUrl"`
	Format      *string         `json:"format"`
	Result      json.RawMessage `json:"result,omitempty"`
	Error       *string         `json:"error"`
	Attempts    int             `json:"attempts"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
	CompletedAt *time.Time      `json:"completedAt,omitempty"`
}

// ToResponse converts a Job to its polling view.
func (j *Job) ToResponse() JobResponse {
	return JobResponse{
		ID:          j.ID,
		Type:        j.Type,
		Queue:       j.QueueName,
		Status:      j.Status,
		ResultURL:   j.ResultURL,
		Format:      j.Format,
		Result:      j.Result,
		Error:       j.Error,
		Attempts:    j.Attempts,
		CreatedAt:   j.CreatedAt,
		UpdatedAt:   j.UpdatedAt,
		CompletedAt: j.CompletedAt,
	}
}

// TTSParams holds TTS options that have no dedicated column.
type TTSParams struct {
	Speed           *float64 `json:"speed,omitempty"`
	Pitch           *float64 `json:"pitch,omitempty"`
	RequestedFormat string   `json:"requestedFormat,omitempty"`
}

// STTParams holds STT options.
type STTParams struct {
	SourceJobID string `json:"sourceJobId,omitempty"`
	AudioURL    string `json:"audioUrl,omitempty"`
}

// CloningParams holds voice cloning options.
type CloningParams struct {
	Name        string `json:"name,omitempty"`
	SampleJobID string `json:"sampleJobId,omitempty"`
	SampleURL   string `json:"sampleUrl,omitempty"`
}

// TTSResult is stored on completed TTS jobs.
type TTSResult struct {
	URL             string  `json:"url"`
	DurationSeconds float64 `json:"durationSeconds"`
	SampleRate      int     `json:"sampleRate"`
	Bytes           int     `json:"bytes"`
}

// Word is a timed token in a transcript.
type Word struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// STTResult is stored on completed STT jobs.
type STTResult struct {
	Transcript string `json:"transcript"`
	Language   string `json:"language,omitempty"`
	Words      []Word `json:"words"`
}

// CloningResult is stored on completed cloning jobs.
type CloningResult struct {
	CloneID string `json:"cloneId"`
	Status  string `json:"status"`
}
