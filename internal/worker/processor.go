// Package worker turns queue messages into finished jobs.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/auralforge/auralforge/internal/audio"
	"github.com/auralforge/auralforge/internal/model"
	"github.com/auralforge/auralforge/internal/queue"
	"github.com/auralforge/auralforge/internal/storage"
)

// Output is what a processor hands back for CompleteJob.
type Output struct {
	Result    any
	ResultURL *string
	S3Path    *string
}

// Processor produces the result for one job type.
type Processor interface {
	Process(ctx context.Context, job *model.Job) (*Output, error)
}

// ObjectStore is where synthesized audio is written.
type ObjectStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
}

// VoiceStore records clones produced by cloning jobs.
type VoiceStore interface {
	UpsertVoiceClone(ctx context.Context, vc *model.VoiceClone) error
}

// AssetURL is the API path that streams a job's audio.
func AssetURL(jobID string) string {
	return "/v1/assets/" + jobID + "/audio"
}

// TTSProcessor synthesizes a tone for the input text and uploads it.
type TTSProcessor struct {
	Store ObjectStore
}

func (p *TTSProcessor) Process(ctx context.Context, job *model.Job) (*Output, error) {
	if job.InputText == nil || *job.InputText == "" {
		return nil, queue.Permanent(errors.New("tts job has no input text"))
	}

	clip, err := audio.SynthesizeTone(*job.InputText)
	if err != nil {
		return nil, queue.Permanent(fmt.Errorf("synthesize: %w", err))
	}

	key := storage.AudioKey(job.TeamID, job.ID, model.FormatWAV)
	if err := p.Store.Put(ctx, key, clip.Data, model.AudioContentType(model.FormatWAV)); err != nil {
		return nil, fmt.Errorf("upload audio: %w", err)
	}

	url := AssetURL(job.ID)
	return &Output{
		Result: model.TTSResult{
			URL:             url,
			DurationSeconds: clip.Duration.Seconds(),
			SampleRate:      clip.SampleRate,
			Bytes:           len(clip.Data),
		},
		ResultURL: &url,
		S3Path:    &key,
	}, nil
}

// STTProcessor returns the canned transcript.
type STTProcessor struct{}

func (STTProcessor) Process(_ context.Context, job *model.Job) (*Output, error) {
	lang := ""
	if job.Language != nil {
		lang = *job.Language
	}
	return &Output{Result: audio.StubTranscript(lang)}, nil
}

// CloningProcessor registers a ready voice clone.
type CloningProcessor struct {
	Voices VoiceStore
}

func (p *CloningProcessor) Process(ctx context.Context, job *model.Job) (*Output, error) {
	var params model.CloningParams
	if len(job.Params) > 0 {
		if err := json.Unmarshal(job.Params, &params); err != nil {
			return nil, queue.Permanent(fmt.Errorf("decode cloning params: %w", err))
		}
	}

	result := audio.StubClone(job.ID)
	name := params.Name
	if name == "" {
		name = result.CloneID
	}

	vc := &model.VoiceClone{
		ID:        result.CloneID,
		TeamID:    job.TeamID,
		JobID:     job.ID,
		Name:      name,
		Status:    result.Status,
		CreatedAt: time.Now().UTC(),
	}
	if err := p.Voices.UpsertVoiceClone(ctx, vc); err != nil {
		return nil, fmt.Errorf("save voice clone: %w", err)
	}
	return &Output{Result: result}, nil
}
