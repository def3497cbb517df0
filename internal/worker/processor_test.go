package worker

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/gopxl/beep/v2/wav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/auralforge/auralforge/internal/audio"
	"github.com/auralforge/auralforge/internal/model"
	"github.com/auralforge/auralforge/internal/queue"
)

type memStore struct {
	objects      map[string][]byte
	contentTypes map[string]string
	err          error
}

func (s *memStore) Put(_ context.Context, key string, data []byte, contentType string) error {
	if s.err != nil {
		return s.err
	}
	if s.objects == nil {
		s.objects = map[string][]byte{}
		s.contentTypes = map[string]string{}
	}
	s.objects[key] = data
	s.contentTypes[key] = contentType
	return nil
}

type voiceRecorder struct {
	saved []*model.VoiceClone
}

func (v *voiceRecorder) UpsertVoiceClone(_ context.Context, vc *model.VoiceClone) error {
	v.saved = append(v.saved, vc)
	return nil
}

func TestTTSProcessor_UploadsWAV(t *testing.T) {
	store := &memStore{}
	text := "hello from the synthesizer"
	job := &model.Job{ID: "job-1", TeamID: "team-1", Type: model.JobTypeTTS, InputText: &text}

	out, err := (&TTSProcessor{Store: store}).Process(context.Background(), job)
	require.NoError(t, err)

	require.NotNil(t, out.S3Path)
	assert.Equal(t, "audio/team-1/job-1.wav", *out.S3Path)
	require.NotNil(t, out.ResultURL)
	assert.Equal(t, "/v1/assets/job-1/audio", *out.ResultURL)
	assert.Equal(t, "audio/wav", store.contentTypes[*out.S3Path])

	data := store.objects[*out.S3Path]
	require.True(t, bytes.HasPrefix(data, []byte("RIFF")))
	streamer, format, err := wav.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	defer streamer.Close()
	assert.Equal(t, audio.SampleRate, int(format.SampleRate))
	assert.Equal(t, 1, format.NumChannels)

	res, ok := out.Result.(model.TTSResult)
	require.True(t, ok)
	assert.InDelta(t, audio.DurationForText(text).Seconds(), res.DurationSeconds, 0.001)
	assert.Equal(t, len(data), res.Bytes)
}

func TestTTSProcessor_EmptyTextIsPermanent(t *testing.T) {
	_, err := (&TTSProcessor{Store: &memStore{}}).Process(context.Background(), &model.Job{ID: "j"})
	assert.ErrorIs(t, err, queue.ErrPermanent)
}

func TestTTSProcessor_UploadFailureIsRetryable(t *testing.T) {
	text := "hi"
	store := &memStore{err: errors.New("s3 down")}
	_, err := (&TTSProcessor{Store: store}).Process(context.Background(), &model.Job{ID: "j", InputText: &text})
	require.Error(t, err)
	assert.NotErrorIs(t, err, queue.ErrPermanent)
}

func TestSTTProcessor_EchoesLanguage(t *testing.T) {
	lang := "de"
	out, err := STTProcessor{}.Process(context.Background(), &model.Job{ID: "j", Language: &lang})
	require.NoError(t, err)

	res := out.Result.(model.STTResult)
	assert.Equal(t, "Hello world", res.Transcript)
	assert.Equal(t, "de", res.Language)
	assert.Len(t, res.Words, 2)
	assert.Nil(t, out.S3Path)
}

func TestCloningProcessor_SavesReadyClone(t *testing.T) {
	voices := &voiceRecorder{}
	job := &model.Job{ID: "job-9", TeamID: "team-1", Params: []byte(`{"name":"Narrator"}`)}

	out, err := (&CloningProcessor{Voices: voices}).Process(context.Background(), job)
	require.NoError(t, err)

	require.Len(t, voices.saved, 1)
	assert.Equal(t, "vc_job-9", voices.saved[0].ID)
	assert.Equal(t, "Narrator", voices.saved[0].Name)
	assert.Equal(t, model.VoiceCloneReady, voices.saved[0].Status)
	assert.Equal(t, model.CloningResult{CloneID: "vc_job-9", Status: "ready"}, out.Result)
}

func TestCloningProcessor_BadParamsArePermanent(t *testing.T) {
	job := &model.Job{ID: "job-9", Params: []byte(`{"name":`)}
	_, err := (&CloningProcessor{Voices: &voiceRecorder{}}).Process(context.Background(), job)
	assert.ErrorIs(t, err, queue.ErrPermanent)
}
