package audio

import "github.com/auralforge/auralforge/internal/model"

// StubTranscript is the fixed transcript returned for every STT job.
func StubTranscript(language string) model.STTResult {
	return model.STTResult{
		Transcript: "Hello world",
		Language:   language,
		Words: []model.Word{
			{Start: 0, End: 0.5, Text: "Hello"},
			{Start: 0.5, End: 1.0, Text: "world"},
		},
	}
}

// StubClone returns a ready clone for a cloning job.
func StubClone(jobID string) model.CloningResult {
	return model.CloningResult{
		CloneID: model.VoiceCloneID(jobID),
		Status:  model.VoiceCloneReady,
	}
}
