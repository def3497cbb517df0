package model

import "time"

// VoiceCloneStatus values.
const (
	VoiceCloneReady = "ready"
)

// VoiceClone is a custom voice produced by a cloning job.
type VoiceClone struct {
	ID        string    `json:"id"`
	TeamID    string    `json:"teamId"`
	JobID     string    `json:"jobId"`
	Name      string    `json:"name"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
}

// VoiceCloneID derives the clone identifier from the job that produced it.
func VoiceCloneID(jobID string) string {
	return "vc_" + jobID
}
