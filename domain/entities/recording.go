package entities

import (
	"encoding/base64"
	"time"
)

// MIMETypeWebM is the container produced by the capture pipeline
const MIMETypeWebM = "audio/webm"

// RecordingState represents the lifecycle of a microphone recording
type RecordingState string

const (
	RecordingIdle      RecordingState = "idle"
	RecordingRecording RecordingState = "recording"
	RecordingStopped   RecordingState = "stopped"
)

// AudioArtifact is the finalized, playable result of one recording
type AudioArtifact struct {
	ID        string        `json:"id"`
	MIMEType  string        `json:"mime_type"`
	Data      []byte        `json:"-"`
	Chunks    int           `json:"chunks"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
}

// Size returns the artifact size in bytes
func (a *AudioArtifact) Size() int {
	return len(a.Data)
}

// DataURL encodes the artifact the same way a browser FileReader does
func (a *AudioArtifact) DataURL() string {
	mime := a.MIMEType
	if mime == "" {
		mime = MIMETypeWebM
	}
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(a.Data)
}

// Controls describes which recording actions are currently available
type Controls struct {
	RecordEnabled bool `json:"record_enabled"`
	StopEnabled   bool `json:"stop_enabled"`
	PlayEnabled   bool `json:"play_enabled"`
}

// ControlsFor derives the control availability from the recording state
func ControlsFor(state RecordingState, hasArtifact bool) Controls {
	switch state {
	case RecordingRecording:
		return Controls{StopEnabled: true}
	case RecordingStopped:
		return Controls{RecordEnabled: true, PlayEnabled: hasArtifact}
	default:
		return Controls{RecordEnabled: true, PlayEnabled: hasArtifact}
	}
}
