package repositories

import (
	"context"

	"github.com/maumcare/companion/domain/entities"
)

// CaptureDevice grants access to a microphone
type CaptureDevice interface {
	// Open acquires the device; a denied or missing device yields a permission error
	Open(ctx context.Context) (CaptureStream, error)
}

// CaptureStream pushes encoded audio chunks until closed
type CaptureStream interface {
	// Chunks is closed after the stream has been closed and drained
	Chunks() <-chan []byte
	// Close stops capture and releases the device
	Close() error
}

// Recorder drives one microphone recording at a time
type Recorder interface {
	Start(ctx context.Context) error
	Stop() (*entities.AudioArtifact, error)
	Artifact() (*entities.AudioArtifact, bool)
	State() entities.RecordingState
	Controls() entities.Controls
}

// AudioPlayer plays reply audio and local recordings
type AudioPlayer interface {
	// Play starts playback of a URL or path and returns without waiting for it to finish
	Play(ctx context.Context, source string) error
	PlayArtifact(ctx context.Context, artifact *entities.AudioArtifact) error
}
