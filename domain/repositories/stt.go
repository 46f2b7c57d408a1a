package repositories

import "context"

// SpeechToText abstracts speech recognition for uploaded recordings
type SpeechToText interface {
	// TranscribeAudio converts a complete recording to text
	TranscribeAudio(ctx context.Context, audioData []byte, config AudioConfig) (string, error)
}

// AudioConfig represents audio configuration for speech recognition
type AudioConfig struct {
	MIMEType string `json:"mime_type"`
	Language string `json:"language"`
}
