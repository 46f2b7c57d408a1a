package repositories

import "context"

// TextToSpeech synthesizes reply audio for a voice profile
type TextToSpeech interface {
	SynthesizeAudio(ctx context.Context, text string, voiceID string) ([]byte, error)
}
