package mock

import (
	"context"
	"hash/fnv"

	"go.uber.org/zap"

	"github.com/maumcare/companion/domain/repositories"
)

// Transcriber is a placeholder implementation for speech recognition
type Transcriber struct {
	logger *zap.Logger
}

var _ repositories.SpeechToText = (*Transcriber)(nil)

// NewTranscriber creates a new mock speech-to-text service
func NewTranscriber(logger *zap.Logger) *Transcriber {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Transcriber{logger: logger}
}

// TranscribeAudio implements repositories.SpeechToText
func (s *Transcriber) TranscribeAudio(ctx context.Context, audioData []byte, config repositories.AudioConfig) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	s.logger.Info("Processing speech-to-text",
		zap.Int("audioSize", len(audioData)),
		zap.String("mimeType", config.MIMEType),
		zap.String("language", config.Language))

	// Mock transcription based on audio size
	switch {
	case len(audioData) > 10000:
		return "안녕하세요, 오늘 있었던 일에 대해 이야기하고 싶어요.", nil
	case len(audioData) > 5000:
		return "들어주셔서 감사해요.", nil
	case len(audioData) > 1000:
		return "안녕하세요!", nil
	default:
		return "네", nil
	}
}

// Synthesizer is a placeholder implementation for text-to-speech
type Synthesizer struct {
	logger *zap.Logger
}

var _ repositories.TextToSpeech = (*Synthesizer)(nil)

// NewSynthesizer creates a new mock text-to-speech service
func NewSynthesizer(logger *zap.Logger) *Synthesizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Synthesizer{logger: logger}
}

// SynthesizeAudio implements repositories.TextToSpeech.
// The output is a deterministic byte pattern seeded by the voice id.
func (t *Synthesizer) SynthesizeAudio(ctx context.Context, text string, voiceID string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	t.logger.Info("Processing text-to-speech",
		zap.Int("textLength", len(text)),
		zap.String("voiceID", voiceID))

	h := fnv.New32a()
	h.Write([]byte(voiceID))
	seed := byte(h.Sum32())

	audio := make([]byte, len(text)*100)
	for i := range audio {
		audio[i] = byte(i%256) ^ seed
	}
	return audio, nil
}
