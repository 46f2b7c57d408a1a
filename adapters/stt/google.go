// Package stt holds speech recognition adapters the dev backend can use instead of the mock recognizer.
package stt

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"strings"

	speech "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"
	"go.uber.org/zap"

	"github.com/maumcare/companion/domain/repositories"
)

const (
	defaultLanguage = "ko-KR"
	opusSampleRate  = 48000
)

// ErrNoSpeech is returned when recognition finished without a final transcript
var ErrNoSpeech = errors.New("no speech detected in audio")

type recognizeFunc func(ctx context.Context, req *speechpb.RecognizeRequest) (*speechpb.RecognizeResponse, error)

// GoogleSpeechToText transcribes complete recordings with Google Cloud Speech-to-Text.
// Credentials come from the environment (GOOGLE_APPLICATION_CREDENTIALS).
type GoogleSpeechToText struct {
	recognize recognizeFunc
	close     func() error
	logger    *zap.Logger
}

var _ repositories.SpeechToText = (*GoogleSpeechToText)(nil)

// NewGoogleSpeechToText dials the Speech API
func NewGoogleSpeechToText(ctx context.Context, logger *zap.Logger) (*GoogleSpeechToText, error) {
	client, err := speech.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create speech client: %w", err)
	}
	g := newGoogleSpeechToText(func(ctx context.Context, req *speechpb.RecognizeRequest) (*speechpb.RecognizeResponse, error) {
		return client.Recognize(ctx, req)
	}, logger)
	g.close = client.Close
	return g, nil
}

func newGoogleSpeechToText(recognize recognizeFunc, logger *zap.Logger) *GoogleSpeechToText {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GoogleSpeechToText{
		recognize: recognize,
		close:     func() error { return nil },
		logger:    logger.With(zap.String("component", "google_stt")),
	}
}

// TranscribeAudio sends the whole recording in one synchronous request
func (g *GoogleSpeechToText) TranscribeAudio(ctx context.Context, audioData []byte, config repositories.AudioConfig) (string, error) {
	if len(audioData) == 0 {
		return "", fmt.Errorf("no audio data received")
	}

	encoding, sampleRate := audioEncoding(config.MIMEType)
	language := config.Language
	if language == "" {
		language = defaultLanguage
	}

	resp, err := g.recognize(ctx, &speechpb.RecognizeRequest{
		Config: &speechpb.RecognitionConfig{
			Encoding:                   encoding,
			SampleRateHertz:            sampleRate,
			LanguageCode:               language,
			EnableAutomaticPunctuation: true,
		},
		Audio: &speechpb.RecognitionAudio{
			AudioSource: &speechpb.RecognitionAudio_Content{Content: audioData},
		},
	})
	if err != nil {
		return "", fmt.Errorf("recognize request failed: %w", err)
	}

	var parts []string
	for _, result := range resp.GetResults() {
		if alts := result.GetAlternatives(); len(alts) > 0 {
			if text := strings.TrimSpace(alts[0].GetTranscript()); text != "" {
				parts = append(parts, text)
			}
		}
	}
	if len(parts) == 0 {
		return "", ErrNoSpeech
	}

	transcript := strings.Join(parts, " ")
	g.logger.Debug("Audio transcribed",
		zap.String("mimeType", config.MIMEType),
		zap.Int("audioSize", len(audioData)),
		zap.Int("transcriptLen", len(transcript)))
	return transcript, nil
}

// Close releases the gRPC connection
func (g *GoogleSpeechToText) Close() error {
	return g.close()
}

// audioEncoding maps a recording's MIME type to the Speech API encoding.
// WAV and FLAC carry their sample rate in the header, so it is left unset.
func audioEncoding(mimeType string) (speechpb.RecognitionConfig_AudioEncoding, int32) {
	mediaType, _, err := mime.ParseMediaType(mimeType)
	if err != nil {
		mediaType = strings.ToLower(strings.TrimSpace(mimeType))
	}
	switch mediaType {
	case "audio/webm":
		return speechpb.RecognitionConfig_WEBM_OPUS, opusSampleRate
	case "audio/ogg", "audio/opus":
		return speechpb.RecognitionConfig_OGG_OPUS, opusSampleRate
	case "audio/wav", "audio/x-wav", "audio/wave":
		return speechpb.RecognitionConfig_LINEAR16, 0
	case "audio/flac", "audio/x-flac":
		return speechpb.RecognitionConfig_FLAC, 0
	case "audio/amr":
		return speechpb.RecognitionConfig_AMR, 8000
	default:
		return speechpb.RecognitionConfig_ENCODING_UNSPECIFIED, 0
	}
}
