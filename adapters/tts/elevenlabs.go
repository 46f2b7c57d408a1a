// Package tts holds text-to-speech adapters the dev backend can use instead of the mock synthesizer.
package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/maumcare/companion/domain/repositories"
)

const (
	defaultAPIBaseURL   = "https://api.elevenlabs.io/v1"
	defaultVoiceID      = "21m00Tcm4TlvDq8ikWAM" // Rachel voice
	defaultOutputFormat = "mp3_44100_128"        // served as audio/mpeg
	defaultModelID      = "eleven_multilingual_v2"
	defaultStability    = 0.5
	defaultClarity      = 0.75
	defaultTimeout      = 60 * time.Second

	maxErrorBody = 4 << 10
)

// ElevenLabsConfig holds configuration for the ElevenLabs adapter.
// Only APIKey is required.
type ElevenLabsConfig struct {
	APIKey       string
	APIBaseURL   string
	VoiceID      string // used for voices missing from Voices
	ModelID      string
	OutputFormat string
	Stability    float64
	Clarity      float64
	Timeout      time.Duration

	// Voices maps companion voice ids ("default", "calm", ...) to ElevenLabs voice ids
	Voices map[string]string
}

// ElevenLabs synthesizes reply audio with the ElevenLabs API
type ElevenLabs struct {
	cfg    ElevenLabsConfig
	client *http.Client
	logger *zap.Logger
}

var _ repositories.TextToSpeech = (*ElevenLabs)(nil)

// voiceSettings represents voice settings for the ElevenLabs API
type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
	Style           float64 `json:"style,omitempty"`
	UseSpeakerBoost bool    `json:"use_speaker_boost,omitempty"`
}

// synthesisRequest represents the request payload of the text-to-speech endpoint
type synthesisRequest struct {
	Text                   string        `json:"text"`
	ModelID                string        `json:"model_id"`
	LanguageCode           string        `json:"language_code,omitempty"`
	VoiceSettings          voiceSettings `json:"voice_settings"`
	ApplyTextNormalization string        `json:"apply_text_normalization,omitempty"`
}

// ValidateElevenLabsConfig validates the ElevenLabsConfig
func ValidateElevenLabsConfig(config ElevenLabsConfig) error {
	if config.APIKey == "" {
		return fmt.Errorf("eleven labs API key is required")
	}
	if config.Stability != 0 && (config.Stability < 0 || config.Stability > 1) {
		return fmt.Errorf("stability must be between 0 and 1, got %f", config.Stability)
	}
	if config.Clarity != 0 && (config.Clarity < 0 || config.Clarity > 1) {
		return fmt.Errorf("clarity must be between 0 and 1, got %f", config.Clarity)
	}
	return nil
}

// NewElevenLabs creates the adapter, applying defaults to unset fields
func NewElevenLabs(config ElevenLabsConfig, logger *zap.Logger) (*ElevenLabs, error) {
	if err := ValidateElevenLabsConfig(config); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	if config.APIBaseURL == "" {
		config.APIBaseURL = defaultAPIBaseURL
	}
	config.APIBaseURL = strings.TrimRight(config.APIBaseURL, "/")
	if config.VoiceID == "" {
		config.VoiceID = defaultVoiceID
	}
	if config.ModelID == "" {
		config.ModelID = defaultModelID
	}
	if config.OutputFormat == "" {
		config.OutputFormat = defaultOutputFormat
	}
	if config.Stability == 0 {
		config.Stability = defaultStability
	}
	if config.Clarity == 0 {
		config.Clarity = defaultClarity
	}
	if config.Timeout <= 0 {
		config.Timeout = defaultTimeout
	}

	logger.Info("ElevenLabs synthesizer configured",
		zap.String("apiBaseURL", config.APIBaseURL),
		zap.String("modelID", config.ModelID),
		zap.String("outputFormat", config.OutputFormat),
		zap.Int("mappedVoices", len(config.Voices)))

	return &ElevenLabs{
		cfg:    config,
		client: &http.Client{Timeout: config.Timeout},
		logger: logger.With(zap.String("component", "elevenlabs")),
	}, nil
}

// VoiceFor maps a companion voice id to an ElevenLabs voice id
func (e *ElevenLabs) VoiceFor(voiceID string) string {
	if mapped, ok := e.cfg.Voices[voiceID]; ok && mapped != "" {
		return mapped
	}
	return e.cfg.VoiceID
}

// SynthesizeAudio converts a reply to audio in the configured output format
func (e *ElevenLabs) SynthesizeAudio(ctx context.Context, text string, voiceID string) ([]byte, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("text cannot be empty")
	}
	voice := e.VoiceFor(voiceID)

	requestBody, err := json.Marshal(synthesisRequest{
		Text:                   text,
		ModelID:                e.cfg.ModelID,
		ApplyTextNormalization: "auto",
		VoiceSettings: voiceSettings{
			Stability:       e.cfg.Stability,
			SimilarityBoost: e.cfg.Clarity,
			UseSpeakerBoost: true,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/text-to-speech/%s?output_format=%s&enable_logging=false",
		e.cfg.APIBaseURL, url.PathEscape(voice), url.QueryEscape(e.cfg.OutputFormat))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(requestBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}

	accept := "audio/mpeg"
	if strings.HasPrefix(e.cfg.OutputFormat, "pcm") {
		accept = "audio/pcm"
	}
	httpReq.Header.Set("Accept", accept)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("xi-api-key", e.cfg.APIKey)

	e.logger.Debug("Sending request to ElevenLabs",
		zap.String("voiceID", voiceID),
		zap.String("elevenLabsVoice", voice),
		zap.Int("textLength", len(text)))

	resp, err := e.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to execute HTTP request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		errorBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, fmt.Errorf("elevenlabs returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(errorBody)))
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read audio: %w", err)
	}

	e.logger.Info("Speech synthesized",
		zap.String("voiceID", voiceID),
		zap.Int("bytes", len(audio)))
	return audio, nil
}

// NewElevenLabsConfigFromEnv reads ELEVEN_LABS_* variables
func NewElevenLabsConfigFromEnv() ElevenLabsConfig {
	config := ElevenLabsConfig{
		APIKey:       os.Getenv("ELEVEN_LABS_API_KEY"),
		APIBaseURL:   os.Getenv("ELEVEN_LABS_API_BASE_URL"),
		VoiceID:      os.Getenv("ELEVEN_LABS_VOICE_ID"),
		ModelID:      os.Getenv("ELEVEN_LABS_MODEL_ID"),
		OutputFormat: os.Getenv("ELEVEN_LABS_OUTPUT_FORMAT"),
	}

	if stabilityStr := os.Getenv("ELEVEN_LABS_STABILITY"); stabilityStr != "" {
		if stability, err := strconv.ParseFloat(stabilityStr, 64); err == nil && stability >= 0 && stability <= 1 {
			config.Stability = stability
		}
	}
	if clarityStr := os.Getenv("ELEVEN_LABS_CLARITY"); clarityStr != "" {
		if clarity, err := strconv.ParseFloat(clarityStr, 64); err == nil && clarity >= 0 && clarity <= 1 {
			config.Clarity = clarity
		}
	}
	return config
}
