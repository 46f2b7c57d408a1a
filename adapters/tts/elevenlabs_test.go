package tts

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap/zaptest"
)

func TestNewElevenLabs(t *testing.T) {
	logger := zaptest.NewLogger(t)

	// Test without API key
	t.Setenv("ELEVEN_LABS_API_KEY", "")
	if _, err := NewElevenLabs(NewElevenLabsConfigFromEnv(), logger); err == nil {
		t.Error("Expected error when API key is not set")
	}

	t.Setenv("ELEVEN_LABS_API_KEY", "test-api-key")
	t.Setenv("ELEVEN_LABS_STABILITY", "0.8")
	t.Setenv("ELEVEN_LABS_CLARITY", "7")

	tts, err := NewElevenLabs(NewElevenLabsConfigFromEnv(), logger)
	if err != nil {
		t.Fatalf("Failed to create ElevenLabs: %v", err)
	}
	if tts.cfg.APIKey != "test-api-key" {
		t.Errorf("Expected API key 'test-api-key', got '%s'", tts.cfg.APIKey)
	}
	if tts.cfg.Stability != 0.8 {
		t.Errorf("Expected stability 0.8, got %f", tts.cfg.Stability)
	}
	// out of range values are ignored
	if tts.cfg.Clarity != defaultClarity {
		t.Errorf("Expected default clarity, got %f", tts.cfg.Clarity)
	}
	if tts.cfg.OutputFormat != defaultOutputFormat {
		t.Errorf("Expected output format '%s', got '%s'", defaultOutputFormat, tts.cfg.OutputFormat)
	}
}

func TestValidateElevenLabsConfig(t *testing.T) {
	tests := []struct {
		name    string
		config  ElevenLabsConfig
		wantErr bool
	}{
		{"valid", ElevenLabsConfig{APIKey: "k"}, false},
		{"missing key", ElevenLabsConfig{}, true},
		{"stability too high", ElevenLabsConfig{APIKey: "k", Stability: 1.5}, true},
		{"negative clarity", ElevenLabsConfig{APIKey: "k", Clarity: -0.1}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateElevenLabsConfig(tt.config)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateElevenLabsConfig() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestElevenLabs_VoiceFor(t *testing.T) {
	tts, err := NewElevenLabs(ElevenLabsConfig{
		APIKey:  "k",
		VoiceID: "fallback",
		Voices:  map[string]string{"calm": "el-calm"},
	}, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("Failed to create ElevenLabs: %v", err)
	}

	if got := tts.VoiceFor("calm"); got != "el-calm" {
		t.Errorf("VoiceFor(calm) = %q", got)
	}
	if got := tts.VoiceFor("default"); got != "fallback" {
		t.Errorf("VoiceFor(default) = %q", got)
	}
}

func TestElevenLabs_SynthesizeAudio(t *testing.T) {
	var got synthesisRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/text-to-speech/el-calm" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.URL.Query().Get("output_format") != defaultOutputFormat {
			t.Errorf("unexpected output format %q", r.URL.Query().Get("output_format"))
		}
		if r.Header.Get("xi-api-key") != "test-api-key" {
			t.Errorf("missing api key header")
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "audio/mpeg")
		w.Write([]byte("ID3-mp3-bytes"))
	}))
	defer srv.Close()

	tts, err := NewElevenLabs(ElevenLabsConfig{
		APIKey:     "test-api-key",
		APIBaseURL: srv.URL + "/",
		Voices:     map[string]string{"calm": "el-calm"},
	}, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("Failed to create ElevenLabs: %v", err)
	}

	audio, err := tts.SynthesizeAudio(t.Context(), "안녕하세요", "calm")
	if err != nil {
		t.Fatalf("SynthesizeAudio failed: %v", err)
	}
	if string(audio) != "ID3-mp3-bytes" {
		t.Errorf("unexpected audio %q", audio)
	}
	if got.Text != "안녕하세요" || got.ModelID != defaultModelID {
		t.Errorf("unexpected request %+v", got)
	}
	if got.VoiceSettings.Stability != defaultStability || got.VoiceSettings.SimilarityBoost != defaultClarity {
		t.Errorf("unexpected voice settings %+v", got.VoiceSettings)
	}
}

func TestElevenLabs_SynthesizeAudioErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"detail":"quota exceeded"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	tts, err := NewElevenLabs(ElevenLabsConfig{APIKey: "k", APIBaseURL: srv.URL}, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("Failed to create ElevenLabs: %v", err)
	}

	if _, err := tts.SynthesizeAudio(t.Context(), "   ", "default"); err == nil {
		t.Error("Expected error for whitespace-only text")
	}
	if _, err := tts.SynthesizeAudio(t.Context(), "hello", "default"); err == nil {
		t.Error("Expected error for non-200 response")
	}
}
