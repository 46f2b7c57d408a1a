package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "companion.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:8000", cfg.Server.BaseURL)
	assert.Equal(t, "default", cfg.Session.VoiceID)
	assert.Equal(t, 30*time.Second, cfg.Transport.PingInterval.ToDuration())
	assert.Equal(t, 5*time.Second, cfg.UI.AlertTimeout.ToDuration())
	assert.Equal(t, 5, cfg.Transport.Reconnect.MaxAttempts)
}

func TestLoadYAML(t *testing.T) {
	path := writeConfig(t, `
server:
  base_url: https://care.example.com/
session:
  conversation_id: "42"
  voice_id: ""
transport:
  ping_interval: 15
  reconnect:
    max_attempts: 0
    initial_interval: 2s
ui:
  locale: en
  alert_timeout: 3s
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "https://care.example.com", cfg.Server.BaseURL)
	assert.Equal(t, "42", cfg.Session.ConversationID)
	assert.Equal(t, "default", cfg.Session.VoiceID, "empty voice falls back to default")
	assert.Equal(t, 15*time.Second, cfg.Transport.PingInterval.ToDuration())
	assert.Equal(t, 0, cfg.Transport.Reconnect.MaxAttempts)
	assert.Equal(t, 2*time.Second, cfg.Transport.Reconnect.InitialInterval.ToDuration())
	assert.Equal(t, "en", cfg.UI.Locale)
	assert.Equal(t, 3*time.Second, cfg.UI.AlertTimeout.ToDuration())

	ws, err := cfg.WebSocketBase()
	require.NoError(t, err)
	assert.Equal(t, "wss://care.example.com", ws.String())
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("COMPANION_BASE_URL", "http://backend:9000")
	t.Setenv("COMPANION_CONVERSATION_ID", "7")
	t.Setenv("COMPANION_VOICE_ID", "calm")
	t.Setenv("COMPANION_RECONNECT_ATTEMPTS", "2")
	t.Setenv("COMPANION_PING_INTERVAL", "45s")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "http://backend:9000", cfg.Server.BaseURL)
	assert.Equal(t, "7", cfg.Session.ConversationID)
	assert.Equal(t, "calm", cfg.Session.VoiceID)
	assert.Equal(t, 2, cfg.Transport.Reconnect.MaxAttempts)
	assert.Equal(t, 45*time.Second, cfg.Transport.PingInterval.ToDuration())

	ws, err := cfg.WebSocketBase()
	require.NoError(t, err)
	assert.Equal(t, "ws://backend:9000", ws.String())
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"bad scheme", "server:\n  base_url: ftp://example.com\n"},
		{"bad ws url", "server:\n  websocket_url: http://example.com\n"},
		{"bad color", "ui:\n  color: rainbow\n"},
		{"bad duration", "transport:\n  ping_interval: soon\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			assert.Error(t, err)
		})
	}
}

func TestNewLogger(t *testing.T) {
	logger, err := NewLogger(LogConfig{Level: "debug", Output: filepath.Join(t.TempDir(), "companion.log")})
	require.NoError(t, err)
	logger.Debug("logger works")
	_ = logger.Sync()

	_, err = NewLogger(LogConfig{Level: "not-a-level", Output: "stderr"})
	assert.NoError(t, err, "unknown levels fall back to warn")
}
