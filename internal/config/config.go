// Package config loads the client configuration from YAML, .env and the environment.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Duration time.Duration

func (d Duration) ToDuration() time.Duration { return time.Duration(d) }

func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// UnmarshalYAML accepts "5s", "2m" or integer seconds
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value == nil {
		*d = 0
		return nil
	}
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("duration must be a scalar")
	}
	parsed, err := parseDuration(value.Value)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

func parseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Duration(i) * time.Second, nil
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration: %q", s)
	}
	return dur, nil
}

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Session   SessionConfig   `yaml:"session"`
	Auth      AuthConfig      `yaml:"auth"`
	Transport TransportConfig `yaml:"transport"`
	Audio     AudioConfig     `yaml:"audio"`
	UI        UIConfig        `yaml:"ui"`
	Log       LogConfig       `yaml:"log"`
	DevServer DevServerConfig `yaml:"devserver"`
}

type ServerConfig struct {
	// BaseURL is the web origin of the backend, e.g. https://care.example.com
	BaseURL string `yaml:"base_url"`
	// WebSocketURL overrides the ws(s):// origin derived from BaseURL
	WebSocketURL string `yaml:"websocket_url"`
}

type SessionConfig struct {
	ConversationID string `yaml:"conversation_id"`
	VoiceID        string `yaml:"voice_id"`
}

type AuthConfig struct {
	SessionID   string `yaml:"session_id"` // Django sessionid cookie
	CSRFToken   string `yaml:"csrf_token"`
	BearerToken string `yaml:"bearer_token"`
	// TokenScheme prefixes BearerToken in the Authorization header: Token or Bearer
	TokenScheme string `yaml:"token_scheme"`
}

type TransportConfig struct {
	PingInterval Duration        `yaml:"ping_interval"`
	WriteTimeout Duration        `yaml:"write_timeout"`
	DialTimeout  Duration        `yaml:"dial_timeout"`
	MaxFrameSize int64           `yaml:"max_frame_size"`
	Reconnect    ReconnectConfig `yaml:"reconnect"`
}

type ReconnectConfig struct {
	// MaxAttempts of 0 disables reconnection
	MaxAttempts     int      `yaml:"max_attempts"`
	InitialInterval Duration `yaml:"initial_interval"`
	MaxInterval     Duration `yaml:"max_interval"`
}

type AudioConfig struct {
	CaptureCommand []string `yaml:"capture_command"`
	PlayerCommand  []string `yaml:"player_command"`
	CacheDir       string   `yaml:"cache_dir"`
}

type UIConfig struct {
	Locale       string   `yaml:"locale"` // ko, en
	Color        string   `yaml:"color"`  // auto, always, never
	Markdown     bool     `yaml:"markdown"`
	AlertTimeout Duration `yaml:"alert_timeout"`
}

type LogConfig struct {
	Level       string `yaml:"level"`
	Output      string `yaml:"output"`
	Development bool   `yaml:"development"`
}

type DevServerConfig struct {
	Addr       string `yaml:"addr"`
	JWTSecret  string `yaml:"jwt_secret"`
	RequireJWT bool   `yaml:"require_jwt"`
	CheckCSRF  bool   `yaml:"check_csrf"`

	// ElevenLabsVoices maps voice ids to ElevenLabs voices; used when ELEVEN_LABS_API_KEY is set
	ElevenLabsVoices map[string]string `yaml:"elevenlabs_voices"`
	// GoogleSpeech transcribes voice messages with Google Cloud instead of the mock recognizer
	GoogleSpeech bool `yaml:"google_speech"`
}

func Default() Config {
	return Config{
		Server: ServerConfig{
			BaseURL: "http://localhost:8000",
		},
		Session: SessionConfig{
			VoiceID: "default",
		},
		Auth: AuthConfig{
			TokenScheme: "Token",
		},
		Transport: TransportConfig{
			PingInterval: Duration(30 * time.Second),
			WriteTimeout: Duration(10 * time.Second),
			DialTimeout:  Duration(10 * time.Second),
			MaxFrameSize: 4 << 20,
			Reconnect: ReconnectConfig{
				MaxAttempts:     5,
				InitialInterval: Duration(time.Second),
				MaxInterval:     Duration(30 * time.Second),
			},
		},
		Audio: AudioConfig{
			CaptureCommand: []string{"ffmpeg", "-hide_banner", "-loglevel", "error", "-f", "pulse", "-i", "default", "-c:a", "libopus", "-f", "webm", "pipe:1"},
			PlayerCommand:  []string{"ffplay", "-nodisp", "-autoexit", "-loglevel", "quiet"},
			CacheDir:       "./cache/voice",
		},
		UI: UIConfig{
			Locale:       "ko",
			Color:        "auto",
			Markdown:     true,
			AlertTimeout: Duration(5 * time.Second),
		},
		Log: LogConfig{
			Level:  "warn",
			Output: "stderr",
		},
		DevServer: DevServerConfig{
			Addr: ":8000",
		},
	}
}

// Load reads the YAML file at path (optional when empty or missing), then applies
// .env and COMPANION_* environment overrides.
func Load(path string) (Config, error) {
	cfg := Default()

	_ = godotenv.Load()

	if path != "" {
		b, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
			// defaults + env only
		case err != nil:
			return cfg, err
		default:
			if err := yaml.Unmarshal(b, &cfg); err != nil {
				return cfg, fmt.Errorf("failed to parse %s: %w", path, err)
			}
		}
	}

	applyEnv(&cfg)
	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.Server.BaseURL = getEnv("COMPANION_BASE_URL", cfg.Server.BaseURL)
	cfg.Server.WebSocketURL = getEnv("COMPANION_WS_URL", cfg.Server.WebSocketURL)
	cfg.Session.ConversationID = getEnv("COMPANION_CONVERSATION_ID", cfg.Session.ConversationID)
	cfg.Session.VoiceID = getEnv("COMPANION_VOICE_ID", cfg.Session.VoiceID)
	cfg.Auth.SessionID = getEnv("COMPANION_SESSION_ID", cfg.Auth.SessionID)
	cfg.Auth.CSRFToken = getEnv("COMPANION_CSRF_TOKEN", cfg.Auth.CSRFToken)
	cfg.Auth.BearerToken = getEnv("COMPANION_TOKEN", cfg.Auth.BearerToken)
	cfg.Auth.TokenScheme = getEnv("COMPANION_TOKEN_SCHEME", cfg.Auth.TokenScheme)
	cfg.UI.Locale = getEnv("COMPANION_LOCALE", cfg.UI.Locale)
	cfg.Log.Level = getEnv("LOG_LEVEL", cfg.Log.Level)
	cfg.DevServer.Addr = getEnv("COMPANION_DEVSERVER_ADDR", cfg.DevServer.Addr)
	cfg.DevServer.JWTSecret = getEnv("COMPANION_JWT_SECRET", cfg.DevServer.JWTSecret)
	if v := os.Getenv("COMPANION_GOOGLE_SPEECH"); v != "" {
		cfg.DevServer.GoogleSpeech = v == "1" || strings.EqualFold(v, "true")
	}

	if v := os.Getenv("COMPANION_RECONNECT_ATTEMPTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Transport.Reconnect.MaxAttempts = n
		}
	}
	if v := os.Getenv("COMPANION_PING_INTERVAL"); v != "" {
		if d, err := parseDuration(v); err == nil {
			cfg.Transport.PingInterval = Duration(d)
		}
	}
}

// applyDefaults restores defaults for zero or invalid values without overriding user choices
func applyDefaults(cfg *Config) {
	def := Default()

	cfg.Server.BaseURL = strings.TrimRight(cfg.Server.BaseURL, "/")
	if cfg.Server.BaseURL == "" {
		cfg.Server.BaseURL = def.Server.BaseURL
	}
	if cfg.Session.VoiceID == "" {
		cfg.Session.VoiceID = def.Session.VoiceID
	}
	if cfg.Auth.TokenScheme == "" {
		cfg.Auth.TokenScheme = def.Auth.TokenScheme
	}
	if cfg.Transport.PingInterval.ToDuration() <= 0 {
		cfg.Transport.PingInterval = def.Transport.PingInterval
	}
	if cfg.Transport.WriteTimeout.ToDuration() <= 0 {
		cfg.Transport.WriteTimeout = def.Transport.WriteTimeout
	}
	if cfg.Transport.DialTimeout.ToDuration() <= 0 {
		cfg.Transport.DialTimeout = def.Transport.DialTimeout
	}
	if cfg.Transport.MaxFrameSize <= 0 {
		cfg.Transport.MaxFrameSize = def.Transport.MaxFrameSize
	}
	if cfg.Transport.Reconnect.MaxAttempts < 0 {
		cfg.Transport.Reconnect.MaxAttempts = 0
	}
	if cfg.Transport.Reconnect.InitialInterval.ToDuration() <= 0 {
		cfg.Transport.Reconnect.InitialInterval = def.Transport.Reconnect.InitialInterval
	}
	if cfg.Transport.Reconnect.MaxInterval.ToDuration() < cfg.Transport.Reconnect.InitialInterval.ToDuration() {
		cfg.Transport.Reconnect.MaxInterval = cfg.Transport.Reconnect.InitialInterval
	}
	if len(cfg.Audio.CaptureCommand) == 0 {
		cfg.Audio.CaptureCommand = def.Audio.CaptureCommand
	}
	if len(cfg.Audio.PlayerCommand) == 0 {
		cfg.Audio.PlayerCommand = def.Audio.PlayerCommand
	}
	if cfg.Audio.CacheDir == "" {
		cfg.Audio.CacheDir = def.Audio.CacheDir
	}
	if cfg.UI.Locale == "" {
		cfg.UI.Locale = def.UI.Locale
	}
	if cfg.UI.Color == "" {
		cfg.UI.Color = def.UI.Color
	}
	if cfg.UI.AlertTimeout.ToDuration() <= 0 {
		cfg.UI.AlertTimeout = def.UI.AlertTimeout
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = def.Log.Level
	}
	if cfg.Log.Output == "" {
		cfg.Log.Output = def.Log.Output
	}
	if cfg.DevServer.Addr == "" {
		cfg.DevServer.Addr = def.DevServer.Addr
	}
}

// Validate checks values that cannot be defaulted
func (c Config) Validate() error {
	if _, err := c.BaseURL(); err != nil {
		return err
	}
	if c.Server.WebSocketURL != "" {
		u, err := url.Parse(c.Server.WebSocketURL)
		if err != nil || (u.Scheme != "ws" && u.Scheme != "wss") {
			return fmt.Errorf("websocket_url must be a ws:// or wss:// URL, got %q", c.Server.WebSocketURL)
		}
	}
	switch c.UI.Color {
	case "auto", "always", "never":
	default:
		return fmt.Errorf("ui.color must be auto, always or never, got %q", c.UI.Color)
	}
	return nil
}

// BaseURL returns the parsed backend origin
func (c Config) BaseURL() (*url.URL, error) {
	u, err := url.Parse(c.Server.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base_url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("base_url must be http or https, got %q", c.Server.BaseURL)
	}
	return u, nil
}

// WebSocketBase returns the ws(s):// origin: wss for https pages, ws otherwise
func (c Config) WebSocketBase() (*url.URL, error) {
	if c.Server.WebSocketURL != "" {
		return url.Parse(strings.TrimRight(c.Server.WebSocketURL, "/"))
	}
	base, err := c.BaseURL()
	if err != nil {
		return nil, err
	}
	ws := *base
	ws.Scheme = "ws"
	if base.Scheme == "https" {
		ws.Scheme = "wss"
	}
	return &ws, nil
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}
