package entities

import "time"

// Author identifies who wrote a transcript entry
type Author string

const (
	AuthorUser      Author = "user"
	AuthorAssistant Author = "assistant"
)

// Entry is a single line of the visible transcript
type Entry struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	Author    Author    `json:"author"`
	Timestamp time.Time `json:"timestamp"`
	// Loading marks the transient placeholder shown while a fallback request is pending
	Loading bool `json:"loading,omitempty"`
}

// Severity controls how an alert is styled
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeveritySuccess Severity = "success"
	SeverityDanger  Severity = "danger"
)

// Alert is a transient, dismissible notice
type Alert struct {
	ID        string    `json:"id"`
	Message   string    `json:"message"`
	Severity  Severity  `json:"severity"`
	CreatedAt time.Time `json:"created_at"`
}

// VoiceProfile describes a voice the backend can synthesize replies with
type VoiceProfile struct {
	ID          int    `json:"id"`
	Name        string `json:"name"`
	VoiceID     string `json:"voice_id"`
	Description string `json:"description"`
	Category    string `json:"category"`
	IsPremium   bool   `json:"is_premium"`
	Gender      string `json:"gender,omitempty"`
	AgeRange    string `json:"age_range,omitempty"`
	Accent      string `json:"accent,omitempty"`
	SampleAudio string `json:"sample_audio,omitempty"`
}

// MessageRecord is a message as stored and serialized by the backend
type MessageRecord struct {
	ID             int64    `json:"id"`
	Content        string   `json:"content"`
	ContentType    string   `json:"content_type,omitempty"`
	MessageType    Author   `json:"message_type,omitempty"`
	CreatedAt      string   `json:"created_at,omitempty"`
	VoiceFile      string   `json:"voice_file,omitempty"`
	VoiceDuration  float64  `json:"voice_duration,omitempty"`
	SentimentScore *float64 `json:"sentiment_score,omitempty"`
	VoiceID        string   `json:"voice_id,omitempty"`
}
