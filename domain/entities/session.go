package entities

import (
	"errors"
	"time"
)

// DefaultVoiceID is used whenever no voice has been selected
const DefaultVoiceID = "default"

// TransportState represents the state of the realtime connection of a session
type TransportState int32

const (
	TransportClosed TransportState = iota
	TransportConnecting
	TransportOpen
	TransportErroring
)

// String returns the lowercase name of the state
func (s TransportState) String() string {
	switch s {
	case TransportClosed:
		return "closed"
	case TransportConnecting:
		return "connecting"
	case TransportOpen:
		return "open"
	case TransportErroring:
		return "erroring"
	default:
		return "unknown"
	}
}

// Session represents a client-side conversation session with the backend
type Session struct {
	ConversationID string    `json:"conversation_id" yaml:"conversation_id"`
	VoiceID        string    `json:"voice_id" yaml:"voice_id"`
	CreatedAt      time.Time `json:"created_at" yaml:"-"`
	LastActiveAt   time.Time `json:"last_active_at" yaml:"-"`
}

// NewSession creates a new session for a conversation
func NewSession(conversationID, voiceID string) *Session {
	now := time.Now()
	s := &Session{
		ConversationID: conversationID,
		CreatedAt:      now,
		LastActiveAt:   now,
	}
	s.SetVoice(voiceID)
	return s
}

// SetVoice selects the voice used for generated replies. An empty id resets to the default voice.
func (s *Session) SetVoice(voiceID string) {
	if voiceID == "" {
		voiceID = DefaultVoiceID
	}
	s.VoiceID = voiceID
}

// Touch updates the last active timestamp
func (s *Session) Touch() {
	s.LastActiveAt = time.Now()
}

// IdleFor returns how long the session has been inactive
func (s *Session) IdleFor() time.Duration {
	return time.Since(s.LastActiveAt)
}

// Validate validates the session data
func (s *Session) Validate() error {
	if s.ConversationID == "" {
		return errors.New("conversation_id is required")
	}
	if s.VoiceID == "" {
		return errors.New("voice_id is required")
	}
	return nil
}
