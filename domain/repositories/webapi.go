package repositories

import (
	"context"

	"github.com/maumcare/companion/domain/entities"
)

// SendMessageResult is the response of the request/response message endpoint
type SendMessageResult struct {
	UserMessage      *entities.MessageRecord `json:"user_message,omitempty"`
	AssistantMessage entities.MessageRecord  `json:"assistant_message"`
	VoiceFile        string                  `json:"voice_file,omitempty"`
}

// ComfortEmailResult is the response of the comfort email action
type ComfortEmailResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// ConversationAPI is the HTTP fallback used when the realtime transport is unavailable
type ConversationAPI interface {
	SendMessage(ctx context.Context, conversationID, content, voiceID string) (*SendMessageResult, error)
}

// ComfortMailer triggers a comfort email for the signed-in user
type ComfortMailer interface {
	SendComfortEmail(ctx context.Context) (*ComfortEmailResult, error)
}

// MoodRecorder submits the mood form
type MoodRecorder interface {
	RecordMood(ctx context.Context, mood entities.Mood, notes string) error
}

// VoiceCatalog lists voice profiles and their samples
type VoiceCatalog interface {
	VoiceProfiles(ctx context.Context) ([]entities.VoiceProfile, error)
	VoiceSample(ctx context.Context, profileID int) (string, error)
}
