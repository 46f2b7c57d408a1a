package repositories

import "context"

// Responder generates the assistant reply for a conversation turn.
// The dev backend uses it; the real backend owns this pipeline.
type Responder interface {
	// Respond takes the conversation history and the new user text and returns the reply
	Respond(ctx context.Context, history []ChatMessage, text string) (ChatMessage, error)
}

// ChatMessage represents a single message in a conversation
type ChatMessage struct {
	Role           Role     `json:"role"`
	Content        string   `json:"content"`
	SentimentScore *float64 `json:"sentiment_score,omitempty"`
}

// Role defines the type of message sender
type Role string

const (
	UserRole      Role = "user"
	AssistantRole Role = "assistant"
	SystemRole    Role = "system"
)
