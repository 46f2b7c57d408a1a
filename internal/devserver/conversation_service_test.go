package devserver

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/maumcare/companion/adapters/mock"
	"github.com/maumcare/companion/domain/repositories"
)

// plainResponder answers without a sentiment score, like the Gemini responder
type plainResponder struct {
	history []repositories.ChatMessage
}

func (r *plainResponder) Respond(ctx context.Context, history []repositories.ChatMessage, text string) (repositories.ChatMessage, error) {
	r.history = history
	return repositories.ChatMessage{Role: repositories.AssistantRole, Content: "echo: " + text}, nil
}

type brokenSynthesizer struct{}

func (brokenSynthesizer) SynthesizeAudio(ctx context.Context, text, voiceID string) ([]byte, error) {
	return nil, errors.New("quota exceeded")
}

func TestProcessTextScoresUnscoredReplies(t *testing.T) {
	logger := zaptest.NewLogger(t)
	store := NewStore()
	_, err := store.Open("42", DevUser)
	require.NoError(t, err)

	responder := &plainResponder{}
	service := NewConversationService(mock.NewTranscriber(logger), responder, brokenSynthesizer{}, store, NewMediaStore(), 0, logger)

	reply, err := service.ProcessText(t.Context(), "42", "  너무 힘들어요 ", "text", "", true)
	require.NoError(t, err)

	assert.Equal(t, "너무 힘들어요", reply.User.Content)
	assert.Equal(t, "echo: 너무 힘들어요", reply.Assistant.Content)
	require.NotNil(t, reply.Assistant.SentimentScore)
	assert.Equal(t, mock.Sentiment("너무 힘들어요"), *reply.Assistant.SentimentScore)

	// synthesis failure keeps the text reply
	assert.Empty(t, reply.VoiceURL)
	assert.Empty(t, reply.Assistant.VoiceFile)

	// the responder sees the welcome message and the new user turn
	require.Len(t, responder.history, 2)
	assert.Equal(t, "너무 힘들어요", responder.history[1].Content)

	_, err = service.ProcessText(t.Context(), "42", "   ", "text", "", false)
	assert.ErrorIs(t, err, ErrEmptyMessage)
}
