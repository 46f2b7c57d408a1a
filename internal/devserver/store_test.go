package devserver

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/maumcare/companion/domain/entities"
	"github.com/maumcare/companion/domain/repositories"
)

func TestStoreOpen(t *testing.T) {
	store := NewStore()

	conv, err := store.Open("42", "7")
	require.NoError(t, err)
	require.Len(t, conv.Messages, 1)
	assert.Equal(t, WelcomeMessage, conv.Messages[0].Content)
	assert.Equal(t, entities.AuthorAssistant, conv.Messages[0].MessageType)

	_, err = store.Open("42", "8")
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = store.Open("", "7")
	assert.ErrorIs(t, err, ErrConversationNotFound)

	_, err = store.Append("missing", entities.MessageRecord{Content: "x"})
	assert.ErrorIs(t, err, ErrConversationNotFound)
}

func TestStoreHistory(t *testing.T) {
	store := NewStore()
	_, err := store.Open("42", DevUser)
	require.NoError(t, err)

	for _, content := range []string{"a", "b", "c"} {
		_, err := store.Append("42", entities.MessageRecord{Content: content, MessageType: entities.AuthorUser})
		require.NoError(t, err)
	}

	history := store.History("42", 2)
	require.Len(t, history, 2)
	assert.Equal(t, repositories.ChatMessage{Role: repositories.UserRole, Content: "b"}, history[0])
	assert.Equal(t, "c", history[1].Content)

	all := store.History("42", 0)
	require.Len(t, all, 4)
	assert.Equal(t, repositories.AssistantRole, all[0].Role)
}

func TestStoreSentimentsAndMoods(t *testing.T) {
	store := NewStore()
	_, err := store.Open("1", "7")
	require.NoError(t, err)
	_, err = store.Open("2", "8")
	require.NoError(t, err)

	score := -0.5
	_, err = store.Append("1", entities.MessageRecord{Content: "mine", MessageType: entities.AuthorAssistant, SentimentScore: &score})
	require.NoError(t, err)
	_, err = store.Append("2", entities.MessageRecord{Content: "theirs", MessageType: entities.AuthorAssistant, SentimentScore: &score})
	require.NoError(t, err)

	sentiments := store.Sentiments("7")
	require.Len(t, sentiments, 1)
	assert.Equal(t, "mine", sentiments[0].Content)

	store.RecordMood("7", entities.MoodGood, "walk")
	store.RecordMood("8", entities.MoodBad, "")
	moods := store.Moods("7")
	require.Len(t, moods, 1)
	assert.Equal(t, entities.MoodGood, moods[0].Mood)
	assert.Equal(t, "walk", moods[0].Notes)
}

func TestStoreExpireIdle(t *testing.T) {
	store := NewStore()
	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }

	_, err := store.Open("old", DevUser)
	require.NoError(t, err)
	rec, err := store.Append("old", entities.MessageRecord{Content: "hi", MessageType: entities.AuthorAssistant})
	require.NoError(t, err)
	store.AttachVoice("old", rec.ID, "/media/voice/response_2.mp3")

	now = now.Add(2 * time.Hour)
	_, err = store.Open("fresh", DevUser)
	require.NoError(t, err)

	removed, voiceFiles := store.ExpireIdle(time.Hour)
	assert.Equal(t, 1, removed)
	assert.Equal(t, []string{"/media/voice/response_2.mp3"}, voiceFiles)
	assert.Empty(t, store.History("old", 0))
	assert.NotEmpty(t, store.History("fresh", 0))
}

func TestSessionCleanupService(t *testing.T) {
	store := NewStore()
	media := NewMediaStore()
	_, err := store.Open("42", DevUser)
	require.NoError(t, err)
	rec, err := store.Append("42", entities.MessageRecord{Content: "hi", MessageType: entities.AuthorAssistant})
	require.NoError(t, err)
	voiceURL := media.Put("response_2.mp3", []byte("mp3"))
	store.AttachVoice("42", rec.ID, voiceURL)
	media.Put("sample.mp3", []byte("kept"))

	cleanup := NewSessionCleanupService(store, media, time.Nanosecond, 5*time.Millisecond, zap.NewNop())
	cleanup.Start()
	defer cleanup.Stop()

	assert.Eventually(t, func() bool {
		return len(store.History("42", 0)) == 0 && media.Len() == 1
	}, time.Second, 5*time.Millisecond)
	_, ok := media.Get("response_2.mp3")
	assert.False(t, ok)
}

func TestMediaStoreDelete(t *testing.T) {
	media := NewMediaStore()
	url := media.Put("response_1.mp3", []byte("a"))
	assert.Equal(t, "/media/voice/response_1.mp3", url)

	assert.Equal(t, 1, media.Delete(url, "/media/voice/missing.mp3", "elsewhere/response_1.mp3"))
	assert.Equal(t, 0, media.Len())
	assert.Equal(t, 0, media.Delete(url))
}
