package devserver

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/maumcare/companion/domain/entities"
	"github.com/maumcare/companion/domain/repositories"
)

// WelcomeMessage opens every new conversation
const WelcomeMessage = "안녕하세요! 오늘 어떻게 지내고 계신가요? 무엇을 도와드릴까요?"

var (
	ErrConversationNotFound = errors.New("conversation not found")
	ErrForbidden            = errors.New("conversation belongs to another user")
)

// Conversation is the server-side record of one conversation
type Conversation struct {
	ID           string
	Owner        string
	Messages     []entities.MessageRecord
	CreatedAt    time.Time
	LastActiveAt time.Time
}

// MoodEntry is one submitted mood form
type MoodEntry struct {
	Owner      string
	Mood       entities.Mood
	Notes      string
	RecordedAt time.Time
}

// Store keeps conversations and moods in memory
type Store struct {
	mu            sync.RWMutex
	conversations map[string]*Conversation
	moods         []MoodEntry
	nextID        int64
	now           func() time.Time
}

// NewStore creates an empty store
func NewStore() *Store {
	return &Store{
		conversations: make(map[string]*Conversation),
		now:           time.Now,
	}
}

// Open returns the conversation, creating it with the welcome message on first use.
// A conversation is only visible to the user that created it.
func (s *Store) Open(id, owner string) (Conversation, error) {
	if id == "" {
		return Conversation{}, ErrConversationNotFound
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[id]
	if !ok {
		now := s.now()
		conv = &Conversation{ID: id, Owner: owner, CreatedAt: now, LastActiveAt: now}
		conv.Messages = append(conv.Messages, s.record(entities.MessageRecord{
			Content:     WelcomeMessage,
			ContentType: "text",
			MessageType: entities.AuthorAssistant,
		}))
		s.conversations[id] = conv
	}
	if conv.Owner != owner {
		return Conversation{}, ErrForbidden
	}
	return conv.snapshot(), nil
}

// Append stores a message and returns it with its id and timestamp
func (s *Store) Append(id string, rec entities.MessageRecord) (entities.MessageRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[id]
	if !ok {
		return entities.MessageRecord{}, ErrConversationNotFound
	}
	rec = s.record(rec)
	conv.Messages = append(conv.Messages, rec)
	conv.LastActiveAt = s.now()
	return rec, nil
}

// AttachVoice sets the voice file of a stored message
func (s *Store) AttachVoice(id string, messageID int64, voiceFile string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[id]
	if !ok {
		return
	}
	for i := range conv.Messages {
		if conv.Messages[i].ID == messageID {
			conv.Messages[i].VoiceFile = voiceFile
			return
		}
	}
}

// History returns the last limit messages in the shape the responder expects
func (s *Store) History(id string, limit int) []repositories.ChatMessage {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conv, ok := s.conversations[id]
	if !ok {
		return nil
	}
	msgs := conv.Messages
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}

	history := make([]repositories.ChatMessage, 0, len(msgs))
	for _, m := range msgs {
		role := repositories.UserRole
		if m.MessageType == entities.AuthorAssistant {
			role = repositories.AssistantRole
		}
		history = append(history, repositories.ChatMessage{Role: role, Content: m.Content})
	}
	return history
}

// RecordMood stores a mood entry
func (s *Store) RecordMood(owner string, mood entities.Mood, notes string) MoodEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry := MoodEntry{Owner: owner, Mood: mood, Notes: notes, RecordedAt: s.now()}
	s.moods = append(s.moods, entry)
	return entry
}

// Moods returns the owner's mood entries, oldest first
func (s *Store) Moods(owner string) []MoodEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []MoodEntry
	for _, m := range s.moods {
		if m.Owner == owner {
			out = append(out, m)
		}
	}
	return out
}

// Sentiments returns the scored assistant messages of the owner's conversations, oldest first
func (s *Store) Sentiments(owner string) []entities.MessageRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []entities.MessageRecord
	for _, conv := range s.conversations {
		if conv.Owner != owner {
			continue
		}
		for _, m := range conv.Messages {
			if m.SentimentScore != nil {
				out = append(out, m)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ExpireIdle drops conversations inactive for longer than maxIdle. It returns how many
// were removed and the voice files their messages referenced.
func (s *Store) ExpireIdle(maxIdle time.Duration) (int, []string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.now().Add(-maxIdle)
	removed := 0
	var voiceFiles []string
	for id, conv := range s.conversations {
		if !conv.LastActiveAt.Before(cutoff) {
			continue
		}
		for _, m := range conv.Messages {
			if m.VoiceFile != "" {
				voiceFiles = append(voiceFiles, m.VoiceFile)
			}
		}
		delete(s.conversations, id)
		removed++
	}
	return removed, voiceFiles
}

// record assigns id and timestamp; callers hold the lock
func (s *Store) record(rec entities.MessageRecord) entities.MessageRecord {
	s.nextID++
	rec.ID = s.nextID
	rec.CreatedAt = s.now().Format(time.RFC3339)
	return rec
}

func (c *Conversation) snapshot() Conversation {
	out := *c
	out.Messages = append([]entities.MessageRecord(nil), c.Messages...)
	return out
}
