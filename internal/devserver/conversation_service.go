package devserver

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/maumcare/companion/adapters/mock"
	"github.com/maumcare/companion/domain/entities"
	"github.com/maumcare/companion/domain/repositories"
	"github.com/maumcare/companion/internal/protocol"
)

// ErrEmptyMessage is returned for blank message content
var ErrEmptyMessage = errors.New("message content is required")

// Reply is the outcome of one conversation turn
type Reply struct {
	User      entities.MessageRecord
	Assistant entities.MessageRecord
	// VoiceURL is empty when no voice was requested or synthesis failed
	VoiceURL string
}

// ConversationService orchestrates the conversation flow: transcription,
// response generation and voice synthesis
type ConversationService struct {
	speechToText repositories.SpeechToText
	responder    repositories.Responder
	textToSpeech repositories.TextToSpeech
	store        *Store
	media        *MediaStore
	historyLimit int
	logger       *zap.Logger
}

// NewConversationService creates a new conversation service
func NewConversationService(
	stt repositories.SpeechToText,
	responder repositories.Responder,
	tts repositories.TextToSpeech,
	store *Store,
	media *MediaStore,
	historyLimit int,
	logger *zap.Logger,
) *ConversationService {
	if historyLimit <= 0 {
		historyLimit = 20
	}
	return &ConversationService{
		speechToText: stt,
		responder:    responder,
		textToSpeech: tts,
		store:        store,
		media:        media,
		historyLimit: historyLimit,
		logger:       logger,
	}
}

// ProcessText stores the user message, generates the reply and optionally voices it
func (s *ConversationService) ProcessText(ctx context.Context, conversationID, text, contentType, voiceID string, generateVoice bool) (*Reply, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyMessage
	}
	if voiceID == "" {
		voiceID = entities.DefaultVoiceID
	}

	user, err := s.store.Append(conversationID, entities.MessageRecord{
		Content:     text,
		ContentType: contentType,
		MessageType: entities.AuthorUser,
	})
	if err != nil {
		return nil, err
	}

	history := s.store.History(conversationID, s.historyLimit)
	response, err := s.responder.Respond(ctx, history, text)
	if err != nil {
		return nil, fmt.Errorf("response generation failed: %w", err)
	}

	if response.SentimentScore == nil {
		// responders without their own scoring get the keyword heuristic
		score := mock.Sentiment(text)
		response.SentimentScore = &score
	}

	s.logger.Info("AI response generated",
		zap.String("conversationID", conversationID),
		zap.Int("historyLen", len(history)))

	assistant, err := s.store.Append(conversationID, entities.MessageRecord{
		Content:        response.Content,
		ContentType:    "text",
		MessageType:    entities.AuthorAssistant,
		SentimentScore: response.SentimentScore,
		VoiceID:        voiceID,
	})
	if err != nil {
		return nil, err
	}

	reply := &Reply{User: user, Assistant: assistant}
	if !generateVoice {
		return reply, nil
	}

	audio, err := s.textToSpeech.SynthesizeAudio(ctx, response.Content, voiceID)
	if err != nil {
		// the text reply still stands without audio
		s.logger.Warn("Text-to-speech failed",
			zap.String("conversationID", conversationID),
			zap.Error(err))
		return reply, nil
	}

	reply.VoiceURL = s.media.Put(fmt.Sprintf("response_%d.mp3", assistant.ID), audio)
	reply.Assistant.VoiceFile = reply.VoiceURL
	s.store.AttachVoice(conversationID, assistant.ID, reply.VoiceURL)

	s.logger.Info("TTS completed", zap.Int("audioSize", len(audio)))
	return reply, nil
}

// ProcessVoice transcribes a complete recording and answers it like a text message
func (s *ConversationService) ProcessVoice(ctx context.Context, conversationID, audioData, voiceID string) (*Reply, error) {
	audio, mime, err := protocol.DecodeAudio(audioData)
	if err != nil {
		return nil, err
	}
	if mime == "" {
		mime = entities.MIMETypeWebM
	}

	transcription, err := s.speechToText.TranscribeAudio(ctx, audio, repositories.AudioConfig{
		MIMEType: mime,
		Language: "ko-KR",
	})
	if err != nil {
		return nil, fmt.Errorf("transcription failed: %w", err)
	}

	s.logger.Info("Transcription completed",
		zap.String("conversationID", conversationID),
		zap.Int("audioSize", len(audio)))

	return s.ProcessText(ctx, conversationID, transcription, "voice", voiceID, true)
}

// Sample synthesizes the sample clip of a voice
func (s *ConversationService) Sample(ctx context.Context, voiceID string) ([]byte, error) {
	return s.textToSpeech.SynthesizeAudio(ctx, WelcomeMessage, voiceID)
}
