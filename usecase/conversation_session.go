// Package usecase holds the client-side conversation flow: sending text and voice,
// dispatching server frames, and the dashboard actions around it.
package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/maumcare/companion/domain/entities"
	"github.com/maumcare/companion/domain/repositories"
	"github.com/maumcare/companion/internal/audio"
	"github.com/maumcare/companion/internal/protocol"
)

var (
	// ErrVoiceRequiresConnection is returned when a voice message is sent without an open transport
	ErrVoiceRequiresConnection = errors.New("voice messages require an open connection")
	// ErrNoRecording is returned when there is no finished recording to send or play
	ErrNoRecording = errors.New("no recording available")
	// ErrNoRecorder is returned when the session was built without a capture device
	ErrNoRecorder = errors.New("no recorder configured")
)

// SessionDeps are the collaborators of a ConversationSession. API, Recorder and Player are optional.
type SessionDeps struct {
	API      repositories.ConversationAPI
	Recorder repositories.Recorder
	Player   repositories.AudioPlayer
	Log      repositories.MessageLog
	Alerts   repositories.AlertPresenter
	Messages Messages
}

// ConversationSession drives one conversation: it owns the transport, echoes user input
// into the transcript and turns server frames into transcript entries, alerts and playback.
type ConversationSession struct {
	api      repositories.ConversationAPI
	recorder repositories.Recorder
	player   repositories.AudioPlayer
	log      repositories.MessageLog
	alerts   repositories.AlertPresenter
	messages Messages
	logger   *zap.Logger

	// ctx bounds playback; canceled by Close
	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	session   *entities.Session
	transport repositories.Transport

	pending sync.WaitGroup
	playing sync.WaitGroup
}

var _ repositories.TransportHandler = (*ConversationSession)(nil)

// NewConversationSession creates a session for an existing conversation
func NewConversationSession(session *entities.Session, deps SessionDeps, logger *zap.Logger) (*ConversationSession, error) {
	if session == nil {
		return nil, errors.New("session is required")
	}
	if err := session.Validate(); err != nil {
		return nil, err
	}
	if deps.Log == nil || deps.Alerts == nil {
		return nil, errors.New("message log and alert presenter are required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if deps.Messages.ConnectionError == "" {
		deps.Messages = MessagesFor("")
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &ConversationSession{
		api:      deps.API,
		recorder: deps.Recorder,
		player:   deps.Player,
		log:      deps.Log,
		alerts:   deps.Alerts,
		messages: deps.Messages,
		logger:   logger.With(zap.String("conversationID", session.ConversationID)),
		ctx:      ctx,
		cancel:   cancel,
		session:  session,
	}, nil
}

// Connect attaches the realtime transport and opens it. On failure the session keeps
// working over the HTTP fallback.
func (s *ConversationSession) Connect(ctx context.Context, t repositories.Transport) error {
	s.mu.Lock()
	s.transport = t
	s.mu.Unlock()

	if err := t.Open(ctx, s.ConversationID()); err != nil {
		return fmt.Errorf("failed to open transport: %w", err)
	}
	return nil
}

// ConversationID returns the conversation this session belongs to
func (s *ConversationSession) ConversationID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session.ConversationID
}

// VoiceID returns the voice used for generated replies
func (s *ConversationSession) VoiceID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session.VoiceID
}

// SetVoice changes the reply voice; an empty id selects the default voice
func (s *ConversationSession) SetVoice(voiceID string) {
	s.mu.Lock()
	s.session.SetVoice(voiceID)
	s.mu.Unlock()
	s.logger.Debug("Voice selected", zap.String("voiceID", voiceID))
}

func (s *ConversationSession) openTransport() repositories.Transport {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session.Touch()
	if s.transport == nil || !s.transport.IsOpen() {
		return nil
	}
	return s.transport
}

// SendText echoes the text into the transcript and delivers it over the open transport,
// or over the HTTP endpoint otherwise. Blank text is ignored.
func (s *ConversationSession) SendText(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	s.log.Append(text, entities.AuthorUser)
	voiceID := s.VoiceID()

	if t := s.openTransport(); t != nil {
		err := t.Send(protocol.NewTextMessage(text, voiceID))
		if err == nil {
			return nil
		}
		s.logger.Warn("Realtime send failed, using HTTP", zap.Error(err))
	}

	s.fallback(ctx, text, voiceID)
	return nil
}

// fallback posts the message over HTTP in the background. The request outlives ctx.
func (s *ConversationSession) fallback(ctx context.Context, text, voiceID string) {
	if s.api == nil {
		s.logger.Error("No HTTP fallback configured")
		s.alerts.Show(s.messages.SendFailed, entities.SeverityDanger)
		return
	}

	placeholder := s.log.AppendLoading()
	ctx = context.WithoutCancel(ctx)
	conversationID := s.ConversationID()

	s.pending.Add(1)
	go func() {
		defer s.pending.Done()

		result, err := s.api.SendMessage(ctx, conversationID, text, voiceID)
		s.log.Remove(placeholder)
		if err != nil {
			s.logger.Error("Error sending message", zap.Error(err))
			s.alerts.Show(s.messages.SendFailed, entities.SeverityDanger)
			return
		}

		s.log.Append(result.AssistantMessage.Content, entities.AuthorAssistant)
		if result.VoiceFile != "" {
			s.play(result.VoiceFile)
		}
	}()
}

// SendVoice delivers a finished recording. Voice needs the realtime transport; without it
// nothing is sent and a danger alert is shown.
func (s *ConversationSession) SendVoice(ctx context.Context, artifact *entities.AudioArtifact) error {
	if artifact == nil || artifact.Size() == 0 {
		return ErrNoRecording
	}

	t := s.openTransport()
	if t == nil {
		s.logger.Warn("Voice message dropped, transport is not open", zap.Int("bytes", artifact.Size()))
		s.alerts.Show(s.messages.VoiceRequiresConnection, entities.SeverityDanger)
		return ErrVoiceRequiresConnection
	}

	if err := t.Send(protocol.NewVoiceMessage(artifact.DataURL(), s.VoiceID())); err != nil {
		s.logger.Warn("Voice message not delivered", zap.Error(err))
		s.alerts.Show(s.messages.VoiceRequiresConnection, entities.SeverityDanger)
		return fmt.Errorf("%w: %w", ErrVoiceRequiresConnection, err)
	}

	s.logger.Info("Voice message sent",
		zap.String("recordingID", artifact.ID),
		zap.Int("bytes", artifact.Size()),
		zap.Duration("duration", artifact.Duration))
	s.log.Append(s.messages.VoiceProcessing, entities.AuthorUser)
	return nil
}

// StartRecording opens the microphone. A denied or missing device is reported with a danger alert.
func (s *ConversationSession) StartRecording(ctx context.Context) error {
	if s.recorder == nil {
		s.alerts.Show(s.messages.MicrophoneUnavailable, entities.SeverityDanger)
		return ErrNoRecorder
	}

	err := s.recorder.Start(ctx)
	switch {
	case err == nil:
		s.logger.Debug("Recording started")
		return nil
	case errors.Is(err, audio.ErrRecordingInProgress):
		return err
	default:
		s.logger.Error("Error accessing microphone", zap.Error(err))
		s.alerts.Show(s.messages.MicrophoneUnavailable, entities.SeverityDanger)
		return err
	}
}

// StopRecording finishes the recording and sends it as a voice message
func (s *ConversationSession) StopRecording(ctx context.Context) error {
	if s.recorder == nil {
		return ErrNoRecorder
	}

	artifact, err := s.recorder.Stop()
	if err != nil {
		return err
	}
	return s.SendVoice(ctx, artifact)
}

// PlayRecording plays back the last finished recording
func (s *ConversationSession) PlayRecording(ctx context.Context) error {
	if s.recorder == nil {
		return ErrNoRecorder
	}
	artifact, ok := s.recorder.Artifact()
	if !ok {
		return ErrNoRecording
	}
	if s.player == nil {
		return errors.New("no audio player configured")
	}
	return s.player.PlayArtifact(ctx, artifact)
}

// Controls reports which recording actions are available
func (s *ConversationSession) Controls() entities.Controls {
	if s.recorder == nil {
		return entities.Controls{}
	}
	return s.recorder.Controls()
}

// Dispatch applies a server frame. Unknown frame types are ignored.
func (s *ConversationSession) Dispatch(msg protocol.Inbound) {
	switch msg.Type {
	case protocol.MessageTypeAssistantResponse:
		if msg.Assistant == nil {
			return
		}
		s.log.Append(msg.Assistant.Content, entities.AuthorAssistant)
		if msg.Assistant.VoiceURL != "" {
			s.play(msg.Assistant.VoiceURL)
		}

	case protocol.MessageTypeError:
		s.logger.Warn("Server reported an error", zap.String("message", msg.Error))
		s.alerts.Show(msg.Error, entities.SeverityDanger)

	default:
		s.logger.Debug("Ignoring frame", zap.String("type", string(msg.Type)))
	}
}

// play starts playback in the background so a slow download never holds up frame delivery.
// Close cancels it and waits for it.
func (s *ConversationSession) play(source string) {
	if s.player == nil || s.ctx.Err() != nil {
		return
	}
	s.playing.Add(1)
	go func() {
		defer s.playing.Done()
		if err := s.player.Play(s.ctx, source); err != nil && s.ctx.Err() == nil {
			s.logger.Warn("Error playing audio", zap.String("source", source), zap.Error(err))
		}
	}()
}

// OnOpen implements repositories.TransportHandler
func (s *ConversationSession) OnOpen() {
	s.logger.Info("Connected")
}

// OnMessage implements repositories.TransportHandler
func (s *ConversationSession) OnMessage(msg protocol.Inbound) {
	s.Dispatch(msg)
}

// OnError implements repositories.TransportHandler
func (s *ConversationSession) OnError(err error) {
	s.logger.Error("Connection error", zap.Error(err))
	s.alerts.Show(s.messages.ConnectionError, entities.SeverityDanger)
}

// OnClose implements repositories.TransportHandler
func (s *ConversationSession) OnClose(err error) {
	if err != nil {
		s.logger.Info("Connection closed", zap.Error(err))
		return
	}
	s.logger.Info("Connection closed")
}

// Wait blocks until every pending HTTP fallback request has finished
func (s *ConversationSession) Wait() {
	s.pending.Wait()
}

// Close stops playback, tears down the transport and the recorder, and waits for
// playback goroutines to exit
func (s *ConversationSession) Close() error {
	s.cancel()

	s.mu.Lock()
	t := s.transport
	s.mu.Unlock()

	var errs []error
	if t != nil {
		errs = append(errs, t.Close())
	}
	if c, ok := s.recorder.(io.Closer); ok {
		errs = append(errs, c.Close())
	}
	s.playing.Wait()
	return errors.Join(errs...)
}
