package usecase

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/maumcare/companion/domain/entities"
	"github.com/maumcare/companion/domain/repositories"
	"github.com/maumcare/companion/internal/audio"
	"github.com/maumcare/companion/internal/presenter"
	"github.com/maumcare/companion/internal/protocol"
)

type fakeTransport struct {
	mu      sync.Mutex
	open    bool
	sendErr error
	sent    []protocol.Outbound
	closed  bool
}

func (f *fakeTransport) Open(ctx context.Context, conversationID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.open = true
	return nil
}

func (f *fakeTransport) Send(msg protocol.Outbound) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.open {
		return errors.New("transport is not open")
	}
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, msg)
	return nil
}

func (f *fakeTransport) State() entities.TransportState {
	if f.IsOpen() {
		return entities.TransportOpen
	}
	return entities.TransportClosed
}

func (f *fakeTransport) IsOpen() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.open
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.open = false
	f.closed = true
	return nil
}

func (f *fakeTransport) frames() []protocol.Outbound {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]protocol.Outbound(nil), f.sent...)
}

type sendCall struct {
	conversationID, content, voiceID string
	ctxErr                           error
}

type fakeAPI struct {
	mu     sync.Mutex
	result *repositories.SendMessageResult
	err    error
	calls  []sendCall
}

func (f *fakeAPI) SendMessage(ctx context.Context, conversationID, content, voiceID string) (*repositories.SendMessageResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, sendCall{conversationID, content, voiceID, ctx.Err()})
	return f.result, f.err
}

func (f *fakeAPI) sendCalls() []sendCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sendCall(nil), f.calls...)
}

type fakePlayer struct {
	mu        sync.Mutex
	played    []string
	artifacts []*entities.AudioArtifact
}

func (f *fakePlayer) Play(ctx context.Context, source string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.played = append(f.played, source)
	return nil
}

func (f *fakePlayer) PlayArtifact(ctx context.Context, artifact *entities.AudioArtifact) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.artifacts = append(f.artifacts, artifact)
	return nil
}

func (f *fakePlayer) sources() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.played...)
}

// chunkDevice hands out a stream that already holds its chunks
type chunkDevice struct {
	chunks [][]byte
	err    error
}

func (d *chunkDevice) Open(ctx context.Context) (repositories.CaptureStream, error) {
	if d.err != nil {
		return nil, d.err
	}
	s := &chunkStream{ch: make(chan []byte, len(d.chunks))}
	for _, c := range d.chunks {
		s.ch <- c
	}
	return s, nil
}

type chunkStream struct {
	ch   chan []byte
	once sync.Once
}

func (s *chunkStream) Chunks() <-chan []byte { return s.ch }

func (s *chunkStream) Close() error {
	s.once.Do(func() { close(s.ch) })
	return nil
}

type fixture struct {
	session   *ConversationSession
	transport *fakeTransport
	api       *fakeAPI
	player    *fakePlayer
	log       *presenter.MessageLog
	alerts    *presenter.AlertPresenter
}

func newFixture(t *testing.T, device repositories.CaptureDevice) *fixture {
	t.Helper()
	opts := presenter.Options{Out: io.Discard, Color: "never", DismissAfter: time.Hour}
	f := &fixture{
		transport: &fakeTransport{},
		api:       &fakeAPI{},
		player:    &fakePlayer{},
		log:       presenter.NewMessageLog(opts),
		alerts:    presenter.NewAlertPresenter(opts),
	}
	t.Cleanup(f.alerts.Close)

	deps := SessionDeps{
		API:      f.api,
		Player:   f.player,
		Log:      f.log,
		Alerts:   f.alerts,
		Messages: MessagesFor("ko"),
	}
	if device != nil {
		deps.Recorder = audio.NewRecorder(device, zap.NewNop())
	}

	session, err := NewConversationSession(entities.NewSession("42", ""), deps, zap.NewNop())
	require.NoError(t, err)
	f.session = session
	return f
}

func (f *fixture) connect(t *testing.T) {
	t.Helper()
	require.NoError(t, f.session.Connect(t.Context(), f.transport))
}

func contents(entries []entities.Entry) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, string(e.Author)+":"+e.Content)
	}
	return out
}

func TestNewConversationSession(t *testing.T) {
	log := presenter.NewMessageLog(presenter.Options{Out: io.Discard})
	alerts := presenter.NewAlertPresenter(presenter.Options{Out: io.Discard})
	defer alerts.Close()

	_, err := NewConversationSession(entities.NewSession("", ""), SessionDeps{Log: log, Alerts: alerts}, nil)
	assert.Error(t, err)

	_, err = NewConversationSession(entities.NewSession("42", ""), SessionDeps{}, nil)
	assert.Error(t, err)

	s, err := NewConversationSession(entities.NewSession("42", ""), SessionDeps{Log: log, Alerts: alerts}, nil)
	require.NoError(t, err)
	assert.Equal(t, entities.DefaultVoiceID, s.VoiceID())
	assert.Equal(t, "42", s.ConversationID())
}

func TestSendTextOverTransport(t *testing.T) {
	f := newFixture(t, nil)
	f.connect(t)

	require.NoError(t, f.session.SendText(t.Context(), "hello"))

	assert.Equal(t, []string{"user:hello"}, contents(f.log.Entries()))
	frames := f.transport.frames()
	require.Len(t, frames, 1)
	assert.Equal(t, &protocol.TextMessage{
		BaseMessage:   protocol.BaseMessage{Type: protocol.MessageTypeTextMessage},
		Message:       "hello",
		VoiceID:       "default",
		GenerateVoice: true,
	}, frames[0])
	assert.Empty(t, f.api.sendCalls())
}

func TestSendTextUsesSelectedVoice(t *testing.T) {
	f := newFixture(t, nil)
	f.connect(t)

	f.session.SetVoice("calm")
	require.NoError(t, f.session.SendText(t.Context(), "  hi  "))
	f.session.SetVoice("")

	frames := f.transport.frames()
	require.Len(t, frames, 1)
	msg := frames[0].(*protocol.TextMessage)
	assert.Equal(t, "hi", msg.Message)
	assert.Equal(t, "calm", msg.VoiceID)
	assert.Equal(t, entities.DefaultVoiceID, f.session.VoiceID())
}

func TestSendTextBlankIsNoop(t *testing.T) {
	f := newFixture(t, nil)
	f.connect(t)

	for _, text := range []string{"", "   ", "\n\t"} {
		require.NoError(t, f.session.SendText(t.Context(), text))
	}
	f.session.Wait()

	assert.Empty(t, f.log.Entries())
	assert.Empty(t, f.transport.frames())
	assert.Empty(t, f.api.sendCalls())
}

func TestSendTextFallback(t *testing.T) {
	f := newFixture(t, nil)
	f.api.result = &repositories.SendMessageResult{
		AssistantMessage: entities.MessageRecord{Content: "반가워요"},
		VoiceFile:        "/media/voice/response_2.mp3",
	}

	ctx, cancel := context.WithCancel(t.Context())
	require.NoError(t, f.session.SendText(ctx, "hello"))
	cancel()

	// echo and placeholder are visible before the reply arrives
	entries := f.log.Entries()
	require.NotEmpty(t, entries)
	assert.Equal(t, "hello", entries[0].Content)

	f.session.Wait()

	assert.Equal(t, []string{"user:hello", "assistant:반가워요"}, contents(f.log.Entries()))
	for _, e := range f.log.Entries() {
		assert.False(t, e.Loading)
	}

	calls := f.api.sendCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, sendCall{conversationID: "42", content: "hello", voiceID: "default"}, calls[0])
	require.NoError(t, f.session.Close())
	assert.Equal(t, []string{"/media/voice/response_2.mp3"}, f.player.sources())
	assert.Empty(t, f.alerts.Active())
}

func TestSendTextFallbackFailure(t *testing.T) {
	f := newFixture(t, nil)
	f.api.err = errors.New("status 500")

	require.NoError(t, f.session.SendText(t.Context(), "hello"))
	f.session.Wait()

	assert.Equal(t, []string{"user:hello"}, contents(f.log.Entries()))
	alerts := f.alerts.Active()
	require.Len(t, alerts, 1)
	assert.Equal(t, MessagesFor("ko").SendFailed, alerts[0].Message)
	assert.Equal(t, entities.SeverityDanger, alerts[0].Severity)
}

func TestSendTextFallsBackWhenSendFails(t *testing.T) {
	f := newFixture(t, nil)
	f.connect(t)
	f.transport.sendErr = errors.New("transport send buffer full")
	f.api.result = &repositories.SendMessageResult{AssistantMessage: entities.MessageRecord{Content: "ok"}}

	require.NoError(t, f.session.SendText(t.Context(), "hello"))
	f.session.Wait()

	assert.Equal(t, []string{"user:hello", "assistant:ok"}, contents(f.log.Entries()))
	assert.Len(t, f.api.sendCalls(), 1)
}

func TestDispatch(t *testing.T) {
	t.Run("assistant response without voice", func(t *testing.T) {
		f := newFixture(t, nil)
		f.session.Dispatch(protocol.Inbound{
			Type:      protocol.MessageTypeAssistantResponse,
			Assistant: &protocol.AssistantMessage{Content: "hi there"},
		})
		assert.Equal(t, []string{"assistant:hi there"}, contents(f.log.Entries()))
		assert.Empty(t, f.player.sources())
	})

	t.Run("assistant response with voice", func(t *testing.T) {
		f := newFixture(t, nil)
		f.session.OnMessage(protocol.Inbound{
			Type:      protocol.MessageTypeAssistantResponse,
			Assistant: &protocol.AssistantMessage{Content: "hi", VoiceURL: "/media/voice/a.mp3"},
		})
		require.NoError(t, f.session.Close())
		assert.Equal(t, []string{"/media/voice/a.mp3"}, f.player.sources())
	})

	t.Run("error frame", func(t *testing.T) {
		f := newFixture(t, nil)
		f.log.Append("before", entities.AuthorUser)

		in, err := protocol.Decode([]byte(`{"type":"error","message":"boom"}`))
		require.NoError(t, err)
		f.session.Dispatch(in)

		alerts := f.alerts.Active()
		require.Len(t, alerts, 1)
		assert.Equal(t, "boom", alerts[0].Message)
		assert.Equal(t, entities.SeverityDanger, alerts[0].Severity)
		assert.Equal(t, []string{"user:before"}, contents(f.log.Entries()))
	})

	t.Run("unknown frames", func(t *testing.T) {
		f := newFixture(t, nil)
		for _, raw := range []string{
			`{"type":"pong"}`,
			`{"type":"connection_established","message":"Connected to voice conversation"}`,
			`{"type":"voice_chunk_received"}`,
		} {
			in, err := protocol.Decode([]byte(raw))
			require.NoError(t, err)
			f.session.Dispatch(in)
		}
		assert.Empty(t, f.log.Entries())
		assert.Empty(t, f.alerts.Active())
	})
}

func TestSendVoice(t *testing.T) {
	artifact := &entities.AudioArtifact{ID: "rec", MIMEType: entities.MIMETypeWebM, Data: []byte("webm")}

	t.Run("open transport", func(t *testing.T) {
		f := newFixture(t, nil)
		f.connect(t)

		require.NoError(t, f.session.SendVoice(t.Context(), artifact))

		frames := f.transport.frames()
		require.Len(t, frames, 1)
		msg := frames[0].(*protocol.VoiceMessage)
		assert.Equal(t, protocol.MessageTypeVoiceEnd, msg.Type)
		assert.Equal(t, "data:audio/webm;base64,d2VibQ==", msg.AudioData)
		assert.Equal(t, "default", msg.VoiceID)
		assert.Equal(t, []string{"user:" + MessagesFor("ko").VoiceProcessing}, contents(f.log.Entries()))
	})

	t.Run("closed transport", func(t *testing.T) {
		f := newFixture(t, nil)
		f.connect(t)
		require.NoError(t, f.transport.Close())

		err := f.session.SendVoice(t.Context(), artifact)
		assert.ErrorIs(t, err, ErrVoiceRequiresConnection)
		assert.Empty(t, f.transport.frames())
		assert.Empty(t, f.log.Entries())

		alerts := f.alerts.Active()
		require.Len(t, alerts, 1)
		assert.Equal(t, entities.SeverityDanger, alerts[0].Severity)
	})

	t.Run("no transport", func(t *testing.T) {
		f := newFixture(t, nil)
		assert.ErrorIs(t, f.session.SendVoice(t.Context(), artifact), ErrVoiceRequiresConnection)
		assert.Empty(t, f.api.sendCalls())
	})

	t.Run("empty recording", func(t *testing.T) {
		f := newFixture(t, nil)
		f.connect(t)
		assert.ErrorIs(t, f.session.SendVoice(t.Context(), &entities.AudioArtifact{}), ErrNoRecording)
		assert.Empty(t, f.transport.frames())
	})
}

func TestRecordingFlow(t *testing.T) {
	f := newFixture(t, &chunkDevice{chunks: [][]byte{[]byte("we"), []byte("bm")}})
	f.connect(t)

	controls := f.session.Controls()
	assert.True(t, controls.RecordEnabled)
	assert.False(t, controls.PlayEnabled)
	assert.ErrorIs(t, f.session.PlayRecording(t.Context()), ErrNoRecording)

	require.NoError(t, f.session.StartRecording(t.Context()))
	assert.True(t, f.session.Controls().StopEnabled)
	assert.ErrorIs(t, f.session.StartRecording(t.Context()), audio.ErrRecordingInProgress)

	require.NoError(t, f.session.StopRecording(t.Context()))
	assert.True(t, f.session.Controls().PlayEnabled)

	frames := f.transport.frames()
	require.Len(t, frames, 1)
	assert.Equal(t, "data:audio/webm;base64,d2VibQ==", frames[0].(*protocol.VoiceMessage).AudioData)

	require.NoError(t, f.session.PlayRecording(t.Context()))
	require.Len(t, f.player.artifacts, 1)
	assert.Equal(t, []byte("webm"), f.player.artifacts[0].Data)

	assert.ErrorIs(t, f.session.StopRecording(t.Context()), audio.ErrNotRecording)
	assert.Empty(t, f.alerts.Active())
}

func TestStartRecordingPermissionDenied(t *testing.T) {
	f := newFixture(t, &chunkDevice{err: &audio.PermissionError{Device: "pulse", Err: errors.New("denied")}})

	err := f.session.StartRecording(t.Context())
	var perr *audio.PermissionError
	assert.ErrorAs(t, err, &perr)

	alerts := f.alerts.Active()
	require.Len(t, alerts, 1)
	assert.Equal(t, MessagesFor("ko").MicrophoneUnavailable, alerts[0].Message)
	assert.Equal(t, entities.SeverityDanger, alerts[0].Severity)
	assert.True(t, f.session.Controls().RecordEnabled)
}

func TestTransportEvents(t *testing.T) {
	f := newFixture(t, nil)

	f.session.OnOpen()
	f.session.OnClose(nil)
	assert.Empty(t, f.alerts.Active())

	f.session.OnError(errors.New("connection reset"))
	alerts := f.alerts.Active()
	require.Len(t, alerts, 1)
	assert.True(t, strings.HasPrefix(alerts[0].Message, "연결 오류"))
}

func TestClose(t *testing.T) {
	f := newFixture(t, nil)
	f.connect(t)

	require.NoError(t, f.session.Close())
	assert.True(t, f.transport.closed)
	assert.False(t, f.transport.IsOpen())
}

// stalledPlayer never finishes a download until its context is canceled
type stalledPlayer struct {
	started chan string
}

func (p *stalledPlayer) Play(ctx context.Context, source string) error {
	p.started <- source
	<-ctx.Done()
	return ctx.Err()
}

func (p *stalledPlayer) PlayArtifact(ctx context.Context, artifact *entities.AudioArtifact) error {
	return nil
}

func TestStalledPlaybackDoesNotBlock(t *testing.T) {
	opts := presenter.Options{Out: io.Discard, Color: "never", DismissAfter: time.Hour}
	alerts := presenter.NewAlertPresenter(opts)
	t.Cleanup(alerts.Close)
	player := &stalledPlayer{started: make(chan string, 2)}

	session, err := NewConversationSession(entities.NewSession("42", ""), SessionDeps{
		Player: player,
		Log:    presenter.NewMessageLog(opts),
		Alerts: alerts,
	}, zap.NewNop())
	require.NoError(t, err)
	transport := &fakeTransport{}
	require.NoError(t, session.Connect(t.Context(), transport))

	dispatched := make(chan struct{})
	go func() {
		defer close(dispatched)
		session.OnMessage(protocol.Inbound{
			Type:      protocol.MessageTypeAssistantResponse,
			Assistant: &protocol.AssistantMessage{Content: "hi", VoiceURL: "/media/voice/slow.mp3"},
		})
		session.OnMessage(protocol.Inbound{Type: protocol.MessageTypeError, Error: "next"})
	}()

	select {
	case <-dispatched:
	case <-time.After(2 * time.Second):
		t.Fatal("dispatch waited for the voice download")
	}
	assert.Equal(t, "/media/voice/slow.mp3", <-player.started)
	require.Len(t, alerts.Active(), 1)

	closed := make(chan error, 1)
	go func() { closed <- session.Close() }()
	select {
	case err := <-closed:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Close waited for the voice download")
	}
	assert.True(t, transport.closed)
}
