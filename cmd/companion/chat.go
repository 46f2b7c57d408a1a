package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/atotto/clipboard"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/maumcare/companion/domain/entities"
	"github.com/maumcare/companion/internal/audio"
	"github.com/maumcare/companion/internal/page"
	"github.com/maumcare/companion/internal/presenter"
	"github.com/maumcare/companion/internal/transport"
	"github.com/maumcare/companion/usecase"
)

// errQuit ends the chat loop without reporting an error
var errQuit = errors.New("quit")

const chatHelp = `Type a message and press enter. Commands:
  /record         start recording
  /stop           stop recording and send it
  /play           play the last recording
  /voice [id]     show or change the reply voice
  /copy           copy the last reply to the clipboard
  /quit           leave the conversation`

func newChatCommand(a *app) *cobra.Command {
	var voiceID string

	cmd := &cobra.Command{
		Use:   "chat [conversation-id]",
		Short: "Talk with the companion in a conversation",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			conversationID := a.cfg.Session.ConversationID
			if len(args) == 1 {
				conversationID = args[0]
			}
			if conversationID == "" {
				return errors.New("conversation id is required")
			}
			return a.runChat(cmd.Context(), conversationID, voiceID, cmd.InOrStdin())
		},
	}
	cmd.Flags().StringVar(&voiceID, "voice", "", "reply voice, defaults to the page selection")
	return cmd
}

func (a *app) runChat(ctx context.Context, conversationID, voiceID string, in io.Reader) error {
	client, err := a.client()
	if err != nil {
		return err
	}

	log := presenter.NewMessageLog(a.presenterOptions())
	alerts := presenter.NewAlertPresenter(a.presenterOptions())
	defer alerts.Close()

	p, err := a.loadPage(ctx, client, "/conversations/"+url.PathEscape(conversationID)+"/")
	if err != nil {
		a.logger.Warn("Conversation page unavailable", zap.Error(err))
		p = &page.Page{}
	}
	for _, m := range p.Messages {
		log.Append(m.Content, m.Author)
	}
	if voiceID == "" {
		voiceID = p.SelectedVoice()
	}
	if voiceID == "" {
		voiceID = a.cfg.Session.VoiceID
	}

	player, err := a.player(client)
	if err != nil {
		return err
	}
	recorder := audio.NewRecorder(audio.NewCommandDevice(a.cfg.Audio.CaptureCommand, a.logger), a.logger)

	session, err := usecase.NewConversationSession(entities.NewSession(conversationID, voiceID), usecase.SessionDeps{
		API:      client,
		Recorder: recorder,
		Player:   player,
		Log:      log,
		Alerts:   alerts,
		Messages: a.messages(),
	}, a.logger)
	if err != nil {
		return err
	}

	wsBase, err := a.cfg.WebSocketBase()
	if err != nil {
		return err
	}
	t, err := transport.NewWebSocketTransport(transport.Config{
		BaseURL:      wsBase,
		Header:       client.Header(),
		Jar:          client.Jar(),
		PingInterval: a.cfg.Transport.PingInterval.ToDuration(),
		WriteTimeout: a.cfg.Transport.WriteTimeout.ToDuration(),
		DialTimeout:  a.cfg.Transport.DialTimeout.ToDuration(),
		MaxFrameSize: a.cfg.Transport.MaxFrameSize,
		Reconnect: transport.ReconnectPolicy{
			MaxAttempts:     a.cfg.Transport.Reconnect.MaxAttempts,
			InitialInterval: a.cfg.Transport.Reconnect.InitialInterval.ToDuration(),
			MaxInterval:     a.cfg.Transport.Reconnect.MaxInterval.ToDuration(),
		},
	}, session, a.logger)
	if err != nil {
		return err
	}
	if err := session.Connect(ctx, t); err != nil {
		// messages still go out over HTTP
		a.logger.Warn("Realtime connection unavailable", zap.Error(err))
	}

	fmt.Fprintln(a.out, chatHelp)

	lines := make(chan string)
	go scanLines(in, lines)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.chatLoop(gctx, session, log, p, lines)
	})
	g.Go(func() error {
		<-gctx.Done()
		session.Wait()
		return session.Close()
	})

	err = g.Wait()
	if errors.Is(err, errQuit) || errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func scanLines(in io.Reader, lines chan<- string) {
	defer close(lines)
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		lines <- scanner.Text()
	}
}

// chatLoop returns errQuit when the user leaves or input ends
func (a *app) chatLoop(ctx context.Context, session *usecase.ConversationSession, log *presenter.MessageLog, p *page.Page, lines <-chan string) error {
	for {
		var line string
		select {
		case <-ctx.Done():
			return ctx.Err()
		case l, ok := <-lines:
			if !ok {
				return errQuit
			}
			line = l
		}

		name, arg, isCommand := parseCommand(line)
		if !isCommand {
			if err := session.SendText(ctx, line); err != nil {
				a.logger.Warn("Send failed", zap.Error(err))
			}
			continue
		}

		var err error
		switch name {
		case "quit", "exit":
			return errQuit
		case "help":
			fmt.Fprintln(a.out, chatHelp)
		case "record":
			err = session.StartRecording(ctx)
		case "stop":
			err = session.StopRecording(ctx)
		case "play":
			err = session.PlayRecording(ctx)
		case "voice":
			if arg == "" {
				fmt.Fprintf(a.out, "voice: %s\n", session.VoiceID())
				for _, o := range p.VoiceOptions {
					fmt.Fprintf(a.out, "  %s  %s\n", o.Value, o.Label)
				}
				break
			}
			session.SetVoice(arg)
		case "copy":
			reply, ok := log.LastAssistant()
			if !ok {
				break
			}
			err = clipboard.WriteAll(reply)
		default:
			err = fmt.Errorf("unknown command /%s", name)
		}
		if err != nil {
			fmt.Fprintln(a.out, "!", err)
		}
	}
}

// parseCommand splits "/voice calm" into ("voice", "calm")
func parseCommand(line string) (name, arg string, ok bool) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "/") || len(line) == 1 {
		return "", "", false
	}
	name, arg, _ = strings.Cut(line[1:], " ")
	return strings.ToLower(name), strings.TrimSpace(arg), true
}
