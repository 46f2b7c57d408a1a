package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/maumcare/companion/adapters/llm"
	"github.com/maumcare/companion/adapters/stt"
	"github.com/maumcare/companion/adapters/tts"
	"github.com/maumcare/companion/internal/auth"
	"github.com/maumcare/companion/internal/devserver"
)

func newDevServerCommand(a *app) *cobra.Command {
	var (
		addr    string
		idleTTL time.Duration
	)

	cmd := &cobra.Command{
		Use:   "devserver",
		Short: "Run a local backend with mock or cloud speech and replies",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr == "" {
				addr = a.cfg.DevServer.Addr
			}

			deps := devserver.Dependencies{}
			if el := tts.NewElevenLabsConfigFromEnv(); el.APIKey != "" {
				el.Voices = a.cfg.DevServer.ElevenLabsVoices
				synth, err := tts.NewElevenLabs(el, a.logger)
				if err != nil {
					return err
				}
				deps.TextToSpeech = synth
			}
			if gc := llm.NewGeminiConfigFromEnv(); gc.APIKey != "" {
				responder, err := llm.NewGeminiResponder(cmd.Context(), gc, a.logger)
				if err != nil {
					return err
				}
				deps.Responder = responder
			}
			if a.cfg.DevServer.GoogleSpeech {
				recognizer, err := stt.NewGoogleSpeechToText(cmd.Context(), a.logger)
				if err != nil {
					return err
				}
				defer recognizer.Close()
				deps.SpeechToText = recognizer
			}

			srv, err := devserver.New(devserver.Options{
				JWTSecret:      a.cfg.DevServer.JWTSecret,
				RequireJWT:     a.cfg.DevServer.RequireJWT,
				CheckCSRF:      a.cfg.DevServer.CheckCSRF,
				PreferredVoice: a.cfg.Session.VoiceID,
				IdleTTL:        idleTTL,
			}, deps, a.logger)
			if err != nil {
				return err
			}

			a.logger.Info("Starting dev server",
				zap.String("addr", addr),
				zap.Bool("jwt", a.cfg.DevServer.JWTSecret != ""),
				zap.Bool("csrf", a.cfg.DevServer.CheckCSRF))
			fmt.Fprintf(a.out, "dev server listening on %s\n", addr)
			return srv.ListenAndServe(cmd.Context(), addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address, overrides devserver.addr")
	cmd.Flags().DurationVar(&idleTTL, "idle-ttl", 0, "forget conversations idle for this long (0 keeps them)")
	return cmd
}

func newTokenCommand(a *app) *cobra.Command {
	var (
		username string
		ttl      time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token <user-id>",
		Short: "Issue a dev server bearer token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			signer, err := auth.NewSigner(a.cfg.DevServer.JWTSecret, ttl)
			if err != nil {
				return fmt.Errorf("devserver.jwt_secret: %w", err)
			}
			if username == "" {
				username = args[0]
			}
			token, err := signer.GenerateUserToken(args[0], username)
			if err != nil {
				return err
			}
			fmt.Fprintln(a.out, token)
			return nil
		},
	}
	cmd.Flags().StringVar(&username, "username", "", "username claim, defaults to the user id")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime (default 7 days)")
	return cmd
}
