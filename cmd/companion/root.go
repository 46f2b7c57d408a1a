package main

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/maumcare/companion/internal/audio"
	"github.com/maumcare/companion/internal/config"
	"github.com/maumcare/companion/internal/page"
	"github.com/maumcare/companion/internal/presenter"
	"github.com/maumcare/companion/internal/webapi"
	"github.com/maumcare/companion/usecase"
)

// app carries what every command needs once flags and config are resolved
type app struct {
	cfg    config.Config
	logger *zap.Logger
	out    io.Writer
}

func newRootCommand() *cobra.Command {
	a := &app{logger: zap.NewNop()}

	var (
		configPath string
		baseURL    string
		locale     string
		logLevel   string
	)

	root := &cobra.Command{
		Use:          "companion",
		Short:        "Terminal client for the companion conversation service",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			if baseURL != "" {
				cfg.Server.BaseURL = baseURL
			}
			if locale != "" {
				cfg.UI.Locale = locale
			}
			if logLevel != "" {
				cfg.Log.Level = logLevel
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			logger, err := config.NewLogger(cfg.Log)
			if err != nil {
				return fmt.Errorf("failed to create logger: %w", err)
			}

			a.cfg = cfg
			a.logger = logger
			a.out = cmd.OutOrStdout()
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			_ = a.logger.Sync()
		},
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&configPath, "config", "c", "companion.yaml", "config file (optional)")
	flags.StringVar(&baseURL, "base-url", "", "backend origin, overrides server.base_url")
	flags.StringVar(&locale, "locale", "", "message language: ko or en")
	flags.StringVar(&logLevel, "log-level", "", "log level: debug, info, warn or error")

	root.AddCommand(
		newChatCommand(a),
		newMoodCommand(a),
		newDashboardCommand(a),
		newVoicesCommand(a),
		newComfortEmailCommand(a),
		newDevServerCommand(a),
		newTokenCommand(a),
	)
	return root
}

func (a *app) messages() usecase.Messages {
	return usecase.MessagesFor(a.cfg.UI.Locale)
}

func (a *app) presenterOptions() presenter.Options {
	return presenter.Options{
		Out:          a.out,
		Color:        a.cfg.UI.Color,
		Markdown:     a.cfg.UI.Markdown,
		DismissAfter: a.cfg.UI.AlertTimeout.ToDuration(),
	}
}

func (a *app) styled() bool {
	switch a.cfg.UI.Color {
	case "always":
		return true
	case "never":
		return false
	default:
		return presenter.IsTerminal(a.out)
	}
}

func (a *app) client() (*webapi.Client, error) {
	base, err := a.cfg.BaseURL()
	if err != nil {
		return nil, err
	}
	return webapi.New(webapi.Config{
		BaseURL:     base,
		SessionID:   a.cfg.Auth.SessionID,
		CSRFToken:   a.cfg.Auth.CSRFToken,
		Token:       a.cfg.Auth.BearerToken,
		TokenScheme: a.cfg.Auth.TokenScheme,
	}, a.logger)
}

func (a *app) player(client *webapi.Client) (*audio.CommandPlayer, error) {
	base, err := a.cfg.BaseURL()
	if err != nil {
		return nil, err
	}
	return audio.NewCommandPlayer(audio.PlayerConfig{
		Command:  a.cfg.Audio.PlayerCommand,
		BaseURL:  base,
		CacheDir: a.cfg.Audio.CacheDir,
		Client:   client.HTTPClient(),
	}, a.logger)
}

// loadPage fetches a server-rendered page and adopts its CSRF token
func (a *app) loadPage(ctx context.Context, client *webapi.Client, path string) (*page.Page, error) {
	body, err := client.FetchPage(ctx, path)
	if err != nil {
		return nil, err
	}
	p, err := page.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	for _, w := range p.Warnings {
		a.logger.Debug("Page warning", zap.String("path", path), zap.String("warning", w))
	}
	client.SetCSRFToken(p.CSRFToken)
	return p, nil
}
