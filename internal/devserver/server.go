// Package devserver is a local backend speaking the conversation wire protocol and
// HTTP endpoints. Speech and reply adapters are pluggable and default to mocks.
package devserver

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/maumcare/companion/adapters/mock"
	"github.com/maumcare/companion/domain/entities"
	"github.com/maumcare/companion/domain/repositories"
	"github.com/maumcare/companion/internal/auth"
)

// Options configures the dev backend
type Options struct {
	// JWTSecret enables token authentication; RequireJWT rejects anonymous requests
	JWTSecret  string
	RequireJWT bool
	CheckCSRF  bool

	PreferredVoice string
	PingPeriod     time.Duration
	HistoryLimit   int

	// IdleTTL expires conversations without activity; 0 keeps them forever
	IdleTTL         time.Duration
	CleanupInterval time.Duration
}

// Dependencies are the pipeline adapters; nil fields fall back to the mocks
type Dependencies struct {
	SpeechToText repositories.SpeechToText
	Responder    repositories.Responder
	TextToSpeech repositories.TextToSpeech
	Mailer       Mailer
}

// Server is the dev backend
type Server struct {
	echo     *echo.Echo
	hub      *Hub
	store    *Store
	media    *MediaStore
	service  *ConversationService
	mailer   Mailer
	signer   *auth.Signer
	profiles []entities.VoiceProfile
	opts     Options
	logger   *zap.Logger
}

// New wires the dev backend
func New(opts Options, deps Dependencies, logger *zap.Logger) (*Server, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.PreferredVoice == "" {
		opts.PreferredVoice = entities.DefaultVoiceID
	}
	if opts.RequireJWT && opts.JWTSecret == "" {
		return nil, errors.New("require_jwt needs a jwt secret")
	}

	if deps.SpeechToText == nil {
		deps.SpeechToText = mock.NewTranscriber(logger)
	}
	if deps.Responder == nil {
		deps.Responder = mock.NewResponder(logger)
	}
	if deps.TextToSpeech == nil {
		deps.TextToSpeech = mock.NewSynthesizer(logger)
	}
	if deps.Mailer == nil {
		deps.Mailer = NewLogMailer(logger)
	}

	var signer *auth.Signer
	if opts.JWTSecret != "" {
		var err error
		signer, err = auth.NewSigner(opts.JWTSecret, 0)
		if err != nil {
			return nil, err
		}
	}

	renderer, err := NewTemplateRenderer()
	if err != nil {
		return nil, err
	}

	store := NewStore()
	media := NewMediaStore()
	service := NewConversationService(deps.SpeechToText, deps.Responder, deps.TextToSpeech, store, media, opts.HistoryLimit, logger)

	s := &Server{
		store:    store,
		media:    media,
		service:  service,
		hub:      NewHub(service, opts.PingPeriod, logger),
		mailer:   deps.Mailer,
		signer:   signer,
		profiles: DefaultVoiceProfiles,
		opts:     opts,
		logger:   logger,
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Renderer = renderer

	// Middleware
	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:    true,
		LogStatus: true,
		LogMethod: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			logger.Debug("request",
				zap.String("method", v.Method),
				zap.String("uri", v.URI),
				zap.Int("status", v.Status))
			return nil
		},
	}))

	s.InitRoutes(e)
	s.echo = e
	return s, nil
}

// Handler returns the HTTP handler, e.g. for httptest
func (s *Server) Handler() http.Handler { return s.echo }

// Signer returns the token signer, nil when authentication is off
func (s *Server) Signer() *auth.Signer { return s.signer }

// Hub returns the websocket hub
func (s *Server) Hub() *Hub { return s.hub }

// Store returns the in-memory store
func (s *Server) Store() *Store { return s.store }

// Run starts the background services; they stop when ctx is done
func (s *Server) Run(ctx context.Context) {
	go s.hub.Run(ctx)

	if s.opts.IdleTTL > 0 {
		cleanup := NewSessionCleanupService(s.store, s.media, s.opts.IdleTTL, s.opts.CleanupInterval, s.logger)
		cleanup.Start()
		go func() {
			<-ctx.Done()
			cleanup.Stop()
		}()
	}
}

// ListenAndServe serves on addr until ctx is done, then shuts down gracefully
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	s.Run(ctx)

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.echo.Start(addr)
	}()
	s.logger.Info("Dev server started", zap.String("addr", addr))

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.logger.Info("Dev server is shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.echo.Shutdown(shutdownCtx); err != nil {
		return err
	}
	s.logger.Info("Dev server exited")
	return nil
}
