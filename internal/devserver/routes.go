package devserver

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/maumcare/companion/domain/entities"
	"github.com/maumcare/companion/domain/repositories"
)

const (
	comfortEmailSent   = "위로 이메일이 성공적으로 전송되었습니다."
	comfortEmailFailed = "이메일 전송 중 오류가 발생했습니다: "
	moodRequired       = "감정 상태를 선택해 주세요."
)

// DefaultVoiceProfiles is the voice catalog served by the dev backend
var DefaultVoiceProfiles = []entities.VoiceProfile{
	{ID: 1, Name: "기본", VoiceID: entities.DefaultVoiceID, Description: "따뜻하고 차분한 기본 목소리", Category: "general", SampleAudio: voiceSamplePath + "default.mp3"},
	{ID: 2, Name: "Calm", VoiceID: "calm", Description: "잔잔한 상담사 목소리", Category: "counseling", Gender: "female", AgeRange: "30s", Accent: "seoul", SampleAudio: voiceSamplePath + "calm.mp3"},
	{ID: 3, Name: "Bright", VoiceID: "bright", Description: "밝고 경쾌한 목소리", Category: "general", IsPremium: true, Gender: "male", AgeRange: "20s"},
}

// InitRoutes registers every endpoint of the dev backend
func (s *Server) InitRoutes(e *echo.Echo) {
	// Health check
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"service": "companion-devserver",
		})
	})

	// Media is public, like files under MEDIA_URL
	e.GET(voicePath+":name", s.voiceFile)
	e.GET(voiceSamplePath+":name", s.voiceSampleFile)

	app := e.Group("", authenticate(s.signer, s.opts.RequireJWT, s.logger), csrfProtection(s.opts.CheckCSRF))

	// Pages
	app.GET("/conversations/:id/", s.conversationPage)
	app.GET("/dashboard/", s.dashboardPage)
	app.GET("/voice-settings/", s.voiceSettingsPage)
	app.GET("/accounts/mood/record/", s.dashboardPage)
	app.POST("/accounts/mood/record/", s.recordMood)

	// API
	app.POST("/api/conversations/:id/send_message/", s.sendMessage)
	app.GET("/api/voice-profiles/", s.voiceProfiles)
	app.GET("/api/voice-profiles/:id/sample/", s.voiceSample)
	app.POST("/agents/comfort-email/send/", s.sendComfortEmail)

	// WebSocket endpoint
	app.GET("/ws/conversations/:id/", s.conversationSocket)
}

func (s *Server) conversationError(c echo.Context, err error) error {
	if errors.Is(err, ErrForbidden) {
		s.logger.Warn("Conversation access denied",
			zap.String("conversationID", c.Param("id")),
			zap.String("user", currentUser(c)))
		return c.JSON(http.StatusForbidden, ErrorResponse{Error: "You do not have permission to perform this action."})
	}
	return c.JSON(http.StatusNotFound, ErrorResponse{Error: "Conversation not found"})
}

func (s *Server) conversationPage(c echo.Context) error {
	conv, err := s.store.Open(c.Param("id"), currentUser(c))
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound)
	}
	return c.Render(http.StatusOK, "conversation.html",
		newConversationView(csrfToken(c), conv, s.profiles, s.opts.PreferredVoice))
}

func (s *Server) dashboardPage(c echo.Context) error {
	return c.Render(http.StatusOK, "dashboard.html", s.dashboard(c))
}

func (s *Server) dashboard(c echo.Context) dashboardView {
	user := currentUser(c)
	return newDashboardView(csrfToken(c), s.store.Moods(user), s.store.Sentiments(user))
}

func (s *Server) voiceSettingsPage(c echo.Context) error {
	return c.Render(http.StatusOK, "voice_settings.html", voiceSettingsView{
		Title:          "목소리 설정",
		CSRFToken:      csrfToken(c),
		PreferredVoice: s.opts.PreferredVoice,
		Voices:         voiceViews(s.profiles, s.opts.PreferredVoice),
	})
}

// recordMood redirects to the dashboard on success and re-renders the form otherwise
func (s *Server) recordMood(c echo.Context) error {
	raw := c.FormValue("mood")
	notes := c.FormValue("notes")

	mood, err := entities.ParseMood(raw)
	if err != nil {
		return c.Render(http.StatusOK, "dashboard.html", s.dashboard(c).withForm(raw, notes, moodRequired))
	}

	s.store.RecordMood(currentUser(c), mood, notes)
	s.logger.Info("Mood recorded", zap.String("mood", string(mood)))
	return c.Redirect(http.StatusFound, "/dashboard/")
}

type sendMessageRequest struct {
	Content     string `json:"content"`
	ContentType string `json:"content_type"`
	VoiceID     string `json:"voice_id"`
}

func (s *Server) sendMessage(c echo.Context) error {
	var req sendMessageRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request format"})
	}
	if strings.TrimSpace(req.Content) == "" {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Message content is required"})
	}
	if req.ContentType == "" {
		req.ContentType = "text"
	}

	conv, err := s.store.Open(c.Param("id"), currentUser(c))
	if err != nil {
		return s.conversationError(c, err)
	}

	reply, err := s.service.ProcessText(c.Request().Context(), conv.ID, req.Content, req.ContentType, req.VoiceID, true)
	if err != nil {
		s.logger.Error("Error processing message", zap.String("conversationID", conv.ID), zap.Error(err))
		return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "An error occurred while processing your message"})
	}

	user := reply.User
	return c.JSON(http.StatusOK, repositories.SendMessageResult{
		UserMessage:      &user,
		AssistantMessage: reply.Assistant,
		VoiceFile:        reply.VoiceURL,
	})
}

func (s *Server) voiceProfiles(c echo.Context) error {
	return c.JSON(http.StatusOK, s.profiles)
}

func (s *Server) voiceSample(c echo.Context) error {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusNotFound, ErrorResponse{Error: "Not found."})
	}
	for _, p := range s.profiles {
		if p.ID != id {
			continue
		}
		if p.SampleAudio == "" {
			return c.JSON(http.StatusNotFound, ErrorResponse{Error: "No sample audio available"})
		}
		return c.JSON(http.StatusOK, map[string]string{"sample_url": c.Scheme() + "://" + c.Request().Host + p.SampleAudio})
	}
	return c.JSON(http.StatusNotFound, ErrorResponse{Error: "Not found."})
}

func (s *Server) sendComfortEmail(c echo.Context) error {
	user := currentUser(c)
	if err := s.mailer.SendComfortEmail(c.Request().Context(), user); err != nil {
		s.logger.Error("Failed to send comfort email", zap.String("user", user), zap.Error(err))
		return c.JSON(http.StatusInternalServerError, repositories.ComfortEmailResult{
			Success: false,
			Message: comfortEmailFailed + err.Error(),
		})
	}
	return c.JSON(http.StatusOK, repositories.ComfortEmailResult{Success: true, Message: comfortEmailSent})
}

func (s *Server) conversationSocket(c echo.Context) error {
	conv, err := s.store.Open(c.Param("id"), currentUser(c))
	if err != nil {
		return s.conversationError(c, err)
	}
	return s.hub.ServeConversation(c, conv.ID)
}

func (s *Server) voiceFile(c echo.Context) error {
	data, ok := s.media.Get(c.Param("name"))
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound)
	}
	return c.Blob(http.StatusOK, "audio/mpeg", data)
}

func (s *Server) voiceSampleFile(c echo.Context) error {
	voiceID := strings.TrimSuffix(c.Param("name"), ".mp3")
	for _, p := range s.profiles {
		if p.VoiceID == voiceID && p.SampleAudio != "" {
			data, err := s.service.Sample(c.Request().Context(), voiceID)
			if err != nil {
				return err
			}
			return c.Blob(http.StatusOK, "audio/mpeg", data)
		}
	}
	return echo.NewHTTPError(http.StatusNotFound)
}
