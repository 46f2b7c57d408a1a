// Package llm holds reply generators the dev backend can use instead of the mock responder.
package llm

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/maumcare/companion/domain/repositories"
)

const (
	defaultModel          = "gemini-2.0-flash"
	defaultTemperature    = 0.7
	defaultTopP           = 0.95
	defaultTopK           = 40
	defaultMaxTokens      = 512
	defaultTimeout        = 30 * time.Second
	maxAttempts           = 3
	defaultSystemPrompt   = "당신은 정신 건강을 돕는 따뜻한 상담 동반자입니다. 짧고 공감적으로 한국어로 답하고, 진단이나 처방은 하지 마세요. 위기 상황이 의심되면 자살예방상담전화 1393 또는 정신건강 위기상담전화 1577-0199를 안내하세요."
	fallbackReplyDefault  = "잠시 생각을 정리하고 있어요. 조금 더 이야기해 주시겠어요?"
	fallbackReplyNoAnswer = "지금은 답변을 드리기 어려워요. 잠시 후 다시 이야기해 주세요."
)

// retryDelay is multiplied by the attempt number between retries
var retryDelay = time.Second

// GeminiConfig configures the Gemini responder. Only APIKey is required.
type GeminiConfig struct {
	APIKey string
	Model  string
	// BaseURL overrides the API endpoint, e.g. for a proxy
	BaseURL         string
	Temperature     float32
	TopP            float32
	TopK            float32
	MaxOutputTokens int32
	Timeout         time.Duration
	SystemPrompt    string
}

// GeminiResponder generates replies with Google's Gemini API
type GeminiResponder struct {
	client *genai.Client
	cfg    GeminiConfig
	logger *zap.Logger
}

var _ repositories.Responder = (*GeminiResponder)(nil)

// ValidateGeminiConfig validates the GeminiConfig
func ValidateGeminiConfig(config GeminiConfig) error {
	if config.APIKey == "" {
		return fmt.Errorf("gemini API key is required")
	}
	if config.Temperature != 0 && (config.Temperature < 0 || config.Temperature > 2) {
		return fmt.Errorf("temperature must be between 0 and 2, got %f", config.Temperature)
	}
	if config.TopP != 0 && (config.TopP < 0 || config.TopP > 1) {
		return fmt.Errorf("topP must be between 0 and 1, got %f", config.TopP)
	}
	if config.TopK < 0 {
		return fmt.Errorf("topK must be positive, got %f", config.TopK)
	}
	return nil
}

// NewGeminiConfigFromEnv reads GEMINI_* variables
func NewGeminiConfigFromEnv() GeminiConfig {
	return GeminiConfig{
		APIKey:  os.Getenv("GEMINI_API_KEY"),
		Model:   os.Getenv("GEMINI_MODEL"),
		BaseURL: os.Getenv("GEMINI_API_BASE_URL"),
	}
}

// NewGeminiResponder creates the responder, applying defaults to unset fields
func NewGeminiResponder(ctx context.Context, config GeminiConfig, logger *zap.Logger) (*GeminiResponder, error) {
	if err := ValidateGeminiConfig(config); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	if config.Model == "" {
		config.Model = defaultModel
	}
	if config.Temperature == 0 {
		config.Temperature = defaultTemperature
	}
	if config.TopP == 0 {
		config.TopP = defaultTopP
	}
	if config.TopK == 0 {
		config.TopK = defaultTopK
	}
	if config.MaxOutputTokens == 0 {
		config.MaxOutputTokens = defaultMaxTokens
	}
	if config.Timeout <= 0 {
		config.Timeout = defaultTimeout
	}
	if config.SystemPrompt == "" {
		config.SystemPrompt = defaultSystemPrompt
	}

	cc := &genai.ClientConfig{
		APIKey:  config.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if config.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: config.BaseURL}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	logger.Info("Gemini responder configured", zap.String("model", config.Model))
	return &GeminiResponder{
		client: client,
		cfg:    config,
		logger: logger.With(zap.String("component", "gemini")),
	}, nil
}

// Respond sends the history and the new message. API failures produce a fallback reply, not an error.
func (g *GeminiResponder) Respond(ctx context.Context, history []repositories.ChatMessage, text string) (repositories.ChatMessage, error) {
	contents := toContents(history)
	if n := len(history); n == 0 || history[n-1].Role != repositories.UserRole || history[n-1].Content != text {
		contents = append(contents, genai.NewContentFromText(text, genai.RoleUser))
	}

	config := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(g.cfg.SystemPrompt, genai.RoleUser),
		Temperature:       genai.Ptr(g.cfg.Temperature),
		TopP:              genai.Ptr(g.cfg.TopP),
		TopK:              genai.Ptr(g.cfg.TopK),
		MaxOutputTokens:   g.cfg.MaxOutputTokens,
	}

	ctx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
	defer cancel()

	var (
		response *genai.GenerateContentResponse
		err      error
	)
	for attempt := 0; attempt < maxAttempts; attempt++ {
		response, err = g.client.Models.GenerateContent(ctx, g.cfg.Model, contents, config)
		if err == nil {
			break
		}

		g.logger.Warn("Failed to generate content, retrying",
			zap.Int("attempt", attempt+1),
			zap.Error(err))

		if attempt < maxAttempts-1 {
			select {
			case <-ctx.Done():
				return repositories.ChatMessage{}, ctx.Err()
			case <-time.After(time.Duration(attempt+1) * retryDelay):
			}
		}
	}

	if err != nil {
		g.logger.Error("Gemini request failed", zap.Error(err))
		return fallback(fallbackReplyDefault), nil
	}

	reply := strings.TrimSpace(response.Text())
	if reply == "" {
		g.logger.Warn("Empty response from Gemini")
		return fallback(fallbackReplyNoAnswer), nil
	}

	g.logger.Info("Reply generated",
		zap.Int("historyLen", len(history)),
		zap.Int("replyLen", len(reply)))
	return repositories.ChatMessage{Role: repositories.AssistantRole, Content: reply}, nil
}

func fallback(content string) repositories.ChatMessage {
	return repositories.ChatMessage{Role: repositories.AssistantRole, Content: content}
}

// toContents converts stored messages to Gemini contents; system messages are sent as user turns
func toContents(messages []repositories.ChatMessage) []*genai.Content {
	contents := make([]*genai.Content, 0, len(messages)+1)
	for _, msg := range messages {
		role := genai.Role(genai.RoleUser)
		if msg.Role == repositories.AssistantRole {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(msg.Content, role))
	}
	return contents
}
