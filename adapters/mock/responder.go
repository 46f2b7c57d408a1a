// Package mock provides deterministic stand-ins for the speech and reply
// pipeline so the dev backend runs without external services.
package mock

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/maumcare/companion/domain/repositories"
)

var (
	crisisKeywords   = []string{"자살", "자해", "죽고 싶", "suicide", "kill myself", "self-harm"}
	negativeKeywords = []string{"우울", "슬퍼", "힘들", "불안", "외로", "짜증", "sad", "depressed", "anxious", "lonely", "tired"}
	positiveKeywords = []string{"좋아", "행복", "기뻐", "감사", "신나", "happy", "glad", "great", "thanks", "good"}
)

// Responder produces empathetic canned replies with a keyword sentiment score
type Responder struct {
	logger *zap.Logger
}

var _ repositories.Responder = (*Responder)(nil)

// NewResponder creates a new mock responder
func NewResponder(logger *zap.Logger) *Responder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Responder{logger: logger}
}

// Respond implements repositories.Responder
func (r *Responder) Respond(ctx context.Context, history []repositories.ChatMessage, text string) (repositories.ChatMessage, error) {
	if err := ctx.Err(); err != nil {
		return repositories.ChatMessage{}, err
	}

	text = strings.TrimSpace(text)
	score := Sentiment(text)

	var reply string
	switch {
	case text == "":
		reply = "안녕하세요! 오늘 어떻게 지내고 계신가요? 무엇을 도와드릴까요?"
	case containsAny(text, crisisKeywords):
		reply = "지금 많이 힘드신 것 같아요. 혼자 견디지 않으셔도 됩니다. " +
			"자살예방상담전화 1393(24시간) 또는 정신건강 위기상담전화 1577-0199로 바로 연락해 주세요."
	case score < -0.5:
		reply = fmt.Sprintf("'%s'라고 말씀해 주셔서 고마워요. 그런 감정이 드는 건 자연스러운 일이에요. 조금 더 이야기해 주실 수 있을까요?", text)
	case score > 0.5:
		reply = fmt.Sprintf("'%s' 이야기를 들으니 저도 기뻐요! 어떤 점이 가장 좋으셨나요?", text)
	default:
		reply = fmt.Sprintf("'%s'에 대해 이야기해 주셔서 감사해요. 요즘 마음은 어떠세요?", text)
	}

	r.logger.Debug("Generated mock reply",
		zap.Int("historyLen", len(history)),
		zap.Float64("sentiment", score))

	return repositories.ChatMessage{
		Role:           repositories.AssistantRole,
		Content:        reply,
		SentimentScore: &score,
	}, nil
}

// Sentiment scores text on the -1..1 scale from a five point mood estimate
func Sentiment(text string) float64 {
	lower := strings.ToLower(text)
	points := 3
	switch {
	case containsAny(lower, crisisKeywords):
		points = 1
	case containsAny(lower, negativeKeywords) && containsAny(lower, positiveKeywords):
		points = 3
	case containsAny(lower, negativeKeywords):
		points = 2
	case containsAny(lower, positiveKeywords):
		points = 4
	}
	return float64(points-3) / 2
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}
