package protocol

import (
	"encoding/json"
	"fmt"
	"strings"
)

// MessageValidator parses and validates frames sent by clients
type MessageValidator struct{}

// NewMessageValidator creates a new message validator
func NewMessageValidator() *MessageValidator {
	return &MessageValidator{}
}

// ValidateMessage validates an incoming client frame and returns the typed message
func (v *MessageValidator) ValidateMessage(messageBytes []byte) (Outbound, error) {
	var base BaseMessage
	if err := json.Unmarshal(messageBytes, &base); err != nil {
		return nil, fmt.Errorf("invalid JSON format: %w", err)
	}

	switch base.Type {
	case MessageTypeTextMessage:
		var msg TextMessage
		if err := json.Unmarshal(messageBytes, &msg); err != nil {
			return nil, fmt.Errorf("invalid text message: %w", err)
		}
		if strings.TrimSpace(msg.Message) == "" {
			return nil, fmt.Errorf("message is required")
		}
		return &msg, nil

	case MessageTypeVoiceEnd:
		var msg VoiceMessage
		if err := json.Unmarshal(messageBytes, &msg); err != nil {
			return nil, fmt.Errorf("invalid voice message: %w", err)
		}
		if msg.AudioData == "" {
			return nil, fmt.Errorf("audio_data is required")
		}
		return &msg, nil

	case MessageTypePing:
		return NewPingMessage(), nil

	case MessageTypeVoiceData:
		return &BaseMessage{Type: MessageTypeVoiceData}, nil

	case "":
		return nil, ErrMissingType

	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedType, base.Type)
	}
}
