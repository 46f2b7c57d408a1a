// Package protocol defines the JSON frames exchanged over the conversation websocket.
package protocol

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// MessageType is the `type` discriminator carried by every frame
type MessageType string

// Frames sent by the client
const (
	MessageTypeTextMessage MessageType = "text_message"
	MessageTypeVoiceEnd    MessageType = "voice_end"
	MessageTypePing        MessageType = "ping"
	// MessageTypeVoiceData is a streamed audio chunk; only acknowledged by servers
	MessageTypeVoiceData MessageType = "voice_data"
)

// Frames sent by the server
const (
	MessageTypeAssistantResponse     MessageType = "assistant_response"
	MessageTypeError                 MessageType = "error"
	MessageTypePong                  MessageType = "pong"
	MessageTypeConnectionEstablished MessageType = "connection_established"
	MessageTypeVoiceChunkReceived    MessageType = "voice_chunk_received"
)

var (
	// ErrMissingType is returned for frames without a type discriminator
	ErrMissingType = errors.New("message missing type field")
	// ErrUnsupportedType is returned when a client frame has an unknown type
	ErrUnsupportedType = errors.New("unsupported message type")
)

// BaseMessage defines the common structure for all frames
type BaseMessage struct {
	Type MessageType `json:"type"`
}

// Outbound is a frame the client may send
type Outbound interface {
	MessageType() MessageType
}

// MessageType implements Outbound
func (b BaseMessage) MessageType() MessageType {
	return b.Type
}

// TextMessage carries typed user text
type TextMessage struct {
	BaseMessage
	Message       string `json:"message"`
	VoiceID       string `json:"voice_id"`
	GenerateVoice bool   `json:"generate_voice"`
}

// VoiceMessage carries a complete voice recording
type VoiceMessage struct {
	BaseMessage
	AudioData string `json:"audio_data"` // data URL with base64 payload
	VoiceID   string `json:"voice_id"`
}

// PingMessage is the keepalive frame
type PingMessage struct {
	BaseMessage
}

// NewTextMessage creates a text frame that always asks for a voiced reply
func NewTextMessage(text, voiceID string) *TextMessage {
	return &TextMessage{
		BaseMessage:   BaseMessage{Type: MessageTypeTextMessage},
		Message:       text,
		VoiceID:       voiceID,
		GenerateVoice: true,
	}
}

// NewVoiceMessage creates a voice_end frame from an already encoded payload
func NewVoiceMessage(audioData, voiceID string) *VoiceMessage {
	return &VoiceMessage{
		BaseMessage: BaseMessage{Type: MessageTypeVoiceEnd},
		AudioData:   audioData,
		VoiceID:     voiceID,
	}
}

// NewPingMessage creates a keepalive frame
func NewPingMessage() *PingMessage {
	return &PingMessage{BaseMessage: BaseMessage{Type: MessageTypePing}}
}

// Encode serializes an outbound frame
func Encode(msg Outbound) ([]byte, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s frame: %w", msg.MessageType(), err)
	}
	return data, nil
}

// AssistantMessage is the payload of an assistant_response frame
type AssistantMessage struct {
	ID        int64  `json:"id,omitempty"`
	Content   string `json:"content"`
	VoiceURL  string `json:"voice_url,omitempty"`
	CreatedAt string `json:"created_at,omitempty"`
}

// AssistantResponse is the assistant_response frame
type AssistantResponse struct {
	BaseMessage
	Message AssistantMessage `json:"message"`
}

// ErrorMessage is the error frame
type ErrorMessage struct {
	BaseMessage
	Message string `json:"message"`
}

// Inbound is a decoded server frame. Only the field matching Type is set.
type Inbound struct {
	Type      MessageType
	Assistant *AssistantMessage
	Error     string
	Raw       json.RawMessage
}

type envelope struct {
	Type    MessageType     `json:"type"`
	Message json.RawMessage `json:"message"`
}

// Decode parses a server frame. Unknown types decode successfully with only Type and Raw set.
func Decode(data []byte) (Inbound, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Inbound{}, fmt.Errorf("invalid JSON format: %w", err)
	}
	if env.Type == "" {
		return Inbound{}, ErrMissingType
	}

	in := Inbound{Type: env.Type, Raw: json.RawMessage(data)}
	switch env.Type {
	case MessageTypeAssistantResponse:
		var msg AssistantMessage
		if err := json.Unmarshal(env.Message, &msg); err != nil {
			return Inbound{}, fmt.Errorf("invalid assistant response: %w", err)
		}
		in.Assistant = &msg
	case MessageTypeError:
		var text string
		if err := json.Unmarshal(env.Message, &text); err != nil {
			// some servers send a structured error, keep it readable
			text = string(env.Message)
		}
		in.Error = text
	}
	return in, nil
}

// NewAssistantResponse creates an assistant_response frame
func NewAssistantResponse(msg AssistantMessage) *AssistantResponse {
	return &AssistantResponse{
		BaseMessage: BaseMessage{Type: MessageTypeAssistantResponse},
		Message:     msg,
	}
}

// NewErrorMessage creates an error frame
func NewErrorMessage(message string) *ErrorMessage {
	return &ErrorMessage{
		BaseMessage: BaseMessage{Type: MessageTypeError},
		Message:     message,
	}
}

// NewPongMessage creates the keepalive reply
func NewPongMessage() *BaseMessage {
	return &BaseMessage{Type: MessageTypePong}
}

// NewConnectionEstablished creates the welcome frame sent after accept
func NewConnectionEstablished() *ErrorMessage {
	return &ErrorMessage{
		BaseMessage: BaseMessage{Type: MessageTypeConnectionEstablished},
		Message:     "Connected to voice conversation",
	}
}

// DecodeAudio extracts raw audio from a data URL or a bare base64 string
func DecodeAudio(audioData string) ([]byte, string, error) {
	mime := ""
	payload := audioData
	if strings.HasPrefix(audioData, "data:") {
		header, rest, ok := strings.Cut(audioData, ",")
		if !ok {
			return nil, "", errors.New("malformed data URL")
		}
		mime = strings.TrimSuffix(strings.TrimPrefix(header, "data:"), ";base64")
		payload = rest
	}
	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, "", fmt.Errorf("failed to decode audio data: %w", err)
	}
	return raw, mime, nil
}
