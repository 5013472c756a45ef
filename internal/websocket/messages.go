package websocket

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/satriahrh/obrolan/server/domain/entities"
)

// MessageType defines the type of WebSocket message
type MessageType string

// Supported message types
const (
	MessageTypePrompt   MessageType = "prompt"
	MessageTypeFragment MessageType = "fragment"
	MessageTypeDone     MessageType = "done"
	MessageTypeError    MessageType = "error"
	MessageTypePing     MessageType = "ping"
	MessageTypePong     MessageType = "pong"
)

// Error codes carried by ErrorMessage
const (
	ErrorCodeInvalidMessage   = "invalid_message"
	ErrorCodeInvalidPrompt    = "invalid_prompt"
	ErrorCodeBusy             = "busy"
	ErrorCodeGenerationFailed = "generation_failed"
	ErrorCodeModelUnavailable = "model_unavailable"
	ErrorCodeInternal         = "internal_error"
)

// BaseMessage defines the common structure for all WebSocket messages
type BaseMessage struct {
	Type      MessageType `json:"type"`
	Timestamp string      `json:"timestamp,omitempty"`
	MessageID string      `json:"message_id,omitempty"`
}

// PromptMessage asks for a streamed reply
type PromptMessage struct {
	BaseMessage
	Prompt string `json:"prompt"`
}

// FragmentMessage carries one piece of a reply, in generation order
type FragmentMessage struct {
	BaseMessage
	SessionID string `json:"session_id"`
	Index     int    `json:"index"`
	Data      string `json:"data"`
}

// DoneMessage ends a reply and carries the complete text
type DoneMessage struct {
	BaseMessage
	SessionID string `json:"session_id"`
	Reply     string `json:"reply"`
	Fragments int    `json:"fragments"`
}

// ErrorMessage represents an error response
type ErrorMessage struct {
	BaseMessage
	Code    string `json:"error_code"`
	Message string `json:"message"`
}

// PingMessage represents a ping message for connection health check
type PingMessage struct {
	BaseMessage
	Data string `json:"data,omitempty"`
}

// PongMessage represents a pong response
type PongMessage struct {
	BaseMessage
	Data string `json:"data,omitempty"`
}

// MessageValidator provides validation for WebSocket messages
type MessageValidator struct{}

// NewMessageValidator creates a new message validator
func NewMessageValidator() *MessageValidator {
	return &MessageValidator{}
}

// ValidateMessage parses an incoming message and checks its fields
func (v *MessageValidator) ValidateMessage(messageBytes []byte) (interface{}, error) {
	var base BaseMessage
	if err := json.Unmarshal(messageBytes, &base); err != nil {
		return nil, fmt.Errorf("invalid JSON format: %w", err)
	}

	switch base.Type {
	case MessageTypePrompt:
		var msg PromptMessage
		if err := json.Unmarshal(messageBytes, &msg); err != nil {
			return nil, fmt.Errorf("invalid prompt message: %w", err)
		}
		if err := entities.ValidatePrompt(msg.Prompt); err != nil {
			return nil, err
		}
		return &msg, nil

	case MessageTypePing:
		var msg PingMessage
		if err := json.Unmarshal(messageBytes, &msg); err != nil {
			return nil, fmt.Errorf("invalid ping message: %w", err)
		}
		return &msg, nil

	case "":
		return nil, fmt.Errorf("message type is required")

	default:
		return nil, fmt.Errorf("unsupported message type: %s", base.Type)
	}
}

func newBase(messageType MessageType) BaseMessage {
	return BaseMessage{
		Type:      messageType,
		Timestamp: time.Now().Format(time.RFC3339),
	}
}

// NewFragmentMessage creates a fragment message
func NewFragmentMessage(sessionID string, index int, data string) *FragmentMessage {
	return &FragmentMessage{
		BaseMessage: newBase(MessageTypeFragment),
		SessionID:   sessionID,
		Index:       index,
		Data:        data,
	}
}

// NewDoneMessage creates a done message
func NewDoneMessage(sessionID, reply string, fragments int) *DoneMessage {
	return &DoneMessage{
		BaseMessage: newBase(MessageTypeDone),
		SessionID:   sessionID,
		Reply:       reply,
		Fragments:   fragments,
	}
}

// NewErrorMessage creates an error message
func NewErrorMessage(code, message string) *ErrorMessage {
	return &ErrorMessage{
		BaseMessage: newBase(MessageTypeError),
		Code:        code,
		Message:     message,
	}
}

// NewPongMessage answers a ping, echoing its data
func NewPongMessage(ping *PingMessage) *PongMessage {
	return &PongMessage{
		BaseMessage: BaseMessage{
			Type:      MessageTypePong,
			Timestamp: time.Now().Format(time.RFC3339),
			MessageID: ping.MessageID,
		},
		Data: ping.Data,
	}
}
