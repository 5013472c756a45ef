package api

import (
	"time"

	"github.com/satriahrh/obrolan/server/domain/entities"
)

// ChatRequest represents the request payload for both chat endpoints.
// The prompt may arrive as JSON or as a form field.
type ChatRequest struct {
	Prompt string `json:"prompt" form:"prompt"`
}

// ChatResponse represents the blocking reply when the client accepts JSON
type ChatResponse struct {
	Reply     string `json:"reply"`
	SessionID string `json:"session_id"`
}

// HistoryResponse represents the turns recorded for a session
type HistoryResponse struct {
	SessionID string          `json:"session_id"`
	Turns     []entities.Turn `json:"turns"`
}

// SessionResponse represents a newly issued session
type SessionResponse struct {
	SessionID string    `json:"session_id"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}
