package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/satriahrh/obrolan/server/domain/entities"
	"github.com/satriahrh/obrolan/server/internal/auth"
	"github.com/satriahrh/obrolan/server/internal/sse"
)

const (
	// maxBodyBytes bounds the request bodies read by the chat endpoints
	maxBodyBytes = 1 << 20

	// maxLoggedPayload bounds how much of a rejected body is logged
	maxLoggedPayload = 1000
)

// Chatter is the conversation use case served over HTTP
type Chatter interface {
	Reply(ctx context.Context, sessionID, prompt string) (string, error)
	Stream(ctx context.Context, sessionID, prompt string, emit func(fragment string) error) (string, error)
	History(ctx context.Context, sessionID string) ([]entities.Turn, error)
	Reset(ctx context.Context, sessionID string) error
}

// ChatHandler serves the chat endpoints
type ChatHandler struct {
	chat   Chatter
	tokens *auth.TokenIssuer
	logger *zap.Logger
}

// NewChatHandler creates a new chat handler
func NewChatHandler(chat Chatter, tokens *auth.TokenIssuer, logger *zap.Logger) *ChatHandler {
	return &ChatHandler{
		chat:   chat,
		tokens: tokens,
		logger: logger,
	}
}

// Reply handles POST /chatbot. The reply is plain text unless the client
// accepts JSON.
func (h *ChatHandler) Reply(c echo.Context) error {
	sessionID := SessionID(c)
	c.Response().Header().Set(SessionHeader, PublicSessionID(c))

	prompt, err := h.bindPrompt(c)
	if err != nil {
		return h.writeError(c, err)
	}

	reply, err := h.chat.Reply(c.Request().Context(), sessionID, prompt)
	if err != nil {
		return h.writeError(c, err)
	}

	if acceptsJSON(c.Request()) {
		return c.JSON(http.StatusOK, ChatResponse{Reply: reply, SessionID: PublicSessionID(c)})
	}
	return c.String(http.StatusOK, reply)
}

// Stream handles POST /chatbot/stream: one SSE frame per fragment, closed
// when generation finishes. A failure after the first frame is reported as
// an error event.
func (h *ChatHandler) Stream(c echo.Context) error {
	sessionID := SessionID(c)
	c.Response().Header().Set(SessionHeader, PublicSessionID(c))

	prompt, err := h.bindPrompt(c)
	if err != nil {
		return h.writeError(c, err)
	}

	writer, err := sse.NewWriter(c.Response())
	if err != nil {
		h.logger.Error("Streaming unsupported", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "streaming_unsupported",
			Message: "Streaming unsupported",
		})
	}

	ctx := c.Request().Context()
	_, err = h.chat.Stream(ctx, sessionID, prompt, func(fragment string) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		return writer.Data(fragment)
	})

	switch {
	case err == nil:
		if !writer.Started() {
			writer.Open()
		}
		return nil
	case errors.Is(err, entities.ErrTransport):
		h.logger.Info("Stream closed by client", zap.String("session_id", sessionID), zap.Error(err))
		return nil
	case !writer.Started():
		return h.writeError(c, err)
	}

	status, body := h.classify(err)
	h.logger.Warn("Stream ended with error",
		zap.String("session_id", sessionID),
		zap.Int("status", status),
		zap.Error(err))

	payload, _ := json.Marshal(body)
	if err := writer.Event("error", string(payload)); err != nil {
		h.logger.Info("Failed to deliver error event", zap.Error(err))
	}
	return nil
}

// History handles GET /chatbot/history
func (h *ChatHandler) History(c echo.Context) error {
	sessionID := SessionID(c)

	turns, err := h.chat.History(c.Request().Context(), sessionID)
	if err != nil {
		return h.writeError(c, err)
	}

	return c.JSON(http.StatusOK, HistoryResponse{SessionID: PublicSessionID(c), Turns: turns})
}

// Reset handles DELETE /chatbot/history
func (h *ChatHandler) Reset(c echo.Context) error {
	sessionID := SessionID(c)

	if err := h.chat.Reset(c.Request().Context(), sessionID); err != nil {
		return h.writeError(c, err)
	}

	return c.NoContent(http.StatusNoContent)
}

// NewSession handles POST /chatbot/session: a fresh session ID and a token
// bound to it.
func (h *ChatHandler) NewSession(c echo.Context) error {
	sessionID := uuid.New().String()

	token, expiresAt, err := h.tokens.GenerateSessionToken(sessionID)
	if err != nil {
		h.logger.Error("Failed to generate session token", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "token_generation_failed",
			Message: "Failed to generate session token",
		})
	}

	h.logger.Info("Session issued", zap.String("session_id", sessionID))

	return c.JSON(http.StatusCreated, SessionResponse{
		SessionID: sessionID,
		Token:     token,
		ExpiresAt: expiresAt,
	})
}

// bindPrompt reads the prompt from a JSON body or a form field
func (h *ChatHandler) bindPrompt(c echo.Context) (string, error) {
	req := c.Request()

	raw, err := io.ReadAll(io.LimitReader(req.Body, maxBodyBytes+1))
	if err != nil {
		return "", &entities.ValidationError{Field: "body", Message: "unreadable request body"}
	}
	if len(raw) > maxBodyBytes {
		return "", &entities.ValidationError{Field: "body", Message: "request body too large"}
	}
	req.Body = io.NopCloser(bytes.NewReader(raw))

	var body ChatRequest
	if err := (&echo.DefaultBinder{}).BindBody(c, &body); err != nil {
		h.logInvalidPayload(c, raw, err)
		return "", &entities.ValidationError{
			Field:   "prompt",
			Message: "expected JSON with 'prompt' or form field 'prompt'",
		}
	}

	if err := entities.ValidatePrompt(body.Prompt); err != nil {
		h.logInvalidPayload(c, raw, err)
		return "", err
	}

	return body.Prompt, nil
}

func (h *ChatHandler) logInvalidPayload(c echo.Context, raw []byte, err error) {
	payload := raw
	if len(payload) > maxLoggedPayload {
		payload = payload[:maxLoggedPayload]
	}

	h.logger.Warn("Invalid chat payload",
		zap.String("content_type", c.Request().Header.Get(echo.HeaderContentType)),
		zap.String("payload", string(payload)),
		zap.Error(err))
}

// writeError maps a use case error to an HTTP response
func (h *ChatHandler) writeError(c echo.Context, err error) error {
	if errors.Is(err, entities.ErrTransport) {
		h.logger.Info("Request abandoned by client", zap.Error(err))
		return nil
	}

	status, body := h.classify(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("Chat request failed", zap.Int("status", status), zap.Error(err))
	}
	return c.JSON(status, body)
}

func (h *ChatHandler) classify(err error) (int, ErrorResponse) {
	var validationErr *entities.ValidationError
	var generationErr *entities.GenerationError

	switch {
	case errors.As(err, &validationErr):
		return http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_request",
			Message: validationErr.Message,
		}
	case errors.Is(err, entities.ErrModelUnavailable):
		return http.StatusInternalServerError, ErrorResponse{
			Error:   "model_unavailable",
			Message: "Model not available",
		}
	case errors.As(err, &generationErr):
		return http.StatusInternalServerError, ErrorResponse{
			Error:   "generation_failed",
			Message: "The model failed to generate a reply",
		}
	default:
		return http.StatusInternalServerError, ErrorResponse{
			Error:   "internal_error",
			Message: "Internal server error",
		}
	}
}

func acceptsJSON(r *http.Request) bool {
	return strings.Contains(r.Header.Get(echo.HeaderAccept), echo.MIMEApplicationJSON)
}
