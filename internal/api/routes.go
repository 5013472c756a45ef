package api

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/satriahrh/obrolan/server/internal/auth"
	"github.com/satriahrh/obrolan/server/internal/websocket"
)

// InitRoutes initializes all API routes
func InitRoutes(e *echo.Echo, chat Chatter, hub *websocket.Hub, tokens *auth.TokenIssuer, backend string, logger *zap.Logger) {
	handler := NewChatHandler(chat, tokens, logger)

	// Health check
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"service": "obrolan-server",
			"backend": backend,
		})
	})

	// Session issuing needs no session of its own
	e.POST("/chatbot/session", handler.NewSession)

	chatbot := e.Group("/chatbot", SessionMiddleware(tokens, logger))
	chatbot.POST("", handler.Reply)
	chatbot.POST("/stream", handler.Stream)
	chatbot.GET("/history", handler.History)
	chatbot.DELETE("/history", handler.Reset)

	// WebSocket endpoint
	chatbot.GET("/ws", func(c echo.Context) error {
		return websocketSession(hub, c, logger)
	})
}

// websocketSession gives every unauthenticated connection a session of its own
func websocketSession(hub *websocket.Hub, c echo.Context, logger *zap.Logger) error {
	sessionID := SessionID(c)
	if SessionSourceOf(c) == SessionFromDefault {
		sessionID = uuid.New().String()
	}

	logger.Info("WebSocket connection accepted",
		zap.String("session_id", sessionID),
		zap.String("source", string(SessionSourceOf(c))))

	return websocket.HandleWebSocket(hub, c, sessionID, logger)
}
