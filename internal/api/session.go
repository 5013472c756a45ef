package api

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/satriahrh/obrolan/server/domain/entities"
	"github.com/satriahrh/obrolan/server/internal/auth"
)

// SessionHeader names the header carrying an unauthenticated session ID
const SessionHeader = "X-Session-ID"

const (
	sessionIDKey     = "session_id"
	sessionPublicKey = "session_public_id"
	sessionSourceKey = "session_source"
)

// headerSessionPrefix keeps header sessions apart from token sessions, so
// knowing a token session's ID does not grant access to it
const headerSessionPrefix = "header:"

// SessionSource tells where a request's session ID came from
type SessionSource string

const (
	SessionFromToken   SessionSource = "token"
	SessionFromHeader  SessionSource = "header"
	SessionFromDefault SessionSource = "default"
)

const maxSessionIDLength = 128

// SessionMiddleware resolves the session of every request: a bearer session
// token wins, then the X-Session-ID header, then the shared default session.
// A token that fails validation is rejected with 401. Header sessions live in
// their own namespace and never reach a token session.
func SessionMiddleware(tokens *auth.TokenIssuer, logger *zap.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if token := bearerToken(c.Request()); token != "" {
				claims, err := tokens.ValidateToken(token)
				if err != nil {
					logger.Warn("Request rejected: invalid session token", zap.Error(err))
					return c.JSON(http.StatusUnauthorized, ErrorResponse{
						Error:   "invalid_token",
						Message: "Invalid or expired session token",
					})
				}
				setSession(c, claims.SessionID, claims.SessionID, SessionFromToken)
				return next(c)
			}

			if header := strings.TrimSpace(c.Request().Header.Get(SessionHeader)); header != "" {
				if len(header) > maxSessionIDLength {
					return c.JSON(http.StatusBadRequest, ErrorResponse{
						Error:   "invalid_session",
						Message: "Session ID is too long",
					})
				}
				setSession(c, headerSessionPrefix+header, header, SessionFromHeader)
				return next(c)
			}

			setSession(c, entities.DefaultSessionID, entities.DefaultSessionID, SessionFromDefault)
			return next(c)
		}
	}
}

// SessionID returns the conversation key resolved by SessionMiddleware
func SessionID(c echo.Context) string {
	if id, ok := c.Get(sessionIDKey).(string); ok && id != "" {
		return id
	}
	return entities.DefaultSessionID
}

// PublicSessionID returns the session ID as the client named it
func PublicSessionID(c echo.Context) string {
	if id, ok := c.Get(sessionPublicKey).(string); ok && id != "" {
		return id
	}
	return SessionID(c)
}

// SessionSourceOf returns how the request's session was resolved
func SessionSourceOf(c echo.Context) SessionSource {
	if source, ok := c.Get(sessionSourceKey).(SessionSource); ok {
		return source
	}
	return SessionFromDefault
}

func setSession(c echo.Context, sessionID, publicID string, source SessionSource) {
	c.Set(sessionIDKey, sessionID)
	c.Set(sessionPublicKey, publicID)
	c.Set(sessionSourceKey, source)
}

func bearerToken(r *http.Request) string {
	authHeader := r.Header.Get(echo.HeaderAuthorization)
	if len(authHeader) > 7 && strings.EqualFold(authHeader[:7], "Bearer ") {
		return strings.TrimSpace(authHeader[7:])
	}
	return ""
}
