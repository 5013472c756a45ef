package repositories

import (
	"context"

	"github.com/satriahrh/obrolan/server/domain/entities"
)

// ConversationRepository defines data access methods for conversation history
type ConversationRepository interface {
	// Append adds turns to the end of a session's history as one atomic step,
	// creating the session on first use
	Append(ctx context.Context, sessionID string, turns ...entities.Turn) error
	// History returns a copy of the session's turns in insertion order.
	// An unknown session has an empty history.
	History(ctx context.Context, sessionID string) ([]entities.Turn, error)
	// Reset clears the session's history
	Reset(ctx context.Context, sessionID string) error
	// ExpireSessions drops sessions idle past their expiration and reports how many
	ExpireSessions(ctx context.Context) (int, error)
}
