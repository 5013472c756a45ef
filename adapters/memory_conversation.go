package adapters

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/satriahrh/obrolan/server/domain/entities"
	"github.com/satriahrh/obrolan/server/domain/repositories"
)

// MemoryConversationRepository keeps conversation history in process memory.
// History is lost when the process exits.
type MemoryConversationRepository struct {
	mu            sync.RWMutex
	conversations map[string]*entities.Conversation // session_id -> conversation
	maxTurns      int
	ttl           time.Duration
	logger        *zap.Logger
}

var _ repositories.ConversationRepository = (*MemoryConversationRepository)(nil)

// NewMemoryConversationRepository creates a new in-memory conversation repository.
// maxTurns bounds each session to its most recent turns (0 keeps everything) and
// ttl is how long an idle session survives ExpireSessions (0 keeps it forever).
func NewMemoryConversationRepository(maxTurns int, ttl time.Duration, logger *zap.Logger) *MemoryConversationRepository {
	return &MemoryConversationRepository{
		conversations: make(map[string]*entities.Conversation),
		maxTurns:      maxTurns,
		ttl:           ttl,
		logger:        logger,
	}
}

// Append implements ConversationRepository interface
func (m *MemoryConversationRepository) Append(ctx context.Context, sessionID string, turns ...entities.Turn) error {
	if sessionID == "" {
		return errors.New("session ID cannot be empty")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	conversation, exists := m.conversations[sessionID]
	if !exists {
		conversation = entities.NewConversation(sessionID, m.ttl)
		m.conversations[sessionID] = conversation
		m.logger.Debug("Conversation created", zap.String("session_id", sessionID))
	}

	conversation.Append(m.maxTurns, turns...)
	conversation.Touch(m.ttl)

	return nil
}

// History implements ConversationRepository interface
func (m *MemoryConversationRepository) History(ctx context.Context, sessionID string) ([]entities.Turn, error) {
	if sessionID == "" {
		return nil, errors.New("session ID cannot be empty")
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	conversation, exists := m.conversations[sessionID]
	if !exists {
		return []entities.Turn{}, nil
	}

	// Return a copy to prevent external modifications
	return conversation.Clone().Turns, nil
}

// Reset implements ConversationRepository interface
func (m *MemoryConversationRepository) Reset(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return errors.New("session ID cannot be empty")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.conversations, sessionID)
	return nil
}

// ExpireSessions implements ConversationRepository interface
func (m *MemoryConversationRepository) ExpireSessions(ctx context.Context) (int, error) {
	now := time.Now()

	m.mu.Lock()
	defer m.mu.Unlock()

	expired := 0
	for sessionID, conversation := range m.conversations {
		if conversation.IsExpired(now) {
			delete(m.conversations, sessionID)
			expired++
		}
	}

	return expired, nil
}

// Sessions returns the number of live sessions
func (m *MemoryConversationRepository) Sessions() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.conversations)
}
