package entities

import (
	"errors"
	"time"
)

// DefaultSessionID is the conversation shared by requests that carry no session identifier
const DefaultSessionID = "default"

// Role represents the speaker of a turn
type Role string

const (
	RoleUser Role = "user"
	RoleBot  Role = "bot"
)

// Turn represents one message in a conversation
type Turn struct {
	Role      Role      `json:"role" bson:"role"`
	Text      string    `json:"text" bson:"text"`
	CreatedAt time.Time `json:"created_at" bson:"created_at"`
}

// NewUserTurn creates a turn spoken by the user
func NewUserTurn(text string) Turn {
	return Turn{Role: RoleUser, Text: text, CreatedAt: time.Now()}
}

// NewBotTurn creates a turn spoken by the bot
func NewBotTurn(text string) Turn {
	return Turn{Role: RoleBot, Text: text, CreatedAt: time.Now()}
}

// Conversation holds the ordered turn history of a single session
type Conversation struct {
	SessionID    string    `json:"session_id" bson:"_id"`
	Turns        []Turn    `json:"turns" bson:"turns"`
	CreatedAt    time.Time `json:"created_at" bson:"created_at"`
	LastActiveAt time.Time `json:"last_active_at" bson:"last_active_at"`
	ExpiresAt    time.Time `json:"expires_at" bson:"expires_at"`
}

// NewConversation creates an empty conversation that expires after ttl of inactivity.
// A zero ttl means the conversation never expires.
func NewConversation(sessionID string, ttl time.Duration) *Conversation {
	now := time.Now()
	c := &Conversation{
		SessionID:    sessionID,
		Turns:        make([]Turn, 0),
		CreatedAt:    now,
		LastActiveAt: now,
	}
	c.Touch(ttl)
	return c
}

// Append adds turns to the end of the history. When maxTurns is positive only the
// most recent maxTurns turns are kept.
func (c *Conversation) Append(maxTurns int, turns ...Turn) {
	c.Turns = append(c.Turns, turns...)
	if maxTurns > 0 && len(c.Turns) > maxTurns {
		// copy so the dropped prefix can be collected
		kept := make([]Turn, maxTurns)
		copy(kept, c.Turns[len(c.Turns)-maxTurns:])
		c.Turns = kept
	}
}

// Touch updates the last active timestamp and extends expiration
func (c *Conversation) Touch(ttl time.Duration) {
	c.LastActiveAt = time.Now()
	if ttl > 0 {
		c.ExpiresAt = c.LastActiveAt.Add(ttl)
	} else {
		c.ExpiresAt = time.Time{}
	}
}

// IsExpired reports whether the conversation has been idle past its expiration
func (c *Conversation) IsExpired(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && now.After(c.ExpiresAt)
}

// Clone returns a deep copy, safe to hand out of a repository
func (c *Conversation) Clone() *Conversation {
	clone := *c
	clone.Turns = make([]Turn, len(c.Turns))
	copy(clone.Turns, c.Turns)
	return &clone
}

// Render renders the conversation history in the given style
func (c *Conversation) Render(style RenderStyle) string {
	return Render(c.Turns, style)
}

// Validate validates the conversation data
func (c *Conversation) Validate() error {
	if c.SessionID == "" {
		return errors.New("session_id is required")
	}
	for _, turn := range c.Turns {
		if turn.Role != RoleUser && turn.Role != RoleBot {
			return errors.New("invalid turn role")
		}
	}
	return nil
}
