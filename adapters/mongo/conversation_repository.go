package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/satriahrh/obrolan/server/domain/entities"
	"github.com/satriahrh/obrolan/server/domain/repositories"
)

const conversationsCollection = "conversations"

// ConversationRepository stores one document per session. Appends are single
// atomic updates, so concurrent writers never interleave turns of one call.
type ConversationRepository struct {
	collection *mongo.Collection
	maxTurns   int
	ttl        time.Duration
	logger     *zap.Logger
}

var _ repositories.ConversationRepository = (*ConversationRepository)(nil)

// NewConversationRepository creates a new MongoDB conversation repository
func NewConversationRepository(db *mongo.Database, maxTurns int, ttl time.Duration, logger *zap.Logger) *ConversationRepository {
	collection := db.Collection(conversationsCollection)

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		// TTL index for automatic cleanup of idle sessions
		ttlIndex := mongo.IndexModel{
			Keys:    bson.D{{Key: "expires_at", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(0),
		}

		if _, err := collection.Indexes().CreateOne(ctx, ttlIndex); err != nil {
			logger.Error("Failed to create conversation indexes", zap.Error(err))
		} else {
			logger.Info("Conversation indexes created successfully")
		}
	}()

	return &ConversationRepository{
		collection: collection,
		maxTurns:   maxTurns,
		ttl:        ttl,
		logger:     logger,
	}
}

// Append implements repositories.ConversationRepository
func (r *ConversationRepository) Append(ctx context.Context, sessionID string, turns ...entities.Turn) error {
	if sessionID == "" {
		return errors.New("session ID cannot be empty")
	}
	if len(turns) == 0 {
		return nil
	}

	now := time.Now()

	push := bson.M{"$each": turns}
	if r.maxTurns > 0 {
		push["$slice"] = -r.maxTurns
	}

	update := bson.M{
		"$push":        bson.M{"turns": push},
		"$setOnInsert": bson.M{"created_at": now},
	}
	if r.ttl > 0 {
		update["$set"] = bson.M{"last_active_at": now, "expires_at": now.Add(r.ttl)}
	} else {
		// a zero expires_at would be reaped by the TTL index at once
		update["$set"] = bson.M{"last_active_at": now}
		update["$unset"] = bson.M{"expires_at": ""}
	}

	_, err := r.collection.UpdateOne(ctx, bson.M{"_id": sessionID}, update, options.Update().SetUpsert(true))
	if err != nil {
		r.logger.Error("Failed to append turns", zap.Error(err), zap.String("session_id", sessionID))
		return fmt.Errorf("failed to append turns: %w", err)
	}

	return nil
}

// History implements repositories.ConversationRepository
func (r *ConversationRepository) History(ctx context.Context, sessionID string) ([]entities.Turn, error) {
	if sessionID == "" {
		return nil, errors.New("session ID cannot be empty")
	}

	var conversation entities.Conversation
	opts := options.FindOne().SetProjection(bson.M{"turns": 1})
	err := r.collection.FindOne(ctx, bson.M{"_id": sessionID}, opts).Decode(&conversation)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return []entities.Turn{}, nil
		}
		r.logger.Error("Failed to get history", zap.Error(err), zap.String("session_id", sessionID))
		return nil, fmt.Errorf("failed to get history for session %s: %w", sessionID, err)
	}

	if conversation.Turns == nil {
		return []entities.Turn{}, nil
	}
	return conversation.Turns, nil
}

// Reset implements repositories.ConversationRepository
func (r *ConversationRepository) Reset(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return errors.New("session ID cannot be empty")
	}

	if _, err := r.collection.DeleteOne(ctx, bson.M{"_id": sessionID}); err != nil {
		r.logger.Error("Failed to reset conversation", zap.Error(err), zap.String("session_id", sessionID))
		return fmt.Errorf("failed to reset conversation: %w", err)
	}

	return nil
}

// ExpireSessions implements repositories.ConversationRepository.
// The TTL index reaps expired documents eventually; this makes it immediate.
func (r *ConversationRepository) ExpireSessions(ctx context.Context) (int, error) {
	result, err := r.collection.DeleteMany(ctx, bson.M{"expires_at": bson.M{"$lte": time.Now()}})
	if err != nil {
		r.logger.Error("Failed to expire sessions", zap.Error(err))
		return 0, fmt.Errorf("failed to expire sessions: %w", err)
	}

	return int(result.DeletedCount), nil
}
