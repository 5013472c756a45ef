package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/satriahrh/obrolan/server/domain/entities"
	"github.com/satriahrh/obrolan/server/domain/repositories"
)

// ChatConfig tunes how ChatService renders prompts and bounds generation
type ChatConfig struct {
	RenderStyle       entities.RenderStyle
	GenerationTimeout time.Duration
	StreamIdleTimeout time.Duration
}

// ChatService runs one exchange per call: validate, record the user turn,
// generate, record the bot turn.
type ChatService struct {
	repo      repositories.ConversationRepository
	generator repositories.Generator
	config    ChatConfig
	locks     *sessionLocks
	logger    *zap.Logger
}

// NewChatService creates a new chat service
func NewChatService(
	repo repositories.ConversationRepository,
	generator repositories.Generator,
	config ChatConfig,
	logger *zap.Logger,
) *ChatService {
	if config.RenderStyle == "" {
		config.RenderStyle = entities.RenderPlain
	}

	return &ChatService{
		repo:      repo,
		generator: generator,
		config:    config,
		locks:     newSessionLocks(),
		logger:    logger,
	}
}

// Reply answers prompt in blocking mode and returns the complete reply.
// On success the session history grows by exactly one user and one bot turn.
func (s *ChatService) Reply(ctx context.Context, sessionID, prompt string) (string, error) {
	sessionID, rendered, release, err := s.begin(ctx, sessionID, prompt)
	if err != nil {
		return "", err
	}
	defer release()

	genCtx, cancel := s.generationContext(ctx)
	defer cancel()

	start := time.Now()
	reply, err := s.generator.Generate(genCtx, rendered)
	if err == nil {
		// a backend that ignores cancellation may answer after the deadline
		err = genCtx.Err()
	}
	if err != nil {
		return "", s.generationFailure(ctx, sessionID, err)
	}

	if err := s.repo.Append(ctx, sessionID, entities.NewBotTurn(reply)); err != nil {
		return "", fmt.Errorf("failed to store reply: %w", err)
	}

	s.logger.Info("Reply generated",
		zap.String("session_id", sessionID),
		zap.String("backend", s.generator.Name()),
		zap.Int("reply_length", len(reply)),
		zap.Duration("duration", time.Since(start)))

	return reply, nil
}

// Stream answers prompt in streaming mode. Every fragment is passed to emit
// in generation order. The accumulated reply is stored as one bot turn only
// when the backend finishes cleanly; a failing emit abandons the exchange
// with entities.ErrTransport.
func (s *ChatService) Stream(ctx context.Context, sessionID, prompt string, emit func(fragment string) error) (string, error) {
	sessionID, rendered, release, err := s.begin(ctx, sessionID, prompt)
	if err != nil {
		return "", err
	}
	defer release()

	genCtx, cancel := s.generationContext(ctx)
	defer cancel()

	var idle atomic.Bool
	if s.config.StreamIdleTimeout > 0 {
		timer := time.AfterFunc(s.config.StreamIdleTimeout, func() {
			idle.Store(true)
			cancel()
		})
		defer timer.Stop()
		emit = resetOnEmit(timer, s.config.StreamIdleTimeout, emit)
	}

	start := time.Now()
	var reply strings.Builder
	var fragments int

	for fragment, err := range s.generator.GenerateStream(genCtx, rendered) {
		if err != nil {
			if idle.Load() && ctx.Err() == nil {
				err = fmt.Errorf("no fragment within %s: %w", s.config.StreamIdleTimeout, err)
			}
			return "", s.generationFailure(ctx, sessionID, err)
		}

		if err := emit(fragment); err != nil {
			s.logger.Info("Stream abandoned by client",
				zap.String("session_id", sessionID),
				zap.Int("fragments", fragments),
				zap.Error(err))
			return "", fmt.Errorf("%w: %v", entities.ErrTransport, err)
		}

		reply.WriteString(fragment)
		fragments++
	}

	// a backend that ignores cancellation may still finish after a breach
	if idle.Load() {
		return "", s.generationFailure(ctx, sessionID, fmt.Errorf("no fragment within %s", s.config.StreamIdleTimeout))
	}
	if err := genCtx.Err(); err != nil {
		return "", s.generationFailure(ctx, sessionID, err)
	}

	if err := s.repo.Append(ctx, sessionID, entities.NewBotTurn(reply.String())); err != nil {
		return "", fmt.Errorf("failed to store reply: %w", err)
	}

	s.logger.Info("Stream completed",
		zap.String("session_id", sessionID),
		zap.String("backend", s.generator.Name()),
		zap.Int("fragments", fragments),
		zap.Int("reply_length", reply.Len()),
		zap.Duration("duration", time.Since(start)))

	return reply.String(), nil
}

// History returns a copy of the session's turns
func (s *ChatService) History(ctx context.Context, sessionID string) ([]entities.Turn, error) {
	return s.repo.History(ctx, resolveSessionID(sessionID))
}

// Reset clears the session's history
func (s *ChatService) Reset(ctx context.Context, sessionID string) error {
	sessionID = resolveSessionID(sessionID)

	release, err := s.locks.acquire(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("%w: %v", entities.ErrTransport, err)
	}
	defer release()

	if err := s.repo.Reset(ctx, sessionID); err != nil {
		return err
	}

	s.logger.Info("Conversation reset", zap.String("session_id", sessionID))
	return nil
}

// begin validates the prompt, takes the session lock, records the user turn
// and renders the model input from the stored history.
func (s *ChatService) begin(ctx context.Context, sessionID, prompt string) (string, string, func(), error) {
	if err := entities.ValidatePrompt(prompt); err != nil {
		return "", "", nil, err
	}
	sessionID = resolveSessionID(sessionID)

	release, err := s.locks.acquire(ctx, sessionID)
	if err != nil {
		return "", "", nil, fmt.Errorf("%w: %v", entities.ErrTransport, err)
	}

	if err := s.repo.Append(ctx, sessionID, entities.NewUserTurn(prompt)); err != nil {
		release()
		return "", "", nil, fmt.Errorf("failed to store prompt: %w", err)
	}

	// render what the store kept, so the model never sees turns the window dropped
	history, err := s.repo.History(ctx, sessionID)
	if err != nil {
		release()
		return "", "", nil, fmt.Errorf("failed to load history: %w", err)
	}

	rendered := entities.Render(history, s.config.RenderStyle)
	return sessionID, rendered, release, nil
}

func (s *ChatService) generationContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.config.GenerationTimeout > 0 {
		return context.WithTimeout(ctx, s.config.GenerationTimeout)
	}
	return context.WithCancel(ctx)
}

// generationFailure classifies a backend error. A cancelled request means the
// client left, anything else is the backend's fault.
func (s *ChatService) generationFailure(ctx context.Context, sessionID string, err error) error {
	if ctx.Err() != nil {
		s.logger.Info("Generation abandoned by client",
			zap.String("session_id", sessionID),
			zap.Error(ctx.Err()))
		return fmt.Errorf("%w: %v", entities.ErrTransport, ctx.Err())
	}

	if errors.Is(err, context.DeadlineExceeded) {
		err = fmt.Errorf("generation exceeded %s: %w", s.config.GenerationTimeout, err)
	}

	s.logger.Error("Generation failed",
		zap.String("session_id", sessionID),
		zap.String("backend", s.generator.Name()),
		zap.Error(err))

	return &entities.GenerationError{Backend: s.generator.Name(), Err: err}
}

func resetOnEmit(timer *time.Timer, idle time.Duration, emit func(string) error) func(string) error {
	return func(fragment string) error {
		timer.Stop()
		err := emit(fragment)
		timer.Reset(idle)
		return err
	}
}

func resolveSessionID(sessionID string) string {
	if sessionID == "" {
		return entities.DefaultSessionID
	}
	return sessionID
}
