package llm

import (
	"context"
	"fmt"
	"iter"
	"sync"

	"go.uber.org/zap"

	"github.com/satriahrh/obrolan/server/domain/entities"
	"github.com/satriahrh/obrolan/server/domain/repositories"
)

// BuildFunc constructs a generator on first use
type BuildFunc func(ctx context.Context) (repositories.Generator, error)

// LazyGenerator defers building the backend client until the first request.
// A failed build is retried on the next request.
type LazyGenerator struct {
	name   string
	build  BuildFunc
	logger *zap.Logger

	mu        sync.Mutex
	generator repositories.Generator
}

var _ repositories.Generator = (*LazyGenerator)(nil)

// NewLazyGenerator creates a generator that calls build on first use
func NewLazyGenerator(name string, build BuildFunc, logger *zap.Logger) *LazyGenerator {
	return &LazyGenerator{
		name:   name,
		build:  build,
		logger: logger,
	}
}

// Name implements repositories.Generator
func (l *LazyGenerator) Name() string {
	return l.name
}

// Generate implements repositories.Generator
func (l *LazyGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	generator, err := l.get(ctx)
	if err != nil {
		return "", err
	}
	return generator.Generate(ctx, prompt)
}

// GenerateStream implements repositories.Generator
func (l *LazyGenerator) GenerateStream(ctx context.Context, prompt string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		generator, err := l.get(ctx)
		if err != nil {
			yield("", err)
			return
		}
		for fragment, err := range generator.GenerateStream(ctx, prompt) {
			if !yield(fragment, err) {
				return
			}
		}
	}
}

func (l *LazyGenerator) get(ctx context.Context) (repositories.Generator, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.generator != nil {
		return l.generator, nil
	}

	generator, err := l.build(ctx)
	if err != nil {
		l.logger.Error("Failed to initialise generation backend", zap.String("backend", l.name), zap.Error(err))
		return nil, fmt.Errorf("%w: %v", entities.ErrModelUnavailable, err)
	}

	l.logger.Info("Generation backend initialised", zap.String("backend", l.name))
	l.generator = generator
	return generator, nil
}
