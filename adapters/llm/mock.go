package llm

import (
	"context"
	"fmt"
	"iter"
	"strings"
	"time"

	"github.com/satriahrh/obrolan/server/domain/repositories"
)

// MockGenerator answers with a deterministic reply built from the last prompt
// line and streams it word by word. Used for local runs and tests.
type MockGenerator struct {
	// Delay is slept between streamed words
	Delay time.Duration
}

var _ repositories.Generator = (*MockGenerator)(nil)

// NewMockGenerator creates a new mock generator
func NewMockGenerator(delay time.Duration) *MockGenerator {
	return &MockGenerator{Delay: delay}
}

// Name implements repositories.Generator
func (m *MockGenerator) Name() string {
	return "mock"
}

// Generate implements repositories.Generator
func (m *MockGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return MockReply(prompt), nil
}

// GenerateStream implements repositories.Generator
func (m *MockGenerator) GenerateStream(ctx context.Context, prompt string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		for i, word := range strings.SplitAfter(MockReply(prompt), " ") {
			if i > 0 && m.Delay > 0 {
				timer := time.NewTimer(m.Delay)
				select {
				case <-ctx.Done():
					timer.Stop()
					yield("", ctx.Err())
					return
				case <-timer.C:
				}
			}
			if err := ctx.Err(); err != nil {
				yield("", err)
				return
			}
			if !yield(word, nil) {
				return
			}
		}
	}
}

// MockReply is the reply MockGenerator produces for a rendered prompt
func MockReply(prompt string) string {
	lines := strings.Split(strings.TrimSpace(prompt), "\n")
	last := strings.TrimSpace(lines[len(lines)-1])
	return fmt.Sprintf("You said: %s (turn %d)", last, len(lines))
}
