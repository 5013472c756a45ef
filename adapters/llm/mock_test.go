package llm

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/satriahrh/obrolan/server/domain/entities"
	"github.com/satriahrh/obrolan/server/domain/repositories"
)

func TestMockReply(t *testing.T) {
	assert.Equal(t, "You said: Hello, how are you? (turn 1)", MockReply("Hello, how are you?"))
	assert.Equal(t, "You said: What's your name? (turn 3)", MockReply("Hi\nYou said: Hi (turn 1)\nWhat's your name?"))
}

func TestMockGenerator_StreamMatchesGenerate(t *testing.T) {
	generator := NewMockGenerator(0)
	ctx := context.Background()

	reply, err := generator.Generate(ctx, "Hi")
	require.NoError(t, err)

	var fragments []string
	for fragment, err := range generator.GenerateStream(ctx, "Hi") {
		require.NoError(t, err)
		fragments = append(fragments, fragment)
	}

	assert.Greater(t, len(fragments), 1)
	assert.Equal(t, reply, strings.Join(fragments, ""))
}

func TestMockGenerator_StreamCancelled(t *testing.T) {
	generator := NewMockGenerator(50 * time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var fragments []string
	var streamErr error
	for fragment, err := range generator.GenerateStream(ctx, "Hi") {
		if err != nil {
			streamErr = err
			break
		}
		fragments = append(fragments, fragment)
		cancel()
	}

	assert.Len(t, fragments, 1)
	assert.ErrorIs(t, streamErr, context.Canceled)
}

func TestMockGenerator_EarlyStop(t *testing.T) {
	generator := NewMockGenerator(0)

	count := 0
	for range generator.GenerateStream(context.Background(), "Hi") {
		count++
		break
	}
	assert.Equal(t, 1, count)
}

func TestLazyGenerator(t *testing.T) {
	logger := zaptest.NewLogger(t)
	ctx := context.Background()

	t.Run("builds once", func(t *testing.T) {
		builds := 0
		lazy := NewLazyGenerator("mock", func(ctx context.Context) (repositories.Generator, error) {
			builds++
			return NewMockGenerator(0), nil
		}, logger)

		for i := 0; i < 3; i++ {
			_, err := lazy.Generate(ctx, "Hi")
			require.NoError(t, err)
		}
		assert.Equal(t, 1, builds)
		assert.Equal(t, "mock", lazy.Name())
	})

	t.Run("build failure is retried", func(t *testing.T) {
		builds := 0
		lazy := NewLazyGenerator("gemini", func(ctx context.Context) (repositories.Generator, error) {
			builds++
			if builds == 1 {
				return nil, errors.New("no credentials")
			}
			return NewMockGenerator(0), nil
		}, logger)

		_, err := lazy.Generate(ctx, "Hi")
		assert.ErrorIs(t, err, entities.ErrModelUnavailable)

		var streamErr error
		for _, err := range lazy.GenerateStream(ctx, "Hi") {
			streamErr = err
		}
		assert.NoError(t, streamErr)
		assert.Equal(t, 2, builds)
	})

	t.Run("stream reports build failure", func(t *testing.T) {
		lazy := NewLazyGenerator("ollama", func(ctx context.Context) (repositories.Generator, error) {
			return nil, errors.New("unreachable")
		}, logger)

		var streamErr error
		for _, err := range lazy.GenerateStream(ctx, "Hi") {
			streamErr = err
		}
		assert.ErrorIs(t, streamErr, entities.ErrModelUnavailable)
	})
}
