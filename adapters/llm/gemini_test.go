package llm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"google.golang.org/genai"
)

func TestValidateGeminiConfig(t *testing.T) {
	tests := []struct {
		name    string
		config  GeminiConfig
		wantErr bool
	}{
		{name: "valid with defaults", config: GeminiConfig{APIKey: "key"}},
		{name: "missing api key", config: GeminiConfig{}, wantErr: true},
		{name: "temperature too high", config: GeminiConfig{APIKey: "key", Temperature: 3}, wantErr: true},
		{name: "topP out of range", config: GeminiConfig{APIKey: "key", TopP: 1.5}, wantErr: true},
		{name: "negative topK", config: GeminiConfig{APIKey: "key", TopK: -1}, wantErr: true},
		{name: "negative max tokens", config: GeminiConfig{APIKey: "key", MaxOutputTokens: -10}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateGeminiConfig(tt.config)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestNewGeminiGenerator_MissingKey(t *testing.T) {
	_, err := NewGeminiGenerator(context.Background(), GeminiConfig{}, zaptest.NewLogger(t))
	assert.Error(t, err)
}

func TestGeminiGenerator_Defaults(t *testing.T) {
	g := newGeminiGenerator(nil, GeminiConfig{APIKey: "key"}, zaptest.NewLogger(t))

	assert.Equal(t, defaultGeminiModel, g.model)
	assert.Equal(t, float32(defaultTemperature), g.temperature)
	assert.Equal(t, float32(defaultTopP), g.topP)
	assert.Equal(t, float32(defaultTopK), g.topK)
	assert.Equal(t, defaultMaxTokens, g.maxOutputTokens)
	assert.Equal(t, "gemini", g.Name())

	config := g.config()
	assert.Nil(t, config.SystemInstruction)
	assert.Equal(t, int32(defaultMaxTokens), config.MaxOutputTokens)

	withSystem := newGeminiGenerator(nil, GeminiConfig{APIKey: "key", Model: "gemini-pro", SystemPrompt: "Be brief."}, zaptest.NewLogger(t))
	assert.Equal(t, "gemini-pro", withSystem.model)
	require.NotNil(t, withSystem.config().SystemInstruction)
	assert.Equal(t, "Be brief.", withSystem.config().SystemInstruction.Parts[0].Text)
}

func TestExtractText(t *testing.T) {
	assert.Empty(t, extractText(nil))
	assert.Empty(t, extractText(&genai.GenerateContentResponse{}))

	response := &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{
			{Content: &genai.Content{Parts: []*genai.Part{{Text: "Hello"}, {Text: ", world"}}}},
			{Content: &genai.Content{Parts: []*genai.Part{{Text: "ignored"}}}},
		},
	}
	assert.Equal(t, "Hello, world", extractText(response))
}
