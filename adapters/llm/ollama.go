package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"net/http"
	"net/url"

	"go.uber.org/zap"

	"github.com/satriahrh/obrolan/server/domain/repositories"
)

const (
	defaultOllamaHost  = "http://localhost:11434"
	defaultOllamaModel = "llama3.2"
	generatePath       = "/api/generate"
)

// OllamaConfig holds configuration for the Ollama generator
type OllamaConfig struct {
	Host  string
	Model string
}

// OllamaGenerator implements the Generator interface against a local Ollama server
type OllamaGenerator struct {
	generateURL string
	model       string
	http        *http.Client
	logger      *zap.Logger
}

var _ repositories.Generator = (*OllamaGenerator)(nil)

type ollamaGenerateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

type ollamaGenerateResponse struct {
	Model    string `json:"model"`
	Response string `json:"response"`
	Done     bool   `json:"done"`
	Error    string `json:"error,omitempty"`
}

// NewOllamaGenerator creates a new Ollama generator
func NewOllamaGenerator(config OllamaConfig, logger *zap.Logger) (*OllamaGenerator, error) {
	host := config.Host
	if host == "" {
		host = defaultOllamaHost
		logger.Info("Using default Ollama host", zap.String("host", host))
	}

	base, err := url.Parse(host)
	if err != nil {
		return nil, fmt.Errorf("invalid Ollama host %q: %w", host, err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid Ollama host %q: scheme and host are required", host)
	}

	model := config.Model
	if model == "" {
		model = defaultOllamaModel
		logger.Info("Using default model", zap.String("model", model))
	}

	return &OllamaGenerator{
		generateURL: base.ResolveReference(&url.URL{Path: generatePath}).String(),
		model:       model,
		http:        &http.Client{},
		logger:      logger,
	}, nil
}

// Name implements repositories.Generator
func (o *OllamaGenerator) Name() string {
	return "ollama"
}

// Generate implements repositories.Generator
func (o *OllamaGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	body, err := o.do(ctx, prompt, false)
	if err != nil {
		return "", err
	}
	defer body.Close()

	var response ollamaGenerateResponse
	if err := json.NewDecoder(body).Decode(&response); err != nil {
		return "", fmt.Errorf("failed to decode Ollama response: %w", err)
	}
	if response.Error != "" {
		return "", errors.New(response.Error)
	}

	return response.Response, nil
}

// GenerateStream implements repositories.Generator. Ollama streams one JSON
// object per line until an object with done set.
func (o *OllamaGenerator) GenerateStream(ctx context.Context, prompt string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		body, err := o.do(ctx, prompt, true)
		if err != nil {
			yield("", err)
			return
		}
		defer body.Close()

		scanner := bufio.NewScanner(body)
		for scanner.Scan() {
			line := bytes.TrimSpace(scanner.Bytes())
			if len(line) == 0 {
				continue
			}

			var chunk ollamaGenerateResponse
			if err := json.Unmarshal(line, &chunk); err != nil {
				yield("", fmt.Errorf("failed to decode Ollama chunk: %w", err))
				return
			}
			if chunk.Error != "" {
				yield("", errors.New(chunk.Error))
				return
			}

			if chunk.Response != "" {
				if !yield(chunk.Response, nil) {
					return
				}
			}
			if chunk.Done {
				return
			}
		}
		if err := scanner.Err(); err != nil {
			yield("", fmt.Errorf("scanner error: %w", err))
			return
		}

		// body ended without a done marker
		yield("", io.ErrUnexpectedEOF)
	}
}

func (o *OllamaGenerator) do(ctx context.Context, prompt string, stream bool) (io.ReadCloser, error) {
	payload, err := json.Marshal(ollamaGenerateRequest{Model: o.model, Prompt: prompt, Stream: stream})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, o.generateURL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	request.Header.Set("Content-Type", "application/json")
	if stream {
		request.Header.Set("Accept", "application/x-ndjson")
	}

	response, err := o.http.Do(request)
	if err != nil {
		return nil, fmt.Errorf("failed to execute HTTP request: %w", err)
	}

	if response.StatusCode != http.StatusOK {
		defer response.Body.Close()
		errorBody, _ := io.ReadAll(io.LimitReader(response.Body, 1024))
		o.logger.Error("Ollama returned error",
			zap.Int("statusCode", response.StatusCode),
			zap.String("response", string(errorBody)))
		return nil, fmt.Errorf("ollama returned status %d: %s", response.StatusCode, bytes.TrimSpace(errorBody))
	}

	return response.Body, nil
}
