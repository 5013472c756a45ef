package entities

import (
	"errors"
	"fmt"
	"strings"
)

// ErrTransport marks a stream abandoned because the client went away.
// It is a cancellation, not a user visible failure.
var ErrTransport = errors.New("client disconnected")

// ValidationError is a client fault detected before any generation or history mutation
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// GenerationError wraps a failure reported by the generation backend
type GenerationError struct {
	Backend string
	Err     error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("generation failed on %s backend: %v", e.Backend, e.Err)
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}

// ValidatePrompt checks that a prompt carries some non-whitespace text
func ValidatePrompt(prompt string) error {
	if strings.TrimSpace(prompt) == "" {
		return &ValidationError{
			Field:   "prompt",
			Message: "expected JSON with 'prompt' or form field 'prompt'",
		}
	}
	return nil
}

// ErrModelUnavailable means the generation backend could not be initialised
var ErrModelUnavailable = errors.New("model not available")
