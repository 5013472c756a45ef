package repositories

import (
	"context"
	"iter"
)

// Generator abstracts the pretrained model that produces replies
type Generator interface {
	// Name identifies the backend in logs and errors
	Name() string
	// Generate takes a rendered prompt and returns one complete reply
	Generate(ctx context.Context, prompt string) (string, error)
	// GenerateStream lazily yields reply fragments in generation order.
	// The sequence is finite and not restartable; a failure is yielded as the
	// final element with an empty fragment. Breaking out of the range loop
	// stops generation.
	GenerateStream(ctx context.Context, prompt string) iter.Seq2[string, error]
}
