// Package llm wraps the generative-model client behind a small interface so
// every component that talks to a model can be tested with a fake.
package llm

import "context"

// Model is the language-model surface the engine consumes. Implementations
// must be safe for use from the single pipeline consumer.
type Model interface {
	// GenerateText sends a prompt and returns the raw text reply.
	GenerateText(ctx context.Context, prompt string) (string, error)

	// GenerateJSON sends a prompt that demands a JSON reply, strips any
	// markdown fencing the model added anyway, and unmarshals into out.
	GenerateJSON(ctx context.Context, prompt string, out any) error
}
