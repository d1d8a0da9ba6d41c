package analysis

import "context"

// Model is the pluggable LLM backend boundary. The specific provider is out
// of scope per spec.md §1 — the engine depends only on this interface, and
// selects an implementation from internal/config's model.provider field.
type Model interface {
	// Complete sends prompt and returns the model's raw text response.
	Complete(ctx context.Context, prompt string) (string, error)
}
