package domain

import "context"

// Generator is the generative model contract. The model is an untrusted
// external function with no latency or availability guarantee; callers go
// through a retry policy, never invoke it inline.
type Generator interface {
	Generate(ctx context.Context, prompt Prompt) (GenerationResult, error)
}

// Prompt is the bounded input assembled by the synthesizer.
type Prompt struct {
	System string
	User   string
}

// GenerationResult carries the model output and token usage.
type GenerationResult struct {
	Text             string
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}
