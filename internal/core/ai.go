package core

import "context"

// EmbeddingProvider returns one vector per input text, in input order.
// An empty input returns an empty result without calling the service.
type EmbeddingProvider interface {
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// LLMProvider returns the model's text for one system + user prompt pair.
type LLMProvider interface {
	Generate(ctx context.Context, systemPrompt string, userPrompt string) (string, error)
}
