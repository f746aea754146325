// Package embedding provides text embedding via an external provider,
// with durable caching, batching, and retry.
package embedding

import "context"

// Embedder produces vector embeddings for text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	Close() error
}

// Provider is the raw external embedding capability: one text in, one vector
// out. Implementations report transient failures via TransientError so the
// retry policy can distinguish them from permanent ones.
type Provider interface {
	EmbedText(ctx context.Context, text, model string) ([]float32, error)
}

// ModelDimensions returns the output dimensionality of a known embedding
// model. Unknown models default to 1536.
func ModelDimensions(model string) int {
	switch model {
	case "text-embedding-3-large":
		return 3072
	case "text-embedding-3-small", "text-embedding-ada-002":
		return 1536
	default:
		return 1536
	}
}
