package embedding

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/hyperjump/kotae/internal/models"
	"go.uber.org/zap"
)

const (
	defaultBatchSize  = 100
	defaultBatchPause = 100 * time.Millisecond
)

// Generator wraps an embedding Provider with a durable content-addressed
// cache, retry with exponential backoff, and order-preserving batching.
// It implements Embedder.
type Generator struct {
	provider   Provider
	cache      *Cache
	model      string
	dimensions int
	batchSize  int
	batchPause time.Duration
	retry      RetryPolicy
	logger     *zap.Logger
}

// GeneratorOption configures a Generator.
type GeneratorOption func(*Generator)

// WithDimensions overrides the dimensionality derived from the model name.
// Needed when the provider's output size differs from the known models.
func WithDimensions(n int) GeneratorOption {
	return func(g *Generator) {
		if n > 0 {
			g.dimensions = n
		}
	}
}

// WithBatchSize sets the sub-batch size for batch embedding.
func WithBatchSize(n int) GeneratorOption {
	return func(g *Generator) {
		if n > 0 {
			g.batchSize = n
		}
	}
}

// WithBatchPause sets the pause between sub-batches.
func WithBatchPause(d time.Duration) GeneratorOption {
	return func(g *Generator) { g.batchPause = d }
}

// WithRetryPolicy overrides the retry policy for provider calls.
func WithRetryPolicy(p RetryPolicy) GeneratorOption {
	return func(g *Generator) { g.retry = p }
}

// WithLogger sets a logger for cache and batch events.
func WithLogger(l *zap.Logger) GeneratorOption {
	return func(g *Generator) { g.logger = l }
}

// NewGenerator creates a generator for the given model. cache may be nil to
// disable caching (tests).
func NewGenerator(provider Provider, cache *Cache, model string, opts ...GeneratorOption) *Generator {
	g := &Generator{
		provider:   provider,
		cache:      cache,
		model:      model,
		dimensions: ModelDimensions(model),
		batchSize:  defaultBatchSize,
		batchPause: defaultBatchPause,
		retry:      DefaultRetryPolicy(5),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Dimensions returns the embedding dimensionality of the configured model.
func (g *Generator) Dimensions() int {
	return g.dimensions
}

// Embed returns the embedding for text. Blank text short-circuits to a zero
// vector without a provider call and without caching: it is cheap to
// recompute and carries no information. Cache hits skip the provider; misses
// call it once with retry and store the result before returning.
func (g *Generator) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		if g.logger != nil {
			g.logger.Warn("blank text for embedding, returning zero vector")
		}
		return make([]float32, g.dimensions), nil
	}

	var key []byte
	if g.cache != nil {
		key = CacheKey(g.model, text)
		if vec, ok := g.cache.Get(key); ok {
			return vec, nil
		}
	}

	var vec []float32
	err := g.retry.Do(ctx, func() error {
		var callErr error
		vec, callErr = g.provider.EmbedText(ctx, text, g.model)
		return callErr
	})
	if err != nil {
		return nil, fmt.Errorf("embed text: %w", err)
	}

	if g.cache != nil {
		if err := g.cache.Put(key, vec); err != nil && g.logger != nil {
			g.logger.Warn("embedding cache write failed", zap.Error(err))
		}
	}
	return vec, nil
}

// EmbedBatch embeds texts preserving input order, working through fixed-size
// sub-batches with a short pause between them to respect provider rate
// limits. Each text goes through the per-text cache path.
func (g *Generator) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	embeddings := make([][]float32, 0, len(texts))
	for i := 0; i < len(texts); i += g.batchSize {
		end := i + g.batchSize
		if end > len(texts) {
			end = len(texts)
		}
		for _, text := range texts[i:end] {
			vec, err := g.Embed(ctx, text)
			if err != nil {
				return nil, err
			}
			embeddings = append(embeddings, vec)
		}
		if end < len(texts) {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(g.batchPause):
			}
		}
	}
	return embeddings, nil
}

// EmbedChunks embeds each chunk's text and returns a chunk-ID-to-vector
// mapping. Chunks that fail to embed are absent from the result rather than
// aborting the whole document; callers must handle missing keys.
func (g *Generator) EmbedChunks(ctx context.Context, chunks []models.TextChunk) (map[string][]float32, error) {
	out := make(map[string][]float32, len(chunks))
	for i, chunk := range chunks {
		vec, err := g.Embed(ctx, chunk.Text)
		if err != nil {
			if ctx.Err() != nil {
				return out, ctx.Err()
			}
			if g.logger != nil {
				g.logger.Warn("chunk embedding failed, skipping",
					zap.String("chunk_id", chunk.ID),
					zap.Error(err))
			}
			continue
		}
		out[chunk.ID] = vec
		if (i+1)%g.batchSize == 0 && i+1 < len(chunks) {
			select {
			case <-ctx.Done():
				return out, ctx.Err()
			case <-time.After(g.batchPause):
			}
		}
	}
	return out, nil
}

// Close closes the cache if one is attached.
func (g *Generator) Close() error {
	if g.cache != nil {
		return g.cache.Close()
	}
	return nil
}
