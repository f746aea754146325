package vector

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/models"
)

// Embedder is the slice of the embedding generator the store needs.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedChunks(ctx context.Context, chunks []models.TextChunk) (map[string][]float32, error)
}

// Store pairs an embedder with an index backend and speaks in chunks
// and query results rather than raw vectors.
type Store struct {
	index      Index
	embedder   Embedder
	batchSize  int
	batchPause time.Duration
	logger     *zap.Logger
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithBatchSize overrides the upsert batch size.
func WithBatchSize(n int) StoreOption {
	return func(s *Store) {
		if n > 0 {
			s.batchSize = n
		}
	}
}

// WithBatchPause overrides the pause between upsert batches.
func WithBatchPause(d time.Duration) StoreOption {
	return func(s *Store) { s.batchPause = d }
}

// WithLogger attaches a logger.
func WithLogger(l *zap.Logger) StoreOption {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewStore creates a Store over the given index and embedder.
func NewStore(index Index, embedder Embedder, opts ...StoreOption) *Store {
	s := &Store{
		index:      index,
		embedder:   embedder,
		batchSize:  100,
		batchPause: 100 * time.Millisecond,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// UpsertChunks embeds the chunks and writes them into the namespace in
// batches. Chunks whose embedding failed are skipped with a warning
// rather than failing the whole upload. Returns the number of vectors
// written.
func (s *Store) UpsertChunks(ctx context.Context, namespace string, chunks []models.TextChunk) (int, error) {
	if len(chunks) == 0 {
		return 0, nil
	}

	embeddings, err := s.embedder.EmbedChunks(ctx, chunks)
	if err != nil {
		return 0, fmt.Errorf("embed chunks: %w", err)
	}

	records := make([]Record, 0, len(chunks))
	now := time.Now().UTC().Format(time.RFC3339)
	for _, chunk := range chunks {
		values, ok := embeddings[chunk.ID]
		if !ok {
			s.logger.Warn("skipping chunk without embedding",
				zap.String("chunk_id", chunk.ID),
				zap.String("document_id", chunk.DocumentID))
			continue
		}
		records = append(records, Record{
			ID:     chunk.ID,
			Values: values,
			Metadata: Metadata{
				Text:         chunk.Text,
				Page:         chunk.PageNumber,
				DocumentID:   chunk.DocumentID,
				DocumentName: chunk.DocumentName,
				ChunkIndex:   chunk.ChunkIndex,
				Timestamp:    now,
			},
		})
	}

	total := 0
	for i := 0; i < len(records); i += s.batchSize {
		end := i + s.batchSize
		if end > len(records) {
			end = len(records)
		}
		n, err := s.index.Upsert(ctx, namespace, records[i:end])
		if err != nil {
			return total, fmt.Errorf("upsert batch: %w", err)
		}
		total += n
		if end < len(records) && s.batchPause > 0 {
			select {
			case <-ctx.Done():
				return total, ctx.Err()
			case <-time.After(s.batchPause):
			}
		}
	}

	s.logger.Info("upserted chunks",
		zap.String("namespace", namespace),
		zap.Int("count", total),
		zap.Int("skipped", len(chunks)-len(records)))
	return total, nil
}

// Query embeds the query text and returns the topK nearest chunks in
// the namespace as query results.
func (s *Store) Query(ctx context.Context, namespace, query string, topK int) ([]models.QueryResult, error) {
	vec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	matches, err := s.index.Query(ctx, namespace, vec, topK, true)
	if err != nil {
		return nil, fmt.Errorf("query index: %w", err)
	}
	results := make([]models.QueryResult, 0, len(matches))
	for _, m := range matches {
		results = append(results, models.QueryResult{
			ID:           m.ID,
			Score:        m.Score,
			Text:         m.Metadata.Text,
			Page:         m.Metadata.Page,
			DocumentID:   m.Metadata.DocumentID,
			DocumentName: m.Metadata.DocumentName,
			ChunkIndex:   m.Metadata.ChunkIndex,
		})
	}
	return results, nil
}

// DeleteNamespace purges every vector in the namespace.
func (s *Store) DeleteNamespace(ctx context.Context, namespace string) error {
	return s.index.DeleteAll(ctx, namespace)
}

// DeleteVectors removes specific vectors from the namespace.
func (s *Store) DeleteVectors(ctx context.Context, namespace string, ids []string) error {
	return s.index.Delete(ctx, namespace, ids)
}

// IndexType reports the backing index type.
func (s *Store) IndexType() string { return s.index.Type() }
