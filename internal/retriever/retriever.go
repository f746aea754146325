// Package retriever turns a raw similarity search into an answerable
// context: it overfetches candidates, filters them by relevance, and
// assembles a page-ordered context string.
package retriever

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/models"
)

// DefaultScoreThreshold is the minimum similarity a result needs to be
// considered relevant.
const DefaultScoreThreshold = 0.7

// minCandidates is the floor on how many candidates are fetched before
// filtering, regardless of the requested topK.
const minCandidates = 10

// VectorSearcher is the slice of the vector store the retriever needs.
type VectorSearcher interface {
	Query(ctx context.Context, namespace, query string, topK int) ([]models.QueryResult, error)
}

// Retriever runs relevance-filtered retrieval over a vector searcher.
type Retriever struct {
	searcher  VectorSearcher
	threshold float64
	logger    *zap.Logger
}

// Option configures a Retriever.
type Option func(*Retriever)

// WithThreshold overrides the relevance score threshold.
func WithThreshold(threshold float64) Option {
	return func(r *Retriever) { r.threshold = threshold }
}

// WithLogger attaches a logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *Retriever) {
		if l != nil {
			r.logger = l
		}
	}
}

// New creates a Retriever over the searcher.
func New(searcher VectorSearcher, opts ...Option) *Retriever {
	r := &Retriever{
		searcher:  searcher,
		threshold: DefaultScoreThreshold,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Retrieve searches the document's namespace, filters candidates by
// relevance, and assembles the context. topK bounds the number of
// results returned after filtering; the search itself overfetches so
// the filter has room to work.
func (r *Retriever) Retrieve(ctx context.Context, query, documentID string, topK int) (*models.Retrieval, error) {
	start := time.Now()
	if topK <= 0 {
		topK = models.DefaultTopK
	}
	namespace := models.DocumentNamespace(documentID)

	fetch := 2 * topK
	if fetch < minCandidates {
		fetch = minCandidates
	}

	searchStart := time.Now()
	candidates, err := r.searcher.Query(ctx, namespace, query, fetch)
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", namespace, err)
	}
	searchMs := time.Since(searchStart).Milliseconds()

	results := FilterByRelevance(candidates, r.threshold)
	if len(results) > topK {
		results = results[:topK]
	}

	r.logger.Debug("retrieval complete",
		zap.String("document_id", documentID),
		zap.Int("candidates", len(candidates)),
		zap.Int("results", len(results)))

	return &models.Retrieval{
		Query:            query,
		DocumentID:       documentID,
		Results:          results,
		ResultCount:      len(results),
		Context:          AssembleContext(results),
		ProcessingTimeMs: time.Since(start).Milliseconds(),
		SearchTimeMs:     searchMs,
	}, nil
}

// FilterByRelevance keeps results scoring at or above threshold, in
// their original order. When nothing clears the bar but candidates
// exist, the single best candidate is kept so the caller always has
// something to ground an answer on.
func FilterByRelevance(candidates []models.QueryResult, threshold float64) []models.QueryResult {
	filtered := make([]models.QueryResult, 0, len(candidates))
	for _, c := range candidates {
		if c.Score >= threshold {
			filtered = append(filtered, c)
		}
	}
	if len(filtered) == 0 && len(candidates) > 0 {
		best := 0
		for i, c := range candidates {
			if c.Score > candidates[best].Score {
				best = i
			}
		}
		return []models.QueryResult{candidates[best]}
	}
	return filtered
}

// AssembleContext formats results into a single context string grouped
// by page. Pages appear in ascending order, and within a page chunks
// appear in document order. Each page group is headed by a page marker
// and groups are separated by blank lines.
func AssembleContext(results []models.QueryResult) string {
	if len(results) == 0 {
		return ""
	}
	byPage := make(map[int][]models.QueryResult)
	pages := make([]int, 0)
	for _, res := range results {
		if _, seen := byPage[res.Page]; !seen {
			pages = append(pages, res.Page)
		}
		byPage[res.Page] = append(byPage[res.Page], res)
	}
	sort.Ints(pages)

	parts := make([]string, 0, len(results)+len(pages))
	for _, page := range pages {
		group := byPage[page]
		sort.SliceStable(group, func(i, j int) bool {
			return group[i].ChunkIndex < group[j].ChunkIndex
		})
		parts = append(parts, fmt.Sprintf("\n--- Page %d ---\n", page))
		for _, res := range group {
			if text := strings.TrimSpace(res.Text); text != "" {
				parts = append(parts, text)
			}
		}
	}
	return strings.Join(parts, "\n\n")
}
