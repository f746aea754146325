package processor

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperjump/kotae/internal/answer"
	"github.com/hyperjump/kotae/internal/chunker"
	"github.com/hyperjump/kotae/internal/embedding"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/retriever"
	"github.com/hyperjump/kotae/internal/store"
	"github.com/hyperjump/kotae/internal/vector"
)

// buildLongDocument produces roughly 2.4k characters of cleaned prose
// with a distinctive phrase placed in the middle of the text.
func buildLongDocument() string {
	const (
		early  = "The northern river carries silt toward the wide delta basin in spring. "
		marker = "The silver heron nests beside the quiet lagoon during early autumn. "
		late   = "Winter storms reshape the coastal dunes near the old lighthouse wall. "
	)
	var b strings.Builder
	for b.Len() < 1100 {
		b.WriteString(early)
	}
	b.WriteString(marker)
	for b.Len()+len(late) <= 2450 {
		b.WriteString(late)
	}
	return strings.TrimSpace(b.String())
}

type pipeline struct {
	proc  *Processor
	meta  store.Store
	index *vector.MemoryIndex
}

// flakyVectors wraps a vector store to make DeleteNamespace fail for
// chosen namespaces.
type flakyVectors struct {
	inner   *vector.Store
	failNS  map[string]bool
	deleted []string
}

func (f *flakyVectors) UpsertChunks(ctx context.Context, namespace string, chunks []models.TextChunk) (int, error) {
	return f.inner.UpsertChunks(ctx, namespace, chunks)
}

func (f *flakyVectors) DeleteNamespace(ctx context.Context, namespace string) error {
	if f.failNS[namespace] {
		return errors.New("index unavailable")
	}
	f.deleted = append(f.deleted, namespace)
	return f.inner.DeleteNamespace(ctx, namespace)
}

func newPipeline(t *testing.T, opts ...Option) (*pipeline, *flakyVectors) {
	t.Helper()
	const dims = 128

	gen := embedding.NewGenerator(embedding.NewMockProvider(dims), nil, "mock",
		embedding.WithDimensions(dims), embedding.WithBatchPause(0))
	idx, err := vector.NewMemoryIndex(dims)
	require.NoError(t, err)
	vectors := &flakyVectors{
		inner:  vector.NewStore(idx, gen, vector.WithBatchPause(0)),
		failNS: map[string]bool{},
	}

	ch, err := chunker.NewChunker(1000, 200)
	require.NoError(t, err)
	meta := store.NewMemoryStore()
	ret := retriever.New(vectors.inner)

	extract := func(content []byte) (map[int]string, error) {
		pages := make(map[int]string)
		for i, pageText := range strings.Split(string(content), "\f") {
			if strings.TrimSpace(pageText) != "" {
				pages[i] = pageText
			}
		}
		if len(pages) == 0 {
			return nil, errors.New("no pages")
		}
		return pages, nil
	}

	proc := New(ch, extract, meta, vectors, ret, opts...)
	return &pipeline{proc: proc, meta: meta, index: idx}, vectors
}

func TestProcessor_UploadAndQueryEndToEnd(t *testing.T) {
	p, _ := newPipeline(t)
	ctx := context.Background()
	text := buildLongDocument()
	require.Greater(t, len(text), 2300)
	require.Less(t, len(text), 2500)

	result, err := p.proc.ProcessDocument(ctx, "rivers.pdf", []byte(text), "")
	require.NoError(t, err)

	assert.Equal(t, "success", result.Status)
	assert.NotEmpty(t, result.DocumentID)
	assert.NotEmpty(t, result.SessionID)
	assert.Equal(t, "rivers.pdf", result.Filename)
	assert.Equal(t, 3, result.Statistics.TotalChunks)
	assert.Equal(t, 1, result.Statistics.TotalPages)
	require.Len(t, result.SampleChunks, 3)
	assert.Equal(t, 1, result.SampleChunks[0].Page)
	assert.LessOrEqual(t, len(result.SampleChunks[0].TextPreview), 103)

	assert.Equal(t, 3, p.index.NamespaceSize(models.DocumentNamespace(result.DocumentID)))

	outcome, err := p.proc.Query(ctx, models.QueryRequest{
		Query:      "silver heron nests beside the quiet lagoon",
		DocumentID: result.DocumentID,
		TopK:       5,
	})
	require.NoError(t, err)
	require.NotEmpty(t, outcome.Retrieval.Results)
	assert.Contains(t, outcome.Retrieval.Results[0].Text, "silver heron")
	for _, res := range outcome.Retrieval.Results[1:] {
		assert.GreaterOrEqual(t, outcome.Retrieval.Results[0].Score, res.Score)
	}
	assert.Contains(t, outcome.Retrieval.Context, "--- Page 0 ---")
}

func TestProcessor_UploadMintsSessionOrKeepsSupplied(t *testing.T) {
	p, _ := newPipeline(t)
	ctx := context.Background()

	r1, err := p.proc.ProcessDocument(ctx, "a.pdf", []byte("short text about gardens"), "")
	require.NoError(t, err)
	assert.NotEmpty(t, r1.SessionID)

	r2, err := p.proc.ProcessDocument(ctx, "b.pdf", []byte("short text about harbors"), r1.SessionID)
	require.NoError(t, err)
	assert.Equal(t, r1.SessionID, r2.SessionID)

	ids, err := p.meta.SessionDocumentIDs(ctx, r1.SessionID)
	require.NoError(t, err)
	assert.Equal(t, []string{r1.DocumentID, r2.DocumentID}, ids)
}

func TestProcessor_QueryUnknownDocument(t *testing.T) {
	p, _ := newPipeline(t)
	_, err := p.proc.Query(context.Background(), models.QueryRequest{
		Query:      "anything",
		DocumentID: "missing",
	})
	assert.ErrorIs(t, err, store.ErrDocumentNotFound)
}

func TestProcessor_QueryValidation(t *testing.T) {
	p, _ := newPipeline(t)
	_, err := p.proc.Query(context.Background(), models.QueryRequest{DocumentID: "d1"})
	assert.Error(t, err)
}

func TestProcessor_DeleteDocumentCascades(t *testing.T) {
	p, _ := newPipeline(t)
	ctx := context.Background()

	r, err := p.proc.ProcessDocument(ctx, "a.pdf", []byte("a page about orchards"), "s1")
	require.NoError(t, err)
	ns := models.DocumentNamespace(r.DocumentID)
	require.Equal(t, 1, p.index.NamespaceSize(ns))

	require.NoError(t, p.proc.DeleteDocument(ctx, r.DocumentID))

	assert.Equal(t, 0, p.index.NamespaceSize(ns))
	_, err = p.proc.GetDocument(ctx, r.DocumentID)
	assert.ErrorIs(t, err, store.ErrDocumentNotFound)
	ids, err := p.meta.SessionDocumentIDs(ctx, "s1")
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestProcessor_DeleteUnknownDocument(t *testing.T) {
	p, _ := newPipeline(t)
	err := p.proc.DeleteDocument(context.Background(), "missing")
	assert.ErrorIs(t, err, store.ErrDocumentNotFound)
}

func TestProcessor_ClearSessionToleratesFailures(t *testing.T) {
	p, vectors := newPipeline(t)
	ctx := context.Background()

	r1, err := p.proc.ProcessDocument(ctx, "a.pdf", []byte("a page about meadows"), "s1")
	require.NoError(t, err)
	r2, err := p.proc.ProcessDocument(ctx, "b.pdf", []byte("a page about tides"), "s1")
	require.NoError(t, err)

	vectors.failNS[models.DocumentNamespace(r2.DocumentID)] = true

	deleted, err := p.proc.ClearSession(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 1, deleted)

	ids, err := p.meta.SessionDocumentIDs(ctx, "s1")
	require.NoError(t, err)
	assert.Empty(t, ids)

	_, err = p.proc.GetDocument(ctx, r1.DocumentID)
	assert.ErrorIs(t, err, store.ErrDocumentNotFound)
	_, err = p.proc.GetDocument(ctx, r2.DocumentID)
	assert.NoError(t, err)
}

func TestProcessor_ClearSessionTwice(t *testing.T) {
	p, _ := newPipeline(t)
	ctx := context.Background()

	_, err := p.proc.ProcessDocument(ctx, "a.pdf", []byte("a page about meadows"), "s1")
	require.NoError(t, err)

	deleted, err := p.proc.ClearSession(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 1, deleted)

	deleted, err = p.proc.ClearSession(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 0, deleted)
}

func TestProcessor_ClearUnknownSession(t *testing.T) {
	p, _ := newPipeline(t)
	_, err := p.proc.ClearSession(context.Background(), "ghost")
	assert.ErrorIs(t, err, store.ErrSessionNotFound)
}

// staticAnswerer returns canned responses so the query flow's answer
// wiring can be exercised without a model.
type staticAnswerer struct {
	generated int
	fallbacks int
}

func (s *staticAnswerer) Generate(ctx context.Context, query, contextText string, results []models.QueryResult) *answer.Response {
	s.generated++
	return &answer.Response{Answer: "generated", HasSufficientContext: true}
}

func (s *staticAnswerer) Fallback(ctx context.Context, query string) *answer.Response {
	s.fallbacks++
	return &answer.Response{Answer: "fallback"}
}

func TestProcessor_QueryUsesAnswerGenerator(t *testing.T) {
	answers := &staticAnswerer{}
	p, _ := newPipeline(t, WithAnswerGenerator(answers))
	ctx := context.Background()

	r, err := p.proc.ProcessDocument(ctx, "a.pdf", []byte("the contract term is three years"), "s1")
	require.NoError(t, err)

	outcome, err := p.proc.Query(ctx, models.QueryRequest{
		Query:      "how long is the contract term",
		DocumentID: r.DocumentID,
	})
	require.NoError(t, err)
	require.NotNil(t, outcome.Answer)
	assert.Equal(t, "generated", outcome.Answer.Answer)
	assert.Equal(t, 1, answers.generated)
	assert.Zero(t, answers.fallbacks)
}
