// Package processor orchestrates the document lifecycle: upload
// processing, querying, deletion, and session clearing.
package processor

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/answer"
	"github.com/hyperjump/kotae/internal/chunker"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/store"
	"github.com/hyperjump/kotae/pkg/utils"
)

const samplePreviewLen = 100

// PageExtractor turns a PDF's raw bytes into per-page text keyed by
// 0-indexed page number.
type PageExtractor func(content []byte) (map[int]string, error)

// VectorStore is the slice of the vector layer the processor needs.
type VectorStore interface {
	UpsertChunks(ctx context.Context, namespace string, chunks []models.TextChunk) (int, error)
	DeleteNamespace(ctx context.Context, namespace string) error
}

// Retriever runs relevance-filtered retrieval for one document.
type Retriever interface {
	Retrieve(ctx context.Context, query, documentID string, topK int) (*models.Retrieval, error)
}

// AnswerGenerator synthesizes a cited answer from retrieved context.
type AnswerGenerator interface {
	Generate(ctx context.Context, query, contextText string, results []models.QueryResult) *answer.Response
	Fallback(ctx context.Context, query string) *answer.Response
}

// QueryOutcome is the combined payload of one query: the retrieval and,
// when answer synthesis is configured, the generated answer.
type QueryOutcome struct {
	Retrieval *models.Retrieval
	Answer    *answer.Response
}

// Processor ties chunking, embedding, vector storage, metadata, and
// answer synthesis together.
type Processor struct {
	chunker      *chunker.Chunker
	extractPages PageExtractor
	meta         store.Store
	vectors      VectorStore
	retriever    Retriever
	answers      AnswerGenerator
	logger       *zap.Logger
}

// Option configures a Processor.
type Option func(*Processor)

// WithAnswerGenerator enables answer synthesis on queries.
func WithAnswerGenerator(g AnswerGenerator) Option {
	return func(p *Processor) { p.answers = g }
}

// WithLogger attaches a logger.
func WithLogger(l *zap.Logger) Option {
	return func(p *Processor) {
		if l != nil {
			p.logger = l
		}
	}
}

// New creates a Processor. Answer synthesis is optional; without it,
// queries return retrieval results only.
func New(ch *chunker.Chunker, extractPages PageExtractor, meta store.Store, vectors VectorStore, retriever Retriever, opts ...Option) *Processor {
	p := &Processor{
		chunker:      ch,
		extractPages: extractPages,
		meta:         meta,
		vectors:      vectors,
		retriever:    retriever,
		logger:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ProcessDocument runs the full upload flow: extract per-page text,
// chunk it, embed and upsert into the document's namespace, record
// metadata, and append the document to the session. A fresh session ID
// is minted when none is supplied.
func (p *Processor) ProcessDocument(ctx context.Context, filename string, content []byte, sessionID string) (*models.UploadResult, error) {
	pages, err := p.extractPages(content)
	if err != nil {
		return nil, fmt.Errorf("extract text: %w", err)
	}

	documentID := uuid.New().String()
	if sessionID == "" {
		sessionID = uuid.New().String()
	}

	chunks := p.chunker.ChunkPages(pages, documentID, filename)
	if len(chunks) == 0 {
		return nil, fmt.Errorf("no text could be extracted from %s", filename)
	}

	namespace := models.DocumentNamespace(documentID)
	count, err := p.vectors.UpsertChunks(ctx, namespace, chunks)
	if err != nil {
		return nil, fmt.Errorf("store vectors: %w", err)
	}

	stats := models.ComputeStatistics(chunks)
	doc := &models.Document{
		ID:         documentID,
		Filename:   filename,
		Namespace:  namespace,
		ChunkCount: count,
		Statistics: stats,
		CreatedAt:  time.Now().UTC(),
	}
	if err := p.meta.CreateDocument(ctx, doc, sessionID); err != nil {
		return nil, fmt.Errorf("record document: %w", err)
	}

	p.logger.Info("document processed",
		zap.String("document_id", documentID),
		zap.String("session_id", sessionID),
		zap.String("filename", filename),
		zap.Int("chunks", count),
		zap.Int("pages", stats.TotalPages))

	return &models.UploadResult{
		DocumentID:   documentID,
		SessionID:    sessionID,
		Filename:     filename,
		Status:       "success",
		Statistics:   stats,
		SampleChunks: sampleChunks(chunks),
	}, nil
}

// sampleChunks previews the first three chunks for the upload response.
// Pages are shown 1-indexed.
func sampleChunks(chunks []models.TextChunk) []models.SampleChunk {
	n := len(chunks)
	if n > 3 {
		n = 3
	}
	samples := make([]models.SampleChunk, 0, n)
	for _, chunk := range chunks[:n] {
		samples = append(samples, models.SampleChunk{
			ChunkID:     chunk.ID,
			Page:        chunk.PageNumber + 1,
			TextPreview: utils.Truncate(chunk.Text, samplePreviewLen),
		})
	}
	return samples
}

// Query runs the query flow: resolve the document, retrieve relevant
// chunks, and synthesize an answer when a generator is configured.
func (p *Processor) Query(ctx context.Context, req models.QueryRequest) (*QueryOutcome, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if _, err := p.meta.GetDocument(ctx, req.DocumentID); err != nil {
		return nil, err
	}

	retrieval, err := p.retriever.Retrieve(ctx, req.Query, req.DocumentID, req.TopK)
	if err != nil {
		return nil, err
	}

	outcome := &QueryOutcome{Retrieval: retrieval}
	if p.answers != nil {
		if retrieval.ResultCount == 0 {
			outcome.Answer = p.answers.Fallback(ctx, req.Query)
		} else {
			outcome.Answer = p.answers.Generate(ctx, req.Query, retrieval.Context, retrieval.Results)
		}
	}
	return outcome, nil
}

// GetDocument returns a document's metadata.
func (p *Processor) GetDocument(ctx context.Context, documentID string) (*models.Document, error) {
	return p.meta.GetDocument(ctx, documentID)
}

// ListSessionDocuments returns the session's documents in upload order.
func (p *Processor) ListSessionDocuments(ctx context.Context, sessionID string) ([]*models.Document, error) {
	return p.meta.ListSessionDocuments(ctx, sessionID)
}

// DeleteDocument purges the document's vector namespace, then removes
// its metadata and session memberships.
func (p *Processor) DeleteDocument(ctx context.Context, documentID string) error {
	doc, err := p.meta.GetDocument(ctx, documentID)
	if err != nil {
		return err
	}
	if err := p.vectors.DeleteNamespace(ctx, doc.Namespace); err != nil {
		return fmt.Errorf("purge namespace %s: %w", doc.Namespace, err)
	}
	if err := p.meta.DeleteDocument(ctx, documentID); err != nil {
		return err
	}
	p.logger.Info("document deleted", zap.String("document_id", documentID))
	return nil
}

// ClearSession deletes every document in the session, tolerating
// individual failures, then empties the session's membership. Returns
// how many documents were successfully deleted.
func (p *Processor) ClearSession(ctx context.Context, sessionID string) (int, error) {
	ids, err := p.meta.SessionDocumentIDs(ctx, sessionID)
	if err != nil {
		return 0, err
	}

	deleted := 0
	for _, id := range ids {
		if err := p.DeleteDocument(ctx, id); err != nil {
			p.logger.Warn("failed to delete session document",
				zap.String("session_id", sessionID),
				zap.String("document_id", id),
				zap.Error(err))
			continue
		}
		deleted++
	}

	if err := p.meta.ClearSessionMembers(ctx, sessionID); err != nil {
		return deleted, fmt.Errorf("clear session membership: %w", err)
	}
	p.logger.Info("session cleared",
		zap.String("session_id", sessionID),
		zap.Int("deleted", deleted),
		zap.Int("members", len(ids)))
	return deleted, nil
}
