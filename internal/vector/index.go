// Package vector provides namespace-scoped vector index backends and the
// store adapter that connects them to the embedding layer.
package vector

import "context"

// Metadata is the typed payload carried alongside each vector.
type Metadata struct {
	Text         string `json:"text"`
	Page         int    `json:"page"`
	DocumentID   string `json:"document_id"`
	DocumentName string `json:"document_name"`
	ChunkIndex   int    `json:"chunk_index"`
	Timestamp    string `json:"timestamp"`
}

// Record is one vector with its ID and metadata, ready for upsert.
type Record struct {
	ID       string    `json:"id"`
	Values   []float32 `json:"values"`
	Metadata Metadata  `json:"metadata"`
}

// Match is one similarity-search hit from an index backend.
type Match struct {
	ID       string   `json:"id"`
	Score    float64  `json:"score"`
	Metadata Metadata `json:"metadata"`
}

// Index is a namespace-scoped vector index. Namespaces are never pre-created;
// they come into existence on first upsert. Index failures are hard errors:
// retries for the embedding call have already happened upstream.
type Index interface {
	// Upsert writes records into the namespace and returns how many were written.
	Upsert(ctx context.Context, namespace string, records []Record) (int, error)
	// Query returns up to topK matches ordered by descending similarity.
	Query(ctx context.Context, namespace string, vec []float32, topK int, includeMetadata bool) ([]Match, error)
	// Delete removes specific vectors from the namespace.
	Delete(ctx context.Context, namespace string, ids []string) error
	// DeleteAll purges every vector in the namespace.
	DeleteAll(ctx context.Context, namespace string) error
	// Type returns the backend identifier.
	Type() string
	Close() error
}
