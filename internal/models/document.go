package models

import "time"

// NamespacePrefix is prepended to a document ID to form its vector namespace.
const NamespacePrefix = "doc_"

// DocumentNamespace derives the vector index namespace for a document.
// The mapping is pure: no lookup is needed to go from document ID to namespace.
func DocumentNamespace(documentID string) string {
	return NamespacePrefix + documentID
}

// Document is the metadata record for a processed PDF. Immutable once created.
type Document struct {
	ID         string     `json:"document_id"`
	Filename   string     `json:"filename"`
	Namespace  string     `json:"namespace"`
	ChunkCount int        `json:"chunk_count"`
	Statistics Statistics `json:"statistics"`
	CreatedAt  time.Time  `json:"created_at"`
}

// Session groups documents uploaded within one user interaction window.
type Session struct {
	ID          string   `json:"session_id"`
	DocumentIDs []string `json:"document_ids"`
}
