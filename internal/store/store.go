// Package store persists document metadata and session membership.
package store

import (
	"context"
	"errors"

	"github.com/hyperjump/kotae/internal/models"
)

// ErrDocumentNotFound is returned when no document exists with the given ID.
var ErrDocumentNotFound = errors.New("document not found")

// ErrSessionNotFound is returned when no session exists with the given ID.
var ErrSessionNotFound = errors.New("session not found")

// Store persists document metadata and the session membership that
// groups documents per user interaction window.
type Store interface {
	// CreateDocument records the document and appends it to the session's
	// membership atomically.
	CreateDocument(ctx context.Context, doc *models.Document, sessionID string) error
	// GetDocument returns a document by ID, or ErrDocumentNotFound.
	GetDocument(ctx context.Context, documentID string) (*models.Document, error)
	// DeleteDocument removes the document and any session memberships
	// pointing at it. Returns ErrDocumentNotFound if the ID is unknown.
	DeleteDocument(ctx context.Context, documentID string) error
	// ListSessionDocuments returns the session's documents in upload
	// order. A known session with no documents yields an empty slice;
	// ErrSessionNotFound is reserved for IDs never seen.
	ListSessionDocuments(ctx context.Context, sessionID string) ([]*models.Document, error)
	// SessionDocumentIDs returns only the document IDs of the session,
	// with the same empty-vs-unknown distinction as ListSessionDocuments.
	SessionDocumentIDs(ctx context.Context, sessionID string) ([]string, error)
	// ClearSessionMembers removes every membership row of the session
	// while keeping the session itself addressable. The documents are
	// untouched.
	ClearSessionMembers(ctx context.Context, sessionID string) error
	Close() error
}
