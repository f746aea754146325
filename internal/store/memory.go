package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hyperjump/kotae/internal/models"
)

// MemoryStore is an in-process Store for tests and development.
type MemoryStore struct {
	mu       sync.RWMutex
	docs     map[string]*models.Document
	sessions map[string][]string
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		docs:     make(map[string]*models.Document),
		sessions: make(map[string][]string),
	}
}

// CreateDocument records the document and appends it to the session.
func (m *MemoryStore) CreateDocument(ctx context.Context, doc *models.Document, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.docs[doc.ID]; exists {
		return fmt.Errorf("document already exists: %s", doc.ID)
	}
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now().UTC()
	}
	cp := *doc
	m.docs[doc.ID] = &cp
	m.sessions[sessionID] = append(m.sessions[sessionID], doc.ID)
	return nil
}

// GetDocument returns a document by ID.
func (m *MemoryStore) GetDocument(ctx context.Context, documentID string) (*models.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	doc, ok := m.docs[documentID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrDocumentNotFound, documentID)
	}
	cp := *doc
	return &cp, nil
}

// DeleteDocument removes the document and its session memberships.
func (m *MemoryStore) DeleteDocument(ctx context.Context, documentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.docs[documentID]; !ok {
		return fmt.Errorf("%w: %s", ErrDocumentNotFound, documentID)
	}
	delete(m.docs, documentID)
	for sessionID, ids := range m.sessions {
		kept := ids[:0]
		for _, id := range ids {
			if id != documentID {
				kept = append(kept, id)
			}
		}
		m.sessions[sessionID] = kept
	}
	return nil
}

// ListSessionDocuments returns the session's documents in upload order.
func (m *MemoryStore) ListSessionDocuments(ctx context.Context, sessionID string) ([]*models.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids, ok := m.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	docs := make([]*models.Document, 0, len(ids))
	for _, id := range ids {
		if doc, ok := m.docs[id]; ok {
			cp := *doc
			docs = append(docs, &cp)
		}
	}
	return docs, nil
}

// SessionDocumentIDs returns the document IDs of the session in upload order.
func (m *MemoryStore) SessionDocumentIDs(ctx context.Context, sessionID string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids, ok := m.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	out := make([]string, len(ids))
	copy(out, ids)
	return out, nil
}

// ClearSessionMembers removes every membership row of the session. The
// session entry is kept, so a cleared session stays addressable.
func (m *MemoryStore) ClearSessionMembers(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[sessionID]; ok {
		m.sessions[sessionID] = []string{}
	}
	return nil
}

// Close is a no-op for MemoryStore.
func (m *MemoryStore) Close() error { return nil }
