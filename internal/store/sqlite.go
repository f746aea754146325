package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/hyperjump/kotae/internal/models"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens or creates a SQLite database at dbPath and
// initializes the schema. Parent directories are created if they do
// not exist.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS documents (
		id TEXT PRIMARY KEY,
		filename TEXT NOT NULL,
		namespace TEXT NOT NULL,
		chunk_count INTEGER NOT NULL,
		total_chunks INTEGER NOT NULL,
		total_pages INTEGER NOT NULL,
		total_characters INTEGER NOT NULL,
		estimated_tokens INTEGER NOT NULL,
		created_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		created_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS session_documents (
		session_id TEXT NOT NULL,
		document_id TEXT NOT NULL,
		position INTEGER NOT NULL,
		PRIMARY KEY (session_id, document_id)
	);

	CREATE INDEX IF NOT EXISTS idx_session_documents_session ON session_documents(session_id, position);
	CREATE INDEX IF NOT EXISTS idx_session_documents_document ON session_documents(document_id);
	`
	_, err := db.Exec(schema)
	return err
}

// CreateDocument inserts the document and its session membership in one
// transaction.
func (s *SQLiteStore) CreateDocument(ctx context.Context, doc *models.Document, sessionID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now().UTC()
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO documents (id, filename, namespace, chunk_count, total_chunks, total_pages, total_characters, estimated_tokens, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		doc.ID, doc.Filename, doc.Namespace, doc.ChunkCount,
		doc.Statistics.TotalChunks, doc.Statistics.TotalPages,
		doc.Statistics.TotalCharacters, doc.Statistics.EstimatedTokens,
		doc.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert document: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO sessions (id, created_at) VALUES (?, ?)`,
		sessionID, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO session_documents (session_id, document_id, position)
		 VALUES (?, ?, COALESCE((SELECT MAX(position) + 1 FROM session_documents WHERE session_id = ?), 0))`,
		sessionID, doc.ID, sessionID,
	)
	if err != nil {
		return fmt.Errorf("insert session membership: %w", err)
	}

	return tx.Commit()
}

// GetDocument returns a document by ID.
func (s *SQLiteStore) GetDocument(ctx context.Context, documentID string) (*models.Document, error) {
	var doc models.Document
	err := s.db.QueryRowContext(ctx,
		`SELECT id, filename, namespace, chunk_count, total_chunks, total_pages, total_characters, estimated_tokens, created_at
		 FROM documents WHERE id = ?`, documentID,
	).Scan(&doc.ID, &doc.Filename, &doc.Namespace, &doc.ChunkCount,
		&doc.Statistics.TotalChunks, &doc.Statistics.TotalPages,
		&doc.Statistics.TotalCharacters, &doc.Statistics.EstimatedTokens,
		&doc.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", ErrDocumentNotFound, documentID)
	}
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

// DeleteDocument removes the document and its session memberships.
func (s *SQLiteStore) DeleteDocument(ctx context.Context, documentID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, documentID)
	if err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrDocumentNotFound, documentID)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM session_documents WHERE document_id = ?`, documentID); err != nil {
		return fmt.Errorf("delete session membership: %w", err)
	}

	return tx.Commit()
}

// ListSessionDocuments returns the session's documents in upload order.
func (s *SQLiteStore) ListSessionDocuments(ctx context.Context, sessionID string) ([]*models.Document, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT d.id, d.filename, d.namespace, d.chunk_count, d.total_chunks, d.total_pages, d.total_characters, d.estimated_tokens, d.created_at
		 FROM documents d
		 JOIN session_documents sd ON sd.document_id = d.id
		 WHERE sd.session_id = ?
		 ORDER BY sd.position`, sessionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []*models.Document
	for rows.Next() {
		var doc models.Document
		if err := rows.Scan(&doc.ID, &doc.Filename, &doc.Namespace, &doc.ChunkCount,
			&doc.Statistics.TotalChunks, &doc.Statistics.TotalPages,
			&doc.Statistics.TotalCharacters, &doc.Statistics.EstimatedTokens,
			&doc.CreatedAt); err != nil {
			return nil, err
		}
		docs = append(docs, &doc)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		if err := s.sessionExists(ctx, sessionID); err != nil {
			return nil, err
		}
		return []*models.Document{}, nil
	}
	return docs, nil
}

// SessionDocumentIDs returns the document IDs of the session in upload order.
func (s *SQLiteStore) SessionDocumentIDs(ctx context.Context, sessionID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT document_id FROM session_documents WHERE session_id = ? ORDER BY position`, sessionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		if err := s.sessionExists(ctx, sessionID); err != nil {
			return nil, err
		}
		return []string{}, nil
	}
	return ids, nil
}

// sessionExists distinguishes a session with no documents from one
// that was never created.
func (s *SQLiteStore) sessionExists(ctx context.Context, sessionID string) error {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM sessions WHERE id = ?`, sessionID).Scan(&one)
	if err == sql.ErrNoRows {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	return err
}

// ClearSessionMembers removes every membership row of the session. The
// session row itself is kept, so a cleared session stays addressable.
func (s *SQLiteStore) ClearSessionMembers(ctx context.Context, sessionID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM session_documents WHERE session_id = ?`, sessionID)
	return err
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
