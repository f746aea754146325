package vector

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// MemoryIndex is an in-process brute-force cosine index with namespace
// isolation. Suitable for tests, development, and small corpora when no
// managed vector database is configured.
type MemoryIndex struct {
	dimensions int
	namespaces map[string][]Record
	mu         sync.RWMutex
}

// NewMemoryIndex creates an in-memory index with the given dimensionality.
func NewMemoryIndex(dimensions int) (*MemoryIndex, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive")
	}
	return &MemoryIndex{
		dimensions: dimensions,
		namespaces: make(map[string][]Record),
	}, nil
}

// Type returns the index type identifier.
func (m *MemoryIndex) Type() string { return "memory" }

// Upsert inserts or replaces records in the namespace, keyed by record ID.
func (m *MemoryIndex) Upsert(ctx context.Context, namespace string, records []Record) (int, error) {
	for _, r := range records {
		if len(r.Values) != m.dimensions {
			return 0, fmt.Errorf("vector dimension mismatch: got %d, expected %d", len(r.Values), m.dimensions)
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	existing := m.namespaces[namespace]
	byID := make(map[string]int, len(existing))
	for i, r := range existing {
		byID[r.ID] = i
	}
	for _, r := range records {
		vec := make([]float32, m.dimensions)
		copy(vec, r.Values)
		r.Values = vec
		if i, ok := byID[r.ID]; ok {
			existing[i] = r
		} else {
			existing = append(existing, r)
			byID[r.ID] = len(existing) - 1
		}
	}
	m.namespaces[namespace] = existing
	return len(records), nil
}

// Query returns the topK records in the namespace most similar to vec by
// cosine similarity, descending. An unknown namespace yields no matches.
func (m *MemoryIndex) Query(ctx context.Context, namespace string, vec []float32, topK int, includeMetadata bool) ([]Match, error) {
	if len(vec) != m.dimensions {
		return nil, fmt.Errorf("query dimension mismatch: got %d, expected %d", len(vec), m.dimensions)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	records := m.namespaces[namespace]
	if topK <= 0 || len(records) == 0 {
		return nil, nil
	}
	matches := make([]Match, 0, len(records))
	for _, r := range records {
		match := Match{ID: r.ID, Score: CosineSimilarity(vec, r.Values)}
		if includeMetadata {
			match.Metadata = r.Metadata
		}
		matches = append(matches, match)
	}
	sort.SliceStable(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })
	if topK < len(matches) {
		matches = matches[:topK]
	}
	return matches, nil
}

// Delete removes vectors by ID from the namespace.
func (m *MemoryIndex) Delete(ctx context.Context, namespace string, ids []string) error {
	remove := make(map[string]bool, len(ids))
	for _, id := range ids {
		remove[id] = true
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	records := m.namespaces[namespace]
	kept := records[:0]
	for _, r := range records {
		if !remove[r.ID] {
			kept = append(kept, r)
		}
	}
	if len(kept) == 0 {
		delete(m.namespaces, namespace)
	} else {
		m.namespaces[namespace] = kept
	}
	return nil
}

// DeleteAll purges the namespace entirely.
func (m *MemoryIndex) DeleteAll(ctx context.Context, namespace string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.namespaces, namespace)
	return nil
}

// Size returns the total number of vectors across all namespaces.
func (m *MemoryIndex) Size() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, records := range m.namespaces {
		n += len(records)
	}
	return n
}

// NamespaceSize returns the number of vectors in one namespace.
func (m *MemoryIndex) NamespaceSize(namespace string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.namespaces[namespace])
}

type memorySnapshot struct {
	Dimensions int                 `json:"dimensions"`
	Namespaces map[string][]Record `json:"namespaces"`
}

// Save persists the index to path. The parent directory is created if needed.
func (m *MemoryIndex) Save(path string) error {
	if path == "" {
		return nil
	}
	m.mu.RLock()
	snap := memorySnapshot{Dimensions: m.dimensions, Namespaces: m.namespaces}
	data, err := json.Marshal(snap)
	m.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("marshal index: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create index dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("write index: %w", err)
	}
	return nil
}

// Load replaces the index contents from path. A missing file is not an
// error; the index is left unchanged. Dimensions must match.
func (m *MemoryIndex) Load(path string) error {
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read index: %w", err)
	}
	var snap memorySnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("parse index: %w", err)
	}
	if snap.Dimensions != m.dimensions {
		return fmt.Errorf("dimension mismatch: file has %d, index expects %d", snap.Dimensions, m.dimensions)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.namespaces = snap.Namespaces
	if m.namespaces == nil {
		m.namespaces = make(map[string][]Record)
	}
	return nil
}

// Close is a no-op for MemoryIndex.
func (m *MemoryIndex) Close() error { return nil }

// CosineSimilarity returns the cosine similarity of two vectors, clamped to [0, 1].
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i] * b[i])
		na += float64(a[i] * a[i])
		nb += float64(b[i] * b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	sim := dot / (math.Sqrt(na) * math.Sqrt(nb))
	return math.Max(0, math.Min(1, sim))
}
