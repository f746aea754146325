package vector

import "fmt"

// IndexConfig selects and configures the vector index backend.
type IndexConfig struct {
	Type       string
	Dimensions int

	// Memory backend.
	PersistPath string

	// Pinecone backend.
	Pinecone PineconeConfig
}

// NewIndex creates an index backend from configuration. The memory
// backend optionally loads a prior snapshot from PersistPath.
func NewIndex(cfg IndexConfig) (Index, error) {
	switch cfg.Type {
	case "", "memory":
		idx, err := NewMemoryIndex(cfg.Dimensions)
		if err != nil {
			return nil, err
		}
		if cfg.PersistPath != "" {
			if err := idx.Load(cfg.PersistPath); err != nil {
				return nil, fmt.Errorf("load memory index: %w", err)
			}
		}
		return idx, nil
	case "pinecone":
		return NewPineconeIndex(cfg.Pinecone)
	default:
		return nil, fmt.Errorf("unknown index type: %q", cfg.Type)
	}
}
