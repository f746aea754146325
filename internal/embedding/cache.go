package embedding

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"

	bolt "go.etcd.io/bbolt"
)

var cacheBucket = []byte("embeddings")

// Cache is a durable content-addressed embedding cache backed by bbolt.
// Keys are derived from (model, text); values are raw float32 vectors.
// The cache outlives the process: identical text embedded across restarts
// never hits the provider twice.
type Cache struct {
	db *bolt.DB
}

// OpenCache opens or creates the cache database at path. Parent directories
// are created if they do not exist.
func OpenCache(path string) (*Cache, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create cache directory: %w", err)
		}
	}
	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("open cache: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(cacheBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create cache bucket: %w", err)
	}
	return &Cache{db: db}, nil
}

// CacheKey derives the content-addressed key for a (model, text) pair.
func CacheKey(model, text string) []byte {
	h := sha256.New()
	h.Write([]byte(model))
	h.Write([]byte{0})
	h.Write([]byte(text))
	return h.Sum(nil)
}

// Get returns the cached vector for key, or ok=false on a miss.
func (c *Cache) Get(key []byte) (vec []float32, ok bool) {
	_ = c.db.View(func(tx *bolt.Tx) error {
		if v := tx.Bucket(cacheBucket).Get(key); v != nil {
			vec = bytesToVector(v)
			ok = true
		}
		return nil
	})
	return vec, ok
}

// Put stores a vector under key. Concurrent writes of the same key are
// idempotent: the same (model, text) always maps to the same vector.
func (c *Cache) Put(key []byte, vec []float32) error {
	return c.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(cacheBucket).Put(key, vectorToBytes(vec))
	})
}

// Len returns the number of cached vectors.
func (c *Cache) Len() int {
	n := 0
	_ = c.db.View(func(tx *bolt.Tx) error {
		n = tx.Bucket(cacheBucket).Stats().KeyN
		return nil
	})
	return n
}

// Close closes the underlying database.
func (c *Cache) Close() error {
	return c.db.Close()
}

func vectorToBytes(vec []float32) []byte {
	out := make([]byte, len(vec)*4)
	for i, v := range vec {
		binary.LittleEndian.PutUint32(out[i*4:(i+1)*4], math.Float32bits(v))
	}
	return out
}

func bytesToVector(b []byte) []float32 {
	out := make([]float32, len(b)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4 : (i+1)*4]))
	}
	return out
}
