// Package config provides configuration loading and structs for the Kotae server.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Debug     bool            `yaml:"debug"`
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Vector    VectorConfig    `yaml:"vector"`
	Chunking  ChunkingConfig  `yaml:"chunking"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	Answer    AnswerConfig    `yaml:"answer"`
	Watch     WatchConfig     `yaml:"watch"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// StorageConfig holds paths for the metadata database, the embedding
// cache, and the memory index snapshot.
type StorageConfig struct {
	DatabasePath       string `yaml:"database_path"`
	EmbeddingCachePath string `yaml:"embedding_cache_path"`
	VectorIndexPath    string `yaml:"vector_index_path"`
}

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	Model      string `yaml:"model"`
	BaseURL    string `yaml:"base_url"`
	APIKey     string `yaml:"api_key"`
	BatchSize  int    `yaml:"batch_size"`
	MaxRetries int    `yaml:"max_retries"`
}

// VectorConfig selects the vector index backend.
type VectorConfig struct {
	Type           string `yaml:"type"`
	PineconeHost   string `yaml:"pinecone_host"`
	PineconeAPIKey string `yaml:"pinecone_api_key"`
}

// ChunkingConfig holds text chunking settings.
type ChunkingConfig struct {
	ChunkSize    int `yaml:"chunk_size"`
	ChunkOverlap int `yaml:"chunk_overlap"`
}

// RetrievalConfig holds relevance filtering settings.
type RetrievalConfig struct {
	ScoreThreshold float64 `yaml:"score_threshold"`
	DefaultTopK    int     `yaml:"default_top_k"`
}

// AnswerConfig holds chat-completion settings for answer synthesis.
// Synthesis is disabled when no API key is configured.
type AnswerConfig struct {
	Model   string `yaml:"model"`
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
}

// WatchConfig holds PDF drop-directory ingestion settings.
type WatchConfig struct {
	Directories []string `yaml:"directories"`
	SessionID   string   `yaml:"session_id"`
}

// Load reads and parses the config file at path, applies environment
// overrides and defaults, and expands paths.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	applyEnvOverrides(&cfg)
	ApplyDefaults(&cfg)

	configDir := filepath.Dir(path)
	cfg.Storage.DatabasePath = expandPath(cfg.Storage.DatabasePath, configDir)
	cfg.Storage.EmbeddingCachePath = expandPath(cfg.Storage.EmbeddingCachePath, configDir)
	cfg.Storage.VectorIndexPath = expandPath(cfg.Storage.VectorIndexPath, configDir)
	for i := range cfg.Watch.Directories {
		cfg.Watch.Directories[i] = expandPath(cfg.Watch.Directories[i], configDir)
	}

	return &cfg, nil
}

// Default returns a configuration with no file loaded, carrying env
// overrides and defaults only.
func Default() *Config {
	var cfg Config
	applyEnvOverrides(&cfg)
	ApplyDefaults(&cfg)
	return &cfg
}

// applyEnvOverrides maps environment variables onto the config. Secrets
// are expected to arrive this way rather than in the YAML file.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		if cfg.Embedding.APIKey == "" {
			cfg.Embedding.APIKey = v
		}
		if cfg.Answer.APIKey == "" {
			cfg.Answer.APIKey = v
		}
	}
	if v := os.Getenv("PINECONE_API_KEY"); v != "" && cfg.Vector.PineconeAPIKey == "" {
		cfg.Vector.PineconeAPIKey = v
	}
	if v := os.Getenv("PINECONE_HOST"); v != "" && cfg.Vector.PineconeHost == "" {
		cfg.Vector.PineconeHost = v
	}
	if v := os.Getenv("KOTAE_CHUNK_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Chunking.ChunkSize = n
		}
	}
	if v := os.Getenv("KOTAE_CHUNK_OVERLAP"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Chunking.ChunkOverlap = n
		}
	}
	if v := os.Getenv("KOTAE_EMBEDDING_MODEL"); v != "" {
		cfg.Embedding.Model = v
	}
	if v := os.Getenv("KOTAE_SCORE_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Retrieval.ScoreThreshold = f
		}
	}
}

// expandPath converts a path to absolute. Paths starting with "./" are
// relative to configDir; other relative paths are relative to the home
// directory.
func expandPath(path string, configDir string) string {
	if filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
