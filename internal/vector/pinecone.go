package vector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// PineconeIndex is a minimal REST client for a Pinecone serverless index.
// All operations are namespace-scoped; namespaces materialize on first
// upsert. Failures are returned as-is: the caller decides whether the
// request as a whole fails.
type PineconeIndex struct {
	host   string
	apiKey string
	client *http.Client
}

// PineconeConfig configures the Pinecone backend.
type PineconeConfig struct {
	// Host is the index endpoint, e.g. https://my-index-abc123.svc.us-east-1-aws.pinecone.io
	Host    string
	APIKey  string
	Timeout time.Duration
}

// NewPineconeIndex creates a Pinecone-backed index client.
func NewPineconeIndex(cfg PineconeConfig) (*PineconeIndex, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("pinecone host is required")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("pinecone API key is required")
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &PineconeIndex{
		host:   cfg.Host,
		apiKey: cfg.APIKey,
		client: &http.Client{Timeout: timeout},
	}, nil
}

// Type returns the index type identifier.
func (p *PineconeIndex) Type() string { return "pinecone" }

type pineconeUpsertRequest struct {
	Vectors   []Record `json:"vectors"`
	Namespace string   `json:"namespace,omitempty"`
}

type pineconeUpsertResponse struct {
	UpsertedCount int `json:"upsertedCount"`
}

// Upsert writes records into the namespace.
func (p *PineconeIndex) Upsert(ctx context.Context, namespace string, records []Record) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}
	var out pineconeUpsertResponse
	err := p.postJSON(ctx, "/vectors/upsert", pineconeUpsertRequest{Vectors: records, Namespace: namespace}, &out)
	if err != nil {
		return 0, err
	}
	return out.UpsertedCount, nil
}

type pineconeQueryRequest struct {
	Vector          []float32 `json:"vector"`
	TopK            int       `json:"topK"`
	Namespace       string    `json:"namespace,omitempty"`
	IncludeMetadata bool      `json:"includeMetadata"`
}

type pineconeQueryResponse struct {
	Matches []Match `json:"matches"`
}

// Query returns up to topK nearest vectors in the namespace.
func (p *PineconeIndex) Query(ctx context.Context, namespace string, vec []float32, topK int, includeMetadata bool) ([]Match, error) {
	req := pineconeQueryRequest{
		Vector:          vec,
		TopK:            topK,
		Namespace:       namespace,
		IncludeMetadata: includeMetadata,
	}
	var out pineconeQueryResponse
	if err := p.postJSON(ctx, "/query", req, &out); err != nil {
		return nil, err
	}
	return out.Matches, nil
}

type pineconeDeleteRequest struct {
	IDs       []string `json:"ids,omitempty"`
	DeleteAll bool     `json:"deleteAll,omitempty"`
	Namespace string   `json:"namespace,omitempty"`
}

// Delete removes specific vectors from the namespace.
func (p *PineconeIndex) Delete(ctx context.Context, namespace string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	return p.postJSON(ctx, "/vectors/delete", pineconeDeleteRequest{IDs: ids, Namespace: namespace}, nil)
}

// DeleteAll purges every vector in the namespace.
func (p *PineconeIndex) DeleteAll(ctx context.Context, namespace string) error {
	return p.postJSON(ctx, "/vectors/delete", pineconeDeleteRequest{DeleteAll: true, Namespace: namespace}, nil)
}

// Close is a no-op; the client holds no persistent connections.
func (p *PineconeIndex) Close() error { return nil }

func (p *PineconeIndex) postJSON(ctx context.Context, path string, body, out interface{}) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.host+path, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Api-Key", p.apiKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("pinecone %s: %w", path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("pinecone %s failed: %s: %s", path, resp.Status, string(b))
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}
