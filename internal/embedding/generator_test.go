package embedding

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/hyperjump/kotae/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) *Cache {
	t.Helper()
	cache, err := OpenCache(filepath.Join(t.TempDir(), "embeddings.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = cache.Close() })
	return cache
}

func fastRetry(attempts int) RetryPolicy {
	return RetryPolicy{
		MaxAttempts: attempts,
		BaseDelay:   time.Millisecond,
		Multiplier:  2,
		MaxDelay:    10 * time.Millisecond,
		Retryable:   IsTransient,
	}
}

func TestGenerator_CacheIdempotence(t *testing.T) {
	provider := NewMockProvider(64)
	g := NewGenerator(provider, newTestCache(t), "mock-model",
		WithDimensions(64), WithRetryPolicy(fastRetry(3)))

	first, err := g.Embed(context.Background(), "the same text")
	require.NoError(t, err)
	second, err := g.Embed(context.Background(), "the same text")
	require.NoError(t, err)

	assert.Equal(t, first, second, "cached embedding must be bit-identical")
	assert.Equal(t, 1, provider.Calls(), "second call must be served from cache")
}

func TestGenerator_CacheSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "embeddings.db")

	cache, err := OpenCache(path)
	require.NoError(t, err)
	p1 := NewMockProvider(64)
	g1 := NewGenerator(p1, cache, "mock-model", WithDimensions(64))
	vec, err := g1.Embed(context.Background(), "durable")
	require.NoError(t, err)
	require.NoError(t, cache.Close())

	cache, err = OpenCache(path)
	require.NoError(t, err)
	defer cache.Close()
	p2 := NewMockProvider(64)
	g2 := NewGenerator(p2, cache, "mock-model", WithDimensions(64))
	again, err := g2.Embed(context.Background(), "durable")
	require.NoError(t, err)

	assert.Equal(t, vec, again)
	assert.Equal(t, 0, p2.Calls(), "reopened cache must serve the vector")
}

func TestGenerator_ZeroVectorShortCircuit(t *testing.T) {
	provider := NewMockProvider(64)
	cache := newTestCache(t)
	g := NewGenerator(provider, cache, "mock-model", WithDimensions(64))

	for _, text := range []string{"", "   ", "\n\t "} {
		vec, err := g.Embed(context.Background(), text)
		require.NoError(t, err)
		require.Len(t, vec, 64)
		for i, v := range vec {
			if v != 0 {
				t.Fatalf("expected zero vector, got %f at %d for %q", v, i, text)
			}
		}
	}
	assert.Equal(t, 0, provider.Calls(), "blank text must not reach the provider")
	assert.Equal(t, 0, cache.Len(), "zero vectors are not cached")
}

func TestGenerator_EmbedBatchPreservesOrder(t *testing.T) {
	provider := NewMockProvider(64)
	g := NewGenerator(provider, nil, "mock-model",
		WithDimensions(64), WithBatchSize(2), WithBatchPause(time.Millisecond))

	texts := []string{"alpha one", "beta two", "gamma three", "delta four", "epsilon five"}
	batch, err := g.EmbedBatch(context.Background(), texts)
	require.NoError(t, err)
	require.Len(t, batch, len(texts))

	for i, text := range texts {
		single, err := provider.EmbedText(context.Background(), text, "mock-model")
		require.NoError(t, err)
		assert.Equal(t, single, batch[i], "batch result %d out of order", i)
	}
}

type flakyProvider struct {
	failures int
	calls    int
	err      error
}

func (f *flakyProvider) EmbedText(ctx context.Context, text, model string) ([]float32, error) {
	f.calls++
	if f.calls <= f.failures {
		return nil, f.err
	}
	return []float32{1, 0}, nil
}

func TestGenerator_RetriesTransientErrors(t *testing.T) {
	provider := &flakyProvider{failures: 2, err: &TransientError{Err: errors.New("rate limited")}}
	g := NewGenerator(provider, nil, "mock-model", WithDimensions(2), WithRetryPolicy(fastRetry(5)))

	vec, err := g.Embed(context.Background(), "eventually works")
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 0}, vec)
	assert.Equal(t, 3, provider.calls)
}

func TestGenerator_PermanentErrorNotRetried(t *testing.T) {
	provider := &flakyProvider{failures: 10, err: errors.New("invalid api key")}
	g := NewGenerator(provider, nil, "mock-model", WithDimensions(2), WithRetryPolicy(fastRetry(5)))

	_, err := g.Embed(context.Background(), "never works")
	require.Error(t, err)
	assert.Equal(t, 1, provider.calls, "permanent errors must not be retried")
}

func TestGenerator_RetryExhaustion(t *testing.T) {
	provider := &flakyProvider{failures: 10, err: &TransientError{Err: errors.New("still rate limited")}}
	g := NewGenerator(provider, nil, "mock-model", WithDimensions(2), WithRetryPolicy(fastRetry(3)))

	_, err := g.Embed(context.Background(), "text")
	require.Error(t, err)
	assert.True(t, IsTransient(err))
	assert.Equal(t, 3, provider.calls)
}

type selectiveProvider struct {
	failOn string
	inner  *MockProvider
}

func (s *selectiveProvider) EmbedText(ctx context.Context, text, model string) ([]float32, error) {
	if text == s.failOn {
		return nil, fmt.Errorf("unembeddable text")
	}
	return s.inner.EmbedText(ctx, text, model)
}

func TestGenerator_EmbedChunksSkipsFailures(t *testing.T) {
	provider := &selectiveProvider{failOn: "bad chunk", inner: NewMockProvider(64)}
	g := NewGenerator(provider, nil, "mock-model", WithDimensions(64), WithRetryPolicy(fastRetry(2)))

	chunks := []models.TextChunk{
		{ID: "c1", Text: "good chunk one"},
		{ID: "c2", Text: "bad chunk"},
		{ID: "c3", Text: "good chunk three"},
	}
	got, err := g.EmbedChunks(context.Background(), chunks)
	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.Contains(t, got, "c1")
	assert.NotContains(t, got, "c2", "failed chunk must be absent, not zero")
	assert.Contains(t, got, "c3")
}

func TestModelDimensions(t *testing.T) {
	assert.Equal(t, 1536, ModelDimensions("text-embedding-3-small"))
	assert.Equal(t, 3072, ModelDimensions("text-embedding-3-large"))
	assert.Equal(t, 1536, ModelDimensions("something-else"))
}
