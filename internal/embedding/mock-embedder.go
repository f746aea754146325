package embedding

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
)

// MockProvider is a deterministic offline Provider for tests. It produces a
// normalized bag-of-words vector so texts sharing words are similar, which
// makes retrieval behavior testable without a live provider.
type MockProvider struct {
	dimensions int
	calls      int
}

// NewMockProvider returns a provider producing vectors of the given
// dimensionality (default 256).
func NewMockProvider(dimensions int) *MockProvider {
	if dimensions <= 0 {
		dimensions = 256
	}
	return &MockProvider{dimensions: dimensions}
}

// EmbedText returns a deterministic embedding for text. The model name is ignored.
func (m *MockProvider) EmbedText(ctx context.Context, text, model string) ([]float32, error) {
	m.calls++
	vec := make([]float32, m.dimensions)
	for _, word := range strings.Fields(strings.ToLower(text)) {
		h := fnv.New32a()
		_, _ = h.Write([]byte(word))
		vec[int(h.Sum32())%m.dimensions]++
	}
	var sum float64
	for _, v := range vec {
		sum += float64(v * v)
	}
	if sum > 0 {
		norm := float32(1 / math.Sqrt(sum))
		for i := range vec {
			vec[i] *= norm
		}
	}
	return vec, nil
}

// Calls returns how many times the provider was invoked.
func (m *MockProvider) Calls() int {
	return m.calls
}
