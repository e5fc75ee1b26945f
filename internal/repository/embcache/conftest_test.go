package embcache

import (
	"context"
	"path"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/ragdex/internal/domain"
	"github.com/kailas-cloud/ragdex/internal/repository/keyspace"
)

const (
	testModel = "text-embedding-3-small"
	testDim   = 3
)

// --- Mocks ---

// mockEmbedder returns a vector derived from the text length so results
// can be matched to inputs.
type mockEmbedder struct {
	err   error
	short bool
	calls [][]string
}

func (m *mockEmbedder) BatchEmbed(_ context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	m.calls = append(m.calls, texts)
	if m.err != nil {
		return domain.BatchEmbeddingResult{}, m.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = vecFor(t)
	}
	if m.short {
		out = out[:len(out)-1]
	}
	return domain.BatchEmbeddingResult{
		Embeddings:   out,
		PromptTokens: 2 * len(texts),
		TotalTokens:  2 * len(texts),
	}, nil
}

func vecFor(text string) []float32 {
	return []float32{float32(len(text)), 1, 0}
}

// memKV is an in-memory store.
type memKV struct {
	mu      sync.Mutex
	data    map[string][]byte
	ttls    map[string]time.Duration
	mgetErr error
}

func newMemKV() *memKV {
	return &memKV{data: make(map[string][]byte), ttls: make(map[string]time.Duration)}
}

func (m *memKV) MGet(_ context.Context, keys []string) ([][]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.mgetErr != nil {
		return nil, m.mgetErr
	}
	out := make([][]byte, len(keys))
	for i, k := range keys {
		out[i] = m.data[k]
	}
	return out, nil
}

func (m *memKV) Set(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func (m *memKV) SetWithTTL(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	m.ttls[key] = ttl
	return nil
}

func (m *memKV) Scan(_ context.Context, pattern string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for k := range m.data {
		if ok, _ := path.Match(pattern, k); ok {
			out = append(out, k)
		}
	}
	return out, nil
}

func (m *memKV) Del(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.data, k)
	}
	return nil
}

func newTestCachedEmbedder(t *testing.T, model string, ttl time.Duration) (*CachedEmbedder, *mockEmbedder, *memKV) {
	t.Helper()
	inner := &mockEmbedder{}
	kv := newMemKV()
	ce := New(inner, kv, keyspace.New("ragdex:"), model, testDim, ttl, nil, zap.NewNop())
	return ce, inner, kv
}
