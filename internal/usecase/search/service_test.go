package search

import (
	"context"
	"errors"
	"math"
	"os"
	"testing"

	"github.com/kailas-cloud/ragdex/internal/domain"
	"github.com/kailas-cloud/ragdex/internal/domain/passage"
	"github.com/kailas-cloud/ragdex/internal/domain/search/request"
	"github.com/kailas-cloud/ragdex/internal/domain/search/result"
	"github.com/kailas-cloud/ragdex/internal/metrics"
)

func TestMain(m *testing.M) {
	metrics.RegisterPipelineMetrics()
	os.Exit(m.Run())
}

// --- Mocks ---

type mockStore struct {
	hits   []result.Hit
	err    error
	called bool
	last   passage.Query
}

func (m *mockStore) Search(_ context.Context, q passage.Query) ([]result.Hit, error) {
	m.called = true
	m.last = q
	return m.hits, m.err
}

type mockEmbedder struct {
	vec    []float32
	tokens int
	err    error
	calls  int
}

func (m *mockEmbedder) Embed(_ context.Context, _ string) (domain.EmbeddingResult, error) {
	m.calls++
	if m.err != nil {
		return domain.EmbeddingResult{}, m.err
	}
	return domain.EmbeddingResult{Embedding: m.vec, TotalTokens: m.tokens}, nil
}

type mapScopes map[string]string

func (m mapScopes) Resolve(_ context.Context, name string) (string, error) {
	id, ok := m[name]
	if !ok {
		return "", domain.ErrUnknownScope
	}
	return id, nil
}

func newRequest(t *testing.T, query string, limit int, threshold float64, scope string) request.Request {
	t.Helper()
	req, err := request.New(query, limit, threshold, scope)
	if err != nil {
		t.Fatalf("request.New: %v", err)
	}
	return req
}

// --- Tests ---

func TestSearch_PassesQueryToStore(t *testing.T) {
	store := &mockStore{hits: []result.Hit{
		result.New(1, 10, "pool opens at 7", 0.91),
		result.New(2, 10, "pool closes at 22", 0.74),
	}}
	emb := &mockEmbedder{vec: []float32{1, 0, 0}, tokens: 4}
	svc := New(store, emb, 3)

	ctx, usage := domain.WithQueryUsage(context.Background())
	hits, err := svc.Search(ctx, newRequest(t, "when does the pool open", 0, 0.42, ""))
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("expected 2 hits, got %d", len(hits))
	}
	if emb.calls != 1 {
		t.Errorf("query must be embedded once, got %d calls", emb.calls)
	}
	q := store.last
	if q.Limit != request.DefaultLimit || q.Threshold != 0.42 || !q.RequireActive || q.ScopeID != nil {
		t.Errorf("unexpected store query: %+v", q)
	}
	if usage.Tokens != 4 || !usage.Embedded {
		t.Errorf("usage not recorded: %+v", usage)
	}
}

func TestSearch_Scope(t *testing.T) {
	store := &mockStore{}
	svc := New(store, &mockEmbedder{vec: []float32{0, 1, 0}}, 3).
		WithScopes(mapScopes{"hotel-a": "17"})

	if _, err := svc.Search(context.Background(), newRequest(t, "q", 3, 0.5, "hotel-a")); err != nil {
		t.Fatalf("Search: %v", err)
	}
	if store.last.ScopeID == nil || *store.last.ScopeID != "17" {
		t.Errorf("scope id not resolved: %v", store.last.ScopeID)
	}

	store.called = false
	_, err := svc.Search(context.Background(), newRequest(t, "q", 3, 0.5, "hotel-z"))
	if !errors.Is(err, domain.ErrUnknownScope) {
		t.Fatalf("expected ErrUnknownScope, got %v", err)
	}
	if store.called {
		t.Error("store must not be called for an unknown scope")
	}
}

func TestSearch_ScopeWithoutResolver(t *testing.T) {
	store := &mockStore{}
	svc := New(store, &mockEmbedder{vec: []float32{0, 1, 0}}, 3)

	if _, err := svc.Search(context.Background(), newRequest(t, "q", 3, 0.5, "raw-id")); err != nil {
		t.Fatalf("Search: %v", err)
	}
	if store.last.ScopeID == nil || *store.last.ScopeID != "raw-id" {
		t.Errorf("scope should pass through, got %v", store.last.ScopeID)
	}
}

func TestSearch_EmptyIsSuccess(t *testing.T) {
	svc := New(&mockStore{}, &mockEmbedder{vec: []float32{1, 0, 0}}, 3)

	hits, err := svc.Search(context.Background(), newRequest(t, "nothing matches", 5, 0.99, ""))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(hits) != 0 {
		t.Errorf("expected no hits, got %d", len(hits))
	}
}

func TestSearch_BadQueryEmbedding(t *testing.T) {
	tests := []struct {
		name string
		vec  []float32
	}{
		{"wrong dimension", []float32{1, 0}},
		{"nan", []float32{float32(math.NaN()), 0, 0}},
		{"inf", []float32{float32(math.Inf(-1)), 0, 0}},
		{"empty", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &mockStore{}
			svc := New(store, &mockEmbedder{vec: tt.vec}, 3)

			_, err := svc.Search(context.Background(), newRequest(t, "q", 5, 0.5, ""))
			if !errors.Is(err, domain.ErrEmbeddingGateway) {
				t.Fatalf("expected ErrEmbeddingGateway, got %v", err)
			}
			if store.called {
				t.Error("store must not be called with a bad vector")
			}
		})
	}
}

func TestSearch_PropagatesErrors(t *testing.T) {
	gwErr := errors.Join(domain.ErrEmbeddingGateway, errors.New("503"))
	svc := New(&mockStore{}, &mockEmbedder{err: gwErr}, 3)
	if _, err := svc.Search(context.Background(), newRequest(t, "q", 5, 0.5, "")); !errors.Is(err, domain.ErrEmbeddingGateway) {
		t.Errorf("gateway error: got %v", err)
	}

	storeErr := errors.New("connection reset")
	svc = New(&mockStore{err: storeErr}, &mockEmbedder{vec: []float32{1, 0, 0}}, 3)
	if _, err := svc.Search(context.Background(), newRequest(t, "q", 5, 0.5, "")); !errors.Is(err, storeErr) {
		t.Errorf("store error: got %v", err)
	}
}
