package search

import (
	"context"

	"github.com/kailas-cloud/ragdex/internal/domain"
	"github.com/kailas-cloud/ragdex/internal/domain/passage"
	"github.com/kailas-cloud/ragdex/internal/domain/search/result"
)

// Store runs filtered similarity search over stored passages.
type Store interface {
	Search(ctx context.Context, q passage.Query) ([]result.Hit, error)
}

// Embedder vectorizes the query text.
type Embedder interface {
	Embed(ctx context.Context, text string) (domain.EmbeddingResult, error)
}

// ScopeResolver maps a caller-facing scope name to a scope id.
type ScopeResolver interface {
	Resolve(ctx context.Context, name string) (string, error)
}
