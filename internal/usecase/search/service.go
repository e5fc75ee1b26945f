package search

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/ragdex/internal/domain"
	"github.com/kailas-cloud/ragdex/internal/domain/passage"
	"github.com/kailas-cloud/ragdex/internal/domain/search/request"
	"github.com/kailas-cloud/ragdex/internal/domain/search/result"
	"github.com/kailas-cloud/ragdex/internal/domain/vector"
	"github.com/kailas-cloud/ragdex/internal/metrics"
)

// Service answers natural-language queries with the most similar active passages.
type Service struct {
	store  Store
	embed  Embedder
	scopes ScopeResolver
	dim    int
	logger *zap.Logger
}

// New creates a search service for embeddings of dimension dim.
func New(store Store, embed Embedder, dim int) *Service {
	return &Service{store: store, embed: embed, dim: dim, logger: zap.NewNop()}
}

// WithScopes sets the scope resolver. Without one, scope names are used as ids.
func (s *Service) WithScopes(r ScopeResolver) *Service {
	s.scopes = r
	return s
}

// WithLogger sets the logger.
func (s *Service) WithLogger(l *zap.Logger) *Service {
	s.logger = l
	return s
}

// Search embeds the query once and returns hits above the threshold, best first.
// An empty result is not an error.
func (s *Service) Search(ctx context.Context, req request.Request) ([]result.Hit, error) {
	start := time.Now()
	hits, err := s.search(ctx, req)

	metrics.SearchDuration.Observe(time.Since(start).Seconds())
	switch {
	case err != nil:
		metrics.SearchRequestsTotal.WithLabelValues("error").Inc()
		s.logger.Warn("search failed", zap.String("scope", req.Scope()), zap.Error(err))
	case len(hits) == 0:
		metrics.SearchRequestsTotal.WithLabelValues("empty").Inc()
	default:
		metrics.SearchRequestsTotal.WithLabelValues("hit").Inc()
	}
	return hits, err
}

func (s *Service) search(ctx context.Context, req request.Request) ([]result.Hit, error) {
	q := passage.Query{
		Limit:         req.Limit(),
		Threshold:     req.Threshold(),
		RequireActive: true,
	}
	if req.Scoped() {
		id, err := s.resolveScope(ctx, req.Scope())
		if err != nil {
			return nil, err
		}
		q.ScopeID = &id
	}

	emb, err := s.embed.Embed(ctx, req.Query())
	if err != nil {
		return nil, fmt.Errorf("vectorize query: %w", err)
	}
	domain.QueryUsageFrom(ctx).Record(emb.TotalTokens)

	if err := vector.Validate(emb.Embedding, s.dim); err != nil {
		return nil, fmt.Errorf("%w: query embedding: %w", domain.ErrEmbeddingGateway, err)
	}
	q.Vector = emb.Embedding

	hits, err := s.store.Search(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("search passages: %w", err)
	}
	return hits, nil
}

func (s *Service) resolveScope(ctx context.Context, name string) (string, error) {
	if s.scopes == nil {
		return name, nil
	}
	id, err := s.scopes.Resolve(ctx, name)
	if err != nil {
		return "", fmt.Errorf("resolve scope: %w", err)
	}
	return id, nil
}
