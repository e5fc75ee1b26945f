// Package embcache caches ingestion embeddings in Redis. Queries never go
// through it.
package embcache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/kailas-cloud/ragdex/internal/domain"
	"github.com/kailas-cloud/ragdex/internal/domain/vector"
	"github.com/kailas-cloud/ragdex/internal/repository/keyspace"
)

// purgeBatch bounds the number of keys per DEL.
const purgeBatch = 500

// store is the consumer interface for the embedding cache (ISP).
type store interface {
	MGet(ctx context.Context, keys []string) ([][]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Scan(ctx context.Context, pattern string) ([]string, error)
	Del(ctx context.Context, keys ...string) error
}

// CachedEmbedder caches batch embeddings per text, namespaced by model.
// Cache failures degrade to calling the inner embedder.
type CachedEmbedder struct {
	inner      domain.BatchEmbedder
	store      store
	keys       keyspace.Keyspace
	model      string
	dim        int
	ttl        time.Duration
	cacheTotal *prometheus.CounterVec
	logger     *zap.Logger
}

// New creates a caching decorator for embeddings of model with dimension dim.
// A non-positive ttl keeps entries until Purge.
// cacheTotal is a counter vec with label "result" ("hit"/"miss"), passed explicitly.
func New(
	inner domain.BatchEmbedder,
	s store,
	keys keyspace.Keyspace,
	model string,
	dim int,
	ttl time.Duration,
	cacheTotal *prometheus.CounterVec,
	logger *zap.Logger,
) *CachedEmbedder {
	return &CachedEmbedder{
		inner:      inner,
		store:      s,
		keys:       keys,
		model:      model,
		dim:        dim,
		ttl:        ttl,
		cacheTotal: cacheTotal,
		logger:     logger,
	}
}

// BatchEmbed serves cached vectors and embeds the rest in one inner call.
// Token counts cover only the texts actually sent to the provider.
func (c *CachedEmbedder) BatchEmbed(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	if len(texts) == 0 {
		return domain.BatchEmbeddingResult{}, nil
	}

	keys := make([]string, len(texts))
	for i, t := range texts {
		keys[i] = c.cacheKey(t)
	}

	out := make([][]float32, len(texts))
	c.lookup(ctx, keys, out)

	// Identical texts are embedded once.
	var (
		missTexts []string
		missAt    = make(map[string][]int)
	)
	for i, v := range out {
		if v != nil {
			continue
		}
		if _, seen := missAt[keys[i]]; !seen {
			missTexts = append(missTexts, texts[i])
		}
		missAt[keys[i]] = append(missAt[keys[i]], i)
	}
	c.incCache("hit", len(texts)-countPositions(missAt))
	c.incCache("miss", countPositions(missAt))

	if len(missTexts) == 0 {
		return domain.BatchEmbeddingResult{Embeddings: out}, nil
	}

	res, err := c.inner.BatchEmbed(ctx, missTexts)
	if err != nil {
		return domain.BatchEmbeddingResult{}, fmt.Errorf("embed texts: %w", err)
	}
	if len(res.Embeddings) != len(missTexts) {
		return domain.BatchEmbeddingResult{}, fmt.Errorf("%w: got %d embeddings for %d texts",
			domain.ErrEmbeddingGateway, len(res.Embeddings), len(missTexts))
	}

	for j, t := range missTexts {
		key := c.cacheKey(t)
		vec := res.Embeddings[j]
		for _, i := range missAt[key] {
			out[i] = vec
		}
		c.put(ctx, key, vec)
	}

	return domain.BatchEmbeddingResult{
		Embeddings:   out,
		PromptTokens: res.PromptTokens,
		TotalTokens:  res.TotalTokens,
	}, nil
}

// Purge removes every cached embedding of the configured model.
func (c *CachedEmbedder) Purge(ctx context.Context) (int, error) {
	keys, err := c.store.Scan(ctx, c.keys.EmbeddingCachePattern(c.model))
	if err != nil {
		return 0, fmt.Errorf("scan embedding cache: %w", err)
	}
	for start := 0; start < len(keys); start += purgeBatch {
		end := min(start+purgeBatch, len(keys))
		if err := c.store.Del(ctx, keys[start:end]...); err != nil {
			return start, fmt.Errorf("delete cached embeddings: %w", err)
		}
	}
	c.logger.Info("embedding cache purged", zap.String("model", c.model), zap.Int("keys", len(keys)))
	return len(keys), nil
}

func (c *CachedEmbedder) lookup(ctx context.Context, keys []string, out [][]float32) {
	values, err := c.store.MGet(ctx, keys)
	if err != nil {
		c.logger.Warn("Failed to read embedding cache", zap.Int("keys", len(keys)), zap.Error(err))
		return
	}
	for i, data := range values {
		if i >= len(out) || len(data) == 0 {
			continue
		}
		vec, err := vector.Decode(data)
		if err != nil || vector.Validate(vec, c.dim) != nil {
			c.logger.Warn("Ignoring corrupt cached embedding", zap.String("key", keys[i]))
			continue
		}
		out[i] = vec
	}
}

func (c *CachedEmbedder) put(ctx context.Context, key string, vec []float32) {
	var err error
	if c.ttl > 0 {
		err = c.store.SetWithTTL(ctx, key, vector.Encode(vec), c.ttl)
	} else {
		err = c.store.Set(ctx, key, vector.Encode(vec))
	}
	if err != nil {
		c.logger.Warn("Failed to cache embedding", zap.String("key", key), zap.Error(err))
	}
}

func (c *CachedEmbedder) incCache(result string, n int) {
	if c.cacheTotal != nil && n > 0 {
		c.cacheTotal.WithLabelValues(result).Add(float64(n))
	}
}

func (c *CachedEmbedder) cacheKey(text string) string {
	h := sha256.Sum256([]byte(text))
	return c.keys.EmbeddingCache(c.model, hex.EncodeToString(h[:]))
}

func countPositions(m map[string][]int) int {
	n := 0
	for _, idx := range m {
		n += len(idx)
	}
	return n
}
