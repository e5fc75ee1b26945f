package embedding

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/kailas-cloud/ragdex/internal/domain"
	"github.com/kailas-cloud/ragdex/internal/metrics"
)

// RateLimitedEmbedder throttles provider calls with a token bucket.
// A batch call costs one token regardless of its size.
type RateLimitedEmbedder struct {
	inner   domain.Gateway
	limiter *rate.Limiter
}

// NewRateLimitedEmbedder wraps inner with rps requests per second and the given burst.
func NewRateLimitedEmbedder(inner domain.Embedder, rps float64, burst int) *RateLimitedEmbedder {
	if burst <= 0 {
		burst = 1
	}
	return &RateLimitedEmbedder{
		inner:   domain.AsGateway(inner),
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
	}
}

// Embed waits for a token, then delegates.
func (r *RateLimitedEmbedder) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	if err := r.wait(ctx); err != nil {
		return domain.EmbeddingResult{}, err
	}
	return r.inner.Embed(ctx, text) //nolint:wrapcheck // decorator
}

// BatchEmbed waits for a token, then delegates.
func (r *RateLimitedEmbedder) BatchEmbed(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	if err := r.wait(ctx); err != nil {
		return domain.BatchEmbeddingResult{}, err
	}
	return r.inner.BatchEmbed(ctx, texts) //nolint:wrapcheck // decorator
}

func (r *RateLimitedEmbedder) wait(ctx context.Context) error {
	start := time.Now()
	if err := r.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%w: wait for embedding slot: %w", domain.ErrRateLimited, err)
	}
	metrics.EmbeddingRateLimitWait.Observe(time.Since(start).Seconds())
	return nil
}
