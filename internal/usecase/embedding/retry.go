package embedding

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/ragdex/internal/domain"
	"github.com/kailas-cloud/ragdex/internal/metrics"
)

// RetryConfig configures exponential backoff retry behavior.
type RetryConfig struct {
	MaxAttempts int           // total attempts including the first
	BaseDelay   time.Duration // delay before the second attempt
	MaxDelay    time.Duration // cap on the delay
	Multiplier  float64       // growth factor per attempt
}

// DefaultRetryConfig returns three attempts starting at 200ms.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 3,
		BaseDelay:   200 * time.Millisecond,
		MaxDelay:    5 * time.Second,
		Multiplier:  2,
	}
}

// RetryingEmbedder retries transient provider failures with exponential backoff.
type RetryingEmbedder struct {
	inner  domain.Gateway
	cfg    RetryConfig
	logger *zap.Logger
}

// NewRetryingEmbedder wraps inner with retries.
func NewRetryingEmbedder(inner domain.Embedder, cfg RetryConfig, logger *zap.Logger) *RetryingEmbedder {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	if cfg.Multiplier < 1 {
		cfg.Multiplier = 1
	}
	return &RetryingEmbedder{inner: domain.AsGateway(inner), cfg: cfg, logger: logger}
}

// Embed retries inner.Embed.
func (r *RetryingEmbedder) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	return retryWithBackoff(ctx, r, "embed", func() (domain.EmbeddingResult, error) {
		return r.inner.Embed(ctx, text)
	})
}

// BatchEmbed retries inner.BatchEmbed as a whole.
func (r *RetryingEmbedder) BatchEmbed(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	return retryWithBackoff(ctx, r, "batch_embed", func() (domain.BatchEmbeddingResult, error) {
		return r.inner.BatchEmbed(ctx, texts)
	})
}

// retryWithBackoff runs fn until it succeeds, fails permanently, the context
// ends or the attempts run out. The last error is returned.
func retryWithBackoff[T any](ctx context.Context, r *RetryingEmbedder, op string, fn func() (T, error)) (T, error) {
	var zero T
	backoff := r.cfg.BaseDelay

	for attempt := 1; ; attempt++ {
		result, err := fn()
		if err == nil {
			return result, nil
		}
		if ctx.Err() != nil {
			return zero, err
		}
		if !retryable(err) || attempt >= r.cfg.MaxAttempts {
			return zero, err
		}

		metrics.EmbeddingRetriesTotal.WithLabelValues(op).Inc()
		r.logger.Warn("Embedding call failed, retrying",
			zap.String("operation", op),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", backoff),
			zap.Error(err),
		)

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, err
		case <-timer.C:
		}

		backoff = time.Duration(float64(backoff) * r.cfg.Multiplier)
		if r.cfg.MaxDelay > 0 && backoff > r.cfg.MaxDelay {
			backoff = r.cfg.MaxDelay
		}
	}
}

func retryable(err error) bool {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return false
	case errors.Is(err, domain.ErrEmbeddingRejected), errors.Is(err, domain.ErrVectorDimMismatch):
		return false
	default:
		return true
	}
}
