package embedding

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/ragdex/internal/domain"
)

// flakyEmbedder fails the first failures calls with err.
type flakyEmbedder struct {
	failures int
	err      error
	calls    int
}

func (f *flakyEmbedder) Embed(_ context.Context, _ string) (domain.EmbeddingResult, error) {
	f.calls++
	if f.calls <= f.failures {
		return domain.EmbeddingResult{}, f.err
	}
	return domain.EmbeddingResult{Embedding: []float32{1}}, nil
}

func (f *flakyEmbedder) BatchEmbed(_ context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	f.calls++
	if f.calls <= f.failures {
		return domain.BatchEmbeddingResult{}, f.err
	}
	return domain.BatchEmbeddingResult{Embeddings: make([][]float32, len(texts))}, nil
}

func fastRetry(attempts int) RetryConfig {
	return RetryConfig{MaxAttempts: attempts, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond, Multiplier: 2}
}

func TestRetryingEmbedder_RecoversFromTransientError(t *testing.T) {
	inner := &flakyEmbedder{failures: 2, err: fmt.Errorf("%w: 503", domain.ErrEmbeddingGateway)}
	r := NewRetryingEmbedder(inner, fastRetry(3), zap.NewNop())

	if _, err := r.Embed(context.Background(), "x"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if inner.calls != 3 {
		t.Errorf("expected 3 calls, got %d", inner.calls)
	}
}

func TestRetryingEmbedder_GivesUp(t *testing.T) {
	inner := &flakyEmbedder{failures: 10, err: domain.ErrRateLimited}
	r := NewRetryingEmbedder(inner, fastRetry(3), zap.NewNop())

	_, err := r.BatchEmbed(context.Background(), []string{"a"})
	if !errors.Is(err, domain.ErrRateLimited) {
		t.Fatalf("expected last error, got %v", err)
	}
	if inner.calls != 3 {
		t.Errorf("expected 3 calls, got %d", inner.calls)
	}
}

func TestRetryingEmbedder_PermanentErrorNotRetried(t *testing.T) {
	inner := &flakyEmbedder{failures: 10, err: fmt.Errorf("401: %w", domain.ErrEmbeddingRejected)}
	r := NewRetryingEmbedder(inner, fastRetry(5), zap.NewNop())

	_, err := r.Embed(context.Background(), "x")
	if !errors.Is(err, domain.ErrEmbeddingGateway) {
		t.Fatalf("expected gateway error, got %v", err)
	}
	if inner.calls != 1 {
		t.Errorf("expected a single call, got %d", inner.calls)
	}
}

func TestRetryingEmbedder_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	inner := &flakyEmbedder{failures: 10, err: errors.New("boom")}
	r := NewRetryingEmbedder(inner, fastRetry(5), zap.NewNop())

	if _, err := r.Embed(ctx, "x"); err == nil {
		t.Fatal("expected error")
	}
	if inner.calls != 1 {
		t.Errorf("expected no retries after cancel, got %d calls", inner.calls)
	}
}
