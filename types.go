package ragdex

import (
	"context"
	"io"
	"time"

	"github.com/kailas-cloud/ragdex/internal/domain"
	"github.com/kailas-cloud/ragdex/internal/domain/search/result"
	domsf "github.com/kailas-cloud/ragdex/internal/domain/sourcefile"
	ingestuc "github.com/kailas-cloud/ragdex/internal/usecase/ingest"
)

// Embedder vectorizes text. Implementations that also satisfy
// BatchEmbedder are called once per batch.
type Embedder interface {
	Embed(ctx context.Context, text string) (EmbeddingResult, error)
}

// BatchEmbedder vectorizes several texts in one call, preserving order.
type BatchEmbedder interface {
	BatchEmbed(ctx context.Context, texts []string) (BatchEmbeddingResult, error)
}

// EmbeddingResult is one vector with its token usage.
type EmbeddingResult struct {
	Embedding    []float32
	PromptTokens int
	TotalTokens  int
}

// BatchEmbeddingResult is a batch of vectors with aggregate token usage.
type BatchEmbeddingResult struct {
	Embeddings   [][]float32
	PromptTokens int
	TotalTokens  int
}

// Status is the lifecycle state of a source file.
type Status string

// Source file statuses. StatusNotFound is only reported by status lookups.
const (
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusNotFound   Status = "not_found"
)

// Upload is one document offered for ingestion.
type Upload struct {
	Name        string    // display name; its extension picks the extractor
	Owner       string    // optional owner id
	Scope       string    // scope name; empty means unscoped
	ContentHash string    // optional sha256 hex, verified against Body
	Body        io.Reader // document bytes
}

// Accepted identifies an upload that is now being processed.
type Accepted struct {
	SourceFileID int64
	ContentHash  string
}

// File is a source file record.
type File struct {
	ID            int64
	Name          string
	ContentHash   string
	Status        Status
	Owner         string
	Active        bool
	ScopeID       string
	FailureKind   string
	FailureReason string
	PassageCount  int
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// FileStatus answers a by-hash status lookup.
type FileStatus struct {
	Exists        bool
	Status        Status
	SourceFileID  int64
	FailureKind   string
	FailureReason string
	PassageCount  int
}

// Terminal reports whether processing has finished, successfully or not.
func (s FileStatus) Terminal() bool {
	return s.Status == StatusCompleted || s.Status == StatusFailed
}

// ListOptions filters Files.
type ListOptions struct {
	Scope  *string // scope name; nil lists every scope, "" only unscoped files
	Status Status  // empty lists every status
	Limit  int     // 0 means the default cap of 100
}

// Hit is one search result.
type Hit struct {
	PassageID    int64
	SourceFileID int64
	Content      string
	Similarity   float64
}

// Health is the aggregated component health.
type Health struct {
	Status     string
	Checks     map[string]string
	QueueDepth int
}

// --- Converters ---

func fromInternalFile(f domsf.SourceFile) File {
	return File{
		ID:            f.ID(),
		Name:          f.DisplayName(),
		ContentHash:   f.ContentHash(),
		Status:        Status(f.Status()),
		Owner:         f.OwnerID(),
		Active:        f.Active(),
		ScopeID:       f.ScopeID(),
		FailureKind:   string(f.FailureKind()),
		FailureReason: f.FailureReason(),
		PassageCount:  f.PassageCount(),
		CreatedAt:     f.CreatedAt(),
		UpdatedAt:     f.UpdatedAt(),
	}
}

func fromInternalStatus(r ingestuc.StatusReport) FileStatus {
	return FileStatus{
		Exists:        r.Exists,
		Status:        Status(r.Status),
		SourceFileID:  r.SourceFileID,
		FailureKind:   string(r.FailureKind),
		FailureReason: r.FailureReason,
		PassageCount:  r.PassageCount,
	}
}

func fromInternalHits(hits []result.Hit) []Hit {
	out := make([]Hit, len(hits))
	for i := range hits {
		h := &hits[i]
		out[i] = Hit{
			PassageID:    h.PassageID(),
			SourceFileID: h.SourceFileID(),
			Content:      h.Content(),
			Similarity:   h.Similarity(),
		}
	}
	return out
}

func toInternalList(o ListOptions) ingestuc.ListRequest {
	return ingestuc.ListRequest{Scope: o.Scope, Status: domain.Status(o.Status), Limit: o.Limit}
}

// embedderAdapter wraps a public Embedder to satisfy domain.Embedder.
type embedderAdapter struct {
	inner Embedder
}

func (a *embedderAdapter) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	r, err := a.inner.Embed(ctx, text)
	if err != nil {
		return domain.EmbeddingResult{}, err //nolint:wrapcheck // classified by the retry decorator
	}
	return domain.EmbeddingResult{
		Embedding:    r.Embedding,
		PromptTokens: r.PromptTokens,
		TotalTokens:  r.TotalTokens,
	}, nil
}

// batchEmbedderAdapter also forwards batch calls.
type batchEmbedderAdapter struct {
	embedderAdapter
	batch BatchEmbedder
}

func (a *batchEmbedderAdapter) BatchEmbed(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	r, err := a.batch.BatchEmbed(ctx, texts)
	if err != nil {
		return domain.BatchEmbeddingResult{}, err //nolint:wrapcheck // classified by the retry decorator
	}
	return domain.BatchEmbeddingResult{
		Embeddings:   r.Embeddings,
		PromptTokens: r.PromptTokens,
		TotalTokens:  r.TotalTokens,
	}, nil
}

func adaptEmbedder(e Embedder) domain.Gateway {
	base := embedderAdapter{inner: e}
	if b, ok := e.(BatchEmbedder); ok {
		return &batchEmbedderAdapter{embedderAdapter: base, batch: b}
	}
	return domain.AsGateway(&base)
}
