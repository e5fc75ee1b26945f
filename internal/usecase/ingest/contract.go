package ingest

import (
	"context"
	"io"

	"github.com/kailas-cloud/ragdex/internal/domain"
	"github.com/kailas-cloud/ragdex/internal/domain/passage"
	domsf "github.com/kailas-cloud/ragdex/internal/domain/sourcefile"
	"github.com/kailas-cloud/ragdex/internal/spool"
)

// SourceFileRepository stores source file lifecycle records. Create must
// enforce content hash uniqueness and report a lost race as a
// *domain.DuplicateContentError.
type SourceFileRepository interface {
	Create(ctx context.Context, f domsf.SourceFile) (domsf.SourceFile, error)
	Get(ctx context.Context, id int64) (domsf.SourceFile, error)
	GetByHash(ctx context.Context, hash string) (domsf.SourceFile, error)
	Update(ctx context.Context, f domsf.SourceFile) error
	List(ctx context.Context, lf domsf.ListFilter) ([]domsf.SourceFile, error)
	Delete(ctx context.Context, id int64) error
}

// VectorStore persists passages. Insert is all-or-nothing.
type VectorStore interface {
	Insert(ctx context.Context, sourceFileID int64, drafts []passage.Draft) ([]int64, error)
	DeleteBySourceFile(ctx context.Context, sourceFileID int64) (int, error)
	SetSourceFileActive(ctx context.Context, sourceFileID int64, active bool) error
}

// Extractor turns a document body into text.
type Extractor interface {
	Extract(ctx context.Context, name string, r io.Reader) (string, error)
}

// Chunker splits text into passages. It never fails.
type Chunker interface {
	Chunk(ctx context.Context, content string) []string
}

// Embedder vectorizes passages in input order.
type Embedder interface {
	BatchEmbed(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error)
}

// Spool holds upload bodies on disk until a worker has read them.
type Spool interface {
	Write(r io.Reader, maxBytes int64) (*spool.File, error)
	Sweep() (int, error)
}

// ScopeResolver maps a caller-facing scope name to a scope id.
type ScopeResolver interface {
	Resolve(ctx context.Context, name string) (string, error)
}
