// Package passage holds the unit of retrieval: a bounded excerpt of source
// text with its own embedding.
package passage

import (
	"fmt"
	"strings"

	"github.com/kailas-cloud/ragdex/internal/domain/vector"
)

// Draft is a passage that has been embedded but not persisted yet.
type Draft struct {
	Content   string
	Embedding []float32
}

// Validate checks the non-empty content and fixed-dimension invariants.
func (d Draft) Validate(dim int) error {
	if strings.TrimSpace(d.Content) == "" {
		return fmt.Errorf("passage content is required")
	}
	if err := vector.Validate(d.Embedding, dim); err != nil {
		return fmt.Errorf("passage embedding: %w", err)
	}
	return nil
}

// Passage is a persisted, immutable passage.
type Passage struct {
	id           int64
	sourceFileID int64
	content      string
	embedding    []float32
}

// Reconstruct creates a Passage without validation (storage hydration).
func Reconstruct(id, sourceFileID int64, content string, embedding []float32) Passage {
	return Passage{id: id, sourceFileID: sourceFileID, content: content, embedding: embedding}
}

// ID returns the passage identifier.
func (p *Passage) ID() int64 { return p.id }

// SourceFileID returns the owning source file.
func (p *Passage) SourceFileID() int64 { return p.sourceFileID }

// Content returns the passage text.
func (p *Passage) Content() string { return p.content }

// Embedding returns the passage vector.
func (p *Passage) Embedding() []float32 { return p.embedding }
