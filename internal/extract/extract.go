// Package extract turns uploaded documents into plain text. Extractors are
// chosen by file extension.
package extract

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/kailas-cloud/ragdex/internal/domain"
)

// Extractor converts one document into text.
type Extractor interface {
	Extract(ctx context.Context, name string, r io.Reader) (string, error)
}

// Registry dispatches to an Extractor by lower-case file extension.
type Registry struct {
	byExt map[string]Extractor
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{byExt: make(map[string]Extractor)}
}

// Default registers the plaintext, HTML and PDF extractors.
func Default(pdftotextPath string) *Registry {
	text := Plaintext{}
	return NewRegistry().
		Register(text, ".txt", ".md", ".markdown", ".csv", ".log", ".json").
		Register(HTML{}, ".html", ".htm").
		Register(NewPDF(pdftotextPath), ".pdf")
}

// Register maps extensions (with leading dot) to e.
func (r *Registry) Register(e Extractor, exts ...string) *Registry {
	for _, ext := range exts {
		r.byExt[strings.ToLower(ext)] = e
	}
	return r
}

// Supports reports whether name has a registered extension.
func (r *Registry) Supports(name string) bool {
	_, ok := r.byExt[strings.ToLower(filepath.Ext(name))]
	return ok
}

// Extract implements Extractor.
func (r *Registry) Extract(ctx context.Context, name string, src io.Reader) (string, error) {
	ext := strings.ToLower(filepath.Ext(name))
	e, ok := r.byExt[ext]
	if !ok {
		return "", fmt.Errorf("%w: %q", domain.ErrUnsupportedFormat, ext)
	}
	return e.Extract(ctx, name, src)
}
