package domain

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrNotFound signals a missing resource.
	ErrNotFound = errors.New("not found")
	// ErrInvalidRequest signals malformed caller input.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrInvalidUpload signals an upload body that cannot be accepted.
	ErrInvalidUpload = fmt.Errorf("%w: invalid upload", ErrInvalidRequest)
	// ErrUploadTooLarge signals an upload over the configured size limit.
	ErrUploadTooLarge = fmt.Errorf("%w: too large", ErrInvalidUpload)
	// ErrInvalidTransition signals a forbidden source file status change.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrUnknownScope signals a scope name the resolver does not know.
	ErrUnknownScope = errors.New("unknown scope")
	// ErrVectorDimMismatch signals a vector dimension mismatch.
	ErrVectorDimMismatch = errors.New("vector dimension mismatch")

	// ErrExtraction signals unreadable or corrupt input.
	ErrExtraction = errors.New("text extraction failed")
	// ErrUnsupportedFormat signals an input format no extractor handles.
	ErrUnsupportedFormat = fmt.Errorf("%w: unsupported format", ErrExtraction)
	// ErrEmptyContent signals that extraction or chunking produced nothing to index.
	ErrEmptyContent = errors.New("no extractable content")
	// ErrEmbeddingGateway signals an embedding provider failure.
	ErrEmbeddingGateway = errors.New("embedding gateway error")
	// ErrEmbeddingRejected signals a provider 4xx that retrying will not fix.
	ErrEmbeddingRejected = fmt.Errorf("%w: request rejected", ErrEmbeddingGateway)
	// ErrDuplicateContent signals an upload whose content hash is already known.
	ErrDuplicateContent = errors.New("duplicate content")
	// ErrPersistence signals a storage write failure.
	ErrPersistence = errors.New("persistence error")

	// ErrQueueFull signals that the ingestion queue did not accept a job in time.
	ErrQueueFull = errors.New("ingestion queue full")
	// ErrRateLimited signals a provider rate limit hit.
	ErrRateLimited = errors.New("rate limited")
)

// DuplicateContentError wraps ErrDuplicateContent with the record that already owns the hash.
type DuplicateContentError struct {
	ContentHash  string
	SourceFileID int64
	Status       Status
}

func (e *DuplicateContentError) Error() string {
	return fmt.Sprintf("%s: hash %s already owned by source file %d (%s)",
		ErrDuplicateContent.Error(), e.ContentHash, e.SourceFileID, e.Status)
}

func (e *DuplicateContentError) Unwrap() error { return ErrDuplicateContent }

// NewDuplicateContent creates a duplicate content error.
func NewDuplicateContent(hash string, id int64, status Status) error {
	return &DuplicateContentError{ContentHash: hash, SourceFileID: id, Status: status}
}

// FailureKind classifies why a source file ended up Failed.
type FailureKind string

const (
	// FailureNone is used for files that did not fail.
	FailureNone FailureKind = ""
	// FailureExtraction means the extractor rejected the input.
	FailureExtraction FailureKind = "extraction"
	// FailureEmptyContent means there was nothing to index.
	FailureEmptyContent FailureKind = "empty_content"
	// FailureEmbedding means the embedding gateway failed.
	FailureEmbedding FailureKind = "embedding"
	// FailurePersistence means the passages could not be written.
	FailurePersistence FailureKind = "persistence"
	// FailureInterrupted means processing stopped before reaching a terminal status.
	FailureInterrupted FailureKind = "interrupted"
)

// ParseFailureKind converts a stored value back to a FailureKind.
func ParseFailureKind(s string) (FailureKind, error) {
	switch k := FailureKind(s); k {
	case FailureNone, FailureExtraction, FailureEmptyContent,
		FailureEmbedding, FailurePersistence, FailureInterrupted:
		return k, nil
	default:
		return FailureNone, fmt.Errorf("unknown failure kind %q", s)
	}
}

// FailureKindOf maps an ingestion error onto the persisted failure kind.
func FailureKindOf(err error) FailureKind {
	switch {
	case err == nil:
		return FailureNone
	case errors.Is(err, context.Canceled):
		return FailureInterrupted
	case errors.Is(err, ErrEmptyContent):
		return FailureEmptyContent
	case errors.Is(err, ErrExtraction):
		return FailureExtraction
	case errors.Is(err, ErrEmbeddingGateway), errors.Is(err, ErrRateLimited):
		return FailureEmbedding
	case errors.Is(err, ErrPersistence):
		return FailurePersistence
	default:
		return FailureInterrupted
	}
}
