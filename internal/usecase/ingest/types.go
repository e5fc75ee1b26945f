package ingest

import (
	"io"

	"github.com/kailas-cloud/ragdex/internal/domain"
)

// Upload is one document offered for ingestion.
type Upload struct {
	DisplayName string
	OwnerID     string
	Scope       string // scope name; empty means unscoped
	ContentHash string // optional; verified against the body when set
	Body        io.Reader
}

// Accepted is returned once an upload has a Processing record and a queued job.
type Accepted struct {
	SourceFileID int64
	ContentHash  string
}

// StatusReport answers a by-hash status lookup.
type StatusReport struct {
	Exists        bool
	Status        domain.LookupStatus
	SourceFileID  int64
	FailureKind   domain.FailureKind
	FailureReason string
	PassageCount  int
}

// ListRequest filters a source file listing.
type ListRequest struct {
	Scope  *string // scope name; nil lists every scope
	Status domain.Status
	Limit  int
}
