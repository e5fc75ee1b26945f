package chi

import (
	"time"

	"github.com/kailas-cloud/ragdex/internal/domain"
	"github.com/kailas-cloud/ragdex/internal/domain/search/result"
	domsf "github.com/kailas-cloud/ragdex/internal/domain/sourcefile"
)

// ErrorCode is the machine-readable error kind in ErrorResponse.
type ErrorCode string

// Error codes.
const (
	CodeBadRequest        ErrorCode = "bad_request"
	CodeUnauthorized      ErrorCode = "unauthorized"
	CodeValidationFailed  ErrorCode = "validation_failed"
	CodeNotFound          ErrorCode = "not_found"
	CodeUnknownScope      ErrorCode = "unknown_scope"
	CodeDuplicateContent  ErrorCode = "duplicate_content"
	CodeInvalidTransition ErrorCode = "invalid_transition"
	CodeUploadTooLarge    ErrorCode = "upload_too_large"
	CodeUnsupportedFormat ErrorCode = "unsupported_format"
	CodeEmbeddingError    ErrorCode = "embedding_provider_error"
	CodeRateLimited       ErrorCode = "rate_limited"
	CodeQueueFull         ErrorCode = "queue_full"
	CodeUnavailable       ErrorCode = "unavailable"
	CodeInternalError     ErrorCode = "internal_error"
)

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// DuplicateResponse is returned with 409 when the content is already known.
type DuplicateResponse struct {
	ErrorResponse
	SourceFileID int64         `json:"source_file_id"`
	ContentHash  string        `json:"content_hash"`
	Status       domain.Status `json:"status"`
}

// UploadResponse is returned with 202 once an upload is accepted.
type UploadResponse struct {
	SourceFileID int64         `json:"source_file_id"`
	ContentHash  string        `json:"content_hash"`
	Status       domain.Status `json:"status"`
}

// StatusResponse answers GET /v1/status/{hash}.
type StatusResponse struct {
	ContentHash   string              `json:"content_hash"`
	Exists        bool                `json:"exists"`
	Status        domain.LookupStatus `json:"status"`
	SourceFileID  *int64              `json:"source_file_id,omitempty"`
	FailureKind   domain.FailureKind  `json:"failure_kind,omitempty"`
	FailureReason string              `json:"failure_reason,omitempty"`
	PassageCount  int                 `json:"passage_count"`
}

// FileResponse describes one source file.
type FileResponse struct {
	ID              int64              `json:"id"`
	DisplayName     string             `json:"display_name"`
	ContentHash     string             `json:"content_hash"`
	Status          domain.Status      `json:"status"`
	OwnerID         string             `json:"owner_id"`
	Active          bool               `json:"active"`
	ScopeID         string             `json:"scope_id,omitempty"`
	FailureKind     domain.FailureKind `json:"failure_kind,omitempty"`
	FailureReason   string             `json:"failure_reason,omitempty"`
	PassageCount    int                `json:"passage_count"`
	IndexedPassages *int               `json:"indexed_passages,omitempty"`
	CreatedAt       time.Time          `json:"created_at"`
	UpdatedAt       time.Time          `json:"updated_at"`
}

// FileListResponse answers GET /v1/files.
type FileListResponse struct {
	Items []FileResponse `json:"items"`
	Total int            `json:"total"`
}

// PatchFileRequest is the body of PATCH /v1/files/{id}.
type PatchFileRequest struct {
	Active *bool `json:"active"`
}

// SearchRequest is the body of POST /v1/search.
type SearchRequest struct {
	Query     string   `json:"query"`
	Limit     *int     `json:"limit,omitempty"`
	Threshold *float64 `json:"threshold,omitempty"`
	Scope     string   `json:"scope,omitempty"`
}

// HitResponse is one ranked passage.
type HitResponse struct {
	PassageID    int64   `json:"passage_id"`
	SourceFileID int64   `json:"source_file_id"`
	Content      string  `json:"content"`
	Similarity   float64 `json:"similarity"`
}

// SearchResponse answers POST /v1/search.
type SearchResponse struct {
	Items []HitResponse `json:"items"`
	Total int           `json:"total"`
}

// HealthResponse answers GET /health.
type HealthResponse struct {
	Status     string            `json:"status"`
	Checks     map[string]string `json:"checks"`
	QueueDepth int               `json:"queue_depth"`
	Version    string            `json:"version"`
}

func fileToResponse(f *domsf.SourceFile) FileResponse {
	return FileResponse{
		ID:            f.ID(),
		DisplayName:   f.DisplayName(),
		ContentHash:   f.ContentHash(),
		Status:        f.Status(),
		OwnerID:       f.OwnerID(),
		Active:        f.Active(),
		ScopeID:       f.ScopeID(),
		FailureKind:   f.FailureKind(),
		FailureReason: f.FailureReason(),
		PassageCount:  f.PassageCount(),
		CreatedAt:     f.CreatedAt(),
		UpdatedAt:     f.UpdatedAt(),
	}
}

func hitToResponse(h *result.Hit) HitResponse {
	return HitResponse{
		PassageID:    h.PassageID(),
		SourceFileID: h.SourceFileID(),
		Content:      h.Content(),
		Similarity:   h.Similarity(),
	}
}
