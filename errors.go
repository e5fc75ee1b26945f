package ragdex

import (
	"errors"

	"github.com/kailas-cloud/ragdex/internal/domain"
	ingestuc "github.com/kailas-cloud/ragdex/internal/usecase/ingest"
)

// Errors returned by Client methods. Match with errors.Is.
var (
	ErrNotFound          = domain.ErrNotFound
	ErrInvalidRequest    = domain.ErrInvalidRequest
	ErrUploadTooLarge    = domain.ErrUploadTooLarge
	ErrUnsupportedFormat = domain.ErrUnsupportedFormat
	ErrDuplicateContent  = domain.ErrDuplicateContent
	ErrInvalidTransition = domain.ErrInvalidTransition
	ErrUnknownScope      = domain.ErrUnknownScope
	ErrEmbeddingGateway  = domain.ErrEmbeddingGateway
	ErrRateLimited       = domain.ErrRateLimited
	ErrQueueFull         = domain.ErrQueueFull
	ErrStopped           = ingestuc.ErrStopped
)

// errCacheDisabled is returned by PurgeEmbeddingCache without a cache.
var errCacheDisabled = errors.New("ragdex: embedding cache is not enabled")

// DuplicateOf returns the source file that already owns the content of a
// rejected upload.
func DuplicateOf(err error) (id int64, status Status, ok bool) {
	var dup *domain.DuplicateContentError
	if !errors.As(err, &dup) {
		return 0, "", false
	}
	return dup.SourceFileID, Status(dup.Status), true
}
