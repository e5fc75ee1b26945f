package chi

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/kailas-cloud/ragdex/internal/domain"
	"github.com/kailas-cloud/ragdex/internal/logger"
	"github.com/kailas-cloud/ragdex/internal/usecase/ingest"
)

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error) bool

// errorHandlers are tried in order; more specific sentinels come first.
var errorHandlers = []errorHandler{
	duplicateHandler,
	bodyTooLargeHandler,
	sentinelHandler(domain.ErrUploadTooLarge, http.StatusRequestEntityTooLarge, CodeUploadTooLarge),
	sentinelHandler(domain.ErrUnsupportedFormat, http.StatusUnsupportedMediaType, CodeUnsupportedFormat),
	sentinelHandler(domain.ErrInvalidRequest, http.StatusBadRequest, CodeValidationFailed),
	sentinelHandler(domain.ErrVectorDimMismatch, http.StatusBadRequest, CodeValidationFailed),
	sentinelHandler(domain.ErrNotFound, http.StatusNotFound, CodeNotFound),
	sentinelHandler(domain.ErrUnknownScope, http.StatusNotFound, CodeUnknownScope),
	sentinelHandler(domain.ErrInvalidTransition, http.StatusConflict, CodeInvalidTransition),
	sentinelHandler(domain.ErrRateLimited, http.StatusTooManyRequests, CodeRateLimited),
	sentinelHandler(domain.ErrEmbeddingGateway, http.StatusBadGateway, CodeEmbeddingError),
	sentinelHandler(domain.ErrQueueFull, http.StatusServiceUnavailable, CodeQueueFull),
	sentinelHandler(ingest.ErrStopped, http.StatusServiceUnavailable, CodeUnavailable),
	sentinelHandler(domain.ErrPersistence, http.StatusServiceUnavailable, CodeUnavailable),
}

// safeDomainMessage returns a sentinel error message for the client without exposing internals.
// Validation errors carry caller-supplied detail, so they are passed through.
func safeDomainMessage(err error) string {
	if errors.Is(err, domain.ErrInvalidRequest) || errors.Is(err, domain.ErrVectorDimMismatch) {
		return err.Error()
	}
	sentinels := []error{
		domain.ErrNotFound,
		domain.ErrUnknownScope,
		domain.ErrInvalidTransition,
		domain.ErrUnsupportedFormat,
		domain.ErrRateLimited,
		domain.ErrEmbeddingGateway,
		domain.ErrQueueFull,
		domain.ErrPersistence,
		ingest.ErrStopped,
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code ErrorCode) errorHandler {
	return func(w http.ResponseWriter, err error) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, safeDomainMessage(err))
		return true
	}
}

// duplicateHandler reports the record that already owns the content.
func duplicateHandler(w http.ResponseWriter, err error) bool {
	var dup *domain.DuplicateContentError
	if !errors.As(err, &dup) {
		return false
	}
	writeJSON(w, http.StatusConflict, DuplicateResponse{
		ErrorResponse: ErrorResponse{Code: CodeDuplicateContent, Message: domain.ErrDuplicateContent.Error()},
		SourceFileID:  dup.SourceFileID,
		ContentHash:   dup.ContentHash,
		Status:        dup.Status,
	})
	return true
}

func bodyTooLargeHandler(w http.ResponseWriter, err error) bool {
	var mbe *http.MaxBytesError
	if !errors.As(err, &mbe) {
		return false
	}
	writeError(w, http.StatusRequestEntityTooLarge, CodeUploadTooLarge, "request body too large")
	return true
}

func handleDomainError(w http.ResponseWriter, r *http.Request, err error) {
	log := logger.FromContext(r.Context())
	for _, h := range errorHandlers {
		if h(w, err) {
			log.Warn("domain error", zap.Error(err))
			return
		}
	}
	log.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, CodeInternalError, "internal error")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code ErrorCode, message string) {
	writeJSON(w, status, ErrorResponse{Code: code, Message: message})
}
