package chi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/oapi-codegen/runtime"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kailas-cloud/ragdex/internal/domain"
	"github.com/kailas-cloud/ragdex/internal/domain/search/request"
	"github.com/kailas-cloud/ragdex/internal/domain/search/result"
	domsf "github.com/kailas-cloud/ragdex/internal/domain/sourcefile"
	"github.com/kailas-cloud/ragdex/internal/logger"
	"github.com/kailas-cloud/ragdex/internal/metrics"
	healthuc "github.com/kailas-cloud/ragdex/internal/usecase/health"
	"github.com/kailas-cloud/ragdex/internal/usecase/ingest"
	"github.com/kailas-cloud/ragdex/internal/version"
)

// ContentHashHeader lets raw uploads declare their SHA-256 up front.
const ContentHashHeader = "X-Content-SHA256"

// multipartSlack covers multipart framing on top of the payload limit.
const multipartSlack = 1 << 20

// Ingestor is the ingestion surface the HTTP API drives.
type Ingestor interface {
	Submit(ctx context.Context, u ingest.Upload) (ingest.Accepted, error)
	Status(ctx context.Context, contentHash string) (ingest.StatusReport, error)
	Get(ctx context.Context, id int64) (domsf.SourceFile, error)
	List(ctx context.Context, req ingest.ListRequest) ([]domsf.SourceFile, error)
	SetActive(ctx context.Context, id int64, active bool) (domsf.SourceFile, error)
	Delete(ctx context.Context, id int64) error
}

// Searcher runs semantic search.
type Searcher interface {
	Search(ctx context.Context, req request.Request) ([]result.Hit, error)
}

// PassageCounter reports how many passages of a file the index holds.
type PassageCounter interface {
	CountBySourceFile(ctx context.Context, sourceFileID int64) (int, error)
}

// HealthChecker aggregates component health.
type HealthChecker interface {
	Check(ctx context.Context) healthuc.Report
}

// Options tune request validation.
type Options struct {
	MaxUploadBytes   int64
	DefaultLimit     int
	MaxLimit         int
	DefaultThreshold float64
	APIKeys          []string
}

func (o *Options) applyDefaults() {
	if o.DefaultLimit <= 0 {
		o.DefaultLimit = request.DefaultLimit
	}
	if o.MaxLimit <= 0 || o.MaxLimit > request.MaxLimit {
		o.MaxLimit = request.MaxLimit
	}
}

// Server serves the ragdex HTTP API.
type Server struct {
	ingest  Ingestor
	search  Searcher
	health  HealthChecker
	counter PassageCounter
	opts    Options
	logger  *zap.Logger
}

// NewServer creates an HTTP API server.
func NewServer(ing Ingestor, search Searcher, health HealthChecker, opts Options, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	opts.applyDefaults()
	return &Server{ingest: ing, search: search, health: health, opts: opts, logger: logger}
}

// WithPassageCounter enables indexed_passages on GET /v1/files/{id}.
func (s *Server) WithPassageCounter(c PassageCounter) *Server {
	s.counter = c
	return s
}

// Router builds the chi router with the full middleware stack.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(jsonRecoverer(s.logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(s.logger))
	r.Use(BearerAuthMiddleware(s.opts.APIKeys))
	r.Use(metrics.Middleware())

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, CodeNotFound, "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, CodeBadRequest, "method not allowed")
	})

	r.Get("/health", s.HealthCheck)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Post("/files", s.UploadFile)
		r.Get("/files", s.ListFiles)
		r.Get("/files/{id}", s.GetFile)
		r.Patch("/files/{id}", s.PatchFile)
		r.Delete("/files/{id}", s.DeleteFile)
		r.Get("/status/{hash}", s.GetStatus)
		r.Post("/search", s.Search)
	})
	return r
}

// UploadFile handles POST /v1/files. The body is either multipart with a
// "file" part or the raw document with ?name=.
func (s *Server) UploadFile(w http.ResponseWriter, r *http.Request) {
	if s.opts.MaxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxUploadBytes+multipartSlack)
	}

	var params struct {
		Name        string
		Scope       string
		ContentHash string
	}
	q := r.URL.Query()
	for name, dest := range map[string]*string{
		"name":         &params.Name,
		"scope":        &params.Scope,
		"content_hash": &params.ContentHash,
	} {
		if err := runtime.BindQueryParameter("form", true, false, name, q, dest); err != nil {
			writeError(w, http.StatusBadRequest, CodeBadRequest, fmt.Sprintf("invalid %s parameter", name))
			return
		}
	}
	if params.ContentHash == "" {
		params.ContentHash = r.Header.Get(ContentHashHeader)
	}

	upload := ingest.Upload{
		DisplayName: params.Name,
		OwnerID:     PrincipalFromContext(r.Context()),
		Scope:       params.Scope,
		ContentHash: params.ContentHash,
		Body:        r.Body,
	}

	mediaType, mediaParams, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		part, err := filePart(multipart.NewReader(r.Body, mediaParams["boundary"]), &upload)
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		defer part.Close()
		upload.Body = part
	}

	accepted, err := s.ingest.Submit(r.Context(), upload)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}

	logger.FromContext(r.Context()).Info("upload accepted",
		zap.Int64("source_file_id", accepted.SourceFileID),
		zap.String("content_hash", accepted.ContentHash),
	)
	writeJSON(w, http.StatusAccepted, UploadResponse{
		SourceFileID: accepted.SourceFileID,
		ContentHash:  accepted.ContentHash,
		Status:       domain.StatusProcessing,
	})
}

// filePart walks form fields up to the "file" part. Fields override query
// parameters; anything after the file part is ignored.
func filePart(mr *multipart.Reader, u *ingest.Upload) (*multipart.Part, error) {
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: multipart body has no file part", domain.ErrInvalidUpload)
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %w", domain.ErrInvalidUpload, err)
		}

		switch part.FormName() {
		case "file":
			if part.FileName() != "" && u.DisplayName == "" {
				u.DisplayName = part.FileName()
			}
			return part, nil
		case "name", "scope", "content_hash":
			v, err := io.ReadAll(io.LimitReader(part, 1024))
			_ = part.Close()
			if err != nil {
				return nil, fmt.Errorf("%w: %w", domain.ErrInvalidUpload, err)
			}
			setUploadField(u, part.FormName(), strings.TrimSpace(string(v)))
		default:
			_ = part.Close()
		}
	}
}

func setUploadField(u *ingest.Upload, field, v string) {
	switch field {
	case "name":
		u.DisplayName = v
	case "scope":
		u.Scope = v
	case "content_hash":
		u.ContentHash = v
	}
}

// ListFiles handles GET /v1/files.
func (s *Server) ListFiles(w http.ResponseWriter, r *http.Request) {
	var (
		scope  *string
		status string
		limit  int
	)
	q := r.URL.Query()
	if err := runtime.BindQueryParameter("form", true, false, "scope", q, &scope); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "invalid scope parameter")
		return
	}
	if err := runtime.BindQueryParameter("form", true, false, "status", q, &status); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "invalid status parameter")
		return
	}
	if err := runtime.BindQueryParameter("form", true, false, "limit", q, &limit); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "invalid limit parameter")
		return
	}
	if limit < 0 {
		writeError(w, http.StatusBadRequest, CodeValidationFailed, "limit must be positive")
		return
	}

	files, err := s.ingest.List(r.Context(), ingest.ListRequest{
		Scope:  scope,
		Status: domain.Status(status),
		Limit:  limit,
	})
	if err != nil {
		handleDomainError(w, r, err)
		return
	}

	items := make([]FileResponse, len(files))
	for i := range files {
		items[i] = fileToResponse(&files[i])
	}
	writeJSON(w, http.StatusOK, FileListResponse{Items: items, Total: len(items)})
}

// GetFile handles GET /v1/files/{id}.
func (s *Server) GetFile(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	f, err := s.ingest.Get(r.Context(), id)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}

	resp := fileToResponse(&f)
	if s.counter != nil && f.Status() == domain.StatusCompleted {
		n, err := s.counter.CountBySourceFile(r.Context(), id)
		if err != nil {
			logger.FromContext(r.Context()).Warn("count indexed passages", zap.Error(err))
		} else {
			resp.IndexedPassages = &n
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// PatchFile handles PATCH /v1/files/{id}.
func (s *Server) PatchFile(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	var req PatchFileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if req.Active == nil {
		writeError(w, http.StatusBadRequest, CodeValidationFailed, "active is required")
		return
	}

	f, err := s.ingest.SetActive(r.Context(), id, *req.Active)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, fileToResponse(&f))
}

// DeleteFile handles DELETE /v1/files/{id}.
func (s *Server) DeleteFile(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := s.ingest.Delete(r.Context(), id); err != nil {
		handleDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetStatus handles GET /v1/status/{hash}.
func (s *Server) GetStatus(w http.ResponseWriter, r *http.Request) {
	hash := chi.URLParam(r, "hash")
	rep, err := s.ingest.Status(r.Context(), hash)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}

	resp := StatusResponse{
		ContentHash:   strings.ToLower(hash),
		Exists:        rep.Exists,
		Status:        rep.Status,
		FailureKind:   rep.FailureKind,
		FailureReason: rep.FailureReason,
		PassageCount:  rep.PassageCount,
	}
	if rep.Exists {
		id := rep.SourceFileID
		resp.SourceFileID = &id
	}
	writeJSON(w, http.StatusOK, resp)
}

// Search handles POST /v1/search.
func (s *Server) Search(w http.ResponseWriter, r *http.Request) {
	var req SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "Invalid request body: "+err.Error())
		return
	}

	limit := s.opts.DefaultLimit
	if req.Limit != nil {
		limit = *req.Limit
	}
	if limit < 1 || limit > s.opts.MaxLimit {
		writeError(w, http.StatusBadRequest, CodeValidationFailed,
			fmt.Sprintf("limit must be between 1 and %d", s.opts.MaxLimit))
		return
	}
	threshold := s.opts.DefaultThreshold
	if req.Threshold != nil {
		threshold = *req.Threshold
	}

	searchReq, err := request.New(req.Query, limit, threshold, req.Scope)
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeValidationFailed, err.Error())
		return
	}

	ctx, usage := domain.WithQueryUsage(r.Context())
	hits, err := s.search.Search(ctx, searchReq)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}

	items := make([]HitResponse, len(hits))
	for i := range hits {
		items[i] = hitToResponse(&hits[i])
	}

	setEmbeddingHeaders(w, usage)
	writeJSON(w, http.StatusOK, SearchResponse{Items: items, Total: len(items)})
}

// HealthCheck handles GET /health.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	checks := make(map[string]string, len(report.Checks))
	for k, v := range report.Checks {
		checks[k] = string(v)
	}

	httpStatus := http.StatusOK
	if report.Status != healthuc.Healthy {
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, HealthResponse{
		Status:     string(report.Status),
		Checks:     checks,
		QueueDepth: report.QueueDepth,
		Version:    version.Version,
	})
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "id must be a positive integer")
		return 0, false
	}
	return id, true
}

func setEmbeddingHeaders(w http.ResponseWriter, usage *domain.QueryUsage) {
	if usage != nil && usage.Embedded {
		w.Header().Set("X-Embedding-Tokens", strconv.Itoa(usage.Tokens))
	}
}
