// Package ingest coordinates document ingestion: dedup by content hash,
// synchronous acceptance, and asynchronous extract/chunk/embed/persist on a
// bounded worker pool.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kailas-cloud/ragdex/internal/domain"
	domsf "github.com/kailas-cloud/ragdex/internal/domain/sourcefile"
	"github.com/kailas-cloud/ragdex/internal/metrics"
)

// ErrStopped is returned by Submit after Stop.
var ErrStopped = errors.New("ingestion stopped")

// Defaults for the worker pool.
const (
	DefaultWorkers    = 2
	DefaultQueueSize  = 64
	DefaultJobTimeout = 10 * time.Minute
)

// Service is the ingestion coordinator.
type Service struct {
	files     SourceFileRepository
	store     VectorStore
	extractor Extractor
	chunker   Chunker
	embedder  Embedder
	spool     Spool
	scopes    ScopeResolver
	dim       int

	workers        int
	jobTimeout     time.Duration
	maxUploadBytes int64
	logger         *zap.Logger
	now            func() time.Time

	mu       sync.RWMutex
	queue    chan job
	stopping chan struct{}
	stopOnce sync.Once
	stopped  bool
	group    *errgroup.Group
}

// New creates an ingestion service for embeddings of dimension dim.
func New(
	files SourceFileRepository, store VectorStore,
	extractor Extractor, chunker Chunker, embedder Embedder,
	sp Spool, dim int,
) *Service {
	return &Service{
		files:      files,
		store:      store,
		extractor:  extractor,
		chunker:    chunker,
		embedder:   embedder,
		spool:      sp,
		dim:        dim,
		workers:    DefaultWorkers,
		jobTimeout: DefaultJobTimeout,
		logger:     zap.NewNop(),
		now:        time.Now,
		queue:      make(chan job, DefaultQueueSize),
		stopping:   make(chan struct{}),
	}
}

// WithWorkers sets the pool size and queue capacity. Call before Start.
func (s *Service) WithWorkers(workers, queueSize int) *Service {
	if workers > 0 {
		s.workers = workers
	}
	if queueSize > 0 {
		s.queue = make(chan job, queueSize)
	}
	return s
}

// WithJobTimeout bounds the background processing of one file.
func (s *Service) WithJobTimeout(d time.Duration) *Service {
	if d > 0 {
		s.jobTimeout = d
	}
	return s
}

// WithMaxUploadBytes rejects larger bodies. Zero means unlimited.
func (s *Service) WithMaxUploadBytes(n int64) *Service {
	s.maxUploadBytes = n
	return s
}

// WithScopes sets the scope resolver. Without one, scope names are used as ids.
func (s *Service) WithScopes(r ScopeResolver) *Service {
	s.scopes = r
	return s
}

// WithLogger sets the logger.
func (s *Service) WithLogger(l *zap.Logger) *Service {
	s.logger = l
	return s
}

// WithClock replaces time.Now.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Submit spools the body, rejects known content and accepts the rest for
// background processing. After acceptance no processing error reaches the
// caller; it is recorded on the source file instead.
func (s *Service) Submit(ctx context.Context, u Upload) (Accepted, error) {
	if strings.TrimSpace(u.DisplayName) == "" {
		return Accepted{}, fmt.Errorf("%w: display name is required", domain.ErrInvalidRequest)
	}
	if u.Body == nil {
		return Accepted{}, fmt.Errorf("%w: body is required", domain.ErrInvalidUpload)
	}
	scopeID, err := s.resolveScope(ctx, u.Scope)
	if err != nil {
		return Accepted{}, err
	}

	file, err := s.spool.Write(u.Body, s.maxUploadBytes)
	if err != nil {
		return Accepted{}, err
	}
	release := func() {
		if err := file.Release(); err != nil {
			s.logger.Warn("release spool file", zap.String("path", file.Path()), zap.Error(err))
		}
	}

	hash := file.Hash()
	if u.ContentHash != "" && !strings.EqualFold(u.ContentHash, hash) {
		release()
		return Accepted{}, fmt.Errorf("%w: content hash mismatch (declared %s, computed %s)",
			domain.ErrInvalidUpload, u.ContentHash, hash)
	}

	existing, err := s.files.GetByHash(ctx, hash)
	switch {
	case err == nil:
		release()
		metrics.IngestFilesTotal.WithLabelValues("duplicate", "").Inc()
		return Accepted{}, domain.NewDuplicateContent(hash, existing.ID(), existing.Status())
	case !errors.Is(err, domain.ErrNotFound):
		release()
		return Accepted{}, fmt.Errorf("lookup hash: %w", err)
	}

	sf, err := domsf.New(u.DisplayName, hash, u.OwnerID, scopeID, s.now())
	if err != nil {
		release()
		return Accepted{}, fmt.Errorf("%w: %w", domain.ErrInvalidRequest, err)
	}
	sf, err = s.files.Create(ctx, sf)
	if err != nil {
		release()
		if errors.Is(err, domain.ErrDuplicateContent) {
			metrics.IngestFilesTotal.WithLabelValues("duplicate", "").Inc()
		}
		return Accepted{}, fmt.Errorf("create source file: %w", err)
	}

	if err := s.enqueue(ctx, newJob(sf, file)); err != nil {
		release()
		s.abandon(ctx, sf, err)
		return Accepted{}, err
	}

	metrics.IngestFilesTotal.WithLabelValues("accepted", "").Inc()
	s.logger.Info("upload accepted",
		zap.Int64("source_file_id", sf.ID()),
		zap.String("display_name", sf.DisplayName()),
		zap.String("content_hash", hash),
		zap.Int64("bytes", file.Size()),
	)
	return Accepted{SourceFileID: sf.ID(), ContentHash: hash}, nil
}

func (s *Service) resolveScope(ctx context.Context, name string) (string, error) {
	name = strings.TrimSpace(name)
	if s.scopes == nil || name == "" {
		return name, nil
	}
	id, err := s.scopes.Resolve(ctx, name)
	if err != nil {
		return "", fmt.Errorf("resolve scope: %w", err)
	}
	return id, nil
}

// enqueue hands j to the workers, waiting while the queue is full until ctx ends.
func (s *Service) enqueue(ctx context.Context, j job) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.stopped {
		return ErrStopped
	}

	select {
	case s.queue <- j:
		metrics.IngestQueueDepth.Inc()
		return nil
	case <-s.stopping:
		return ErrStopped
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", domain.ErrQueueFull, ctx.Err())
	}
}

// abandon marks an accepted record Failed when its job could not be queued.
func (s *Service) abandon(ctx context.Context, sf domsf.SourceFile, cause error) {
	failed, err := sf.Fail(domain.FailureInterrupted, cause.Error(), s.now())
	if err != nil {
		return
	}
	uctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), statusWriteTimeout)
	defer cancel()
	if err := s.files.Update(uctx, failed); err != nil {
		s.logger.Error("mark unqueued source file failed",
			zap.Int64("source_file_id", sf.ID()), zap.Error(err))
	}
	metrics.IngestFilesTotal.WithLabelValues(string(domain.StatusFailed), string(domain.FailureInterrupted)).Inc()
}

// Status reports the lifecycle state of the file owning contentHash.
func (s *Service) Status(ctx context.Context, contentHash string) (StatusReport, error) {
	contentHash = strings.ToLower(strings.TrimSpace(contentHash))
	if !domsf.ValidContentHash(contentHash) {
		return StatusReport{}, fmt.Errorf("%w: content hash must be 64 hex characters", domain.ErrInvalidRequest)
	}

	f, err := s.files.GetByHash(ctx, contentHash)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return StatusReport{Status: domain.LookupNotFound}, nil
		}
		return StatusReport{}, fmt.Errorf("lookup hash: %w", err)
	}
	return StatusReport{
		Exists:        true,
		Status:        domain.LookupOf(f.Status()),
		SourceFileID:  f.ID(),
		FailureKind:   f.FailureKind(),
		FailureReason: f.FailureReason(),
		PassageCount:  f.PassageCount(),
	}, nil
}

// Get returns one source file.
func (s *Service) Get(ctx context.Context, id int64) (domsf.SourceFile, error) {
	f, err := s.files.Get(ctx, id)
	if err != nil {
		return domsf.SourceFile{}, fmt.Errorf("get source file: %w", err)
	}
	return f, nil
}

// List returns source files, newest first.
func (s *Service) List(ctx context.Context, req ListRequest) ([]domsf.SourceFile, error) {
	lf := domsf.ListFilter{Status: req.Status, Limit: req.Limit}
	if req.Status != "" {
		if _, err := domain.ParseStatus(string(req.Status)); err != nil {
			return nil, fmt.Errorf("%w: %w", domain.ErrInvalidRequest, err)
		}
	}
	if req.Scope != nil {
		id, err := s.resolveScope(ctx, *req.Scope)
		if err != nil {
			return nil, err
		}
		lf.ScopeID = &id
	}

	files, err := s.files.List(ctx, lf)
	if err != nil {
		return nil, fmt.Errorf("list source files: %w", err)
	}
	return files, nil
}

// SetActive shows or hides a finished file's passages in default search.
// While a file is processing the worker owns its record.
func (s *Service) SetActive(ctx context.Context, id int64, active bool) (domsf.SourceFile, error) {
	f, err := s.files.Get(ctx, id)
	if err != nil {
		return domsf.SourceFile{}, fmt.Errorf("get source file: %w", err)
	}
	if !f.Status().IsTerminal() {
		return domsf.SourceFile{}, fmt.Errorf("%w: source file %d is still processing", domain.ErrInvalidTransition, id)
	}
	if f.Active() == active {
		return f, nil
	}

	if err := s.store.SetSourceFileActive(ctx, id, active); err != nil {
		return domsf.SourceFile{}, fmt.Errorf("update passages: %w", err)
	}
	updated := f.SetActive(active, s.now())
	if err := s.files.Update(ctx, updated); err != nil {
		if rerr := s.store.SetSourceFileActive(ctx, id, f.Active()); rerr != nil {
			err = errors.Join(err, rerr)
		}
		return domsf.SourceFile{}, fmt.Errorf("update source file: %w", err)
	}

	s.logger.Info("source file visibility changed",
		zap.Int64("source_file_id", id), zap.Bool("active", active))
	return updated, nil
}

// Delete removes a finished source file and its passages. The content hash
// becomes uploadable again.
func (s *Service) Delete(ctx context.Context, id int64) error {
	f, err := s.files.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("get source file: %w", err)
	}
	if !f.Status().IsTerminal() {
		return fmt.Errorf("%w: source file %d is still processing", domain.ErrInvalidTransition, id)
	}

	n, err := s.store.DeleteBySourceFile(ctx, id)
	if err != nil {
		return fmt.Errorf("delete passages: %w", err)
	}
	if err := s.files.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete source file: %w", err)
	}

	s.logger.Info("source file deleted", zap.Int64("source_file_id", id), zap.Int("passages", n))
	return nil
}

// Recover fails every record a previous process left in Processing. Its
// spool file is gone, so the job cannot be resumed. Leftover spool files
// are removed too. Call before Start.
func (s *Service) Recover(ctx context.Context) (int, error) {
	if n, err := s.spool.Sweep(); err != nil {
		s.logger.Warn("sweep spool dir", zap.Error(err))
	} else if n > 0 {
		s.logger.Info("removed stale spool files", zap.Int("count", n))
	}

	orphans, err := s.files.List(ctx, domsf.ListFilter{Status: domain.StatusProcessing, Limit: math.MaxInt32})
	if err != nil {
		return 0, fmt.Errorf("list processing files: %w", err)
	}

	recovered := 0
	var errs []error
	for _, f := range orphans {
		if _, err := s.store.DeleteBySourceFile(ctx, f.ID()); err != nil {
			errs = append(errs, fmt.Errorf("source file %d: %w", f.ID(), err))
			continue
		}
		failed, err := f.Fail(domain.FailureInterrupted, "processing interrupted by restart", s.now())
		if err != nil {
			errs = append(errs, fmt.Errorf("source file %d: %w", f.ID(), err))
			continue
		}
		if err := s.files.Update(ctx, failed); err != nil {
			errs = append(errs, fmt.Errorf("source file %d: %w", f.ID(), err))
			continue
		}
		metrics.IngestFilesTotal.WithLabelValues(string(domain.StatusFailed), string(domain.FailureInterrupted)).Inc()
		recovered++
	}

	if recovered > 0 {
		s.logger.Warn("recovered interrupted source files", zap.Int("count", recovered))
	}
	return recovered, errors.Join(errs...)
}

// QueueDepth returns the number of accepted files waiting for a worker.
func (s *Service) QueueDepth() int {
	return len(s.queue)
}

// QueueCapacity returns the queue size.
func (s *Service) QueueCapacity() int {
	return cap(s.queue)
}
