package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kailas-cloud/ragdex/internal/domain"
	"github.com/kailas-cloud/ragdex/internal/domain/passage"
	domsf "github.com/kailas-cloud/ragdex/internal/domain/sourcefile"
	"github.com/kailas-cloud/ragdex/internal/domain/vector"
	"github.com/kailas-cloud/ragdex/internal/logger"
	"github.com/kailas-cloud/ragdex/internal/metrics"
	"github.com/kailas-cloud/ragdex/internal/spool"
)

// statusWriteTimeout bounds terminal status writes, which run detached
// from the job context so that a timed-out job still gets recorded.
const statusWriteTimeout = 30 * time.Second

type job struct {
	id       string
	file     domsf.SourceFile
	spooled  *spool.File
	accepted time.Time
}

func newJob(f domsf.SourceFile, sp *spool.File) job {
	return job{id: uuid.NewString(), file: f, spooled: sp, accepted: time.Now()}
}

// Start launches the worker pool. Workers keep ctx values but not its
// cancellation: they exit only after Stop has drained the queue.
func (s *Service) Start(ctx context.Context) {
	g, gctx := errgroup.WithContext(context.WithoutCancel(ctx))
	for range s.workers {
		g.Go(func() error {
			s.work(gctx)
			return nil
		})
	}

	s.mu.Lock()
	s.group = g
	s.mu.Unlock()

	s.logger.Info("ingestion workers started",
		zap.Int("workers", s.workers), zap.Int("queue_size", cap(s.queue)))
}

// Stop refuses new uploads, lets the workers finish every queued job and
// waits for them.
func (s *Service) Stop() {
	s.stopOnce.Do(func() { close(s.stopping) })

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	close(s.queue)
	g := s.group
	s.mu.Unlock()

	if g != nil {
		_ = g.Wait()
	}
	s.logger.Info("ingestion workers stopped")
}

func (s *Service) work(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case j, ok := <-s.queue:
			if !ok {
				return
			}
			metrics.IngestQueueDepth.Dec()
			s.process(ctx, j)
		}
	}
}

// process runs one job to a terminal status. The spool file is released on
// every path.
func (s *Service) process(ctx context.Context, j job) {
	start := time.Now()
	log := s.logger.With(
		zap.String("job_id", j.id),
		zap.Int64("source_file_id", j.file.ID()),
		zap.String("display_name", j.file.DisplayName()),
	)
	ctx = logger.ContextWithLogger(ctx, log)
	log.Debug("ingestion started", zap.Duration("queued", start.Sub(j.accepted)))

	jctx, cancel := context.WithTimeout(ctx, s.jobTimeout)
	defer cancel()

	var (
		count int
		err   error
	)
	func() {
		defer s.releaseSpool(log, j)
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("ingestion panic: %v", r)
			}
		}()
		count, err = s.run(jctx, log, j)
	}()

	s.finish(ctx, log, j.file, count, err, start)
}

func (s *Service) releaseSpool(log *zap.Logger, j job) {
	if err := j.spooled.Release(); err != nil {
		log.Warn("release spool file", zap.Error(err))
	}
}

func (s *Service) run(ctx context.Context, log *zap.Logger, j job) (int, error) {
	text, err := s.extract(ctx, j)
	s.releaseSpool(log, j)
	if err != nil {
		return 0, err
	}
	if strings.TrimSpace(text) == "" {
		return 0, fmt.Errorf("%w: extracted text is empty", domain.ErrEmptyContent)
	}

	chunks := s.chunker.Chunk(ctx, text)
	if len(chunks) == 0 {
		return 0, fmt.Errorf("%w: chunker produced no passages", domain.ErrEmptyContent)
	}

	drafts, err := s.embed(ctx, chunks)
	if err != nil {
		return 0, err
	}

	ids, err := s.store.Insert(ctx, j.file.ID(), drafts)
	if err != nil {
		s.cleanup(ctx, log, j.file.ID())
		if !errors.Is(err, domain.ErrPersistence) {
			err = fmt.Errorf("%w: %w", domain.ErrPersistence, err)
		}
		return 0, fmt.Errorf("insert passages: %w", err)
	}
	return len(ids), nil
}

func (s *Service) extract(ctx context.Context, j job) (string, error) {
	rc, err := j.spooled.Open()
	if err != nil {
		return "", fmt.Errorf("%w: open spool file: %w", domain.ErrExtraction, err)
	}
	defer rc.Close()

	text, err := s.extractor.Extract(ctx, j.file.DisplayName(), rc)
	if err != nil {
		return "", fmt.Errorf("extract: %w", err)
	}
	return text, nil
}

func (s *Service) embed(ctx context.Context, chunks []string) ([]passage.Draft, error) {
	res, err := s.embedder.BatchEmbed(ctx, chunks)
	if err != nil {
		if !errors.Is(err, domain.ErrEmbeddingGateway) && !errors.Is(err, domain.ErrRateLimited) {
			err = fmt.Errorf("%w: %w", domain.ErrEmbeddingGateway, err)
		}
		return nil, fmt.Errorf("embed passages: %w", err)
	}
	if len(res.Embeddings) != len(chunks) {
		return nil, fmt.Errorf("%w: got %d embeddings for %d passages",
			domain.ErrEmbeddingGateway, len(res.Embeddings), len(chunks))
	}

	drafts := make([]passage.Draft, len(chunks))
	for i, text := range chunks {
		if err := vector.Validate(res.Embeddings[i], s.dim); err != nil {
			return nil, fmt.Errorf("%w: passage %d: %w", domain.ErrEmbeddingGateway, i, err)
		}
		drafts[i] = passage.Draft{Content: text, Embedding: res.Embeddings[i]}
	}
	return drafts, nil
}

// cleanup removes any passages a failed attempt may have left behind.
func (s *Service) cleanup(ctx context.Context, log *zap.Logger, id int64) {
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), statusWriteTimeout)
	defer cancel()
	if _, err := s.store.DeleteBySourceFile(cctx, id); err != nil {
		log.Error("delete passages of failed source file", zap.Error(err))
	}
}

// finish records the terminal status. Completed is written only after every
// passage is stored; if that write fails the passages are removed and the
// file is failed instead.
func (s *Service) finish(ctx context.Context, log *zap.Logger, f domsf.SourceFile, count int, runErr error, start time.Time) {
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), statusWriteTimeout)
	defer cancel()

	if runErr == nil {
		completed, err := f.Complete(count, s.now())
		if err == nil {
			err = s.files.Update(wctx, completed)
		}
		if err == nil {
			s.observe(log, completed, start, nil)
			return
		}
		s.cleanup(wctx, log, f.ID())
		runErr = fmt.Errorf("%w: mark completed: %w", domain.ErrPersistence, err)
	}

	kind := domain.FailureKindOf(runErr)
	failed, err := f.Fail(kind, runErr.Error(), s.now())
	if err != nil {
		log.Error("fail source file", zap.Error(err))
		return
	}
	if err := s.files.Update(wctx, failed); err != nil {
		log.Error("persist failed status", zap.Error(err), zap.NamedError("cause", runErr))
		return
	}
	s.observe(log, failed, start, runErr)
}

func (s *Service) observe(log *zap.Logger, f domsf.SourceFile, start time.Time, cause error) {
	elapsed := time.Since(start)
	metrics.IngestFilesTotal.WithLabelValues(string(f.Status()), string(f.FailureKind())).Inc()
	metrics.IngestDuration.WithLabelValues(string(f.Status())).Observe(elapsed.Seconds())

	if cause != nil {
		log.Warn("ingestion failed",
			zap.String("failure_kind", string(f.FailureKind())),
			zap.Duration("duration", elapsed),
			zap.Error(cause),
		)
		return
	}
	metrics.IngestPassagesPerFile.Observe(float64(f.PassageCount()))
	log.Info("ingestion completed",
		zap.Int("passages", f.PassageCount()),
		zap.Duration("duration", elapsed),
	)
}
