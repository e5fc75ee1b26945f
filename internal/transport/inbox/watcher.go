// Package inbox submits files dropped into a directory for ingestion.
package inbox

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/kailas-cloud/ragdex/internal/domain"
	"github.com/kailas-cloud/ragdex/internal/usecase/ingest"
)

// OwnerID owns every upload that arrives through the inbox.
const OwnerID = "inbox"

// DefaultSettleDelay is how long a file must stay unmodified before it is submitted.
const DefaultSettleDelay = 500 * time.Millisecond

// Submitter accepts uploads.
type Submitter interface {
	Submit(ctx context.Context, u ingest.Upload) (ingest.Accepted, error)
}

// Outcome of one submission attempt.
type Outcome string

// Outcomes.
const (
	OutcomeAccepted  Outcome = "accepted"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeFailed    Outcome = "failed"
)

// Watcher watches one directory (non-recursive).
type Watcher struct {
	dir    string
	submit Submitter
	settle time.Duration
	logger *zap.Logger

	pending map[string]time.Time
}

// New creates a watcher for dir.
func New(dir string, submit Submitter) *Watcher {
	return &Watcher{
		dir:     dir,
		submit:  submit,
		settle:  DefaultSettleDelay,
		logger:  zap.NewNop(),
		pending: make(map[string]time.Time),
	}
}

// WithSettleDelay overrides DefaultSettleDelay.
func (w *Watcher) WithSettleDelay(d time.Duration) *Watcher {
	if d > 0 {
		w.settle = d
	}
	return w
}

// WithLogger sets the logger.
func (w *Watcher) WithLogger(l *zap.Logger) *Watcher {
	w.logger = l
	return w
}

// Run submits the files already in the directory, then every file created or
// rewritten there, until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer func() { _ = fw.Close() }()

	if err := fw.Add(w.dir); err != nil {
		return fmt.Errorf("watch %s: %w", w.dir, err)
	}
	w.logger.Info("inbox watching", zap.String("dir", w.dir))

	if err := w.scan(ctx); err != nil {
		return err
	}

	tick := time.NewTicker(max(w.settle/2, time.Millisecond))
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			w.handleEvent(ev, time.Now())
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("inbox watcher error", zap.Error(err))
		case now := <-tick.C:
			for _, path := range w.settled(now) {
				w.submitFile(ctx, path)
			}
		}
	}
}

// scan submits files present before the watch started.
func (w *Watcher) scan(ctx context.Context) error {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return fmt.Errorf("read inbox: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() || isHidden(e.Name()) {
			continue
		}
		w.submitFile(ctx, filepath.Join(w.dir, e.Name()))
	}
	return nil
}

// handleEvent tracks files that were created or written. It reports whether
// the event made a file pending.
func (w *Watcher) handleEvent(ev fsnotify.Event, now time.Time) bool {
	if isHidden(filepath.Base(ev.Name)) {
		return false
	}
	if ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename) {
		delete(w.pending, ev.Name)
		return false
	}
	if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) {
		return false
	}
	info, err := os.Stat(ev.Name)
	if err != nil || !info.Mode().IsRegular() {
		return false
	}
	w.pending[ev.Name] = now
	return true
}

// settled pops the pending files untouched for the settle delay.
func (w *Watcher) settled(now time.Time) []string {
	var ready []string
	for path, last := range w.pending {
		if now.Sub(last) >= w.settle {
			ready = append(ready, path)
			delete(w.pending, path)
		}
	}
	return ready
}

func (w *Watcher) submitFile(ctx context.Context, path string) Outcome {
	log := w.logger.With(zap.String("path", path))

	f, err := os.Open(path)
	if err != nil {
		log.Warn("inbox open failed", zap.Error(err))
		return OutcomeFailed
	}
	defer func() { _ = f.Close() }()

	acc, err := w.submit.Submit(ctx, ingest.Upload{
		DisplayName: filepath.Base(path),
		OwnerID:     OwnerID,
		Body:        f,
	})
	var dup *domain.DuplicateContentError
	switch {
	case errors.As(err, &dup):
		log.Info("inbox file already ingested, skipping",
			zap.String("content_hash", dup.ContentHash),
			zap.Int64("source_file_id", dup.SourceFileID),
		)
		return OutcomeDuplicate
	case err != nil:
		log.Warn("inbox submit failed", zap.Error(err))
		return OutcomeFailed
	}

	log.Info("inbox file submitted",
		zap.Int64("source_file_id", acc.SourceFileID),
		zap.String("content_hash", acc.ContentHash),
	)
	return OutcomeAccepted
}

// isHidden reports dotfiles, which editors and sync tools use as temporaries.
func isHidden(name string) bool {
	return strings.HasPrefix(name, ".") && name != "." && name != ".."
}
