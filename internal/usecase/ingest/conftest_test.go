package ingest

import (
	"cmp"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"os"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/kailas-cloud/ragdex/internal/domain"
	"github.com/kailas-cloud/ragdex/internal/domain/passage"
	domsf "github.com/kailas-cloud/ragdex/internal/domain/sourcefile"
	"github.com/kailas-cloud/ragdex/internal/metrics"
	"github.com/kailas-cloud/ragdex/internal/spool"
)

func TestMain(m *testing.M) {
	metrics.RegisterPipelineMetrics()
	os.Exit(m.Run())
}

// --- Mocks ---

// memFiles is an in-memory SourceFileRepository with a unique hash index.
type memFiles struct {
	mu     sync.Mutex
	nextID int64
	byID   map[int64]domsf.SourceFile
	byHash map[string]int64

	// updateFn, when set, can veto an update.
	updateFn func(f domsf.SourceFile) error
}

func newMemFiles() *memFiles {
	return &memFiles{byID: make(map[int64]domsf.SourceFile), byHash: make(map[string]int64)}
}

func (m *memFiles) Create(_ context.Context, f domsf.SourceFile) (domsf.SourceFile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if id, ok := m.byHash[f.ContentHash()]; ok {
		owner := m.byID[id]
		return domsf.SourceFile{}, domain.NewDuplicateContent(f.ContentHash(), id, owner.Status())
	}
	m.nextID++
	f = f.WithID(m.nextID)
	m.byID[f.ID()] = f
	m.byHash[f.ContentHash()] = f.ID()
	return f, nil
}

func (m *memFiles) Get(_ context.Context, id int64) (domsf.SourceFile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.byID[id]
	if !ok {
		return domsf.SourceFile{}, domain.ErrNotFound
	}
	return f, nil
}

func (m *memFiles) GetByHash(ctx context.Context, hash string) (domsf.SourceFile, error) {
	m.mu.Lock()
	id, ok := m.byHash[hash]
	m.mu.Unlock()
	if !ok {
		return domsf.SourceFile{}, domain.ErrNotFound
	}
	return m.Get(ctx, id)
}

func (m *memFiles) Update(_ context.Context, f domsf.SourceFile) error {
	if m.updateFn != nil {
		if err := m.updateFn(f); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byID[f.ID()]; !ok {
		return domain.ErrNotFound
	}
	m.byID[f.ID()] = f
	return nil
}

func (m *memFiles) List(_ context.Context, lf domsf.ListFilter) ([]domsf.SourceFile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domsf.SourceFile
	for _, f := range m.byID {
		if lf.Matches(&f) {
			out = append(out, f)
		}
	}
	slices.SortFunc(out, func(a, b domsf.SourceFile) int { return cmp.Compare(b.ID(), a.ID()) })
	if limit := lf.EffectiveLimit(); len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memFiles) Delete(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.byID[id]
	if !ok {
		return domain.ErrNotFound
	}
	delete(m.byID, id)
	delete(m.byHash, f.ContentHash())
	return nil
}

// memStore is an in-memory VectorStore.
type memStore struct {
	mu        sync.Mutex
	passages  map[int64][]passage.Draft
	active    map[int64]bool
	insertErr error
	deletes   int
}

func newMemStore() *memStore {
	return &memStore{passages: make(map[int64][]passage.Draft), active: make(map[int64]bool)}
}

func (m *memStore) Insert(_ context.Context, id int64, drafts []passage.Draft) ([]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.insertErr != nil {
		return nil, m.insertErr
	}
	m.passages[id] = append(m.passages[id], drafts...)
	ids := make([]int64, len(drafts))
	for i := range ids {
		ids[i] = int64(i + 1)
	}
	return ids, nil
}

func (m *memStore) DeleteBySourceFile(_ context.Context, id int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := len(m.passages[id])
	delete(m.passages, id)
	m.deletes++
	return n, nil
}

func (m *memStore) SetSourceFileActive(_ context.Context, id int64, active bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.active[id] = active
	return nil
}

func (m *memStore) count(id int64) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.passages[id])
}

// textExtractor returns the body as text, or err.
type textExtractor struct {
	err error
}

func (e textExtractor) Extract(_ context.Context, _ string, r io.Reader) (string, error) {
	if e.err != nil {
		return "", e.err
	}
	b, err := io.ReadAll(r)
	return string(b), err
}

// gatedExtractor holds every job inside Extract until open is called.
type gatedExtractor struct {
	entered  chan struct{}
	release  chan struct{}
	once     sync.Once
	openOnce sync.Once
}

func newGatedExtractor() *gatedExtractor {
	return &gatedExtractor{entered: make(chan struct{}), release: make(chan struct{})}
}

func (g *gatedExtractor) Extract(ctx context.Context, name string, r io.Reader) (string, error) {
	g.once.Do(func() { close(g.entered) })
	<-g.release
	return textExtractor{}.Extract(ctx, name, r)
}

func (g *gatedExtractor) open() { g.openOnce.Do(func() { close(g.release) }) }

func (g *gatedExtractor) waitEntered(t *testing.T) {
	t.Helper()
	select {
	case <-g.entered:
	case <-time.After(5 * time.Second):
		t.Fatal("job never reached the extractor")
	}
}

// lineChunker splits on newlines, dropping blanks.
type lineChunker struct{}

func (lineChunker) Chunk(_ context.Context, content string) []string {
	var out []string
	for _, line := range splitLines(content) {
		if line != "" {
			out = append(out, line)
		}
	}
	return out
}

func splitLines(s string) []string {
	var out []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			out = append(out, s[start:i])
			start = i + 1
		}
	}
	return append(out, s[start:])
}

// fakeEmbedder returns one unit vector per text unless told otherwise.
type fakeEmbedder struct {
	err    error
	drop   bool // return one vector fewer than asked
	vector []float32
}

func (e *fakeEmbedder) BatchEmbed(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	if err := ctx.Err(); err != nil {
		return domain.BatchEmbeddingResult{}, err
	}
	if e.err != nil {
		return domain.BatchEmbeddingResult{}, e.err
	}
	v := e.vector
	if v == nil {
		v = []float32{1, 0, 0}
	}
	out := make([][]float32, len(texts))
	for i := range out {
		out[i] = v
	}
	if e.drop {
		out = out[:len(out)-1]
	}
	return domain.BatchEmbeddingResult{Embeddings: out}, nil
}

type staticScopes map[string]string

func (s staticScopes) Resolve(_ context.Context, name string) (string, error) {
	id, ok := s[name]
	if !ok {
		return "", domain.ErrUnknownScope
	}
	return id, nil
}

// --- Helpers ---

const testDim = 3

type fixture struct {
	svc      *Service
	files    *memFiles
	store    *memStore
	embedder *fakeEmbedder
	spoolDir string
}

func newFixture(t *testing.T, ex Extractor) *fixture {
	t.Helper()
	dir := t.TempDir()
	sp, err := spool.New(dir)
	if err != nil {
		t.Fatalf("spool.New: %v", err)
	}
	if ex == nil {
		ex = textExtractor{}
	}
	fx := &fixture{files: newMemFiles(), store: newMemStore(), embedder: &fakeEmbedder{}, spoolDir: dir}
	fx.svc = New(fx.files, fx.store, ex, lineChunker{}, fx.embedder, sp, testDim).
		WithWorkers(2, 8).
		WithJobTimeout(5 * time.Second)
	return fx
}

func (fx *fixture) start(t *testing.T) {
	t.Helper()
	fx.svc.Start(context.Background())
	t.Cleanup(fx.svc.Stop)
}

func hashOf(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// waitTerminal polls until the file owning hash leaves Processing.
func waitTerminal(t *testing.T, svc *Service, hash string) StatusReport {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		rep, err := svc.Status(context.Background(), hash)
		if err != nil {
			t.Fatalf("Status: %v", err)
		}
		if rep.Status == domain.LookupCompleted || rep.Status == domain.LookupFailed {
			return rep
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("file %s did not reach a terminal status", hash)
	return StatusReport{}
}

func spoolEntries(t *testing.T, dir string) int {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	return len(entries)
}

var errBoom = errors.New("boom")
