package ragdex

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/ragdex/internal/config"
	"github.com/kailas-cloud/ragdex/internal/domain/search/request"
	"github.com/kailas-cloud/ragdex/internal/extract"
	"github.com/kailas-cloud/ragdex/internal/metrics"
	"github.com/kailas-cloud/ragdex/internal/spool"
	chitransport "github.com/kailas-cloud/ragdex/internal/transport/chi"
	"github.com/kailas-cloud/ragdex/internal/transport/inbox"
	mcptransport "github.com/kailas-cloud/ragdex/internal/transport/mcp"
	"github.com/kailas-cloud/ragdex/internal/usecase/chunking"
	healthuc "github.com/kailas-cloud/ragdex/internal/usecase/health"
	ingestuc "github.com/kailas-cloud/ragdex/internal/usecase/ingest"
	"github.com/kailas-cloud/ragdex/internal/usecase/scope"
	searchuc "github.com/kailas-cloud/ragdex/internal/usecase/search"
)

const defaultPollInterval = 200 * time.Millisecond

// Client is the ragdex entry point.
type Client struct {
	cfg    config.Config
	logger *zap.Logger
	poll   time.Duration

	backend   *backend
	embedders *embedders
	ingestSvc *ingestuc.Service
	searchSvc *searchuc.Service
	healthSvc *healthuc.Service

	mu      sync.Mutex
	started bool
	closed  bool
}

// Open loads the YAML config at path and creates a Client.
func Open(ctx context.Context, path string, opts ...Option) (*Client, error) {
	cfg, err := config.LoadFile(path)
	if err != nil {
		return nil, fmt.Errorf("ragdex: %w", err)
	}
	return New(ctx, cfg, opts...)
}

// New connects to storage and wires every service. Call Start before
// ingesting and Close when done.
func New(ctx context.Context, cfg config.Config, opts ...Option) (*Client, error) {
	co := &clientConfig{logger: zap.NewNop(), pollInterval: defaultPollInterval}
	for _, o := range opts {
		o.apply(co)
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("ragdex: invalid config: %w", err)
	}

	metrics.RegisterEmbeddingMetrics()
	metrics.RegisterPipelineMetrics()

	be, err := openBackend(ctx, cfg, co.logger)
	if err != nil {
		return nil, fmt.Errorf("ragdex: %w", err)
	}
	emb, err := buildEmbedders(cfg, co, be, co.logger)
	if err != nil {
		be.close()
		return nil, fmt.Errorf("ragdex: %w", err)
	}
	sp, err := spool.New(cfg.Ingest.SpoolDir)
	if err != nil {
		emb.close()
		be.close()
		return nil, fmt.Errorf("ragdex: spool: %w", err)
	}

	scopes := scope.NewStatic(cfg.Scopes)
	dim := cfg.Embedding.Dimensions
	chunker := chunking.New(emb.ingestion, chunkerConfig(cfg.Chunking)).WithLogger(co.logger)

	ingestSvc := ingestuc.New(
		be.files, be.passages, extract.Default(cfg.Ingest.PDFToTextPath),
		chunker, emb.ingestion, sp, dim,
	).
		WithWorkers(cfg.Ingest.Workers, cfg.Ingest.QueueSize).
		WithJobTimeout(cfg.Ingest.JobTimeout()).
		WithMaxUploadBytes(int64(cfg.Ingest.MaxUploadMB) << 20).
		WithScopes(scopes).
		WithLogger(co.logger)

	searchSvc := searchuc.New(be.passages, emb.query, dim).
		WithScopes(scopes).
		WithLogger(co.logger)

	healthSvc := healthuc.New(be.pinger).WithQueue(ingestSvc)
	if emb.checker != nil {
		healthSvc = healthSvc.WithEmbedding(emb.checker)
	}

	return &Client{
		cfg:       cfg,
		logger:    co.logger,
		poll:      co.pollInterval,
		backend:   be,
		embedders: emb,
		ingestSvc: ingestSvc,
		searchSvc: searchSvc,
		healthSvc: healthSvc,
	}, nil
}

// Start fails files interrupted by a previous run, clears stale spool
// files and starts the ingestion workers. Cancelling ctx does not stop the
// workers; Close drains the queue and stops them.
func (c *Client) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrStopped
	}
	if c.started {
		return nil
	}

	if _, err := c.ingestSvc.Recover(ctx); err != nil {
		return fmt.Errorf("ragdex: recover: %w", err)
	}
	c.ingestSvc.Start(ctx)
	c.started = true
	return nil
}

// Close drains the workers and releases storage connections.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	if c.started {
		c.ingestSvc.Stop()
	}
	c.embedders.close()
	c.backend.close()
}

// Ping checks database connectivity.
func (c *Client) Ping(ctx context.Context) error {
	if err := c.backend.pinger.Ping(ctx); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	return nil
}

// Config returns the effective configuration.
func (c *Client) Config() config.Config { return c.cfg }

// --- Ingestion ---

// Ingest accepts a document for background processing. Known content is
// rejected with an error matching ErrDuplicateContent; see DuplicateOf.
func (c *Client) Ingest(ctx context.Context, u Upload) (Accepted, error) {
	acc, err := c.ingestSvc.Submit(ctx, ingestuc.Upload{
		DisplayName: u.Name,
		OwnerID:     u.Owner,
		Scope:       u.Scope,
		ContentHash: u.ContentHash,
		Body:        u.Body,
	})
	if err != nil {
		return Accepted{}, err //nolint:wrapcheck // callers match domain sentinels
	}
	return Accepted{SourceFileID: acc.SourceFileID, ContentHash: acc.ContentHash}, nil
}

// IngestFile ingests a local file under its base name.
func (c *Client) IngestFile(ctx context.Context, path, scopeName string) (Accepted, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return Accepted{}, fmt.Errorf("open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	return c.Ingest(ctx, Upload{Name: filepath.Base(path), Scope: scopeName, Body: f})
}

// Status reports the ingestion state of the content with the given sha256.
func (c *Client) Status(ctx context.Context, contentHash string) (FileStatus, error) {
	r, err := c.ingestSvc.Status(ctx, contentHash)
	if err != nil {
		return FileStatus{}, err //nolint:wrapcheck // callers match domain sentinels
	}
	return fromInternalStatus(r), nil
}

// Wait polls Status until processing of contentHash is terminal or ctx ends.
func (c *Client) Wait(ctx context.Context, contentHash string) (FileStatus, error) {
	t := time.NewTicker(c.poll)
	defer t.Stop()
	for {
		st, err := c.Status(ctx, contentHash)
		if err != nil {
			return FileStatus{}, err
		}
		if !st.Exists || st.Terminal() {
			return st, nil
		}
		select {
		case <-ctx.Done():
			return st, fmt.Errorf("wait for %s: %w", contentHash, ctx.Err())
		case <-t.C:
		}
	}
}

// File returns one source file record.
func (c *Client) File(ctx context.Context, id int64) (File, error) {
	f, err := c.ingestSvc.Get(ctx, id)
	if err != nil {
		return File{}, err //nolint:wrapcheck // callers match domain sentinels
	}
	return fromInternalFile(f), nil
}

// Files lists source file records, newest first.
func (c *Client) Files(ctx context.Context, o ListOptions) ([]File, error) {
	files, err := c.ingestSvc.List(ctx, toInternalList(o))
	if err != nil {
		return nil, err //nolint:wrapcheck // callers match domain sentinels
	}
	out := make([]File, len(files))
	for i := range files {
		out[i] = fromInternalFile(files[i])
	}
	return out, nil
}

// Activate makes a file's passages searchable again.
func (c *Client) Activate(ctx context.Context, id int64) (File, error) {
	return c.setActive(ctx, id, true)
}

// Deactivate hides a finished file's passages from search without deleting
// them. Files still processing are rejected with ErrInvalidTransition.
func (c *Client) Deactivate(ctx context.Context, id int64) (File, error) {
	return c.setActive(ctx, id, false)
}

func (c *Client) setActive(ctx context.Context, id int64, active bool) (File, error) {
	f, err := c.ingestSvc.SetActive(ctx, id, active)
	if err != nil {
		return File{}, err //nolint:wrapcheck // callers match domain sentinels
	}
	return fromInternalFile(f), nil
}

// Delete removes a file and its passages. Files still processing cannot be deleted.
func (c *Client) Delete(ctx context.Context, id int64) error {
	return c.ingestSvc.Delete(ctx, id) //nolint:wrapcheck // callers match domain sentinels
}

// --- Search ---

// SearchBuilder is a fluent builder for semantic search.
type SearchBuilder struct {
	c         *Client
	query     string
	limit     int
	threshold *float64
	scope     string
}

// Search starts a query. Limit and threshold default to the configured values.
func (c *Client) Search(query string) *SearchBuilder {
	return &SearchBuilder{c: c, query: query}
}

// Limit sets the maximum number of hits.
func (b *SearchBuilder) Limit(n int) *SearchBuilder {
	b.limit = n
	return b
}

// Threshold sets the exclusive lower bound on similarity.
func (b *SearchBuilder) Threshold(t float64) *SearchBuilder {
	b.threshold = &t
	return b
}

// Scope restricts the search to one scope name.
func (b *SearchBuilder) Scope(name string) *SearchBuilder {
	b.scope = name
	return b
}

// Do runs the search. Hits are ordered by descending similarity.
func (b *SearchBuilder) Do(ctx context.Context) ([]Hit, error) {
	limit := b.limit
	if limit == 0 {
		limit = b.c.cfg.Search.DefaultLimit
	}
	threshold := b.c.cfg.Search.Threshold()
	if b.threshold != nil {
		threshold = *b.threshold
	}
	if limit < 0 || limit > b.c.cfg.Search.MaxLimit {
		return nil, fmt.Errorf("%w: limit must be between 1 and %d", ErrInvalidRequest, b.c.cfg.Search.MaxLimit)
	}

	req, err := request.New(b.query, limit, threshold, b.scope)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	hits, err := b.c.searchSvc.Search(ctx, req)
	if err != nil {
		return nil, err //nolint:wrapcheck // callers match domain sentinels
	}
	return fromInternalHits(hits), nil
}

// --- Operations ---

// Health probes storage, the embedding provider and the ingestion queue.
func (c *Client) Health(ctx context.Context) Health {
	r := c.healthSvc.Check(ctx)
	checks := make(map[string]string, len(r.Checks))
	for k, v := range r.Checks {
		checks[k] = string(v)
	}
	return Health{Status: string(r.Status), Checks: checks, QueueDepth: r.QueueDepth}
}

// PurgeEmbeddingCache drops every cached ingestion embedding of the
// configured model and returns how many were removed.
func (c *Client) PurgeEmbeddingCache(ctx context.Context) (int, error) {
	if c.embedders.cache == nil {
		return 0, errCacheDisabled
	}
	n, err := c.embedders.cache.Purge(ctx)
	if err != nil {
		return n, fmt.Errorf("purge embedding cache: %w", err)
	}
	return n, nil
}

// Handler returns the HTTP API.
func (c *Client) Handler() http.Handler {
	metrics.RegisterHTTPMetrics()
	srv := chitransport.NewServer(c.ingestSvc, c.searchSvc, c.healthSvc, chitransport.Options{
		MaxUploadBytes:   int64(c.cfg.HTTP.MaxUploadMB) << 20,
		DefaultLimit:     c.cfg.Search.DefaultLimit,
		MaxLimit:         c.cfg.Search.MaxLimit,
		DefaultThreshold: c.cfg.Search.Threshold(),
		APIKeys:          c.cfg.Auth.APIKeys,
	}, c.logger).WithPassageCounter(c.backend.passages)
	return srv.Router()
}

// ServeMCP serves the search_documents and file_status tools over a
// JSON-RPC stream until ctx ends or in is closed.
func (c *Client) ServeMCP(ctx context.Context, in io.Reader, out io.Writer) error {
	srv := mcptransport.NewServer(c.searchSvc, c.ingestSvc, mcptransport.Defaults{
		Limit:     c.cfg.Search.DefaultLimit,
		Threshold: c.cfg.Search.Threshold(),
	}, c.logger)
	return srv.Serve(ctx, in, out) //nolint:wrapcheck // transport error
}

// WatchInbox ingests files dropped into dir until ctx ends.
func (c *Client) WatchInbox(ctx context.Context, dir string) error {
	if dir == "" {
		return errors.New("ragdex: inbox directory is required")
	}
	return inbox.New(dir, c.ingestSvc).WithLogger(c.logger).Run(ctx) //nolint:wrapcheck // watcher error
}
