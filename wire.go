package ragdex

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/ragdex/internal/config"
	dbredis "github.com/kailas-cloud/ragdex/internal/db/redis"
	"github.com/kailas-cloud/ragdex/internal/domain"
	"github.com/kailas-cloud/ragdex/internal/domain/passage"
	"github.com/kailas-cloud/ragdex/internal/domain/search/result"
	"github.com/kailas-cloud/ragdex/internal/metrics"
	"github.com/kailas-cloud/ragdex/internal/repository/embcache"
	"github.com/kailas-cloud/ragdex/internal/repository/keyspace"
	passagerepo "github.com/kailas-cloud/ragdex/internal/repository/passage"
	sourcefilerepo "github.com/kailas-cloud/ragdex/internal/repository/sourcefile"
	"github.com/kailas-cloud/ragdex/internal/repository/sqlstore"
	"github.com/kailas-cloud/ragdex/internal/transport/openai"
	"github.com/kailas-cloud/ragdex/internal/usecase/chunking"
	"github.com/kailas-cloud/ragdex/internal/usecase/embedding"
	healthuc "github.com/kailas-cloud/ragdex/internal/usecase/health"
	ingestuc "github.com/kailas-cloud/ragdex/internal/usecase/ingest"
)

// passageStore is everything the client needs from the passage index.
type passageStore interface {
	ingestuc.VectorStore
	Search(ctx context.Context, q passage.Query) ([]result.Hit, error)
	CountBySourceFile(ctx context.Context, sourceFileID int64) (int, error)
}

// backend is the opened storage: file records, passages and the
// connection they share.
type backend struct {
	files    ingestuc.SourceFileRepository
	passages passageStore
	pinger   healthuc.DBPinger
	redis    *dbredis.Store // set for redis and valkey
	close    func()
}

func openBackend(ctx context.Context, cfg config.Config, logger *zap.Logger) (*backend, error) {
	dbc := cfg.Database
	if dbc.IsSQL() {
		st, err := sqlstore.Open(ctx, sqlstore.Options{
			Driver:       dbc.Driver,
			DSN:          dbc.DSN,
			Dimensions:   cfg.Embedding.Dimensions,
			MaxOpenConns: dbc.MaxOpenConns,
			HNSWM:        cfg.Index.HNSWM,
			HNSWEFConstr: cfg.Index.HNSWEFConstruct,
		})
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", dbc.Driver, err)
		}
		logger.Info("storage ready", zap.String("driver", dbc.Driver))
		return &backend{files: st.Files(), passages: st.Passages(), pinger: st, close: st.Close}, nil
	}

	st, err := dbredis.NewStore(dbredis.Config{Addrs: dbc.Addrs, Password: dbc.Password})
	if err != nil {
		return nil, fmt.Errorf("create %s store: %w", dbc.Driver, err)
	}
	if err := st.WaitForReady(ctx, time.Duration(dbc.ReadinessTimeout)*time.Second); err != nil {
		st.Close()
		return nil, fmt.Errorf("%s not ready: %w", dbc.Driver, err)
	}

	keys := keyspace.New(dbc.KeyPrefix)
	passages := passagerepo.New(st, keys, cfg.Embedding.Dimensions, passagerepo.HNSW{
		M:              cfg.Index.HNSWM,
		EFConstruction: cfg.Index.HNSWEFConstruct,
	})
	if err := passages.EnsureIndex(ctx); err != nil {
		st.Close()
		return nil, err
	}
	logger.Info("storage ready",
		zap.String("driver", dbc.Driver),
		zap.Strings("addrs", dbc.Addrs),
		zap.String("index", keys.PassageIndex()),
	)

	return &backend{
		files:    sourcefilerepo.New(st, keys),
		passages: passages,
		pinger:   st,
		redis:    st,
		close:    st.Close,
	}, nil
}

// embedders is the wired embedding chain.
type embedders struct {
	query     domain.Embedder      // search queries, never cached
	ingestion domain.BatchEmbedder // chunker and passage vectors
	checker   healthuc.EmbeddingChecker
	cache     *embcache.CachedEmbedder // nil when disabled
	close     func()
}

// buildEmbedders wires provider -> rate limit -> retry -> instrumented, with
// the Redis cache outermost on the ingestion path only.
func buildEmbedders(cfg config.Config, co *clientConfig, be *backend, logger *zap.Logger) (*embedders, error) {
	ec := cfg.Embedding
	out := &embedders{close: func() {}}

	var provider domain.Gateway
	if co.embedder != nil {
		provider = adaptEmbedder(co.embedder)
		if hc, ok := co.embedder.(domain.HealthChecker); ok {
			out.checker = hc
		}
	} else {
		oa := openai.NewEmbedder(&openai.Config{
			APIKey:     ec.Provider.APIKey,
			BaseURL:    ec.Provider.BaseURL,
			Model:      ec.Model,
			Dimensions: ec.Dimensions,
			Provider:   ec.Provider.Name,
			HTTPClient: co.httpClient,
			Logger:     logger,
		})
		provider = oa
		out.checker = oa
	}

	var chain domain.Embedder = provider
	if ec.RateLimit.RPS > 0 {
		chain = embedding.NewRateLimitedEmbedder(chain, ec.RateLimit.RPS, ec.RateLimit.Burst)
	}
	chain = embedding.NewRetryingEmbedder(chain, embedding.RetryConfig{
		MaxAttempts: ec.Retry.MaxAttempts,
		BaseDelay:   time.Duration(ec.Retry.BaseDelayMS) * time.Millisecond,
		MaxDelay:    time.Duration(ec.Retry.MaxDelayMS) * time.Millisecond,
		Multiplier:  2,
	}, logger)
	instrumented := embedding.NewInstrumentedEmbedder(chain, ec.Provider.Name, ec.Model, ec.Dimensions, logger).
		WithBatchSize(ec.BatchSize).
		WithTimeout(time.Duration(ec.TimeoutSec) * time.Second)

	out.query = instrumented
	out.ingestion = instrumented
	if !ec.Cache.Enabled {
		return out, nil
	}

	cacheStore := be.redis
	if len(ec.Cache.Addrs) > 0 {
		st, err := dbredis.NewStore(dbredis.Config{Addrs: ec.Cache.Addrs, Password: ec.Cache.Password})
		if err != nil {
			return nil, fmt.Errorf("create embedding cache store: %w", err)
		}
		cacheStore = st
		out.close = st.Close
	}
	if cacheStore == nil {
		return nil, fmt.Errorf("embedding cache needs embedding.cache.addrs or a redis backend")
	}

	out.cache = embcache.New(
		instrumented, cacheStore, keyspace.New(cfg.Database.KeyPrefix),
		ec.Model, ec.Dimensions, time.Duration(ec.Cache.TTLHours)*time.Hour,
		metrics.EmbeddingCacheTotal, logger,
	)
	out.ingestion = out.cache
	return out, nil
}

func chunkerConfig(cfg config.ChunkingConfig) chunking.Config {
	cc := chunking.DefaultConfig()
	cc.MinContentLength = cfg.MinContentLength
	cc.ChunkSize = cfg.ChunkSize
	cc.ChunkOverlap = cfg.ChunkOverlap
	cc.MaxMergedSize = cfg.MaxMergedSize
	cc.SimilarityThreshold = cfg.SimilarityThreshold
	cc.MinPassageLength = cfg.MinPassageLength
	cc.FallbackChunkSize = cfg.FallbackChunkSize
	cc.FallbackOverlap = cfg.FallbackOverlap
	return cc
}
