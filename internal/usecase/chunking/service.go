package chunking

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"go.uber.org/zap"

	"github.com/kailas-cloud/ragdex/internal/domain/vector"
	"github.com/kailas-cloud/ragdex/internal/metrics"
)

// Strategy names the path a Chunk call took.
type Strategy string

// Chunking strategies, used as metric labels.
const (
	StrategyDegenerate Strategy = "degenerate"
	StrategyBase       Strategy = "base"
	StrategySemantic   Strategy = "semantic"
	StrategyFallback   Strategy = "fallback"
)

// mergeSeparator joins two merged segments.
const mergeSeparator = " "

var errNonFiniteSimilarity = errors.New("non-finite similarity")

// Config holds chunker parameters. Sizes are in characters.
type Config struct {
	MinContentLength    int
	ChunkSize           int
	ChunkOverlap        int
	MaxMergedSize       int
	SimilarityThreshold float64
	MinPassageLength    int
	FallbackChunkSize   int
	FallbackOverlap     int
	Separators          []string
}

// DefaultConfig returns the stock chunker parameters.
func DefaultConfig() Config {
	return Config{
		MinContentLength:    100,
		ChunkSize:           300,
		ChunkOverlap:        50,
		MaxMergedSize:       1000,
		SimilarityThreshold: 0.6,
		MinPassageLength:    50,
		FallbackChunkSize:   1000,
		FallbackOverlap:     200,
		Separators:          DefaultSeparators,
	}
}

// Service splits text into passages and merges neighbours whose embeddings agree.
type Service struct {
	embed  Embedder
	cfg    Config
	base   *RecursiveSplitter
	logger *zap.Logger
}

// New creates a chunking service.
func New(embed Embedder, cfg Config) *Service {
	return &Service{
		embed:  embed,
		cfg:    cfg,
		base:   NewRecursiveSplitter(cfg.ChunkSize, cfg.ChunkOverlap, cfg.Separators),
		logger: zap.NewNop(),
	}
}

// WithLogger sets the logger.
func (s *Service) WithLogger(l *zap.Logger) *Service {
	s.logger = l
	return s
}

// Chunk never fails. Short input comes back as one trimmed passage, long input
// goes through the semantic merge, and any error on that path yields a fixed
// character split instead.
func (s *Service) Chunk(ctx context.Context, content string) []string {
	passages, strategy := s.chunk(ctx, content)
	metrics.ChunkerRunsTotal.WithLabelValues(string(strategy)).Inc()
	return passages
}

func (s *Service) chunk(ctx context.Context, content string) ([]string, Strategy) {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return []string{}, StrategyDegenerate
	}
	if runeLen(trimmed) < s.cfg.MinContentLength {
		return []string{trimmed}, StrategyDegenerate
	}

	passages, strategy, err := s.semantic(ctx, trimmed)
	if err != nil {
		s.logger.Warn("semantic chunking failed, using fixed split",
			zap.Error(err), zap.Int("content_chars", runeLen(trimmed)))
		return s.fallback(trimmed), StrategyFallback
	}
	return passages, strategy
}

func (s *Service) semantic(ctx context.Context, text string) (out []string, strategy Strategy, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("semantic chunking panic: %v", r)
		}
	}()

	segments := s.base.Split(text)
	if len(segments) <= 1 {
		return segments, StrategyBase, nil
	}

	res, err := s.embed.BatchEmbed(ctx, segments)
	if err != nil {
		return nil, "", fmt.Errorf("embed %d segments: %w", len(segments), err)
	}
	if len(res.Embeddings) != len(segments) {
		return nil, "", fmt.Errorf("embedder returned %d vectors for %d segments",
			len(res.Embeddings), len(segments))
	}

	merged, err := s.merge(segments, res.Embeddings)
	if err != nil {
		return nil, "", err
	}

	out = s.dropTiny(merged)
	switch {
	case len(out) > 0:
	case len(merged) > 0:
		out = merged
	default:
		out = segments
	}
	return out, StrategySemantic, nil
}

// merge walks left to right. A segment joins the accumulator when the two are
// similar enough and the joined text still fits; the accumulator vector
// becomes the mean of both.
func (s *Service) merge(segments []string, embeddings [][]float32) ([]string, error) {
	passages := make([]string, 0, len(segments))

	accText, accVec := segments[0], embeddings[0]
	for i := 1; i < len(segments); i++ {
		sim := vector.Cosine(accVec, embeddings[i])
		if math.IsNaN(sim) || math.IsInf(sim, 0) {
			return nil, fmt.Errorf("segment %d: %w", i, errNonFiniteSimilarity)
		}

		joined := accText + mergeSeparator + segments[i]
		if sim > s.cfg.SimilarityThreshold && runeLen(joined) <= s.cfg.MaxMergedSize {
			accText = joined
			accVec = vector.Mean(accVec, embeddings[i])
			continue
		}

		passages = append(passages, accText)
		accText, accVec = segments[i], embeddings[i]
	}
	return append(passages, accText), nil
}

func (s *Service) dropTiny(passages []string) []string {
	if len(passages) <= 1 {
		return passages
	}
	kept := make([]string, 0, len(passages))
	for _, p := range passages {
		if runeLen(p) >= s.cfg.MinPassageLength {
			kept = append(kept, p)
		}
	}
	return kept
}

func (s *Service) fallback(text string) (out []string) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("fixed split panicked", zap.Any("panic", r))
			out = []string{}
		}
	}()
	out = FixedSplit(text, s.cfg.FallbackChunkSize, s.cfg.FallbackOverlap)
	if out == nil {
		out = []string{}
	}
	return out
}
