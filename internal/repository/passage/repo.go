// Package passage stores passages as Redis/Valkey hashes indexed by an FT
// HNSW vector index. Scope and active state are denormalised onto every
// passage as TAG fields so that KNN can pre-filter on them.
package passage

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"

	"github.com/kailas-cloud/ragdex/internal/db"
	"github.com/kailas-cloud/ragdex/internal/domain"
	"github.com/kailas-cloud/ragdex/internal/domain/passage"
	"github.com/kailas-cloud/ragdex/internal/domain/search/filter"
	"github.com/kailas-cloud/ragdex/internal/domain/search/result"
	"github.com/kailas-cloud/ragdex/internal/domain/vector"
	"github.com/kailas-cloud/ragdex/internal/repository/keyspace"
)

// Hash fields of a passage record.
const (
	fieldContent   = "content"
	fieldEmbedding = "embedding"
	fieldFileID    = "file_id"
	fieldScope     = "scope"
	fieldActive    = "active"

	vectorAlias = "vector"
	scoreField  = "__vector_score"
)

// KNN window: twice the limit, widened on boundary ties up to maxKNN.
const (
	knnOverfetch = 2
	maxKNN       = 1000
)

// store is the consumer interface for passages (ISP).
type store interface {
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	Del(ctx context.Context, keys ...string) error
	IncrBy(ctx context.Context, key string, val int64) (int64, error)
	SMembers(ctx context.Context, key string) ([]string, error)
	Exec(ctx context.Context, ops []db.Op) error
	CreateIndex(ctx context.Context, def *db.IndexDefinition) error
	SearchKNN(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error)
	SearchCount(ctx context.Context, index, query string) (int, error)
}

// HNSW holds the graph build parameters of the vector index.
type HNSW struct {
	M              int
	EFConstruction int
}

// Repo implements the vector store on a key-value store.
type Repo struct {
	store store
	keys  keyspace.Keyspace
	dim   int
	hnsw  HNSW
}

// New creates a passage repository for vectors of dimension dim.
func New(s store, keys keyspace.Keyspace, dim int, hnsw HNSW) *Repo {
	return &Repo{store: s, keys: keys, dim: dim, hnsw: hnsw}
}

// EnsureIndex creates the passage index if it does not exist yet.
func (r *Repo) EnsureIndex(ctx context.Context) error {
	def, err := db.NewIndex(r.keys.PassageIndex()).
		Prefix(r.keys.PassagePrefix()).
		Tag(fieldFileID).
		CaseSensitiveTag(fieldScope).
		Tag(fieldActive).
		VectorHNSW(fieldEmbedding, r.dim, db.DistanceCosine, r.hnsw.M, r.hnsw.EFConstruction).
		As(vectorAlias).
		Build()
	if err != nil {
		return fmt.Errorf("build passage index: %w", err)
	}

	if err := r.store.CreateIndex(ctx, def); err != nil {
		if errors.Is(err, db.ErrIndexExists) {
			return nil
		}
		return fmt.Errorf("create passage index: %w", err)
	}
	return nil
}

// Insert stores drafts for a source file in one MULTI/EXEC and returns
// their ids in input order. A failed EXEC is compensated by deleting
// whatever passages the file already has.
func (r *Repo) Insert(ctx context.Context, sourceFileID int64, drafts []passage.Draft) ([]int64, error) {
	if len(drafts) == 0 {
		return nil, nil
	}
	for i := range drafts {
		if err := drafts[i].Validate(r.dim); err != nil {
			return nil, fmt.Errorf("%w: passage %d: %w", domain.ErrInvalidRequest, i, err)
		}
	}

	file, err := r.store.HGetAll(ctx, r.keys.File(sourceFileID))
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return nil, fmt.Errorf("source file %d: %w", sourceFileID, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("%w: load source file %d: %w", domain.ErrPersistence, sourceFileID, err)
	}
	scope := keyspace.ScopeTag(file["scope_id"])
	active := keyspace.ActiveTag(file["active"] != "0")

	last, err := r.store.IncrBy(ctx, r.keys.PassageSeq(), int64(len(drafts)))
	if err != nil {
		return nil, fmt.Errorf("%w: allocate passage ids: %w", domain.ErrPersistence, err)
	}
	first := last - int64(len(drafts)) + 1

	fileID := strconv.FormatInt(sourceFileID, 10)
	ids := make([]int64, len(drafts))
	members := make([]string, len(drafts))
	ops := make([]db.Op, 0, len(drafts)+1)
	for i := range drafts {
		id := first + int64(i)
		ids[i] = id
		members[i] = strconv.FormatInt(id, 10)
		ops = append(ops, db.HSetOp(r.keys.Passage(id), map[string]string{
			fieldContent:   drafts[i].Content,
			fieldEmbedding: string(vector.Encode(drafts[i].Embedding)),
			fieldFileID:    fileID,
			fieldScope:     scope,
			fieldActive:    active,
		}))
	}
	ops = append(ops, db.SAddOp(r.keys.FilePassages(sourceFileID), members...))

	if err := r.store.Exec(ctx, ops); err != nil {
		if _, delErr := r.DeleteBySourceFile(ctx, sourceFileID); delErr != nil {
			err = errors.Join(err, delErr)
		}
		return nil, fmt.Errorf("%w: insert passages for %d: %w", domain.ErrPersistence, sourceFileID, err)
	}
	return ids, nil
}

// Search runs a pre-filtered KNN query and applies the similarity threshold.
func (r *Repo) Search(ctx context.Context, q passage.Query) ([]result.Hit, error) {
	if err := q.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrInvalidRequest, err)
	}
	if len(q.Vector) != r.dim {
		return nil, fmt.Errorf("%w: got %d, want %d", domain.ErrVectorDimMismatch, len(q.Vector), r.dim)
	}

	var must []filter.Condition
	if q.RequireActive {
		c, err := filter.NewMatch(fieldActive, keyspace.ActiveTag(true))
		if err != nil {
			return nil, err
		}
		must = append(must, c)
	}
	if q.ScopeID != nil {
		c, err := filter.NewMatch(fieldScope, keyspace.ScopeTag(*q.ScopeID))
		if err != nil {
			return nil, err
		}
		must = append(must, c)
	}
	filters, err := filter.NewExpression(must, nil)
	if err != nil {
		return nil, err
	}

	// KNN cuts ties at K arbitrarily, so the window widens until the
	// score at the limit boundary is no longer shared by the last entry.
	k := min(q.Limit*knnOverfetch, maxKNN)
	for {
		sr, err := r.store.SearchKNN(ctx, &db.KNNQuery{
			IndexName:    r.keys.PassageIndex(),
			Filters:      filters,
			Vector:       q.Vector,
			K:            k,
			ReturnFields: []string{fieldContent, fieldFileID, scoreField},
		})
		if err != nil {
			return nil, fmt.Errorf("search passages: %w", err)
		}
		if k >= maxKNN || !tieAtEdge(sr, k, q.Limit, q.Threshold) {
			return toHits(sr, q.Threshold, q.Limit), nil
		}
		k = min(k*2, maxKNN)
	}
}

// tieAtEdge reports whether a full KNN window ends on the score of the
// limit-th best entry, meaning equally scored passages may lie beyond it.
func tieAtEdge(sr *db.SearchResult, k, limit int, threshold float64) bool {
	if sr == nil || len(sr.Entries) < k || len(sr.Entries) < limit {
		return false
	}
	scores := make([]float64, len(sr.Entries))
	for i, e := range sr.Entries {
		scores[i] = e.Score
	}
	slices.SortFunc(scores, func(a, b float64) int { return cmp.Compare(b, a) })
	boundary := scores[limit-1]
	return boundary > threshold && scores[len(scores)-1] == boundary
}

func toHits(sr *db.SearchResult, threshold float64, limit int) []result.Hit {
	if sr == nil || len(sr.Entries) == 0 {
		return nil
	}

	hits := make([]result.Hit, 0, len(sr.Entries))
	for _, e := range sr.Entries {
		if !(e.Score > threshold) {
			continue
		}
		id, ok := keyspace.IDFromKey(e.Key)
		if !ok {
			continue
		}
		fileID, err := strconv.ParseInt(e.Fields[fieldFileID], 10, 64)
		if err != nil {
			continue
		}
		hits = append(hits, result.New(id, fileID, e.Fields[fieldContent], e.Score))
	}

	slices.SortFunc(hits, func(a, b result.Hit) int {
		switch {
		case result.Less(a, b):
			return -1
		case result.Less(b, a):
			return 1
		}
		return 0
	})
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits
}

// DeleteBySourceFile removes every passage of a source file and returns
// how many were tracked for it.
func (r *Repo) DeleteBySourceFile(ctx context.Context, sourceFileID int64) (int, error) {
	setKey := r.keys.FilePassages(sourceFileID)
	members, err := r.store.SMembers(ctx, setKey)
	if err != nil {
		return 0, fmt.Errorf("list passages of %d: %w", sourceFileID, err)
	}

	keys := make([]string, 0, len(members)+1)
	for _, m := range members {
		id, err := strconv.ParseInt(m, 10, 64)
		if err != nil {
			continue
		}
		keys = append(keys, r.keys.Passage(id))
	}
	keys = append(keys, setKey)

	if err := r.store.Del(ctx, keys...); err != nil {
		return 0, fmt.Errorf("%w: delete passages of %d: %w", domain.ErrPersistence, sourceFileID, err)
	}
	return len(members), nil
}

// CountBySourceFile returns the number of indexed passages of a source file.
func (r *Repo) CountBySourceFile(ctx context.Context, sourceFileID int64) (int, error) {
	query := fmt.Sprintf("@%s:{%d}", fieldFileID, sourceFileID)
	n, err := r.store.SearchCount(ctx, r.keys.PassageIndex(), query)
	if err != nil {
		return 0, fmt.Errorf("count passages of %d: %w", sourceFileID, err)
	}
	return n, nil
}

// SetSourceFileActive rewrites the active tag on every passage of a file.
func (r *Repo) SetSourceFileActive(ctx context.Context, sourceFileID int64, active bool) error {
	members, err := r.store.SMembers(ctx, r.keys.FilePassages(sourceFileID))
	if err != nil {
		return fmt.Errorf("list passages of %d: %w", sourceFileID, err)
	}
	if len(members) == 0 {
		return nil
	}

	tag := keyspace.ActiveTag(active)
	ops := make([]db.Op, 0, len(members))
	for _, m := range members {
		id, err := strconv.ParseInt(m, 10, 64)
		if err != nil {
			continue
		}
		ops = append(ops, db.HSetOp(r.keys.Passage(id), map[string]string{fieldActive: tag}))
	}

	if err := r.store.Exec(ctx, ops); err != nil {
		return fmt.Errorf("%w: set active on passages of %d: %w", domain.ErrPersistence, sourceFileID, err)
	}
	return nil
}
