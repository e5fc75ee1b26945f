package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/kailas-cloud/ragdex/internal/domain"
	"github.com/kailas-cloud/ragdex/internal/domain/passage"
	"github.com/kailas-cloud/ragdex/internal/domain/search/result"
	"github.com/kailas-cloud/ragdex/internal/domain/vector"
)

// PassageRepo implements the vector store. Active and scope filters join
// source_files at query time, so SetSourceFileActive has nothing to rewrite.
type PassageRepo struct {
	s *Store
}

// Insert stores all drafts in one transaction and returns their ids in
// input order. Either every draft is stored or none is.
func (r *PassageRepo) Insert(ctx context.Context, sourceFileID int64, drafts []passage.Draft) ([]int64, error) {
	if len(drafts) == 0 {
		return nil, nil
	}
	for i := range drafts {
		if err := vector.Validate(drafts[i].Embedding, r.s.dim); err != nil {
			return nil, fmt.Errorf("%w: passage %d: %w", domain.ErrInvalidRequest, i, err)
		}
	}

	ids := make([]int64, len(drafts))
	err := r.s.withTx(ctx, func(tx *sql.Tx) error {
		var exists int
		err := r.s.queryRow(ctx, tx, `SELECT 1 FROM source_files WHERE id = ?`, sourceFileID).Scan(&exists)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("source file %d: %w", sourceFileID, domain.ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("check source file: %w", err)
		}

		stmt, err := tx.PrepareContext(ctx, r.s.dialect.rebind(
			`INSERT INTO passages (source_file_id, content, embedding) VALUES (?, ?, ?) RETURNING id`))
		if err != nil {
			return fmt.Errorf("prepare insert: %w", err)
		}
		defer stmt.Close()

		for i := range drafts {
			if err := stmt.QueryRowContext(ctx, sourceFileID, drafts[i].Content,
				r.s.dialect.vectorArg(drafts[i].Embedding)).Scan(&ids[i]); err != nil {
				return fmt.Errorf("insert passage %d: %w", i, err)
			}
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", domain.ErrPersistence, err)
	}
	return ids, nil
}

// Search returns passages with similarity above the threshold, best first.
func (r *PassageRepo) Search(ctx context.Context, q passage.Query) ([]result.Hit, error) {
	if err := q.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrInvalidRequest, err)
	}
	if len(q.Vector) != r.s.dim {
		return nil, fmt.Errorf("%w: got %d, want %d", domain.ErrVectorDimMismatch, len(q.Vector), r.s.dim)
	}

	var (
		where []string
		args  []any
	)
	if q.RequireActive {
		where = append(where, "f.active = ?")
		args = append(args, true)
	}
	if q.ScopeID != nil {
		where = append(where, "f.scope_id = ?")
		args = append(args, *q.ScopeID)
	}

	if r.s.dialect.nativeSearch() {
		return r.searchNative(ctx, q, where, args)
	}
	return r.searchScan(ctx, q, where, args)
}

// searchNative lets pgvector compute 1 - cosine distance.
func (r *PassageRepo) searchNative(ctx context.Context, q passage.Query, where []string, args []any) ([]result.Hit, error) {
	vec := r.s.dialect.vectorArg(q.Vector)
	where = append(where, "1 - (p.embedding <=> ?) > ?")

	query := `SELECT p.id, p.source_file_id, p.content, 1 - (p.embedding <=> ?) AS similarity
		FROM passages p JOIN source_files f ON f.id = p.source_file_id
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY similarity DESC, p.id ASC
		LIMIT ?`
	all := make([]any, 0, len(args)+4)
	all = append(all, vec)
	all = append(all, args...)
	all = append(all, vec, q.Threshold, q.Limit)

	rows, err := r.s.query(ctx, r.s.db, query, all...)
	if err != nil {
		return nil, fmt.Errorf("search passages: %w", err)
	}
	defer rows.Close()

	var hits []result.Hit
	for rows.Next() {
		var (
			id, fileID int64
			content    string
			sim        float64
		)
		if err := rows.Scan(&id, &fileID, &content, &sim); err != nil {
			return nil, fmt.Errorf("scan hit: %w", err)
		}
		hits = append(hits, result.New(id, fileID, content, sim))
	}
	return hits, rows.Err()
}

// searchScan scores every candidate in Go with the same semantics.
func (r *PassageRepo) searchScan(ctx context.Context, q passage.Query, where []string, args []any) ([]result.Hit, error) {
	query := `SELECT p.id, p.source_file_id, p.content, p.embedding
		FROM passages p JOIN source_files f ON f.id = p.source_file_id`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}

	rows, err := r.s.query(ctx, r.s.db, query, args...)
	if err != nil {
		return nil, fmt.Errorf("search passages: %w", err)
	}
	defer rows.Close()

	var hits []result.Hit
	for rows.Next() {
		var (
			id, fileID int64
			content    string
			emb        vectorValue
		)
		if err := rows.Scan(&id, &fileID, &content, &emb); err != nil {
			return nil, fmt.Errorf("scan passage: %w", err)
		}
		sim := vector.Cosine(q.Vector, emb.v)
		if math.IsNaN(sim) || !(sim > q.Threshold) {
			continue
		}
		hits = append(hits, result.New(id, fileID, content, sim))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate passages: %w", err)
	}

	slices.SortFunc(hits, compareHits)
	if len(hits) > q.Limit {
		hits = hits[:q.Limit]
	}
	return hits, nil
}

func compareHits(a, b result.Hit) int {
	switch {
	case result.Less(a, b):
		return -1
	case result.Less(b, a):
		return 1
	}
	return 0
}

// DeleteBySourceFile removes every passage of a source file.
func (r *PassageRepo) DeleteBySourceFile(ctx context.Context, sourceFileID int64) (int, error) {
	res, err := r.s.exec(ctx, r.s.db, `DELETE FROM passages WHERE source_file_id = ?`, sourceFileID)
	if err != nil {
		return 0, fmt.Errorf("%w: delete passages of %d: %w", domain.ErrPersistence, sourceFileID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, nil //nolint:nilerr // the delete itself succeeded
	}
	return int(n), nil
}

// CountBySourceFile returns the number of stored passages of a source file.
func (r *PassageRepo) CountBySourceFile(ctx context.Context, sourceFileID int64) (int, error) {
	var n int
	if err := r.s.queryRow(ctx, r.s.db,
		`SELECT COUNT(*) FROM passages WHERE source_file_id = ?`, sourceFileID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count passages of %d: %w", sourceFileID, err)
	}
	return n, nil
}

// SetSourceFileActive is a no-op: the active flag is joined at query time.
func (r *PassageRepo) SetSourceFileActive(context.Context, int64, bool) error {
	return nil
}
