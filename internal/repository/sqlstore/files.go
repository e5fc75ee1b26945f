package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/kailas-cloud/ragdex/internal/domain"
	domsf "github.com/kailas-cloud/ragdex/internal/domain/sourcefile"
)

const fileColumns = `id, display_name, content_hash, status, owner_id, active, scope_id,
	failure_kind, failure_reason, passage_count, created_at, updated_at`

// FileRepo implements the source file store. UNIQUE(content_hash)
// serialises concurrent uploads of the same content.
type FileRepo struct {
	s *Store
}

// Create inserts f with status Processing and returns it with its id.
func (r *FileRepo) Create(ctx context.Context, f domsf.SourceFile) (domsf.SourceFile, error) {
	var id int64
	err := r.s.queryRow(ctx, r.s.db, `
		INSERT INTO source_files (display_name, content_hash, status, owner_id, active, scope_id,
			failure_kind, failure_reason, passage_count, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id`,
		f.DisplayName(), f.ContentHash(), string(f.Status()), f.OwnerID(), f.Active(), f.ScopeID(),
		string(f.FailureKind()), f.FailureReason(), f.PassageCount(),
		r.s.dialect.timeArg(f.CreatedAt()), r.s.dialect.timeArg(f.UpdatedAt()),
	).Scan(&id)
	if err != nil {
		if r.s.dialect.isUniqueViolation(err) {
			return domsf.SourceFile{}, r.duplicate(ctx, f.ContentHash())
		}
		return domsf.SourceFile{}, fmt.Errorf("%w: insert source file: %w", domain.ErrPersistence, err)
	}
	return f.WithID(id), nil
}

func (r *FileRepo) duplicate(ctx context.Context, hash string) error {
	existing, err := r.GetByHash(ctx, hash)
	if err != nil {
		return fmt.Errorf("%w: load hash owner: %w", domain.ErrPersistence, err)
	}
	return domain.NewDuplicateContent(hash, existing.ID(), existing.Status())
}

// Get returns a source file by id.
func (r *FileRepo) Get(ctx context.Context, id int64) (domsf.SourceFile, error) {
	row := r.s.queryRow(ctx, r.s.db, `SELECT `+fileColumns+` FROM source_files WHERE id = ?`, id)
	f, err := scanFile(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domsf.SourceFile{}, fmt.Errorf("source file %d: %w", id, domain.ErrNotFound)
		}
		return domsf.SourceFile{}, fmt.Errorf("get source file %d: %w", id, err)
	}
	return f, nil
}

// GetByHash returns the source file owning a content hash.
func (r *FileRepo) GetByHash(ctx context.Context, hash string) (domsf.SourceFile, error) {
	row := r.s.queryRow(ctx, r.s.db, `SELECT `+fileColumns+` FROM source_files WHERE content_hash = ?`, hash)
	f, err := scanFile(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domsf.SourceFile{}, fmt.Errorf("hash %s: %w", hash, domain.ErrNotFound)
		}
		return domsf.SourceFile{}, fmt.Errorf("get source file by hash: %w", err)
	}
	return f, nil
}

// Update persists the mutable state of f.
func (r *FileRepo) Update(ctx context.Context, f domsf.SourceFile) error {
	res, err := r.s.exec(ctx, r.s.db, `
		UPDATE source_files
		SET status = ?, active = ?, failure_kind = ?, failure_reason = ?, passage_count = ?, updated_at = ?
		WHERE id = ?`,
		string(f.Status()), f.Active(), string(f.FailureKind()), f.FailureReason(), f.PassageCount(),
		r.s.dialect.timeArg(f.UpdatedAt()), f.ID(),
	)
	if err != nil {
		return fmt.Errorf("%w: update source file %d: %w", domain.ErrPersistence, f.ID(), err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("source file %d: %w", f.ID(), domain.ErrNotFound)
	}
	return nil
}

// List returns files matching lf, newest first.
func (r *FileRepo) List(ctx context.Context, lf domsf.ListFilter) ([]domsf.SourceFile, error) {
	var (
		where []string
		args  []any
	)
	if lf.ScopeID != nil {
		where = append(where, "scope_id = ?")
		args = append(args, *lf.ScopeID)
	}
	if lf.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(lf.Status))
	}

	q := `SELECT ` + fileColumns + ` FROM source_files`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY id DESC LIMIT ?"
	args = append(args, lf.EffectiveLimit())

	rows, err := r.s.query(ctx, r.s.db, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list source files: %w", err)
	}
	defer rows.Close()

	var files []domsf.SourceFile
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, fmt.Errorf("scan source file: %w", err)
		}
		files = append(files, f)
	}
	return files, rows.Err()
}

// Delete removes a source file. Its passages go with it (ON DELETE CASCADE).
func (r *FileRepo) Delete(ctx context.Context, id int64) error {
	res, err := r.s.exec(ctx, r.s.db, `DELETE FROM source_files WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("%w: delete source file %d: %w", domain.ErrPersistence, id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("source file %d: %w", id, domain.ErrNotFound)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFile(row rowScanner) (domsf.SourceFile, error) {
	var (
		id                                                     int64
		name, hash, status, owner, scope, failKind, failReason string
		active                                                 bool
		count                                                  int
		created, updated                                       timeValue
	)
	if err := row.Scan(&id, &name, &hash, &status, &owner, &active, &scope,
		&failKind, &failReason, &count, &created, &updated); err != nil {
		return domsf.SourceFile{}, err
	}

	st, err := domain.ParseStatus(status)
	if err != nil {
		return domsf.SourceFile{}, err
	}
	kind, err := domain.ParseFailureKind(failKind)
	if err != nil {
		return domsf.SourceFile{}, err
	}
	return domsf.Reconstruct(id, name, hash, st, owner, active, scope, kind, failReason, count,
		created.t, updated.t), nil
}
