// Package sourcefile stores source file lifecycle records in Redis/Valkey.
// Hash uniqueness is enforced with SETNX on the file_hash key.
package sourcefile

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"

	"github.com/kailas-cloud/ragdex/internal/db"
	"github.com/kailas-cloud/ragdex/internal/domain"
	domsf "github.com/kailas-cloud/ragdex/internal/domain/sourcefile"
	"github.com/kailas-cloud/ragdex/internal/repository/keyspace"
)

// store is the consumer interface for source files (ISP).
type store interface {
	HSet(ctx context.Context, key string, fields map[string]string) error
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	HGetAllMulti(ctx context.Context, keys []string) ([]map[string]string, error)
	Del(ctx context.Context, keys ...string) error
	Exists(ctx context.Context, key string) (bool, error)
	Scan(ctx context.Context, pattern string) ([]string, error)
	Get(ctx context.Context, key string) ([]byte, error)
	SetNX(ctx context.Context, key string, value []byte) (bool, error)
	IncrBy(ctx context.Context, key string, val int64) (int64, error)
}

// Repo implements the ingestion SourceFileRepository on a key-value store.
type Repo struct {
	store store
	keys  keyspace.Keyspace
}

// New creates a source file repository.
func New(s store, keys keyspace.Keyspace) *Repo {
	return &Repo{store: s, keys: keys}
}

// Create assigns an id and persists f. A hash that is already owned yields
// a *domain.DuplicateContentError.
func (r *Repo) Create(ctx context.Context, f domsf.SourceFile) (domsf.SourceFile, error) {
	id, err := r.store.IncrBy(ctx, r.keys.FileSeq(), 1)
	if err != nil {
		return domsf.SourceFile{}, fmt.Errorf("%w: allocate file id: %w", domain.ErrPersistence, err)
	}

	hashKey := r.keys.FileHash(f.ContentHash())
	claimed, err := r.store.SetNX(ctx, hashKey, []byte(strconv.FormatInt(id, 10)))
	if err != nil {
		return domsf.SourceFile{}, fmt.Errorf("%w: claim hash: %w", domain.ErrPersistence, err)
	}
	if !claimed {
		return domsf.SourceFile{}, r.duplicate(ctx, f.ContentHash())
	}

	f = f.WithID(id)
	if err := r.store.HSet(ctx, r.keys.File(id), toFields(&f)); err != nil {
		if delErr := r.store.Del(ctx, hashKey); delErr != nil {
			err = errors.Join(err, delErr)
		}
		return domsf.SourceFile{}, fmt.Errorf("%w: hset %s: %w", domain.ErrPersistence, r.keys.File(id), err)
	}
	return f, nil
}

// duplicate builds the error for a lost SETNX. The owner may still be
// between SETNX and HSET, in which case it is reported as processing.
func (r *Repo) duplicate(ctx context.Context, hash string) error {
	id, err := r.ownerOf(ctx, hash)
	if err != nil {
		return fmt.Errorf("%w: read hash owner: %w", domain.ErrPersistence, err)
	}
	existing, err := r.Get(ctx, id)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return domain.NewDuplicateContent(hash, id, domain.StatusProcessing)
	case err != nil:
		return err
	}
	return domain.NewDuplicateContent(hash, id, existing.Status())
}

// Get returns a source file by id.
func (r *Repo) Get(ctx context.Context, id int64) (domsf.SourceFile, error) {
	key := r.keys.File(id)
	m, err := r.store.HGetAll(ctx, key)
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return domsf.SourceFile{}, fmt.Errorf("source file %d: %w", id, domain.ErrNotFound)
		}
		return domsf.SourceFile{}, fmt.Errorf("hgetall %s: %w", key, err)
	}
	f, err := fromFields(m)
	if err != nil {
		return domsf.SourceFile{}, fmt.Errorf("decode %s: %w", key, err)
	}
	return f, nil
}

// GetByHash returns the source file owning a content hash.
func (r *Repo) GetByHash(ctx context.Context, hash string) (domsf.SourceFile, error) {
	id, err := r.ownerOf(ctx, hash)
	if err != nil {
		return domsf.SourceFile{}, err
	}
	return r.Get(ctx, id)
}

func (r *Repo) ownerOf(ctx context.Context, hash string) (int64, error) {
	raw, err := r.store.Get(ctx, r.keys.FileHash(hash))
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return 0, fmt.Errorf("hash %s: %w", hash, domain.ErrNotFound)
		}
		return 0, fmt.Errorf("get hash owner: %w", err)
	}
	id, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse hash owner %q: %w", raw, err)
	}
	return id, nil
}

// Update overwrites the stored record of an existing file.
func (r *Repo) Update(ctx context.Context, f domsf.SourceFile) error {
	key := r.keys.File(f.ID())
	exists, err := r.store.Exists(ctx, key)
	if err != nil {
		return fmt.Errorf("%w: check exists %s: %w", domain.ErrPersistence, key, err)
	}
	if !exists {
		return fmt.Errorf("source file %d: %w", f.ID(), domain.ErrNotFound)
	}
	if err := r.store.HSet(ctx, key, toFields(&f)); err != nil {
		return fmt.Errorf("%w: hset %s: %w", domain.ErrPersistence, key, err)
	}
	return nil
}

// List returns files matching lf, newest first.
func (r *Repo) List(ctx context.Context, lf domsf.ListFilter) ([]domsf.SourceFile, error) {
	keys, err := r.store.Scan(ctx, r.keys.FilePattern())
	if err != nil {
		return nil, fmt.Errorf("scan files: %w", err)
	}
	if len(keys) == 0 {
		return nil, nil
	}

	records, err := r.store.HGetAllMulti(ctx, keys)
	if err != nil {
		return nil, fmt.Errorf("load files: %w", err)
	}

	files := make([]domsf.SourceFile, 0, len(records))
	for _, m := range records {
		if len(m) == 0 {
			continue // deleted between SCAN and HGETALL
		}
		f, err := fromFields(m)
		if err != nil {
			continue
		}
		if lf.Matches(&f) {
			files = append(files, f)
		}
	}

	slices.SortFunc(files, func(a, b domsf.SourceFile) int {
		return cmp.Compare(b.ID(), a.ID())
	})
	if limit := lf.EffectiveLimit(); len(files) > limit {
		files = files[:limit]
	}
	return files, nil
}

// Delete removes the record and releases its content hash.
func (r *Repo) Delete(ctx context.Context, id int64) error {
	f, err := r.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := r.store.Del(ctx, r.keys.File(id), r.keys.FileHash(f.ContentHash())); err != nil {
		return fmt.Errorf("%w: delete source file %d: %w", domain.ErrPersistence, id, err)
	}
	return nil
}
