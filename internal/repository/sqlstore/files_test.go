package sqlstore

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kailas-cloud/ragdex/internal/domain"
	"github.com/kailas-cloud/ragdex/internal/domain/passage"
	domsf "github.com/kailas-cloud/ragdex/internal/domain/sourcefile"
)

func TestFiles_CreateAndGet(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	f := createFile(t, s, "guide.pdf", "17")
	assert.Positive(t, f.ID())

	got, err := s.Files().Get(ctx, f.ID())
	require.NoError(t, err)
	assert.Equal(t, "guide.pdf", got.DisplayName())
	assert.Equal(t, domain.StatusProcessing, got.Status())
	assert.Equal(t, "17", got.ScopeID())
	assert.True(t, got.Active())
	assert.True(t, got.CreatedAt().Equal(testNow))

	byHash, err := s.Files().GetByHash(ctx, hashOf("guide.pdf"))
	require.NoError(t, err)
	assert.Equal(t, f.ID(), byHash.ID())
}

func TestFiles_GetMissing(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Files().Get(context.Background(), 99)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = s.Files().GetByHash(context.Background(), hashOf("nope"))
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestFiles_DuplicateHash(t *testing.T) {
	s := newTestStore(t)
	first := createFile(t, s, "a.txt", "")

	again, err := domsf.New("renamed.txt", hashOf("a.txt"), "owner-2", "", testNow)
	require.NoError(t, err)
	_, err = s.Files().Create(context.Background(), again)

	require.ErrorIs(t, err, domain.ErrDuplicateContent)
	var dup *domain.DuplicateContentError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, first.ID(), dup.SourceFileID)
	assert.Equal(t, domain.StatusProcessing, dup.Status)
}

func TestFiles_ConcurrentSameHash(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	const n = 8
	var (
		wg         sync.WaitGroup
		mu         sync.Mutex
		created    int
		duplicates int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f, err := domsf.New("same.txt", hashOf("same"), "owner", "", testNow)
			if err != nil {
				return
			}
			_, err = s.Files().Create(ctx, f)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				created++
			case errors.Is(err, domain.ErrDuplicateContent):
				duplicates++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, created)
	assert.Equal(t, n-1, duplicates)
}

func TestFiles_UpdateTerminal(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	f := createFile(t, s, "a.txt", "")

	done, err := f.Complete(4, testNow)
	require.NoError(t, err)
	require.NoError(t, s.Files().Update(ctx, done))

	got, err := s.Files().Get(ctx, f.ID())
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, got.Status())
	assert.Equal(t, 4, got.PassageCount())

	missing := done.WithID(404)
	assert.ErrorIs(t, s.Files().Update(ctx, missing), domain.ErrNotFound)
}

func TestFiles_List(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a := createFile(t, s, "a.txt", "x")
	createFile(t, s, "b.txt", "y")
	c := createFile(t, s, "c.txt", "x")

	files, err := s.Files().List(ctx, domsf.ListFilter{ScopeID: strPtr("x")})
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, c.ID(), files[0].ID())
	assert.Equal(t, a.ID(), files[1].ID())

	files, err = s.Files().List(ctx, domsf.ListFilter{Status: domain.StatusCompleted})
	require.NoError(t, err)
	assert.Empty(t, files)

	files, err = s.Files().List(ctx, domsf.ListFilter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, files, 1)
}

func TestFiles_DeleteCascadesAndReleasesHash(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	f := createFile(t, s, "a.txt", "")

	_, err := s.Passages().Insert(ctx, f.ID(), []passage.Draft{draft("some passage", unitAt(0.9))})
	require.NoError(t, err)

	require.NoError(t, s.Files().Delete(ctx, f.ID()))

	n, err := s.Passages().CountBySourceFile(ctx, f.ID())
	require.NoError(t, err)
	assert.Zero(t, n)

	createFile(t, s, "a.txt", "")
	assert.ErrorIs(t, s.Files().Delete(ctx, f.ID()), domain.ErrNotFound)
}
