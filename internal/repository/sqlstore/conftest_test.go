package sqlstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kailas-cloud/ragdex/internal/domain/passage"
	domsf "github.com/kailas-cloud/ragdex/internal/domain/sourcefile"
)

const testDim = 3

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), Options{
		Driver:     DriverSQLite,
		DSN:        filepath.Join(t.TempDir(), "ragdex.db"),
		Dimensions: testDim,
	})
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

func hashOf(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// createFile stores a Processing file whose hash is derived from name.
func createFile(t *testing.T, s *Store, name, scope string) domsf.SourceFile {
	t.Helper()
	f, err := domsf.New(name, hashOf(name), "owner-1", scope, testNow)
	require.NoError(t, err)
	f, err = s.Files().Create(context.Background(), f)
	require.NoError(t, err)
	return f
}

// unitAt returns a unit vector whose cosine with (1, 0, 0) is sim.
func unitAt(sim float64) []float32 {
	return []float32{float32(sim), float32(math.Sqrt(1 - sim*sim)), 0}
}

func draft(content string, emb []float32) passage.Draft {
	return passage.Draft{Content: content, Embedding: emb}
}

func strPtr(s string) *string { return &s }

var queryVec = []float32{1, 0, 0}
