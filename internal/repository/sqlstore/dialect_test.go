package sqlstore

import (
	"errors"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kailas-cloud/ragdex/internal/domain/vector"
)

func TestPostgresRebind(t *testing.T) {
	got := postgresDialect{}.rebind("SELECT * FROM t WHERE a = ? AND b > ? LIMIT ?")
	assert.Equal(t, "SELECT * FROM t WHERE a = $1 AND b > $2 LIMIT $3", got)
}

func TestPostgresUniqueViolation(t *testing.T) {
	d := postgresDialect{}
	assert.True(t, d.isUniqueViolation(&pgconn.PgError{Code: "23505"}))
	assert.False(t, d.isUniqueViolation(&pgconn.PgError{Code: "23514"}))
	assert.False(t, d.isUniqueViolation(errors.New("boom")))
}

func TestVectorValue_Scan(t *testing.T) {
	var vv vectorValue
	require.NoError(t, vv.Scan([]byte("[0.5,-1,2]")))
	assert.Equal(t, []float32{0.5, -1, 2}, vv.v)

	require.NoError(t, vv.Scan(vector.Encode([]float32{3, 4})))
	assert.Equal(t, []float32{3, 4}, vv.v)

	assert.Error(t, vv.Scan(42))
}

func TestPrepareSQLite(t *testing.T) {
	dsn, err := prepareSQLite(t.TempDir() + "/nested/ragdex.db")
	require.NoError(t, err)
	assert.Contains(t, dsn, "?_pragma=foreign_keys(1)")

	dsn, err = prepareSQLite("file::memory:?cache=shared")
	require.NoError(t, err)
	assert.Contains(t, dsn, "&_pragma=foreign_keys(1)")

	_, err = prepareSQLite("")
	assert.Error(t, err)
}

func TestOpen_UnknownDriver(t *testing.T) {
	_, err := Open(t.Context(), Options{Driver: "oracle", Dimensions: 3})
	assert.Error(t, err)
}
