package sqlstore

import (
	"errors"
	"fmt"
	"io/fs"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pgvector/pgvector-go"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/kailas-cloud/ragdex/internal/domain/vector"
	"github.com/kailas-cloud/ragdex/internal/repository/sqlstore/migrations"
)

// dialect isolates the few places where Postgres and SQLite differ.
type dialect interface {
	driverName() string
	// rebind rewrites ? placeholders into the driver's syntax.
	rebind(query string) string
	migrations() (fs.FS, string)
	vectorArg(v []float32) any
	timeArg(t time.Time) any
	isUniqueViolation(err error) bool
	// nativeSearch reports whether similarity is computed by the database.
	nativeSearch() bool
}

// --- Postgres ---

type postgresDialect struct{}

func (postgresDialect) driverName() string { return "pgx" }

func (postgresDialect) rebind(query string) string {
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (postgresDialect) migrations() (fs.FS, string) { return migrations.Postgres, "postgres" }

func (postgresDialect) vectorArg(v []float32) any { return pgvector.NewVector(v) }

func (postgresDialect) timeArg(t time.Time) any { return t.UTC() }

func (postgresDialect) isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func (postgresDialect) nativeSearch() bool { return true }

// --- SQLite ---

type sqliteDialect struct{}

func (sqliteDialect) driverName() string { return "sqlite" }

func (sqliteDialect) rebind(query string) string { return query }

func (sqliteDialect) migrations() (fs.FS, string) { return migrations.SQLite, "sqlite" }

func (sqliteDialect) vectorArg(v []float32) any { return vector.Encode(v) }

func (sqliteDialect) timeArg(t time.Time) any { return t.UTC().Format(time.RFC3339Nano) }

func (sqliteDialect) isUniqueViolation(err error) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	return se.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE || se.Code() == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
}

func (sqliteDialect) nativeSearch() bool { return false }

// --- Scanners ---

// timeValue scans TIMESTAMPTZ columns and RFC 3339 text columns alike.
type timeValue struct{ t time.Time }

func (tv *timeValue) Scan(src any) error {
	switch v := src.(type) {
	case time.Time:
		tv.t = v.UTC()
		return nil
	case string:
		return tv.parse(v)
	case []byte:
		return tv.parse(string(v))
	default:
		return fmt.Errorf("unsupported time value %T", src)
	}
}

func (tv *timeValue) parse(s string) error {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return fmt.Errorf("parse time %q: %w", s, err)
	}
	tv.t = t.UTC()
	return nil
}

// vectorValue scans pgvector text and little-endian float32 blobs.
type vectorValue struct{ v []float32 }

func (vv *vectorValue) Scan(src any) error {
	switch v := src.(type) {
	case []byte:
		if len(v) > 0 && v[0] == '[' {
			return vv.scanPG(v)
		}
		out, err := vector.Decode(v)
		if err != nil {
			return err
		}
		vv.v = out
		return nil
	case string:
		return vv.scanPG(v)
	default:
		return fmt.Errorf("unsupported vector value %T", src)
	}
}

func (vv *vectorValue) scanPG(src any) error {
	var pv pgvector.Vector
	if err := pv.Scan(src); err != nil {
		return fmt.Errorf("scan pgvector: %w", err)
	}
	vv.v = pv.Slice()
	return nil
}
