// Package migrations embeds the schema of the SQL backends.
package migrations

import "embed"

// SQLite holds the SQLite schema files.
//
//go:embed sqlite/*.sql
var SQLite embed.FS

// Postgres holds the Postgres schema files. The vector column width is
// written as {{dimensions}} and the HNSW parameters as {{hnsw_m}} and
// {{hnsw_ef_construction}}; they are substituted at startup.
//
//go:embed postgres/*.sql
var Postgres embed.FS
