// Package ragdex ingests documents into a vector index and answers
// semantic search over the indexed passages.
//
// A Client is built from a config.Config. It owns the storage backend
// (Postgres with pgvector, SQLite, Redis or Valkey), the embedding gateway
// chain and the background ingestion workers:
//
//	c, err := ragdex.Open(ctx, "config/local.yaml")
//	if err != nil { ... }
//	defer c.Close()
//	if err := c.Start(ctx); err != nil { ... }
//
//	acc, err := c.Ingest(ctx, ragdex.Upload{Name: "guide.md", Body: f})
//	st, err := c.Wait(ctx, acc.ContentHash)
//	hits, err := c.Search("late checkout").Scope("hotel-a").Limit(3).Do(ctx)
//
// The same Client serves the HTTP API (Handler), the MCP stdio tools
// (ServeMCP) and the inbox directory watcher (WatchInbox).
package ragdex
