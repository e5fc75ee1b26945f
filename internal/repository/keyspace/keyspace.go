// Package keyspace names every Redis key ragdex writes.
//
//	<prefix>seq:file                 INCR counter for source file ids
//	<prefix>seq:passage              INCR counter for passage ids
//	<prefix>file:<id>                source file hash
//	<prefix>file_hash:<sha256>       id of the file owning the hash (SETNX)
//	<prefix>file_passages:<id>       set of passage ids of a file
//	<prefix>passage:<id>             passage hash, indexed by <prefix>passages:idx
//	<prefix>emb_cache:<model>:<sha>  cached ingestion embedding of a text
package keyspace

import (
	"strconv"
	"strings"
)

// UnscopedTag stands in for the empty scope in TAG fields, which cannot hold "".
const UnscopedTag = "__unscoped__"

// Keyspace builds keys under a common prefix.
type Keyspace struct {
	prefix string
}

// New creates a keyspace. The prefix usually ends with ':'.
func New(prefix string) Keyspace {
	return Keyspace{prefix: prefix}
}

// FileSeq is the source file id counter.
func (k Keyspace) FileSeq() string { return k.prefix + "seq:file" }

// PassageSeq is the passage id counter.
func (k Keyspace) PassageSeq() string { return k.prefix + "seq:passage" }

// File is the source file hash key.
func (k Keyspace) File(id int64) string { return k.prefix + "file:" + strconv.FormatInt(id, 10) }

// FilePattern matches every source file key for SCAN.
func (k Keyspace) FilePattern() string { return k.prefix + "file:*" }

// FileHash maps a content hash to its owner.
func (k Keyspace) FileHash(hash string) string { return k.prefix + "file_hash:" + hash }

// FilePassages is the set of passage ids belonging to a file.
func (k Keyspace) FilePassages(id int64) string {
	return k.prefix + "file_passages:" + strconv.FormatInt(id, 10)
}

// PassagePrefix is the key prefix covered by the passage index.
func (k Keyspace) PassagePrefix() string { return k.prefix + "passage:" }

// Passage is the passage hash key.
func (k Keyspace) Passage(id int64) string { return k.PassagePrefix() + strconv.FormatInt(id, 10) }

// PassageIndex is the FT index over passages.
func (k Keyspace) PassageIndex() string { return k.prefix + "passages:idx" }

// EmbeddingCache is the cache key of a text embedded by model. textHash is
// the hex sha256 of the text.
func (k Keyspace) EmbeddingCache(model, textHash string) string {
	return k.prefix + "emb_cache:" + model + ":" + textHash
}

// EmbeddingCachePattern matches every cached embedding of model for SCAN.
func (k Keyspace) EmbeddingCachePattern(model string) string {
	return k.prefix + "emb_cache:" + model + ":*"
}

// IDFromKey parses the trailing numeric id of a file or passage key.
func IDFromKey(key string) (int64, bool) {
	i := strings.LastIndexByte(key, ':')
	id, err := strconv.ParseInt(key[i+1:], 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

// ScopeTag maps a scope id to its TAG value.
func ScopeTag(scopeID string) string {
	if scopeID == "" {
		return UnscopedTag
	}
	return scopeID
}

// ActiveTag maps the active flag to its TAG value.
func ActiveTag(active bool) string {
	if active {
		return "1"
	}
	return "0"
}
