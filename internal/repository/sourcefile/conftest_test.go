package sourcefile

import (
	"context"
	"path"
	"strconv"
	"testing"
	"time"

	"github.com/kailas-cloud/ragdex/internal/db"
	domsf "github.com/kailas-cloud/ragdex/internal/domain/sourcefile"
	"github.com/kailas-cloud/ragdex/internal/repository/keyspace"
)

// memStore is a map-backed implementation of the consumer interface.
type memStore struct {
	hashes map[string]map[string]string
	kv     map[string][]byte

	hsetErr error
	// beforeSetNX runs before the claim, to simulate a concurrent uploader.
	beforeSetNX func(key string)
}

func newMemStore() *memStore {
	return &memStore{
		hashes: make(map[string]map[string]string),
		kv:     make(map[string][]byte),
	}
}

func (m *memStore) HSet(_ context.Context, key string, fields map[string]string) error {
	if m.hsetErr != nil {
		return m.hsetErr
	}
	h, ok := m.hashes[key]
	if !ok {
		h = make(map[string]string)
		m.hashes[key] = h
	}
	for k, v := range fields {
		h[k] = v
	}
	return nil
}

func (m *memStore) HGetAll(_ context.Context, key string) (map[string]string, error) {
	h, ok := m.hashes[key]
	if !ok {
		return nil, db.ErrKeyNotFound
	}
	return h, nil
}

func (m *memStore) HGetAllMulti(_ context.Context, keys []string) ([]map[string]string, error) {
	out := make([]map[string]string, len(keys))
	for i, k := range keys {
		out[i] = m.hashes[k]
	}
	return out, nil
}

func (m *memStore) Del(_ context.Context, keys ...string) error {
	for _, k := range keys {
		delete(m.hashes, k)
		delete(m.kv, k)
	}
	return nil
}

func (m *memStore) Exists(_ context.Context, key string) (bool, error) {
	_, h := m.hashes[key]
	_, v := m.kv[key]
	return h || v, nil
}

func (m *memStore) Scan(_ context.Context, pattern string) ([]string, error) {
	var keys []string
	for k := range m.hashes {
		if ok, _ := path.Match(pattern, k); ok {
			keys = append(keys, k)
		}
	}
	return keys, nil
}

func (m *memStore) Get(_ context.Context, key string) ([]byte, error) {
	v, ok := m.kv[key]
	if !ok {
		return nil, db.ErrKeyNotFound
	}
	return v, nil
}

func (m *memStore) SetNX(_ context.Context, key string, value []byte) (bool, error) {
	if m.beforeSetNX != nil {
		m.beforeSetNX(key)
	}
	if _, ok := m.kv[key]; ok {
		return false, nil
	}
	m.kv[key] = value
	return true, nil
}

func (m *memStore) IncrBy(_ context.Context, key string, val int64) (int64, error) {
	n, _ := strconv.ParseInt(string(m.kv[key]), 10, 64)
	n += val
	m.kv[key] = []byte(strconv.FormatInt(n, 10))
	return n, nil
}

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestRepo(t *testing.T) (*Repo, *memStore) {
	t.Helper()
	ms := newMemStore()
	return New(ms, keyspace.New("ragdex:")), ms
}

func testHash(b byte) string {
	const hex = "0123456789abcdef"
	out := make([]byte, 64)
	for i := range out {
		out[i] = hex[int(b)%16]
	}
	return string(out)
}

func newFile(t *testing.T, name string, hash string, scope string) domsf.SourceFile {
	t.Helper()
	f, err := domsf.New(name, hash, "owner-1", scope, testNow)
	if err != nil {
		t.Fatalf("sourcefile.New: %v", err)
	}
	return f
}
