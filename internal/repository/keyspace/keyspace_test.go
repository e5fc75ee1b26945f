package keyspace

import "testing"

func TestKeys(t *testing.T) {
	k := New("ragdex:")

	tests := map[string]string{
		k.File(7):         "ragdex:file:7",
		k.FileHash("ab"):  "ragdex:file_hash:ab",
		k.FilePassages(7): "ragdex:file_passages:7",
		k.Passage(12):     "ragdex:passage:12",
		k.PassageIndex():  "ragdex:passages:idx",
		k.FileSeq():       "ragdex:seq:file",
		k.FilePattern():   "ragdex:file:*",
		k.PassagePrefix(): "ragdex:passage:",
		k.PassageSeq():    "ragdex:seq:passage",

		k.EmbeddingCache("text-embedding-3-small", "ff"): "ragdex:emb_cache:text-embedding-3-small:ff",
		k.EmbeddingCachePattern("m"):                     "ragdex:emb_cache:m:*",
	}
	for got, want := range tests {
		if got != want {
			t.Errorf("got %q, want %q", got, want)
		}
	}
}

func TestIDFromKey(t *testing.T) {
	id, ok := IDFromKey("ragdex:passage:42")
	if !ok || id != 42 {
		t.Errorf("IDFromKey = %d, %v", id, ok)
	}
	if _, ok := IDFromKey("ragdex:passage:abc"); ok {
		t.Error("expected failure for non-numeric id")
	}
	if id, ok := IDFromKey("9"); !ok || id != 9 {
		t.Errorf("bare id: %d, %v", id, ok)
	}
}

func TestTags(t *testing.T) {
	if ScopeTag("") != UnscopedTag {
		t.Error("empty scope should map to the unscoped tag")
	}
	if ScopeTag("17") != "17" {
		t.Error("scope id should pass through")
	}
	if ActiveTag(true) != "1" || ActiveTag(false) != "0" {
		t.Error("unexpected active tags")
	}
}
