package retrieval

import (
	"path/filepath"
	"testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := OpenStore(filepath.Join(t.TempDir(), "index.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestStorePutOverwrites(t *testing.T) {
	store := newTestStore(t)

	if err := store.Put("inv.ord", "v1", 1, []float32{1, 0}); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := store.Put("inv.ord", "v2", 2, []float32{0, 1}); err != nil {
		t.Fatalf("put again: %v", err)
	}

	n, err := store.Count()
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 row after overwrite, got %d", n)
	}

	entries, err := store.Entries()
	if err != nil {
		t.Fatalf("entries: %v", err)
	}
	if entries[0].Source != "v2" {
		t.Errorf("overwrite did not replace source: %q", entries[0].Source)
	}
	if entries[0].Embedding[1] != 1 {
		t.Errorf("overwrite did not replace embedding: %v", entries[0].Embedding)
	}
}

func TestStorePutRejectsEmptyEmbedding(t *testing.T) {
	store := newTestStore(t)
	if err := store.Put("inv.ord", "x", 1, nil); err == nil {
		t.Fatal("expected error for empty embedding")
	}
}

func TestStoreMetaMissing(t *testing.T) {
	store := newTestStore(t)

	got, err := store.Meta("embedder")
	if err != nil {
		t.Fatalf("meta: %v", err)
	}
	if got != "" {
		t.Errorf("missing key should read as empty, got %q", got)
	}

	if err := store.SetMeta("embedder", "ollama:embeddinggemma"); err != nil {
		t.Fatalf("set meta: %v", err)
	}
	got, err = store.Meta("embedder")
	if err != nil {
		t.Fatalf("meta: %v", err)
	}
	if got != "ollama:embeddinggemma" {
		t.Errorf("unexpected meta value: %q", got)
	}
}

func TestEmbeddingBlobRoundTrip(t *testing.T) {
	vec := []float32{0.25, -1.5, 3}
	got := decodeEmbedding(encodeEmbedding(vec))
	if len(got) != len(vec) {
		t.Fatalf("expected %d values, got %d", len(vec), len(got))
	}
	for i := range vec {
		if got[i] != vec[i] {
			t.Errorf("value %d: expected %v, got %v", i, vec[i], got[i])
		}
	}

	if decodeEmbedding(nil) != nil {
		t.Error("empty blob should decode to nil")
	}
	if decodeEmbedding([]byte{1, 2, 3}) != nil {
		t.Error("truncated blob should decode to nil")
	}
}
