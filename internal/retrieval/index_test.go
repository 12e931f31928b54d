package retrieval

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

// --- Mocks ---

// fakeEmbedder returns canned vectors keyed by exact text, with a fixed
// fallback for anything unknown.
type fakeEmbedder struct {
	name string
	vecs map[string][]float32

	mu    sync.Mutex
	calls int
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if vec, ok := f.vecs[text]; ok {
		return vec, nil
	}
	return []float32{1, 0, 0}, nil
}

func (f *fakeEmbedder) Name() string { return f.name }

func newCorpusEmbedder(name string) *fakeEmbedder {
	return &fakeEmbedder{
		name: name,
		vecs: map[string][]float32{
			"cell Inv:\n":    {1, 0, 0},
			"cell Nand:\n":   {0, 1, 0},
			"cell Ring:\n":   {0, 0, 1},
			"an inverter":    {0.9, 0.1, 0},
			"a nand gate":    {0.1, 0.9, 0},
			"an oscillator":  {0, 0.2, 0.9},
			"cell DiffAmp:\n": {0.5, 0.5, 0},
		},
	}
}

func newTestIndex(t *testing.T, emb Embedder) (*Index, *Store, string) {
	t.Helper()
	dir := t.TempDir()
	store, err := OpenStore(filepath.Join(t.TempDir(), "index.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return NewIndex(store, emb, dir), store, dir
}

func writeExample(t *testing.T, dir, name, source string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(source), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func TestRebuildAndTopK(t *testing.T) {
	emb := newCorpusEmbedder("fake:v1")
	ix, _, dir := newTestIndex(t, emb)
	writeExample(t, dir, "inverter.ord", "cell Inv:\n")
	writeExample(t, dir, "nand.ord", "cell Nand:\n")
	writeExample(t, dir, "ring.ord", "cell Ring:\n")

	stats, err := ix.Rebuild(context.Background())
	if err != nil {
		t.Fatalf("rebuild: %v", err)
	}
	if stats.Embedded != 3 || stats.Removed != 0 || stats.Total != 3 {
		t.Errorf("unexpected stats: %+v", stats)
	}

	got, err := ix.TopK(context.Background(), "an inverter", 2)
	if err != nil {
		t.Fatalf("topk: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 results, got %d", len(got))
	}
	if got[0].Name != "inverter.ord" {
		t.Errorf("expected inverter.ord first, got %s", got[0].Name)
	}
	if got[0].Score <= got[1].Score {
		t.Errorf("results not ordered by score: %v then %v", got[0].Score, got[1].Score)
	}
	if got[0].Source != "cell Inv:\n" {
		t.Errorf("source not preserved: %q", got[0].Source)
	}
}

func TestRebuildIncremental(t *testing.T) {
	emb := newCorpusEmbedder("fake:v1")
	ix, _, dir := newTestIndex(t, emb)
	writeExample(t, dir, "inverter.ord", "cell Inv:\n")
	writeExample(t, dir, "nand.ord", "cell Nand:\n")

	if _, err := ix.Rebuild(context.Background()); err != nil {
		t.Fatalf("first rebuild: %v", err)
	}

	stats, err := ix.Rebuild(context.Background())
	if err != nil {
		t.Fatalf("second rebuild: %v", err)
	}
	if stats.Embedded != 0 {
		t.Errorf("unchanged corpus re-embedded %d files", stats.Embedded)
	}

	// Touch one file with a guaranteed-new mtime.
	path := filepath.Join(dir, "nand.ord")
	writeExample(t, dir, "nand.ord", "cell Nand:\n")
	future := time.Now().Add(2 * time.Second)
	if err := os.Chtimes(path, future, future); err != nil {
		t.Fatalf("chtimes: %v", err)
	}

	stats, err = ix.Rebuild(context.Background())
	if err != nil {
		t.Fatalf("third rebuild: %v", err)
	}
	if stats.Embedded != 1 {
		t.Errorf("expected 1 re-embedded file, got %d", stats.Embedded)
	}
}

func TestRebuildRemovesDeleted(t *testing.T) {
	emb := newCorpusEmbedder("fake:v1")
	ix, _, dir := newTestIndex(t, emb)
	writeExample(t, dir, "inverter.ord", "cell Inv:\n")
	writeExample(t, dir, "ring.ord", "cell Ring:\n")

	if _, err := ix.Rebuild(context.Background()); err != nil {
		t.Fatalf("rebuild: %v", err)
	}
	if err := os.Remove(filepath.Join(dir, "ring.ord")); err != nil {
		t.Fatalf("remove: %v", err)
	}

	stats, err := ix.Rebuild(context.Background())
	if err != nil {
		t.Fatalf("rebuild after delete: %v", err)
	}
	if stats.Removed != 1 || stats.Total != 1 {
		t.Errorf("unexpected stats after delete: %+v", stats)
	}

	got, err := ix.TopK(context.Background(), "an oscillator", 5)
	if err != nil {
		t.Fatalf("topk: %v", err)
	}
	for _, e := range got {
		if e.Name == "ring.ord" {
			t.Errorf("deleted example still retrieved")
		}
	}
}

func TestRebuildEmbedderChange(t *testing.T) {
	dir := t.TempDir()
	storePath := filepath.Join(t.TempDir(), "index.db")
	store, err := OpenStore(storePath)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	writeExample(t, dir, "inverter.ord", "cell Inv:\n")
	writeExample(t, dir, "nand.ord", "cell Nand:\n")

	ix := NewIndex(store, newCorpusEmbedder("fake:v1"), dir)
	if _, err := ix.Rebuild(context.Background()); err != nil {
		t.Fatalf("rebuild v1: %v", err)
	}

	// Same store, different embedder: everything must be re-embedded.
	ix2 := NewIndex(store, newCorpusEmbedder("fake:v2"), dir)
	stats, err := ix2.Rebuild(context.Background())
	if err != nil {
		t.Fatalf("rebuild v2: %v", err)
	}
	if stats.Embedded != 2 {
		t.Errorf("embedder change should re-embed all files, embedded %d", stats.Embedded)
	}
}

func TestTopKDefaultsK(t *testing.T) {
	emb := newCorpusEmbedder("fake:v1")
	ix, _, dir := newTestIndex(t, emb)
	writeExample(t, dir, "inverter.ord", "cell Inv:\n")
	writeExample(t, dir, "nand.ord", "cell Nand:\n")
	writeExample(t, dir, "ring.ord", "cell Ring:\n")
	writeExample(t, dir, "diffamp.ord", "cell DiffAmp:\n")

	if _, err := ix.Rebuild(context.Background()); err != nil {
		t.Fatalf("rebuild: %v", err)
	}

	got, err := ix.TopK(context.Background(), "an inverter", 0)
	if err != nil {
		t.Fatalf("topk: %v", err)
	}
	if len(got) != defaultTopK {
		t.Errorf("expected %d results for k=0, got %d", defaultTopK, len(got))
	}
}

func TestTopKEmptyIndex(t *testing.T) {
	emb := newCorpusEmbedder("fake:v1")
	ix, _, _ := newTestIndex(t, emb)

	got, err := ix.TopK(context.Background(), "anything", 3)
	if err != nil {
		t.Fatalf("topk on empty index: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected no results, got %d", len(got))
	}
}

func TestTopKSkipsDimensionMismatch(t *testing.T) {
	emb := newCorpusEmbedder("fake:v1")
	ix, store, dir := newTestIndex(t, emb)
	writeExample(t, dir, "inverter.ord", "cell Inv:\n")
	if _, err := ix.Rebuild(context.Background()); err != nil {
		t.Fatalf("rebuild: %v", err)
	}

	// A row from an older index with a different dimensionality.
	if err := store.Put("stale.ord", "cell Old:", 1, []float32{1, 0}); err != nil {
		t.Fatalf("put: %v", err)
	}

	got, err := ix.TopK(context.Background(), "an inverter", 5)
	if err != nil {
		t.Fatalf("topk: %v", err)
	}
	for _, e := range got {
		if e.Name == "stale.ord" {
			t.Errorf("mismatched-dimension row should be skipped")
		}
	}
	if len(got) != 1 {
		t.Errorf("expected 1 result, got %d", len(got))
	}
}

func TestContextFor(t *testing.T) {
	emb := newCorpusEmbedder("fake:v1")
	ix, _, dir := newTestIndex(t, emb)
	writeExample(t, dir, "inverter.ord", "cell Inv:\n")
	if _, err := ix.Rebuild(context.Background()); err != nil {
		t.Fatalf("rebuild: %v", err)
	}

	text, err := ix.ContextFor(context.Background(), "an inverter", 3)
	if err != nil {
		t.Fatalf("contextfor: %v", err)
	}
	if !strings.Contains(text, "**inverter.ord**:") {
		t.Errorf("expected example header, got: %q", text)
	}
	if !strings.Contains(text, "```ord\ncell Inv:\n```") {
		t.Errorf("expected fenced source, got: %q", text)
	}
}

func TestContextText(t *testing.T) {
	if got := ContextText(nil); got != "" {
		t.Errorf("expected empty context for no examples, got %q", got)
	}

	got := ContextText([]Example{
		{Name: "inverter.ord", Source: "cell Inv:\n"},
		{Name: "nand.ord", Source: "cell Nand:\n"},
	})
	if !strings.Contains(got, "**inverter.ord**:") || !strings.Contains(got, "**nand.ord**:") {
		t.Errorf("expected both example headers, got: %q", got)
	}
	if !strings.Contains(got, "\n\n---\n\n") {
		t.Errorf("expected separator between examples, got: %q", got)
	}
	if strings.Contains(got, "cell Inv:\n\n```") {
		t.Errorf("trailing newline should be trimmed inside fence: %q", got)
	}
}
