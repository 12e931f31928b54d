// Package retrieval finds ORD examples similar to a user request and formats
// them as generation context. Examples are plain .ord files in a directory;
// their embeddings are cached in a SQLite index that is rebuilt incrementally
// as files appear, change, or disappear. Retrieval is best-effort context for
// the generator, so callers treat errors as "no examples", not as failures.
package retrieval

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"
)

const (
	// defaultTopK is the number of examples included when the caller does
	// not say how many it wants.
	defaultTopK = 3

	// embedConcurrency bounds parallel embedding calls during a rebuild so
	// a large corpus does not flood a local Ollama server.
	embedConcurrency = 4

	metaEmbedder = "embedder"
)

// Example is one retrieved ORD source file.
type Example struct {
	Name   string
	Source string
	Score  float64
}

// ContextText formats retrieved examples for inclusion in a generation
// prompt. Returns "" for no examples.
func ContextText(examples []Example) string {
	if len(examples) == 0 {
		return ""
	}
	blocks := make([]string, 0, len(examples))
	for _, e := range examples {
		blocks = append(blocks, fmt.Sprintf("**%s**:\n```ord\n%s\n```", e.Name, strings.TrimRight(e.Source, "\n")))
	}
	return strings.Join(blocks, "\n\n---\n\n")
}

// Index embeds the .ord files under one directory and answers similarity
// queries against them.
type Index struct {
	store    *Store
	embedder Embedder
	dir      string

	mu sync.Mutex // serializes rebuilds (CLI, serve startup, watcher)
}

// NewIndex creates an index over dir backed by the given store and embedder.
func NewIndex(store *Store, embedder Embedder, dir string) *Index {
	return &Index{store: store, embedder: embedder, dir: dir}
}

// RebuildStats reports what one Rebuild pass did.
type RebuildStats struct {
	Embedded int // files embedded this pass (new or changed)
	Removed  int // stale rows deleted
	Total    int // rows in the index afterwards
}

// Rebuild scans the examples directory and brings the index up to date:
// new and modified files are re-embedded, rows for deleted files are
// dropped, and the whole index is discarded first if the embedder changed
// since it was built.
func (ix *Index) Rebuild(ctx context.Context) (RebuildStats, error) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	var stats RebuildStats

	prev, err := ix.store.Meta(metaEmbedder)
	if err != nil {
		return stats, err
	}
	if prev != "" && prev != ix.embedder.Name() {
		if err := ix.store.Clear(); err != nil {
			return stats, err
		}
	}
	if err := ix.store.SetMeta(metaEmbedder, ix.embedder.Name()); err != nil {
		return stats, err
	}

	onDisk, err := ix.scan()
	if err != nil {
		return stats, err
	}
	stored, err := ix.store.Mtimes()
	if err != nil {
		return stats, err
	}

	for name := range stored {
		if _, ok := onDisk[name]; ok {
			continue
		}
		if err := ix.store.Remove(name); err != nil {
			return stats, err
		}
		stats.Removed++
	}

	var stale []string
	for name, mtime := range onDisk {
		if stored[name] != mtime {
			stale = append(stale, name)
		}
	}
	sort.Strings(stale)

	eg, ectx := errgroup.WithContext(ctx)
	eg.SetLimit(embedConcurrency)
	for _, name := range stale {
		name := name
		eg.Go(func() error {
			source, err := os.ReadFile(filepath.Join(ix.dir, name))
			if err != nil {
				return fmt.Errorf("read %s: %w", name, err)
			}
			vec, err := ix.embedder.Embed(ectx, string(source))
			if err != nil {
				return fmt.Errorf("embed %s: %w", name, err)
			}
			return ix.store.Put(name, string(source), onDisk[name], vec)
		})
	}
	if err := eg.Wait(); err != nil {
		return stats, err
	}
	stats.Embedded = len(stale)

	stats.Total, err = ix.store.Count()
	if err != nil {
		return stats, err
	}
	return stats, nil
}

// scan lists the .ord files under the examples dir with their mtimes.
func (ix *Index) scan() (map[string]int64, error) {
	entries, err := os.ReadDir(ix.dir)
	if err != nil {
		return nil, fmt.Errorf("read examples dir: %w", err)
	}
	out := make(map[string]int64)
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".ord") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		out[entry.Name()] = info.ModTime().UnixNano()
	}
	return out, nil
}

// TopK embeds the query and returns the k most similar indexed examples,
// best first. k <= 0 uses the default. An empty index returns no examples
// and no error.
func (ix *Index) TopK(ctx context.Context, query string, k int) ([]Example, error) {
	if k <= 0 {
		k = defaultTopK
	}

	queryVec, err := ix.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	entries, err := ix.store.Entries()
	if err != nil {
		return nil, err
	}

	results := make([]Example, 0, len(entries))
	for _, e := range entries {
		score, err := CosineSimilarity(queryVec, e.Embedding)
		if err != nil {
			// Dimension mismatch from an older index; skip the row.
			continue
		}
		results = append(results, Example{Name: e.Name, Source: e.Source, Score: score})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Name < results[j].Name
	})
	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

// ContextFor retrieves the top k examples for query and formats them as
// prompt context.
func (ix *Index) ContextFor(ctx context.Context, query string, k int) (string, error) {
	examples, err := ix.TopK(ctx, query, k)
	if err != nil {
		return "", err
	}
	return ContextText(examples), nil
}
