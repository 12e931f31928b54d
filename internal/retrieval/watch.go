package retrieval

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

const (
	// watchDebounce batches rapid saves into one rebuild.
	watchDebounce = 500 * time.Millisecond
	watchTick     = 100 * time.Millisecond
)

// Watch re-indexes when .ord files under the examples directory change.
// It blocks until ctx is cancelled. logf may be nil.
func (ix *Index) Watch(ctx context.Context, logf func(format string, args ...any)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(ix.dir); err != nil {
		return fmt.Errorf("watch %s: %w", ix.dir, err)
	}
	say(logf, "watching %s for example changes", ix.dir)

	ticker := time.NewTicker(watchTick)
	defer ticker.Stop()

	var dirty bool
	var lastEvent time.Time

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !relevantEvent(event) {
				continue
			}
			say(logf, "example changed: %s", filepath.Base(event.Name))
			dirty = true
			lastEvent = time.Now()

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			say(logf, "watch error: %v", err)

		case <-ticker.C:
			if !dirty || time.Since(lastEvent) < watchDebounce {
				continue
			}
			dirty = false
			stats, err := ix.Rebuild(ctx)
			if err != nil {
				say(logf, "reindex failed: %v", err)
				continue
			}
			say(logf, "reindexed: %d embedded, %d removed, %d total", stats.Embedded, stats.Removed, stats.Total)
		}
	}
}

// relevantEvent reports whether a filesystem event should trigger a rebuild.
// Only .ord content changes matter; chmod noise is ignored.
func relevantEvent(event fsnotify.Event) bool {
	if !strings.HasSuffix(event.Name, ".ord") {
		return false
	}
	return event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) != 0
}

func say(logf func(format string, args ...any), format string, args ...any) {
	if logf != nil {
		logf(format, args...)
	}
}
