package indexer

import (
	"context"
	"log/slog"

	"github.com/semgraph/indexer/internal/watcher"
)

// eventSource is the subset of watcher.Watcher the incremental consumer
// needs - a batched event channel plus an error channel, matching
// watcher.HybridWatcher's Events()/Errors() shape.
type eventSource interface {
	Events() <-chan []watcher.FileEvent
	Errors() <-chan error
}

// Watch consumes a running watcher's debounced event batches and reindexes
// one file at a time through Index(ModeSingleFile) / Index(ModeDelete). It
// blocks until ctx is cancelled or the watcher's event channel closes.
//
// A gitignore/config-change event triggers a full reindex instead of a
// single-file update, since those can change which files belong in the
// collection at all. Directory events are skipped.
func (ix *Indexer) Watch(ctx context.Context, w eventSource, projectRoot, collection string) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case err, ok := <-w.Errors():
			if !ok {
				return nil
			}
			slog.Warn("watcher error", "error", err)

		case batch, ok := <-w.Events():
			if !ok {
				return nil
			}
			ix.handleEventBatch(ctx, batch, projectRoot, collection)
		}
	}
}

func (ix *Indexer) handleEventBatch(ctx context.Context, batch []watcher.FileEvent, projectRoot, collection string) {
	for _, ev := range batch {
		if ev.IsDir {
			continue
		}

		switch ev.Operation {
		case watcher.OpGitignoreChange, watcher.OpConfigChange:
			if _, err := ix.Index(ctx, Options{
				ProjectRoot: projectRoot,
				Collection:  collection,
				Mode:        ModeFull,
				Clearing:    ClearNone,
			}); err != nil {
				slog.Warn("full reindex after gitignore/config change failed", "error", err, "path", ev.Path)
			}

		case watcher.OpDelete:
			if _, err := ix.Index(ctx, Options{
				ProjectRoot: projectRoot,
				Collection:  collection,
				Mode:        ModeDelete,
				Path:        ev.Path,
			}); err != nil {
				slog.Warn("delete reindex failed", "error", err, "path", ev.Path)
			}

		case watcher.OpRename:
			if ev.OldPath != "" {
				if _, err := ix.Index(ctx, Options{
					ProjectRoot: projectRoot,
					Collection:  collection,
					Mode:        ModeDelete,
					Path:        ev.OldPath,
				}); err != nil {
					slog.Warn("delete old path after rename failed", "error", err, "path", ev.OldPath)
				}
			}
			if _, err := ix.Index(ctx, Options{
				ProjectRoot: projectRoot,
				Collection:  collection,
				Mode:        ModeSingleFile,
				Path:        ev.Path,
			}); err != nil {
				slog.Warn("single-file reindex after rename failed", "error", err, "path", ev.Path)
			}

		case watcher.OpCreate, watcher.OpModify:
			if _, err := ix.Index(ctx, Options{
				ProjectRoot: projectRoot,
				Collection:  collection,
				Mode:        ModeSingleFile,
				Path:        ev.Path,
			}); err != nil {
				slog.Warn("single-file reindex failed", "error", err, "path", ev.Path)
			}
		}
	}
}
