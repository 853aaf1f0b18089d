package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/semgraph/indexer/internal/chunk"
	"github.com/semgraph/indexer/internal/config"
	"github.com/semgraph/indexer/internal/embed"
	"github.com/semgraph/indexer/internal/indexer"
	"github.com/semgraph/indexer/internal/logging"
	"github.com/semgraph/indexer/internal/watcher"
)

func newWatchCmd() *cobra.Command {
	var collection string

	cmd := &cobra.Command{
		Use:   "watch [path]",
		Short: "Index a directory once, then keep it up to date as files change",
		Long: `Runs an initial full index, then watches the project for file
creates, modifications, deletes, and renames, reindexing each changed
file incrementally rather than rescanning the whole project.

A .gitignore or .amanmcp.yaml change triggers a full reindex, since either
can change which files belong in the collection.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			path := "."
			if len(args) > 0 {
				path = args[0]
			}
			return runWatch(ctx, cmd, path, collection)
		},
	}

	cmd.Flags().StringVar(&collection, "collection", "default", "Vector store collection name")

	return cmd
}

func runWatch(ctx context.Context, cmd *cobra.Command, path, collection string) error {
	logCfg := logging.DefaultConfig()
	logCfg.WriteToStderr = false
	if logger, cleanup, err := logging.Setup(logCfg); err == nil {
		slog.SetDefault(logger)
		defer cleanup()
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}
	info, err := os.Stat(absPath)
	if err != nil {
		return fmt.Errorf("failed to access path: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("path is not a directory: %s", absPath)
	}

	root, err := config.FindProjectRoot(absPath)
	if err != nil {
		root = absPath
	}

	cfg, err := config.LoadWithCallArgs(root, nil)
	if err != nil {
		cfg = config.NewConfig()
	}

	dataDir := filepath.Join(root, ".amanmcp")
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	provider := embed.ParseProvider(cfg.Embeddings.Provider)
	embedCtx, embedCancel := context.WithTimeout(ctx, 15*time.Second)
	baseEmbedder, err := embed.NewEmbedder(embedCtx, provider, cfg.Embeddings.Model)
	embedCancel()
	if err != nil {
		return fmt.Errorf("embedder initialization failed: %w", err)
	}

	const maxEmbedTokens = 8192
	const costPerToken = 0.0
	embedder := embed.NewAccountingEmbedder(baseEmbedder, maxEmbedTokens, costPerToken)
	defer func() { _ = embedder.Close() }()

	languages := chunk.DefaultRegistry()
	parsers := chunk.NewEntityParserRegistry(languages, cfg.Indexer.WindowLines)
	defer parsers.Close()

	ix := indexer.New(cfg, parsers, embedder, dataDir)
	defer func() { _ = ix.Close() }()

	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Running initial index of %s...\n", root)
	report, err := ix.Index(ctx, indexer.Options{
		ProjectRoot: root,
		Collection:  collection,
		Mode:        indexer.ModeFull,
		Clearing:    indexer.ClearNone,
	})
	if err != nil {
		return fmt.Errorf("initial index failed: %w", err)
	}
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Indexed %d files, %d chunks. Watching for changes...\n",
		report.FilesAdded+report.FilesModified+report.FilesUnchanged, report.ChunksUpserted)

	watchOpts := watcher.DefaultOptions()
	debounce := cfg.Indexer.DebounceSeconds
	if debounce > 0 {
		watchOpts.DebounceWindow = time.Duration(debounce) * time.Second
	} else if d, err := time.ParseDuration(cfg.Performance.WatchDebounce); err == nil && d > 0 {
		watchOpts.DebounceWindow = d
	}

	w, err := watcher.NewHybridWatcher(watchOpts)
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer func() { _ = w.Stop() }()

	go func() {
		if err := w.Start(ctx, root); err != nil && ctx.Err() == nil {
			slog.Error("watcher stopped unexpectedly", "error", err)
		}
	}()

	return ix.Watch(ctx, w, root, collection)
}
