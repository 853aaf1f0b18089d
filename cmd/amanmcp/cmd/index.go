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
	"github.com/semgraph/indexer/internal/ui"
)

func newIndexCmd() *cobra.Command {
	var (
		noTUI      bool
		force      bool
		preserve   bool
		backend    string
		collection string
	)

	cmd := &cobra.Command{
		Use:   "index [path]",
		Short: "Index a directory for semantic search",
		Long: `Index a directory: discover its files, parse each into entities and
relations, chunk the result into metadata/implementation/relation chunks,
embed the survivors after deduplication, and upsert into the vector store.

Backend Selection:
  (default)          Auto-detect: MLX on Apple Silicon, Ollama otherwise
  --backend=mlx      Use MLX (Apple Silicon, ~1.7x faster)
  --backend=ollama   Use Ollama (cross-platform)

Use --force to clear the entire collection and rebuild from scratch.
Use --preserve-manual to clear only automation-written chunks, keeping
anything a user added to the collection by hand.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			path := "."
			if len(args) > 0 {
				path = args[0]
			}

			if force && preserve {
				return fmt.Errorf("--force and --preserve-manual are mutually exclusive")
			}

			if backend != "" {
				os.Setenv("AMANMCP_EMBEDDER", backend)
			}

			clearing := indexer.ClearNone
			switch {
			case force:
				clearing = indexer.ClearAll
			case preserve:
				clearing = indexer.ClearPreserveManual
			}

			return runIndex(ctx, cmd, path, false, noTUI, clearing, collection)
		},
	}

	cmd.Flags().BoolVar(&noTUI, "no-tui", false, "Disable TUI mode, use plain text output")
	cmd.Flags().BoolVar(&force, "force", false, "Clear the entire collection and rebuild from scratch")
	cmd.Flags().BoolVar(&preserve, "preserve-manual", false, "Clear only automation-written chunks")
	cmd.Flags().StringVar(&backend, "backend", "", "Embedding backend: auto-detect (default), mlx, ollama, or static")
	cmd.Flags().StringVar(&collection, "collection", "default", "Vector store collection name")

	cmd.AddCommand(newIndexInfoCmd())

	return cmd
}

func runIndex(ctx context.Context, cmd *cobra.Command, path string, offline bool, noTUI bool, clearing indexer.ClearingPolicy, collection string) error {
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

	uiCfg := ui.NewConfig(cmd.OutOrStdout(), ui.WithForcePlain(noTUI), ui.WithProjectDir(root))
	renderer := ui.NewRenderer(uiCfg)
	if err := renderer.Start(ctx); err != nil {
		slog.Warn("failed to start progress renderer", slog.String("error", err.Error()))
	}
	defer func() { _ = renderer.Stop() }()

	cfg, err := config.LoadWithCallArgs(root, nil)
	if err != nil {
		cfg = config.NewConfig()
	}

	dataDir := filepath.Join(root, ".amanmcp")
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	renderer.UpdateProgress(ui.ProgressEvent{Stage: ui.StageScanning, Message: "Connecting to embedder..."})

	var baseEmbedder embed.Embedder
	var provider embed.ProviderType
	if offline {
		provider = "static"
		baseEmbedder = embed.NewStaticEmbedder768()
	} else {
		provider = embed.ParseProvider(cfg.Embeddings.Provider)
		embedCtx, embedCancel := context.WithTimeout(ctx, 15*time.Second)
		baseEmbedder, err = embed.NewEmbedder(embedCtx, provider, cfg.Embeddings.Model)
		embedCancel()
		if err != nil {
			return fmt.Errorf("embedder initialization failed: %w", err)
		}
	}

	const maxEmbedTokens = 8192
	const costPerToken = 0.0 // local embedders (MLX/Ollama) carry no per-token billing
	embedder := embed.NewAccountingEmbedder(baseEmbedder, maxEmbedTokens, costPerToken)
	defer func() { _ = embedder.Close() }()

	languages := chunk.DefaultRegistry()
	parsers := chunk.NewEntityParserRegistry(languages, cfg.Indexer.WindowLines)
	defer parsers.Close()

	ix := indexer.New(cfg, parsers, embedder, dataDir)
	defer func() { _ = ix.Close() }()

	renderer.UpdateProgress(ui.ProgressEvent{Stage: ui.StageScanning, Message: "Scanning project..."})

	start := time.Now()
	report, err := ix.Index(ctx, indexer.Options{
		ProjectRoot: root,
		Collection:  collection,
		Mode:        indexer.ModeFull,
		Clearing:    clearing,
	})
	if err != nil {
		return fmt.Errorf("indexing failed: %w", err)
	}

	renderer.Complete(ui.CompletionStats{
		Files:    report.FilesAdded + report.FilesModified + report.FilesUnchanged,
		Chunks:   report.ChunksUpserted,
		Duration: time.Since(start),
		Errors:   len(report.SyntaxErrors),
		Embedder: ui.EmbedderInfo{
			Backend:    string(provider),
			Model:      embedder.ModelName(),
			Dimensions: embedder.Dimensions(),
		},
	})

	_, _ = fmt.Fprintf(cmd.OutOrStdout(),
		"Indexed %d files (%d added, %d modified, %d unchanged, %d deleted): %d chunks upserted, %d deduped, %d orphan relations removed.\n",
		report.FilesAdded+report.FilesModified+report.FilesUnchanged, report.FilesAdded, report.FilesModified,
		report.FilesUnchanged, report.FilesDeleted, report.ChunksUpserted, report.ChunksDeduped, report.RelationsOrphaned)
	if len(report.SyntaxErrors) > 0 {
		_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "%d files had parse errors; see logs for detail.\n", len(report.SyntaxErrors))
	}

	return nil
}
