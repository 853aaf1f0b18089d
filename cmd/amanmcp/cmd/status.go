package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/semgraph/indexer/internal/config"
	"github.com/semgraph/indexer/internal/state"
	"github.com/semgraph/indexer/internal/ui"
)

func newStatusCmd() *cobra.Command {
	var (
		jsonOutput bool
		collection string
	)

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show index health and status",
		Long: `Display information about the current index including:
  - Number of indexed files and chunks
  - Last indexing time
  - Storage sizes (state, payloads, vectors)
  - Embedder status (type, model, availability)`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(cmd.Context(), cmd, jsonOutput, collection)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	cmd.Flags().StringVar(&collection, "collection", "default", "Vector store collection name")

	return cmd
}

func runStatus(ctx context.Context, cmd *cobra.Command, jsonOutput bool, collection string) error {
	root, err := config.FindProjectRoot(".")
	if err != nil {
		cwd, _ := os.Getwd()
		root = cwd
	}

	dataDir := filepath.Join(root, ".amanmcp")

	statePath := filepath.Join(dataDir, collection+".state.json")
	if !fileExists(statePath) {
		return fmt.Errorf("no index found in %s\nRun 'amanmcp index' to create one", root)
	}

	info, err := collectStatus(ctx, root, dataDir, collection)
	if err != nil {
		return fmt.Errorf("failed to collect status: %w", err)
	}

	noColor := ui.DetectNoColor()
	renderer := ui.NewStatusRenderer(cmd.OutOrStdout(), noColor)

	if jsonOutput {
		return renderer.RenderJSON(info)
	}

	return renderer.Render(info)
}

func collectStatus(_ context.Context, root, dataDir, collection string) (ui.StatusInfo, error) {
	info := ui.StatusInfo{
		ProjectName: filepath.Base(root),
	}

	stateStore := state.NewStore(dataDir, collection)
	st, _, err := stateStore.Load()
	if err != nil {
		return info, fmt.Errorf("load state: %w", err)
	}

	info.TotalFiles = len(st.Files)
	var chunkCount int
	var lastIndexed time.Time
	for _, fs := range st.Files {
		chunkCount += len(fs.ChunkIDs)
		if fs.LastIndexed.After(lastIndexed) {
			lastIndexed = fs.LastIndexed
		}
	}
	info.TotalChunks = chunkCount
	info.LastIndexed = lastIndexed

	info.MetadataSize = getFileSize(filepath.Join(dataDir, collection+".state.json"))

	collectionDir := filepath.Join(dataDir, "collections", collection)
	info.PayloadSize = getFileSize(filepath.Join(collectionDir, "payloads.db"))

	vectorPath := filepath.Join(collectionDir, "vectors.hnsw")
	info.VectorSize = getFileSize(vectorPath)

	info.TotalSize = info.MetadataSize + info.PayloadSize + info.VectorSize

	cfg, err := config.Load(root)
	if err != nil {
		cfg = config.NewConfig()
	}

	info.EmbedderType = cfg.Embeddings.Provider
	if info.EmbedderType == "" {
		info.EmbedderType = "ollama" // Default: embed.ParseProvider maps an empty provider to Ollama
	}

	info.EmbedderStatus = "ready"
	info.EmbedderModel = cfg.Embeddings.Model
	if info.EmbedderModel == "" {
		info.EmbedderModel = "qwen3-embedding:0.6b" // Default for Ollama (embed.DefaultOllamaModel)
	}

	info.WatcherStatus = "n/a"

	return info, nil
}

// getFileSize returns the size of a file in bytes.
func getFileSize(path string) int64 {
	info, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return info.Size()
}

// getDirSize returns the total size of all files in a directory.
func getDirSize(path string) int64 {
	var size int64

	_ = filepath.Walk(path, func(_ string, info os.FileInfo, err error) error {
		if err != nil {
			return nil // Skip errors
		}
		if !info.IsDir() {
			size += info.Size()
		}
		return nil
	})

	return size
}
