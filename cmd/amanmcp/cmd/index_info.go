package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/semgraph/indexer/internal/config"
	"github.com/semgraph/indexer/internal/embed"
	"github.com/semgraph/indexer/internal/state"
	"github.com/semgraph/indexer/internal/vectorstore"
)

func newIndexInfoCmd() *cobra.Command {
	var (
		jsonOutput bool
		collection string
	)

	cmd := &cobra.Command{
		Use:   "info [path]",
		Short: "Show collection configuration and statistics",
		Long: `Display detailed information about an indexed collection: embedding
model, dimensions, vector count, and file tracking state.

This command helps you:
- Check which model the current collection uses
- Debug dimension mismatch errors
- Verify the collection was built correctly after a reindex
- Compare collection state across projects`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "."
			if len(args) > 0 {
				path = args[0]
			}

			return runIndexInfo(cmd.Context(), cmd, path, collection, jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")
	cmd.Flags().StringVar(&collection, "collection", "default", "Vector store collection name")

	return cmd
}

// indexInfo summarizes a collection's state for the `index info` command.
type indexInfo struct {
	Location          string `json:"location"`
	ProjectRoot       string `json:"project"`
	Collection        string `json:"collection"`
	FileCount         int    `json:"file_count"`
	VectorCount       int    `json:"vector_count"`
	CurrentModel      string `json:"current_model"`
	CurrentBackend    string `json:"current_backend"`
	CurrentDimensions int    `json:"current_dimensions"`
}

func runIndexInfo(ctx context.Context, cmd *cobra.Command, path, collection string, jsonOutput bool) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}

	root, err := config.FindProjectRoot(absPath)
	if err != nil {
		root = absPath
	}

	dataDir := filepath.Join(root, ".amanmcp")
	statePath := filepath.Join(dataDir, collection+".state.json")
	if _, err := os.Stat(statePath); os.IsNotExist(err) {
		return fmt.Errorf("no index found at %s\nRun 'amanmcp index %s' to create one", dataDir, path)
	}

	stateStore := state.NewStore(dataDir, collection)
	st, _, err := stateStore.Load()
	if err != nil {
		return fmt.Errorf("failed to load collection state: %w", err)
	}

	cfg, err := config.Load(root)
	if err != nil {
		cfg = config.NewConfig()
	}
	embed.SetMLXConfig(embed.MLXServerConfig{
		Endpoint: cfg.Embeddings.MLXEndpoint,
		Model:    cfg.Embeddings.MLXModel,
	})

	info := indexInfo{
		Location:    dataDir,
		ProjectRoot: root,
		Collection:  collection,
		FileCount:   len(st.Files),
	}

	provider := embed.ParseProvider(cfg.Embeddings.Provider)
	if embedder, embedErr := embed.NewEmbedder(ctx, provider, cfg.Embeddings.Model); embedErr == nil {
		info.CurrentModel = embedder.ModelName()
		info.CurrentBackend = string(provider)
		info.CurrentDimensions = embedder.Dimensions()

		manager := vectorstore.NewManager(filepath.Join(dataDir, "collections"))
		if coll, collErr := manager.EnsureCollection(ctx, collection, embedder.Dimensions()); collErr == nil {
			info.VectorCount = coll.Count()
		}
		_ = manager.Close()
		_ = embedder.Close()
	}

	if jsonOutput {
		return outputIndexInfoJSON(cmd, info)
	}
	return outputIndexInfoHuman(cmd, info)
}

func outputIndexInfoJSON(cmd *cobra.Command, info indexInfo) error {
	encoder := json.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent("", "  ")
	return encoder.Encode(info)
}

func outputIndexInfoHuman(cmd *cobra.Command, info indexInfo) error {
	out := cmd.OutOrStdout()

	fmt.Fprintln(out, "Index Information")
	fmt.Fprintln(out, "=================")
	fmt.Fprintln(out)

	fmt.Fprintf(out, "Location:    %s\n", info.Location)
	fmt.Fprintf(out, "Project:     %s\n", info.ProjectRoot)
	fmt.Fprintf(out, "Collection:  %s\n", info.Collection)
	fmt.Fprintln(out)

	fmt.Fprintln(out, "Statistics:")
	fmt.Fprintf(out, "  Files tracked: %d\n", info.FileCount)
	fmt.Fprintf(out, "  Vectors:       %d\n", info.VectorCount)
	fmt.Fprintln(out)

	if info.CurrentModel != "" {
		fmt.Fprintln(out, "Current Embedder:")
		fmt.Fprintf(out, "  Model:       %s\n", info.CurrentModel)
		fmt.Fprintf(out, "  Backend:     %s\n", info.CurrentBackend)
		fmt.Fprintf(out, "  Dimensions:  %d\n", info.CurrentDimensions)
	}

	return nil
}
