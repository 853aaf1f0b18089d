package indexer

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/semgraph/indexer/internal/chunk"
	"github.com/semgraph/indexer/internal/config"
	"github.com/semgraph/indexer/internal/contextual"
	"github.com/semgraph/indexer/internal/dedup"
	"github.com/semgraph/indexer/internal/embed"
	"github.com/semgraph/indexer/internal/entity"
	"github.com/semgraph/indexer/internal/scanner"
	"github.com/semgraph/indexer/internal/state"
	"github.com/semgraph/indexer/internal/vectorstore"
)

// Indexer ties together discovery, parsing, deduplication, embedding, and
// vector-store upsert. It is the sole entry point both a full rebuild
// (cmd/ CLI) and an incremental single-file update (the watcher) go
// through.
type Indexer struct {
	config     *config.Config
	parsers    *chunk.EntityParserRegistry
	embedder   *embed.AccountingEmbedder
	manager    *vectorstore.Manager
	contextual *contextual.Generator
	stateDir   string
	workers    int
}

// New creates an Indexer. stateDir holds per-collection state files; the
// vector store manager's collections also live under it.
func New(cfg *config.Config, parsers *chunk.EntityParserRegistry, embedder *embed.AccountingEmbedder, stateDir string) *Indexer {
	workers := cfg.Performance.IndexWorkers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	parsers.ApplyParserConfig(cfg.Indexer.ParserConfig, cfg.Indexer.WindowLines)
	return &Indexer{
		config:     cfg,
		parsers:    parsers,
		embedder:   embedder,
		manager:    vectorstore.NewManager(filepath.Join(stateDir, "collections")),
		contextual: contextual.NewGenerator(&cfg.Contextual),
		stateDir:   stateDir,
		workers:    workers,
	}
}

// Close releases the indexer's open collections.
func (ix *Indexer) Close() error {
	return ix.manager.Close()
}

// Index runs one indexing operation end to end and returns its report.
func (ix *Indexer) Index(ctx context.Context, opts Options) (*IndexReport, error) {
	start := time.Now()
	report := &IndexReport{}

	stateStore := state.NewStore(ix.stateDir, opts.Collection)
	st, wasAborted, err := stateStore.Load()
	if err != nil {
		return nil, fmt.Errorf("load state: %w", err)
	}
	report.Aborted = wasAborted

	if err := stateStore.BeginRun(); err != nil {
		return nil, fmt.Errorf("begin run: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			if abortErr := stateStore.Abort(); abortErr != nil {
				slog.Warn("failed to release state lock after incomplete run", "error", abortErr)
			}
		}
	}()

	dim := ix.embedder.Dimensions()
	collection, err := ix.manager.EnsureCollection(ctx, opts.Collection, dim)
	if err != nil {
		return nil, fmt.Errorf("ensure collection: %w", err)
	}

	if wasAborted {
		if err := ix.reconcileAfterAbort(ctx, collection, st); err != nil {
			slog.Warn("startup reconciliation after aborted run failed", "error", err)
		}
	}

	switch opts.Mode {
	case ModeDelete:
		if err := ix.applyDeletion(ctx, collection, st, opts.Path); err != nil {
			return nil, err
		}
		report.FilesDeleted = 1
	case ModeSingleFile:
		if err := ix.indexOneFile(ctx, collection, st, opts, opts.Path, report); err != nil {
			return nil, err
		}
	case ModeFull:
		if err := ix.indexFull(ctx, collection, st, opts, report); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unknown indexing mode %v", opts.Mode)
	}

	orphaned, err := ix.garbageCollectOrphanRelations(ctx, collection, st)
	if err != nil {
		return nil, fmt.Errorf("orphan relation gc: %w", err)
	}
	report.RelationsOrphaned = orphaned

	if err := stateStore.Commit(st); err != nil {
		return nil, fmt.Errorf("commit state: %w", err)
	}
	committed = true

	report.Duration = time.Since(start)
	return report, nil
}

// indexFull discovers every file under the project root, classifies each
// against the persisted state, applies the clearing policy, then processes
// the added/modified set with bounded concurrency.
func (ix *Indexer) indexFull(ctx context.Context, collection *vectorstore.Collection, st *state.State, opts Options, report *IndexReport) error {
	if opts.Clearing == ClearAll {
		if err := ix.clearCollection(ctx, collection, st, false); err != nil {
			return fmt.Errorf("clear collection: %w", err)
		}
	} else if opts.Clearing == ClearPreserveManual {
		if err := ix.clearCollection(ctx, collection, st, true); err != nil {
			return fmt.Errorf("clear collection (preserve manual): %w", err)
		}
	}

	sc, err := scanner.New()
	if err != nil {
		return fmt.Errorf("create scanner: %w", err)
	}

	maxFileSize := ix.config.Indexer.MaxFileSize
	if maxFileSize == 0 {
		maxFileSize = scanner.DefaultMaxFileSize
	}

	results, err := sc.Scan(ctx, &scanner.ScanOptions{
		RootDir:          opts.ProjectRoot,
		IncludePatterns:  ix.config.Paths.Include,
		ExcludePatterns:  ix.config.Paths.Exclude,
		RespectGitignore: true,
		Workers:          ix.workers,
		MaxFileSize:      maxFileSize,
	})
	if err != nil {
		return fmt.Errorf("scan: %w", err)
	}

	seen := make(map[string]bool)
	g, gctx := errgroup.WithContext(ctx)
	sem := make(chan struct{}, ix.workers)
	var mu sync.Mutex

	for res := range results {
		if res.Error != nil {
			report.SyntaxErrors = append(report.SyntaxErrors, res.Error.Error())
			continue
		}
		file := res.File
		report.FilesScanned++
		seen[file.Path] = true

		select {
		case sem <- struct{}{}:
		case <-gctx.Done():
			return g.Wait()
		}
		g.Go(func() error {
			defer func() { <-sem }()
			return ix.processFile(gctx, collection, st, &mu, opts.ProjectRoot, file.Path, report)
		})
	}

	if err := g.Wait(); err != nil {
		return fmt.Errorf("index files: %w", err)
	}

	// Anything tracked in state but not seen this scan was deleted.
	for path := range st.Files {
		if !seen[path] {
			if err := ix.removeFileFromCollection(ctx, collection, st, path); err != nil {
				return fmt.Errorf("remove deleted file %s: %w", path, err)
			}
			report.FilesDeleted++
		}
	}

	return nil
}

// indexOneFile is the watcher's entry point: reprocess a single path,
// classified against its previously-recorded hash.
func (ix *Indexer) indexOneFile(ctx context.Context, collection *vectorstore.Collection, st *state.State, opts Options, relPath string, report *IndexReport) error {
	var mu sync.Mutex
	report.FilesScanned = 1
	return ix.processFile(ctx, collection, st, &mu, opts.ProjectRoot, relPath, report)
}

// processFile classifies one file as added/modified/unchanged, and if it
// changed, reparses it, dedups its chunks, embeds the survivors, and
// upserts the result. mu serializes writes to the shared State map across
// the bounded-concurrency worker pool in indexFull.
func (ix *Indexer) processFile(ctx context.Context, collection *vectorstore.Collection, st *state.State, mu *sync.Mutex, projectRoot, relPath string, report *IndexReport) error {
	absPath := filepath.Join(projectRoot, relPath)
	content, err := os.ReadFile(absPath)
	if err != nil {
		return fmt.Errorf("read %s: %w", relPath, err)
	}
	normPath := entity.NormalizePath(relPath)
	hash := entity.ContentHash(content)

	mu.Lock()
	prev, existed := st.Files[normPath]
	mu.Unlock()

	if existed && prev.SHA256 == hash {
		mu.Lock()
		report.FilesUnchanged++
		mu.Unlock()
		return nil
	}

	result, err := ix.parsers.Parse(ctx, &chunk.FileInput{Path: relPath, Content: content})
	if err != nil {
		return fmt.Errorf("parse %s: %w", relPath, err)
	}
	report.SyntaxErrors = append(report.SyntaxErrors, result.SyntaxErrors...)

	if existed {
		if err := collection.DeleteByIDs(ctx, prev.ChunkIDs); err != nil {
			return fmt.Errorf("delete stale chunks for %s: %w", relPath, err)
		}
	}

	vectors, embedReport, err := ix.embedChunks(ctx, result.Chunks)
	if err != nil {
		return fmt.Errorf("embed chunks for %s: %w", relPath, err)
	}

	if err := collection.Upsert(ctx, result.Chunks, vectors); err != nil {
		return fmt.Errorf("upsert chunks for %s: %w", relPath, err)
	}

	ids := make([]string, len(result.Chunks))
	for i, c := range result.Chunks {
		ids[i] = c.ID
	}

	mu.Lock()
	st.Files[normPath] = &state.FileState{SHA256: hash, LastIndexed: time.Now().UTC(), ChunkIDs: ids}
	report.ChunksUpserted += len(result.Chunks)
	report.ChunksDeduped += embedReport.deduped
	report.TokensIn += embedReport.tokensIn
	report.TokensOut += embedReport.tokensOut
	report.Cost += embedReport.cost
	if existed {
		report.FilesModified++
	} else {
		report.FilesAdded++
	}
	mu.Unlock()

	return nil
}

type embedBatchReport struct {
	deduped   int
	tokensIn  int
	tokensOut int
	cost      float64
}

// embedChunks runs the unified chunk processor before embedding: exact
// content duplicates within the batch share one embedding call instead of
// each getting its own.
func (ix *Indexer) embedChunks(ctx context.Context, chunks []*entity.Chunk) ([][]float32, embedBatchReport, error) {
	var report embedBatchReport
	vectors := make([][]float32, len(chunks))
	byID := make(map[string]int, len(chunks))
	for i, c := range chunks {
		byID[c.ID] = i
	}

	dedupResult := dedup.Process(chunks)
	report.deduped = len(dedupResult.Aliased)

	var texts []string
	var embedTargets []*entity.Chunk
	for _, c := range dedupResult.ToEmbed {
		if c.Kind == entity.ChunkRelation {
			continue // relation chunks carry no embedding
		}
		texts = append(texts, ix.contextual.Enrich(c))
		embedTargets = append(embedTargets, c)
	}

	if len(texts) > 0 {
		results, err := ix.embedder.EmbedBatchWithMeta(ctx, texts)
		if err != nil {
			return nil, report, err
		}
		canonicalVectors := make(map[string][]float32, len(embedTargets))
		for i, c := range embedTargets {
			vectors[byID[c.ID]] = results[i].Vector
			canonicalVectors[c.ID] = results[i].Vector
			report.tokensIn += results[i].TokensIn
			report.tokensOut += results[i].TokensOut
			report.cost += results[i].Cost
		}
		for _, aliased := range dedupResult.Aliased {
			canonicalID := dedupResult.CanonicalOf[aliased.ID]
			vectors[byID[aliased.ID]] = canonicalVectors[canonicalID]
		}
	}

	return vectors, report, nil
}

func (ix *Indexer) applyDeletion(ctx context.Context, collection *vectorstore.Collection, st *state.State, relPath string) error {
	return ix.removeFileFromCollection(ctx, collection, st, entity.NormalizePath(relPath))
}

func (ix *Indexer) removeFileFromCollection(ctx context.Context, collection *vectorstore.Collection, st *state.State, normPath string) error {
	fs, ok := st.Files[normPath]
	if !ok {
		return nil
	}
	if err := collection.DeleteByIDs(ctx, fs.ChunkIDs); err != nil {
		return err
	}
	delete(st.Files, normPath)
	return nil
}

// clearCollection wipes chunks from the collection and state. When
// preserveManual is true, only automation-marked Metadata chunks (and
// their implementation/relation siblings) are cleared; chunks with no
// automation markers are left alone.
func (ix *Indexer) clearCollection(ctx context.Context, collection *vectorstore.Collection, st *state.State, preserveManual bool) error {
	if !preserveManual {
		allIDs, err := collection.AllIDsMatching(ctx, vectorstore.Filter{})
		if err != nil {
			return err
		}
		if err := collection.DeleteByIDs(ctx, allIDs); err != nil {
			return err
		}
		st.Files = make(map[string]*state.FileState)
		return nil
	}

	items, _, err := collection.Scroll(ctx, vectorstore.Filter{}, "", 0)
	if err != nil {
		return err
	}
	var toDelete []string
	for _, item := range items {
		if !item.Payload.IsManual() {
			toDelete = append(toDelete, item.ID)
		}
	}
	if err := collection.DeleteByIDs(ctx, toDelete); err != nil {
		return err
	}

	// Tracked file state is rebuilt as each file is reprocessed; dropping it
	// here just forces every file to be treated as "added" on this run,
	// which is correct since their prior automation-marked chunks are gone.
	st.Files = make(map[string]*state.FileState)
	return nil
}
