package vectorstore

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/semgraph/indexer/internal/entity"
	"github.com/semgraph/indexer/internal/store"
)

// SearchResult pairs a chunk id with its similarity score and payload.
type SearchResult struct {
	ID      string
	Score   float32
	Payload entity.Payload
}

// Collection is the vector-store contract the indexer core depends on:
// ensure_collection, upsert, delete_by_ids, scroll(filter), and
// search(vector, filter, limit). It composes an HNSW vector index (for
// nearest-neighbor search) with a SQLite payload store (for exact-match
// filtering), since neither alone satisfies both access patterns.
type Collection struct {
	mu      sync.RWMutex
	name    string
	dir     string
	vectors *store.HNSWStore
	payload *payloadStore
	dim     int
}

// Manager opens and caches Collections by name under a base directory, so a
// single process can serve multiple named collections (e.g. one per
// project) without re-opening stores on every call.
type Manager struct {
	mu          sync.Mutex
	baseDir     string
	collections map[string]*Collection
}

// NewManager creates a Manager rooted at baseDir.
func NewManager(baseDir string) *Manager {
	return &Manager{baseDir: baseDir, collections: make(map[string]*Collection)}
}

// EnsureCollection returns the named collection, creating it (and its
// backing files) with the given embedding dimension on first use. A second
// call with a different dimension than the one the collection was created
// with returns an error rather than silently truncating vectors.
func (m *Manager) EnsureCollection(ctx context.Context, name string, dim int) (*Collection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if c, ok := m.collections[name]; ok {
		if c.dim != dim {
			return nil, fmt.Errorf("collection %q already exists with dimension %d, got %d", name, c.dim, dim)
		}
		return c, nil
	}

	dir := filepath.Join(m.baseDir, name)
	vectors, err := store.NewHNSWStore(store.DefaultVectorStoreConfig(dim))
	if err != nil {
		return nil, fmt.Errorf("create vector index for %q: %w", name, err)
	}
	payload, err := newPayloadStore(filepath.Join(dir, "payloads.db"))
	if err != nil {
		return nil, fmt.Errorf("create payload store for %q: %w", name, err)
	}

	c := &Collection{name: name, dir: dir, vectors: vectors, payload: payload, dim: dim}
	m.collections[name] = c
	return c, nil
}

// Close releases every open collection's resources.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var firstErr error
	for _, c := range m.collections {
		if err := c.payload.close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Upsert writes chunks and their vectors into both the vector index and the
// payload store. vectors[i] corresponds to chunks[i]; a chunk with a nil
// vector (a Relation chunk, which has no embedding) is payload-only.
func (c *Collection) Upsert(ctx context.Context, chunks []*entity.Chunk, vectors [][]float32) error {
	if len(chunks) != len(vectors) {
		return fmt.Errorf("chunks and vectors length mismatch: %d vs %d", len(chunks), len(vectors))
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	var ids []string
	var vecs [][]float32
	for i, chunk := range chunks {
		if vectors[i] != nil {
			ids = append(ids, chunk.ID)
			vecs = append(vecs, vectors[i])
		}
	}
	if len(ids) > 0 {
		if err := c.vectors.Add(ctx, ids, vecs); err != nil {
			return fmt.Errorf("add vectors: %w", err)
		}
	}

	return c.payload.upsert(ctx, chunks)
}

// DeleteByIDs removes chunks from both the vector index and payload store.
func (c *Collection) DeleteByIDs(ctx context.Context, ids []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.vectors.Delete(ctx, ids); err != nil {
		return fmt.Errorf("delete vectors: %w", err)
	}
	return c.payload.deleteByIDs(ctx, ids)
}

// Scroll pages through id+payload pairs matching filter, exact-match only,
// no vector involved. limit <= 0 returns every match with no paging.
func (c *Collection) Scroll(ctx context.Context, filter Filter, cursor string, limit int) ([]ScrollItem, string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.payload.scroll(ctx, filter, cursor, limit)
}

// AllIDsMatching returns every chunk id whose payload matches filter, used
// by the indexer's orphan relation GC pass to get the live Metadata-chunk
// id set without paging.
func (c *Collection) AllIDsMatching(ctx context.Context, filter Filter) ([]string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.payload.allIDsMatching(ctx, filter)
}

// Search finds the k nearest neighbors to query, then filters the result
// set down to payloads matching filter. coder/hnsw has no native filtered
// search, so Search over-fetches (fetchMultiplier*limit) and filters in
// Go; if fewer than limit candidates match, it returns only those.
func (c *Collection) Search(ctx context.Context, query []float32, filter Filter, limit int) ([]SearchResult, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	const fetchMultiplier = 4
	fetch := limit * fetchMultiplier
	if fetch < limit {
		fetch = limit
	}

	raw, err := c.vectors.Search(ctx, query, fetch)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}

	results := make([]SearchResult, 0, limit)
	for _, r := range raw {
		payload, ok, err := c.payload.get(ctx, r.ID)
		if err != nil {
			return nil, fmt.Errorf("load payload for %s: %w", r.ID, err)
		}
		if !ok || !matches(*payload, filter) {
			continue
		}
		results = append(results, SearchResult{ID: r.ID, Score: r.Score, Payload: *payload})
		if len(results) == limit {
			break
		}
	}
	return results, nil
}

func matches(p entity.Payload, f Filter) bool {
	if f.FilePath != "" && p.FilePath != f.FilePath {
		return false
	}
	if f.ChunkKind != "" && p.ChunkKind != f.ChunkKind {
		return false
	}
	if f.EntityKind != "" && p.EntityKind != f.EntityKind {
		return false
	}
	if f.RelationKind != "" && p.RelationKind != f.RelationKind {
		return false
	}
	return true
}

// Count returns the number of vectors currently indexed.
func (c *Collection) Count() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.vectors.Count()
}
