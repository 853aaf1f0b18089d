package vectorstore

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/semgraph/indexer/internal/entity"
)

func newTestCollection(t *testing.T) *Collection {
	t.Helper()
	m := NewManager(filepath.Join(t.TempDir(), "collections"))
	t.Cleanup(func() { _ = m.Close() })
	coll, err := m.EnsureCollection(context.Background(), "default", 4)
	require.NoError(t, err)
	return coll
}

func vec(f32 float32) []float32 { return []float32{f32, 0, 0, 0} }

func TestManager_EnsureCollection_SameNameDifferentDimensionErrors(t *testing.T) {
	m := NewManager(filepath.Join(t.TempDir(), "collections"))
	defer m.Close()

	ctx := context.Background()
	_, err := m.EnsureCollection(ctx, "default", 4)
	require.NoError(t, err)

	_, err = m.EnsureCollection(ctx, "default", 8)
	assert.Error(t, err)
}

func TestManager_EnsureCollection_ReturnsSameInstanceOnRepeatCall(t *testing.T) {
	m := NewManager(filepath.Join(t.TempDir(), "collections"))
	defer m.Close()

	ctx := context.Background()
	c1, err := m.EnsureCollection(ctx, "default", 4)
	require.NoError(t, err)
	c2, err := m.EnsureCollection(ctx, "default", 4)
	require.NoError(t, err)
	assert.Same(t, c1, c2)
}

func TestCollection_UpsertAndScroll_RoundTripsPayload(t *testing.T) {
	coll := newTestCollection(t)
	ctx := context.Background()

	chunks := []*entity.Chunk{
		{ID: "c1", Kind: entity.ChunkMetadata, Content: "foo", Payload: entity.Payload{ChunkKind: entity.ChunkMetadata, EntityName: "Foo", FilePath: "a.go"}},
	}
	require.NoError(t, coll.Upsert(ctx, chunks, [][]float32{vec(1)}))

	items, _, err := coll.Scroll(ctx, Filter{}, "", 0)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "c1", items[0].ID)
	assert.Equal(t, "Foo", items[0].Payload.EntityName)
}

func TestCollection_Upsert_RelationChunkHasNoVectorButIsFilterable(t *testing.T) {
	coll := newTestCollection(t)
	ctx := context.Background()

	chunks := []*entity.Chunk{
		{ID: "r1", Kind: entity.ChunkRelation, Content: "a Calls b", Payload: entity.Payload{ChunkKind: entity.ChunkRelation, From: "a", To: "b"}},
	}
	require.NoError(t, coll.Upsert(ctx, chunks, [][]float32{nil}))

	assert.Equal(t, 0, coll.Count(), "a nil-vector chunk must not be added to the vector index")

	items, _, err := coll.Scroll(ctx, Filter{ChunkKind: entity.ChunkRelation}, "", 0)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "r1", items[0].ID)
}

func TestCollection_DeleteByIDs_RemovesFromBothStores(t *testing.T) {
	coll := newTestCollection(t)
	ctx := context.Background()

	chunks := []*entity.Chunk{
		{ID: "c1", Kind: entity.ChunkMetadata, Content: "foo", Payload: entity.Payload{ChunkKind: entity.ChunkMetadata, FilePath: "a.go"}},
	}
	require.NoError(t, coll.Upsert(ctx, chunks, [][]float32{vec(1)}))
	require.Equal(t, 1, coll.Count())

	require.NoError(t, coll.DeleteByIDs(ctx, []string{"c1"}))

	assert.Equal(t, 0, coll.Count())
	items, _, err := coll.Scroll(ctx, Filter{}, "", 0)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestCollection_Scroll_FiltersByFilePath(t *testing.T) {
	coll := newTestCollection(t)
	ctx := context.Background()

	chunks := []*entity.Chunk{
		{ID: "c1", Kind: entity.ChunkMetadata, Content: "a", Payload: entity.Payload{ChunkKind: entity.ChunkMetadata, FilePath: "a.go"}},
		{ID: "c2", Kind: entity.ChunkMetadata, Content: "b", Payload: entity.Payload{ChunkKind: entity.ChunkMetadata, FilePath: "b.go"}},
	}
	require.NoError(t, coll.Upsert(ctx, chunks, [][]float32{vec(1), vec(2)}))

	items, _, err := coll.Scroll(ctx, Filter{FilePath: "a.go"}, "", 0)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "c1", items[0].ID)
}

func TestCollection_Search_FiltersResultsByPayload(t *testing.T) {
	coll := newTestCollection(t)
	ctx := context.Background()

	chunks := []*entity.Chunk{
		{ID: "c1", Kind: entity.ChunkMetadata, Content: "a", Payload: entity.Payload{ChunkKind: entity.ChunkMetadata, FilePath: "a.go"}},
		{ID: "c2", Kind: entity.ChunkMetadata, Content: "b", Payload: entity.Payload{ChunkKind: entity.ChunkMetadata, FilePath: "b.go"}},
	}
	require.NoError(t, coll.Upsert(ctx, chunks, [][]float32{vec(1), vec(1)}))

	results, err := coll.Search(ctx, vec(1), Filter{FilePath: "b.go"}, 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "c2", results[0].ID)
}

func TestCollection_AllIDsMatching_ReturnsOnlyMatchingIDs(t *testing.T) {
	coll := newTestCollection(t)
	ctx := context.Background()

	chunks := []*entity.Chunk{
		{ID: "c1", Kind: entity.ChunkMetadata, Content: "a", Payload: entity.Payload{ChunkKind: entity.ChunkMetadata, FilePath: "a.go"}},
		{ID: "r1", Kind: entity.ChunkRelation, Content: "a Calls b", Payload: entity.Payload{ChunkKind: entity.ChunkRelation}},
	}
	require.NoError(t, coll.Upsert(ctx, chunks, [][]float32{vec(1), nil}))

	ids, err := coll.AllIDsMatching(ctx, Filter{ChunkKind: entity.ChunkMetadata})
	require.NoError(t, err)
	assert.Equal(t, []string{"c1"}, ids)
}
