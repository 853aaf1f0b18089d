package indexer

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/semgraph/indexer/internal/vectorstore"
	"github.com/semgraph/indexer/internal/watcher"
)

// fakeEventSource feeds a fixed sequence of event batches, then blocks until
// the test closes it, matching eventSource's channel shape.
type fakeEventSource struct {
	events chan []watcher.FileEvent
	errs   chan error
}

func newFakeEventSource() *fakeEventSource {
	return &fakeEventSource{
		events: make(chan []watcher.FileEvent, 4),
		errs:   make(chan error, 1),
	}
}

func (f *fakeEventSource) Events() <-chan []watcher.FileEvent { return f.events }
func (f *fakeEventSource) Errors() <-chan error               { return f.errs }

func collectionSize(t *testing.T, ix *Indexer, ctx context.Context, name string) int {
	t.Helper()
	coll, err := ix.manager.EnsureCollection(ctx, name, ix.embedder.Dimensions())
	require.NoError(t, err)
	items, _, err := coll.Scroll(ctx, vectorstore.Filter{}, "", 0)
	require.NoError(t, err)
	return len(items)
}

func TestWatch_CreateEventIndexesNewFile(t *testing.T) {
	ix, _ := newTestIndexer(t)
	root := t.TempDir()
	writeProjectFile(t, root, "main.go", "package main\n\nfunc Hello() {}\n")

	src := newFakeEventSource()
	src.events <- []watcher.FileEvent{{Path: "main.go", Operation: watcher.OpCreate}}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- ix.Watch(ctx, src, root, "default") }()

	require.Eventually(t, func() bool {
		return collectionSize(t, ix, ctx, "default") > 0
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	<-done
}

func TestWatch_DeleteEventRemovesFile(t *testing.T) {
	ix, _ := newTestIndexer(t)
	root := t.TempDir()
	writeProjectFile(t, root, "main.go", "package main\n\nfunc Hello() {}\n")

	ctx := context.Background()
	_, err := ix.Index(ctx, Options{ProjectRoot: root, Collection: "default", Mode: ModeFull, Clearing: ClearNone})
	require.NoError(t, err)
	before := collectionSize(t, ix, ctx, "default")
	require.Positive(t, before)

	require.NoError(t, os.Remove(filepath.Join(root, "main.go")))

	src := newFakeEventSource()
	src.events <- []watcher.FileEvent{{Path: "main.go", Operation: watcher.OpDelete}}

	wctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- ix.Watch(wctx, src, root, "default") }()

	require.Eventually(t, func() bool {
		return collectionSize(t, ix, ctx, "default") == 0
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	<-done
}

func TestWatch_DirEventsAreSkipped(t *testing.T) {
	ix, _ := newTestIndexer(t)
	root := t.TempDir()

	src := newFakeEventSource()
	src.events <- []watcher.FileEvent{{Path: "subdir", Operation: watcher.OpCreate, IsDir: true}}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- ix.Watch(ctx, src, root, "default") }()

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 0, collectionSize(t, ix, ctx, "default"))

	cancel()
	<-done
}

func TestWatch_ContextCancelStopsLoop(t *testing.T) {
	ix, _ := newTestIndexer(t)
	root := t.TempDir()

	src := newFakeEventSource()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := ix.Watch(ctx, src, root, "default")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestWatch_ClosedEventsChannelReturnsNil(t *testing.T) {
	ix, _ := newTestIndexer(t)
	root := t.TempDir()

	src := newFakeEventSource()
	close(src.events)

	err := ix.Watch(context.Background(), src, root, "default")
	assert.NoError(t, err)
}
