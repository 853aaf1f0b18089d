package indexer

import (
	"context"

	"github.com/semgraph/indexer/internal/entity"
	"github.com/semgraph/indexer/internal/state"
	"github.com/semgraph/indexer/internal/vectorstore"
)

// garbageCollectOrphanRelations deletes every Relation chunk whose From or
// To endpoint no longer resolves to a live Metadata chunk's entity name or
// a tracked file path. This runs after every Index call (full or
// single-file) since a deleted or renamed entity otherwise leaves its
// former relation edges dangling forever.
func (ix *Indexer) garbageCollectOrphanRelations(ctx context.Context, collection *vectorstore.Collection, st *state.State) (int, error) {
	metaItems, _, err := collection.Scroll(ctx, vectorstore.Filter{ChunkKind: entity.ChunkMetadata}, "", 0)
	if err != nil {
		return 0, err
	}

	live := make(map[string]bool, len(metaItems)+len(st.Files))
	for _, item := range metaItems {
		live[item.Payload.EntityName] = true
	}
	for path := range st.Files {
		live[path] = true
	}

	relItems, _, err := collection.Scroll(ctx, vectorstore.Filter{ChunkKind: entity.ChunkRelation}, "", 0)
	if err != nil {
		return 0, err
	}

	var orphanIDs []string
	for _, item := range relItems {
		if !live[item.Payload.From] || !live[item.Payload.To] {
			orphanIDs = append(orphanIDs, item.ID)
		}
	}

	if len(orphanIDs) == 0 {
		return 0, nil
	}
	if err := collection.DeleteByIDs(ctx, orphanIDs); err != nil {
		return 0, err
	}
	return len(orphanIDs), nil
}

// reconcileAfterAbort runs once, at startup, when the previous run's aborted
// marker is still present: any tracked file whose recorded chunk ids are no
// longer all present in the collection (the prior run died mid-write) is
// dropped from state so this run reprocesses it from scratch rather than
// trusting a half-written chunk set.
func (ix *Indexer) reconcileAfterAbort(ctx context.Context, collection *vectorstore.Collection, st *state.State) error {
	liveIDs, err := collection.AllIDsMatching(ctx, vectorstore.Filter{})
	if err != nil {
		return err
	}
	live := make(map[string]bool, len(liveIDs))
	for _, id := range liveIDs {
		live[id] = true
	}

	for path, fs := range st.Files {
		for _, id := range fs.ChunkIDs {
			if !live[id] {
				delete(st.Files, path)
				break
			}
		}
	}
	return nil
}
