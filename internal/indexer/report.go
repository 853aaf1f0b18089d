// Package indexer orchestrates discovery, parsing, deduplication,
// embedding, and vector-store upsert into a single Index operation that
// handles both a full rebuild and an incremental single-file update.
package indexer

import "time"

// Mode selects between a full project rebuild and a targeted incremental
// update.
type Mode int

const (
	// ModeFull discovers every file under the project root and reconciles
	// the entire collection against it.
	ModeFull Mode = iota
	// ModeSingleFile re-indexes exactly one file (used by the watcher).
	ModeSingleFile
	// ModeDelete removes exactly one file's chunks from the collection.
	ModeDelete
)

// ClearingPolicy controls what happens to a project's previously-indexed
// chunks before a run applies its own changes.
type ClearingPolicy int

const (
	// ClearNone leaves existing chunks untouched except where this run's
	// diff says otherwise (the default incremental behavior).
	ClearNone ClearingPolicy = iota
	// ClearPreserveManual clears every automation-marked chunk but keeps
	// manually-authored entities/chunks intact.
	ClearPreserveManual
	// ClearAll wipes the entire collection before indexing, manual content
	// included.
	ClearAll
)

// Options configures one Index call.
type Options struct {
	ProjectRoot string
	Collection  string
	Mode        Mode
	Path        string // required for ModeSingleFile / ModeDelete
	Clearing    ClearingPolicy
}

// IndexReport summarizes the outcome of an Index call.
type IndexReport struct {
	FilesScanned      int
	FilesAdded        int
	FilesModified     int
	FilesDeleted      int
	FilesUnchanged    int
	ChunksUpserted    int
	ChunksDeduped     int
	RelationsOrphaned int
	TokensIn          int
	TokensOut         int
	Cost              float64
	SyntaxErrors      []string
	Duration          time.Duration
	Aborted           bool
}
