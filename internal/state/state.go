// Package state persists the per-collection indexing state that lets an
// incremental run classify each discovered file as added, modified, deleted,
// or unchanged without re-parsing everything.
package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
)

// StateVersion is bumped whenever the on-disk schema changes incompatibly.
const StateVersion = 1

// FileState is what's tracked per indexed file.
type FileState struct {
	SHA256       string    `json:"sha256"`
	LastIndexed  time.Time `json:"last_indexed_at"`
	ChunkIDs     []string  `json:"chunk_ids"`
}

// State is the full persisted shape for one collection.
type State struct {
	Version    int                   `json:"version"`
	Collection string                `json:"collection"`
	Files      map[string]*FileState `json:"files"`
}

// New creates an empty state for a collection.
func New(collection string) *State {
	return &State{
		Version:    StateVersion,
		Collection: collection,
		Files:      make(map[string]*FileState),
	}
}

// Store loads and atomically persists a collection's State, using a
// gofrs/flock advisory lock (mirroring internal/embed.FileLock) so concurrent
// indexer instances never interleave writes to the same state file.
type Store struct {
	dir        string
	collection string
	lock       *flock.Flock
}

// NewStore returns a Store that keeps its state file and lock file under
// dir, namespaced by collection.
func NewStore(dir, collection string) *Store {
	return &Store{
		dir:        dir,
		collection: collection,
		lock:       flock.New(filepath.Join(dir, collection+".state.lock")),
	}
}

func (s *Store) statePath() string {
	return filepath.Join(s.dir, s.collection+".state.json")
}

// abortedMarkerPath returns the path of the marker file written when a run is
// interrupted before it completes cleanly. Its presence on the next Load
// triggers the caller's startup reconciliation pass.
func (s *Store) abortedMarkerPath() string {
	return filepath.Join(s.dir, s.collection+".aborted")
}

// Load reads the persisted state, returning a fresh empty State if none
// exists yet (first run). aborted reports whether the previous run left an
// aborted marker behind; the caller is expected to run a reconciliation
// scroll against the vector store before trusting the loaded state.
func (s *Store) Load() (st *State, aborted bool, err error) {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return nil, false, fmt.Errorf("create state dir: %w", err)
	}

	if _, statErr := os.Stat(s.abortedMarkerPath()); statErr == nil {
		aborted = true
	}

	data, err := os.ReadFile(s.statePath())
	if os.IsNotExist(err) {
		return New(s.collection), aborted, nil
	}
	if err != nil {
		return nil, aborted, fmt.Errorf("read state file: %w", err)
	}

	var loaded State
	if err := json.Unmarshal(data, &loaded); err != nil {
		return nil, aborted, fmt.Errorf("parse state file: %w", err)
	}
	if loaded.Files == nil {
		loaded.Files = make(map[string]*FileState)
	}
	return &loaded, aborted, nil
}

// BeginRun acquires the advisory lock and drops the aborted marker, so a
// crash mid-run (process killed, OOM, panic after this point) is detectable
// on the next Load.
func (s *Store) BeginRun() error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}
	if err := s.lock.Lock(); err != nil {
		return fmt.Errorf("acquire state lock: %w", err)
	}
	if err := os.WriteFile(s.abortedMarkerPath(), []byte(time.Now().UTC().Format(time.RFC3339)), 0o644); err != nil {
		return fmt.Errorf("write aborted marker: %w", err)
	}
	return nil
}

// Commit atomically persists st (write to a temp file in the same
// directory, fsync, rename) and clears the aborted marker to record a clean
// completion, then releases the run lock.
func (s *Store) Commit(st *State) error {
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}

	tmp, err := os.CreateTemp(s.dir, s.collection+".state.*.tmp")
	if err != nil {
		return fmt.Errorf("create temp state file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) // no-op once the rename below succeeds

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp state file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("fsync temp state file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp state file: %w", err)
	}
	if err := os.Rename(tmpPath, s.statePath()); err != nil {
		return fmt.Errorf("rename state file into place: %w", err)
	}

	if err := os.Remove(s.abortedMarkerPath()); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("clear aborted marker: %w", err)
	}
	return s.lock.Unlock()
}

// Abort releases the run lock without clearing the aborted marker, leaving
// it in place for the next Load to detect.
func (s *Store) Abort() error {
	return s.lock.Unlock()
}
