// Package vectorstore composes a vector index with a payload/filter store
// into one Collection abstraction: ensure_collection, upsert, delete_by_ids,
// scroll(filter), search(vector, filter, limit).
package vectorstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	_ "modernc.org/sqlite"

	"github.com/semgraph/indexer/internal/entity"
)

// payloadStore persists each chunk's filterable Payload fields and full
// JSON-encoded Payload in WAL-mode pure-Go SQLite (modernc.org/sqlite).
type payloadStore struct {
	mu   sync.RWMutex
	db   *sql.DB
	path string
}

func newPayloadStore(path string) (*payloadStore, error) {
	dsn := ":memory:"
	if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create payload store dir: %w", err)
		}
		dsn = path + "?_pragma=journal_mode(WAL)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open payload store: %w", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS chunk_payloads (
			id TEXT PRIMARY KEY,
			chunk_kind TEXT NOT NULL,
			entity_name TEXT NOT NULL,
			entity_kind TEXT,
			file_path TEXT NOT NULL,
			relation_kind TEXT,
			alias_of_id TEXT,
			payload_json TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_chunk_payloads_file_path ON chunk_payloads(file_path);
		CREATE INDEX IF NOT EXISTS idx_chunk_payloads_chunk_kind ON chunk_payloads(chunk_kind);
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create payload schema: %w", err)
	}

	return &payloadStore{db: db, path: path}, nil
}

func (p *payloadStore) close() error {
	return p.db.Close()
}

func (p *payloadStore) upsert(ctx context.Context, chunks []*entity.Chunk) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin payload upsert: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO chunk_payloads (id, chunk_kind, entity_name, entity_kind, file_path, relation_kind, alias_of_id, payload_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			chunk_kind=excluded.chunk_kind, entity_name=excluded.entity_name,
			entity_kind=excluded.entity_kind, file_path=excluded.file_path,
			relation_kind=excluded.relation_kind, alias_of_id=excluded.alias_of_id,
			payload_json=excluded.payload_json
	`)
	if err != nil {
		return fmt.Errorf("prepare payload upsert: %w", err)
	}
	defer stmt.Close()

	for _, c := range chunks {
		data, err := json.Marshal(c.Payload)
		if err != nil {
			return fmt.Errorf("marshal payload for %s: %w", c.ID, err)
		}
		filePath := c.Payload.FilePath
		if filePath == "" {
			filePath = c.Payload.From
		}
		if _, err := stmt.ExecContext(ctx, c.ID, string(c.Payload.ChunkKind), c.Payload.EntityName,
			string(c.Payload.EntityKind), filePath, string(c.Payload.RelationKind), c.Payload.AliasOfID, string(data)); err != nil {
			return fmt.Errorf("upsert payload for %s: %w", c.ID, err)
		}
	}

	return tx.Commit()
}

func (p *payloadStore) deleteByIDs(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	placeholders := make([]string, len(ids))
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id
	}
	query := fmt.Sprintf("DELETE FROM chunk_payloads WHERE id IN (%s)", strings.Join(placeholders, ","))
	_, err := p.db.ExecContext(ctx, query, args...)
	return err
}

// Filter narrows a scroll/search to payloads matching all set fields.
type Filter struct {
	FilePath     string
	ChunkKind    entity.ChunkKind
	EntityKind   entity.Kind
	RelationKind entity.RelationKind
}

func (f Filter) where() (string, []interface{}) {
	var clauses []string
	var args []interface{}
	if f.FilePath != "" {
		clauses = append(clauses, "file_path = ?")
		args = append(args, f.FilePath)
	}
	if f.ChunkKind != "" {
		clauses = append(clauses, "chunk_kind = ?")
		args = append(args, string(f.ChunkKind))
	}
	if f.EntityKind != "" {
		clauses = append(clauses, "entity_kind = ?")
		args = append(args, string(f.EntityKind))
	}
	if f.RelationKind != "" {
		clauses = append(clauses, "relation_kind = ?")
		args = append(args, string(f.RelationKind))
	}
	if len(clauses) == 0 {
		return "1=1", nil
	}
	return strings.Join(clauses, " AND "), args
}

// ScrollItem pairs a chunk id with its decoded payload.
type ScrollItem struct {
	ID      string
	Payload entity.Payload
}

func (p *payloadStore) scroll(ctx context.Context, filter Filter, cursor string, limit int) ([]ScrollItem, string, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	where, args := filter.where()
	if cursor != "" {
		where += " AND id > ?"
		args = append(args, cursor)
	}
	noLimit := limit <= 0
	if noLimit {
		limit = 1 << 30
	}
	args = append(args, limit)

	rows, err := p.db.QueryContext(ctx, fmt.Sprintf(
		"SELECT id, payload_json FROM chunk_payloads WHERE %s ORDER BY id LIMIT ?", where), args...)
	if err != nil {
		return nil, "", fmt.Errorf("scroll query: %w", err)
	}
	defer rows.Close()

	var out []ScrollItem
	var lastID string
	for rows.Next() {
		var id, payloadJSON string
		if err := rows.Scan(&id, &payloadJSON); err != nil {
			return nil, "", fmt.Errorf("scan scroll row: %w", err)
		}
		var payload entity.Payload
		if err := json.Unmarshal([]byte(payloadJSON), &payload); err != nil {
			return nil, "", fmt.Errorf("unmarshal payload %s: %w", id, err)
		}
		out = append(out, ScrollItem{ID: id, Payload: payload})
		lastID = id
	}

	nextCursor := ""
	if !noLimit && len(out) == limit {
		nextCursor = lastID
	}
	return out, nextCursor, rows.Err()
}

// allIDsMatching returns every chunk id satisfying filter, with no paging -
// used by the indexer's orphan relation GC pass, which needs the complete
// live id set rather than a page at a time.
func (p *payloadStore) allIDsMatching(ctx context.Context, filter Filter) ([]string, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	where, args := filter.where()
	rows, err := p.db.QueryContext(ctx, fmt.Sprintf("SELECT id FROM chunk_payloads WHERE %s", where), args...)
	if err != nil {
		return nil, fmt.Errorf("ids query: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (p *payloadStore) get(ctx context.Context, id string) (*entity.Payload, bool, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var payloadJSON string
	err := p.db.QueryRowContext(ctx, "SELECT payload_json FROM chunk_payloads WHERE id = ?", id).Scan(&payloadJSON)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get payload %s: %w", id, err)
	}
	var payload entity.Payload
	if err := json.Unmarshal([]byte(payloadJSON), &payload); err != nil {
		return nil, false, fmt.Errorf("unmarshal payload %s: %w", id, err)
	}
	return &payload, true, nil
}
