// Package sqlitevecstore is a reference ports.VectorStore backed by
// modernc.org/sqlite (pure Go, no cgo). It stores embeddings as raw
// float32 blobs and ranks by a brute-force cosine scan in Go, since
// SQLite carries no native vector index — this is the single-node,
// low-volume alternative to pgstore's HNSW-accelerated search. WAL mode
// and a busy_timeout pragma keep single-writer contention from surfacing
// as spurious errors under concurrent access.
package sqlitevecstore

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"sort"

	_ "modernc.org/sqlite"

	"github.com/agentmem/hrce/internal/ports"
)

// Store implements ports.VectorStore over a single SQLite table holding
// one row per vector.
type Store struct {
	db        *sql.DB
	dimension uint32
}

// Open opens (creating if necessary) a SQLite-backed vector store at
// path. An empty path opens an in-memory database, useful for tests and
// for cmd/hrcebench's default configuration.
func Open(path string, dimension uint32) (*Store, error) {
	dsn := ":memory:"
	if path != "" {
		dsn = path + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlitevecstore: open: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("sqlitevecstore: pragma %q: %w", p, err)
		}
	}

	s := &Store{db: db, dimension: dimension}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS hrce_vectors (
		id TEXT PRIMARY KEY,
		embedding BLOB NOT NULL,
		content TEXT,
		user_id TEXT,
		org_id TEXT,
		agent_id TEXT,
		tags TEXT,
		created_at INTEGER
	);
	CREATE INDEX IF NOT EXISTS hrce_vectors_user_idx ON hrce_vectors(user_id);
	CREATE INDEX IF NOT EXISTS hrce_vectors_org_idx ON hrce_vectors(org_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func encodeEmbedding(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func decodeEmbedding(buf []byte) []float32 {
	v := make([]float32, len(buf)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return v
}

// AddVectors upserts rows, one statement per record inside a transaction.
func (s *Store) AddVectors(ctx context.Context, records []ports.VectorRecord) ([]string, error) {
	if len(records) == 0 {
		return nil, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("sqlitevecstore: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO hrce_vectors (id, embedding, content, user_id, org_id, agent_id, tags, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, unixepoch())
		ON CONFLICT(id) DO UPDATE SET
			embedding = excluded.embedding,
			content = excluded.content,
			user_id = excluded.user_id,
			org_id = excluded.org_id,
			agent_id = excluded.agent_id,
			tags = excluded.tags
	`)
	if err != nil {
		return nil, fmt.Errorf("sqlitevecstore: prepare upsert: %w", err)
	}
	defer stmt.Close()

	ids := make([]string, len(records))
	for i, rec := range records {
		content, _ := rec.Metadata["content"].(string)
		_, err := stmt.ExecContext(ctx, rec.ID, encodeEmbedding(rec.Embedding), content,
			stringField(rec.Metadata, "user_id"), stringField(rec.Metadata, "org_id"), stringField(rec.Metadata, "agent_id"),
			"")
		if err != nil {
			return nil, fmt.Errorf("sqlitevecstore: upsert %s: %w", rec.ID, err)
		}
		ids[i] = rec.ID
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("sqlitevecstore: commit: %w", err)
	}
	return ids, nil
}

// Search scans every row applying the user, org, agent, and time-range
// filters, scores by cosine similarity, and returns the top limit records.
// Tag filters are not applied; AddVectors stores no tags. There is no native index to lean
// on, so this is O(n) in the table's row count — fine for the low-volume
// reference deployment this store targets.
func (s *Store) Search(ctx context.Context, embedding []float32, limit int, filters *ports.SearchFilters) ([]ports.ScoredRecord, int64, error) {
	query, args := buildFilteredQuery("SELECT id, embedding, content FROM hrce_vectors", filters)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("sqlitevecstore: search scan: %w", err)
	}
	defer rows.Close()

	var scored []ports.ScoredRecord
	for rows.Next() {
		var id, content string
		var blob []byte
		if err := rows.Scan(&id, &blob, &content); err != nil {
			return nil, 0, fmt.Errorf("sqlitevecstore: scan row: %w", err)
		}
		scored = append(scored, ports.ScoredRecord{
			ID:       id,
			Score:    cosineSimilarity(decodeEmbedding(blob), embedding),
			Metadata: map[string]any{"content": content},
		})
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("sqlitevecstore: rows: %w", err)
	}

	total := int64(len(scored))
	sort.Slice(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].ID < scored[j].ID
	})
	if limit > 0 && len(scored) > limit {
		scored = scored[:limit]
	}
	return scored, total, nil
}

// DeleteVectors removes rows by ID.
func (s *Store) DeleteVectors(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	placeholders, args := inClause(ids)
	_, err := s.db.ExecContext(ctx, "DELETE FROM hrce_vectors WHERE id IN ("+placeholders+")", args...)
	if err != nil {
		return fmt.Errorf("sqlitevecstore: delete vectors: %w", err)
	}
	return nil
}

// GetVector fetches one record by ID, or nil if absent.
func (s *Store) GetVector(ctx context.Context, id string) (*ports.VectorRecord, error) {
	var blob []byte
	var content string
	err := s.db.QueryRowContext(ctx, "SELECT embedding, content FROM hrce_vectors WHERE id = ?", id).Scan(&blob, &content)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("sqlitevecstore: get vector: %w", err)
	}
	return &ports.VectorRecord{
		ID:        id,
		Embedding: decodeEmbedding(blob),
		Metadata:  map[string]any{"content": content},
	}, nil
}

// Count reports the total row count.
func (s *Store) Count(ctx context.Context) (uint64, error) {
	var count uint64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM hrce_vectors").Scan(&count); err != nil {
		return 0, fmt.Errorf("sqlitevecstore: count: %w", err)
	}
	return count, nil
}

// Dimension returns the fixed embedding width this store was opened with.
func (s *Store) Dimension(ctx context.Context) (uint32, error) {
	return s.dimension, nil
}

func buildFilteredQuery(base string, filters *ports.SearchFilters) (string, []any) {
	if filters == nil {
		return base, nil
	}
	query := base
	var args []any
	var clauses []string
	if filters.UserID != "" {
		clauses = append(clauses, "user_id = ?")
		args = append(args, filters.UserID)
	}
	if filters.OrgID != "" {
		clauses = append(clauses, "org_id = ?")
		args = append(args, filters.OrgID)
	}
	if filters.AgentID != "" {
		clauses = append(clauses, "agent_id = ?")
		args = append(args, filters.AgentID)
	}
	if filters.TimeStart != nil {
		clauses = append(clauses, "created_at >= ?")
		args = append(args, *filters.TimeStart/1000)
	}
	if filters.TimeEnd != nil {
		clauses = append(clauses, "created_at <= ?")
		args = append(args, *filters.TimeEnd/1000)
	}
	for i, c := range clauses {
		if i == 0 {
			query += " WHERE " + c
		} else {
			query += " AND " + c
		}
	}
	return query, args
}

func inClause(ids []string) (string, []any) {
	placeholders := ""
	args := make([]any, len(ids))
	for i, id := range ids {
		if i > 0 {
			placeholders += ","
		}
		placeholders += "?"
		args[i] = id
	}
	return placeholders, args
}

func stringField(metadata map[string]any, key string) string {
	if metadata == nil {
		return ""
	}
	v, _ := metadata[key].(string)
	return v
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
