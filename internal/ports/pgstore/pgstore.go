// Package pgstore implements internal/ports.VectorStore and
// internal/ports.FullTextIndex over PostgreSQL, using gorm.io/gorm with
// the postgres driver (backed by jackc/pgx) and pgvector-go for vector
// columns and pgvector's HNSW-accelerated distance operator, with
// Postgres's built-in tsvector/tsquery full-text search for the other
// leg.
package pgstore

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/pgvector/pgvector-go"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/agentmem/hrce/internal/ports"
)

// memoryRow is the gorm model backing both legs: one table carries the
// vector column, the content column, and a generated tsvector column.
type memoryRow struct {
	ID        string `gorm:"primaryKey"`
	Content   string
	Embedding pgvector.Vector `gorm:"type:vector"`
	UserID    string          `gorm:"index"`
	OrgID     string          `gorm:"index"`
	AgentID   string          `gorm:"index"`
	Tags      []string        `gorm:"type:text[]"`
	CreatedAt time.Time
}

func (memoryRow) TableName() string { return "hrce_memories" }

// Migrate creates the table, the vector column, the HNSW index, and the
// generated tsvector column + GIN index for full-text search. Safe to
// call repeatedly. Both VectorStore and FullTextIndex read and write the
// same table, so Migrate is a package-level function rather than a
// method on either type.
func Migrate(ctx context.Context, db *gorm.DB, dimension uint32) error {
	if err := db.WithContext(ctx).AutoMigrate(&memoryRow{}); err != nil {
		return fmt.Errorf("pgstore: automigrate: %w", err)
	}
	stmts := []string{
		"CREATE EXTENSION IF NOT EXISTS vector",
		fmt.Sprintf("ALTER TABLE hrce_memories ALTER COLUMN embedding TYPE vector(%d)", dimension),
		"CREATE INDEX IF NOT EXISTS hrce_memories_embedding_hnsw ON hrce_memories USING hnsw (embedding vector_cosine_ops)",
		"ALTER TABLE hrce_memories ADD COLUMN IF NOT EXISTS content_tsv tsvector GENERATED ALWAYS AS (to_tsvector('english', content)) STORED",
		"CREATE INDEX IF NOT EXISTS hrce_memories_content_tsv_gin ON hrce_memories USING gin (content_tsv)",
	}
	for _, stmt := range stmts {
		if err := db.WithContext(ctx).Exec(stmt).Error; err != nil {
			return fmt.Errorf("pgstore: migrate statement %q: %w", stmt, err)
		}
	}
	return nil
}

// VectorStore implements ports.VectorStore over hrce_memories' vector
// column.
type VectorStore struct {
	db        *gorm.DB
	dimension uint32
}

// NewVectorStore wraps an already-opened gorm.DB. dimension is the fixed
// embedding width this store was provisioned with (pgvector columns are
// fixed-size).
func NewVectorStore(db *gorm.DB, dimension uint32) *VectorStore {
	return &VectorStore{db: db, dimension: dimension}
}

// AddVectors upserts rows carrying both the vector and the content that
// the full-text leg indexes, since both ports share this table.
func (s *VectorStore) AddVectors(ctx context.Context, records []ports.VectorRecord) ([]string, error) {
	if len(records) == 0 {
		return nil, nil
	}
	rows := make([]memoryRow, len(records))
	ids := make([]string, len(records))
	for i, rec := range records {
		content, _ := rec.Metadata["content"].(string)
		rows[i] = memoryRow{
			ID:        rec.ID,
			Content:   content,
			Embedding: pgvector.NewVector(rec.Embedding),
			UserID:    stringField(rec.Metadata, "user_id"),
			OrgID:     stringField(rec.Metadata, "org_id"),
			AgentID:   stringField(rec.Metadata, "agent_id"),
			CreatedAt: time.Now(),
		}
		ids[i] = rec.ID
	}
	onConflict := clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"content", "embedding", "user_id", "org_id", "agent_id"}),
	}
	if err := s.db.WithContext(ctx).Clauses(onConflict).Create(&rows).Error; err != nil {
		return nil, fmt.Errorf("pgstore: add vectors: %w", err)
	}
	return ids, nil
}

// Search runs an approximate nearest-neighbor query ordered by cosine
// distance, which pgvector's HNSW index accelerates.
func (s *VectorStore) Search(ctx context.Context, embedding []float32, limit int, filters *ports.SearchFilters) ([]ports.ScoredRecord, int64, error) {
	query := s.db.WithContext(ctx).Model(&memoryRow{})
	query = applyFilters(query, filters)

	var rows []memoryRow
	target := pgvector.NewVector(embedding)
	err := query.
		Order(gorm.Expr("embedding <=> ?", target)).
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, 0, fmt.Errorf("pgstore: vector search: %w", err)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("pgstore: vector search count: %w", err)
	}

	results := make([]ports.ScoredRecord, len(rows))
	for i, row := range rows {
		results[i] = ports.ScoredRecord{
			ID:       row.ID,
			Score:    cosineSimilarity(row.Embedding.Slice(), target.Slice()),
			Metadata: map[string]any{"content": row.Content},
		}
	}
	return results, total, nil
}

// DeleteVectors removes rows by ID.
func (s *VectorStore) DeleteVectors(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := s.db.WithContext(ctx).Where("id IN ?", ids).Delete(&memoryRow{}).Error; err != nil {
		return fmt.Errorf("pgstore: delete vectors: %w", err)
	}
	return nil
}

// GetVector fetches one record by ID.
func (s *VectorStore) GetVector(ctx context.Context, id string) (*ports.VectorRecord, error) {
	var row memoryRow
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&row).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("pgstore: get vector: %w", err)
	}
	return &ports.VectorRecord{
		ID:        row.ID,
		Embedding: row.Embedding.Slice(),
		Metadata:  map[string]any{"content": row.Content},
	}, nil
}

// Count reports the total row count.
func (s *VectorStore) Count(ctx context.Context) (uint64, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&memoryRow{}).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("pgstore: count: %w", err)
	}
	return uint64(count), nil
}

// Dimension returns the fixed embedding width this store was opened with.
func (s *VectorStore) Dimension(ctx context.Context) (uint32, error) {
	return s.dimension, nil
}

// FullTextIndex implements ports.FullTextIndex over the same table's
// generated tsvector column.
type FullTextIndex struct {
	db *gorm.DB
}

// NewFullTextIndex wraps an already-opened gorm.DB.
func NewFullTextIndex(db *gorm.DB) *FullTextIndex {
	return &FullTextIndex{db: db}
}

// Index is a no-op: VectorStore.AddVectors already writes the content
// column that Postgres's generated tsvector column indexes, so there is
// nothing extra for the full-text leg to store.
func (f *FullTextIndex) Index(ctx context.Context, docID, text string, metadata map[string]any) error {
	return nil
}

// Search ranks by Postgres's ts_rank over the generated tsvector column.
func (f *FullTextIndex) Search(ctx context.Context, text string, limit int, filters *ports.SearchFilters) ([]ports.ScoredRecord, int64, error) {
	query := f.db.WithContext(ctx).Model(&memoryRow{}).
		Where("content_tsv @@ plainto_tsquery('english', ?)", text)
	query = applyFilters(query, filters)

	type scoredRow struct {
		memoryRow
		Rank float64
	}
	var rows []scoredRow
	err := query.
		Select("hrce_memories.*, ts_rank(content_tsv, plainto_tsquery('english', ?)) AS rank", text).
		Order("rank DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, 0, fmt.Errorf("pgstore: fulltext search: %w", err)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("pgstore: fulltext search count: %w", err)
	}

	results := make([]ports.ScoredRecord, len(rows))
	for i, row := range rows {
		results[i] = ports.ScoredRecord{
			ID:       row.ID,
			Score:    row.Rank,
			Metadata: map[string]any{"content": row.Content},
		}
	}
	return results, total, nil
}

// Delete removes one record by ID.
func (f *FullTextIndex) Delete(ctx context.Context, id string) error {
	if err := f.db.WithContext(ctx).Where("id = ?", id).Delete(&memoryRow{}).Error; err != nil {
		return fmt.Errorf("pgstore: delete: %w", err)
	}
	return nil
}

// Clear truncates the entire table.
func (f *FullTextIndex) Clear(ctx context.Context) error {
	if err := f.db.WithContext(ctx).Exec("TRUNCATE TABLE hrce_memories").Error; err != nil {
		return fmt.Errorf("pgstore: clear: %w", err)
	}
	return nil
}

func applyFilters(query *gorm.DB, filters *ports.SearchFilters) *gorm.DB {
	if filters == nil {
		return query
	}
	if filters.UserID != "" {
		query = query.Where("user_id = ?", filters.UserID)
	}
	if filters.OrgID != "" {
		query = query.Where("org_id = ?", filters.OrgID)
	}
	if filters.AgentID != "" {
		query = query.Where("agent_id = ?", filters.AgentID)
	}
	if len(filters.Tags) > 0 {
		query = query.Where("tags && ?", filters.Tags)
	}
	if filters.TimeStart != nil {
		query = query.Where("created_at >= ?", time.UnixMilli(*filters.TimeStart))
	}
	if filters.TimeEnd != nil {
		query = query.Where("created_at <= ?", time.UnixMilli(*filters.TimeEnd))
	}
	return query
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
