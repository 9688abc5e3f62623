package pgstore

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/agentmem/hrce/internal/ports"
)

// testDB connects to a real, pgvector-enabled Postgres instance named by
// HRCE_TEST_POSTGRES_DSN. Skipped otherwise since this package has no
// in-process fake for a SQL dialect this specific.
func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := os.Getenv("HRCE_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("HRCE_TEST_POSTGRES_DSN not set, skipping pgstore integration test")
	}
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, Migrate(context.Background(), db, 4))
	return db
}

func TestVectorStore_AddAndSearchRoundTrip(t *testing.T) {
	db := testDB(t)
	vs := NewVectorStore(db, 4)
	ft := NewFullTextIndex(db)
	ctx := context.Background()
	require.NoError(t, ft.Clear(ctx))

	_, err := vs.AddVectors(ctx, []ports.VectorRecord{
		{ID: "a", Embedding: []float32{1, 0, 0, 0}, Metadata: map[string]any{"content": "hello world"}},
		{ID: "b", Embedding: []float32{0, 1, 0, 0}, Metadata: map[string]any{"content": "goodbye world"}},
	})
	require.NoError(t, err)

	results, total, err := vs.Search(ctx, []float32{1, 0, 0, 0}, 5, nil)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	require.Equal(t, int64(2), total)
	require.Equal(t, "a", results[0].ID)
}

func TestFullTextIndex_SearchRanksByRelevance(t *testing.T) {
	db := testDB(t)
	vs := NewVectorStore(db, 4)
	ft := NewFullTextIndex(db)
	ctx := context.Background()
	require.NoError(t, ft.Clear(ctx))

	_, err := vs.AddVectors(ctx, []ports.VectorRecord{
		{ID: "a", Embedding: []float32{1, 0, 0, 0}, Metadata: map[string]any{"content": "postgres full text search"}},
		{ID: "b", Embedding: []float32{0, 1, 0, 0}, Metadata: map[string]any{"content": "unrelated content about cats"}},
	})
	require.NoError(t, err)

	results, _, err := ft.Search(ctx, "postgres search", 5, nil)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	require.Equal(t, "a", results[0].ID)
}
