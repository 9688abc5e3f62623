package l2redis

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// These tests only run against a real Redis instance, matching the
// teacher's pattern of skipping integration tests when the backing
// service isn't configured in the environment.
func testCache(t *testing.T) *Cache {
	url := os.Getenv("HRCE_TEST_REDIS_URL")
	if url == "" {
		t.Skip("HRCE_TEST_REDIS_URL not set; skipping Redis integration test")
	}
	return New(Options{URL: url, KeyPrefix: "hrce-test:"})
}

func TestCache_SetGetDelete(t *testing.T) {
	c := testCache(t)
	defer c.Close()
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", []byte("v"), 0))
	value, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("v"), value)

	require.NoError(t, c.Delete(ctx, "k"))
	_, ok, err = c.Get(ctx, "k")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestCache_TTLExpires(t *testing.T) {
	c := testCache(t)
	defer c.Close()
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "ttl-key", []byte("v"), 50))
	time.Sleep(150 * time.Millisecond)
	_, ok, err := c.Get(ctx, "ttl-key")
	require.NoError(t, err)
	require.False(t, ok)
}
