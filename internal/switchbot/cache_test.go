package switchbot

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCacheExpiry(t *testing.T) {
	c := NewMemoryCache()
	now := time.Date(2024, 6, 5, 9, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", []byte("v"), time.Minute))
	b, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("v"), b)

	now = now.Add(2 * time.Minute)
	_, ok, _ = c.Get(ctx, "k")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())
}

func TestMemoryCacheDeletePrefix(t *testing.T) {
	c := NewMemoryCache()
	ctx := context.Background()
	_ = c.Set(ctx, statusKey("a"), []byte("1"), time.Minute)
	_ = c.Set(ctx, statusKey("b"), []byte("2"), time.Minute)
	_ = c.Set(ctx, keyDevices, []byte("3"), time.Minute)

	require.NoError(t, c.DeletePrefix(ctx, keyStatusPrefix))
	assert.Equal(t, 1, c.Len())
	_, ok, _ := c.Get(ctx, keyDevices)
	assert.True(t, ok)
}

func TestMemoryCacheSweepsWhenFull(t *testing.T) {
	c := NewMemoryCache()
	c.maxEntries = 2
	now := time.Date(2024, 6, 5, 9, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }
	ctx := context.Background()

	_ = c.Set(ctx, "old", []byte("1"), time.Second)
	_ = c.Set(ctx, "fresh", []byte("2"), time.Hour)
	now = now.Add(time.Minute)
	_ = c.Set(ctx, "new", []byte("3"), time.Hour)

	assert.Equal(t, 2, c.Len())
}

// Runs against a real server when REDIS_ADDR is set
func TestRedisCache(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = rdb.Close() })
	ctx := context.Background()
	c := NewRedisCache(rdb)

	require.NoError(t, c.Set(ctx, statusKey("test-a"), []byte(`{"power":"on"}`), time.Minute))
	require.NoError(t, c.Set(ctx, statusKey("test-b"), []byte(`{}`), time.Minute))
	b, ok, err := c.Get(ctx, statusKey("test-a"))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.JSONEq(t, `{"power":"on"}`, string(b))

	require.NoError(t, c.DeletePrefix(ctx, keyStatusPrefix+"test-"))
	_, ok, err = c.Get(ctx, statusKey("test-b"))
	require.NoError(t, err)
	assert.False(t, ok)
}
