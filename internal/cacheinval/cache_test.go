package cacheinval

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTagCache(t *testing.T) (*TagCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewTagCache(rdb, "test:"), mr
}

func TestTagCacheInvalidatesTaggedEntries(t *testing.T) {
	c, _ := newTagCache(t)
	ctx := context.Background()
	require.NoError(t, c.Put(ctx, "agenda:2024-05-01", []byte("a"), time.Hour, "evenements:2024-05-01", "evenements"))
	require.NoError(t, c.Put(ctx, "agenda:2024-05-02", []byte("b"), time.Hour, "evenements:2024-05-02"))
	require.NoError(t, c.Put(ctx, "evenement:7", []byte("c"), time.Hour, "evenement:7"))

	n, err := c.InvalidateTags(ctx, []string{"evenement:7", "evenements"})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	_, ok, err := c.Get(ctx, "agenda:2024-05-01")
	require.NoError(t, err)
	assert.False(t, ok)
	_, ok, err = c.Get(ctx, "evenement:7")
	require.NoError(t, err)
	assert.False(t, ok)
	v, ok, err := c.Get(ctx, "agenda:2024-05-02")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("b"), v)

	n, err = c.InvalidateTags(ctx, []string{"evenements"})
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestTagCacheNoTags(t *testing.T) {
	c, _ := newTagCache(t)
	n, err := c.InvalidateTags(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, n)
}
