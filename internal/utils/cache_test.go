package utils

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) *Cache {
	t.Helper()
	srv := miniredis.RunT(t)
	return NewCache(redis.NewClient(&redis.Options{Addr: srv.Addr()}))
}

func TestCacheRoundTrip(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", map[string]int{"a": 1}, time.Minute))
	var got map[string]int
	found, err := c.Get(ctx, "k", &got)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, 1, got["a"])

	require.NoError(t, c.Delete(ctx, "k"))
	found, err = c.Get(ctx, "k", &got)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestCacheDeletePrefix(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, HistoryKey(7, 1, 20), []int{1}, time.Minute))
	require.NoError(t, c.Set(ctx, HistoryKey(7, 2, 20), []int{2}, time.Minute))
	require.NoError(t, c.Set(ctx, HistoryKey(8, 1, 20), []int{3}, time.Minute))

	require.NoError(t, c.DeletePrefix(ctx, HistoryPrefix(7)))

	var v []int
	found, _ := c.Get(ctx, HistoryKey(7, 2, 20), &v)
	assert.False(t, found)
	found, _ = c.Get(ctx, HistoryKey(8, 1, 20), &v)
	assert.True(t, found)
}

func TestMarkOnce(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	first, err := c.MarkOnce(ctx, "update:1", time.Hour)
	require.NoError(t, err)
	second, err := c.MarkOnce(ctx, "update:1", time.Hour)
	require.NoError(t, err)
	assert.True(t, first)
	assert.False(t, second)
}

func TestDisabledCacheIsAMiss(t *testing.T) {
	var c *Cache
	ctx := context.Background()

	found, err := c.Get(ctx, "k", &struct{}{})
	assert.NoError(t, err)
	assert.False(t, found)
	assert.NoError(t, c.Set(ctx, "k", 1, time.Minute))
	first, err := c.MarkOnce(ctx, "k", time.Minute)
	assert.NoError(t, err)
	assert.True(t, first)
	assert.NoError(t, c.Ping(ctx))
}
