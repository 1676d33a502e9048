package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisCacheRoundTripAndExpiry(t *testing.T) {
	ctx := context.Background()
	server := miniredis.RunT(t)
	c, err := NewRedisCache(server.Addr(), "", "test", 30*time.Second)
	require.NoError(t, err)
	defer c.Close()
	require.NoError(t, c.Ping(ctx))

	var count int
	found, err := c.Get(ctx, UnreadCountKey(1), &count)
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, c.Set(ctx, UnreadCountKey(1), 4))
	assert.True(t, server.Exists("test:unread:count:1"))

	found, err = c.Get(ctx, UnreadCountKey(1), &count)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, 4, count)

	server.FastForward(31 * time.Second)
	found, err = c.Get(ctx, UnreadCountKey(1), &count)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestRedisCacheDelete(t *testing.T) {
	ctx := context.Background()
	server := miniredis.RunT(t)
	c, err := NewRedisCache(server.Addr(), "", "", 0)
	require.NoError(t, err)
	defer c.Close()

	require.NoError(t, c.Set(ctx, ThreadKey(3), map[string]int{"a": 1}))
	require.NoError(t, c.Delete(ctx, ThreadKey(3), UnreadCountKey(9)))
	assert.False(t, server.Exists("messaging:cache:thread:3"))
	require.NoError(t, c.Delete(ctx))
}

func TestRedisCacheErrors(t *testing.T) {
	_, err := NewRedisCache(" ", "", "", time.Second)
	require.Error(t, err)

	server := miniredis.RunT(t)
	c, err := NewRedisCache(server.Addr(), "", "", time.Second)
	require.NoError(t, err)
	defer c.Close()
	server.Close()

	var v int
	_, err = c.Get(context.Background(), "k", &v)
	require.Error(t, err)
}

func TestNoop(t *testing.T) {
	var c Cache = Noop{}
	require.NoError(t, c.Set(context.Background(), "k", 1))
	var v int
	found, err := c.Get(context.Background(), "k", &v)
	require.NoError(t, err)
	assert.False(t, found)
}
