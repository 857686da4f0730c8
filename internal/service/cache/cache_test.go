package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTTLCacheExpires(t *testing.T) {
	c := NewTTLCache()
	now := time.Unix(1700000000, 0)
	c.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, c.SetBytes(ctx, "symbols:huobi", []byte("[1]"), time.Minute))
	require.NoError(t, c.SetBytes(ctx, "forever", []byte("x"), 0))

	b, ok, err := c.GetBytes(ctx, "symbols:huobi")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "[1]", string(b))

	now = now.Add(2 * time.Minute)
	_, ok, _ = c.GetBytes(ctx, "symbols:huobi")
	assert.False(t, ok)
	_, ok, _ = c.GetBytes(ctx, "forever")
	assert.True(t, ok)

	_, ok, err = c.GetBytes(ctx, "missing")
	assert.NoError(t, err)
	assert.False(t, ok)
}

func TestTTLCacheCopiesValue(t *testing.T) {
	c := NewTTLCache()
	v := []byte("abc")
	require.NoError(t, c.SetBytes(context.Background(), "k", v, 0))
	v[0] = 'z'
	b, _, _ := c.GetBytes(context.Background(), "k")
	assert.Equal(t, "abc", string(b))
}

func TestRedisCacheUnreachable(t *testing.T) {
	rc := NewRedisCache(RedisConfig{Addr: "127.0.0.1:1", Prefix: "coinpull:"})
	defer rc.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	assert.Error(t, rc.Ping(ctx))
	_, ok, err := rc.GetBytes(ctx, "symbols:binance")
	assert.Error(t, err)
	assert.False(t, ok)
}
