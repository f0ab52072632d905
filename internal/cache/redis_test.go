package cache_test

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oggyb/muzz-social/internal/cache"
	"github.com/oggyb/muzz-social/internal/config"
)

func newCache(t *testing.T) *cache.RedisCache {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	cfg := config.New()
	cfg.Redis.Addr = mr.Addr()
	c := cache.NewRedisCache(cfg)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestNextCardSeqIsMonotonic(t *testing.T) {
	ctx := context.Background()
	c := newCache(t)

	a, err := c.NextCardSeq(ctx)
	require.NoError(t, err)
	b, err := c.NextCardSeq(ctx)
	require.NoError(t, err)
	assert.Greater(t, b, a)
}

func TestSwapUnviewedChats(t *testing.T) {
	ctx := context.Background()
	c := newCache(t)

	_, known, err := c.SwapUnviewedChats(ctx, "u1", 2)
	require.NoError(t, err)
	assert.False(t, known)

	prev, known, err := c.SwapUnviewedChats(ctx, "u1", 3)
	require.NoError(t, err)
	assert.True(t, known)
	assert.Equal(t, int64(2), prev)

	n, ok, err := c.GetUnviewedChats(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(3), n)
}

func TestPublishSubscribe(t *testing.T) {
	ctx := context.Background()
	c := newCache(t)

	ps, err := c.Subscribe(ctx, "u1")
	require.NoError(t, err)
	defer ps.Close()

	require.NoError(t, c.Publish(ctx, "u1", []byte(`{"type":"ADDED"}`)))
	msg, err := ps.ReceiveMessage(ctx)
	require.NoError(t, err)
	assert.Equal(t, cache.NotificationChannel("u1"), msg.Channel)
	assert.JSONEq(t, `{"type":"ADDED"}`, msg.Payload)
}

func TestBadWords(t *testing.T) {
	ctx := context.Background()
	c := newCache(t)

	require.NoError(t, c.AddBadWords(ctx, "darn", "heck"))
	words, err := c.BadWords(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"darn", "heck"}, words)
}

func TestAnyBadWord(t *testing.T) {
	ctx := context.Background()
	c := newCache(t)

	hit, err := c.AnyBadWord(ctx, []string{"hello"})
	require.NoError(t, err)
	assert.False(t, hit)

	require.NoError(t, c.AddBadWords(ctx, "darn"))
	hit, err = c.AnyBadWord(ctx, []string{"hello", "darn"})
	require.NoError(t, err)
	assert.True(t, hit)
}
