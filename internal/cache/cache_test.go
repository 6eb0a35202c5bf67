package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEntryTTL(t *testing.T) {
	assert.Equal(t, 55*time.Minute, EntryTTL(time.Hour))
	assert.Equal(t, 270*time.Second, EntryTTL(5*time.Minute))
	assert.Equal(t, 115*time.Minute, EntryTTL(2*time.Hour))
	assert.Equal(t, time.Duration(0), EntryTTL(0))
}

func TestURLCacheRoundTrip(t *testing.T) {
	addr := os.Getenv("MEDIAVAULT_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("MEDIAVAULT_TEST_REDIS_ADDR not set")
	}
	ctx := context.Background()
	client, err := Connect(ctx, addr, "", 0)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	c := NewURLCache(client)

	key := "uploads/images/cache-test/a.png"
	require.NoError(t, c.Delete(ctx, key))

	_, ok, err := c.Get(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Set(ctx, key, "https://signed", time.Minute))
	url, ok, err := c.Get(ctx, key)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "https://signed", url)

	require.NoError(t, c.Delete(ctx, key))
	_, ok, err = c.Get(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)
}
