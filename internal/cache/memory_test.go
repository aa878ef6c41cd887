package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCache_SetGet(t *testing.T) {
	c := NewMemoryCache(0)
	defer c.Close()

	require.NoError(t, c.Set(context.Background(), "k", "v", time.Minute))

	value, ok, err := c.Get(context.Background(), "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "v", value)
}

func TestMemoryCache_MissingKey(t *testing.T) {
	c := NewMemoryCache(0)
	defer c.Close()

	_, ok, err := c.Get(context.Background(), "missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryCache_Expiry(t *testing.T) {
	c := NewMemoryCache(0)
	defer c.Close()

	require.NoError(t, c.Set(context.Background(), "k", "v", 10*time.Millisecond))
	time.Sleep(20 * time.Millisecond)

	_, ok, err := c.Get(context.Background(), "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryCache_Overwrite(t *testing.T) {
	c := NewMemoryCache(0)
	defer c.Close()

	require.NoError(t, c.Set(context.Background(), "k", "v1", time.Minute))
	require.NoError(t, c.Set(context.Background(), "k", "v2", time.Minute))

	value, ok, err := c.Get(context.Background(), "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "v2", value)
}

func TestMemoryCache_Delete(t *testing.T) {
	c := NewMemoryCache(0)
	defer c.Close()

	require.NoError(t, c.Set(context.Background(), "k", "v", time.Minute))
	require.NoError(t, c.Delete(context.Background(), "k"))

	_, ok, err := c.Get(context.Background(), "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryCache_KeysByPrefix(t *testing.T) {
	c := NewMemoryCache(0)
	defer c.Close()

	require.NoError(t, c.Set(context.Background(), "prefs:u1", "a", time.Minute))
	require.NoError(t, c.Set(context.Background(), "prefs:u2", "b", time.Minute))
	require.NoError(t, c.Set(context.Background(), "session:u1", "c", time.Minute))
	require.NoError(t, c.Set(context.Background(), "prefs:stale", "d", -time.Minute))

	keys, err := c.Keys(context.Background(), "prefs:")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"prefs:u1", "prefs:u2"}, keys)
}

func TestMemoryCache_JanitorSweepsExpired(t *testing.T) {
	c := NewMemoryCache(10 * time.Millisecond)
	defer c.Close()

	require.NoError(t, c.Set(context.Background(), "k", "v", time.Millisecond))

	assert.Eventually(t, func() bool {
		c.mu.RLock()
		defer c.mu.RUnlock()
		_, exists := c.entries["k"]
		return !exists
	}, time.Second, 5*time.Millisecond)
}
