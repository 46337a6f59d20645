package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTTLCache_GetSet(t *testing.T) {
	c := New(10)
	defer c.Stop()

	_, ok := c.Get("latest")
	assert.False(t, ok, "empty cache misses")

	c.Set("latest", "snapshot-1", time.Minute)
	got, ok := c.Get("latest")
	require.True(t, ok)
	assert.Equal(t, "snapshot-1", got)

	stats := c.Stats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.Equal(t, 0.5, stats.HitRatio())
	assert.Equal(t, 1, stats.Entries)
}

func TestTTLCache_ExpiredEntryMisses(t *testing.T) {
	c := New(10)
	defer c.Stop()

	c.Set("latest", "stale", -time.Second)
	_, ok := c.Get("latest")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Stats().Entries, "expired entry dropped on read")
}

func TestTTLCache_EvictsLeastRecentlyUsed(t *testing.T) {
	c := New(2)
	defer c.Stop()

	c.Set("a", 1, time.Minute)
	c.Set("b", 2, time.Minute)

	// Touch "a" so "b" becomes the eviction candidate
	_, ok := c.Get("a")
	require.True(t, ok)

	c.Set("c", 3, time.Minute)

	_, ok = c.Get("b")
	assert.False(t, ok, "least recently used entry evicted")
	_, ok = c.Get("a")
	assert.True(t, ok)
	_, ok = c.Get("c")
	assert.True(t, ok)
	assert.Equal(t, int64(1), c.Stats().Evictions)
}

func TestTTLCache_OverwriteDoesNotEvict(t *testing.T) {
	c := New(2)
	defer c.Stop()

	c.Set("a", 1, time.Minute)
	c.Set("b", 2, time.Minute)
	c.Set("a", 10, time.Minute)

	got, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, 10, got)
	_, ok = c.Get("b")
	assert.True(t, ok, "rewriting a live key must not push out its neighbor")
	assert.Zero(t, c.Stats().Evictions)
}

func TestTTLCache_Clear(t *testing.T) {
	c := New(10)
	defer c.Stop()

	c.Set("a", 1, time.Minute)
	c.Clear()

	_, ok := c.Get("a")
	assert.False(t, ok)
	stats := c.Stats()
	assert.Equal(t, int64(1), stats.Misses, "counters restart after clear")
	assert.Zero(t, stats.Hits)
}
