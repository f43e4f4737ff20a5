package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"iptv-player/work/types"
)

func TestCacheRoundTrip(t *testing.T) {
	c := NewCache(time.Minute)

	_, ok := c.GetStats()
	assert.False(t, ok)

	c.SetStats(types.ChannelStats{Total: 3, Online: 1, Offline: 1, Unknown: 1})
	c.SetGroups([]string{"News", "Sports"})
	c.SetM3U8("#EXTM3U\n")

	stats, ok := c.GetStats()
	assert.True(t, ok)
	assert.Equal(t, 3, stats.Total)

	groups, ok := c.GetGroups()
	assert.True(t, ok)
	assert.Equal(t, []string{"News", "Sports"}, groups)

	export, ok := c.GetM3U8()
	assert.True(t, ok)
	assert.Equal(t, "#EXTM3U\n", export)
}

func TestInvalidateStatsKeepsOthers(t *testing.T) {
	c := NewCache(time.Minute)
	c.SetStats(types.ChannelStats{Total: 1})
	c.SetGroups([]string{"A"})

	c.InvalidateStats()

	_, ok := c.GetStats()
	assert.False(t, ok)
	_, ok = c.GetGroups()
	assert.True(t, ok)
}

func TestClear(t *testing.T) {
	c := NewCache(time.Minute)
	c.SetM3U8("x")
	c.SetGroups([]string{"A"})

	c.Clear()

	_, ok := c.GetM3U8()
	assert.False(t, ok)
	_, ok = c.GetGroups()
	assert.False(t, ok)
}

func TestExpiry(t *testing.T) {
	c := NewCache(50 * time.Millisecond)
	c.SetM3U8("x")

	assert.Eventually(t, func() bool {
		_, ok := c.GetM3U8()
		return !ok
	}, 2*time.Second, 10*time.Millisecond)
}
