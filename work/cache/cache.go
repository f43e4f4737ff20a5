package cache

import (
	"time"

	"github.com/maypok86/otter/v2"

	"iptv-player/work/types"
)

const (
	keyStats  = "channels:stats"
	keyGroups = "channels:groups"
	keyExport = "channels:export"
)

// Cache holds derived channel views (stats, groups, exported M3U) that are
// expensive to recompute on every UI refresh. Entries expire after the
// configured duration and are dropped wholesale whenever channels change.
// Upstream playlists and segments are never cached here.
type Cache struct {
	store *otter.Cache[string, any]
}

// NewCache creates a Cache whose entries expire duration after being written.
//
// Parameters:
//   - duration: how long entries are considered valid before expiring
//
// Returns:
//   - *Cache: pointer to a new Cache object
func NewCache(duration time.Duration) *Cache {
	if duration <= 0 {
		duration = 30 * time.Second
	}
	return &Cache{
		store: otter.Must(&otter.Options[string, any]{
			MaximumSize:      64,
			ExpiryCalculator: otter.ExpiryWriting[string, any](duration),
		}),
	}
}

// GetM3U8 returns the cached channel export.
func (c *Cache) GetM3U8() (string, bool) {
	v, ok := c.store.GetIfPresent(keyExport)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// SetM3U8 caches the channel export.
func (c *Cache) SetM3U8(value string) {
	c.store.Set(keyExport, value)
}

// GetStats returns cached channel stats.
func (c *Cache) GetStats() (types.ChannelStats, bool) {
	v, ok := c.store.GetIfPresent(keyStats)
	if !ok {
		return types.ChannelStats{}, false
	}
	s, ok := v.(types.ChannelStats)
	return s, ok
}

// SetStats caches channel stats.
func (c *Cache) SetStats(stats types.ChannelStats) {
	c.store.Set(keyStats, stats)
}

// GetGroups returns the cached group list.
func (c *Cache) GetGroups() ([]string, bool) {
	v, ok := c.store.GetIfPresent(keyGroups)
	if !ok {
		return nil, false
	}
	g, ok := v.([]string)
	return g, ok
}

// SetGroups caches the group list. The slice must not be modified afterwards.
func (c *Cache) SetGroups(groups []string) {
	c.store.Set(keyGroups, groups)
}

// InvalidateStats drops only the stats entry; probe results change status counts
// but not groups or the export.
func (c *Cache) InvalidateStats() {
	c.store.Invalidate(keyStats)
}

// Clear drops every entry.
func (c *Cache) Clear() {
	c.store.InvalidateAll()
}
