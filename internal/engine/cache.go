package engine

import (
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// DefaultStatsTTL is how long computed race statistics are served from cache.
const DefaultStatsTTL = 5 * time.Second

type cacheEntry struct {
	stats    *RaceStats
	storedAt time.Time
	gen      uint64
}

// StatsCache holds computed race statistics per race. Every write to a race
// must call Invalidate; a computation that started before an invalidation
// never populates the cache.
type StatsCache struct {
	ttl time.Duration
	now func() time.Time

	mu      sync.Mutex
	entries map[string]cacheEntry
	gens    map[string]uint64

	group singleflight.Group
}

// NewStatsCache creates a cache whose entries expire after ttl.
func NewStatsCache(ttl time.Duration, now func() time.Time) *StatsCache {
	if now == nil {
		now = time.Now
	}
	return &StatsCache{
		ttl:     ttl,
		now:     now,
		entries: make(map[string]cacheEntry),
		gens:    make(map[string]uint64),
	}
}

// Get returns the cached stats for raceID, calling compute on a miss.
// Concurrent misses for the same race share one computation.
func (c *StatsCache) Get(raceID string, compute func() (*RaceStats, error)) (*RaceStats, error) {
	c.mu.Lock()
	gen := c.gens[raceID]
	if e, ok := c.entries[raceID]; ok && e.gen == gen && c.now().Sub(e.storedAt) < c.ttl {
		c.mu.Unlock()
		statsCacheRequests.WithLabelValues(cacheHit).Inc()
		return e.stats, nil
	}
	c.mu.Unlock()
	statsCacheRequests.WithLabelValues(cacheMiss).Inc()

	v, err, _ := c.group.Do(raceID+"/"+strconv.FormatUint(gen, 10), func() (any, error) {
		stats, err := compute()
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		if c.gens[raceID] == gen {
			c.entries[raceID] = cacheEntry{stats: stats, storedAt: c.now(), gen: gen}
		}
		c.mu.Unlock()
		return stats, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*RaceStats), nil
}

// Invalidate discards the cached stats for raceID and fences off any
// computation already in flight.
func (c *StatsCache) Invalidate(raceID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gens[raceID]++
	delete(c.entries, raceID)
}

// Len returns the number of cached entries.
func (c *StatsCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
