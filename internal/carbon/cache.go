package carbon

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ReportCache keeps recently calculated estimates in memory, keyed by farm
// and date range. Entries expire after the configured TTL.
type ReportCache struct {
	data    map[string]*cacheEntry
	ttl     time.Duration
	mu      sync.RWMutex
	cleanup *time.Ticker
	done    chan struct{}
	once    sync.Once

	hits   int64
	misses int64
}

type cacheEntry struct {
	value      *CalculationResponse
	expiration time.Time
}

// CacheStats reports cache usage
type CacheStats struct {
	Size    int     `json:"size"`
	Hits    int64   `json:"hits"`
	Misses  int64   `json:"misses"`
	HitRate float64 `json:"hit_rate"`
}

// NewReportCache creates a cache and starts its cleanup goroutine
func NewReportCache(ttl time.Duration) *ReportCache {
	cache := &ReportCache{
		data:    make(map[string]*cacheEntry),
		ttl:     ttl,
		cleanup: time.NewTicker(time.Minute),
		done:    make(chan struct{}),
	}

	go cache.cleanupLoop()

	return cache
}

func cacheKey(farmID uuid.UUID, start, end time.Time) string {
	return farmID.String() + ":" + start.Format(dateLayout) + ":" + end.Format(dateLayout)
}

// Get returns a cached estimate for the farm and range
func (c *ReportCache) Get(farmID uuid.UUID, start, end time.Time) (*CalculationResponse, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.data[cacheKey(farmID, start, end)]
	if !ok || time.Now().After(entry.expiration) {
		c.misses++
		return nil, false
	}

	c.hits++
	return entry.value, true
}

// Set stores an estimate
func (c *ReportCache) Set(farmID uuid.UUID, start, end time.Time, value *CalculationResponse) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.data[cacheKey(farmID, start, end)] = &cacheEntry{
		value:      value,
		expiration: time.Now().Add(c.ttl),
	}
}

// InvalidateFarm removes every cached range for a farm
func (c *ReportCache) InvalidateFarm(farmID uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()

	prefix := farmID.String() + ":"
	for key := range c.data {
		if strings.HasPrefix(key, prefix) {
			delete(c.data, key)
		}
	}
}

// Stats returns cache statistics
func (c *ReportCache) Stats() CacheStats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	total := c.hits + c.misses
	hitRate := 0.0
	if total > 0 {
		hitRate = float64(c.hits) / float64(total)
	}

	return CacheStats{
		Size:    len(c.data),
		Hits:    c.hits,
		Misses:  c.misses,
		HitRate: hitRate,
	}
}

func (c *ReportCache) cleanupLoop() {
	for {
		select {
		case <-c.cleanup.C:
			c.removeExpired()
		case <-c.done:
			return
		}
	}
}

func (c *ReportCache) removeExpired() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	for key, entry := range c.data {
		if now.After(entry.expiration) {
			delete(c.data, key)
		}
	}
}

// Stop stops the cleanup goroutine. It is safe to call more than once.
func (c *ReportCache) Stop() {
	c.once.Do(func() {
		c.cleanup.Stop()
		close(c.done)
	})
}
