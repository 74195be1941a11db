package store

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"sync"
	"time"

	"golang.org/x/text/cases"

	"github.com/i474232898/natal-chart-gateway/internal/natal"
)

// DefaultMaxEntries bounds the cache when no explicit limit is configured.
const DefaultMaxEntries = 10000

type cacheEntry struct {
	records   []natal.LocationRecord
	expiresAt time.Time
}

// LocationCache is a concurrency-safe in-memory cache of location search
// results keyed by normalized query. Entries expire a fixed TTL after they
// were stored; reads do not extend them.
type LocationCache struct {
	mu sync.RWMutex

	// key: normalized query digest
	data map[string]cacheEntry

	maxEntries int // 0 = unlimited
	now        func() time.Time
}

// NewLocationCache creates a new LocationCache.
// If maxEntries is <= 0, it is treated as unlimited.
func NewLocationCache(maxEntries int) *LocationCache {
	if maxEntries < 0 {
		maxEntries = 0
	}
	return &LocationCache{
		data:       make(map[string]cacheEntry),
		maxEntries: maxEntries,
		now:        time.Now,
	}
}

// WithClock replaces the time source. Used by tests.
func (c *LocationCache) WithClock(now func() time.Time) *LocationCache {
	c.now = now
	return c
}

// Key derives the cache key for query: the SHA-256 digest of the trimmed,
// case-folded text. "London" and " london " share a key.
func (c *LocationCache) Key(query string) string {
	// A Caser carries state, so each call gets its own.
	sum := sha256.Sum256([]byte(cases.Fold().String(strings.TrimSpace(query))))
	return hex.EncodeToString(sum[:])
}

// Get returns the cached results for query if present and unexpired.
func (c *LocationCache) Get(query string) ([]natal.LocationRecord, bool) {
	key := c.Key(query)

	c.mu.RLock()
	entry, ok := c.data[key]
	c.mu.RUnlock()

	if !ok {
		return nil, false
	}
	if !c.now().Before(entry.expiresAt) {
		c.mu.Lock()
		// Re-check; a concurrent Put may have refreshed the entry.
		if cur, ok := c.data[key]; ok && !c.now().Before(cur.expiresAt) {
			delete(c.data, key)
		}
		c.mu.Unlock()
		return nil, false
	}
	return cloneRecords(entry.records), true
}

// Put stores records for query, replacing any existing entry.
func (c *LocationCache) Put(query string, records []natal.LocationRecord, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	key := c.Key(query)
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.data[key]; !exists && c.maxEntries > 0 && len(c.data) >= c.maxEntries {
		c.purgeLocked(now)
		if len(c.data) >= c.maxEntries {
			c.evictOldestLocked()
		}
	}

	c.data[key] = cacheEntry{
		records:   cloneRecords(records),
		expiresAt: now.Add(ttl),
	}
}

// Invalidate drops the entry for query, if any.
func (c *LocationCache) Invalidate(query string) {
	key := c.Key(query)

	c.mu.Lock()
	delete(c.data, key)
	c.mu.Unlock()
}

// Purge removes every expired entry and reports how many were dropped.
func (c *LocationCache) Purge() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.purgeLocked(c.now())
}

// Len returns the number of stored entries, expired ones included.
func (c *LocationCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.data)
}

func (c *LocationCache) purgeLocked(now time.Time) int {
	removed := 0
	for key, entry := range c.data {
		if !now.Before(entry.expiresAt) {
			delete(c.data, key)
			removed++
		}
	}
	return removed
}

// evictOldestLocked drops the entry closest to expiry.
func (c *LocationCache) evictOldestLocked() {
	var (
		oldestKey string
		oldestAt  time.Time
	)
	for key, entry := range c.data {
		if oldestKey == "" || entry.expiresAt.Before(oldestAt) {
			oldestKey, oldestAt = key, entry.expiresAt
		}
	}
	if oldestKey != "" {
		delete(c.data, oldestKey)
	}
}

func cloneRecords(in []natal.LocationRecord) []natal.LocationRecord {
	if in == nil {
		return nil
	}
	out := make([]natal.LocationRecord, len(in))
	copy(out, in)
	for i := range out {
		if p := out[i].UTCOffsetRounded; p != nil {
			out[i].UTCOffsetRounded = natal.Float64(*p)
		}
	}
	return out
}
