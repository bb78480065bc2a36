package loader

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/justin2061/drivefetch/internal/core/domain"
	"github.com/justin2061/drivefetch/internal/metrics"
)

// DefaultCacheTTL is how long a cached loader stays reusable.
const DefaultCacheTTL = 5 * time.Minute

// Cache reuses Loader instances per (folder, page size) within a TTL
// window, so repeated browsing of the same folder keeps its pagination
// progress. It caches the loader object itself, not an item snapshot.
type Cache struct {
	svc  Service
	ttl  time.Duration
	opts []Option

	mu      sync.Mutex
	entries map[string]*cacheEntry

	now func() time.Time
}

type cacheEntry struct {
	loader    *Loader
	createdAt time.Time
}

// NewCache creates a loader cache. A non-positive TTL uses the default.
// opts are applied to every loader the cache builds, on top of the
// requested page size.
func NewCache(svc Service, ttl time.Duration, opts ...Option) *Cache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &Cache{
		svc:     svc,
		ttl:     ttl,
		opts:    opts,
		entries: make(map[string]*cacheEntry),
		now:     time.Now,
	}
}

func cacheKey(folderID string, pageSize int) string {
	return fmt.Sprintf("%s:%d", folderID, pageSize)
}

// GetLoader returns the cached loader for (folderID, pageSize) when it is
// still fresh and forceRefresh is false; otherwise it builds and caches a
// new one.
func (c *Cache) GetLoader(folderID string, pageSize int, forceRefresh bool) (*Loader, error) {
	key := cacheKey(folderID, pageSize)

	c.mu.Lock()
	defer c.mu.Unlock()

	if !forceRefresh {
		if entry, ok := c.entries[key]; ok && c.now().Sub(entry.createdAt) < c.ttl {
			metrics.LoaderCacheHits.WithLabelValues("hit").Inc()
			slog.Debug("loader cache hit", "folder", folderID)
			return entry.loader, nil
		}
	}

	l, err := New(c.svc, folderID, append([]Option{WithPageSize(pageSize)}, c.opts...)...)
	if err != nil {
		return nil, err
	}

	c.entries[key] = &cacheEntry{loader: l, createdAt: c.now()}
	metrics.LoaderCacheHits.WithLabelValues("miss").Inc()
	slog.Debug("loader cache miss", "folder", folderID)
	return l, nil
}

// CachedItems returns the accumulated items of the first fresh, non-empty
// loader cached for the folder, or nil when none exists.
func (c *Cache) CachedItems(folderID string) []*domain.File {
	c.mu.Lock()
	defer c.mu.Unlock()

	for key, entry := range c.entries {
		if !strings.HasPrefix(key, folderID) {
			continue
		}
		if c.now().Sub(entry.createdAt) >= c.ttl {
			continue
		}
		if items := entry.loader.Items(); len(items) > 0 {
			return items
		}
	}
	return nil
}

// Invalidate removes all entries for the folder.
func (c *Cache) Invalidate(folderID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for key := range c.entries {
		if strings.HasPrefix(key, folderID) {
			delete(c.entries, key)
		}
	}
	slog.Debug("loader cache invalidated", "folder", folderID)
}

// InvalidateAll clears the entire cache.
func (c *Cache) InvalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*cacheEntry)
	slog.Debug("loader cache cleared")
}

// CleanupExpired removes entries older than the TTL and returns how many
// were dropped. Callers schedule this externally; the cache never runs
// its own timers.
func (c *Cache) CleanupExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key, entry := range c.entries {
		if c.now().Sub(entry.createdAt) >= c.ttl {
			delete(c.entries, key)
			removed++
		}
	}
	if removed > 0 {
		slog.Debug("loader cache cleanup", "removed", removed)
	}
	return removed
}

// Len returns the number of cached loaders.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
