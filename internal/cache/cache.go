// Package cache provides an in-memory TTL cache of rendered responses with
// ETag support, backed by go-cache.
package cache

import (
	"crypto/md5"
	"fmt"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// TTL constants per response family.
const (
	TTLOccasionSummary = 1 * time.Minute
	TTLProviders       = 10 * time.Minute
)

type entry struct {
	data []byte
	etag string
}

// Cache is a thread-safe in-memory TTL cache.
type Cache struct {
	store   *gocache.Cache
	enabled bool
}

// New creates a new cache. Pass enabled=false to create a no-op cache.
func New(enabled bool) *Cache {
	return &Cache{
		store:   gocache.New(TTLOccasionSummary, 5*time.Minute),
		enabled: enabled,
	}
}

// Get retrieves a cached value. Returns data, etag, and whether the entry was found.
func (c *Cache) Get(key string) (data []byte, etag string, ok bool) {
	if !c.enabled {
		return nil, "", false
	}
	v, found := c.store.Get(key)
	if !found {
		return nil, "", false
	}
	e := v.(entry)
	return e.data, e.etag, true
}

// Set stores a value with a TTL and returns its ETag.
func (c *Cache) Set(key string, data []byte, ttl time.Duration) string {
	etag := ComputeETag(data)
	if c.enabled {
		c.store.Set(key, entry{data: data, etag: etag}, ttl)
	}
	return etag
}

// Invalidate drops a key, e.g. after an import changed the underlying data.
func (c *Cache) Invalidate(key string) {
	c.store.Delete(key)
}

// Stats returns cache statistics.
func (c *Cache) Stats() map[string]interface{} {
	return map[string]interface{}{
		"enabled":     c.enabled,
		"active_keys": c.store.ItemCount(),
	}
}

// ComputeETag generates a weak ETag from response data using MD5.
func ComputeETag(data []byte) string {
	hash := md5.Sum(data)
	return fmt.Sprintf(`W/"%x"`, hash[:8])
}

// CheckETagMatch checks if If-None-Match header matches the current ETag.
func CheckETagMatch(ifNoneMatch, etag string) bool {
	if ifNoneMatch == "" {
		return false
	}
	if ifNoneMatch == "*" {
		return true
	}
	return ifNoneMatch == etag
}
