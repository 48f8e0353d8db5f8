package storkit

import (
	"context"
	"io"
	"sync"
	"time"
)

// ============================================================================
// Cache Interface
// ============================================================================

// Cache defines the interface for cache backends used by MetaCacheLayer.
// It is deliberately small and backend-agnostic so implementations can sit
// on process memory, Redis, Memcached, or anything else.
//
// Implementations must be safe for concurrent use.
type Cache interface {
	// Get retrieves a value from the cache.
	// Returns the value and true if found, nil and false otherwise.
	Get(key string) (any, bool)

	// Set stores a value in the cache with the given TTL.
	// A TTL of 0 means no expiration.
	Set(key string, value any, ttl time.Duration)

	// Delete removes a value from the cache.
	Delete(key string)

	// Clear removes all values from the cache.
	Clear()
}

// CacheStats is optionally implemented by caches that track usage.
type CacheStats interface {
	Stats() CacheStatistics
}

// CacheStatistics contains cache performance metrics.
type CacheStatistics struct {
	Hits    int64
	Misses  int64
	Size    int64
	HitRate float64
}

// ============================================================================
// In-Memory Cache Implementation
// ============================================================================

// cacheEntry represents a single cache entry with expiration.
type cacheEntry struct {
	value      any
	expiration time.Time
	hasExpiry  bool
}

// MemoryCache is a simple in-memory cache with TTL-based expiration.
// It is safe for concurrent use.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]*cacheEntry
	hits    int64
	misses  int64
}

// NewMemoryCache creates a new in-memory cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		entries: make(map[string]*cacheEntry),
	}
}

// Get retrieves a value from the cache.
func (c *MemoryCache) Get(key string) (any, bool) {
	c.mu.RLock()
	entry, exists := c.entries[key]
	c.mu.RUnlock()

	if !exists {
		c.mu.Lock()
		c.misses++
		c.mu.Unlock()
		return nil, false
	}

	if entry.hasExpiry && time.Now().After(entry.expiration) {
		c.mu.Lock()
		delete(c.entries, key)
		c.misses++
		c.mu.Unlock()
		return nil, false
	}

	c.mu.Lock()
	c.hits++
	c.mu.Unlock()
	return entry.value, true
}

// Set stores a value in the cache.
func (c *MemoryCache) Set(key string, value any, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry := &cacheEntry{value: value}
	if ttl > 0 {
		entry.expiration = time.Now().Add(ttl)
		entry.hasExpiry = true
	}
	c.entries[key] = entry
}

// Delete removes a value from the cache.
func (c *MemoryCache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// Clear removes all values from the cache.
func (c *MemoryCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*cacheEntry)
}

// Stats returns cache statistics.
func (c *MemoryCache) Stats() CacheStatistics {
	c.mu.RLock()
	defer c.mu.RUnlock()

	total := c.hits + c.misses
	var hitRate float64
	if total > 0 {
		hitRate = float64(c.hits) / float64(total)
	}

	return CacheStatistics{
		Hits:    c.hits,
		Misses:  c.misses,
		Size:    int64(len(c.entries)),
		HitRate: hitRate,
	}
}

// Cleanup removes expired entries. Call periodically so expired entries
// do not accumulate.
func (c *MemoryCache) Cleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	for key, entry := range c.entries {
		if entry.hasExpiry && now.After(entry.expiration) {
			delete(c.entries, key)
		}
	}
}

var (
	_ Cache      = (*MemoryCache)(nil)
	_ CacheStats = (*MemoryCache)(nil)
)

// ============================================================================
// MetaCacheLayer
// ============================================================================

// MetaCacheLayer caches Stat metadata in front of the backend. Useful for
// reducing latency of repeated metadata queries and cutting API calls to
// cloud storage.
//
// Only metadata is cached, never content: content caching would consume
// unbounded memory for large objects. Mutations through the same layered
// accessor invalidate the affected entries; mutations that bypass the
// layer are invisible until the TTL expires.
type MetaCacheLayer struct {
	// Cache is the backing store. Nil selects a fresh MemoryCache.
	Cache Cache

	// TTL is the lifetime of cached metadata. Zero selects 5 minutes.
	TTL time.Duration

	// KeyPrefix is prepended to cache keys, for sharing one Cache
	// between several accessors.
	KeyPrefix string
}

// Apply implements Layer.
func (l MetaCacheLayer) Apply(inner Accessor) Accessor {
	cache := l.Cache
	if cache == nil {
		cache = NewMemoryCache()
	}
	ttl := l.TTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &metaCacheAccessor{
		passthrough: passthrough{inner: inner},
		cache:       cache,
		ttl:         ttl,
		prefix:      l.KeyPrefix,
	}
}

type metaCacheAccessor struct {
	passthrough
	cache  Cache
	ttl    time.Duration
	prefix string
}

func (a *metaCacheAccessor) key(path string) string {
	return a.prefix + "stat:" + path
}

func (a *metaCacheAccessor) invalidate(paths ...string) {
	for _, p := range paths {
		a.cache.Delete(a.key(p))
	}
}

func (a *metaCacheAccessor) Stat(ctx context.Context, path string, opts StatOptions) (Metadata, error) {
	// Conditional stats must see the live backend state.
	if opts.IfMatch != "" {
		return a.inner.Stat(ctx, path, opts)
	}

	if cached, ok := a.cache.Get(a.key(path)); ok {
		return cached.(Metadata), nil
	}

	meta, err := a.inner.Stat(ctx, path, opts)
	if err != nil {
		return Metadata{}, err
	}
	a.cache.Set(a.key(path), meta, a.ttl)
	return meta, nil
}

func (a *metaCacheAccessor) Write(ctx context.Context, path string, r io.Reader, opts WriteOptions) (Metadata, error) {
	meta, err := a.inner.Write(ctx, path, r, opts)
	if err == nil {
		a.invalidate(path)
	}
	return meta, err
}

func (a *metaCacheAccessor) Delete(ctx context.Context, path string, opts DeleteOptions) error {
	err := a.inner.Delete(ctx, path, opts)
	if err == nil {
		a.invalidate(path)
	}
	return err
}

func (a *metaCacheAccessor) CreateDir(ctx context.Context, path string) error {
	err := a.inner.CreateDir(ctx, path)
	if err == nil {
		a.invalidate(path)
	}
	return err
}

func (a *metaCacheAccessor) Rename(ctx context.Context, from, to string) error {
	err := a.inner.Rename(ctx, from, to)
	if err == nil {
		a.invalidate(from, to)
	}
	return err
}

func (a *metaCacheAccessor) Copy(ctx context.Context, from, to string) error {
	err := a.inner.Copy(ctx, from, to)
	if err == nil {
		a.invalidate(to)
	}
	return err
}

// OpenWrite invalidates lazily: the path entry is dropped when the blob
// writer publishes.
func (a *metaCacheAccessor) OpenWrite(ctx context.Context, path string, opts WriteOptions) (BlobWriter, error) {
	blob, err := a.passthrough.OpenWrite(ctx, path, opts)
	if err != nil {
		return nil, err
	}
	return &invalidatingBlobWriter{BlobWriter: blob, acc: a, path: path}, nil
}

type invalidatingBlobWriter struct {
	BlobWriter
	acc  *metaCacheAccessor
	path string
}

func (w *invalidatingBlobWriter) Close() (Metadata, error) {
	meta, err := w.BlobWriter.Close()
	if err == nil {
		w.acc.invalidate(w.path)
	}
	return meta, err
}

var _ Accessor = (*metaCacheAccessor)(nil)
