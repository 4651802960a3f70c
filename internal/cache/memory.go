package cache

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/charlesng35/teamchat/pkg/metrics"
)

// Default lifetimes for the process-local caches.
const (
	DefaultLookupTTL   = 30 * time.Second
	DefaultIdentityTTL = 10 * time.Minute
	DefaultMemorySize  = 4096
)

type memoryEntry[V any] struct {
	value     V
	expiresAt time.Time
}

// MemoryCache is a bounded, process-local cache with a TTL per entry. It is safe
// for concurrent use; Put is last-write-wins. Nothing is shared across processes.
type MemoryCache[V any] struct {
	name       string
	defaultTTL time.Duration
	entries    *expirable.LRU[string, memoryEntry[V]]
	now        func() time.Time
}

// MemoryOption customises a MemoryCache.
type MemoryOption func(*memoryOptions)

type memoryOptions struct {
	size   int
	maxTTL time.Duration
	clock  func() time.Time
}

// WithMemorySize bounds the number of entries held before least-recently-used eviction.
func WithMemorySize(size int) MemoryOption {
	return func(o *memoryOptions) {
		if size > 0 {
			o.size = size
		}
	}
}

// WithMaxTTL caps how long any entry can live regardless of the ttl given to Put.
func WithMaxTTL(ttl time.Duration) MemoryOption {
	return func(o *memoryOptions) {
		if ttl > 0 {
			o.maxTTL = ttl
		}
	}
}

// WithMemoryClock injects a clock for per-entry expiry decisions.
func WithMemoryClock(clock func() time.Time) MemoryOption {
	return func(o *memoryOptions) {
		if clock != nil {
			o.clock = clock
		}
	}
}

// NewMemoryCache builds a cache named name (used as the metrics label) whose
// entries default to defaultTTL.
func NewMemoryCache[V any](name string, defaultTTL time.Duration, opts ...MemoryOption) *MemoryCache[V] {
	if defaultTTL <= 0 {
		defaultTTL = DefaultLookupTTL
	}
	o := memoryOptions{size: DefaultMemorySize, clock: time.Now}
	for _, opt := range opts {
		opt(&o)
	}

	return &MemoryCache[V]{
		name:       name,
		defaultTTL: defaultTTL,
		entries:    expirable.NewLRU[string, memoryEntry[V]](o.size, nil, o.maxTTL),
		now:        o.clock,
	}
}

// Get returns the cached value. An expired entry is reported as a miss and left in
// place until it is overwritten or evicted, so a concurrent Put is never lost.
func (c *MemoryCache[V]) Get(key string) (V, bool) {
	var zero V
	if c == nil {
		return zero, false
	}

	entry, ok := c.entries.Get(key)
	if !ok || !c.now().Before(entry.expiresAt) {
		metrics.CacheLookups.WithLabelValues(c.name, "miss").Inc()
		return zero, false
	}

	metrics.CacheLookups.WithLabelValues(c.name, "hit").Inc()
	return entry.value, true
}

// Put stores value under key for ttl; ttl <= 0 uses the cache default.
func (c *MemoryCache[V]) Put(key string, value V, ttl time.Duration) {
	if c == nil {
		return
	}
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	c.entries.Add(key, memoryEntry[V]{value: value, expiresAt: c.now().Add(ttl)})
}

// Invalidate removes key if present.
func (c *MemoryCache[V]) Invalidate(key string) {
	if c == nil {
		return
	}
	c.entries.Remove(key)
}

// Clear removes every entry.
func (c *MemoryCache[V]) Clear() {
	if c == nil {
		return
	}
	c.entries.Purge()
}

// Len reports the number of entries currently held, including ones not yet
// lazily evicted.
func (c *MemoryCache[V]) Len() int {
	if c == nil {
		return 0
	}
	return c.entries.Len()
}
