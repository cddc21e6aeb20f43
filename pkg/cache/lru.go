// Package cache implements the bounded, in-memory cache kinds from the
// compile pipeline's Data Model: the Parse Cache, Transform Cache,
// Resolution Cache, and type-check memoisation cache. All four are built
// on a shared generic LRU primitive backed by
// github.com/hashicorp/golang-lru/v2, the substitute chosen for the
// unfetchable internal kit/lru package seen across the retrieved pack.
package cache

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Sized is implemented by values stored in a ByteBounded cache so it can
// track aggregate footprint without a separate size table.
type Sized interface {
	ByteSize() int
}

// Metrics snapshots hit/miss/eviction counters for the status command and
// the Prometheus collector.
type Metrics struct {
	Hits      uint64
	Misses    uint64
	Evictions uint64
	Entries   int
	Bytes     int64
}

// ByteBounded is an LRU cache bounded by both entry count and total byte
// footprint. Eviction runs oldest-first until both bounds are satisfied.
// Used for the Transform Cache, whose entries vary widely in size.
type ByteBounded[K comparable, V Sized] struct {
	mu        sync.Mutex
	inner     *lru.Cache[K, V]
	maxBytes  int64
	curBytes  int64
	hits      uint64
	misses    uint64
	evictions uint64
}

// NewByteBounded creates a cache capped at maxEntries items and maxBytes
// of aggregate Sized.ByteSize(). maxEntries also acts as a hard ceiling
// independent of the byte cap, preventing an adversarial run of
// zero-byte entries from growing unbounded.
func NewByteBounded[K comparable, V Sized](maxEntries int, maxBytes int64) *ByteBounded[K, V] {
	b := &ByteBounded[K, V]{maxBytes: maxBytes}
	inner, _ := lru.NewWithEvict[K, V](maxEntries, func(_ K, v V) {
		b.curBytes -= int64(v.ByteSize())
		b.evictions++
	})
	b.inner = inner
	return b
}

// Get returns the cached value for key and records a hit or miss.
func (b *ByteBounded[K, V]) Get(key K) (V, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	v, ok := b.inner.Get(key)
	if ok {
		b.hits++
	} else {
		b.misses++
	}
	return v, ok
}

// Put inserts value under key, evicting the least-recently-used entries
// until the byte cap is satisfied.
func (b *ByteBounded[K, V]) Put(key K, value V) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if old, ok := b.inner.Peek(key); ok {
		b.curBytes -= int64(old.ByteSize())
	}
	b.inner.Add(key, value)
	b.curBytes += int64(value.ByteSize())

	for b.curBytes > b.maxBytes && b.inner.Len() > 0 {
		// The evict callback subtracts the removed entry's bytes.
		if _, _, ok := b.inner.RemoveOldest(); !ok {
			break
		}
	}
}

// Remove evicts key if present, used by HMR and watch-triggered
// invalidation.
func (b *ByteBounded[K, V]) Remove(key K) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.inner.Remove(key)
}

// Purge clears the cache entirely.
func (b *ByteBounded[K, V]) Purge() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.inner.Purge()
	b.curBytes = 0
}

// Metrics returns a snapshot of cache occupancy and hit ratio, reported
// by the status command.
func (b *ByteBounded[K, V]) Metrics() Metrics {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Metrics{
		Hits:      b.hits,
		Misses:    b.misses,
		Evictions: b.evictions,
		Entries:   b.inner.Len(),
		Bytes:     b.curBytes,
	}
}

// ttlEntry wraps a value with the time it was inserted.
type ttlEntry[V any] struct {
	value   V
	stored  time.Time
	expires time.Duration
}

func (e ttlEntry[V]) expired(now time.Time) bool {
	return now.Sub(e.stored) > e.expires
}

// TTL is an LRU cache whose entries additionally expire after a fixed
// duration, regardless of recency of use. Used for the Resolution Cache,
// which must not serve stale module-resolution results forever even when
// the resolved module is looked up constantly.
type TTL[K comparable, V any] struct {
	mu        sync.Mutex
	inner     *lru.Cache[K, ttlEntry[V]]
	ttl       time.Duration
	hits      uint64
	misses    uint64
	evictions uint64
}

// NewTTL creates a cache capped at maxEntries items where each entry
// expires ttl after insertion.
func NewTTL[K comparable, V any](maxEntries int, ttl time.Duration) *TTL[K, V] {
	t := &TTL[K, V]{ttl: ttl}
	inner, _ := lru.NewWithEvict[K, ttlEntry[V]](maxEntries, func(_ K, _ ttlEntry[V]) {
		t.evictions++
	})
	t.inner = inner
	return t
}

// Get returns the cached value for key if present and not expired. An
// expired entry is evicted and reported as a miss.
func (t *TTL[K, V]) Get(key K) (V, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	entry, ok := t.inner.Get(key)
	if !ok {
		t.misses++
		var zero V
		return zero, false
	}
	if entry.expired(time.Now()) {
		t.inner.Remove(key)
		t.misses++
		var zero V
		return zero, false
	}
	t.hits++
	return entry.value, true
}

// Put inserts value under key with the cache's configured TTL.
func (t *TTL[K, V]) Put(key K, value V) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.inner.Add(key, ttlEntry[V]{value: value, stored: time.Now(), expires: t.ttl})
}

// Remove evicts key if present.
func (t *TTL[K, V]) Remove(key K) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.inner.Remove(key)
}

// Purge clears the cache entirely.
func (t *TTL[K, V]) Purge() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.inner.Purge()
}

// Metrics returns a snapshot of cache occupancy and hit ratio.
func (t *TTL[K, V]) Metrics() Metrics {
	t.mu.Lock()
	defer t.mu.Unlock()
	return Metrics{
		Hits:      t.hits,
		Misses:    t.misses,
		Evictions: t.evictions,
		Entries:   t.inner.Len(),
	}
}

// Plain is a bare entry-count-bounded LRU with hit/miss metrics, used for
// the Parse Cache and type-check memoisation where entries are small and
// uniform enough that byte tracking isn't worth the bookkeeping.
type Plain[K comparable, V any] struct {
	mu        sync.Mutex
	inner     *lru.Cache[K, V]
	hits      uint64
	misses    uint64
	evictions uint64
}

// NewPlain creates a cache capped at maxEntries items.
func NewPlain[K comparable, V any](maxEntries int) *Plain[K, V] {
	p := &Plain[K, V]{}
	inner, _ := lru.NewWithEvict[K, V](maxEntries, func(_ K, _ V) {
		p.evictions++
	})
	p.inner = inner
	return p
}

// Get returns the cached value for key.
func (p *Plain[K, V]) Get(key K) (V, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	v, ok := p.inner.Get(key)
	if ok {
		p.hits++
	} else {
		p.misses++
	}
	return v, ok
}

// Put inserts value under key.
func (p *Plain[K, V]) Put(key K, value V) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.inner.Add(key, value)
}

// Remove evicts key if present.
func (p *Plain[K, V]) Remove(key K) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.inner.Remove(key)
}

// Purge clears the cache entirely.
func (p *Plain[K, V]) Purge() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.inner.Purge()
}

// Metrics returns a snapshot of cache occupancy and hit ratio.
func (p *Plain[K, V]) Metrics() Metrics {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Metrics{
		Hits:      p.hits,
		Misses:    p.misses,
		Evictions: p.evictions,
		Entries:   p.inner.Len(),
	}
}
