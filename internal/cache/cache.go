// Package cache provides a concurrency-safe get-or-compute cache keyed by
// content hashes. It is injected into components at construction rather than
// shared as hidden global state.
package cache

import (
	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"
)

// LRU is a bounded in-memory cache with a get-or-compute primitive.
// Concurrent misses for the same key compute once; writes are serialized
// per key by the flight group. Entries are keyed by content hash, so they
// never go stale and need no invalidation beyond eviction.
type LRU[V any] struct {
	cache *lru.Cache[string, V]
	group singleflight.Group
}

// NewLRU creates a cache holding at most size entries.
func NewLRU[V any](size int) (*LRU[V], error) {
	c, err := lru.New[string, V](size)
	if err != nil {
		return nil, err
	}
	return &LRU[V]{cache: c}, nil
}

// Get returns the cached value for key, if present.
func (l *LRU[V]) Get(key string) (V, bool) {
	return l.cache.Get(key)
}

// Add stores a value under key.
func (l *LRU[V]) Add(key string, value V) {
	l.cache.Add(key, value)
}

// GetOrCompute returns the cached value for key, computing and storing it on
// a miss. compute errors are returned to every concurrent caller and nothing
// is cached.
func (l *LRU[V]) GetOrCompute(key string, compute func() (V, error)) (V, error) {
	if v, ok := l.cache.Get(key); ok {
		return v, nil
	}
	v, err, _ := l.group.Do(key, func() (interface{}, error) {
		if v, ok := l.cache.Get(key); ok {
			return v, nil
		}
		computed, err := compute()
		if err != nil {
			return computed, err
		}
		l.cache.Add(key, computed)
		return computed, nil
	})
	if err != nil {
		var zero V
		return zero, err
	}
	return v.(V), nil
}

// Purge removes all entries.
func (l *LRU[V]) Purge() {
	l.cache.Purge()
}

// Len returns the number of cached entries.
func (l *LRU[V]) Len() int {
	return l.cache.Len()
}
