// Package cache provides caching mechanisms for API responses
// to improve performance and reduce external API calls.
package cache

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Cache stores raw upstream response bodies by key.
// Implementations treat backend errors as misses.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, value []byte)
}

// Memory is a size-bounded in-process cache with per-entry expiry.
type Memory struct {
	lru *expirable.LRU[string, []byte]
}

// NewMemory creates a memory cache holding at most maxItems entries for ttl.
// A non-positive maxItems falls back to 1000 entries.
func NewMemory(maxItems int, ttl time.Duration) *Memory {
	if maxItems <= 0 {
		maxItems = 1000
	}
	return &Memory{lru: expirable.NewLRU[string, []byte](maxItems, nil, ttl)}
}

// Get retrieves an item from the cache
func (m *Memory) Get(_ context.Context, key string) ([]byte, bool) {
	return m.lru.Get(key)
}

// Set adds an item to the cache, evicting the least recently used entry when full
func (m *Memory) Set(_ context.Context, key string, value []byte) {
	m.lru.Add(key, value)
}

// Delete removes an item from the cache
func (m *Memory) Delete(key string) {
	m.lru.Remove(key)
}

// Count returns the number of items in the cache
func (m *Memory) Count() int {
	return m.lru.Len()
}

// Clear removes all items from the cache
func (m *Memory) Clear() {
	m.lru.Purge()
}

// Tiered reads through a fast cache before a slow one and
// back-fills the fast cache on a slow hit.
type Tiered struct {
	fast Cache
	slow Cache
}

// NewTiered combines two caches. Either may be nil.
func NewTiered(fast, slow Cache) *Tiered {
	return &Tiered{fast: fast, slow: slow}
}

// Get checks the fast tier first.
func (t *Tiered) Get(ctx context.Context, key string) ([]byte, bool) {
	if t.fast != nil {
		if v, ok := t.fast.Get(ctx, key); ok {
			return v, true
		}
	}
	if t.slow != nil {
		if v, ok := t.slow.Get(ctx, key); ok {
			if t.fast != nil {
				t.fast.Set(ctx, key, v)
			}
			return v, true
		}
	}
	return nil, false
}

// Set writes to both tiers.
func (t *Tiered) Set(ctx context.Context, key string, value []byte) {
	if t.fast != nil {
		t.fast.Set(ctx, key, value)
	}
	if t.slow != nil {
		t.slow.Set(ctx, key, value)
	}
}
