package main

import (
	"container/list"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"sync"
)

// cacheEntry holds a cached response body.
type cacheEntry struct {
	body    []byte
	lruElem *list.Element // position in LRU list
}

// responseCache is an in-memory response cache with LRU eviction. It
// backs the gateway's cache simulation: targets that request caching
// via cache.mode in x-portkey-config get HIT answers for repeated
// requests without the upstream round trip.
type responseCache struct {
	mu      sync.Mutex
	entries map[string]*cacheEntry
	lruList *list.List // front = most recently used, back = least recently used
	maxSize int        // 0 = unlimited
}

// newResponseCache creates a cache. If maxSize is 0, the cache grows
// without limit. If maxSize > 0, the least recently used entry is
// evicted when the limit is reached.
func newResponseCache(maxSize int) *responseCache {
	return &responseCache{
		entries: make(map[string]*cacheEntry),
		lruList: list.New(),
		maxSize: maxSize,
	}
}

// get returns the cached body for key and marks it most recently used.
func (c *responseCache) get(key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	c.lruList.MoveToFront(e.lruElem)
	return e.body, true
}

// put stores a response body under key. Storing an existing key
// refreshes its body and recency.
func (c *responseCache) put(key string, body []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		e.body = body
		c.lruList.MoveToFront(e.lruElem)
		return
	}

	// Evict if at capacity.
	if c.maxSize > 0 && len(c.entries) >= c.maxSize {
		c.evictOldest()
	}

	elem := c.lruList.PushFront(key)
	c.entries[key] = &cacheEntry{body: body, lruElem: elem}
}

// evictOldest removes the least recently used entry.
// Must be called with c.mu held.
func (c *responseCache) evictOldest() {
	back := c.lruList.Back()
	if back == nil {
		return
	}

	key := back.Value.(string)
	c.lruList.Remove(back)
	delete(c.entries, key)
}

// cacheKey derives the lookup key for a request. Simple mode keys on
// the exact request body, so any change misses. Semantic mode keys on
// the normalized prompt text, so casing and whitespace differences
// still hit. The model is always part of the key.
func cacheKey(mode, model string, body []byte, prompt string) string {
	h := sha256.New()
	h.Write([]byte(model))
	h.Write([]byte{0})
	if mode == "semantic" {
		h.Write([]byte(normalizePrompt(prompt)))
	} else {
		h.Write(body)
	}
	return mode + ":" + hex.EncodeToString(h.Sum(nil))
}

func normalizePrompt(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
