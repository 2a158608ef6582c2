package bridge

import (
	"encoding/json"
	"strconv"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/zeebo/xxh3"
)

// Cache is the bridge's result cache. It is deliberately narrow: Get, Put,
// Evict, and Clear are the only entry points, and the backing store is
// never exposed to consumers. A cache hit is only valid for an exact
// fingerprint match; any change to the inputs produces a different key and
// therefore a guaranteed miss.
type Cache interface {
	Get(key string) (json.RawMessage, bool)
	Put(key string, value json.RawMessage)
	Evict(key string)
	Clear()
	Len() int
}

// lruCache is a bounded LRU implementation of Cache. Unbounded growth of
// analysis results is a defect, not a feature.
type lruCache struct {
	store *lru.Cache[string, json.RawMessage]
}

// NewLRUCache creates a bounded result cache holding at most capacity
// entries.
func NewLRUCache(capacity int) (Cache, error) {
	store, err := lru.New[string, json.RawMessage](capacity)
	if err != nil {
		return nil, err
	}
	return &lruCache{store: store}, nil
}

func (c *lruCache) Get(key string) (json.RawMessage, bool) {
	return c.store.Get(key)
}

func (c *lruCache) Put(key string, value json.RawMessage) {
	c.store.Add(key, value)
}

func (c *lruCache) Evict(key string) {
	c.store.Remove(key)
}

func (c *lruCache) Clear() {
	c.store.Purge()
}

func (c *lruCache) Len() int {
	return c.store.Len()
}

// Fingerprint returns a deterministic hash over the request-relevant
// inputs, used both as the in-flight dedup key and as the result cache
// key. Parts are separated by a NUL byte so ("ab","c") and ("a","bc")
// never collide.
func Fingerprint(parts ...string) string {
	h := xxh3.New()
	for _, part := range parts {
		_, _ = h.WriteString(part)
		_, _ = h.Write([]byte{0})
	}
	return strconv.FormatUint(h.Sum64(), 16)
}
