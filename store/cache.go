package store

import (
	"time"

	"github.com/Comcast/experiences/core"
)

// Policy says when cache entries expire.
type Policy int

const (
	// NeverExpire keeps entries for the life of the process (or
	// until Purge).
	NeverExpire Policy = iota

	// TTL expires entries after Cache.TTL.  Entries are only
	// expired when they are fetched.
	TTL
)

type cacheEntry struct {
	doc     *core.Document
	expires time.Time
}

// Cache maps canonical URLs to documents.
//
// A Cache isn't safe for concurrent use.  The Store guards it.
type Cache struct {
	Policy Policy
	TTL    time.Duration

	entries map[string]*cacheEntry
	now     func() time.Time
}

// NewCache makes a cache with the given policy.  The ttl is ignored
// unless the policy is TTL.
func NewCache(policy Policy, ttl time.Duration) *Cache {
	return &Cache{
		Policy:  policy,
		TTL:     ttl,
		entries: make(map[string]*cacheEntry, 8),
		now:     time.Now,
	}
}

// Put adds or replaces the entry for the key.
func (c *Cache) Put(key string, doc *core.Document) {
	e := &cacheEntry{
		doc: doc,
	}
	if c.Policy == TTL {
		e.expires = c.now().Add(c.TTL)
	}
	c.entries[key] = e
}

// Get returns the document for the key, or nil.
func (c *Cache) Get(key string) *core.Document {
	e, have := c.entries[key]
	if !have {
		return nil
	}
	if c.Policy == TTL && c.now().After(e.expires) {
		delete(c.entries, key)
		return nil
	}
	return e.doc
}

// Rem removes the entry for the key.
func (c *Cache) Rem(key string) {
	delete(c.entries, key)
}

// Purge removes every entry.  Call it when memory is short.
func (c *Cache) Purge() {
	c.entries = make(map[string]*cacheEntry, 8)
}

func (c *Cache) Len() int {
	return len(c.entries)
}
