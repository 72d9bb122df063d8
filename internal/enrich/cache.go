// Package enrich caches generated descriptions per catalogue record.
package enrich

import (
	"sync"

	"github.com/kalambet/formcat/internal/catalogue"
	"github.com/kalambet/formcat/internal/provider"
)

// Entry is a cached generation outcome. Exactly one of Text or Failure is set.
type Entry struct {
	Text    string
	Failure *provider.Error
}

// OK reports whether the entry holds generated text.
func (e Entry) OK() bool { return e.Failure == nil }

// Cache maps a record's identity key, as it was at generation time, to the
// last generation outcome. It owns no records and must be invalidated
// explicitly when the keyed record is saved, reverted, rekeyed or deleted.
type Cache struct {
	mu      sync.Mutex
	entries map[catalogue.Key]Entry
}

func New() *Cache {
	return &Cache{entries: make(map[catalogue.Key]Entry)}
}

func (c *Cache) Get(key catalogue.Key) (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	return e, ok
}

// Put stores successfully generated text, replacing any failure marker.
func (c *Cache) Put(key catalogue.Key, text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = Entry{Text: text}
}

// PutFailure stores a failure marker for key.
func (c *Cache) PutFailure(key catalogue.Key, failure *provider.Error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = Entry{Failure: failure}
}

func (c *Cache) Invalidate(key catalogue.Key) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
