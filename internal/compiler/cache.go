package compiler

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/gkeb/node4j/internal/filter"
	"github.com/gkeb/node4j/internal/model"
)

// DefaultCacheSize is the number of predicate shapes kept by NewCache when
// size is not positive.
const DefaultCacheSize = 1024

// Cache memoizes predicate renderings keyed by kind, predicate shape and
// value types. It is safe for concurrent use. A nil *Cache disables
// caching.
type Cache struct {
	entries *lru.Cache[string, fragment]
}

// NewCache creates a cache holding up to size renderings.
func NewCache(size int) (*Cache, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	entries, err := lru.New[string, fragment](size)
	if err != nil {
		return nil, err
	}
	return &Cache{entries: entries}, nil
}

// Len returns the number of cached renderings.
func (c *Cache) Len() int {
	if c == nil {
		return 0
	}
	return c.entries.Len()
}

// Purge drops every cached rendering.
func (c *Cache) Purge() {
	if c != nil {
		c.entries.Purge()
	}
}

func (c *Cache) get(key string) (fragment, bool) {
	if c == nil {
		return fragment{}, false
	}
	return c.entries.Get(key)
}

func (c *Cache) put(key string, frag fragment) {
	if c != nil {
		c.entries.Add(key, frag)
	}
}

func cacheKey(kind *model.EntityKind, pred filter.Predicate) string {
	return fmt.Sprintf("%p|%s|%s|%s", kind, kind.Name, pred.Shape(), valueSignature(pred))
}
