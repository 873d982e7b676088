package sku

import (
	"context"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultBatchCacheSize bounds a BatchCache created with a non-positive size.
const DefaultBatchCacheSize = 10000

// BatchCache remembers SKUs allocated during a batch so that entities in the
// same batch never receive the same value, even before those values are
// visible to the underlying Lookup.
//
// The cache is bounded. An evicted entry falls back to the underlying
// lookup, so eviction costs a query but never reports a taken SKU as free.
type BatchCache struct {
	lookup Lookup
	owners *lru.Cache[string, string]
}

// NewBatchCache wraps lookup with an LRU of at most size entries.
func NewBatchCache(lookup Lookup, size int) *BatchCache {
	if size <= 0 {
		size = DefaultBatchCacheSize
	}
	owners, err := lru.New[string, string](size)
	if err != nil {
		// lru.New only fails for a non-positive size.
		panic(err)
	}
	return &BatchCache{lookup: lookup, owners: owners}
}

func cacheKey(table, sku string) string {
	return table + "\x00" + sku
}

// Remember records e's current SKU as owned by e.
func (c *BatchCache) Remember(e Entity) {
	if s := e.Sku(); s != "" {
		c.owners.Add(cacheKey(e.TableName(), s), e.EntityID())
	}
}

// Reserve records sku as allocated to e.
func (c *BatchCache) Reserve(e Entity, sku string) {
	c.owners.Add(cacheKey(e.TableName(), sku), e.EntityID())
}

// Len returns the number of cached entries.
func (c *BatchCache) Len() int {
	return c.owners.Len()
}

// SkuExists implements Lookup.
func (c *BatchCache) SkuExists(ctx context.Context, e Entity, sku string) (bool, error) {
	if owner, ok := c.owners.Get(cacheKey(e.TableName(), sku)); ok && owner != e.EntityID() {
		return true, nil
	}
	return c.lookup.SkuExists(ctx, e, sku)
}
