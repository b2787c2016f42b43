package graphstore

import (
	"context"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultCacheSize is the per-cache entry budget used when none is given.
const DefaultCacheSize = 8192

// CachingStore wraps a Store and adds LRU caching for lookups and
// incoming-set queries. It targets read-heavy phases (marginal and
// statistic computation walk the same wildcard rows repeatedly); writes
// pass through and invalidate.
type CachingStore struct {
	inner    Store
	values   *lru.Cache[string, Value]
	incoming *lru.Cache[string, []string]
}

// NewCachingStore creates a new CachingStore.
// size defaults to DefaultCacheSize if <= 0.
func NewCachingStore(inner Store, size int) (*CachingStore, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	values, err := lru.New[string, Value](size)
	if err != nil {
		return nil, err
	}
	incoming, err := lru.New[string, []string](size)
	if err != nil {
		return nil, err
	}
	return &CachingStore{inner: inner, values: values, incoming: incoming}, nil
}

// Lookup retrieves the value stored under key, serving repeats from the
// cache. Misses are not cached, so a later Create is seen immediately.
func (c *CachingStore) Lookup(ctx context.Context, key string) (Value, bool, error) {
	if v, ok := c.values.Get(key); ok {
		return v, true, nil
	}
	v, ok, err := c.inner.Lookup(ctx, key)
	if err != nil || !ok {
		return Value{}, ok, err
	}
	c.values.Add(key, v)
	return v, true, nil
}

// Create inserts a zero-valued row under key. The incoming sets of the
// referenced entities change, so their cached copies are dropped.
func (c *CachingStore) Create(ctx context.Context, key string, refs ...string) error {
	if err := c.inner.Create(ctx, key, refs...); err != nil {
		return err
	}
	for _, ref := range refs {
		c.incoming.Remove(ref)
	}
	return nil
}

// SetValue overwrites the full value of an existing row.
func (c *CachingStore) SetValue(ctx context.Context, key string, v Value) error {
	if err := c.inner.SetValue(ctx, key, v); err != nil {
		return err
	}
	c.values.Add(key, v)
	return nil
}

// IncrementCount atomically adds delta to the row's count.
func (c *CachingStore) IncrementCount(ctx context.Context, key string, delta float64) (float64, error) {
	count, err := c.inner.IncrementCount(ctx, key, delta)
	if err != nil {
		return 0, err
	}
	c.values.Remove(key)
	return count, nil
}

// IncomingSet returns the keys of every row referencing the given entity,
// serving repeats from the cache.
func (c *CachingStore) IncomingSet(ctx context.Context, ref string) ([]string, error) {
	if keys, ok := c.incoming.Get(ref); ok {
		return keys, nil
	}
	keys, err := c.inner.IncomingSet(ctx, ref)
	if err != nil {
		return nil, err
	}
	c.incoming.Add(ref, keys)
	return keys, nil
}

// Scan visits every row whose key starts with prefix. Scans bypass the
// cache and read the inner store directly.
func (c *CachingStore) Scan(ctx context.Context, prefix string, fn func(row Row) error) error {
	return c.inner.Scan(ctx, prefix, fn)
}

// Delete removes the row and its reference registrations. The row's refs
// aren't known here, so the whole incoming cache is dropped; deletes only
// happen during garbage collection, where the cache is cold anyway.
func (c *CachingStore) Delete(ctx context.Context, key string) error {
	if err := c.inner.Delete(ctx, key); err != nil {
		return err
	}
	c.values.Remove(key)
	c.incoming.Purge()
	return nil
}

// Len returns the number of rows currently stored.
func (c *CachingStore) Len(ctx context.Context) (int, error) {
	return c.inner.Len(ctx)
}

// Close closes the inner store.
func (c *CachingStore) Close() error {
	c.values.Purge()
	c.incoming.Purge()
	return c.inner.Close()
}
