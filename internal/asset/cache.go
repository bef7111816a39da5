package asset

import (
	"context"

	"github.com/dgraph-io/ristretto/v2"
)

// CachedSource keeps recently fetched raw bytes in a cost-bounded cache.
// Cost is the byte length of the entry.
type CachedSource struct {
	next  Source
	cache *ristretto.Cache[string, []byte]
}

func NewCachedSource(next Source, maxBytes int64) (*CachedSource, error) {
	cache, err := ristretto.NewCache[string, []byte](&ristretto.Config[string, []byte]{
		NumCounters: 10000,
		MaxCost:     maxBytes,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &CachedSource{next: next, cache: cache}, nil
}

// Fetch returns the cached bytes or fetches and caches them. Callers must
// not mutate the returned slice.
func (c *CachedSource) Fetch(ctx context.Context, path string) ([]byte, error) {
	if data, ok := c.cache.Get(path); ok {
		return data, nil
	}
	data, err := c.next.Fetch(ctx, path)
	if err != nil {
		return nil, err
	}
	c.cache.Set(path, data, int64(len(data))+1)
	return data, nil
}

// Wait blocks until buffered cache writes are applied.
func (c *CachedSource) Wait() {
	c.cache.Wait()
}

func (c *CachedSource) Close() {
	c.cache.Close()
}
