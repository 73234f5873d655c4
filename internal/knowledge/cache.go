package knowledge

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/jonathan/ckd-assistant/internal/types"
)

// CachedStore memoises search results of an underlying Store. Errors are not cached.
type CachedStore struct {
	next  Store
	cache *lru.Cache[string, []types.Evidence]
}

// NewCachedStore wraps next with an LRU cache holding up to size queries.
func NewCachedStore(next Store, size int) (*CachedStore, error) {
	if size <= 0 {
		size = 256
	}
	cache, err := lru.New[string, []types.Evidence](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create search cache: %w", err)
	}
	return &CachedStore{next: next, cache: cache}, nil
}

// Search returns cached results for (query, k) or queries the wrapped store.
func (c *CachedStore) Search(ctx context.Context, query string, k int) ([]types.Evidence, error) {
	key := fmt.Sprintf("%d\x00%s", k, query)
	if hit, ok := c.cache.Get(key); ok {
		return copyEvidence(hit), nil
	}

	results, err := c.next.Search(ctx, query, k)
	if err != nil {
		return nil, err
	}
	c.cache.Add(key, copyEvidence(results))
	return results, nil
}

// Purge drops every cached result, e.g. after the index changes.
func (c *CachedStore) Purge() {
	c.cache.Purge()
}

func copyEvidence(in []types.Evidence) []types.Evidence {
	out := make([]types.Evidence, len(in))
	copy(out, in)
	return out
}
