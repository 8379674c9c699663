package backend

import (
	"context"
	"strings"
	"sync"
	"time"
)

// SearchCache memoizes customer search responses for a short TTL. Repeat
// lookups within one call (caller spells the name, then confirms) are common
// and the upstream search is the slowest endpoint.
type SearchCache struct {
	mu      sync.Mutex
	entries map[string]cacheEntry
	ttl     time.Duration
	nowFunc func() time.Time
}

type cacheEntry struct {
	resp     *Response
	storedAt time.Time
}

// NewSearchCache creates a cache with the given TTL. A zero or negative TTL
// disables caching entirely.
func NewSearchCache(ttl time.Duration) *SearchCache {
	return &SearchCache{
		entries: make(map[string]cacheEntry),
		ttl:     ttl,
		nowFunc: time.Now,
	}
}

// SearchCustomers serves the search from cache when fresh, otherwise calls
// through and stores the successful response.
func (sc *SearchCache) SearchCustomers(ctx context.Context, client *Client, lookup string, offset, take int) (*Response, error) {
	if sc == nil || sc.ttl <= 0 {
		return client.SearchCustomers(ctx, lookup, offset, take)
	}

	key := searchCacheKey(strings.ToLower(strings.TrimSpace(lookup)), offset, take)

	sc.mu.Lock()
	entry, ok := sc.entries[key]
	if ok && sc.nowFunc().Sub(entry.storedAt) <= sc.ttl {
		sc.mu.Unlock()
		return entry.resp, nil
	}
	if ok {
		delete(sc.entries, key)
	}
	sc.mu.Unlock()

	resp, err := client.SearchCustomers(ctx, lookup, offset, take)
	if err != nil {
		return nil, err
	}

	sc.mu.Lock()
	sc.entries[key] = cacheEntry{resp: resp, storedAt: sc.nowFunc()}
	sc.mu.Unlock()
	return resp, nil
}

// Len returns the number of cached entries.
func (sc *SearchCache) Len() int {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return len(sc.entries)
}
