package engine

import (
	"context"
	"sync"
	"time"
)

// DefaultAuthTTL is how long a successful or failed authentication probe
// is memoized before it is re-checked.
const DefaultAuthTTL = 5 * time.Minute

type authEntry struct {
	authenticated bool
	err           error
	checkedAt     time.Time

	// inFlight, when non-nil, is closed once the in-progress probe for
	// this engine id completes; concurrent callers wait on it instead of
	// starting a second probe (coalescing).
	inFlight chan struct{}
}

// AuthCache memoizes Engine.IsAuthenticated results per engine id with a
// TTL, coalescing concurrent probes for the same id into one underlying
// call. This is a hand-rolled coalescing map rather than
// golang.org/x/sync/singleflight: nothing else in this codebase reaches
// for singleflight, and the coalescing need here is a single keyed map,
// not singleflight's broader call-deduplication API.
type AuthCache struct {
	mu      sync.Mutex
	entries map[string]*authEntry
	ttl     time.Duration
}

// NewAuthCache returns a cache with the given TTL. ttl <= 0 uses DefaultAuthTTL.
func NewAuthCache(ttl time.Duration) *AuthCache {
	if ttl <= 0 {
		ttl = DefaultAuthTTL
	}
	return &AuthCache{entries: make(map[string]*authEntry), ttl: ttl}
}

// IsAuthenticated returns the cached authentication result for eng,
// probing (and coalescing concurrent probes) if the cache entry is
// missing or stale.
func (c *AuthCache) IsAuthenticated(ctx context.Context, eng Engine) (bool, error) {
	id := eng.Metadata().ID

	c.mu.Lock()
	entry, ok := c.entries[id]
	if ok && entry.inFlight == nil && time.Since(entry.checkedAt) < c.ttl {
		c.mu.Unlock()
		return entry.authenticated, entry.err
	}
	if ok && entry.inFlight != nil {
		wait := entry.inFlight
		c.mu.Unlock()
		<-wait

		c.mu.Lock()
		entry = c.entries[id]
		c.mu.Unlock()
		return entry.authenticated, entry.err
	}

	// We are the first caller to see a missing/stale entry: own the probe.
	inFlight := make(chan struct{})
	c.entries[id] = &authEntry{inFlight: inFlight}
	c.mu.Unlock()

	authenticated, err := eng.IsAuthenticated(ctx)

	c.mu.Lock()
	c.entries[id] = &authEntry{
		authenticated: authenticated,
		err:           err,
		checkedAt:     time.Now(),
	}
	c.mu.Unlock()
	close(inFlight)

	return authenticated, err
}

// Invalidate drops the cached entry for engineID, forcing the next
// IsAuthenticated call to re-probe.
func (c *AuthCache) Invalidate(engineID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, engineID)
}

// InvalidateAll clears every cached entry.
func (c *AuthCache) InvalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*authEntry)
}
