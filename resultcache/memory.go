package resultcache

import (
	"context"
	"sync"
	"time"

	"github.com/freightpricing/analysisengine/analysiserr"
)

type readyEntry struct {
	resultID  string
	expiresAt time.Time
}

type inflightEntry struct {
	owner     string
	expiresAt time.Time
}

// MemoryCache is a single-process Cache implementation backed by maps
// and a mutex, used by tests and non-replicated deployments. It is an
// alternative to RedisCache (resultcache/redis.go), not a layer under it;
// engine.Engine's in-process fast path is its own singleflight.Group.
type MemoryCache struct {
	mu       sync.Mutex
	ready    map[string]readyEntry
	inflight map[string]inflightEntry

	// Now is injected for testability (spec.md §5: "Implementations must
	// inject a clock for testability"). Defaults to time.Now.
	Now func() time.Time
}

// NewMemoryCache constructs an empty cache with the real wall clock.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		ready:    make(map[string]readyEntry),
		inflight: make(map[string]inflightEntry),
		Now:      time.Now,
	}
}

func (c *MemoryCache) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

func (c *MemoryCache) TryClaim(ctx context.Context, fingerprint, ownerID string, leaseDuration time.Duration) (ClaimResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()

	if entry, ok := c.ready[fingerprint]; ok && entry.expiresAt.After(now) {
		return ClaimResult{Outcome: ReadyNow, ResultID: entry.resultID}, nil
	}

	if entry, ok := c.inflight[fingerprint]; ok && entry.expiresAt.After(now) {
		return ClaimResult{Outcome: HeldByOther, Owner: entry.owner, ExpiresAt: entry.expiresAt}, nil
	}

	c.inflight[fingerprint] = inflightEntry{owner: ownerID, expiresAt: now.Add(leaseDuration)}
	return ClaimResult{Outcome: Claimed}, nil
}

func (c *MemoryCache) Release(ctx context.Context, fingerprint, ownerID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.inflight[fingerprint]
	if !ok {
		return nil // already released, e.g. by a concurrent publish_ready
	}
	if entry.owner != ownerID {
		return analysiserr.NotOwnerf("caller does not hold the in-flight lease for this fingerprint")
	}
	delete(c.inflight, fingerprint)
	return nil
}

func (c *MemoryCache) PublishReady(ctx context.Context, fingerprint, resultID string, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.ready[fingerprint] = readyEntry{resultID: resultID, expiresAt: c.now().Add(ttl)}
	delete(c.inflight, fingerprint)
	return nil
}

func (c *MemoryCache) LookupReady(ctx context.Context, fingerprint string) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.ready[fingerprint]
	if !ok || !entry.expiresAt.After(c.now()) {
		return "", false, nil
	}
	return entry.resultID, true, nil
}
