package policy

import (
	"sync"
	"sync/atomic"
	"time"
)

// policyCache is a TTL-based in-memory cache with stale-while-revalidate for
// tool policies. Uses sync.Map for lock-free reads on the hot path.
type policyCache struct {
	store sync.Map // map[string]*policyCacheEntry
	ttl   time.Duration
}

type policyCacheEntry struct {
	policy     *ToolPolicy // nil = negative cache (no per-tenant row)
	expiresAt  time.Time
	refreshing atomic.Bool
}

// cacheGetResult holds the result of a cache lookup.
type cacheGetResult struct {
	policy       *ToolPolicy
	hit          bool // a value was found, fresh or stale
	needsRefresh bool // expired — caller should refresh in background
}

func newPolicyCache(ttl time.Duration) *policyCache {
	return &policyCache{ttl: ttl}
}

func cacheKey(tenantID, agentType, tool string) string {
	return tenantID + ":" + agentType + ":" + tool
}

// get performs a non-blocking lookup. Stale entries are returned with
// needsRefresh=true; only one goroutine wins the refresh CAS.
func (c *policyCache) get(tenantID, agentType, tool string) cacheGetResult {
	val, ok := c.store.Load(cacheKey(tenantID, agentType, tool))
	if !ok {
		return cacheGetResult{}
	}

	entry := val.(*policyCacheEntry)
	if time.Now().Before(entry.expiresAt) {
		return cacheGetResult{policy: entry.policy, hit: true}
	}

	needsRefresh := entry.refreshing.CompareAndSwap(false, true)
	return cacheGetResult{policy: entry.policy, hit: true, needsRefresh: needsRefresh}
}

// set stores a policy with a fresh TTL. nil stores a negative entry.
func (c *policyCache) set(tenantID, agentType, tool string, p *ToolPolicy) {
	c.store.Store(cacheKey(tenantID, agentType, tool), &policyCacheEntry{
		policy:    p,
		expiresAt: time.Now().Add(c.ttl),
	})
}
