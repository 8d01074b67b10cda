package cache

import (
	"sync"
	"time"
)

// CachedProof is a previously generated proof, stored in its transport
// (0x-hex) encoding.
type CachedProof struct {
	Proof        string
	PublicValues string
	CreatedAt    time.Time
}

// ProofCache maps request fingerprints to generated proofs. Proof generation
// is deterministic, so a repeat of the same claim within the TTL is answered
// from here instead of being queued again.
//
// Entries expire by age only. Get ignores expired entries but leaves them in
// place; Cleanup removes them.
type ProofCache struct {
	ttl        time.Duration
	maxEntries int

	mu      sync.RWMutex
	entries map[string]CachedProof

	now func() time.Time
}

// New returns a cache keeping entries for ttl. maxEntries bounds memory use;
// zero or less means unbounded.
func New(ttl time.Duration, maxEntries int) *ProofCache {
	return &ProofCache{
		ttl:        ttl,
		maxEntries: maxEntries,
		entries:    make(map[string]CachedProof),
		now:        time.Now,
	}
}

// Get returns the proof cached under key unless it is missing or older than
// the TTL.
func (c *ProofCache) Get(key string) (CachedProof, bool) {
	c.mu.RLock()
	p, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok || c.now().Sub(p.CreatedAt) > c.ttl {
		return CachedProof{}, false
	}
	return p, true
}

// Put stores a proof under key, replacing any previous entry.
func (c *ProofCache) Put(key, proof, publicValues string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; !exists && c.maxEntries > 0 && len(c.entries) >= c.maxEntries {
		// Evict an arbitrary entry; Go map iteration starts at a random point.
		for k := range c.entries {
			delete(c.entries, k)
			break
		}
	}
	c.entries[key] = CachedProof{
		Proof:        proof,
		PublicValues: publicValues,
		CreatedAt:    c.now(),
	}
}

// Cleanup removes every expired entry and returns how many were dropped.
func (c *ProofCache) Cleanup() int {
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for k, p := range c.entries {
		if now.Sub(p.CreatedAt) > c.ttl {
			delete(c.entries, k)
			removed++
		}
	}
	return removed
}

func (c *ProofCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
