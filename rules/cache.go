package rules

import (
	"slices"
	"sync"
	"time"
)

// RulesCache holds a snapshot of a rule set's active rules in firing order
type RulesCache interface {
	// Get returns the cached snapshot and whether it is still valid
	Get() ([]*Rule, bool)

	// Generation is read before loading rules for Set
	Generation() uint64

	// Set replaces the snapshot with rules loaded at generation gen.
	// It stores nothing and returns false if Invalidate ran since then.
	Set(gen uint64, rules []*Rule) bool

	// Invalidate drops the snapshot and advances the generation
	Invalidate()
}

// CacheConfig holds configuration for cache behavior
type CacheConfig struct {
	// TTL is the lifetime of a snapshot. Zero means it only expires on Invalidate.
	TTL time.Duration
}

// DefaultCacheConfig never expires snapshots on its own
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{TTL: 0}
}

// InMemoryRulesCache is a RulesCache guarded by a RWMutex
type InMemoryRulesCache struct {
	rules    []*Rule
	cachedAt time.Time
	valid    bool
	gen      uint64
	config   CacheConfig
	now      func() time.Time
	mu       sync.RWMutex
}

// NewInMemoryRulesCache creates an empty cache
func NewInMemoryRulesCache(config CacheConfig) *InMemoryRulesCache {
	return &InMemoryRulesCache{
		config: config,
		now:    time.Now,
	}
}

// Get returns a copy of the snapshot so callers cannot reorder the cached list
func (c *InMemoryRulesCache) Get() ([]*Rule, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if !c.validLocked() {
		return nil, false
	}
	return slices.Clone(c.rules), true
}

// Generation returns the current invalidation count
func (c *InMemoryRulesCache) Generation() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.gen
}

// Set stores a copy of rules unless the cache was invalidated after gen
func (c *InMemoryRulesCache) Set(gen uint64, rules []*Rule) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.gen {
		return false
	}
	c.rules = slices.Clone(rules)
	c.cachedAt = c.now()
	c.valid = true
	return true
}

// Invalidate clears the cache
func (c *InMemoryRulesCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.valid = false
	c.rules = nil
	c.gen++
}

func (c *InMemoryRulesCache) validLocked() bool {
	if !c.valid {
		return false
	}
	if c.config.TTL > 0 && c.now().Sub(c.cachedAt) > c.config.TTL {
		return false
	}
	return true
}
