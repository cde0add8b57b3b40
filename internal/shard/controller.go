// Package shard assigns symbols to shards and owns the locking discipline:
// one logical writer per shard, any number of readers, and a single
// transaction entry point for operations spanning symbols. Callers never
// acquire shard locks directly, which is what makes out-of-order acquisition
// unrepresentable.
package shard

import (
	"hash/fnv"
	"sort"
	"sync"
)

// Controller routes symbols to a fixed pool of shards.
type Controller struct {
	shards []sync.RWMutex
}

// NewController creates a controller with the given shard count.
func NewController(count int) *Controller {
	if count <= 0 {
		count = 1
	}
	return &Controller{shards: make([]sync.RWMutex, count)}
}

// Count returns the number of shards.
func (c *Controller) Count() int { return len(c.shards) }

// IndexOf maps a symbol's canonical name to its shard.
func (c *Controller) IndexOf(symbol string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(symbol))
	return int(h.Sum32() % uint32(len(c.shards)))
}

// Write runs fn while holding the symbol's shard write lock. Writes within
// a shard are strictly serialized; fn must not perform I/O.
func (c *Controller) Write(symbol string, fn func() error) error {
	idx := c.IndexOf(symbol)
	c.shards[idx].Lock()
	defer c.shards[idx].Unlock()
	return fn()
}

// WriteShard runs fn while holding one shard's write lock, addressed by
// index. Used for shard-scoped maintenance such as limit reloads.
func (c *Controller) WriteShard(idx int, fn func() error) error {
	c.shards[idx].Lock()
	defer c.shards[idx].Unlock()
	return fn()
}

// Read runs fn while holding the symbol's shard read lock.
func (c *Controller) Read(symbol string, fn func() error) error {
	idx := c.IndexOf(symbol)
	c.shards[idx].RLock()
	defer c.shards[idx].RUnlock()
	return fn()
}

// Transact runs fn while holding the write locks of every shard the given
// symbols map to. Shard indices are deduplicated and acquired in ascending
// order, one fixed total order for all callers, so no lock cycle can form.
func (c *Controller) Transact(symbols []string, fn func() error) error {
	indices := make([]int, 0, len(symbols))
	seen := make(map[int]struct{}, len(symbols))
	for _, symbol := range symbols {
		idx := c.IndexOf(symbol)
		if _, ok := seen[idx]; ok {
			continue
		}
		seen[idx] = struct{}{}
		indices = append(indices, idx)
	}
	sort.Ints(indices)

	for _, idx := range indices {
		c.shards[idx].Lock()
	}
	defer func() {
		for i := len(indices) - 1; i >= 0; i-- {
			c.shards[indices[i]].Unlock()
		}
	}()
	return fn()
}
