// Package snapshot publishes immutable, versioned top-of-book views.
//
// The writer builds a complete snapshot after each successful mutation and
// swaps it in with a single atomic pointer store. Readers load the pointer
// and borrow the snapshot directly: no per-read allocation, no writer lock,
// and never a partially-updated view.
package snapshot

import (
	"sync/atomic"
	"time"

	"matchbook/internal/book"
	"matchbook/internal/schema"
)

// DefaultDepth is the number of price levels captured per side.
const DefaultDepth = 16

// BookSnapshot is one symbol's published view. All fields are immutable
// after publication.
type BookSnapshot struct {
	SymbolID schema.SymbolID
	Version  uint64
	BestBid  schema.Price
	BestAsk  schema.Price
	HasBid   bool
	HasAsk   bool
	Bids     []book.DepthRow
	Asks     []book.DepthRow
	TsNano   int64
}

// BestBidAsk returns both tops of book; ok is false unless both sides are
// non-empty.
func (s *BookSnapshot) BestBidAsk() (bid, ask schema.Price, ok bool) {
	if s == nil || !s.HasBid || !s.HasAsk {
		return 0, 0, false
	}
	return s.BestBid, s.BestAsk, true
}

// Depth returns up to n rows of one side, best first. The rows alias the
// snapshot and must be treated as read-only.
func (s *BookSnapshot) Depth(side schema.OrderSide, n int) []book.DepthRow {
	if s == nil {
		return nil
	}
	rows := s.Asks
	if side == schema.OrderSideBuy {
		rows = s.Bids
	}
	if n <= 0 || n > len(rows) {
		n = len(rows)
	}
	return rows[:n]
}

// Cache holds the latest snapshot per symbol. Slots are fixed at
// construction (symbol IDs are dense, assigned by the registry).
type Cache struct {
	slots []atomic.Pointer[BookSnapshot]
	depth int
}

// NewCache allocates a cache for symbolCount symbols, capturing depth levels
// per side.
func NewCache(symbolCount, depth int) *Cache {
	if depth <= 0 {
		depth = DefaultDepth
	}
	return &Cache{
		slots: make([]atomic.Pointer[BookSnapshot], symbolCount),
		depth: depth,
	}
}

// Publish builds a fresh snapshot from the book and swaps it in. Must be
// called by the symbol's shard writer while it still holds the write lock,
// so the captured view is consistent with the mutation just applied.
func (c *Cache) Publish(b *book.OrderBook) *BookSnapshot {
	symbolID := b.Symbol().ID
	prev := c.Load(symbolID)
	var version uint64 = 1
	if prev != nil {
		version = prev.Version + 1
	}

	snap := &BookSnapshot{
		SymbolID: symbolID,
		Version:  version,
		Bids:     b.Depth(schema.OrderSideBuy, c.depth, make([]book.DepthRow, 0, c.depth)),
		Asks:     b.Depth(schema.OrderSideSell, c.depth, make([]book.DepthRow, 0, c.depth)),
		TsNano:   time.Now().UTC().UnixNano(),
	}
	if len(snap.Bids) > 0 {
		snap.BestBid, snap.HasBid = snap.Bids[0].Price, true
	}
	if len(snap.Asks) > 0 {
		snap.BestAsk, snap.HasAsk = snap.Asks[0].Price, true
	}

	c.slots[symbolID-1].Store(snap)
	return snap
}

// Load returns the latest published snapshot for a symbol, or nil if none
// has been published yet. Safe from any goroutine.
func (c *Cache) Load(symbolID schema.SymbolID) *BookSnapshot {
	idx := int(symbolID) - 1
	if idx < 0 || idx >= len(c.slots) {
		return nil
	}
	return c.slots[idx].Load()
}
