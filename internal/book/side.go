package book

import (
	"sort"

	"matchbook/internal/schema"
)

// DepthRow is one (price, aggregate quantity) pair of a depth view.
type DepthRow struct {
	Price schema.Price
	Qty   schema.Quantity
}

// side keeps the price levels of one book side sorted best-first:
// bids descending, asks ascending. Levels are found by binary search and
// pruned the moment they empty, so index 0 is always the best price and
// no empty level ever persists.
type side struct {
	descending bool
	levels     []*PriceLevel
	byPrice    map[schema.Price]*PriceLevel
}

func newSide(descending bool) *side {
	return &side{
		descending: descending,
		levels:     make([]*PriceLevel, 0, 64),
		byPrice:    make(map[schema.Price]*PriceLevel),
	}
}

// best returns the level at the front of the side, or nil when empty.
func (s *side) best() *PriceLevel {
	if len(s.levels) == 0 {
		return nil
	}
	return s.levels[0]
}

func (s *side) level(price schema.Price) *PriceLevel {
	return s.byPrice[price]
}

func (s *side) len() int { return len(s.levels) }

// insertionIndex returns where a new level for price belongs.
func (s *side) insertionIndex(price schema.Price) int {
	if s.descending {
		return sort.Search(len(s.levels), func(i int) bool {
			return s.levels[i].price < price
		})
	}
	return sort.Search(len(s.levels), func(i int) bool {
		return s.levels[i].price > price
	})
}

// upsert returns the level for price, creating it in sorted position.
func (s *side) upsert(price schema.Price) *PriceLevel {
	if lvl, ok := s.byPrice[price]; ok {
		return lvl
	}
	lvl := &PriceLevel{price: price}
	idx := s.insertionIndex(price)
	s.levels = append(s.levels, nil)
	copy(s.levels[idx+1:], s.levels[idx:])
	s.levels[idx] = lvl
	s.byPrice[price] = lvl
	return lvl
}

// prune drops an emptied level from the side.
func (s *side) prune(lvl *PriceLevel) {
	if lvl.count != 0 {
		return
	}
	delete(s.byPrice, lvl.price)
	// insertionIndex lands one past the existing key on either side.
	idx := s.insertionIndex(lvl.price) - 1
	if idx >= 0 && idx < len(s.levels) && s.levels[idx] == lvl {
		s.levels = append(s.levels[:idx], s.levels[idx+1:]...)
	}
}

// depth copies the first n (price, qty) rows into dst.
func (s *side) depth(n int, dst []DepthRow) []DepthRow {
	if n <= 0 || n > len(s.levels) {
		n = len(s.levels)
	}
	for i := 0; i < n; i++ {
		dst = append(dst, DepthRow{Price: s.levels[i].price, Qty: s.levels[i].totalQty})
	}
	return dst
}
