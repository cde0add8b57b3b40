// Package ledger tracks per-symbol positions and PnL.
//
// A Ledger is updated exactly once per trade, synchronously in the shard
// that produced the trade, so position state is never stale relative to the
// book. Read queries take the read lock and return copies.
package ledger

import (
	"sync"

	"matchbook/internal/schema"
)

// Position is one symbol's net position from the taker-flow perspective.
// AvgPrice is undefined (and reset to zero) while Qty == 0. RealizedPnL only
// moves when a trade reduces the position magnitude toward or through zero.
type Position struct {
	SymbolID    schema.SymbolID
	Qty         schema.Quantity
	AvgPrice    float64
	RealizedPnL float64
}

// Ledger holds positions for the symbols of one shard.
type Ledger struct {
	mu        sync.RWMutex
	positions map[schema.SymbolID]*Position
}

// New creates an empty ledger.
func New() *Ledger {
	return &Ledger{positions: make(map[schema.SymbolID]*Position)}
}

// ApplyTrade applies a trade in the taker's direction and returns the
// resulting position change.
func (l *Ledger) ApplyTrade(t schema.Trade) schema.PositionChange {
	l.mu.Lock()
	defer l.mu.Unlock()

	pos := l.positions[t.SymbolID]
	if pos == nil {
		pos = &Position{SymbolID: t.SymbolID}
		l.positions[t.SymbolID] = pos
	}
	pos.apply(t.TakerSide, t.Price, t.Qty)

	return schema.PositionChange{
		SymbolID:    t.SymbolID,
		Side:        t.TakerSide,
		Qty:         pos.Qty,
		AvgPrice:    pos.AvgPrice,
		RealizedPnL: pos.RealizedPnL,
		Seq:         t.Seq,
	}
}

// apply folds one fill into the position. Increasing the magnitude in the
// same direction reprices the average with weighted cost; reducing or
// flipping realizes (price - avg) x closed for the closed portion, and any
// quantity flipped through zero restarts the position at the fill price.
func (p *Position) apply(side schema.OrderSide, price schema.Price, qty schema.Quantity) {
	signed := int64(qty)
	if side == schema.OrderSideSell {
		signed = -signed
	}
	cur := int64(p.Qty)

	if cur == 0 || (cur > 0) == (signed > 0) {
		next := cur + signed
		p.AvgPrice = (p.AvgPrice*absFloat(cur) + float64(price)*absFloat(signed)) / absFloat(next)
		p.Qty = schema.Quantity(next)
		return
	}

	closed := absInt64(signed)
	if held := absInt64(cur); held < closed {
		closed = held
	}
	if cur > 0 {
		p.RealizedPnL += (float64(price) - p.AvgPrice) * float64(closed)
	} else {
		p.RealizedPnL += (p.AvgPrice - float64(price)) * float64(closed)
	}

	next := cur + signed
	switch {
	case next == 0:
		p.AvgPrice = 0
	case (next > 0) != (cur > 0):
		// flipped through zero: remainder opened at the fill price
		p.AvgPrice = float64(price)
	}
	p.Qty = schema.Quantity(next)
}

// Position returns a copy of the symbol's position. ok is false when no
// trade has touched the symbol yet.
func (l *Ledger) Position(symbolID schema.SymbolID) (Position, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	pos, ok := l.positions[symbolID]
	if !ok {
		return Position{}, false
	}
	return *pos, true
}

// UnrealizedPnL is a pure read: (mark - avg) x qty. Flat positions yield 0.
func (l *Ledger) UnrealizedPnL(symbolID schema.SymbolID, mark schema.Price) float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	pos, ok := l.positions[symbolID]
	if !ok || pos.Qty == 0 {
		return 0
	}
	return (float64(mark) - pos.AvgPrice) * float64(pos.Qty)
}

// Count returns the number of tracked symbols.
func (l *Ledger) Count() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.positions)
}

// Entries returns copies of all positions, unordered.
func (l *Ledger) Entries() []Position {
	l.mu.RLock()
	defer l.mu.RUnlock()
	entries := make([]Position, 0, len(l.positions))
	for _, pos := range l.positions {
		entries = append(entries, *pos)
	}
	return entries
}

func absInt64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}

func absFloat(v int64) float64 {
	if v < 0 {
		return float64(-v)
	}
	return float64(v)
}
