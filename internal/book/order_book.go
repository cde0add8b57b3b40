package book

import (
	"errors"

	"matchbook/internal/schema"
)

var (
	ErrInvalidPrice   = errors.New("price must be a positive multiple of the tick")
	ErrInvalidQty     = errors.New("quantity must be > 0")
	ErrDuplicateOrder = errors.New("order id already rests in book")
	ErrWrongSymbol    = errors.New("order symbol does not match book")
)

// OrderBook pairs the bid and ask sides for one symbol and owns all resting
// order state for that symbol. It is not safe for concurrent use: the shard
// controller serializes writers, and readers go through published snapshots.
type OrderBook struct {
	symbol schema.Symbol
	bids   *side
	asks   *side
	orders map[uint64]*Order
}

// NewOrderBook creates an empty book for a symbol.
func NewOrderBook(symbol schema.Symbol) *OrderBook {
	return &OrderBook{
		symbol: symbol,
		bids:   newSide(true),
		asks:   newSide(false),
		orders: make(map[uint64]*Order),
	}
}

// Symbol returns the symbol this book serves.
func (b *OrderBook) Symbol() schema.Symbol { return b.symbol }

// ValidatePrice rejects non-positive or tick-misaligned prices.
func (b *OrderBook) ValidatePrice(price schema.Price) error {
	if price <= 0 || price%b.symbol.Tick != 0 {
		return ErrInvalidPrice
	}
	return nil
}

// AddRestingOrder places an order on its side of the book. The caller has
// already run the match loop; the order rests with whatever remainder it has.
func (b *OrderBook) AddRestingOrder(o *Order) error {
	if o.SymbolID != b.symbol.ID {
		return ErrWrongSymbol
	}
	if err := b.ValidatePrice(o.Price); err != nil {
		return err
	}
	if o.LeavesQty <= 0 {
		return ErrInvalidQty
	}
	if _, ok := b.orders[o.ID]; ok {
		return ErrDuplicateOrder
	}
	b.sideOf(o.Side).upsert(o.Price).enqueue(o)
	b.orders[o.ID] = o
	return nil
}

// RemoveOrder takes a resting order out of the book. The second return is
// false when the id is absent (already filled or cancelled), which is a
// normal outcome of the cancel race, not an error.
func (b *OrderBook) RemoveOrder(id uint64) (*Order, bool) {
	o, ok := b.orders[id]
	if !ok {
		return nil, false
	}
	lvl := o.level
	lvl.unlink(o)
	b.sideOf(o.Side).prune(lvl)
	delete(b.orders, id)
	return o, true
}

// Order looks up a resting order by id without removing it.
func (b *OrderBook) Order(id uint64) (*Order, bool) {
	o, ok := b.orders[id]
	return o, ok
}

// BestLevel returns the best price level of a side, or nil when empty.
// The returned level is owned by the book's writer shard.
func (b *OrderBook) BestLevel(s schema.OrderSide) *PriceLevel {
	return b.sideOf(s).best()
}

// BestPrice returns the best price of a side.
func (b *OrderBook) BestPrice(s schema.OrderSide) (schema.Price, bool) {
	lvl := b.sideOf(s).best()
	if lvl == nil {
		return 0, false
	}
	return lvl.price, true
}

// BestBidAsk returns both tops of book; ok is false unless both sides are
// non-empty.
func (b *OrderBook) BestBidAsk() (bid, ask schema.Price, ok bool) {
	bl, al := b.bids.best(), b.asks.best()
	if bl == nil || al == nil {
		return 0, 0, false
	}
	return bl.price, al.price, true
}

// Crossed reports the invalid state best_bid >= best_ask. The match loop
// makes this unreachable; the engine checks it after every mutation.
func (b *OrderBook) Crossed() bool {
	bid, ask, ok := b.BestBidAsk()
	return ok && bid >= ask
}

// Fill applies an executed quantity to a resting maker order, evicting it
// from the book the moment it is exhausted so no empty level persists.
func (b *OrderBook) Fill(maker *Order, qty schema.Quantity) {
	lvl := maker.level
	lvl.reduce(maker, qty)
	if maker.LeavesQty == 0 {
		maker.Status = schema.OrderStatusFilled
		lvl.unlink(maker)
		b.sideOf(maker.Side).prune(lvl)
		delete(b.orders, maker.ID)
		return
	}
	maker.Status = schema.OrderStatusPartFilled
}

// Depth appends up to n (price, qty) rows of a side, best first, into dst.
// Rows are copies; callers never receive internal state.
func (b *OrderBook) Depth(s schema.OrderSide, n int, dst []DepthRow) []DepthRow {
	return b.sideOf(s).depth(n, dst)
}

// OrderIDs returns the ids of all resting orders, in no particular order.
func (b *OrderBook) OrderIDs() []uint64 {
	ids := make([]uint64, 0, len(b.orders))
	for id := range b.orders {
		ids = append(ids, id)
	}
	return ids
}

// Orders returns the number of resting orders across both sides.
func (b *OrderBook) Orders() int { return len(b.orders) }

// Levels returns the number of live price levels on a side.
func (b *OrderBook) Levels(s schema.OrderSide) int { return b.sideOf(s).len() }

// LiquidityWithin sums quantity available to a taker of the given side up to
// its limit price (0 means any price). Used for fill-or-kill dry runs.
func (b *OrderBook) LiquidityWithin(takerSide schema.OrderSide, limit schema.Price) schema.Quantity {
	opposite := b.sideOf(takerSide.Opposite())
	var total schema.Quantity
	for _, lvl := range opposite.levels {
		if limit > 0 && !crosses(takerSide, limit, lvl.price) {
			break
		}
		total += lvl.totalQty
	}
	return total
}

// crosses reports whether a taker at limitPrice trades against a resting
// level at levelPrice.
func crosses(takerSide schema.OrderSide, limitPrice, levelPrice schema.Price) bool {
	if takerSide == schema.OrderSideBuy {
		return limitPrice >= levelPrice
	}
	return limitPrice <= levelPrice
}

func (b *OrderBook) sideOf(s schema.OrderSide) *side {
	if s == schema.OrderSideBuy {
		return b.bids
	}
	return b.asks
}
