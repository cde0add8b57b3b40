// Package engine implements price-time priority matching for one symbol.
//
// An Engine owns its symbol's order book outright. It is single-writer: the
// shard controller guarantees at most one Submit or Cancel is in flight per
// symbol, so no locking happens here.
package engine

import (
	"time"

	"github.com/yanun0323/errors"

	"matchbook/internal/book"
	"matchbook/internal/schema"
)

var (
	ErrInvalidOrder      = errors.New("invalid order")
	ErrOrderNotFound     = errors.New("order not found")
	ErrInternalInvariant = errors.New("internal invariant violation")
)

// SubmitResult reports the outcome of one submit call.
type SubmitResult struct {
	OrderID   uint64
	Status    schema.OrderStatus
	LeavesQty schema.Quantity
	Trades    []schema.Trade
}

// Engine matches incoming orders against one symbol's book.
type Engine struct {
	symbol   schema.Symbol
	book     *book.OrderBook
	nextID   uint64
	nextSeq  uint64
	tradeSeq uint64
	now      func() int64
}

// New creates an engine with an empty book for the symbol.
func New(symbol schema.Symbol) *Engine {
	return &Engine{
		symbol: symbol,
		book:   book.NewOrderBook(symbol),
		now:    func() int64 { return time.Now().UTC().UnixNano() },
	}
}

// WithClock swaps the timestamp source. Used by tests.
func (e *Engine) WithClock(now func() int64) *Engine {
	if now != nil {
		e.now = now
	}
	return e
}

// Book exposes the underlying book to the owning shard, for snapshot builds
// and read queries taken under the shard lock.
func (e *Engine) Book() *book.OrderBook { return e.book }

// Submit validates an order, matches it against the opposite side in
// price-time priority, and rests any remainder allowed by its time-in-force.
// It returns one trade per maker order consumed, priced at the maker's
// resting price.
func (e *Engine) Submit(intent schema.OrderIntent) (SubmitResult, error) {
	if err := e.validate(intent); err != nil {
		return SubmitResult{}, err
	}

	orderID := intent.OrderID
	if orderID == 0 {
		e.nextID++
		orderID = e.nextID
	} else if orderID > e.nextID {
		e.nextID = orderID
	}
	e.nextSeq++

	taker := &book.Order{
		ID:          orderID,
		SymbolID:    intent.SymbolID,
		AccountID:   intent.AccountID,
		Side:        intent.Side,
		Type:        intent.Type,
		TimeInForce: intent.TimeInForce,
		Price:       intent.Price,
		Qty:         intent.Qty,
		LeavesQty:   intent.Qty,
		Seq:         e.nextSeq,
		TsNano:      e.now(),
		Status:      schema.OrderStatusNew,
	}

	// Fill-or-kill never mutates the book unless it can fill completely.
	if taker.TimeInForce == schema.TimeInForceFOK {
		limit := taker.Price
		if taker.Type == schema.OrderTypeMarket {
			limit = 0
		}
		if e.book.LiquidityWithin(taker.Side, limit) < taker.Qty {
			taker.Status = schema.OrderStatusCancelled
			return result(taker, nil), nil
		}
	}

	trades := e.match(taker)

	if taker.LeavesQty > 0 {
		switch {
		case taker.Type == schema.OrderTypeMarket,
			taker.TimeInForce == schema.TimeInForceIOC,
			taker.TimeInForce == schema.TimeInForceFOK:
			taker.Status = schema.OrderStatusCancelled
		default:
			if err := e.book.AddRestingOrder(taker); err != nil {
				return SubmitResult{}, errors.Wrap(ErrInvalidOrder, err.Error())
			}
		}
	}

	if e.book.Crossed() {
		return SubmitResult{}, errors.Wrap(ErrInternalInvariant, "book crossed after submit")
	}
	return result(taker, trades), nil
}

// Cancel removes a resting order. Losing the race to a concurrent fill (or a
// repeated cancel) yields ErrOrderNotFound and leaves all state unchanged.
func (e *Engine) Cancel(orderID uint64) error {
	o, ok := e.book.RemoveOrder(orderID)
	if !ok {
		return ErrOrderNotFound
	}
	o.Status = schema.OrderStatusCancelled
	return nil
}

// match walks the opposite side consuming makers in FIFO order while the
// taker's price crosses, one trade per maker consumed.
func (e *Engine) match(taker *book.Order) []schema.Trade {
	var trades []schema.Trade
	for taker.LeavesQty > 0 {
		lvl := e.book.BestLevel(taker.Side.Opposite())
		if lvl == nil {
			break
		}
		if taker.Type != schema.OrderTypeMarket && !priceCrosses(taker.Side, taker.Price, lvl.Price()) {
			break
		}
		maker := lvl.Front()
		qty := taker.LeavesQty
		if maker.LeavesQty < qty {
			qty = maker.LeavesQty
		}

		e.tradeSeq++
		trades = append(trades, schema.Trade{
			TakerOrderID: taker.ID,
			MakerOrderID: maker.ID,
			SymbolID:     e.symbol.ID,
			TakerSide:    taker.Side,
			Price:        lvl.Price(),
			Qty:          qty,
			Seq:          e.tradeSeq,
			TsNano:       e.now(),
		})

		e.book.Fill(maker, qty)
		taker.LeavesQty -= qty
		if taker.LeavesQty == 0 {
			taker.Status = schema.OrderStatusFilled
		} else {
			taker.Status = schema.OrderStatusPartFilled
		}
	}
	return trades
}

func (e *Engine) validate(intent schema.OrderIntent) error {
	if intent.SymbolID != e.symbol.ID {
		return errors.Wrap(ErrInvalidOrder, "unknown symbol")
	}
	if intent.Qty <= 0 {
		return errors.Wrap(ErrInvalidOrder, "quantity must be > 0")
	}
	if intent.Side != schema.OrderSideBuy && intent.Side != schema.OrderSideSell {
		return errors.Wrap(ErrInvalidOrder, "side is unknown")
	}
	// A caller-supplied id must be rejected before matching so a duplicate
	// cannot consume makers and then fail to rest.
	if intent.OrderID != 0 {
		if _, ok := e.book.Order(intent.OrderID); ok {
			return errors.Wrap(ErrInvalidOrder, "order id already resting")
		}
	}
	switch intent.Type {
	case schema.OrderTypeLimit:
		if err := e.book.ValidatePrice(intent.Price); err != nil {
			return errors.Wrap(ErrInvalidOrder, err.Error())
		}
	case schema.OrderTypeMarket:
	default:
		return errors.Wrap(ErrInvalidOrder, "order type is unknown")
	}
	return nil
}

func priceCrosses(takerSide schema.OrderSide, limit, level schema.Price) bool {
	if takerSide == schema.OrderSideBuy {
		return limit >= level
	}
	return limit <= level
}

func result(taker *book.Order, trades []schema.Trade) SubmitResult {
	return SubmitResult{
		OrderID:   taker.ID,
		Status:    taker.Status,
		LeavesQty: taker.LeavesQty,
		Trades:    trades,
	}
}
