package book

import "matchbook/internal/schema"

// Order is a single order resting in, or matching against, the book.
// Orders are owned by the shard of their symbol; only that shard's writer
// may mutate one.
type Order struct {
	ID          uint64
	SymbolID    schema.SymbolID
	AccountID   uint32
	Side        schema.OrderSide
	Type        schema.OrderType
	TimeInForce schema.TimeInForce
	Price       schema.Price
	Qty         schema.Quantity
	LeavesQty   schema.Quantity
	Seq         uint64
	TsNano      int64
	Status      schema.OrderStatus

	// intrusive FIFO links inside a price level
	next, prev *Order
	level      *PriceLevel
}

// Filled returns the executed quantity so far.
func (o *Order) Filled() schema.Quantity {
	return o.Qty - o.LeavesQty
}

// Resting reports whether the order currently sits on a price level.
func (o *Order) Resting() bool {
	return o.level != nil
}
