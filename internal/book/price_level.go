package book

import "matchbook/internal/schema"

// PriceLevel holds all resting orders at one exact price on one side of the
// book, in FIFO priority order. The aggregate quantity is kept in lockstep
// with every enqueue, fill and unlink: it always equals the sum of the
// remaining quantities of the orders in the list.
type PriceLevel struct {
	price    schema.Price
	head     *Order
	tail     *Order
	totalQty schema.Quantity
	count    int
}

// Price returns the level's price.
func (l *PriceLevel) Price() schema.Price { return l.price }

// TotalQty returns the cached sum of remaining order quantities.
func (l *PriceLevel) TotalQty() schema.Quantity { return l.totalQty }

// Len returns the number of resting orders at this level.
func (l *PriceLevel) Len() int { return l.count }

// Front returns the order with the highest time priority, or nil.
func (l *PriceLevel) Front() *Order { return l.head }

// enqueue appends an order at the tail (lowest time priority).
func (l *PriceLevel) enqueue(o *Order) {
	if l.tail != nil {
		l.tail.next = o
		o.prev = l.tail
	} else {
		l.head = o
	}
	l.tail = o
	l.totalQty += o.LeavesQty
	l.count++
	o.level = l
}

// unlink removes an order from the list wherever it sits.
func (l *PriceLevel) unlink(o *Order) {
	if o.prev != nil {
		o.prev.next = o.next
	} else {
		l.head = o.next
	}
	if o.next != nil {
		o.next.prev = o.prev
	} else {
		l.tail = o.prev
	}
	l.totalQty -= o.LeavesQty
	l.count--
	o.next, o.prev, o.level = nil, nil, nil
}

// reduce subtracts an executed quantity from an order and the aggregate.
// The caller unlinks the order once its remainder reaches zero.
func (l *PriceLevel) reduce(o *Order, qty schema.Quantity) {
	o.LeavesQty -= qty
	l.totalQty -= qty
}
