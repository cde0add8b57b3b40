package book

import (
	"testing"

	"matchbook/internal/schema"
)

func testSymbol() schema.Symbol {
	return schema.Symbol{
		ID:      1,
		VenueID: 1,
		Name:    "TEST-USD",
		Scale:   schema.ScaleSpec{PriceScale: 2, QuantityScale: 0},
		Tick:    5,
	}
}

func newOrder(id uint64, side schema.OrderSide, price schema.Price, qty schema.Quantity) *Order {
	return &Order{
		ID:          id,
		SymbolID:    1,
		Side:        side,
		Type:        schema.OrderTypeLimit,
		TimeInForce: schema.TimeInForceGTC,
		Price:       price,
		Qty:         qty,
		LeavesQty:   qty,
		Status:      schema.OrderStatusNew,
	}
}

func TestValidatePrice(t *testing.T) {
	b := NewOrderBook(testSymbol())

	testCases := []struct {
		desc    string
		price   schema.Price
		wantErr bool
	}{
		{"aligned", 100, false},
		{"single tick", 5, false},
		{"zero", 0, true},
		{"negative", -5, true},
		{"off tick", 101, true},
	}

	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			err := b.ValidatePrice(tc.price)
			if tc.wantErr && err == nil {
				t.Fatalf("price %d should be rejected", tc.price)
			}
			if !tc.wantErr && err != nil {
				t.Fatalf("price %d should be accepted, got %v", tc.price, err)
			}
		})
	}
}

func TestBidsDescendAsksAscend(t *testing.T) {
	b := NewOrderBook(testSymbol())
	for i, price := range []schema.Price{100, 110, 105} {
		if err := b.AddRestingOrder(newOrder(uint64(i+1), schema.OrderSideBuy, price, 1)); err != nil {
			t.Fatalf("add bid: %v", err)
		}
	}
	for i, price := range []schema.Price{130, 120, 125} {
		if err := b.AddRestingOrder(newOrder(uint64(i+10), schema.OrderSideSell, price, 1)); err != nil {
			t.Fatalf("add ask: %v", err)
		}
	}

	bids := b.Depth(schema.OrderSideBuy, 0, nil)
	for i := 1; i < len(bids); i++ {
		if bids[i].Price >= bids[i-1].Price {
			t.Fatalf("bids not strictly descending: %v", bids)
		}
	}
	asks := b.Depth(schema.OrderSideSell, 0, nil)
	for i := 1; i < len(asks); i++ {
		if asks[i].Price <= asks[i-1].Price {
			t.Fatalf("asks not strictly ascending: %v", asks)
		}
	}

	if best, ok := b.BestPrice(schema.OrderSideBuy); !ok || best != 110 {
		t.Fatalf("best bid should be 110, got %d ok=%v", best, ok)
	}
	if best, ok := b.BestPrice(schema.OrderSideSell); !ok || best != 120 {
		t.Fatalf("best ask should be 120, got %d ok=%v", best, ok)
	}
}

func TestLevelFIFOAndAggregate(t *testing.T) {
	b := NewOrderBook(testSymbol())
	for id := uint64(1); id <= 3; id++ {
		o := newOrder(id, schema.OrderSideBuy, 100, schema.Quantity(id*10))
		o.Seq = id
		if err := b.AddRestingOrder(o); err != nil {
			t.Fatalf("add: %v", err)
		}
	}

	lvl := b.BestLevel(schema.OrderSideBuy)
	if lvl == nil {
		t.Fatal("level missing")
	}
	if lvl.TotalQty() != 60 {
		t.Fatalf("aggregate qty should be 60, got %d", lvl.TotalQty())
	}
	if lvl.Len() != 3 {
		t.Fatalf("level should hold 3 orders, got %d", lvl.Len())
	}
	for want := uint64(1); want <= 3; want++ {
		front := lvl.Front()
		if front.ID != want {
			t.Fatalf("FIFO broken: want order %d at front, got %d", want, front.ID)
		}
		b.Fill(front, front.LeavesQty)
	}
	if b.BestLevel(schema.OrderSideBuy) != nil {
		t.Fatal("empty level should be pruned")
	}
}

func TestRemoveOrderMaintainsAggregate(t *testing.T) {
	b := NewOrderBook(testSymbol())
	for id := uint64(1); id <= 3; id++ {
		if err := b.AddRestingOrder(newOrder(id, schema.OrderSideSell, 100, 10)); err != nil {
			t.Fatalf("add: %v", err)
		}
	}

	// Remove the middle order; the level keeps head and tail in order.
	if _, ok := b.RemoveOrder(2); !ok {
		t.Fatal("remove should succeed")
	}
	lvl := b.BestLevel(schema.OrderSideSell)
	if lvl.TotalQty() != 20 || lvl.Len() != 2 {
		t.Fatalf("level should hold 2 orders / qty 20, got %d / %d", lvl.Len(), lvl.TotalQty())
	}
	if lvl.Front().ID != 1 {
		t.Fatalf("front should still be order 1, got %d", lvl.Front().ID)
	}

	if _, ok := b.RemoveOrder(2); ok {
		t.Fatal("second remove of same id should report not found")
	}
	if lvl.TotalQty() != 20 || lvl.Len() != 2 {
		t.Fatal("failed remove must leave state unchanged")
	}
}

func TestDuplicateOrderRejected(t *testing.T) {
	b := NewOrderBook(testSymbol())
	if err := b.AddRestingOrder(newOrder(7, schema.OrderSideBuy, 100, 1)); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := b.AddRestingOrder(newOrder(7, schema.OrderSideBuy, 105, 1)); err == nil {
		t.Fatal("duplicate id should be rejected")
	}
}

func TestCrossed(t *testing.T) {
	b := NewOrderBook(testSymbol())
	if b.Crossed() {
		t.Fatal("empty book cannot be crossed")
	}
	if err := b.AddRestingOrder(newOrder(1, schema.OrderSideBuy, 100, 1)); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := b.AddRestingOrder(newOrder(2, schema.OrderSideSell, 105, 1)); err != nil {
		t.Fatalf("add: %v", err)
	}
	if b.Crossed() {
		t.Fatal("bid 100 / ask 105 is not crossed")
	}
	if err := b.AddRestingOrder(newOrder(3, schema.OrderSideSell, 100, 1)); err != nil {
		t.Fatalf("add: %v", err)
	}
	if !b.Crossed() {
		t.Fatal("bid 100 / ask 100 is crossed")
	}
}

func TestLiquidityWithin(t *testing.T) {
	b := NewOrderBook(testSymbol())
	prices := []schema.Price{100, 105, 110}
	for i, price := range prices {
		if err := b.AddRestingOrder(newOrder(uint64(i+1), schema.OrderSideSell, price, 10)); err != nil {
			t.Fatalf("add: %v", err)
		}
	}

	testCases := []struct {
		desc  string
		limit schema.Price
		want  schema.Quantity
	}{
		{"below book", 95, 0},
		{"first level", 100, 10},
		{"two levels", 105, 20},
		{"whole book", 110, 30},
		{"market", 0, 30},
	}
	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			got := b.LiquidityWithin(schema.OrderSideBuy, tc.limit)
			if got != tc.want {
				t.Fatalf("liquidity within %d should be %d, got %d", tc.limit, tc.want, got)
			}
		})
	}
}

func TestDepthLimit(t *testing.T) {
	b := NewOrderBook(testSymbol())
	for i := 0; i < 5; i++ {
		price := schema.Price(100 + 5*i)
		if err := b.AddRestingOrder(newOrder(uint64(i+1), schema.OrderSideSell, price, 1)); err != nil {
			t.Fatalf("add: %v", err)
		}
	}
	rows := b.Depth(schema.OrderSideSell, 2, nil)
	if len(rows) != 2 {
		t.Fatalf("depth 2 should return 2 rows, got %d", len(rows))
	}
	if rows[0].Price != 100 || rows[1].Price != 105 {
		t.Fatalf("depth rows out of order: %v", rows)
	}
}

func BenchmarkAddRemove(b *testing.B) {
	ob := NewOrderBook(testSymbol())
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		id := uint64(i + 1)
		price := schema.Price(100 + 5*(i%16))
		_ = ob.AddRestingOrder(newOrder(id, schema.OrderSideBuy, price, 1))
		ob.RemoveOrder(id)
	}
}
