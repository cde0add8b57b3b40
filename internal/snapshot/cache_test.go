package snapshot

import (
	"testing"

	"matchbook/internal/book"
	"matchbook/internal/schema"
)

func testBook(t *testing.T) *book.OrderBook {
	t.Helper()
	b := book.NewOrderBook(schema.Symbol{ID: 1, Name: "TEST-USD", Tick: 1})
	orders := []struct {
		id    uint64
		side  schema.OrderSide
		price schema.Price
		qty   schema.Quantity
	}{
		{1, schema.OrderSideBuy, 100, 5},
		{2, schema.OrderSideBuy, 99, 3},
		{3, schema.OrderSideSell, 101, 7},
		{4, schema.OrderSideSell, 102, 2},
	}
	for _, o := range orders {
		err := b.AddRestingOrder(&book.Order{
			ID:        o.id,
			SymbolID:  1,
			Side:      o.side,
			Type:      schema.OrderTypeLimit,
			Price:     o.price,
			Qty:       o.qty,
			LeavesQty: o.qty,
		})
		if err != nil {
			t.Fatalf("add: %v", err)
		}
	}
	return b
}

func TestPublishAndLoad(t *testing.T) {
	c := NewCache(1, 4)
	if c.Load(1) != nil {
		t.Fatal("unpublished symbol should load nil")
	}

	b := testBook(t)
	snap := c.Publish(b)
	if snap.Version != 1 {
		t.Fatalf("first version should be 1, got %d", snap.Version)
	}
	bid, ask, ok := c.Load(1).BestBidAsk()
	if !ok || bid != 100 || ask != 101 {
		t.Fatalf("want 100/101, got %d/%d ok=%v", bid, ask, ok)
	}
}

func TestVersionMonotonic(t *testing.T) {
	c := NewCache(1, 4)
	b := testBook(t)
	var last uint64
	for i := 0; i < 5; i++ {
		snap := c.Publish(b)
		if snap.Version <= last {
			t.Fatalf("version must increase: %d then %d", last, snap.Version)
		}
		last = snap.Version
	}
}

// A reader holding an old snapshot keeps a consistent view while the writer
// publishes new ones.
func TestOldSnapshotImmutable(t *testing.T) {
	c := NewCache(1, 4)
	b := testBook(t)
	old := c.Publish(b)
	oldBid := old.BestBid

	if _, ok := b.RemoveOrder(1); !ok {
		t.Fatal("remove failed")
	}
	fresh := c.Publish(b)

	if old.BestBid != oldBid || old.Version != 1 {
		t.Fatal("published snapshot mutated after later publish")
	}
	if fresh.BestBid != 99 || fresh.Version != 2 {
		t.Fatalf("new snapshot should see bid 99 v2, got %d v%d", fresh.BestBid, fresh.Version)
	}
}

func TestDepthCapped(t *testing.T) {
	c := NewCache(1, 1)
	snap := c.Publish(testBook(t))
	if len(snap.Bids) != 1 || len(snap.Asks) != 1 {
		t.Fatalf("depth 1 should keep one row per side: %d/%d", len(snap.Bids), len(snap.Asks))
	}
	if rows := snap.Depth(schema.OrderSideBuy, 5); len(rows) != 1 {
		t.Fatalf("Depth cannot exceed captured rows, got %d", len(rows))
	}
}

func TestOneSidedBook(t *testing.T) {
	c := NewCache(1, 4)
	b := book.NewOrderBook(schema.Symbol{ID: 1, Name: "TEST-USD", Tick: 1})
	err := b.AddRestingOrder(&book.Order{
		ID: 1, SymbolID: 1, Side: schema.OrderSideBuy,
		Type: schema.OrderTypeLimit, Price: 100, Qty: 1, LeavesQty: 1,
	})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	snap := c.Publish(b)
	if _, _, ok := snap.BestBidAsk(); ok {
		t.Fatal("one-sided book has no two-sided quote")
	}
	if !snap.HasBid || snap.HasAsk {
		t.Fatalf("want bid only: %+v", snap)
	}
}
