package ledger

import (
	"math"
	"path/filepath"
	"testing"

	"matchbook/internal/schema"
)

func trade(side schema.OrderSide, price schema.Price, qty schema.Quantity, seq uint64) schema.Trade {
	return schema.Trade{
		SymbolID:  1,
		TakerSide: side,
		Price:     price,
		Qty:       qty,
		Seq:       seq,
	}
}

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

// Buy 10 @ 100, buy 10 @ 110, sell 15 @ 120: the sell realizes
// (120-105)*15 = 225 and leaves 5 long at avg 105.
func TestWeightedAverageAndRealized(t *testing.T) {
	l := New()
	l.ApplyTrade(trade(schema.OrderSideBuy, 100, 10, 1))
	l.ApplyTrade(trade(schema.OrderSideBuy, 110, 10, 2))

	pos, ok := l.Position(1)
	if !ok {
		t.Fatal("position missing")
	}
	if pos.Qty != 20 || !almostEqual(pos.AvgPrice, 105) {
		t.Fatalf("want 20 @ 105, got %d @ %f", pos.Qty, pos.AvgPrice)
	}

	l.ApplyTrade(trade(schema.OrderSideSell, 120, 15, 3))
	pos, _ = l.Position(1)
	if pos.Qty != 5 || !almostEqual(pos.AvgPrice, 105) {
		t.Fatalf("reduce must keep avg: got %d @ %f", pos.Qty, pos.AvgPrice)
	}
	if !almostEqual(pos.RealizedPnL, 225) {
		t.Fatalf("realized should be 225, got %f", pos.RealizedPnL)
	}
}

func TestFlipResetsAverage(t *testing.T) {
	l := New()
	l.ApplyTrade(trade(schema.OrderSideBuy, 100, 10, 1))
	l.ApplyTrade(trade(schema.OrderSideSell, 110, 25, 2))

	pos, _ := l.Position(1)
	if pos.Qty != -15 {
		t.Fatalf("flip should leave -15, got %d", pos.Qty)
	}
	if !almostEqual(pos.AvgPrice, 110) {
		t.Fatalf("flip resets avg to fill price 110, got %f", pos.AvgPrice)
	}
	// Only the 10 closed units realize PnL: (110-100)*10.
	if !almostEqual(pos.RealizedPnL, 100) {
		t.Fatalf("realized should be 100, got %f", pos.RealizedPnL)
	}
}

func TestShortSideRealized(t *testing.T) {
	l := New()
	l.ApplyTrade(trade(schema.OrderSideSell, 100, 10, 1))
	l.ApplyTrade(trade(schema.OrderSideBuy, 90, 10, 2))

	pos, _ := l.Position(1)
	if pos.Qty != 0 {
		t.Fatalf("position should be flat, got %d", pos.Qty)
	}
	if !almostEqual(pos.RealizedPnL, 100) {
		t.Fatalf("short covered 10 lower should realize 100, got %f", pos.RealizedPnL)
	}
	if !almostEqual(pos.AvgPrice, 0) {
		t.Fatalf("flat position resets avg, got %f", pos.AvgPrice)
	}
}

func TestUnrealizedPnL(t *testing.T) {
	l := New()
	if got := l.UnrealizedPnL(1, 120); !almostEqual(got, 0) {
		t.Fatalf("flat symbol should mark to 0, got %f", got)
	}

	l.ApplyTrade(trade(schema.OrderSideBuy, 100, 10, 1))
	if got := l.UnrealizedPnL(1, 120); !almostEqual(got, 200) {
		t.Fatalf("long 10 from 100 marked 120 should be 200, got %f", got)
	}

	l.ApplyTrade(trade(schema.OrderSideSell, 100, 30, 2))
	if got := l.UnrealizedPnL(1, 90); !almostEqual(got, 200) {
		t.Fatalf("short 20 from 100 marked 90 should be 200, got %f", got)
	}
}

// Two ledgers fed the same trades from opposite perspectives always hold
// opposite quantities.
func TestCounterpartyConservation(t *testing.T) {
	takerView := New()
	makerView := New()
	trades := []schema.Trade{
		trade(schema.OrderSideBuy, 100, 10, 1),
		trade(schema.OrderSideSell, 105, 4, 2),
		trade(schema.OrderSideBuy, 95, 7, 3),
		trade(schema.OrderSideSell, 110, 20, 4),
	}
	for _, tr := range trades {
		takerView.ApplyTrade(tr)
		mirror := tr
		mirror.TakerSide = tr.TakerSide.Opposite()
		makerView.ApplyTrade(mirror)
	}

	taker, _ := takerView.Position(1)
	maker, _ := makerView.Position(1)
	if taker.Qty+maker.Qty != 0 {
		t.Fatalf("net quantity must conserve: taker=%d maker=%d", taker.Qty, maker.Qty)
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	l := New()
	l.ApplyTrade(trade(schema.OrderSideBuy, 100, 10, 1))
	l.ApplyTrade(trade(schema.OrderSideSell, 110, 4, 2))

	path := filepath.Join(t.TempDir(), "positions.json")
	snap := l.SnapshotWithMeta(2, 42)
	if err := WriteSnapshot(path, snap); err != nil {
		t.Fatalf("write: %v", err)
	}
	loaded, err := ReadSnapshot(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if loaded.LastSeq != 2 || loaded.LastEventTs != 42 {
		t.Fatalf("metadata lost: %+v", loaded)
	}
	if err := CompareSnapshots(snap, loaded); err != nil {
		t.Fatalf("roundtrip mismatch: %v", err)
	}

	restored := New()
	restored.ApplySnapshot(loaded)
	if err := CompareSnapshots(snap, restored.Snapshot()); err != nil {
		t.Fatalf("apply mismatch: %v", err)
	}
}

func TestMergeSnapshotsSorted(t *testing.T) {
	a := New()
	b := New()
	a.ApplyTrade(schema.Trade{SymbolID: 3, TakerSide: schema.OrderSideBuy, Price: 10, Qty: 1, Seq: 1})
	b.ApplyTrade(schema.Trade{SymbolID: 1, TakerSide: schema.OrderSideBuy, Price: 10, Qty: 2, Seq: 2})

	snap := MergeSnapshots(2, 0, a, b)
	if len(snap.Positions) != 2 {
		t.Fatalf("want 2 entries, got %d", len(snap.Positions))
	}
	if snap.Positions[0].SymbolID != 1 || snap.Positions[1].SymbolID != 3 {
		t.Fatalf("entries must sort by symbol: %+v", snap.Positions)
	}
}

func TestCompareSnapshotsDetectsDrift(t *testing.T) {
	l := New()
	l.ApplyTrade(trade(schema.OrderSideBuy, 100, 10, 1))
	snap := l.Snapshot()

	drifted := snap
	drifted.Positions = append([]PositionEntry(nil), snap.Positions...)
	drifted.Positions[0].Qty += 1
	if err := CompareSnapshots(snap, drifted); err == nil {
		t.Fatal("qty drift must be detected")
	}
}
