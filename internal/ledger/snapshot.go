package ledger

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"time"

	"matchbook/internal/schema"
)

// Snapshot captures positions at a point in time.
type Snapshot struct {
	Timestamp   int64           `json:"timestamp"`
	LastSeq     uint64          `json:"lastSeq"`
	LastEventTs int64           `json:"lastEventTs"`
	Positions   []PositionEntry `json:"positions"`
}

// PositionEntry is a single symbol position entry.
type PositionEntry struct {
	SymbolID    schema.SymbolID `json:"symbolId"`
	Qty         schema.Quantity `json:"qty"`
	AvgPrice    float64         `json:"avgPrice"`
	RealizedPnL float64         `json:"realizedPnl"`
}

// Snapshot builds a snapshot from current positions.
func (l *Ledger) Snapshot() Snapshot {
	return l.SnapshotWithMeta(0, 0)
}

// SnapshotWithMeta builds a snapshot with event metadata.
func (l *Ledger) SnapshotWithMeta(lastSeq uint64, lastEventTs int64) Snapshot {
	return MergeSnapshots(lastSeq, lastEventTs, l)
}

// MergeSnapshots combines positions from several ledgers (one per shard)
// into one snapshot, sorted by symbol.
func MergeSnapshots(lastSeq uint64, lastEventTs int64, ledgers ...*Ledger) Snapshot {
	var entries []PositionEntry
	for _, l := range ledgers {
		if l == nil {
			continue
		}
		for _, pos := range l.Entries() {
			entries = append(entries, PositionEntry{
				SymbolID:    pos.SymbolID,
				Qty:         pos.Qty,
				AvgPrice:    pos.AvgPrice,
				RealizedPnL: pos.RealizedPnL,
			})
		}
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].SymbolID < entries[j].SymbolID
	})
	return Snapshot{
		Timestamp:   time.Now().UTC().UnixNano(),
		LastSeq:     lastSeq,
		LastEventTs: lastEventTs,
		Positions:   entries,
	}
}

// ApplySnapshot replaces the ledger's positions with snapshot contents.
func (l *Ledger) ApplySnapshot(snapshot Snapshot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.positions = make(map[schema.SymbolID]*Position, len(snapshot.Positions))
	for _, entry := range snapshot.Positions {
		l.positions[entry.SymbolID] = &Position{
			SymbolID:    entry.SymbolID,
			Qty:         entry.Qty,
			AvgPrice:    entry.AvgPrice,
			RealizedPnL: entry.RealizedPnL,
		}
	}
}

// Restore seeds one position, replacing any existing entry for the symbol.
// Used when recovered state is split back across shard ledgers.
func (l *Ledger) Restore(entry PositionEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.positions[entry.SymbolID] = &Position{
		SymbolID:    entry.SymbolID,
		Qty:         entry.Qty,
		AvgPrice:    entry.AvgPrice,
		RealizedPnL: entry.RealizedPnL,
	}
}

// WriteSnapshot writes a snapshot to disk as JSON.
func WriteSnapshot(path string, snapshot Snapshot) error {
	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return err
	}
	dir := filepath.Dir(path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, data, 0o644)
}

// ReadSnapshot loads a snapshot from disk.
func ReadSnapshot(path string) (Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Snapshot{}, err
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return Snapshot{}, err
	}
	return snap, nil
}

// pnlTolerance absorbs float accumulation-order differences between a live
// run and its replay.
const pnlTolerance = 1e-6

// CompareSnapshots checks if two snapshots hold the same positions.
func CompareSnapshots(expected, actual Snapshot) error {
	if len(expected.Positions) != len(actual.Positions) {
		return fmt.Errorf("snapshot length mismatch: expected=%d actual=%d", len(expected.Positions), len(actual.Positions))
	}
	expectedMap := make(map[schema.SymbolID]PositionEntry, len(expected.Positions))
	for _, entry := range expected.Positions {
		expectedMap[entry.SymbolID] = entry
	}
	for _, entry := range actual.Positions {
		want, ok := expectedMap[entry.SymbolID]
		if !ok {
			return fmt.Errorf("snapshot missing symbol: %d", entry.SymbolID)
		}
		if want.Qty != entry.Qty {
			return fmt.Errorf("snapshot qty mismatch: symbol=%d expected=%d actual=%d", entry.SymbolID, want.Qty, entry.Qty)
		}
		if math.Abs(want.AvgPrice-entry.AvgPrice) > pnlTolerance {
			return fmt.Errorf("snapshot avg price mismatch: symbol=%d expected=%f actual=%f", entry.SymbolID, want.AvgPrice, entry.AvgPrice)
		}
		if math.Abs(want.RealizedPnL-entry.RealizedPnL) > pnlTolerance {
			return fmt.Errorf("snapshot pnl mismatch: symbol=%d expected=%f actual=%f", entry.SymbolID, want.RealizedPnL, entry.RealizedPnL)
		}
	}
	return nil
}
