package main

import (
	"context"
	"flag"
	"fmt"
	"log"

	"matchbook/internal/codec"
	"matchbook/internal/journal"
	"matchbook/internal/ledger"
	"matchbook/internal/schema"
)

func main() {
	dir := flag.String("dir", "testdata/journal", "Journal directory")
	prefix := flag.String("prefix", "", "Journal file prefix (default: journal)")
	speed := flag.Float64("speed", 0, "Playback speed (1=real-time, 0=no pacing)")
	useRecv := flag.Bool("use-recv-time", false, "Use receive timestamp for pacing")
	noChecksum := flag.Bool("no-checksum", false, "Disable checksum validation")
	maxPayload := flag.Int("max-payload", 0, "Max payload size in bytes (0=unlimited)")
	decode := flag.Bool("decode", false, "Decode known payload types")
	verifySnapshot := flag.String("verify-snapshot", "", "Rebuild positions and compare against this snapshot")
	quiet := flag.Bool("quiet", false, "Suppress per-event output")
	flag.Parse()

	cfg := journal.PlaybackConfig{
		Dir:             *dir,
		FilePrefix:      *prefix,
		Speed:           *speed,
		UseRecvTime:     *useRecv,
		DisableChecksum: *noChecksum,
		MaxPayloadSize:  *maxPayload,
	}
	pb, err := journal.NewPlayback(cfg)
	if err != nil {
		log.Fatalf("playback init failed: %v", err)
	}

	ctx := context.Background()
	positions := ledger.New()
	var index int
	err = pb.Run(ctx, func(header schema.EventHeader, payload []byte) error {
		index++
		if !*quiet {
			fmt.Printf("%06d seq=%d type=%s ts_event=%d ts_recv=%d len=%d\n",
				index, header.Seq, eventTypeName(header.Type), header.TsEvent, header.TsRecv, len(payload))
		}
		if *decode && !*quiet {
			printDecoded(header.Type, payload)
		}
		if header.Type == schema.EventTrade {
			trade, ok := codec.DecodeTrade(payload)
			if !ok {
				return fmt.Errorf("decode trade failed at record %d", index)
			}
			positions.ApplyTrade(trade)
		}
		return nil
	})
	if err != nil {
		log.Fatalf("playback run failed: %v", err)
	}

	if *verifySnapshot != "" {
		expected, err := ledger.ReadSnapshot(*verifySnapshot)
		if err != nil {
			log.Fatalf("snapshot read failed: %v", err)
		}
		if err := ledger.CompareSnapshots(expected, positions.Snapshot()); err != nil {
			log.Fatalf("snapshot verify failed: %v", err)
		}
		log.Printf("snapshot verified: positions=%d", positions.Count())
	}
	log.Printf("replay completed: records=%d positions=%d", index, positions.Count())
}

func eventTypeName(t schema.EventType) string {
	switch t {
	case schema.EventOrderIntent:
		return "OrderIntent"
	case schema.EventTrade:
		return "Trade"
	case schema.EventCancel:
		return "Cancel"
	case schema.EventRiskDecision:
		return "RiskDecision"
	case schema.EventPositionChange:
		return "PositionChange"
	default:
		return fmt.Sprintf("Unknown(%d)", t)
	}
}

func printDecoded(t schema.EventType, payload []byte) {
	switch t {
	case schema.EventOrderIntent:
		intent, ok := codec.DecodeOrderIntent(payload)
		if !ok {
			fmt.Println("  decode OrderIntent failed")
			return
		}
		fmt.Printf("  intent order=%d symbol=%d side=%d type=%d tif=%d price=%d qty=%d\n",
			intent.OrderID, intent.SymbolID, intent.Side, intent.Type, intent.TimeInForce, intent.Price, intent.Qty)
	case schema.EventTrade:
		trade, ok := codec.DecodeTrade(payload)
		if !ok {
			fmt.Println("  decode Trade failed")
			return
		}
		fmt.Printf("  trade taker=%d maker=%d symbol=%d side=%d price=%d qty=%d seq=%d\n",
			trade.TakerOrderID, trade.MakerOrderID, trade.SymbolID, trade.TakerSide, trade.Price, trade.Qty, trade.Seq)
	case schema.EventCancel:
		cancel, ok := codec.DecodeCancel(payload)
		if !ok {
			fmt.Println("  decode Cancel failed")
			return
		}
		fmt.Printf("  cancel order=%d symbol=%d\n", cancel.OrderID, cancel.SymbolID)
	case schema.EventRiskDecision:
		decision, ok := codec.DecodeRiskDecision(payload)
		if !ok {
			fmt.Println("  decode RiskDecision failed")
			return
		}
		fmt.Printf("  risk order=%d symbol=%d action=%d reason=%s\n",
			decision.OrderID, decision.SymbolID, decision.Action, decision.Reason)
	case schema.EventPositionChange:
		change, ok := codec.DecodePositionChange(payload)
		if !ok {
			fmt.Println("  decode PositionChange failed")
			return
		}
		fmt.Printf("  position symbol=%d qty=%d avg=%.4f realized=%.4f seq=%d\n",
			change.SymbolID, change.Qty, change.AvgPrice, change.RealizedPnL, change.Seq)
	}
}
