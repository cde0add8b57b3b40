// Package exchange wires the matching engines, position ledgers, risk
// checks, snapshot cache and event bus behind one concurrency-safe facade.
//
// Every book mutation for a symbol runs under that symbol's shard write
// lock; read queries go through published snapshots or the ledger's own
// read lock and never touch a book directly.
package exchange

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/yanun0323/errors"

	"matchbook/internal/book"
	"matchbook/internal/bus"
	"matchbook/internal/codec"
	"matchbook/internal/engine"
	"matchbook/internal/ledger"
	"matchbook/internal/obs"
	"matchbook/internal/risk"
	"matchbook/internal/schema"
	"matchbook/internal/shard"
	"matchbook/internal/snapshot"
)

var (
	ErrUnknownSymbol         = errors.New("unknown symbol")
	ErrOrderRejected         = errors.New("order rejected by risk")
	ErrPositionLimitExceeded = errors.New("position limit exceeded")
)

// Config sets the facade's structural knobs.
type Config struct {
	ShardCount    int
	SnapshotDepth int
	Source        uint16
	Risk          risk.Config
}

// Exchange is the single entry point for order flow and state queries.
type Exchange struct {
	registry *schema.Registry
	control  *shard.Controller
	engines  []*engine.Engine // indexed by SymbolID-1
	ledgers  []*ledger.Ledger // one per shard
	risks    []*risk.Engine   // one per shard
	cache    *snapshot.Cache
	fanout   *bus.Fanout
	metrics  *obs.Metrics
	trace    *obs.TraceGenerator
	seq      uint64
	source   uint16
}

// New builds an exchange over the registry's symbols. The fanout may be nil
// when no subscribers are attached.
func New(registry *schema.Registry, cfg Config, fanout *bus.Fanout, metrics *obs.Metrics) *Exchange {
	if metrics == nil {
		metrics = obs.NewMetrics()
	}
	control := shard.NewController(cfg.ShardCount)

	engines := make([]*engine.Engine, registry.SymbolCount())
	for i := 0; i < registry.SymbolCount(); i++ {
		sym, _ := registry.SymbolAt(i)
		engines[sym.ID-1] = engine.New(sym)
	}

	ledgers := make([]*ledger.Ledger, control.Count())
	risks := make([]*risk.Engine, control.Count())
	for i := range ledgers {
		ledgers[i] = ledger.New()
		risks[i] = risk.NewEngine(cfg.Risk)
	}

	return &Exchange{
		registry: registry,
		control:  control,
		engines:  engines,
		ledgers:  ledgers,
		risks:    risks,
		cache:    snapshot.NewCache(registry.SymbolCount(), cfg.SnapshotDepth),
		fanout:   fanout,
		metrics:  metrics,
		trace:    obs.NewTraceGenerator(0),
		source:   cfg.Source,
	}
}

// Metrics exposes the facade's counters.
func (x *Exchange) Metrics() *obs.Metrics { return x.metrics }

// Registry exposes the symbol registry.
func (x *Exchange) Registry() *schema.Registry { return x.registry }

// SubmitOrder places a good-till-cancel limit order and returns its id.
func (x *Exchange) SubmitOrder(symbol string, side schema.OrderSide, price schema.Price, qty schema.Quantity) (uint64, error) {
	res, err := x.Submit(symbol, schema.OrderIntent{
		Side:        side,
		Type:        schema.OrderTypeLimit,
		TimeInForce: schema.TimeInForceGTC,
		Price:       price,
		Qty:         qty,
	})
	if err != nil {
		return 0, err
	}
	return res.OrderID, nil
}

// Submit runs the full order path: risk evaluation, matching, ledger
// updates, snapshot publication and event emission, all under the symbol's
// shard write lock.
func (x *Exchange) Submit(symbol string, intent schema.OrderIntent) (engine.SubmitResult, error) {
	sym, ok := x.registry.SymbolIDByName(symbol)
	if !ok {
		return engine.SubmitResult{}, errors.Wrap(engine.ErrInvalidOrder, "unknown symbol "+symbol)
	}
	intent.SymbolID = sym

	start := time.Now()
	traceID := x.trace.Next()
	var res engine.SubmitResult

	err := x.control.Write(symbol, func() error {
		shardIdx := x.control.IndexOf(symbol)
		eng := x.engines[sym-1]
		led := x.ledgers[shardIdx]

		pos, _ := led.Position(sym)
		decision := x.risks[shardIdx].Evaluate(intent, risk.StateView{
			Position:       pos.Qty,
			ReferencePrice: x.referencePrice(sym),
		})
		x.metrics.IncRiskReason(decision.Reason)
		if decision.Action == schema.RiskActionDeny {
			x.metrics.IncRejected()
			x.emit(schema.EventRiskDecision, codec.EncodeRiskDecision(nil, decision), time.Now().UTC().UnixNano(), traceID)
			if decision.Reason == schema.RiskReasonPositionLimit {
				return ErrPositionLimitExceeded
			}
			return errors.Wrap(ErrOrderRejected, decision.Reason.String())
		}

		var err error
		res, err = eng.Submit(intent)
		if err != nil {
			x.metrics.IncRejected()
			return err
		}

		for _, trade := range res.Trades {
			change := led.ApplyTrade(trade)
			x.emit(schema.EventTrade, codec.EncodeTrade(nil, trade), trade.TsNano, traceID)
			x.emit(schema.EventPositionChange, codec.EncodePositionChange(nil, change), trade.TsNano, traceID)
		}

		pubStart := time.Now()
		x.cache.Publish(eng.Book())
		x.metrics.ObservePublish(time.Since(pubStart))

		intent.OrderID = res.OrderID
		x.emit(schema.EventOrderIntent, codec.EncodeOrderIntent(nil, intent), time.Now().UTC().UnixNano(), traceID)
		return nil
	})

	x.metrics.ObserveSubmit(time.Since(start))
	return res, err
}

// CancelOrder removes a resting order. A cancel that lost the race to a
// fill (or repeats an earlier cancel) returns engine.ErrOrderNotFound and
// leaves all state untouched.
func (x *Exchange) CancelOrder(symbol string, orderID uint64) error {
	sym, ok := x.registry.SymbolIDByName(symbol)
	if !ok {
		return errors.Wrap(ErrUnknownSymbol, symbol)
	}
	traceID := x.trace.Next()

	return x.control.Write(symbol, func() error {
		eng := x.engines[sym-1]
		if err := eng.Cancel(orderID); err != nil {
			x.metrics.IncCancelMiss()
			return err
		}
		x.cache.Publish(eng.Book())
		x.emit(schema.EventCancel, codec.EncodeCancel(nil, schema.CancelRequest{
			OrderID:  orderID,
			SymbolID: sym,
		}), time.Now().UTC().UnixNano(), traceID)
		return nil
	})
}

// CancelAll cancels every resting order on the given symbols as one
// transaction: all shard locks involved are held for the whole sweep, so no
// order slips in between symbols.
func (x *Exchange) CancelAll(symbols ...string) (int, error) {
	ids := make([]schema.SymbolID, len(symbols))
	for i, symbol := range symbols {
		sym, ok := x.registry.SymbolIDByName(symbol)
		if !ok {
			return 0, errors.Wrap(ErrUnknownSymbol, symbol)
		}
		ids[i] = sym
	}

	cancelled := 0
	err := x.control.Transact(symbols, func() error {
		for _, sym := range ids {
			eng := x.engines[sym-1]
			for _, orderID := range eng.Book().OrderIDs() {
				if err := eng.Cancel(orderID); err != nil {
					return err
				}
				cancelled++
			}
			x.cache.Publish(eng.Book())
		}
		return nil
	})
	return cancelled, err
}

// BestBidAsk returns the top of book from the latest published snapshot.
// ok is false until both sides have liquidity.
func (x *Exchange) BestBidAsk(symbol string) (bid, ask schema.Price, ok bool, err error) {
	sym, found := x.registry.SymbolIDByName(symbol)
	if !found {
		return 0, 0, false, errors.Wrap(ErrUnknownSymbol, symbol)
	}
	bid, ask, ok = x.cache.Load(sym).BestBidAsk()
	return bid, ask, ok, nil
}

// Depth returns up to levels rows per side from the latest snapshot, best
// price first. The rows alias the published snapshot and are read-only.
func (x *Exchange) Depth(symbol string, levels int) (bids, asks []book.DepthRow, err error) {
	sym, found := x.registry.SymbolIDByName(symbol)
	if !found {
		return nil, nil, errors.Wrap(ErrUnknownSymbol, symbol)
	}
	snap := x.cache.Load(sym)
	return snap.Depth(schema.OrderSideBuy, levels), snap.Depth(schema.OrderSideSell, levels), nil
}

// BookSnapshot returns the latest published snapshot, or nil before the
// first mutation.
func (x *Exchange) BookSnapshot(symbol string) (*snapshot.BookSnapshot, error) {
	sym, found := x.registry.SymbolIDByName(symbol)
	if !found {
		return nil, errors.Wrap(ErrUnknownSymbol, symbol)
	}
	return x.cache.Load(sym), nil
}

// Position returns the current position for a symbol. A symbol that never
// traded reports a zero position.
func (x *Exchange) Position(symbol string) (ledger.Position, error) {
	sym, found := x.registry.SymbolIDByName(symbol)
	if !found {
		return ledger.Position{}, errors.Wrap(ErrUnknownSymbol, symbol)
	}
	pos, ok := x.ledgers[x.control.IndexOf(symbol)].Position(sym)
	if !ok {
		return ledger.Position{SymbolID: sym}, nil
	}
	return pos, nil
}

// UnrealizedPnL marks the symbol's open position against the given price.
func (x *Exchange) UnrealizedPnL(symbol string, mark schema.Price) (float64, error) {
	sym, found := x.registry.SymbolIDByName(symbol)
	if !found {
		return 0, errors.Wrap(ErrUnknownSymbol, symbol)
	}
	return x.ledgers[x.control.IndexOf(symbol)].UnrealizedPnL(sym, mark), nil
}

// PositionSnapshot merges every shard's ledger into one snapshot tagged
// with the latest emitted event sequence.
func (x *Exchange) PositionSnapshot() ledger.Snapshot {
	return ledger.MergeSnapshots(atomic.LoadUint64(&x.seq), time.Now().UTC().UnixNano(), x.ledgers...)
}

// RestorePositions seeds recovered positions into their shard ledgers and
// fast-forwards the event sequence past the recovered stream.
func (x *Exchange) RestorePositions(snap ledger.Snapshot) error {
	for _, entry := range snap.Positions {
		sym, ok := x.registry.Symbol(entry.SymbolID)
		if !ok {
			return errors.Wrap(ErrUnknownSymbol, fmt.Sprintf("symbol id %d", entry.SymbolID))
		}
		x.ledgers[x.control.IndexOf(sym.Name)].Restore(entry)
	}
	if snap.LastSeq > atomic.LoadUint64(&x.seq) {
		atomic.StoreUint64(&x.seq, snap.LastSeq)
	}
	return nil
}

// ReloadRisk swaps the risk limits on every shard, each under its own
// write lock so in-flight submits always see one consistent config.
func (x *Exchange) ReloadRisk(cfg risk.Config) {
	for i := range x.risks {
		idx := i
		_ = x.control.WriteShard(idx, func() error {
			x.risks[idx].SetConfig(cfg)
			return nil
		})
	}
}

// Close shuts down the event bus subscribers.
func (x *Exchange) Close() {
	if x.fanout != nil {
		x.fanout.Close()
	}
}

// referencePrice derives the risk reference from the published snapshot:
// the mid when both sides exist, the surviving side otherwise, zero when
// the book is empty (which disables the price band check).
func (x *Exchange) referencePrice(sym schema.SymbolID) schema.Price {
	snap := x.cache.Load(sym)
	if snap == nil {
		return 0
	}
	switch {
	case snap.HasBid && snap.HasAsk:
		return (snap.BestBid + snap.BestAsk) / 2
	case snap.HasBid:
		return snap.BestBid
	case snap.HasAsk:
		return snap.BestAsk
	default:
		return 0
	}
}

func (x *Exchange) emit(eventType schema.EventType, payload []byte, tsEvent int64, traceID uint64) {
	x.metrics.IncEvent(eventType)
	if x.fanout == nil {
		return
	}
	header := schema.NewHeader(eventType, x.source, atomic.AddUint64(&x.seq, 1), tsEvent, time.Now().UTC().UnixNano())
	header.TraceID = traceID
	accepted := x.fanout.Publish(bus.Event{Header: header, Payload: payload})
	for i := accepted; i < x.fanout.Len(); i++ {
		x.metrics.IncQueueDrop()
	}
}
