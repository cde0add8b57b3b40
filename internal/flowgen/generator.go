// Package flowgen produces deterministic synthetic order flow for load and
// soak runs. The same seed always yields the same intent stream.
package flowgen

import (
	"fmt"
	"math/rand"
	"time"

	"matchbook/internal/schema"
)

// Config controls flow generation behavior.
type Config struct {
	Seed         int64   `json:"seed"`
	Accounts     uint32  `json:"accounts"`
	BasePrice    int64   `json:"basePrice"`
	PriceBandBps int64   `json:"priceBandBps"`
	MinQty       int64   `json:"minQty"`
	MaxQty       int64   `json:"maxQty"`
	CancelRate   float64 `json:"cancelRate"`
	MarketRate   float64 `json:"marketRate"`
	IOCRate      float64 `json:"iocRate"`
}

// Validate ensures the config is within supported ranges.
func (c Config) Validate() error {
	if c.BasePrice <= 0 {
		return fmt.Errorf("basePrice must be > 0")
	}
	if c.MinQty <= 0 || c.MaxQty < c.MinQty {
		return fmt.Errorf("qty range [%d, %d] is invalid", c.MinQty, c.MaxQty)
	}
	if c.CancelRate < 0 || c.CancelRate > 1 {
		return fmt.Errorf("cancelRate must be between 0 and 1")
	}
	if c.MarketRate < 0 || c.MarketRate > 1 {
		return fmt.Errorf("marketRate must be between 0 and 1")
	}
	if c.IOCRate < 0 || c.IOCRate > 1 {
		return fmt.Errorf("iocRate must be between 0 and 1")
	}
	if c.PriceBandBps < 0 {
		return fmt.Errorf("priceBandBps must be >= 0")
	}
	return nil
}

// Action is one generated step: either an order intent or a cancel of a
// previously generated order.
type Action struct {
	Cancel bool
	Symbol string
	Intent schema.OrderIntent
	Order  uint64
}

// Generator walks the registry's symbols round-robin and emits a seeded
// mix of limit, market, IOC and cancel actions.
type Generator struct {
	cfg     Config
	rng     *rand.Rand
	symbols []schema.Symbol
	index   int
	resting map[schema.SymbolID][]uint64
}

// New creates a generator over all symbols in the registry.
func New(reg *schema.Registry, cfg Config) (*Generator, error) {
	if reg == nil || reg.SymbolCount() == 0 {
		return nil, fmt.Errorf("registry has no symbols")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Seed == 0 {
		cfg.Seed = time.Now().UTC().UnixNano()
	}
	if cfg.Accounts == 0 {
		cfg.Accounts = 1
	}
	symbols := make([]schema.Symbol, 0, reg.SymbolCount())
	for i := 0; i < reg.SymbolCount(); i++ {
		symbol, ok := reg.SymbolAt(i)
		if !ok {
			continue
		}
		symbols = append(symbols, symbol)
	}
	return &Generator{
		cfg:     cfg,
		rng:     rand.New(rand.NewSource(cfg.Seed)),
		symbols: symbols,
		resting: make(map[schema.SymbolID][]uint64),
	}, nil
}

// Next produces the next action. Cancels draw from orders previously
// reported resting via Track.
func (g *Generator) Next() Action {
	symbol := g.symbols[g.index]
	g.index = (g.index + 1) % len(g.symbols)

	if ids := g.resting[symbol.ID]; len(ids) > 0 && g.rng.Float64() < g.cfg.CancelRate {
		idx := g.rng.Intn(len(ids))
		orderID := ids[idx]
		g.resting[symbol.ID] = append(ids[:idx], ids[idx+1:]...)
		return Action{Cancel: true, Symbol: symbol.Name, Order: orderID}
	}

	intent := schema.OrderIntent{
		AccountID:   g.rng.Uint32()%g.cfg.Accounts + 1,
		SymbolID:    symbol.ID,
		Side:        g.side(),
		Type:        schema.OrderTypeLimit,
		TimeInForce: schema.TimeInForceGTC,
		Price:       g.price(symbol),
		Qty:         g.qty(),
	}
	switch {
	case g.rng.Float64() < g.cfg.MarketRate:
		intent.Type = schema.OrderTypeMarket
		intent.TimeInForce = schema.TimeInForceIOC
		intent.Price = 0
	case g.rng.Float64() < g.cfg.IOCRate:
		intent.TimeInForce = schema.TimeInForceIOC
	}
	return Action{Symbol: symbol.Name, Intent: intent}
}

// Track records an order that ended up resting, making it a cancel
// candidate for later steps.
func (g *Generator) Track(symbolID schema.SymbolID, orderID uint64) {
	g.resting[symbolID] = append(g.resting[symbolID], orderID)
}

func (g *Generator) side() schema.OrderSide {
	if g.rng.Intn(2) == 0 {
		return schema.OrderSideBuy
	}
	return schema.OrderSideSell
}

// price draws uniformly inside the configured band around the base price
// and snaps to the symbol's tick.
func (g *Generator) price(symbol schema.Symbol) schema.Price {
	band := g.cfg.BasePrice * g.cfg.PriceBandBps / 10000
	price := g.cfg.BasePrice
	if band > 0 {
		price += g.rng.Int63n(2*band+1) - band
	}
	tick := int64(symbol.Tick)
	if tick > 0 {
		price -= price % tick
	}
	if price < tick {
		price = tick
	}
	return schema.Price(price)
}

func (g *Generator) qty() schema.Quantity {
	span := g.cfg.MaxQty - g.cfg.MinQty
	if span == 0 {
		return schema.Quantity(g.cfg.MinQty)
	}
	return schema.Quantity(g.cfg.MinQty + g.rng.Int63n(span+1))
}
