// Package store persists the event stream to PostgreSQL. It runs entirely
// off the bus: a full database never slows the matching path, it only
// raises the drop counter.
package store

import (
	"context"
	"time"

	"github.com/yanun0323/logs"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"matchbook/internal/bus"
	"matchbook/internal/codec"
	"matchbook/internal/schema"
)

// TradeRow is one executed trade.
type TradeRow struct {
	ID           uint64 `gorm:"primaryKey;autoIncrement"`
	Seq          uint64 `gorm:"uniqueIndex"`
	SymbolID     uint32 `gorm:"index"`
	TakerOrderID uint64
	MakerOrderID uint64
	TakerSide    uint16
	Price        int64
	Qty          int64
	TsNano       int64
	CreatedAt    time.Time
}

// TableName implements gorm's table naming.
func (TradeRow) TableName() string { return "trades" }

// PositionRow is the latest position per symbol, upserted in event order.
type PositionRow struct {
	SymbolID    uint32 `gorm:"primaryKey"`
	Qty         int64
	AvgPrice    float64
	RealizedPnL float64
	Seq         uint64
	UpdatedAt   time.Time
}

// TableName implements gorm's table naming.
func (PositionRow) TableName() string { return "positions" }

// Store writes bus events into the database.
type Store struct {
	db *gorm.DB
}

// New migrates the schema and returns a store.
func New(db *gorm.DB) (*Store, error) {
	if err := db.AutoMigrate(&TradeRow{}, &PositionRow{}); err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

// Run consumes the queue until the context is done or the queue closes.
func (s *Store) Run(ctx context.Context, q *bus.Queue) {
	q.Run(ctx, s.handle)
}

func (s *Store) handle(e bus.Event) {
	switch e.Header.Type {
	case schema.EventTrade:
		row, ok := tradeRow(e, time.Now().UTC())
		if !ok {
			logs.Errorf("store: short trade payload, len: %d", len(e.Payload))
			return
		}
		if err := s.db.Clauses(clause.OnConflict{DoNothing: true}).Create(&row).Error; err != nil {
			logs.Errorf("store: insert trade seq %d, err: %+v", e.Header.Seq, err)
		}
	case schema.EventPositionChange:
		row, ok := positionRow(e, time.Now().UTC())
		if !ok {
			logs.Errorf("store: short position payload, len: %d", len(e.Payload))
			return
		}
		if err := s.db.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "symbol_id"}},
			UpdateAll: true,
		}).Create(&row).Error; err != nil {
			logs.Errorf("store: upsert position symbol %d, err: %+v", row.SymbolID, err)
		}
	}
}

// tradeRow decodes a trade event into its persisted form. The row keys on
// the bus sequence so re-delivered events collapse into a single insert.
func tradeRow(e bus.Event, now time.Time) (TradeRow, bool) {
	trade, ok := codec.DecodeTrade(e.Payload)
	if !ok {
		return TradeRow{}, false
	}
	return TradeRow{
		Seq:          e.Header.Seq,
		SymbolID:     uint32(trade.SymbolID),
		TakerOrderID: trade.TakerOrderID,
		MakerOrderID: trade.MakerOrderID,
		TakerSide:    uint16(trade.TakerSide),
		Price:        int64(trade.Price),
		Qty:          int64(trade.Qty),
		TsNano:       trade.TsNano,
		CreatedAt:    now,
	}, true
}

// positionRow decodes a position-change event into its upsert form.
func positionRow(e bus.Event, now time.Time) (PositionRow, bool) {
	change, ok := codec.DecodePositionChange(e.Payload)
	if !ok {
		return PositionRow{}, false
	}
	return PositionRow{
		SymbolID:    uint32(change.SymbolID),
		Qty:         int64(change.Qty),
		AvgPrice:    change.AvgPrice,
		RealizedPnL: change.RealizedPnL,
		Seq:         e.Header.Seq,
		UpdatedAt:   now,
	}, true
}

// Trades returns up to limit trades for a symbol, newest first.
func (s *Store) Trades(ctx context.Context, symbolID schema.SymbolID, limit int) ([]TradeRow, error) {
	var rows []TradeRow
	err := s.db.WithContext(ctx).
		Where("symbol_id = ?", uint32(symbolID)).
		Order("seq desc").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

// Positions returns all persisted positions.
func (s *Store) Positions(ctx context.Context) ([]PositionRow, error) {
	var rows []PositionRow
	err := s.db.WithContext(ctx).Order("symbol_id asc").Find(&rows).Error
	return rows, err
}
