package codec

import (
	"encoding/binary"

	"matchbook/internal/schema"
)

const TradePayloadSize = 64

// EncodeTrade serializes a trade into a fixed-size payload.
func EncodeTrade(dst []byte, trade schema.Trade) []byte {
	if cap(dst) < TradePayloadSize {
		dst = make([]byte, TradePayloadSize)
	} else {
		dst = dst[:TradePayloadSize]
	}

	binary.LittleEndian.PutUint64(dst[0:8], trade.TakerOrderID)
	binary.LittleEndian.PutUint64(dst[8:16], trade.MakerOrderID)
	binary.LittleEndian.PutUint32(dst[16:20], uint32(trade.SymbolID))
	binary.LittleEndian.PutUint16(dst[20:22], uint16(trade.TakerSide))
	binary.LittleEndian.PutUint16(dst[22:24], trade.Flags)
	binary.LittleEndian.PutUint64(dst[24:32], uint64(trade.Price))
	binary.LittleEndian.PutUint64(dst[32:40], uint64(trade.Qty))
	binary.LittleEndian.PutUint64(dst[40:48], trade.Seq)
	binary.LittleEndian.PutUint64(dst[48:56], uint64(trade.TsNano))
	binary.LittleEndian.PutUint64(dst[56:64], 0)

	return dst
}

// DecodeTrade parses a fixed-size trade payload.
func DecodeTrade(src []byte) (schema.Trade, bool) {
	if len(src) < TradePayloadSize {
		return schema.Trade{}, false
	}
	return schema.Trade{
		TakerOrderID: binary.LittleEndian.Uint64(src[0:8]),
		MakerOrderID: binary.LittleEndian.Uint64(src[8:16]),
		SymbolID:     schema.SymbolID(binary.LittleEndian.Uint32(src[16:20])),
		TakerSide:    schema.OrderSide(binary.LittleEndian.Uint16(src[20:22])),
		Flags:        binary.LittleEndian.Uint16(src[22:24]),
		Price:        schema.Price(int64(binary.LittleEndian.Uint64(src[24:32]))),
		Qty:          schema.Quantity(int64(binary.LittleEndian.Uint64(src[32:40]))),
		Seq:          binary.LittleEndian.Uint64(src[40:48]),
		TsNano:       int64(binary.LittleEndian.Uint64(src[48:56])),
	}, true
}
