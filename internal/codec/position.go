package codec

import (
	"encoding/binary"
	"math"

	"matchbook/internal/schema"
)

const PositionChangePayloadSize = 40

// EncodePositionChange serializes a position change into a fixed-size
// payload. Float fields travel as IEEE 754 bits.
func EncodePositionChange(dst []byte, change schema.PositionChange) []byte {
	if cap(dst) < PositionChangePayloadSize {
		dst = make([]byte, PositionChangePayloadSize)
	} else {
		dst = dst[:PositionChangePayloadSize]
	}

	binary.LittleEndian.PutUint32(dst[0:4], uint32(change.SymbolID))
	binary.LittleEndian.PutUint16(dst[4:6], uint16(change.Side))
	binary.LittleEndian.PutUint16(dst[6:8], change.Flags)
	binary.LittleEndian.PutUint64(dst[8:16], uint64(change.Qty))
	binary.LittleEndian.PutUint64(dst[16:24], math.Float64bits(change.AvgPrice))
	binary.LittleEndian.PutUint64(dst[24:32], math.Float64bits(change.RealizedPnL))
	binary.LittleEndian.PutUint64(dst[32:40], change.Seq)

	return dst
}

// DecodePositionChange parses a fixed-size position change payload.
func DecodePositionChange(src []byte) (schema.PositionChange, bool) {
	if len(src) < PositionChangePayloadSize {
		return schema.PositionChange{}, false
	}
	return schema.PositionChange{
		SymbolID:    schema.SymbolID(binary.LittleEndian.Uint32(src[0:4])),
		Side:        schema.OrderSide(binary.LittleEndian.Uint16(src[4:6])),
		Flags:       binary.LittleEndian.Uint16(src[6:8]),
		Qty:         schema.Quantity(int64(binary.LittleEndian.Uint64(src[8:16]))),
		AvgPrice:    math.Float64frombits(binary.LittleEndian.Uint64(src[16:24])),
		RealizedPnL: math.Float64frombits(binary.LittleEndian.Uint64(src[24:32])),
		Seq:         binary.LittleEndian.Uint64(src[32:40]),
	}, true
}
