// Package codec encodes engine-boundary events into fixed-size little-endian
// payloads for the journal. Encoders reuse the destination buffer when it is
// large enough; decoders return ok=false on short input.
package codec

import (
	"encoding/binary"

	"matchbook/internal/schema"
)

const OrderIntentPayloadSize = 40

// EncodeOrderIntent serializes an order intent into a fixed-size payload.
func EncodeOrderIntent(dst []byte, order schema.OrderIntent) []byte {
	if cap(dst) < OrderIntentPayloadSize {
		dst = make([]byte, OrderIntentPayloadSize)
	} else {
		dst = dst[:OrderIntentPayloadSize]
	}

	binary.LittleEndian.PutUint64(dst[0:8], order.OrderID)
	binary.LittleEndian.PutUint32(dst[8:12], order.AccountID)
	binary.LittleEndian.PutUint32(dst[12:16], uint32(order.SymbolID))
	binary.LittleEndian.PutUint16(dst[16:18], uint16(order.Side))
	binary.LittleEndian.PutUint16(dst[18:20], uint16(order.Type))
	binary.LittleEndian.PutUint16(dst[20:22], uint16(order.TimeInForce))
	binary.LittleEndian.PutUint16(dst[22:24], order.Flags)
	binary.LittleEndian.PutUint64(dst[24:32], uint64(order.Price))
	binary.LittleEndian.PutUint64(dst[32:40], uint64(order.Qty))

	return dst
}

// DecodeOrderIntent parses a fixed-size order intent payload.
func DecodeOrderIntent(src []byte) (schema.OrderIntent, bool) {
	if len(src) < OrderIntentPayloadSize {
		return schema.OrderIntent{}, false
	}
	return schema.OrderIntent{
		OrderID:     binary.LittleEndian.Uint64(src[0:8]),
		AccountID:   binary.LittleEndian.Uint32(src[8:12]),
		SymbolID:    schema.SymbolID(binary.LittleEndian.Uint32(src[12:16])),
		Side:        schema.OrderSide(binary.LittleEndian.Uint16(src[16:18])),
		Type:        schema.OrderType(binary.LittleEndian.Uint16(src[18:20])),
		TimeInForce: schema.TimeInForce(binary.LittleEndian.Uint16(src[20:22])),
		Flags:       binary.LittleEndian.Uint16(src[22:24]),
		Price:       schema.Price(int64(binary.LittleEndian.Uint64(src[24:32]))),
		Qty:         schema.Quantity(int64(binary.LittleEndian.Uint64(src[32:40]))),
	}, true
}

const CancelPayloadSize = 16

// EncodeCancel serializes a cancel request into a fixed-size payload.
func EncodeCancel(dst []byte, cancel schema.CancelRequest) []byte {
	if cap(dst) < CancelPayloadSize {
		dst = make([]byte, CancelPayloadSize)
	} else {
		dst = dst[:CancelPayloadSize]
	}

	binary.LittleEndian.PutUint64(dst[0:8], cancel.OrderID)
	binary.LittleEndian.PutUint32(dst[8:12], uint32(cancel.SymbolID))
	binary.LittleEndian.PutUint16(dst[12:14], cancel.Flags)
	binary.LittleEndian.PutUint16(dst[14:16], cancel.Reserved)

	return dst
}

// DecodeCancel parses a fixed-size cancel payload.
func DecodeCancel(src []byte) (schema.CancelRequest, bool) {
	if len(src) < CancelPayloadSize {
		return schema.CancelRequest{}, false
	}
	return schema.CancelRequest{
		OrderID:  binary.LittleEndian.Uint64(src[0:8]),
		SymbolID: schema.SymbolID(binary.LittleEndian.Uint32(src[8:12])),
		Flags:    binary.LittleEndian.Uint16(src[12:14]),
		Reserved: binary.LittleEndian.Uint16(src[14:16]),
	}, true
}
