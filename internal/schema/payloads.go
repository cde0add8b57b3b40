package schema

// OrderIntent is the payload for EventOrderIntent: an order as submitted,
// before any book mutation.
type OrderIntent struct {
	OrderID     uint64
	AccountID   uint32
	SymbolID    SymbolID
	Side        OrderSide
	Type        OrderType
	TimeInForce TimeInForce
	Flags       uint16
	Price       Price
	Qty         Quantity
}

// Trade is the payload for EventTrade. It is created only by the matching
// engine and never mutated: the price is always the maker's resting price.
type Trade struct {
	TakerOrderID uint64
	MakerOrderID uint64
	SymbolID     SymbolID
	TakerSide    OrderSide
	Flags        uint16
	Price        Price
	Qty          Quantity
	Seq          uint64
	TsNano       int64
}

// CancelRequest is the payload for EventCancel.
type CancelRequest struct {
	OrderID  uint64
	SymbolID SymbolID
	Flags    uint16
	Reserved uint16
}

// RiskAction is the outcome of a risk decision.
type RiskAction uint16

const (
	RiskActionUnknown RiskAction = iota
	RiskActionAllow
	RiskActionDeny
)

// RiskReason is a coarse reason code for risk decisions.
type RiskReason uint16

const (
	RiskReasonNone RiskReason = iota
	RiskReasonKillSwitch
	RiskReasonMaxQty
	RiskReasonMaxNotional
	RiskReasonPriceBand
	RiskReasonRateLimit
	RiskReasonPositionLimit
)

func (r RiskReason) String() string {
	switch r {
	case RiskReasonNone:
		return "none"
	case RiskReasonKillSwitch:
		return "kill switch"
	case RiskReasonMaxQty:
		return "max order quantity"
	case RiskReasonMaxNotional:
		return "max order notional"
	case RiskReasonPriceBand:
		return "price band"
	case RiskReasonRateLimit:
		return "order rate limit"
	case RiskReasonPositionLimit:
		return "position limit"
	default:
		return "unknown"
	}
}

// RiskDecision is the payload for EventRiskDecision.
type RiskDecision struct {
	OrderID       uint64
	SymbolID      SymbolID
	Action        RiskAction
	Reason        RiskReason
	Flags         uint16
	Reserved      uint16
	ProposedQty   Quantity
	ProposedPrice Price
	CurrentPos    Quantity
	MaxPos        Quantity
	MaxNotional   Notional
}

// PositionChange is the payload for EventPositionChange, emitted after the
// ledger applies a trade for one counterparty side.
type PositionChange struct {
	SymbolID    SymbolID
	Side        OrderSide
	Flags       uint16
	Qty         Quantity
	AvgPrice    float64
	RealizedPnL float64
	Seq         uint64
}
