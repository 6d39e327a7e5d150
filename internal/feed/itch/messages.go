// Package itch decodes a NASDAQ ITCH-5.0-compatible binary market data
// stream: a fixed catalogue of big-endian, fixed-length message types
// behind a common 11-byte header.
package itch

// MessageType is the single leading byte identifying a wire message.
type MessageType byte

const (
	TypeSystemEvent         MessageType = 'S'
	TypeStockDirectory      MessageType = 'R'
	TypeStockTradingAction  MessageType = 'H'
	TypeAddOrder            MessageType = 'A'
	TypeAddOrderMPID        MessageType = 'F'
	TypeOrderExecuted       MessageType = 'E'
	TypeOrderExecutedPrice  MessageType = 'C'
	TypeOrderCancel         MessageType = 'X'
	TypeOrderDelete         MessageType = 'D'
	TypeOrderReplace        MessageType = 'U'
	TypeTrade               MessageType = 'P'
	TypeCrossTrade          MessageType = 'Q'
	TypeBrokenTrade         MessageType = 'B'
	TypeNOII                MessageType = 'I'
)

// messageLengths is the fixed catalogue of total wire lengths (header
// included) per type, per the spec's length table.
var messageLengths = map[MessageType]int{
	TypeSystemEvent:        12,
	TypeStockDirectory:     39,
	TypeStockTradingAction: 25,
	TypeAddOrder:           36,
	TypeAddOrderMPID:       40,
	TypeOrderExecuted:      31,
	TypeOrderExecutedPrice: 36,
	TypeOrderCancel:        23,
	TypeOrderDelete:        19,
	TypeOrderReplace:       35,
	TypeTrade:              44,
	TypeCrossTrade:         40,
	TypeBrokenTrade:        19,
	TypeNOII:               50,
}

// MessageLength returns the fixed total byte length for t, and whether t
// is a known type.
func MessageLength(t MessageType) (int, bool) {
	n, ok := messageLengths[t]
	return n, ok
}

// Header is the common 11-byte prefix of every message.
type Header struct {
	Type      MessageType
	Locate    uint16
	Tracking  uint16
	Timestamp uint64 // 48-bit ns-since-midnight, widened to 64 bits
}

// AddOrder (type 'A'): a new visible limit order entering the book.
type AddOrder struct {
	Header
	OrderRef uint64
	Side     byte // 'B' or 'S'
	Shares   uint32
	Stock    [8]byte
	Price    uint32
}

// AddOrderMPID (type 'F'): AddOrder plus the attributing market participant id.
type AddOrderMPID struct {
	AddOrder
	MPID [4]byte
}

// OrderExecuted (type 'E'): shares executed at the order's resting price.
type OrderExecuted struct {
	Header
	OrderRef       uint64
	ExecutedShares uint32
	MatchNumber    uint64
}

// OrderExecutedPrice (type 'C'): executed away from the resting price
// (e.g. a cross).
type OrderExecutedPrice struct {
	OrderExecuted
	Printable      byte
	ExecutionPrice uint32
}

// OrderCancel (type 'X'): partial cancellation of a resting order.
type OrderCancel struct {
	Header
	OrderRef        uint64
	CancelledShares uint32
}

// OrderDelete (type 'D'): full removal of a resting order.
type OrderDelete struct {
	Header
	OrderRef uint64
}

// OrderReplace (type 'U'): cancel-replace, new id/price/quantity.
type OrderReplace struct {
	Header
	OriginalOrderRef uint64
	NewOrderRef      uint64
	Shares           uint32
	Price            uint32
}

// Trade (type 'P'): a non-cross execution against a hidden (undisplayed) order.
type Trade struct {
	Header
	OrderRef    uint64
	Side        byte
	Shares      uint32
	Stock       [8]byte
	Price       uint32
	MatchNumber uint64
}

// CrossTrade (type 'Q'): execution at a cross (opening/closing/halt/IPO).
type CrossTrade struct {
	Header
	Shares      uint64
	Stock       [8]byte
	CrossPrice  uint32
	MatchNumber uint64
	CrossType   byte
}

// BrokenTrade (type 'B'): a previously reported execution is voided.
type BrokenTrade struct {
	Header
	MatchNumber uint64
}

// SystemEvent (type 'S'): session-level lifecycle marker.
type SystemEvent struct {
	Header
	EventCode byte
}

// StockDirectory (type 'R'): per-symbol static reference data.
type StockDirectory struct {
	Header
	Stock               [8]byte
	MarketCategory      byte
	FinancialStatus     byte
	RoundLotSize        uint32
	RoundLotsOnly       byte
	IssueClassification byte
	IssueSubType        [2]byte
	Authenticity        byte
	ShortSaleThreshold  byte
	IPOFlag             byte
	LULDReferenceTier   byte
	ETPFlag             byte
	ETPLeverageFactor   uint32
}

// StockTradingAction (type 'H'): a halt/resume/quotation-only state change.
type StockTradingAction struct {
	Header
	Stock        [8]byte
	TradingState byte
	Reserved     byte
	Reason       uint32
}

// NOII (type 'I'): Net Order Imbalance Indicator, emitted around auctions.
type NOII struct {
	Header
	PairedShares           uint64
	ImbalanceShares        uint64
	ImbalanceDirection     byte
	Stock                  [8]byte
	FarPrice               uint32
	NearPrice              uint32
	CurrentReferencePrice  uint32
	CrossType              byte
	PriceVariationIndicator byte
}
