// Package book implements a single-symbol limit order book: intrusive
// price-time-priority levels, a two-sided price index, and the fixed
// capacity arena the book allocates orders from.
package book

import (
	"errors"
	"math"
)

// OrderId identifies a live or historical order. Zero is never valid.
type OrderId uint64

// Price is a fixed-point price at a scale of 1/PriceScale.
type Price int64

// Quantity is an unsigned share/contract count.
type Quantity uint64

// Timestamp is nanoseconds, meaning defined by the caller (wall clock or
// ns-since-midnight on the wire).
type Timestamp uint64

// PriceScale is the fixed-point scale factor: one unit of Price is
// 1/PriceScale of a whole currency unit.
const PriceScale = 10000

// InvalidPrice is the sentinel for "no price" (empty side, unset field).
const InvalidPrice Price = math.MaxInt64

// MinPrice is the lowest price the book uses (one above math.MinInt64),
// used to rewrite a Sell market order's limit so it crosses the entire
// opposite side.
const MinPrice Price = math.MinInt64 + 1

// InvalidOrderId is the sentinel for "no order."
const InvalidOrderId OrderId = 0

// ToPrice converts a whole-unit float amount to fixed-point Price.
// Display/config boundary only; the book never does float arithmetic.
func ToPrice(whole float64) Price {
	return Price(math.Round(whole * PriceScale))
}

// FromPrice converts a fixed-point Price back to a whole-unit float, for
// logging and human-facing output.
func FromPrice(p Price) float64 {
	return float64(p) / PriceScale
}

// Side is which side of the book an order rests on.
type Side int8

const (
	Buy Side = iota
	Sell
)

func (s Side) String() string {
	if s == Buy {
		return "buy"
	}
	return "sell"
}

// Opposite returns the other side.
func (s Side) Opposite() Side {
	if s == Buy {
		return Sell
	}
	return Buy
}

// IsBetterPrice reports whether price a is strictly better than price b
// for the given side (higher is better for bids, lower for asks).
func IsBetterPrice(side Side, a, b Price) bool {
	if side == Buy {
		return a > b
	}
	return a < b
}

// PricesCross reports whether a resting order at restingPrice on
// restingSide would cross against an incoming order at price on the
// opposite side.
func PricesCross(restingSide Side, restingPrice, incomingPrice Price) bool {
	if restingSide == Buy {
		return restingPrice >= incomingPrice
	}
	return restingPrice <= incomingPrice
}

// OrderType selects execution semantics at submission time.
type OrderType int8

const (
	Limit OrderType = iota
	Market
	IOC
	FOK
)

func (t OrderType) String() string {
	switch t {
	case Limit:
		return "limit"
	case Market:
		return "market"
	case IOC:
		return "ioc"
	case FOK:
		return "fok"
	default:
		return "unknown"
	}
}

// OrderStatus is the lifecycle state of an order.
type OrderStatus int8

const (
	New OrderStatus = iota
	PartiallyFilled
	Filled
	Cancelled
	Rejected
)

func (s OrderStatus) String() string {
	switch s {
	case New:
		return "new"
	case PartiallyFilled:
		return "partially_filled"
	case Filled:
		return "filled"
	case Cancelled:
		return "cancelled"
	case Rejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// Order is one live or historical resting order. While active it is
// linked into exactly one PriceLevel's FIFO via prev/next and holds a
// back-reference to that level so cancel can update the level's
// aggregate without a price re-lookup.
type Order struct {
	Id              OrderId
	Price           Price
	Quantity        Quantity
	FilledQuantity  Quantity
	Timestamp       Timestamp
	Side            Side
	Type            OrderType
	Status          OrderStatus
	ParticipantId   uint64

	prev, next *Order
	level      *PriceLevel
	slot       uint32
	inUse      bool
}

// Remaining returns the quantity not yet filled.
func (o *Order) Remaining() Quantity {
	return o.Quantity - o.FilledQuantity
}

// IsActive reports whether the order currently rests in a book level.
func (o *Order) IsActive() bool {
	return o.inUse && o.level != nil
}

// Trade is one execution between an aggressor and a passive order.
type Trade struct {
	TradeId       uint64
	BuyerOrderId  OrderId
	SellerOrderId OrderId
	Price         Price
	Quantity      Quantity
	Timestamp     Timestamp
	AggressorSide Side
}

// ExecutionResult is returned from matching.Engine.SubmitOrder.
type ExecutionResult struct {
	OrderId        OrderId
	Status         OrderStatus
	FilledQuantity Quantity
	AvgFillPrice   Price
	TradeCount     uint32
}

// BookUpdate is emitted whenever a price level's aggregate changes.
// Quantity zero means the level was removed.
type BookUpdate struct {
	Price     Price
	Quantity  Quantity
	Side      Side
	Timestamp Timestamp
}

// DepthLevel is one row of a depth snapshot.
type DepthLevel struct {
	Price         Price
	TotalQuantity Quantity
	OrderCount    int
}

// Fill is one resting-order match produced by the book's internal walk,
// before the caller (the matching engine) has assigned a trade id.
type Fill struct {
	PassiveOrderId OrderId
	Price          Price
	Quantity       Quantity
}

var (
	// ErrDuplicateOrder is returned by AddOrder when the id is already live.
	ErrDuplicateOrder = errors.New("book: duplicate order id")
	// ErrPoolExhausted is returned when the backing arena has no free slots.
	ErrPoolExhausted = errors.New("book: pool exhausted")
	// ErrUnknownOrder is returned by operations on an id the book doesn't hold.
	ErrUnknownOrder = errors.New("book: unknown order id")
	// ErrInvalidCapacity is returned by NewPool for a non-positive capacity.
	ErrInvalidCapacity = errors.New("book: invalid pool capacity")
)
