package book

import (
	"github.com/tidwall/btree"
	"go.uber.org/zap"
)

// TradeFunc is invoked once per trade the book's internal walk produces.
// It mirrors the reference's book-level trade callback (see the engine's
// use of set_trade_callback in the original matching engine): the engine
// wires itself in here so it can forward trades to its own queue/callback
// without the book knowing anything about trade ids or aggressors.
type TradeFunc func(Trade)

// BookUpdateFunc is invoked whenever a price level's aggregate changes.
type BookUpdateFunc func(BookUpdate)

// OrderBook is a two-sided, price-indexed book for a single symbol. It is
// not safe for concurrent use; the intended topology is one dedicated
// goroutine per symbol owning its book end to end.
type OrderBook struct {
	bids *btree.Map[int64, *PriceLevel] // descending (best bid first via Reverse)
	asks *btree.Map[int64, *PriceLevel] // ascending (best ask first via Scan)
	ids  map[OrderId]*Order

	pool *Pool

	totalBidVolume Quantity
	totalAskVolume Quantity

	tradeCallback      TradeFunc
	bookUpdateCallback BookUpdateFunc

	logger *zap.Logger
}

// NewOrderBook builds an empty book backed by a fixed-capacity arena of
// poolSize order slots.
func NewOrderBook(poolSize int, logger *zap.Logger) (*OrderBook, error) {
	pool, err := NewPool(poolSize)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OrderBook{
		bids:   btree.NewMap[int64, *PriceLevel](32),
		asks:   btree.NewMap[int64, *PriceLevel](32),
		ids:    make(map[OrderId]*Order),
		pool:   pool,
		logger: logger,
	}, nil
}

func (b *OrderBook) sideMap(side Side) *btree.Map[int64, *PriceLevel] {
	if side == Buy {
		return b.bids
	}
	return b.asks
}

// SetTradeCallback registers the sink invoked for every trade WalkAndMatch
// produces.
func (b *OrderBook) SetTradeCallback(fn TradeFunc) { b.tradeCallback = fn }

// SetBookUpdateCallback registers the sink invoked whenever a level's
// aggregate changes.
func (b *OrderBook) SetBookUpdateCallback(fn BookUpdateFunc) { b.bookUpdateCallback = fn }

func (b *OrderBook) notifyBookUpdate(side Side, price Price, qty Quantity, ts Timestamp) {
	if b.bookUpdateCallback == nil {
		return
	}
	b.bookUpdateCallback(BookUpdate{Price: price, Quantity: qty, Side: side, Timestamp: ts})
}

func (b *OrderBook) getOrCreateLevel(side Side, price Price) *PriceLevel {
	m := b.sideMap(side)
	if lvl, ok := m.Get(int64(price)); ok {
		return lvl
	}
	lvl := &PriceLevel{Price: price, Side: side}
	m.Set(int64(price), lvl)
	return lvl
}

func (b *OrderBook) removeLevelIfEmpty(side Side, lvl *PriceLevel) {
	if lvl.Empty() {
		b.sideMap(side).Delete(int64(lvl.Price))
	}
}

// AddOrder inserts a new resting order under the given participant id (0
// means unattributed; the matching engine's self-trade prevention treats
// an unattributed order as never conflicting with anyone). Returns
// ErrDuplicateOrder if id is already live, ErrPoolExhausted if the arena
// has no free slot.
func (b *OrderBook) AddOrder(id OrderId, price Price, qty Quantity, side Side, typ OrderType, ts Timestamp, participantId uint64) (*Order, error) {
	if _, exists := b.ids[id]; exists {
		return nil, ErrDuplicateOrder
	}
	o := b.pool.Allocate()
	if o == nil {
		return nil, ErrPoolExhausted
	}
	o.Id = id
	o.Price = price
	o.Quantity = qty
	o.FilledQuantity = 0
	o.Timestamp = ts
	o.Side = side
	o.Type = typ
	o.Status = New
	o.ParticipantId = participantId

	lvl := b.getOrCreateLevel(side, price)
	lvl.Add(o)
	b.ids[id] = o
	b.addVolume(side, qty)
	b.notifyBookUpdate(side, price, lvl.TotalQuantity, ts)
	return o, nil
}

func (b *OrderBook) addVolume(side Side, qty Quantity) {
	if side == Buy {
		b.totalBidVolume += qty
	} else {
		b.totalAskVolume += qty
	}
}

func (b *OrderBook) subVolume(side Side, qty Quantity) {
	if side == Buy {
		b.totalBidVolume -= qty
	} else {
		b.totalAskVolume -= qty
	}
}

// CancelOrder removes a live order. Returns false if id is unknown.
func (b *OrderBook) CancelOrder(id OrderId) bool {
	o, ok := b.ids[id]
	if !ok || !o.IsActive() {
		return false
	}
	b.unlinkAndFree(o)
	return true
}

func (b *OrderBook) unlinkAndFree(o *Order) {
	lvl := o.level
	side := o.Side
	remaining := o.Remaining()
	lvl.Remove(o)
	b.subVolume(side, remaining)
	delete(b.ids, o.Id)
	o.Status = Cancelled
	b.removeLevelIfEmpty(side, lvl)
	newAgg := Quantity(0)
	if !lvl.Empty() {
		newAgg = lvl.TotalQuantity
	}
	b.notifyBookUpdate(side, lvl.Price, newAgg, o.Timestamp)
	b.pool.Deallocate(o)
}

// ModifyOrder is cancel-then-add under the same id; the replacement loses
// time priority, matching price-time-priority semantics for a changed
// order.
func (b *OrderBook) ModifyOrder(id OrderId, newPrice Price, newQty Quantity) (*Order, error) {
	o, ok := b.ids[id]
	if !ok || !o.IsActive() {
		return nil, ErrUnknownOrder
	}
	side, typ, ts, participantId := o.Side, o.Type, o.Timestamp, o.ParticipantId
	b.unlinkAndFree(o)
	return b.AddOrder(id, newPrice, newQty, side, typ, ts, participantId)
}

// ReduceOrder decrements a resting order's remaining quantity in place
// without unlinking it, preserving its FIFO position — the preferred
// behaviour for partial fills/cancels over cancel+re-add. Returns
// removed=true if the reduction consumed the order entirely, in which
// case it was unlinked and freed exactly as CancelOrder would.
func (b *OrderBook) ReduceOrder(id OrderId, by Quantity) (removed bool, err error) {
	o, ok := b.ids[id]
	if !ok || !o.IsActive() {
		return false, ErrUnknownOrder
	}
	if by >= o.Remaining() {
		b.unlinkAndFree(o)
		return true, nil
	}
	lvl := o.level
	o.FilledQuantity += by
	lvl.ReduceQuantity(by)
	b.subVolume(o.Side, by)
	b.notifyBookUpdate(o.Side, lvl.Price, lvl.TotalQuantity, o.Timestamp)
	return false, nil
}

// GetOrder looks up a live order by id.
func (b *OrderBook) GetOrder(id OrderId) (*Order, bool) {
	o, ok := b.ids[id]
	return o, ok
}

// BestBid returns the highest live bid price, or InvalidPrice if none.
func (b *OrderBook) BestBid() Price {
	if lvl := b.bestLevel(Buy); lvl != nil {
		return lvl.Price
	}
	return InvalidPrice
}

// BestAsk returns the lowest live ask price, or InvalidPrice if none.
func (b *OrderBook) BestAsk() Price {
	if lvl := b.bestLevel(Sell); lvl != nil {
		return lvl.Price
	}
	return InvalidPrice
}

// BestBidQuantity returns the aggregate quantity at the best bid, 0 if none.
func (b *OrderBook) BestBidQuantity() Quantity {
	if lvl := b.bestLevel(Buy); lvl != nil {
		return lvl.TotalQuantity
	}
	return 0
}

// BestAskQuantity returns the aggregate quantity at the best ask, 0 if none.
func (b *OrderBook) BestAskQuantity() Quantity {
	if lvl := b.bestLevel(Sell); lvl != nil {
		return lvl.TotalQuantity
	}
	return 0
}

// MidPrice is (bid+ask)/2, or InvalidPrice if either side is empty.
func (b *OrderBook) MidPrice() Price {
	bid, ask := b.BestBid(), b.BestAsk()
	if bid == InvalidPrice || ask == InvalidPrice {
		return InvalidPrice
	}
	return (bid + ask) / 2
}

// Spread is ask-bid, or InvalidPrice if either side is empty.
func (b *OrderBook) Spread() Price {
	bid, ask := b.BestBid(), b.BestAsk()
	if bid == InvalidPrice || ask == InvalidPrice {
		return InvalidPrice
	}
	return ask - bid
}

// GetBBO returns best bid, best bid qty, best ask, best ask qty in one call.
func (b *OrderBook) GetBBO() (bidPx Price, bidQty Quantity, askPx Price, askQty Quantity) {
	return b.BestBid(), b.BestBidQuantity(), b.BestAsk(), b.BestAskQuantity()
}

// GetBidDepth returns up to k bid levels, best (highest) price first.
func (b *OrderBook) GetBidDepth(k int) []DepthLevel {
	out := make([]DepthLevel, 0, k)
	b.bids.Reverse(func(_ int64, lvl *PriceLevel) bool {
		if len(out) >= k {
			return false
		}
		out = append(out, DepthLevel{Price: lvl.Price, TotalQuantity: lvl.TotalQuantity, OrderCount: lvl.OrderCount})
		return true
	})
	return out
}

// GetAskDepth returns up to k ask levels, best (lowest) price first.
func (b *OrderBook) GetAskDepth(k int) []DepthLevel {
	out := make([]DepthLevel, 0, k)
	b.asks.Scan(func(_ int64, lvl *PriceLevel) bool {
		if len(out) >= k {
			return false
		}
		out = append(out, DepthLevel{Price: lvl.Price, TotalQuantity: lvl.TotalQuantity, OrderCount: lvl.OrderCount})
		return true
	})
	return out
}

// TotalBidVolume is the sum of remaining quantities across all bid levels.
func (b *OrderBook) TotalBidVolume() Quantity { return b.totalBidVolume }

// TotalAskVolume is the sum of remaining quantities across all ask levels.
func (b *OrderBook) TotalAskVolume() Quantity { return b.totalAskVolume }

// BidLevelCount is the number of distinct live bid prices.
func (b *OrderBook) BidLevelCount() int { return b.bids.Len() }

// AskLevelCount is the number of distinct live ask prices.
func (b *OrderBook) AskLevelCount() int { return b.asks.Len() }

// TotalOrderCount is the number of live orders across both sides.
func (b *OrderBook) TotalOrderCount() int { return len(b.ids) }

// CalculateVWAP walks side in best-first order accumulating quantity
// until target is reached or the side is exhausted, returning the
// quantity-weighted average price with integer truncation. Returns false
// if the side is empty. Unlike the reference implementation, the two
// sides are walked through the same typed accessor with no unsafe
// reinterpretation between comparator types.
func (b *OrderBook) CalculateVWAP(side Side, target Quantity) (Price, bool) {
	var totalCost int64
	var filled Quantity
	visit := func(_ int64, lvl *PriceLevel) bool {
		if filled >= target {
			return false
		}
		take := target - filled
		if lvl.TotalQuantity < take {
			take = lvl.TotalQuantity
		}
		totalCost += int64(lvl.Price) * int64(take)
		filled += take
		return filled < target
	}
	if side == Buy {
		b.bids.Reverse(visit)
	} else {
		b.asks.Scan(visit)
	}
	if filled == 0 {
		return 0, false
	}
	return Price(totalCost / int64(filled)), true
}

// WouldCross reports whether a new resting order at price on side would
// be at-or-through the current opposite best.
func (b *OrderBook) WouldCross(price Price, side Side) bool {
	if side == Buy {
		ask := b.BestAsk()
		return ask != InvalidPrice && price >= ask
	}
	bid := b.BestBid()
	return bid != InvalidPrice && price <= bid
}

// ProbeMatch performs a read-only dry run of WalkAndMatch: it walks the
// opposite side's real FIFO, honouring the same self-trade-prevention
// skip-and-continue rule, and reports how much of remaining could
// actually be filled — without mutating any order, level, or volume
// counter. This is the "pre-check" half of the matching engine's FOK
// two-phase contract: run this first, and only call WalkAndMatch if it
// reports enough quantity, so a FOK that cannot fully fill never touches
// the book.
func (b *OrderBook) ProbeMatch(aggressorSide Side, limitPrice Price, remaining Quantity, stp STPFunc) Quantity {
	oppositeSide := aggressorSide.Opposite()
	var filled Quantity
	m := b.sideMap(oppositeSide)
	var stop bool
	visit := func(_ int64, lvl *PriceLevel) bool {
		if stop || filled >= remaining {
			return false
		}
		if !PricesCross(oppositeSide, lvl.Price, limitPrice) {
			stop = true
			return false
		}
		for o := lvl.Front(); o != nil && filled < remaining; o = o.next {
			if stp != nil && !stp(o.ParticipantId) {
				continue
			}
			take := remaining - filled
			if o.Remaining() < take {
				take = o.Remaining()
			}
			filled += take
		}
		return filled < remaining
	}
	if oppositeSide == Buy {
		m.Reverse(visit)
	} else {
		m.Scan(visit)
	}
	return filled
}

// Clear removes every order and level, returning the book to its empty
// initial state. The arena's free list is not reset to any particular
// order, only fully repopulated.
func (b *OrderBook) Clear() {
	for id, o := range b.ids {
		b.pool.Deallocate(o)
		delete(b.ids, id)
	}
	b.bids = btree.NewMap[int64, *PriceLevel](32)
	b.asks = btree.NewMap[int64, *PriceLevel](32)
	b.totalBidVolume = 0
	b.totalAskVolume = 0
}

// Empty reports whether the book holds no live orders.
func (b *OrderBook) Empty() bool { return len(b.ids) == 0 }

// AvailableToMatch sums the remaining quantity resting on side at prices
// that satisfy limitPrice for an incoming order on the opposite side. It
// ignores self-trade prevention, matching the reference's "available
// depth" notion, which is participant-agnostic. The matching engine's FOK
// pre-check does not use it; it calls ProbeMatch, which does apply STP.
func (b *OrderBook) AvailableToMatch(side Side, limitPrice Price) Quantity {
	var total Quantity
	visit := func(p int64, lvl *PriceLevel) bool {
		if !PricesCross(side, Price(p), limitPrice) {
			return false
		}
		total += lvl.TotalQuantity
		return true
	}
	if side == Buy {
		b.bids.Reverse(visit)
	} else {
		b.asks.Scan(visit)
	}
	return total
}

// RecordFillFunc builds a Trade from one resting-order fill, assigning
// whatever the caller (the matching engine) considers the trade's
// identity (trade id, timestamp). WalkAndMatch invokes it once per fill,
// in FIFO order, before mutating the passive order's state.
type RecordFillFunc func(fill Fill) Trade

// STPFunc reports whether the aggressor may match against a given passive
// order's participant id; returning false skips that passive order and
// continues the walk (skip-and-continue self-trade prevention).
type STPFunc func(passiveParticipantId uint64) bool

// WalkAndMatch is the book's internal, privileged matching primitive (see
// design notes on engine-book coupling): it walks the opposite side
// best-price-first, matching an aggressor with the given side/limit
// price/remaining quantity against the real resting FIFO order by order,
// applying self-trade prevention per order, and reducing or removing
// passive orders as they fill. It returns the quantity filled; the caller
// assigns trade identity via record and receives each Trade back through
// the book's registered trade callback.
func (b *OrderBook) WalkAndMatch(aggressorSide Side, limitPrice Price, remaining Quantity, stp STPFunc, record RecordFillFunc) Quantity {
	oppositeSide := aggressorSide.Opposite()
	var filled Quantity
	exhausted := make(map[int64]bool)

	for remaining > 0 {
		lvl := b.nextLevel(oppositeSide, exhausted)
		if lvl == nil || !PricesCross(oppositeSide, lvl.Price, limitPrice) {
			break
		}

		// Walk this level's FIFO exactly once, front to back, matching
		// every eligible order and skipping (without unlinking) every
		// order stp blocks. A blocked order is never removed from the
		// level, so once this pass reaches the end of the list it must
		// not be retried: mark the level exhausted and move on, rather
		// than looping back to Front() and re-finding the same order.
		// next is captured before any mutation since a fill can unlink o
		// (finishPassiveFill clears o.next).
		for o := lvl.Front(); o != nil && remaining > 0; {
			next := o.next
			if stp != nil && !stp(o.ParticipantId) {
				o = next
				continue
			}
			matchQty := remaining
			if o.Remaining() < matchQty {
				matchQty = o.Remaining()
			}
			trade := record(Fill{PassiveOrderId: o.Id, Price: o.Price, Quantity: matchQty})

			o.FilledQuantity += matchQty
			lvl.ReduceQuantity(matchQty)
			b.subVolume(oppositeSide, matchQty)
			remaining -= matchQty
			filled += matchQty

			if o.Remaining() == 0 {
				b.finishPassiveFill(lvl, o)
			}
			if b.tradeCallback != nil {
				b.tradeCallback(trade)
			}
			b.notifyBookUpdate(oppositeSide, lvl.Price, levelAggregateOrZero(lvl), o.Timestamp)
			o = next
		}

		if remaining == 0 {
			break
		}
		exhausted[int64(lvl.Price)] = true
	}
	return filled
}

// nextLevel returns the best level on side whose price is not in exclude,
// used by WalkAndMatch to skip a level it has already walked once without
// mutating the side map (a level with an STP-blocked order resting at its
// front stays in the map for as long as that order does).
func (b *OrderBook) nextLevel(side Side, exclude map[int64]bool) *PriceLevel {
	var found *PriceLevel
	visit := func(price int64, lvl *PriceLevel) bool {
		if exclude[price] {
			return true
		}
		found = lvl
		return false
	}
	if side == Buy {
		b.bids.Reverse(visit)
	} else {
		b.asks.Scan(visit)
	}
	return found
}

func levelAggregateOrZero(lvl *PriceLevel) Quantity {
	if lvl.Empty() {
		return 0
	}
	return lvl.TotalQuantity
}

func (b *OrderBook) finishPassiveFill(lvl *PriceLevel, o *Order) {
	side := o.Side
	lvl.Remove(o)
	delete(b.ids, o.Id)
	o.Status = Filled
	b.removeLevelIfEmpty(side, lvl)
	b.pool.Deallocate(o)
}

func (b *OrderBook) bestLevel(side Side) *PriceLevel {
	var found *PriceLevel
	if side == Buy {
		b.bids.Reverse(func(_ int64, lvl *PriceLevel) bool {
			found = lvl
			return false
		})
		return found
	}
	b.asks.Scan(func(_ int64, lvl *PriceLevel) bool {
		found = lvl
		return false
	})
	return found
}

// Snapshot returns a point-in-time depth view of both sides, up to depth
// levels each — a recovered, non-wire convenience type (see
// SPEC_FULL.md's supplemented features), not part of the incremental L2
// feed itself.
type Snapshot struct {
	Bids []DepthLevel
	Asks []DepthLevel
}

// Snapshot builds a Snapshot of up to depth levels per side.
func (b *OrderBook) Snapshot(depth int) Snapshot {
	return Snapshot{Bids: b.GetBidDepth(depth), Asks: b.GetAskDepth(depth)}
}
