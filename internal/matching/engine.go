// Package matching implements the matching engine that walks an
// OrderBook's opposite side to execute aggressive orders under
// limit/market/IOC/FOK semantics.
package matching

import (
	"errors"
	"sync"

	"time"

	"github.com/atlasbook/atlasbook/internal/book"
	"github.com/atlasbook/atlasbook/pkg/metrics"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// TradeCallback is invoked once per trade, on the calling goroutine.
type TradeCallback func(book.Trade)

// Engine matches aggressive orders against a single OrderBook. Like the
// book it wraps, it is not safe for concurrent use — one goroutine per
// symbol owns an Engine end to end.
type Engine struct {
	mu     sync.Mutex
	book   *book.OrderBook
	config Config
	logger *zap.Logger

	nextTradeId uint64
	tradeQueue  []book.Trade
	tradeCb     TradeCallback

	halted bool

	totalTrades           uint64
	totalVolume           uint64
	totalOrdersSubmitted  uint64
	totalOrdersCancelled  uint64
}

// NewEngine builds an Engine over a freshly allocated OrderBook sized per
// config.PoolSize.
func NewEngine(config Config, logger *zap.Logger) (*Engine, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	ob, err := book.NewOrderBook(config.PoolSize, logger)
	if err != nil {
		return nil, err
	}
	e := &Engine{
		book:        ob,
		config:      config,
		logger:      logger,
		nextTradeId: 1,
	}
	ob.SetTradeCallback(e.onBookTrade)
	return e, nil
}

func (e *Engine) onBookTrade(t book.Trade) {
	e.tradeQueue = append(e.tradeQueue, t)
	e.totalTrades++
	e.totalVolume += uint64(t.Quantity)
	metrics.EngineTotalTrades.Inc()
	metrics.EngineTotalVolume.Add(float64(t.Quantity))
	if e.tradeCb != nil {
		e.tradeCb(t)
	}
}

// SetTradeCallback registers a sink invoked for every trade the engine
// records, in addition to being queued for GetTrades.
func (e *Engine) SetTradeCallback(cb TradeCallback) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.tradeCb = cb
}

// SetHalted toggles whether the engine's symbol is currently trading-halted.
// A halted symbol rejects every new SubmitOrder.
func (e *Engine) SetHalted(halted bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.halted = halted
}

// Halted reports the current halt state.
func (e *Engine) Halted() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.halted
}

func rejected(id book.OrderId) book.ExecutionResult {
	return book.ExecutionResult{OrderId: id, Status: book.Rejected}
}

func (e *Engine) validate(id book.OrderId, price book.Price, qty book.Quantity, typ book.OrderType) bool {
	if id == book.InvalidOrderId {
		return false
	}
	if qty == 0 || qty > e.config.MaxOrderQuantity {
		return false
	}
	if typ == book.Limit && price <= 0 {
		return false
	}
	if typ == book.Market && !e.config.AllowMarketOrders {
		return false
	}
	if typ == book.IOC && !e.config.AllowIOCOrders {
		return false
	}
	if typ == book.FOK && !e.config.AllowFOKOrders {
		return false
	}
	return true
}

// SubmitOrder validates, matches, and (for Limit residuals) rests id
// against the book, per the engine's price-time-priority walk.
func (e *Engine) SubmitOrder(id book.OrderId, price book.Price, qty book.Quantity, side book.Side, typ book.OrderType, ts book.Timestamp, participantId uint64) book.ExecutionResult {
	start := time.Now()
	defer func() { metrics.EngineOrderLatency.Observe(time.Since(start).Seconds()) }()

	e.mu.Lock()
	defer e.mu.Unlock()

	e.totalOrdersSubmitted++
	metrics.EngineOrdersSubmitted.Inc()
	traceID := uuid.NewString()

	if !e.validate(id, price, qty, typ) {
		e.logger.Debug("order rejected: validation", zap.String("trace_id", traceID), zap.Uint64("order_id", uint64(id)))
		return rejected(id)
	}
	if e.halted {
		e.logger.Debug("order rejected: symbol halted", zap.String("trace_id", traceID), zap.Uint64("order_id", uint64(id)))
		return rejected(id)
	}

	if typ == book.Market {
		if side == book.Buy {
			price = book.InvalidPrice
		} else {
			price = book.MinPrice
		}
	}

	var stp book.STPFunc
	if e.config.SelfTradePrevention {
		stp = func(passiveParticipant uint64) bool {
			return participantId == 0 || passiveParticipant == 0 || participantId != passiveParticipant
		}
	}

	if typ == book.FOK {
		available := e.book.ProbeMatch(side, price, qty, stp)
		if available < qty {
			e.logger.Debug("fok cancelled: insufficient depth", zap.String("trace_id", traceID), zap.Uint64("order_id", uint64(id)))
			return book.ExecutionResult{OrderId: id, Status: book.Cancelled}
		}
	}

	originalQty := qty
	var totalCost int64
	var tradeCount uint32
	record := func(fill book.Fill) book.Trade {
		tradeId := e.nextTradeId
		e.nextTradeId++
		tradeCount++
		totalCost += int64(fill.Price) * int64(fill.Quantity)
		trade := book.Trade{
			TradeId:       tradeId,
			Price:         fill.Price,
			Quantity:      fill.Quantity,
			Timestamp:     ts,
			AggressorSide: side,
		}
		if side == book.Buy {
			trade.BuyerOrderId = id
			trade.SellerOrderId = fill.PassiveOrderId
		} else {
			trade.BuyerOrderId = fill.PassiveOrderId
			trade.SellerOrderId = id
		}
		return trade
	}

	filled := e.book.WalkAndMatch(side, price, qty, stp, record)

	result := book.ExecutionResult{OrderId: id, FilledQuantity: filled}
	if filled > 0 {
		result.AvgFillPrice = book.Price(totalCost / int64(filled))
	}
	result.TradeCount = tradeCount

	remaining := originalQty - filled
	switch {
	case remaining == 0:
		result.Status = book.Filled
	case typ == book.Market || typ == book.IOC:
		if filled > 0 {
			result.Status = book.PartiallyFilled
		} else {
			result.Status = book.Cancelled
		}
	case typ == book.FOK:
		// Unreachable in practice: ProbeMatch walks the same FIFO
		// under the same self-trade-prevention rule as WalkAndMatch,
		// so a FOK that passed the pre-check always fills completely
		// here. Kept as a defensive fallback matching the FOK
		// contract exactly (zero fill, no residual) rather than
		// silently misreporting a partial fill as final.
		result.Status = book.Cancelled
		result.FilledQuantity = 0
		result.AvgFillPrice = 0
		result.TradeCount = 0
	default: // Limit
		o, err := e.book.AddOrder(id, price, remaining, side, typ, ts, participantId)
		if err != nil {
			if errors.Is(err, book.ErrPoolExhausted) {
				if filled > 0 {
					result.Status = book.PartiallyFilled
				} else {
					result.Status = book.Rejected
				}
			} else {
				result.Status = book.Rejected
			}
		} else {
			_ = o
			if filled > 0 {
				result.Status = book.PartiallyFilled
			} else {
				result.Status = book.New
			}
		}
	}

	return result
}

// SubmitMarketOrder is a convenience wrapper for a Market-type SubmitOrder.
func (e *Engine) SubmitMarketOrder(id book.OrderId, qty book.Quantity, side book.Side, ts book.Timestamp, participantId uint64) book.ExecutionResult {
	return e.SubmitOrder(id, 0, qty, side, book.Market, ts, participantId)
}

// CancelOrder cancels a resting order by id.
func (e *Engine) CancelOrder(id book.OrderId) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	ok := e.book.CancelOrder(id)
	if ok {
		e.totalOrdersCancelled++
		metrics.EngineOrdersCancelled.Inc()
	}
	return ok
}

// ModifyOrder cancels id and resubmits it through SubmitOrder at the new
// price/quantity, keeping its side, type, timestamp and participant id.
// The resubmission loses time priority and is matched against the book
// like any new order, so a modify that crosses trades immediately.
func (e *Engine) ModifyOrder(id book.OrderId, newPrice book.Price, newQty book.Quantity) book.ExecutionResult {
	e.mu.Lock()
	existing, ok := e.book.GetOrder(id)
	if !ok {
		e.mu.Unlock()
		return rejected(id)
	}
	side, typ, ts, participantId := existing.Side, existing.Type, existing.Timestamp, existing.ParticipantId
	e.book.CancelOrder(id)
	e.mu.Unlock()
	return e.SubmitOrder(id, newPrice, newQty, side, typ, ts, participantId)
}

// GetOrderBook returns the book the engine matches against.
func (e *Engine) GetOrderBook() *book.OrderBook { return e.book }

// GetTrades returns and clears the queue of trades recorded since the
// last drain.
func (e *Engine) GetTrades() []book.Trade {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := e.tradeQueue
	e.tradeQueue = nil
	return out
}

// PeekTrades returns the queue of trades without clearing it.
func (e *Engine) PeekTrades() []book.Trade {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]book.Trade, len(e.tradeQueue))
	copy(out, e.tradeQueue)
	return out
}

// TotalTrades is the monotonic count of trades ever recorded.
func (e *Engine) TotalTrades() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.totalTrades
}

// TotalVolume is the monotonic sum of traded quantity.
func (e *Engine) TotalVolume() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.totalVolume
}

// TotalOrdersSubmitted is the monotonic count of SubmitOrder calls.
func (e *Engine) TotalOrdersSubmitted() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.totalOrdersSubmitted
}

// TotalOrdersCancelled is the monotonic count of successful cancels.
func (e *Engine) TotalOrdersCancelled() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.totalOrdersCancelled
}

// Reset clears the book, the trade queue, and every counter, as if the
// engine were newly constructed.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.book.Clear()
	e.tradeQueue = nil
	e.totalTrades = 0
	e.totalVolume = 0
	e.totalOrdersSubmitted = 0
	e.totalOrdersCancelled = 0
	e.nextTradeId = 1
}
