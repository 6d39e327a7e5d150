package feed

import (
	"strings"

	"github.com/atlasbook/atlasbook/internal/book"
	"github.com/atlasbook/atlasbook/internal/feed/itch"
	"go.uber.org/zap"
)

// TradeTick is a trade the applier learned about from the wire — either a
// genuine execution against a resting order (Hidden=false) or a hidden
// (undisplayed) order's print (Hidden=true, carries no book side effect).
type TradeTick struct {
	SymbolId  book.SymbolId
	OrderId   book.OrderId
	Price     book.Price
	Quantity  book.Quantity
	Side      book.Side
	Timestamp book.Timestamp
	Hidden    bool
}

// TradeTickFunc is invoked once per TradeTick the applier produces.
type TradeTickFunc func(TradeTick)

type shadowOrder struct {
	symbol    book.SymbolId
	price     book.Price
	remaining book.Quantity
	side      book.Side
	ts        book.Timestamp
}

// FeedApplier bridges decoded ITCH messages onto a per-symbol set of
// order books. It keeps its own order_ref -> {symbol, price, remaining,
// side, timestamp} shadow map because cancel/execute/delete/replace
// messages on the wire do not restate price or side.
type FeedApplier struct {
	symbols  *book.SymbolTable
	books    map[book.SymbolId]*book.OrderBook
	shadow   map[book.OrderId]shadowOrder
	halted   map[book.SymbolId]bool
	filter   map[book.SymbolId]bool
	poolSize int
	logger   *zap.Logger

	tradeCb TradeTickFunc
}

// NewFeedApplier builds an applier that auto-creates per-symbol books
// with poolSize order slots on first sight of a new symbol.
func NewFeedApplier(symbols *book.SymbolTable, poolSize int, logger *zap.Logger) *FeedApplier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FeedApplier{
		symbols:  symbols,
		books:    make(map[book.SymbolId]*book.OrderBook),
		shadow:   make(map[book.OrderId]shadowOrder),
		halted:   make(map[book.SymbolId]bool),
		poolSize: poolSize,
		logger:   logger,
	}
}

// SetSymbolFilter restricts processing to the given symbols; an event for
// any other symbol is ignored. An empty/nil filter processes everything.
func (a *FeedApplier) SetSymbolFilter(ids []book.SymbolId) {
	if len(ids) == 0 {
		a.filter = nil
		return
	}
	a.filter = make(map[book.SymbolId]bool, len(ids))
	for _, id := range ids {
		a.filter[id] = true
	}
}

// SetTradeTickCallback registers the sink invoked for every trade the
// applier observes on the wire.
func (a *FeedApplier) SetTradeTickCallback(fn TradeTickFunc) { a.tradeCb = fn }

// Book returns the order book for a symbol, if one has been created.
func (a *FeedApplier) Book(symbol book.SymbolId) (*book.OrderBook, bool) {
	ob, ok := a.books[symbol]
	return ob, ok
}

// CreateBook returns the order book for symbol, auto-creating it (with
// this applier's configured pool size) if it doesn't exist yet.
func (a *FeedApplier) CreateBook(symbol book.SymbolId) *book.OrderBook {
	return a.getOrCreateBook(symbol)
}

// SymbolCount returns how many per-symbol books currently exist.
func (a *FeedApplier) SymbolCount() int { return len(a.books) }

// Halted reports whether StockTradingAction marked symbol as halted.
func (a *FeedApplier) Halted(symbol book.SymbolId) bool { return a.halted[symbol] }

func (a *FeedApplier) allowed(symbol book.SymbolId) bool {
	if a.filter == nil {
		return true
	}
	return a.filter[symbol]
}

func (a *FeedApplier) getOrCreateBook(symbol book.SymbolId) *book.OrderBook {
	if ob, ok := a.books[symbol]; ok {
		return ob
	}
	ob, err := book.NewOrderBook(a.poolSize, a.logger)
	if err != nil {
		a.logger.Error("failed to create symbol book", zap.Uint32("symbol_id", uint32(symbol)), zap.Error(err))
		return nil
	}
	a.books[symbol] = ob
	return ob
}

func stockSymbol(raw [8]byte) string {
	return strings.TrimRight(string(raw[:]), " ")
}

func wireSide(b byte) book.Side {
	if b == 'S' {
		return book.Sell
	}
	return book.Buy
}

// ApplyAddOrder inserts a new order under its wire order_ref.
func (a *FeedApplier) ApplyAddOrder(m itch.AddOrder) {
	symbol := a.symbols.Register(stockSymbol(m.Stock))
	if !a.allowed(symbol) {
		return
	}
	ob := a.getOrCreateBook(symbol)
	if ob == nil {
		return
	}
	id := book.OrderId(m.OrderRef)
	price := book.Price(m.Price)
	qty := book.Quantity(m.Shares)
	side := wireSide(m.Side)
	ts := book.Timestamp(m.Timestamp)
	if _, err := ob.AddOrder(id, price, qty, side, book.Limit, ts, 0); err != nil {
		a.logger.Debug("add order rejected", zap.Uint64("order_ref", m.OrderRef), zap.Error(err))
		return
	}
	a.shadow[id] = shadowOrder{symbol: symbol, price: price, remaining: qty, side: side, ts: ts}
}

// ApplyAddOrderMPID is ApplyAddOrder with an attributed market
// participant id; the core book/shadow effect is identical.
func (a *FeedApplier) ApplyAddOrderMPID(m itch.AddOrderMPID) {
	a.ApplyAddOrder(m.AddOrder)
}

func (a *FeedApplier) reduceOrDelete(id book.OrderId, amount book.Quantity) (sh shadowOrder, ok bool) {
	sh, ok = a.shadow[id]
	if !ok {
		return shadowOrder{}, false
	}
	ob, present := a.books[sh.symbol]
	if !present {
		return shadowOrder{}, false
	}
	removed, err := ob.ReduceOrder(id, amount)
	if err != nil {
		delete(a.shadow, id)
		return shadowOrder{}, false
	}
	if removed {
		delete(a.shadow, id)
		sh.remaining = 0
		return sh, true
	}
	sh.remaining -= amount
	a.shadow[id] = sh
	return sh, true
}

func (a *FeedApplier) emitTrade(sh shadowOrder, id book.OrderId, price book.Price, qty book.Quantity, ts book.Timestamp, hidden bool) {
	if a.tradeCb == nil {
		return
	}
	a.tradeCb(TradeTick{
		SymbolId:  sh.symbol,
		OrderId:   id,
		Price:     price,
		Quantity:  qty,
		Side:      sh.side,
		Timestamp: ts,
		Hidden:    hidden,
	})
}

// ApplyOrderExecuted reduces the shadow remaining by the executed shares
// at the order's resting price, using the book's reduce-in-place path so
// the order keeps its FIFO position if it isn't fully consumed.
func (a *FeedApplier) ApplyOrderExecuted(m itch.OrderExecuted) {
	id := book.OrderId(m.OrderRef)
	sh, ok := a.reduceOrDelete(id, book.Quantity(m.ExecutedShares))
	if !ok {
		return
	}
	a.emitTrade(sh, id, sh.price, book.Quantity(m.ExecutedShares), book.Timestamp(m.Timestamp), false)
}

// ApplyOrderExecutedPrice is ApplyOrderExecuted but the trade prints at
// the wire's explicit execution price rather than the resting price.
func (a *FeedApplier) ApplyOrderExecutedPrice(m itch.OrderExecutedPrice) {
	id := book.OrderId(m.OrderRef)
	sh, ok := a.reduceOrDelete(id, book.Quantity(m.ExecutedShares))
	if !ok {
		return
	}
	a.emitTrade(sh, id, book.Price(m.ExecutionPrice), book.Quantity(m.ExecutedShares), book.Timestamp(m.Timestamp), false)
}

// ApplyOrderCancel reduces a resting order's remaining shares without a
// trade (a cancellation, not an execution).
func (a *FeedApplier) ApplyOrderCancel(m itch.OrderCancel) {
	id := book.OrderId(m.OrderRef)
	a.reduceOrDelete(id, book.Quantity(m.CancelledShares))
}

// ApplyOrderDelete removes a resting order entirely.
func (a *FeedApplier) ApplyOrderDelete(m itch.OrderDelete) {
	id := book.OrderId(m.OrderRef)
	sh, ok := a.shadow[id]
	if !ok {
		return
	}
	if ob, present := a.books[sh.symbol]; present {
		ob.CancelOrder(id)
	}
	delete(a.shadow, id)
}

// ApplyOrderReplace cancels the original order and inserts the
// replacement under its new id/price/quantity.
func (a *FeedApplier) ApplyOrderReplace(m itch.OrderReplace) {
	origId := book.OrderId(m.OriginalOrderRef)
	sh, ok := a.shadow[origId]
	if !ok {
		return
	}
	ob, present := a.books[sh.symbol]
	if !present {
		return
	}
	ob.CancelOrder(origId)
	delete(a.shadow, origId)

	newId := book.OrderId(m.NewOrderRef)
	price := book.Price(m.Price)
	qty := book.Quantity(m.Shares)
	if _, err := ob.AddOrder(newId, price, qty, sh.side, book.Limit, sh.ts, 0); err != nil {
		a.logger.Debug("replace insert rejected", zap.Uint64("new_order_ref", m.NewOrderRef), zap.Error(err))
		return
	}
	a.shadow[newId] = shadowOrder{symbol: sh.symbol, price: price, remaining: qty, side: sh.side, ts: sh.ts}
}

// ApplyTrade reports a hidden-order print: it never touches any book.
func (a *FeedApplier) ApplyTrade(m itch.Trade) {
	symbol := a.symbols.Register(stockSymbol(m.Stock))
	if !a.allowed(symbol) {
		return
	}
	a.emitTrade(shadowOrder{symbol: symbol, side: wireSide(m.Side)}, book.OrderId(m.OrderRef), book.Price(m.Price), book.Quantity(m.Shares), book.Timestamp(m.Timestamp), true)
}

// ApplyCrossTrade reports an auction cross execution: like ApplyTrade, it
// never touches any book.
func (a *FeedApplier) ApplyCrossTrade(m itch.CrossTrade) {
	symbol := a.symbols.Register(stockSymbol(m.Stock))
	if !a.allowed(symbol) {
		return
	}
	a.emitTrade(shadowOrder{symbol: symbol}, book.InvalidOrderId, book.Price(m.CrossPrice), book.Quantity(m.Shares), book.Timestamp(m.Timestamp), true)
}

// ApplyStockTradingAction tracks the per-symbol halt flag (see
// SPEC_FULL.md's supplemented features): trading_state 'H' halts the
// symbol, any other state clears the halt.
func (a *FeedApplier) ApplyStockTradingAction(m itch.StockTradingAction) {
	symbol := a.symbols.Register(stockSymbol(m.Stock))
	if !a.allowed(symbol) {
		return
	}
	a.halted[symbol] = m.TradingState == 'H'
}
