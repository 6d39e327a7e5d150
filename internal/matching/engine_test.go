package matching

import (
	"testing"

	"github.com/atlasbook/atlasbook/internal/book"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := NewEngine(DefaultConfig(), nil)
	require.NoError(t, err)
	return e
}

// Scenario 1 (spec §8): price-time priority across levels, partial fill of
// the second passive order, no third trade, residual quantity preserved.
func TestSubmitOrderPriceTimePriorityAcrossLevels(t *testing.T) {
	e := newTestEngine(t)
	ob := e.GetOrderBook()
	_, err := ob.AddOrder(1, book.ToPrice(101.00), 100, book.Sell, book.Limit, 1, 0)
	require.NoError(t, err)
	_, err = ob.AddOrder(2, book.ToPrice(101.00), 50, book.Sell, book.Limit, 2, 0)
	require.NoError(t, err)
	_, err = ob.AddOrder(3, book.ToPrice(102.00), 200, book.Sell, book.Limit, 3, 0)
	require.NoError(t, err)

	result := e.SubmitOrder(10, book.ToPrice(102.00), 120, book.Buy, book.Limit, 4, 0)

	assert.Equal(t, book.Filled, result.Status)
	assert.Equal(t, book.Quantity(120), result.FilledQuantity)
	assert.Equal(t, uint32(2), result.TradeCount)
	assert.Equal(t, book.ToPrice(101.00), result.AvgFillPrice)

	trades := e.GetTrades()
	require.Len(t, trades, 2)
	assert.Equal(t, book.OrderId(1), trades[0].SellerOrderId)
	assert.Equal(t, book.Quantity(100), trades[0].Quantity)
	assert.Equal(t, book.OrderId(2), trades[1].SellerOrderId)
	assert.Equal(t, book.Quantity(20), trades[1].Quantity)

	passive2, ok := ob.GetOrder(2)
	require.True(t, ok)
	assert.Equal(t, book.Quantity(30), passive2.Remaining())

	passive3, ok := ob.GetOrder(3)
	require.True(t, ok)
	assert.Equal(t, book.Quantity(200), passive3.Remaining())
}

// Scenario 2 (spec §8): passive price improvement — the aggressor trades
// at the resting price, not its own more aggressive limit.
func TestSubmitOrderPassivePriceImprovement(t *testing.T) {
	e := newTestEngine(t)
	ob := e.GetOrderBook()
	_, err := ob.AddOrder(1, book.ToPrice(100.02), 50, book.Sell, book.Limit, 1, 0)
	require.NoError(t, err)

	result := e.SubmitOrder(10, book.ToPrice(100.05), 50, book.Buy, book.Limit, 2, 0)

	assert.Equal(t, book.Filled, result.Status)
	assert.Equal(t, book.ToPrice(100.02), result.AvgFillPrice)
	trades := e.GetTrades()
	require.Len(t, trades, 1)
	assert.Equal(t, book.ToPrice(100.02), trades[0].Price)
}

// Scenario 3 (spec §8): a FOK that cannot fully fill leaves the book
// completely unchanged and reports Cancelled with zero fill.
func TestSubmitOrderFOKNoFillLeavesBookUnchanged(t *testing.T) {
	e := newTestEngine(t)
	ob := e.GetOrderBook()
	_, err := ob.AddOrder(1, book.ToPrice(101.00), 50, book.Sell, book.Limit, 1, 0)
	require.NoError(t, err)

	result := e.SubmitOrder(10, book.ToPrice(101.00), 100, book.Buy, book.FOK, 2, 0)

	assert.Equal(t, book.Cancelled, result.Status)
	assert.Equal(t, book.Quantity(0), result.FilledQuantity)
	assert.Empty(t, e.GetTrades())

	passive, ok := ob.GetOrder(1)
	require.True(t, ok)
	assert.Equal(t, book.Quantity(50), passive.Remaining())
}

func TestSubmitOrderFOKFullFill(t *testing.T) {
	e := newTestEngine(t)
	ob := e.GetOrderBook()
	_, err := ob.AddOrder(1, book.ToPrice(101.00), 100, book.Sell, book.Limit, 1, 0)
	require.NoError(t, err)

	result := e.SubmitOrder(10, book.ToPrice(101.00), 100, book.Buy, book.FOK, 2, 0)
	assert.Equal(t, book.Filled, result.Status)
	assert.Equal(t, book.Quantity(100), result.FilledQuantity)
}

func TestSubmitOrderIOCNoLiquidityTouchesNothing(t *testing.T) {
	e := newTestEngine(t)
	result := e.SubmitOrder(10, book.ToPrice(100.00), 10, book.Buy, book.IOC, 1, 0)
	assert.Equal(t, book.Cancelled, result.Status)
	assert.Equal(t, book.Quantity(0), result.FilledQuantity)
	assert.True(t, e.GetOrderBook().Empty())
}

func TestSubmitOrderIOCPartialFillCancelsResidual(t *testing.T) {
	e := newTestEngine(t)
	ob := e.GetOrderBook()
	_, err := ob.AddOrder(1, book.ToPrice(100.00), 5, book.Sell, book.Limit, 1, 0)
	require.NoError(t, err)

	result := e.SubmitOrder(10, book.ToPrice(100.00), 10, book.Buy, book.IOC, 2, 0)
	assert.Equal(t, book.PartiallyFilled, result.Status)
	assert.Equal(t, book.Quantity(5), result.FilledQuantity)
	_, ok := ob.GetOrder(10)
	assert.False(t, ok) // residual never rests: IOC cancels it
}

func TestSubmitOrderLimitRestsResidual(t *testing.T) {
	e := newTestEngine(t)
	result := e.SubmitOrder(10, book.ToPrice(100.00), 10, book.Buy, book.Limit, 1, 0)
	assert.Equal(t, book.New, result.Status)
	o, ok := e.GetOrderBook().GetOrder(10)
	require.True(t, ok)
	assert.Equal(t, book.Quantity(10), o.Remaining())
}

func TestSubmitOrderSelfTradePreventionSkipsAndContinues(t *testing.T) {
	e := newTestEngine(t)
	ob := e.GetOrderBook()

	resting1 := e.SubmitOrder(1, book.ToPrice(100.00), 10, book.Sell, book.Limit, 1, 7)
	require.Equal(t, book.New, resting1.Status)
	resting2 := e.SubmitOrder(2, book.ToPrice(100.00), 10, book.Sell, book.Limit, 2, 99)
	require.Equal(t, book.New, resting2.Status)

	result := e.SubmitOrder(10, book.ToPrice(100.00), 10, book.Buy, book.Limit, 3, 7)
	assert.Equal(t, book.Filled, result.Status)

	trades := e.GetTrades()
	require.Len(t, trades, 1)
	assert.Equal(t, book.OrderId(2), trades[0].SellerOrderId)

	blocked, ok := ob.GetOrder(1)
	require.True(t, ok)
	assert.Equal(t, book.Quantity(10), blocked.Remaining()) // same participant as the aggressor: never touched
}

func TestSubmitOrderRejectsZeroQuantity(t *testing.T) {
	e := newTestEngine(t)
	result := e.SubmitOrder(1, book.ToPrice(100), 0, book.Buy, book.Limit, 1, 0)
	assert.Equal(t, book.Rejected, result.Status)
}

func TestSubmitOrderRejectsWhenHalted(t *testing.T) {
	e := newTestEngine(t)
	e.SetHalted(true)
	result := e.SubmitOrder(1, book.ToPrice(100), 1, book.Buy, book.Limit, 1, 0)
	assert.Equal(t, book.Rejected, result.Status)
}

func TestMarketSellRewritesToMinPrice(t *testing.T) {
	e := newTestEngine(t)
	ob := e.GetOrderBook()
	_, err := ob.AddOrder(1, book.ToPrice(50), 10, book.Buy, book.Limit, 1, 0)
	require.NoError(t, err)

	result := e.SubmitMarketOrder(10, 10, book.Sell, 2, 0)
	assert.Equal(t, book.Filled, result.Status)
	assert.Equal(t, book.ToPrice(50), result.AvgFillPrice)
}

func TestCancelOrderThroughEngine(t *testing.T) {
	e := newTestEngine(t)
	e.SubmitOrder(1, book.ToPrice(100), 10, book.Buy, book.Limit, 1, 0)
	assert.True(t, e.CancelOrder(1))
	assert.False(t, e.CancelOrder(1))
	assert.Equal(t, uint64(1), e.TotalOrdersCancelled())
}

func TestEngineReset(t *testing.T) {
	e := newTestEngine(t)
	e.SubmitOrder(1, book.ToPrice(100), 10, book.Buy, book.Limit, 1, 0)
	e.Reset()
	assert.True(t, e.GetOrderBook().Empty())
	assert.Equal(t, uint64(0), e.TotalOrdersSubmitted())
	assert.Empty(t, e.GetTrades())
}

func TestConfigValidate(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	cfg.MaxOrderQuantity = 0
	assert.ErrorIs(t, cfg.Validate(), ErrInvalidMaxQuantity)

	cfg = DefaultConfig()
	cfg.PoolSize = 0
	assert.ErrorIs(t, cfg.Validate(), ErrInvalidPoolSize)
}
