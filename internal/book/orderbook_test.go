package book

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBook(t *testing.T) *OrderBook {
	t.Helper()
	ob, err := NewOrderBook(64, nil)
	require.NoError(t, err)
	return ob
}

func TestAddOrderBasics(t *testing.T) {
	ob := newTestBook(t)
	o, err := ob.AddOrder(1, ToPrice(100), 10, Buy, Limit, 1, 0)
	require.NoError(t, err)
	assert.Equal(t, OrderId(1), o.Id)
	assert.Equal(t, Quantity(10), ob.TotalBidVolume())
	assert.Equal(t, 1, ob.BidLevelCount())
	assert.Equal(t, 1, ob.TotalOrderCount())
}

func TestAddOrderDuplicateRejected(t *testing.T) {
	ob := newTestBook(t)
	_, err := ob.AddOrder(1, ToPrice(100), 10, Buy, Limit, 1, 0)
	require.NoError(t, err)
	_, err = ob.AddOrder(1, ToPrice(101), 5, Buy, Limit, 2, 0)
	assert.ErrorIs(t, err, ErrDuplicateOrder)
}

func TestPoolExhaustion(t *testing.T) {
	ob, err := NewOrderBook(2, nil)
	require.NoError(t, err)
	_, err = ob.AddOrder(1, ToPrice(10), 1, Buy, Limit, 1, 0)
	require.NoError(t, err)
	_, err = ob.AddOrder(2, ToPrice(10), 1, Buy, Limit, 1, 0)
	require.NoError(t, err)
	_, err = ob.AddOrder(3, ToPrice(10), 1, Buy, Limit, 1, 0)
	assert.ErrorIs(t, err, ErrPoolExhausted)
}

func TestBestBidAskEmptyBook(t *testing.T) {
	ob := newTestBook(t)
	assert.Equal(t, InvalidPrice, ob.BestBid())
	assert.Equal(t, InvalidPrice, ob.BestAsk())
	assert.Equal(t, InvalidPrice, ob.MidPrice())
	assert.Equal(t, InvalidPrice, ob.Spread())
	assert.True(t, ob.Empty())
}

func TestBBOAndDepth(t *testing.T) {
	ob := newTestBook(t)
	_, err := ob.AddOrder(1, ToPrice(99), 5, Buy, Limit, 1, 0)
	require.NoError(t, err)
	_, err = ob.AddOrder(2, ToPrice(100), 3, Buy, Limit, 2, 0)
	require.NoError(t, err)
	_, err = ob.AddOrder(3, ToPrice(101), 7, Sell, Limit, 3, 0)
	require.NoError(t, err)
	_, err = ob.AddOrder(4, ToPrice(102), 4, Sell, Limit, 4, 0)
	require.NoError(t, err)

	bidPx, bidQty, askPx, askQty := ob.GetBBO()
	assert.Equal(t, ToPrice(100), bidPx)
	assert.Equal(t, Quantity(3), bidQty)
	assert.Equal(t, ToPrice(101), askPx)
	assert.Equal(t, Quantity(7), askQty)

	bids := ob.GetBidDepth(10)
	require.Len(t, bids, 2)
	assert.Equal(t, ToPrice(100), bids[0].Price)
	assert.Equal(t, ToPrice(99), bids[1].Price)

	asks := ob.GetAskDepth(10)
	require.Len(t, asks, 2)
	assert.Equal(t, ToPrice(101), asks[0].Price)
	assert.Equal(t, ToPrice(102), asks[1].Price)

	expectedMid := (ToPrice(100) + ToPrice(101)) / 2
	assert.Equal(t, expectedMid, ob.MidPrice())
	assert.Equal(t, ToPrice(101)-ToPrice(100), ob.Spread())
}

func TestCancelOrderRemovesLevelWhenEmpty(t *testing.T) {
	ob := newTestBook(t)
	_, err := ob.AddOrder(1, ToPrice(100), 10, Buy, Limit, 1, 0)
	require.NoError(t, err)
	assert.True(t, ob.CancelOrder(1))
	assert.Equal(t, 0, ob.BidLevelCount())
	assert.Equal(t, Quantity(0), ob.TotalBidVolume())
	assert.False(t, ob.CancelOrder(1))
}

func TestModifyOrderLosesTimePriority(t *testing.T) {
	ob := newTestBook(t)
	_, err := ob.AddOrder(1, ToPrice(100), 10, Buy, Limit, 1, 0)
	require.NoError(t, err)
	_, err = ob.AddOrder(2, ToPrice(100), 5, Buy, Limit, 2, 0)
	require.NoError(t, err)

	_, err = ob.ModifyOrder(1, ToPrice(100), 20)
	require.NoError(t, err)

	lvl := ob.bestLevel(Buy)
	require.NotNil(t, lvl)
	// order 2 now has priority since order 1 was re-inserted at the tail
	assert.Equal(t, OrderId(2), lvl.Front().Id)
}

func TestReduceOrderInPlacePreservesPriority(t *testing.T) {
	ob := newTestBook(t)
	_, err := ob.AddOrder(1, ToPrice(100), 10, Buy, Limit, 1, 0)
	require.NoError(t, err)
	_, err = ob.AddOrder(2, ToPrice(100), 5, Buy, Limit, 2, 0)
	require.NoError(t, err)

	removed, err := ob.ReduceOrder(1, 4)
	require.NoError(t, err)
	assert.False(t, removed)

	lvl := ob.bestLevel(Buy)
	require.NotNil(t, lvl)
	assert.Equal(t, OrderId(1), lvl.Front().Id) // still first: priority preserved
	assert.Equal(t, Quantity(11), lvl.TotalQuantity)

	removed, err = ob.ReduceOrder(1, 6)
	require.NoError(t, err)
	assert.True(t, removed)
	_, ok := ob.GetOrder(1)
	assert.False(t, ok)
}

func TestCalculateVWAP(t *testing.T) {
	ob := newTestBook(t)
	_, err := ob.AddOrder(1, ToPrice(100), 5, Sell, Limit, 1, 0)
	require.NoError(t, err)
	_, err = ob.AddOrder(2, ToPrice(101), 10, Sell, Limit, 2, 0)
	require.NoError(t, err)

	vwap, ok := ob.CalculateVWAP(Sell, 10)
	require.True(t, ok)
	// fixed-point: (5*1000000 + 5*1010000) / 10 = 1005000, i.e. 100.5
	assert.Equal(t, ToPrice(100.5), vwap)
}

func TestCalculateVWAPEmptySide(t *testing.T) {
	ob := newTestBook(t)
	_, ok := ob.CalculateVWAP(Buy, 10)
	assert.False(t, ok)
}

func TestWouldCross(t *testing.T) {
	ob := newTestBook(t)
	_, err := ob.AddOrder(1, ToPrice(100), 5, Sell, Limit, 1, 0)
	require.NoError(t, err)
	assert.True(t, ob.WouldCross(ToPrice(100), Buy))
	assert.True(t, ob.WouldCross(ToPrice(101), Buy))
	assert.False(t, ob.WouldCross(ToPrice(99), Buy))
}

func TestClear(t *testing.T) {
	ob := newTestBook(t)
	_, err := ob.AddOrder(1, ToPrice(100), 5, Buy, Limit, 1, 0)
	require.NoError(t, err)
	_, err = ob.AddOrder(2, ToPrice(101), 5, Sell, Limit, 2, 0)
	require.NoError(t, err)
	ob.Clear()
	assert.True(t, ob.Empty())
	assert.Equal(t, 0, ob.BidLevelCount())
	assert.Equal(t, 0, ob.AskLevelCount())
}

func TestWalkAndMatchSimpleFill(t *testing.T) {
	ob := newTestBook(t)
	_, err := ob.AddOrder(1, ToPrice(100), 10, Sell, Limit, 1, 0)
	require.NoError(t, err)

	var fills []Fill
	filled := ob.WalkAndMatch(Buy, ToPrice(100), 6, nil, func(f Fill) Trade {
		fills = append(fills, f)
		return Trade{Price: f.Price, Quantity: f.Quantity}
	})
	assert.Equal(t, Quantity(6), filled)
	require.Len(t, fills, 1)
	assert.Equal(t, OrderId(1), fills[0].PassiveOrderId)

	o, ok := ob.GetOrder(1)
	require.True(t, ok)
	assert.Equal(t, Quantity(4), o.Remaining())
}

func TestWalkAndMatchRespectsSelfTradePrevention(t *testing.T) {
	ob := newTestBook(t)
	_, err := ob.AddOrder(1, ToPrice(100), 5, Sell, Limit, 1, 42)
	require.NoError(t, err)
	_, err = ob.AddOrder(2, ToPrice(100), 5, Sell, Limit, 2, 99)
	require.NoError(t, err)

	stp := func(passive uint64) bool { return passive != 42 }
	var fills []Fill
	filled := ob.WalkAndMatch(Buy, ToPrice(100), 5, stp, func(f Fill) Trade {
		fills = append(fills, f)
		return Trade{Price: f.Price, Quantity: f.Quantity}
	})
	assert.Equal(t, Quantity(5), filled)
	require.Len(t, fills, 1)
	assert.Equal(t, OrderId(2), fills[0].PassiveOrderId)

	blocked, ok := ob.GetOrder(1)
	require.True(t, ok)
	assert.Equal(t, Quantity(5), blocked.Remaining()) // untouched
}

// Regression: a level whose only order is blocked by self-trade
// prevention must not send WalkAndMatch back into the same order forever.
// It should terminate with a partial (here, zero) fill instead of hanging.
func TestWalkAndMatchTerminatesWhenSoleOrderAtLevelIsBlocked(t *testing.T) {
	ob := newTestBook(t)
	_, err := ob.AddOrder(1, ToPrice(100), 5, Sell, Limit, 1, 42)
	require.NoError(t, err)

	stp := func(passive uint64) bool { return passive != 42 }
	done := make(chan Quantity, 1)
	go func() {
		done <- ob.WalkAndMatch(Buy, ToPrice(100), 5, stp, func(f Fill) Trade {
			return Trade{Price: f.Price, Quantity: f.Quantity}
		})
	}()

	select {
	case filled := <-done:
		assert.Equal(t, Quantity(0), filled)
	case <-time.After(time.Second):
		t.Fatal("WalkAndMatch did not return: infinite loop on a blocked sole order")
	}

	blocked, ok := ob.GetOrder(1)
	require.True(t, ok)
	assert.Equal(t, Quantity(5), blocked.Remaining())
}

// Once a level is fully blocked, the walk must still reach a worse level
// that can satisfy the aggressor, rather than stopping at the first
// unfillable level.
func TestWalkAndMatchSkipsFullyBlockedLevelForNextLevel(t *testing.T) {
	ob := newTestBook(t)
	_, err := ob.AddOrder(1, ToPrice(100), 5, Sell, Limit, 1, 42)
	require.NoError(t, err)
	_, err = ob.AddOrder(2, ToPrice(101), 5, Sell, Limit, 2, 99)
	require.NoError(t, err)

	stp := func(passive uint64) bool { return passive != 42 }
	var fills []Fill
	filled := ob.WalkAndMatch(Buy, ToPrice(101), 5, stp, func(f Fill) Trade {
		fills = append(fills, f)
		return Trade{Price: f.Price, Quantity: f.Quantity}
	})
	assert.Equal(t, Quantity(5), filled)
	require.Len(t, fills, 1)
	assert.Equal(t, OrderId(2), fills[0].PassiveOrderId)
}

func TestProbeMatchDoesNotMutate(t *testing.T) {
	ob := newTestBook(t)
	_, err := ob.AddOrder(1, ToPrice(100), 10, Sell, Limit, 1, 0)
	require.NoError(t, err)

	available := ob.ProbeMatch(Buy, ToPrice(100), 6, nil)
	assert.Equal(t, Quantity(6), available)

	o, ok := ob.GetOrder(1)
	require.True(t, ok)
	assert.Equal(t, Quantity(10), o.Remaining()) // dry run: untouched
}

func TestSnapshot(t *testing.T) {
	ob := newTestBook(t)
	_, err := ob.AddOrder(1, ToPrice(100), 5, Buy, Limit, 1, 0)
	require.NoError(t, err)
	_, err = ob.AddOrder(2, ToPrice(101), 5, Sell, Limit, 2, 0)
	require.NoError(t, err)

	snap := ob.Snapshot(5)
	require.Len(t, snap.Bids, 1)
	require.Len(t, snap.Asks, 1)
	assert.Equal(t, ToPrice(100), snap.Bids[0].Price)
	assert.Equal(t, ToPrice(101), snap.Asks[0].Price)
}
