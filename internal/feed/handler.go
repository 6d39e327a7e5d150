package feed

import (
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/atlasbook/atlasbook/internal/book"
	"github.com/atlasbook/atlasbook/pkg/metrics"
	"go.uber.org/zap"
)

// FeedStats are the monotonic counters the handler exposes, resettable
// via ResetStats.
type FeedStats struct {
	MessagesReceived uint64
	MessagesProcessed uint64
	SequenceGaps      uint64
	ParseErrors       uint64
	BufferOverflows   uint64
	LastSequence      uint64
	LastMessageTime   book.Timestamp
	LastProcessTime   book.Timestamp
}

// GapFunc is invoked when the handler detects a sequence discontinuity.
type GapFunc func(expected, received uint64)

type levelKey struct {
	symbol book.SymbolId
	side   book.Side
	price  book.Price
}

// FeedHandler drives the consumer side of the L2 ring: it pops messages,
// tracks sequence gaps, optionally applies them to per-symbol order
// books, and exposes running statistics. It is not safe for concurrent
// use beyond the single internal processing goroutine Start manages.
type FeedHandler struct {
	config  Config
	ring    *Ring[L2Update]
	applier *FeedApplier
	logger  *zap.Logger

	mu               sync.Mutex
	stats            FeedStats
	expectedSequence uint64

	syntheticIds    map[levelKey]book.OrderId
	nextSyntheticId uint64

	l2Cb   func(L2Update)
	l3Cb   func(L3Update)
	gapCb  GapFunc

	running  atomic.Bool
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// NewFeedHandler builds a handler over its own ring, sized per
// config.RingBufferCapacity, applying accepted messages through applier
// when config.MaintainOrderBook is set.
func NewFeedHandler(config Config, applier *FeedApplier, logger *zap.Logger) (*FeedHandler, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FeedHandler{
		config:           config,
		ring:             NewRing[L2Update](config.RingBufferCapacity),
		applier:          applier,
		logger:           logger,
		expectedSequence: 1,
		syntheticIds:     make(map[levelKey]book.OrderId),
	}, nil
}

// SetL2Callback registers the sink invoked for every accepted L2 message.
func (h *FeedHandler) SetL2Callback(fn func(L2Update)) { h.l2Cb = fn }

// SetL3Callback registers the sink invoked for every accepted L3 message.
func (h *FeedHandler) SetL3Callback(fn func(L3Update)) { h.l3Cb = fn }

// SetGapCallback registers the sink invoked on every detected sequence gap.
func (h *FeedHandler) SetGapCallback(fn GapFunc) { h.gapCb = fn }

// EnqueueL2 pushes msg onto the ring. Returns false (and counts an
// overflow) if the ring is full.
func (h *FeedHandler) EnqueueL2(msg L2Update) bool {
	if !h.ring.TryPush(msg) {
		h.mu.Lock()
		h.stats.BufferOverflows++
		h.mu.Unlock()
		metrics.FeedBufferOverflows.Inc()
		return false
	}
	h.mu.Lock()
	h.stats.MessagesReceived++
	h.mu.Unlock()
	metrics.FeedMessagesReceived.Inc()
	return true
}

// ProcessMessages drains up to max messages (0 = drain everything
// currently queued) and returns how many were processed.
func (h *FeedHandler) ProcessMessages(max int) int {
	processed := 0
	for max == 0 || processed < max {
		msg, ok := h.ring.TryPop()
		if !ok {
			break
		}
		h.processL2Message(msg)
		processed++
	}
	h.mu.Lock()
	h.stats.MessagesProcessed += uint64(processed)
	h.mu.Unlock()
	if processed > 0 {
		metrics.FeedMessagesProcessed.Add(float64(processed))
	}
	return processed
}

func (h *FeedHandler) processL2Message(msg L2Update) {
	h.mu.Lock()
	if h.config.DetectGaps {
		h.checkSequenceLocked(msg.Sequence)
	}
	h.stats.LastSequence = msg.Sequence
	h.stats.LastMessageTime = msg.Timestamp
	h.mu.Unlock()

	if h.l2Cb != nil {
		h.l2Cb(msg)
	}
	if h.config.MaintainOrderBook {
		h.applyToOrderBook(msg)
	}

	h.mu.Lock()
	h.stats.LastProcessTime = book.Timestamp(time.Now().UnixNano())
	h.mu.Unlock()
}

func (h *FeedHandler) checkSequenceLocked(sequence uint64) {
	if sequence != h.expectedSequence {
		h.stats.SequenceGaps++
		metrics.FeedSequenceGaps.Inc()
		if h.gapCb != nil {
			h.gapCb(h.expectedSequence, sequence)
		}
	}
	h.expectedSequence = sequence + 1
	metrics.FeedLastSequence.Set(float64(sequence))
}

// applyToOrderBook turns one aggregated L2 update into a book mutation
// through a synthetic per-(symbol,side,price) order id, since L2 updates
// describe level aggregates rather than individual orders.
func (h *FeedHandler) applyToOrderBook(msg L2Update) {
	if _, exists := h.applier.Book(msg.SymbolId); !exists {
		if uint32(h.applier.SymbolCount()) >= h.config.MaxSymbols {
			return
		}
	}
	ob := h.applier.CreateBook(msg.SymbolId)
	if ob == nil {
		return
	}

	key := levelKey{symbol: msg.SymbolId, side: msg.Side, price: msg.Price}

	switch msg.Action {
	case ActionAdd, ActionModify:
		if msg.Quantity == 0 {
			return
		}
		if id, ok := h.syntheticIds[key]; ok {
			ob.ModifyOrder(id, msg.Price, msg.Quantity)
			return
		}
		h.nextSyntheticId++
		id := book.OrderId(h.nextSyntheticId)
		if _, err := ob.AddOrder(id, msg.Price, msg.Quantity, msg.Side, book.Limit, msg.Timestamp, 0); err == nil {
			h.syntheticIds[key] = id
		}
	case ActionDelete:
		if id, ok := h.syntheticIds[key]; ok {
			ob.CancelOrder(id)
			delete(h.syntheticIds, key)
		}
	case ActionExecute:
		if id, ok := h.syntheticIds[key]; ok {
			removed, err := ob.ReduceOrder(id, msg.Quantity)
			if err == nil && removed {
				delete(h.syntheticIds, key)
			}
		}
	}
}

// Start launches the internal processing goroutine, which drains the
// ring in batches and yields (rather than busy-spins) whenever it finds
// nothing to do. Calling Start twice is a no-op.
func (h *FeedHandler) Start() {
	if !h.running.CompareAndSwap(false, true) {
		return
	}
	h.stopCh = make(chan struct{})
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		for {
			select {
			case <-h.stopCh:
				return
			default:
			}
			if h.ProcessMessages(1000) == 0 {
				runtime.Gosched()
			}
		}
	}()
}

// Stop clears the running flag and waits for in-flight processing to
// finish; cooperative, no per-operation timeout.
func (h *FeedHandler) Stop() {
	if !h.running.CompareAndSwap(true, false) {
		return
	}
	close(h.stopCh)
	h.wg.Wait()
}

// IsRunning reports whether the internal processing goroutine is active.
func (h *FeedHandler) IsRunning() bool { return h.running.Load() }

// GetOrderBook returns the book for a symbol, if one has been created.
func (h *FeedHandler) GetOrderBook(symbol book.SymbolId) (*book.OrderBook, bool) {
	return h.applier.Book(symbol)
}

// CreateOrderBook returns (auto-creating if needed) the book for a symbol.
func (h *FeedHandler) CreateOrderBook(symbol book.SymbolId) *book.OrderBook {
	return h.applier.CreateBook(symbol)
}

// Snapshot returns a depth snapshot of symbol's book, if it exists.
func (h *FeedHandler) Snapshot(symbol book.SymbolId, depth int) (book.Snapshot, bool) {
	ob, ok := h.applier.Book(symbol)
	if !ok {
		return book.Snapshot{}, false
	}
	return ob.Snapshot(depth), true
}

// GetStats returns a copy of the current statistics.
func (h *FeedHandler) GetStats() FeedStats {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.stats
}

// ResetStats zeroes every counter.
func (h *FeedHandler) ResetStats() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.stats = FeedStats{}
}
