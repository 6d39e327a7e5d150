package book

// PriceLevel is the FIFO of live orders resting at one price on one side.
// The list is intrusive: orders link to each other directly via their
// prev/next fields rather than through a separate node allocation.
type PriceLevel struct {
	Price         Price
	Side          Side
	Head          *Order
	Tail          *Order
	OrderCount    int
	TotalQuantity Quantity
}

// Add appends order at the tail, giving it lowest time priority at this
// level, and folds its remaining quantity into the aggregate.
func (l *PriceLevel) Add(o *Order) {
	o.level = l
	o.prev = l.Tail
	o.next = nil
	if l.Tail != nil {
		l.Tail.next = o
	} else {
		l.Head = o
	}
	l.Tail = o
	l.OrderCount++
	l.TotalQuantity += o.Remaining()
}

// Remove unlinks o from the list in O(1) using its own prev/next, and
// subtracts its remaining quantity from the aggregate. o's field values
// (price, quantity, etc.) are left intact; only linkage is cleared.
func (l *PriceLevel) Remove(o *Order) {
	if o.prev != nil {
		o.prev.next = o.next
	} else {
		l.Head = o.next
	}
	if o.next != nil {
		o.next.prev = o.prev
	} else {
		l.Tail = o.prev
	}
	l.TotalQuantity -= o.Remaining()
	l.OrderCount--
	o.prev = nil
	o.next = nil
	o.level = nil
}

// Front returns the oldest (highest time priority) order at this level,
// or nil if the level is empty.
func (l *PriceLevel) Front() *Order {
	return l.Head
}

// Empty reports whether the level currently holds no orders.
func (l *PriceLevel) Empty() bool {
	return l.OrderCount == 0
}

// ReduceQuantity decrements the level aggregate by amount without
// unlinking anyone. Callers must also advance the affected order's
// FilledQuantity themselves so the two stay consistent; this is the
// reduce-in-place path used for partial fills instead of cancel+re-add.
func (l *PriceLevel) ReduceQuantity(amount Quantity) {
	l.TotalQuantity -= amount
}
