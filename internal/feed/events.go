package feed

import "github.com/atlasbook/atlasbook/internal/book"

// Action classifies what an L2/L3 event does to a price level or order.
type Action int8

const (
	ActionAdd Action = iota
	ActionModify
	ActionDelete
	ActionExecute
)

// L2Update is a normalized, aggregated-per-level market data event: the
// unit of work the ring hands from a feed producer to the processing
// side.
type L2Update struct {
	SymbolId  book.SymbolId
	Price     book.Price
	Quantity  book.Quantity
	Side      book.Side
	Action    Action
	Timestamp book.Timestamp
	Sequence  uint64
}

// L3Update is an L2Update plus the specific order it concerns.
type L3Update struct {
	L2Update
	OrderId book.OrderId
}
