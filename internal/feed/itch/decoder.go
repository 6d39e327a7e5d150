package itch

import (
	"encoding/binary"

	"github.com/atlasbook/atlasbook/pkg/metrics"
)

func be48(b []byte) uint64 {
	return uint64(b[0])<<40 | uint64(b[1])<<32 | uint64(b[2])<<24 |
		uint64(b[3])<<16 | uint64(b[4])<<8 | uint64(b[5])
}

func parseHeader(buf []byte) Header {
	return Header{
		Type:      MessageType(buf[0]),
		Locate:    binary.BigEndian.Uint16(buf[1:3]),
		Tracking:  binary.BigEndian.Uint16(buf[3:5]),
		Timestamp: be48(buf[5:11]),
	}
}

// Decoder is a stateless (aside from its counters) parser: one registered
// handler per message kind, invoked synchronously from ParseMessage.
type Decoder struct {
	onAddOrder           func(AddOrder)
	onAddOrderMPID       func(AddOrderMPID)
	onOrderExecuted      func(OrderExecuted)
	onOrderExecutedPrice func(OrderExecutedPrice)
	onOrderCancel        func(OrderCancel)
	onOrderDelete        func(OrderDelete)
	onOrderReplace       func(OrderReplace)
	onTrade              func(Trade)
	onCrossTrade         func(CrossTrade)
	onBrokenTrade        func(BrokenTrade)
	onSystemEvent        func(SystemEvent)
	onStockDirectory     func(StockDirectory)
	onStockTradingAction func(StockTradingAction)
	onNOII               func(NOII)

	messagesParsed uint64
	bytesParsed    uint64
}

// NewDecoder builds a Decoder with no handlers registered; ParseMessage
// still validates and consumes bytes for message kinds with no handler.
func NewDecoder() *Decoder { return &Decoder{} }

func (d *Decoder) OnAddOrder(fn func(AddOrder))                     { d.onAddOrder = fn }
func (d *Decoder) OnAddOrderMPID(fn func(AddOrderMPID))             { d.onAddOrderMPID = fn }
func (d *Decoder) OnOrderExecuted(fn func(OrderExecuted))           { d.onOrderExecuted = fn }
func (d *Decoder) OnOrderExecutedPrice(fn func(OrderExecutedPrice)) { d.onOrderExecutedPrice = fn }
func (d *Decoder) OnOrderCancel(fn func(OrderCancel))               { d.onOrderCancel = fn }
func (d *Decoder) OnOrderDelete(fn func(OrderDelete))               { d.onOrderDelete = fn }
func (d *Decoder) OnOrderReplace(fn func(OrderReplace))             { d.onOrderReplace = fn }
func (d *Decoder) OnTrade(fn func(Trade))                           { d.onTrade = fn }
func (d *Decoder) OnCrossTrade(fn func(CrossTrade))                 { d.onCrossTrade = fn }
func (d *Decoder) OnBrokenTrade(fn func(BrokenTrade))               { d.onBrokenTrade = fn }
func (d *Decoder) OnSystemEvent(fn func(SystemEvent))               { d.onSystemEvent = fn }
func (d *Decoder) OnStockDirectory(fn func(StockDirectory))         { d.onStockDirectory = fn }
func (d *Decoder) OnStockTradingAction(fn func(StockTradingAction)) { d.onStockTradingAction = fn }
func (d *Decoder) OnNOII(fn func(NOII))                             { d.onNOII = fn }

// MessagesParsed is the running count of successfully decoded messages.
func (d *Decoder) MessagesParsed() uint64 { return d.messagesParsed }

// BytesParsed is the running count of bytes consumed across all decoded messages.
func (d *Decoder) BytesParsed() uint64 { return d.bytesParsed }

// ParseMessage decodes a single message at the start of buf. Returns 0 if
// buf is too short to contain even a type byte, the type byte is
// unknown, or buf is shorter than that type's fixed length (the caller
// should buffer more bytes). Otherwise returns the number of bytes
// consumed, which always equals the type's fixed length.
func (d *Decoder) ParseMessage(buf []byte) int {
	if len(buf) < 1 {
		return 0
	}
	t := MessageType(buf[0])
	length, ok := MessageLength(t)
	if !ok {
		metrics.FeedParseErrors.Inc()
		return 0
	}
	if len(buf) < length {
		return 0
	}

	switch t {
	case TypeAddOrder:
		d.decodeAddOrder(buf)
	case TypeAddOrderMPID:
		d.decodeAddOrderMPID(buf)
	case TypeOrderExecuted:
		d.decodeOrderExecuted(buf)
	case TypeOrderExecutedPrice:
		d.decodeOrderExecutedPrice(buf)
	case TypeOrderCancel:
		d.decodeOrderCancel(buf)
	case TypeOrderDelete:
		d.decodeOrderDelete(buf)
	case TypeOrderReplace:
		d.decodeOrderReplace(buf)
	case TypeTrade:
		d.decodeTrade(buf)
	case TypeCrossTrade:
		d.decodeCrossTrade(buf)
	case TypeBrokenTrade:
		d.decodeBrokenTrade(buf)
	case TypeSystemEvent:
		d.decodeSystemEvent(buf)
	case TypeStockDirectory:
		d.decodeStockDirectory(buf)
	case TypeStockTradingAction:
		d.decodeStockTradingAction(buf)
	case TypeNOII:
		d.decodeNOII(buf)
	}

	d.messagesParsed++
	d.bytesParsed += uint64(length)
	metrics.ParserMessagesParsed.Inc()
	metrics.ParserBytesParsed.Add(float64(length))
	return length
}

// ParseMessages loops ParseMessage over buf until it returns 0, returning
// the total number of bytes consumed.
func (d *Decoder) ParseMessages(buf []byte) int {
	total := 0
	for {
		n := d.ParseMessage(buf[total:])
		if n == 0 {
			break
		}
		total += n
	}
	return total
}

func (d *Decoder) decodeAddOrder(buf []byte) {
	m := AddOrder{
		Header:   parseHeader(buf),
		OrderRef: binary.BigEndian.Uint64(buf[11:19]),
		Side:     buf[19],
		Shares:   binary.BigEndian.Uint32(buf[20:24]),
		Price:    binary.BigEndian.Uint32(buf[32:36]),
	}
	copy(m.Stock[:], buf[24:32])
	if d.onAddOrder != nil {
		d.onAddOrder(m)
	}
}

func (d *Decoder) decodeAddOrderMPID(buf []byte) {
	base := AddOrder{
		Header:   parseHeader(buf),
		OrderRef: binary.BigEndian.Uint64(buf[11:19]),
		Side:     buf[19],
		Shares:   binary.BigEndian.Uint32(buf[20:24]),
		Price:    binary.BigEndian.Uint32(buf[32:36]),
	}
	copy(base.Stock[:], buf[24:32])
	m := AddOrderMPID{AddOrder: base}
	copy(m.MPID[:], buf[36:40])
	if d.onAddOrderMPID != nil {
		d.onAddOrderMPID(m)
	}
}

func (d *Decoder) decodeOrderExecuted(buf []byte) {
	m := OrderExecuted{
		Header:         parseHeader(buf),
		OrderRef:       binary.BigEndian.Uint64(buf[11:19]),
		ExecutedShares: binary.BigEndian.Uint32(buf[19:23]),
		MatchNumber:    binary.BigEndian.Uint64(buf[23:31]),
	}
	if d.onOrderExecuted != nil {
		d.onOrderExecuted(m)
	}
}

func (d *Decoder) decodeOrderExecutedPrice(buf []byte) {
	base := OrderExecuted{
		Header:         parseHeader(buf),
		OrderRef:       binary.BigEndian.Uint64(buf[11:19]),
		ExecutedShares: binary.BigEndian.Uint32(buf[19:23]),
		MatchNumber:    binary.BigEndian.Uint64(buf[23:31]),
	}
	m := OrderExecutedPrice{
		OrderExecuted:  base,
		Printable:      buf[31],
		ExecutionPrice: binary.BigEndian.Uint32(buf[32:36]),
	}
	if d.onOrderExecutedPrice != nil {
		d.onOrderExecutedPrice(m)
	}
}

func (d *Decoder) decodeOrderCancel(buf []byte) {
	m := OrderCancel{
		Header:          parseHeader(buf),
		OrderRef:        binary.BigEndian.Uint64(buf[11:19]),
		CancelledShares: binary.BigEndian.Uint32(buf[19:23]),
	}
	if d.onOrderCancel != nil {
		d.onOrderCancel(m)
	}
}

func (d *Decoder) decodeOrderDelete(buf []byte) {
	m := OrderDelete{
		Header:   parseHeader(buf),
		OrderRef: binary.BigEndian.Uint64(buf[11:19]),
	}
	if d.onOrderDelete != nil {
		d.onOrderDelete(m)
	}
}

func (d *Decoder) decodeOrderReplace(buf []byte) {
	m := OrderReplace{
		Header:           parseHeader(buf),
		OriginalOrderRef: binary.BigEndian.Uint64(buf[11:19]),
		NewOrderRef:      binary.BigEndian.Uint64(buf[19:27]),
		Shares:           binary.BigEndian.Uint32(buf[27:31]),
		Price:            binary.BigEndian.Uint32(buf[31:35]),
	}
	if d.onOrderReplace != nil {
		d.onOrderReplace(m)
	}
}

func (d *Decoder) decodeTrade(buf []byte) {
	m := Trade{
		Header:      parseHeader(buf),
		OrderRef:    binary.BigEndian.Uint64(buf[11:19]),
		Side:        buf[19],
		Shares:      binary.BigEndian.Uint32(buf[20:24]),
		Price:       binary.BigEndian.Uint32(buf[32:36]),
		MatchNumber: binary.BigEndian.Uint64(buf[36:44]),
	}
	copy(m.Stock[:], buf[24:32])
	if d.onTrade != nil {
		d.onTrade(m)
	}
}

func (d *Decoder) decodeCrossTrade(buf []byte) {
	m := CrossTrade{
		Header:      parseHeader(buf),
		Shares:      binary.BigEndian.Uint64(buf[11:19]),
		CrossPrice:  binary.BigEndian.Uint32(buf[27:31]),
		MatchNumber: binary.BigEndian.Uint64(buf[31:39]),
		CrossType:   buf[39],
	}
	copy(m.Stock[:], buf[19:27])
	if d.onCrossTrade != nil {
		d.onCrossTrade(m)
	}
}

func (d *Decoder) decodeBrokenTrade(buf []byte) {
	m := BrokenTrade{
		Header:      parseHeader(buf),
		MatchNumber: binary.BigEndian.Uint64(buf[11:19]),
	}
	if d.onBrokenTrade != nil {
		d.onBrokenTrade(m)
	}
}

func (d *Decoder) decodeSystemEvent(buf []byte) {
	m := SystemEvent{
		Header:    parseHeader(buf),
		EventCode: buf[11],
	}
	if d.onSystemEvent != nil {
		d.onSystemEvent(m)
	}
}

func (d *Decoder) decodeStockDirectory(buf []byte) {
	m := StockDirectory{
		Header:              parseHeader(buf),
		MarketCategory:      buf[19],
		FinancialStatus:     buf[20],
		RoundLotSize:        binary.BigEndian.Uint32(buf[21:25]),
		RoundLotsOnly:       buf[25],
		IssueClassification: buf[26],
		Authenticity:        buf[29],
		ShortSaleThreshold:  buf[30],
		IPOFlag:             buf[31],
		LULDReferenceTier:   buf[32],
		ETPFlag:             buf[33],
		ETPLeverageFactor:   binary.BigEndian.Uint32(buf[34:38]),
	}
	copy(m.Stock[:], buf[11:19])
	copy(m.IssueSubType[:], buf[27:29])
	if d.onStockDirectory != nil {
		d.onStockDirectory(m)
	}
}

func (d *Decoder) decodeStockTradingAction(buf []byte) {
	m := StockTradingAction{
		Header:       parseHeader(buf),
		TradingState: buf[19],
		Reserved:     buf[20],
		Reason:       binary.BigEndian.Uint32(buf[21:25]),
	}
	copy(m.Stock[:], buf[11:19])
	if d.onStockTradingAction != nil {
		d.onStockTradingAction(m)
	}
}

func (d *Decoder) decodeNOII(buf []byte) {
	m := NOII{
		Header:                  parseHeader(buf),
		PairedShares:            binary.BigEndian.Uint64(buf[11:19]),
		ImbalanceShares:         binary.BigEndian.Uint64(buf[19:27]),
		ImbalanceDirection:      buf[27],
		FarPrice:                binary.BigEndian.Uint32(buf[36:40]),
		NearPrice:               binary.BigEndian.Uint32(buf[40:44]),
		CurrentReferencePrice:   binary.BigEndian.Uint32(buf[44:48]),
		CrossType:               buf[48],
		PriceVariationIndicator: buf[49],
	}
	copy(m.Stock[:], buf[28:36])
	if d.onNOII != nil {
		d.onNOII(m)
	}
}
