package core

import (
	"math"
	"strconv"
)

// matchOrder attempts to cross a live order against the current top of
// book for its symbol, exactly once. It either fills the order in full
// (this engine never produces partial fills), cancels it for one of the
// two matcher-side terminal reasons, or leaves it resting unchanged.
func (e *Engine) matchOrder(o *Order, q, underlyingQ *Quote) {
	askPrice, bidPrice := priceRange(q)

	var intendedPrice float64
	switch o.PriceType {
	case PriceAny, PriceBest, PriceFiveLevel:
		if o.Direction == Buy {
			intendedPrice = askPrice
		} else {
			intendedPrice = bidPrice
		}
	default:
		intendedPrice = o.LimitPrice
	}

	switch {
	case o.PriceType == PriceAny && math.IsNaN(intendedPrice):
		o.LastMsg = msgMarketNoSide
		o.Status = Finished
		e.onOrderFailed(o, e.positions[o.symbol()])
		return
	case o.TimeCondition == IOC && !crosses(o.Direction, intendedPrice, askPrice, bidPrice):
		o.LastMsg = msgIOCCanceled
		o.Status = Finished
		e.onOrderFailed(o, e.positions[o.symbol()])
		return
	}

	if !crosses(o.Direction, intendedPrice, askPrice, bidPrice) {
		return
	}

	t := &Trade{
		OrderID:       o.OrderID,
		TradeID:       o.OrderID + "|" + strconv.FormatInt(o.VolumeLeft, 10),
		UserID:        o.UserID,
		ExchangeID:    o.ExchangeID,
		InstrumentID:  o.InstrumentID,
		Direction:     o.Direction,
		Offset:        o.Offset,
		Price:         intendedPrice,
		Volume:        o.VolumeLeft,
		TradeDateTime: e.tradeTimestamp(),
		Commission:    float64(o.VolumeLeft) * commission(q),
	}
	e.sink.sendTrade(t)
	e.onOrderTraded(o, t, q, underlyingQ)
}

// crosses reports whether intendedPrice would execute immediately
// against the opposite side of book.
func crosses(dir Direction, intendedPrice, askPrice, bidPrice float64) bool {
	if dir == Buy {
		return intendedPrice >= askPrice
	}
	return intendedPrice <= bidPrice
}
