package core

import "math"

// priceRange derives the tradable top-of-book window for a quote,
// preferring the quote's own best bid/ask and falling back to a
// last-price +/- one tick estimate when a side is missing. Grounded on
// the same notional-from-quote style the retail margin calculator uses
// elsewhere in this codebase (read straight off the quote, no order
// book walk).
func priceRange(q *Quote) (askPrice, bidPrice float64) {
	askPrice, bidPrice = q.AskPrice1, q.BidPrice1
	if askPrice == 0 {
		if !math.IsNaN(q.LastPrice) && q.PriceTick > 0 {
			askPrice = q.LastPrice + q.PriceTick
		} else {
			askPrice = math.NaN()
		}
	}
	if bidPrice == 0 {
		if !math.IsNaN(q.LastPrice) && q.PriceTick > 0 {
			bidPrice = q.LastPrice - q.PriceTick
		} else {
			bidPrice = math.NaN()
		}
	}
	return askPrice, bidPrice
}

// futureMargin returns the per-lot margin requirement carried directly
// on the quote. NaN when the quote never declared one (e.g. an option
// quote, which uses optionMargin instead).
func futureMargin(q *Quote) float64 {
	if !q.HasMargin {
		return math.NaN()
	}
	return q.Margin
}

// optionMargin is the writer-side (short) margin for one lot, following
// the standard exchange shape: the mark value of the option itself plus
// the larger of a rate applied to the underlying mark net of how far
// out of the money the option is, or a minimum rate floor. This engine
// has no strike/right fields on Quote (per the external contract, an
// option quote carries only last_price/volume_multiple/underlying), so
// the out-of-money offset is treated as zero and the formula reduces to
// mark*multiplier + max(marginRate, minMarginRate)*underlyingMark*multiplier.
// marginRate/minMarginRate default to 12%/5% when the quote omits them.
func optionMargin(q *Quote, mark, underlyingMark float64) float64 {
	rate := q.OptionMarginRate
	if rate == 0 {
		rate = 0.12
	}
	minRate := q.OptionMinMarginRate
	if minRate == 0 {
		minRate = 0.05
	}
	effectiveRate := rate
	if minRate > effectiveRate {
		effectiveRate = minRate
	}
	return mark*q.VolumeMultiple + effectiveRate*underlyingMark*q.VolumeMultiple
}

// commission returns the per-lot commission charged on a fill.
func commission(q *Quote) float64 {
	if q.HasCommission {
		return q.Commission
	}
	if q.isOption() {
		// Options quotes in this engine don't carry an explicit
		// commission field (per the external contract); charge a
		// nominal per-lot fee against the mark instead of zero.
		return q.LastPrice * q.VolumeMultiple * 0.0001
	}
	return math.NaN()
}

// premium is the option cash flow realized at trade time: positive when
// writing (SELL) collects premium, negative when buying (BUY) pays it,
// zero for futures.
func premium(t *Trade, q *Quote) float64 {
	if !q.isOption() {
		return 0
	}
	amount := t.Price * float64(t.Volume) * q.VolumeMultiple
	if t.Direction == Sell {
		return amount
	}
	return -amount
}

// closeProfit is the realized P/L booked when a close fill reduces a
// position, measured against the position's pre-fill per-unit price.
func closeProfit(t *Trade, q *Quote, p *Position) float64 {
	volume := float64(t.Volume) * q.VolumeMultiple
	if t.Direction == Sell {
		return (t.Price - p.PositionPriceLong) * volume
	}
	return (p.PositionPriceShort - t.Price) * volume
}
