package core

// accountByTrade applies the account-level deltas caused directly by a
// fill: commission, premium and (on a close) realized close profit.
func (e *Engine) accountByTrade(commission, premium, closeProfit float64) {
	a := e.account
	a.CloseProfit += closeProfit
	a.Commission += commission
	a.Premium += premium
	a.Balance += closeProfit - commission + premium
	a.Available += closeProfit - commission + premium
	e.recomputeRiskRatio()
}

// accountByPosition rolls position-level deltas (produced by
// positionAccount) into the account aggregates.
func (e *Engine) accountByPosition(floatProfit, positionProfit, margin, marketValue float64) {
	a := e.account
	a.FloatProfit += floatProfit
	a.PositionProfit += positionProfit
	a.Margin += margin
	a.MarketValue += marketValue
	a.Balance += positionProfit + marketValue
	a.Available += positionProfit - margin
	e.recomputeRiskRatio()
}

// accountByOrder applies the reservation/release of frozen capital that
// happens when an order opens a reservation at intake, or releases one
// on fill/cancel/reject.
func (e *Engine) accountByOrder(frozenMargin, frozenPremium float64) {
	a := e.account
	a.FrozenMargin += frozenMargin
	a.FrozenPremium += frozenPremium
	a.Available -= frozenMargin + frozenPremium
}

func (e *Engine) recomputeRiskRatio() {
	e.account.RiskRatio = e.account.Margin / e.account.Balance
}

// positionAccountDelta is the single routine that produces and applies
// the (Δfloat_profit, Δposition_profit, Δmargin, Δmarket_value) deltas
// for one trigger: a fill (exactly one of buyOpen/sellClose/sellOpen/
// buyClose positive) or a quote tick (all four zero, revaluing the
// existing net position against the new mark).
func (e *Engine) positionAccountDelta(p *Position, q, underlyingQ *Quote,
	preLastPrice, lastPrice, preUnderlyingLastPrice, underlyingLastPrice float64,
	buyOpen, buyClose, sellOpen, sellClose int64) {

	var underlyingMark, preUnderlyingMark float64
	if underlyingQ != nil {
		underlyingMark, preUnderlyingMark = underlyingLastPrice, preUnderlyingLastPrice
	}

	var floatProfitLong, floatProfitShort float64
	var positionProfitLong, positionProfitShort float64
	var marginLong, marginShort float64
	var marketValueLong, marketValueShort float64

	mult := q.VolumeMultiple
	isOption := q.isOption()

	switch {
	case buyOpen > 0:
		bo := float64(buyOpen)
		floatProfitLong = (lastPrice - preLastPrice) * bo * mult
		if isOption {
			marketValueLong = lastPrice * bo * mult
		} else {
			marginLong = bo * futureMargin(q)
			positionProfitLong = (lastPrice - preLastPrice) * bo * mult
		}
	case sellClose > 0:
		sc := float64(sellClose)
		floatProfitLong = -p.FloatProfitLong / float64(p.VolumeLong) * sc
		if isOption {
			marketValueLong = -preLastPrice * sc * mult
		} else {
			marginLong = -sc * futureMargin(q)
			positionProfitLong = -p.PositionProfitLong / float64(p.VolumeLong) * sc
		}
	case sellOpen > 0:
		so := float64(sellOpen)
		floatProfitShort = (preLastPrice - lastPrice) * so * mult
		if isOption {
			marketValueShort = -lastPrice * so * mult
			marginShort = so * optionMargin(q, lastPrice, underlyingMark)
		} else {
			marginShort = so * futureMargin(q)
			positionProfitShort = (preLastPrice - lastPrice) * so * mult
		}
	case buyClose > 0:
		bc := float64(buyClose)
		floatProfitShort = -p.FloatProfitShort / float64(p.VolumeShort) * bc
		if isOption {
			marketValueShort = preLastPrice * bc * mult
			marginShort = -bc * optionMargin(q, preLastPrice, preUnderlyingMark)
		} else {
			marginShort = -bc * futureMargin(q)
			positionProfitShort = -p.PositionProfitShort / float64(p.VolumeShort) * bc
		}
	default:
		// Quote tick: revalue the existing net position.
		floatProfitLong = (lastPrice - preLastPrice) * float64(p.VolumeLong) * mult
		floatProfitShort = (preLastPrice - lastPrice) * float64(p.VolumeShort) * mult
		if isOption {
			marginShort = optionMargin(q, lastPrice, underlyingMark)*float64(p.VolumeShort) - p.MarginShort
			marketValueLong = (lastPrice - preLastPrice) * float64(p.VolumeLong) * mult
			marketValueShort = (preLastPrice - lastPrice) * float64(p.VolumeShort) * mult
		} else {
			positionProfitLong = floatProfitLong
			positionProfitShort = floatProfitShort
			marginLong = futureMargin(q)*float64(p.VolumeLong) - p.MarginLong
			marginShort = futureMargin(q)*float64(p.VolumeShort) - p.MarginShort
		}
	}

	if buyOpen > 0 || buyClose > 0 || sellOpen > 0 || sellClose > 0 {
		e.recomputePositionVolume(p)
	}

	e.applyPositionDeltas(q, p, floatProfitLong, floatProfitShort,
		positionProfitLong, positionProfitShort, marginLong, marginShort,
		marketValueLong, marketValueShort)

	e.accountByPosition(floatProfitLong+floatProfitShort,
		positionProfitLong+positionProfitShort,
		marginLong+marginShort,
		marketValueLong+marketValueShort)
}

// recomputePositionVolumeFrozen refreshes the aggregated frozen
// counters after a position's raw frozen-today/frozen-his counters
// change, without touching the (unrelated) live volume aggregates.
func (e *Engine) recomputePositionVolumeFrozen(p *Position) {
	p.VolumeLongFrozen = p.VolumeLongFrozenToday + p.VolumeLongFrozenHis
	p.VolumeShortFrozen = p.VolumeShortFrozenToday + p.VolumeShortFrozenHis
}

// recomputePositionVolume refreshes every volume-derived aggregate
// after a fill changes the raw today/his counters.
func (e *Engine) recomputePositionVolume(p *Position) {
	p.PosLongToday = p.VolumeLongToday
	p.PosLongHis = p.VolumeLongHis
	p.PosShortToday = p.VolumeShortToday
	p.PosShortHis = p.VolumeShortHis
	p.VolumeLong = p.VolumeLongToday + p.VolumeLongHis
	p.VolumeShort = p.VolumeShortToday + p.VolumeShortHis
	e.recomputePositionVolumeFrozen(p)
}

// applyPositionDeltas adds the side deltas onto the position's running
// totals and recomputes every field defined purely in terms of other
// fields (per-unit prices, side sums).
func (e *Engine) applyPositionDeltas(q *Quote, p *Position,
	floatProfitLong, floatProfitShort, positionProfitLong, positionProfitShort,
	marginLong, marginShort, marketValueLong, marketValueShort float64) {

	p.FloatProfitLong += floatProfitLong
	p.FloatProfitShort += floatProfitShort
	p.PositionProfitLong += positionProfitLong
	p.PositionProfitShort += positionProfitShort
	p.MarginLong += marginLong
	p.MarginShort += marginShort
	p.MarketValueLong += marketValueLong
	p.MarketValueShort += marketValueShort

	if p.VolumeLong > 0 {
		p.OpenPriceLong = p.OpenCostLong / float64(p.VolumeLong) / q.VolumeMultiple
		p.PositionPriceLong = p.PositionCostLong / float64(p.VolumeLong) / q.VolumeMultiple
	} else {
		p.OpenPriceLong = nan()
		p.PositionPriceLong = nan()
	}
	if p.VolumeShort > 0 {
		p.OpenPriceShort = p.OpenCostShort / float64(p.VolumeShort) / q.VolumeMultiple
		p.PositionPriceShort = p.PositionCostShort / float64(p.VolumeShort) / q.VolumeMultiple
	} else {
		p.OpenPriceShort = nan()
		p.PositionPriceShort = nan()
	}

	p.FloatProfit = p.FloatProfitLong + p.FloatProfitShort
	p.PositionProfit = p.PositionProfitLong + p.PositionProfitShort
	p.Margin = p.MarginLong + p.MarginShort
	p.MarketValue = p.MarketValueLong + p.MarketValueShort
}
