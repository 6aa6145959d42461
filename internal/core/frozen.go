package core

// closingSideFields resolves the four raw counters a closing order of
// the given direction draws against: BUY closes the short side, SELL
// closes the long side.
func closingSideFields(p *Position, dir Direction) (volumeToday, volumeHis, frozenToday, frozenHis *int64) {
	if dir == Sell {
		return &p.VolumeLongToday, &p.VolumeLongHis, &p.VolumeLongFrozenToday, &p.VolumeLongFrozenHis
	}
	return &p.VolumeShortToday, &p.VolumeShortHis, &p.VolumeShortFrozenToday, &p.VolumeShortFrozenHis
}

// reserveCloseFrozen books a closing order's volume onto the frozen
// counters at intake. SHFE/INE require the caller to say which bucket
// (today/his) the offset names; every other exchange aggregates the
// two buckets and fills his first, spilling any remainder into today.
func reserveCloseFrozen(volumeToday, volumeHis, frozenToday, frozenHis *int64, exchangeID string, offset Offset, volume int64) {
	if isTodayHisSplitExchange(exchangeID) {
		if offset == CloseToday {
			*frozenToday += volume
		} else {
			*frozenHis += volume
		}
		return
	}
	fromHis := volume
	if available := *volumeHis - *frozenHis; fromHis > available {
		fromHis = available
	}
	if fromHis < 0 {
		fromHis = 0
	}
	*frozenHis += fromHis
	*frozenToday += volume - fromHis
}

// consumeCloseFrozen retires a fully-filled closing order's reservation
// and the volume it closed. Non-split exchanges re-derive the his/today
// split from the CURRENT frozen_his balance at fill time rather than
// replaying the split chosen at intake, since other orders may have
// changed the balance in between.
func consumeCloseFrozen(volumeToday, volumeHis, frozenToday, frozenHis *int64, volume int64) {
	fromHis := volume
	if fromHis > *frozenHis {
		fromHis = *frozenHis
	}
	if fromHis < 0 {
		fromHis = 0
	}
	*frozenHis -= fromHis
	*volumeHis -= fromHis
	fromToday := volume - fromHis
	*frozenToday -= fromToday
	*volumeToday -= fromToday
}

// releaseCloseFrozen reverses a closing order's reservation when it is
// cancelled or rejected before it fills. Deliberately the MIRROR IMAGE
// of reserveCloseFrozen's his-first ordering: it drains today first and
// spills the remainder into his. This asymmetry is intentional and must
// be preserved verbatim.
func releaseCloseFrozen(frozenToday, frozenHis *int64, volume int64) {
	fromToday := volume
	if fromToday > *frozenToday {
		fromToday = *frozenToday
	}
	if fromToday < 0 {
		fromToday = 0
	}
	*frozenToday -= fromToday
	*frozenHis -= volume - fromToday
}
