package core

import (
	"math"
	"testing"
)

func futureQuote(symbol string) map[string]*Quote {
	return map[string]*Quote{
		symbol: {
			Symbol:         symbol,
			Datetime:       "2026-08-01 09:00:00.000000",
			LastPrice:      3000,
			AskPrice1:      3001,
			BidPrice1:      2999,
			PriceTick:      1,
			InsClass:       "FUTURE",
			VolumeMultiple: 10,
			Commission:     5,
			HasCommission:  true,
			Margin:         3000,
			HasMargin:      true,
		},
	}
}

func newTestEngine(t *testing.T, quotes map[string]*Quote) *Engine {
	t.Helper()
	e := NewEngine("test-account", WithInitBalance(1e6))
	for symbol := range quotes {
		e.UpdateQuotes(symbol, quotes)
	}
	return e
}

func TestInsertOrderBuyOpenFills(t *testing.T) {
	e := newTestEngine(t, futureQuote("SHFE.rb2601"))

	diffs, events := e.InsertOrder(OrderRequest{
		OrderID: "o1", ExchangeID: "SHFE", InstrumentID: "rb2601",
		Direction: Buy, Offset: Open, PriceType: PriceAny,
		TimeCondition: GFD, Volume: 2,
	})

	if len(events) != 2 || events[0].Status != Alive || events[1].Status != Finished {
		t.Fatalf("expected the order's alive then finished events, got %+v", events)
	}
	if events[1].LastMsg != msgFullyFilled {
		t.Errorf("LastMsg = %q, want %q", events[1].LastMsg, msgFullyFilled)
	}
	if len(diffs) == 0 {
		t.Fatal("expected at least one diff")
	}

	p, ok := e.positions["SHFE.rb2601"]
	if !ok {
		t.Fatal("position not created")
	}
	if p.VolumeLong != 2 {
		t.Errorf("VolumeLong = %d, want 2", p.VolumeLong)
	}
	if p.VolumeLongToday != 2 {
		t.Errorf("VolumeLongToday = %d, want 2", p.VolumeLongToday)
	}

	wantMargin := 2 * futureMargin(e.quotes.quotes["SHFE.rb2601"])
	if e.account.Margin != wantMargin {
		t.Errorf("account margin = %v, want %v", e.account.Margin, wantMargin)
	}
	if e.account.FrozenMargin != 0 {
		t.Errorf("FrozenMargin should be released after fill, got %v", e.account.FrozenMargin)
	}
}

func TestInsertOrderRejectsUnsupportedProduct(t *testing.T) {
	e := NewEngine("test-account")
	e.UpdateQuotes("CFFEX.unknown", map[string]*Quote{
		"CFFEX.unknown": {
			Symbol: "CFFEX.unknown", Datetime: "2026-08-01 09:00:00.000000",
			LastPrice: 100, InsClass: "FUTURE",
		},
	})

	_, events := e.InsertOrder(OrderRequest{
		OrderID: "o1", ExchangeID: "CFFEX", InstrumentID: "unknown",
		Direction: Buy, Offset: Open, PriceType: PriceAny,
		TimeCondition: GFD, Volume: 1,
	})

	if len(events) != 2 || events[1].LastMsg != msgUnsupportedProduct {
		t.Fatalf("expected rejection %q, got %+v", msgUnsupportedProduct, events)
	}
}

func TestInsertOrderRejectsInsufficientFunds(t *testing.T) {
	e := NewEngine("test-account", WithInitBalance(100))
	e.UpdateQuotes("SHFE.rb2601", futureQuote("SHFE.rb2601"))

	_, events := e.InsertOrder(OrderRequest{
		OrderID: "o1", ExchangeID: "SHFE", InstrumentID: "rb2601",
		Direction: Buy, Offset: Open, PriceType: PriceAny,
		TimeCondition: GFD, Volume: 10,
	})

	if len(events) != 2 || events[1].LastMsg != msgOpenFundsShort {
		t.Fatalf("expected rejection %q, got %+v", msgOpenFundsShort, events)
	}
	if e.account.Available != 100 {
		t.Errorf("available should be untouched on rejection, got %v", e.account.Available)
	}
}

func TestInsertOrderIOCCancelsWhenNonCrossing(t *testing.T) {
	e := newTestEngine(t, futureQuote("SHFE.rb2601"))

	_, events := e.InsertOrder(OrderRequest{
		OrderID: "o1", ExchangeID: "SHFE", InstrumentID: "rb2601",
		Direction: Buy, Offset: Open, PriceType: PriceLimit, LimitPrice: 2990,
		TimeCondition: IOC, Volume: 1,
	})

	if len(events) != 2 || events[1].LastMsg != msgIOCCanceled {
		t.Fatalf("expected IOC cancel, got %+v", events)
	}
}

func TestInsertOrderGFDRestsWhenNonCrossing(t *testing.T) {
	e := newTestEngine(t, futureQuote("SHFE.rb2601"))

	_, events := e.InsertOrder(OrderRequest{
		OrderID: "o1", ExchangeID: "SHFE", InstrumentID: "rb2601",
		Direction: Buy, Offset: Open, PriceType: PriceLimit, LimitPrice: 2990,
		TimeCondition: GFD, Volume: 1,
	})

	if len(events) != 1 || events[0].Status != Alive {
		t.Fatalf("GFD order should rest, not terminate, got %+v", events)
	}
	if _, ok := e.orderIndex["o1"]; !ok {
		t.Error("resting order should remain indexed")
	}
}

func TestCancelOrderReleasesOpenFrozenFunds(t *testing.T) {
	e := newTestEngine(t, futureQuote("SHFE.rb2601"))
	e.InsertOrder(OrderRequest{
		OrderID: "o1", ExchangeID: "SHFE", InstrumentID: "rb2601",
		Direction: Buy, Offset: Open, PriceType: PriceLimit, LimitPrice: 2990,
		TimeCondition: GFD, Volume: 1,
	})

	before := e.account.Available
	if e.account.FrozenMargin == 0 {
		t.Fatal("resting open order should have frozen margin")
	}

	_, events := e.CancelOrder("o1")
	if len(events) != 1 || events[0].LastMsg != msgCanceled {
		t.Fatalf("expected cancel event, got %+v", events)
	}
	if e.account.FrozenMargin != 0 {
		t.Errorf("FrozenMargin should be released, got %v", e.account.FrozenMargin)
	}
	if e.account.Available <= before {
		t.Errorf("Available should increase after cancel, before=%v after=%v", before, e.account.Available)
	}
}

func TestCloseTodayFillsAgainstTodayVolumeOnSplitExchange(t *testing.T) {
	e := newTestEngine(t, futureQuote("SHFE.rb2601"))
	e.InsertOrder(OrderRequest{
		OrderID: "open1", ExchangeID: "SHFE", InstrumentID: "rb2601",
		Direction: Buy, Offset: Open, PriceType: PriceAny,
		TimeCondition: GFD, Volume: 1,
	})

	_, events := e.InsertOrder(OrderRequest{
		OrderID: "close1", ExchangeID: "SHFE", InstrumentID: "rb2601",
		Direction: Sell, Offset: CloseToday, PriceType: PriceAny,
		TimeCondition: GFD, Volume: 1,
	})

	if len(events) != 2 {
		t.Fatalf("expected an intake event and a terminal event, got %+v", events)
	}
	// the long volume just opened sits in "today", so a CLOSETODAY sell
	// should fill, not reject
	if events[1].LastMsg != msgFullyFilled {
		t.Fatalf("LastMsg = %q, want %q", events[1].LastMsg, msgFullyFilled)
	}
}

func TestCloseHisShortOnSplitExchangeRejected(t *testing.T) {
	e := newTestEngine(t, futureQuote("SHFE.rb2601"))
	e.InsertOrder(OrderRequest{
		OrderID: "open1", ExchangeID: "SHFE", InstrumentID: "rb2601",
		Direction: Buy, Offset: Open, PriceType: PriceAny,
		TimeCondition: GFD, Volume: 1,
	})

	_, events := e.InsertOrder(OrderRequest{
		OrderID: "close1", ExchangeID: "SHFE", InstrumentID: "rb2601",
		Direction: Sell, Offset: Close, PriceType: PriceAny,
		TimeCondition: GFD, Volume: 1,
	})
	if len(events) != 2 || events[1].LastMsg != msgCloseHisShort {
		t.Fatalf("expected %q, got %+v", msgCloseHisShort, events)
	}
}

func TestSettleRollsTodayIntoHisAndCancelsRestingOrders(t *testing.T) {
	e := newTestEngine(t, futureQuote("SHFE.rb2601"))
	e.InsertOrder(OrderRequest{
		OrderID: "open1", ExchangeID: "SHFE", InstrumentID: "rb2601",
		Direction: Buy, Offset: Open, PriceType: PriceAny,
		TimeCondition: GFD, Volume: 3,
	})
	e.InsertOrder(OrderRequest{
		OrderID: "resting1", ExchangeID: "SHFE", InstrumentID: "rb2601",
		Direction: Buy, Offset: Open, PriceType: PriceLimit, LimitPrice: 2990,
		TimeCondition: GFD, Volume: 1,
	})

	_, events, log := e.Settle()

	foundCanceled := false
	for _, o := range events {
		if o.OrderID == "resting1" && o.LastMsg == msgSettleCanceled {
			foundCanceled = true
		}
	}
	if !foundCanceled {
		t.Errorf("resting GFD order should be canceled at settlement, events=%+v", events)
	}

	if len(log.Trades) != 1 {
		t.Errorf("trade log should capture the day's one fill, got %d", len(log.Trades))
	}

	p := e.positions["SHFE.rb2601"]
	if p.VolumeLongHis != 3 || p.VolumeLongToday != 0 {
		t.Errorf("expected all volume rolled into his, got today=%d his=%d", p.VolumeLongToday, p.VolumeLongHis)
	}
	if p.PositionProfit != 0 {
		t.Errorf("PositionProfit should reset to 0 after roll, got %v", p.PositionProfit)
	}
	if e.account.PreBalance != e.account.Balance-e.account.MarketValue {
		t.Errorf("PreBalance invariant broken after settle")
	}
}

func TestUpdateQuotesRevaluesOpenPosition(t *testing.T) {
	e := newTestEngine(t, futureQuote("SHFE.rb2601"))
	e.InsertOrder(OrderRequest{
		OrderID: "open1", ExchangeID: "SHFE", InstrumentID: "rb2601",
		Direction: Buy, Offset: Open, PriceType: PriceAny,
		TimeCondition: GFD, Volume: 1,
	})

	balanceBefore := e.account.Balance
	e.UpdateQuotes("SHFE.rb2601", map[string]*Quote{
		"SHFE.rb2601": {
			Symbol: "SHFE.rb2601", Datetime: "2026-08-01 09:00:01.000000",
			LastPrice: 3010, AskPrice1: 3011, BidPrice1: 3009, PriceTick: 1,
		},
	})

	p := e.positions["SHFE.rb2601"]
	if p.LastPrice != 3010 {
		t.Errorf("LastPrice = %v, want 3010", p.LastPrice)
	}
	// the ANY buy filled at the ask, 3001
	wantFloatProfit := (3010 - 3001.0) * 1 * 10
	if p.FloatProfit != wantFloatProfit {
		t.Errorf("FloatProfit = %v, want %v", p.FloatProfit, wantFloatProfit)
	}
	if e.account.Balance == balanceBefore {
		t.Error("balance should move with mark-to-market revaluation")
	}
}

// TestUpdateQuotesCreatesPositionWithoutVolume covers a quote on a symbol
// this engine has never traded: no order, no existing position. The
// position record must still get created and a diff still emitted, so a
// later open sees a current future_margin/last_price cache instead of
// treating the symbol as untouched.
func TestUpdateQuotesCreatesPositionWithoutVolume(t *testing.T) {
	e := NewEngine("test-account", WithInitBalance(1e6))

	diffs, _ := e.UpdateQuotes("SHFE.rb2601", futureQuote("SHFE.rb2601"))

	if len(diffs) == 0 {
		t.Fatal("expected position/account diffs for a quoted symbol with no volume")
	}
	p, ok := e.positions["SHFE.rb2601"]
	if !ok {
		t.Fatal("position should be created on quote even without a trade")
	}
	if p.LastPrice != 3000 {
		t.Errorf("LastPrice = %v, want 3000", p.LastPrice)
	}
	if p.VolumeLong != 0 || p.VolumeShort != 0 {
		t.Errorf("expected zero volume, got long=%d short=%d", p.VolumeLong, p.VolumeShort)
	}
}

// TestUpdateQuotesIgnoresUnaffectedSymbol confirms only the named symbol
// is matched/revalued, even when the merged packet also carries another
// symbol's quote (e.g. an option's underlying riding along in the same
// call).
func TestUpdateQuotesIgnoresUnaffectedSymbol(t *testing.T) {
	e := NewEngine("test-account", WithInitBalance(1e6))

	packet := futureQuote("SHFE.rb2601")
	for symbol, q := range futureQuote("DCE.m2501") {
		packet[symbol] = q
	}

	e.UpdateQuotes("SHFE.rb2601", packet)

	if _, ok := e.positions["SHFE.rb2601"]; !ok {
		t.Error("named symbol should get a position record")
	}
	if _, ok := e.positions["DCE.m2501"]; ok {
		t.Error("unnamed symbol in the same packet should not be revalued")
	}
	if _, ok := e.quotes.quotes["DCE.m2501"]; !ok {
		t.Error("unnamed symbol should still be merged into the quote cache")
	}
}

func TestLookupPanicsOnMissingQuote(t *testing.T) {
	e := NewEngine("test-account")
	defer func() {
		if r := recover(); r == nil {
			t.Fatal("expected panic on missing quote")
		} else if _, ok := r.(*EngineFault); !ok {
			t.Fatalf("expected *EngineFault panic, got %T", r)
		}
	}()
	e.InsertOrder(OrderRequest{
		OrderID: "o1", ExchangeID: "SHFE", InstrumentID: "never-quoted",
		Direction: Buy, Offset: Open, PriceType: PriceAny,
		TimeCondition: GFD, Volume: 1,
	})
}

func TestInitSnapshotReflectsCurrentState(t *testing.T) {
	e := newTestEngine(t, futureQuote("SHFE.rb2601"))
	e.InsertOrder(OrderRequest{
		OrderID: "open1", ExchangeID: "SHFE", InstrumentID: "rb2601",
		Direction: Buy, Offset: Open, PriceType: PriceAny,
		TimeCondition: GFD, Volume: 1,
	})

	snap := e.InitSnapshot()
	body, ok := snap.Trade["test-account"]
	if !ok {
		t.Fatal("snapshot missing account key")
	}
	if len(body.Positions) != 1 {
		t.Errorf("expected one position in snapshot, got %d", len(body.Positions))
	}
	if _, ok := body.Accounts["CNY"]; !ok {
		t.Error("snapshot missing CNY account entry")
	}
}

func TestQuoteCacheMergeNeverErasesFields(t *testing.T) {
	c := newQuoteCache()
	c.merge(map[string]*Quote{
		"SHFE.rb2601": {Symbol: "SHFE.rb2601", Datetime: "2026-08-01 09:00:00.000000", LastPrice: 3000, VolumeMultiple: 10},
	})
	c.merge(map[string]*Quote{
		"SHFE.rb2601": {Symbol: "SHFE.rb2601", Datetime: "2026-08-01 09:00:01.000000", LastPrice: 3005},
	})

	q := c.quotes["SHFE.rb2601"]
	if q.VolumeMultiple != 10 {
		t.Errorf("VolumeMultiple should survive a packet that omits it, got %v", q.VolumeMultiple)
	}
	if q.LastPrice != 3005 {
		t.Errorf("LastPrice should update to latest, got %v", q.LastPrice)
	}
	if c.maxDatetime != "2026-08-01 09:00:01.000000" {
		t.Errorf("maxDatetime should track lexicographic max, got %v", c.maxDatetime)
	}
}

func TestOptionMarginUsesDefaultRatesWhenUnset(t *testing.T) {
	q := &Quote{InsClass: "FUTUREOPTION", VolumeMultiple: 10}
	got := optionMargin(q, 100, 3000)
	want := 100*10 + 0.12*3000*10
	if math.Abs(got-want) > 1e-9 {
		t.Errorf("optionMargin = %v, want %v", got, want)
	}
}
