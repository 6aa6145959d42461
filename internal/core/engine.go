package core

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/epic1st/rtx/backend/logging"
)

// Clock supplies the two pieces of wall-clock context this engine needs
// but never reads from the system clock itself: the timestamp stamped
// onto new orders/trades, and whether a symbol is currently tradable.
// Both are derived from the quote feed's own maximum datetime rather
// than time.Now, so a replayed historical feed produces identical
// results to a live one.
type Clock interface {
	TradeTimestamp(maxDatetime string) int64
	IsInTradingTime(q *Quote, maxDatetime string) bool
}

type defaultClock struct{}

// TradeTimestamp parses the feed's "YYYY-MM-DD HH:MM:SS.ffffff" maximum
// datetime into a Unix nanosecond timestamp. Returns 0 if the feed has
// not produced a well-formed datetime yet.
func (defaultClock) TradeTimestamp(maxDatetime string) int64 {
	t, err := time.Parse("2006-01-02 15:04:05.000000", maxDatetime)
	if err != nil {
		return 0
	}
	return t.UnixNano()
}

// IsInTradingTime has no exchange calendar to consult in this engine;
// callers that need session-aware rejection should supply their own
// Clock via WithClock.
func (defaultClock) IsInTradingTime(q *Quote, maxDatetime string) bool {
	return true
}

// Option configures an Engine at construction time.
type Option func(*Engine)

// WithInitBalance sets the opening balance credited to the account when
// the engine is created. Defaults to 1e7.
func WithInitBalance(balance float64) Option {
	return func(e *Engine) { e.account = newAccount(balance) }
}

// WithClock overrides the default no-calendar Clock.
func WithClock(c Clock) Option {
	return func(e *Engine) { e.clock = c }
}

// WithLogger attaches a structured logger for order lifecycle and
// settlement events. Without one the engine logs nothing; it never
// falls back to the standard library logger.
func WithLogger(l *logging.Logger) Option {
	return func(e *Engine) { e.log = l }
}

// Engine is the single-threaded matching and accounting state machine
// for one simulated trading account. Every exported method is a single
// synchronous call: no goroutines, no timers, nothing runs in the
// background. Each call returns the diffs and order events it produced
// (a copy of an order when it enters the book and again when it
// finishes), and the caller is responsible for delivering them onward.
type Engine struct {
	accountKey string
	account    *Account
	positions  map[string]*Position
	orders     map[string]map[string]*Order
	orderIndex map[string]string // orderID -> symbol, for CancelOrder
	trades     []*Trade          // fills since the last Settle, for the trade log

	quotes *quoteCache
	sink   *diffSink
	clock  Clock
	log    *logging.Logger

	nextExchangeOrderID int64
}

// logf emits a structured log entry when a logger is attached, a no-op
// otherwise. The engine never calls log.Printf directly.
func (e *Engine) logf(level logging.LogLevel, message string, fields ...logging.Field) {
	if e.log == nil {
		return
	}
	fields = append(fields, logging.AccountID(e.accountKey))
	switch level {
	case logging.WARN:
		e.log.Warn(message, fields...)
	default:
		e.log.Info(message, fields...)
	}
}

// TradeLog is the point-in-time snapshot handed back by Settle, taken
// before any end-of-day rolling is applied.
type TradeLog struct {
	Trades    []*Trade
	Account   *Account
	Positions map[string]*Position
}

// NewEngine creates an engine for one account, defaulting to a 1e7
// opening balance and a calendar-less clock.
func NewEngine(accountKey string, opts ...Option) *Engine {
	e := &Engine{
		accountKey: accountKey,
		account:    newAccount(1e7),
		positions:  make(map[string]*Position),
		orders:     make(map[string]map[string]*Order),
		orderIndex: make(map[string]string),
		quotes:     newQuoteCache(),
		clock:      defaultClock{},
	}
	e.sink = &diffSink{accountKey: accountKey}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// InitSnapshot returns the full current state in the same envelope
// shape diffs are emitted in, for a consumer bootstrapping from empty.
func (e *Engine) InitSnapshot() InitSnapshot {
	positions := make(map[string]*Position, len(e.positions))
	for symbol, p := range e.positions {
		positions[symbol] = p.copy()
	}
	orders := make(map[string]*Order)
	for _, book := range e.orders {
		for id, o := range book {
			orders[id] = o.copy()
		}
	}
	return InitSnapshot{Trade: map[string]InitAccountTrade{
		e.accountKey: {
			Accounts:  map[string]*Account{"CNY": e.account.copy()},
			Positions: positions,
			Orders:    orders,
			Trades:    map[string]*Trade{},
		},
	}}
}

// AccountKey returns the account this engine instance owns.
func (e *Engine) AccountKey() string {
	return e.accountKey
}

func (e *Engine) tradeTimestamp() int64 {
	return e.clock.TradeTimestamp(e.quotes.maxDatetime)
}

func splitSymbol(symbol string) (exchangeID, instrumentID string) {
	exchangeID, instrumentID, _ = strings.Cut(symbol, ".")
	return exchangeID, instrumentID
}

// ensurePosition returns the position for symbol, lazily creating it.
// A freshly created position adopts the quote's current mark so the
// very first revaluation has a sensible baseline instead of NaN.
func (e *Engine) ensurePosition(symbol string, q, underlyingQ *Quote) *Position {
	p, ok := e.positions[symbol]
	if !ok {
		exchangeID, instrumentID := splitSymbol(symbol)
		p = newPosition(exchangeID, instrumentID)
		e.positions[symbol] = p
	}
	if math.IsNaN(p.LastPrice) {
		p.FutureMargin = futureMargin(q)
		p.LastPrice = q.LastPrice
		if underlyingQ != nil {
			p.UnderlyingLastPrice = underlyingQ.LastPrice
		}
	}
	return p
}

// InsertOrder books a new order, validates it, and attempts to match it
// immediately against the current top of book.
func (e *Engine) InsertOrder(req OrderRequest) ([]Diff, []*Order) {
	symbol := req.ExchangeID + "." + req.InstrumentID
	q, underlyingQ := e.quotes.lookup(symbol)

	o := e.preInsertOrder(req)
	e.sink.sendOrder(o)
	if e.orders[symbol] == nil {
		e.orders[symbol] = make(map[string]*Order)
	}
	e.orders[symbol][o.OrderID] = o
	e.orderIndex[o.OrderID] = symbol
	e.sink.event(o)

	e.insertOrderValidate(o, symbol, q, underlyingQ)
	if o.Status == Alive {
		e.matchOrder(o, q, underlyingQ)
	}
	if o.Status == Finished {
		e.sink.event(o)
		delete(e.orders[symbol], o.OrderID)
		delete(e.orderIndex, o.OrderID)
	}
	return e.sink.flush()
}

func (e *Engine) preInsertOrder(req OrderRequest) *Order {
	e.nextExchangeOrderID++
	return &Order{
		OrderID:         req.OrderID,
		ExchangeOrderID: strconv.FormatInt(e.nextExchangeOrderID, 10),
		UserID:          req.UserID,
		ExchangeID:      req.ExchangeID,
		InstrumentID:    req.InstrumentID,
		Direction:       req.Direction,
		Offset:          req.Offset,
		PriceType:       req.PriceType,
		LimitPrice:      req.LimitPrice,
		TimeCondition:   req.TimeCondition,
		VolumeOrign:     req.Volume,
		VolumeLeft:      req.Volume,
		LastMsg:         msgInsertSucceeded,
		Status:          Alive,
		InsertDateTime:  e.tradeTimestamp(),
	}
}

// insertOrderValidate runs the sequential checks an order must clear
// before it can rest in the book: supported product, trading hours,
// closing volume availability, and funds/margin availability.
func (e *Engine) insertOrderValidate(o *Order, symbol string, q, underlyingQ *Quote) {
	p := e.ensurePosition(symbol, q, underlyingQ)

	if (!q.HasCommission || !q.HasMargin) && !q.isOption() {
		o.LastMsg = msgUnsupportedProduct
		o.Status = Finished
		e.onOrderFailed(o, p)
		return
	}
	if !e.clock.IsInTradingTime(q, e.quotes.maxDatetime) {
		o.LastMsg = msgOutsideTradingTime
		o.Status = Finished
		e.onOrderFailed(o, p)
		return
	}

	if o.Offset == Open {
		e.validateOpen(o, p, q, underlyingQ)
		return
	}
	e.validateClose(o, p)
}

func (e *Engine) validateOpen(o *Order, p *Position, q, underlyingQ *Quote) {
	var frozenMargin, frozenPremium float64
	volume := float64(o.VolumeOrign)

	switch {
	case q.isOption() && o.Direction == Sell:
		var underlyingMark float64
		if underlyingQ != nil {
			underlyingMark = underlyingQ.LastPrice
		}
		frozenMargin = volume * optionMargin(q, q.LastPrice, underlyingMark)
	case q.isOption():
		price := q.LastPrice
		if o.PriceType != PriceAny {
			price = o.LimitPrice
		}
		frozenPremium = volume * q.VolumeMultiple * price
	default:
		frozenMargin = volume * futureMargin(q)
	}

	if frozenMargin+frozenPremium > e.account.Available {
		o.FrozenMargin, o.FrozenPremium = 0, 0
		o.LastMsg = msgOpenFundsShort
		o.Status = Finished
		e.onOrderFailed(o, p)
		return
	}

	o.FrozenMargin, o.FrozenPremium = frozenMargin, frozenPremium
	e.accountByOrder(frozenMargin, frozenPremium)
	e.sink.sendAccount(e.account)
}

func (e *Engine) validateClose(o *Order, p *Position) {
	volumeToday, volumeHis, frozenToday, frozenHis := closingSideFields(p, o.Direction)

	if isTodayHisSplitExchange(o.ExchangeID) {
		var available int64
		var msg string
		if o.Offset == CloseToday {
			available, msg = *volumeToday-*frozenToday, msgCloseTodayShort
		} else {
			available, msg = *volumeHis-*frozenHis, msgCloseHisShort
		}
		if o.VolumeOrign > available {
			o.LastMsg = msg
			o.Status = Finished
			e.onOrderFailed(o, p)
			return
		}
	} else {
		available := (*volumeToday + *volumeHis) - (*frozenToday + *frozenHis)
		if o.VolumeOrign > available {
			o.LastMsg = msgCloseShort
			o.Status = Finished
			e.onOrderFailed(o, p)
			return
		}
	}

	reserveCloseFrozen(volumeToday, volumeHis, frozenToday, frozenHis, o.ExchangeID, o.Offset, o.VolumeOrign)
	e.recomputePositionVolumeFrozen(p)
	e.sink.sendPosition(p)
}

// CancelOrder cancels a resting order. A no-op if the order is unknown
// or has already reached a terminal state.
func (e *Engine) CancelOrder(orderID string) ([]Diff, []*Order) {
	symbol, ok := e.orderIndex[orderID]
	if ok {
		if o := e.orders[symbol][orderID]; o != nil && o.Status == Alive {
			o.LastMsg = msgCanceled
			o.Status = Finished
			e.onOrderFailed(o, e.positions[symbol])
			e.sink.event(o)
			delete(e.orders[symbol], orderID)
			delete(e.orderIndex, orderID)
		}
	}
	return e.sink.flush()
}

// onOrderFailed releases whatever the order had reserved (frozen
// margin/premium on the account for an OPEN order, frozen volume on the
// position for a CLOSE order) and sends the resulting diffs.
func (e *Engine) onOrderFailed(o *Order, p *Position) {
	origFrozenMargin, origFrozenPremium := o.FrozenMargin, o.FrozenPremium
	o.FrozenMargin, o.FrozenPremium = 0, 0
	e.sink.sendOrder(o)
	e.logf(logging.WARN, "order rejected", logging.OrderID(o.OrderID), logging.Symbol(o.symbol()), logging.String("reason", o.LastMsg))

	if o.Offset == Open {
		e.accountByOrder(-origFrozenMargin, -origFrozenPremium)
		e.sink.sendAccount(e.account)
		return
	}
	if p == nil {
		return
	}
	_, _, frozenToday, frozenHis := closingSideFields(p, o.Direction)
	if isTodayHisSplitExchange(o.ExchangeID) {
		if o.Offset == CloseToday {
			*frozenToday -= o.VolumeOrign
		} else {
			*frozenHis -= o.VolumeOrign
		}
	} else {
		releaseCloseFrozen(frozenToday, frozenHis, o.VolumeOrign)
	}
	e.recomputePositionVolumeFrozen(p)
	e.sink.sendPosition(p)
}

// onOrderTraded books a full fill: it finalizes the order, updates the
// position's raw counters and cost bases, realizes commission/premium/
// close profit on the account, and revalues the position against the
// new fill.
func (e *Engine) onOrderTraded(o *Order, t *Trade, q, underlyingQ *Quote) {
	origFrozenMargin, origFrozenPremium := o.FrozenMargin, o.FrozenPremium
	o.FrozenMargin, o.FrozenPremium = 0, 0
	o.VolumeLeft = 0
	o.LastMsg = msgFullyFilled
	o.Status = Finished
	e.sink.sendOrder(o)
	e.logf(logging.INFO, "order filled", logging.OrderID(o.OrderID), logging.TradeID(t.TradeID), logging.Symbol(o.symbol()))

	p := e.positions[o.symbol()]
	volume := float64(o.VolumeOrign)
	notional := t.Price * volume * q.VolumeMultiple

	if o.Offset == Open {
		if o.Direction == Buy {
			p.VolumeLongToday += o.VolumeOrign
			p.OpenCostLong += notional
			p.PositionCostLong += notional
		} else {
			p.VolumeShortToday += o.VolumeOrign
			p.OpenCostShort += notional
			p.PositionCostShort += notional
		}
		e.accountByOrder(-origFrozenMargin, -origFrozenPremium)
		e.accountByTrade(t.Commission, premium(t, q), 0)

		var buyOpen, sellOpen int64
		if o.Direction == Buy {
			buyOpen = o.VolumeOrign
		} else {
			sellOpen = o.VolumeOrign
		}
		var preUnderlying, underlying float64
		if underlyingQ != nil {
			preUnderlying, underlying = underlyingQ.LastPrice, p.UnderlyingLastPrice
		}
		e.positionAccountDelta(p, q, underlyingQ,
			t.Price, p.LastPrice, preUnderlying, underlying,
			buyOpen, 0, sellOpen, 0)
	} else {
		cp := closeProfit(t, q, p)

		volumeToday, volumeHis, frozenToday, frozenHis := closingSideFields(p, o.Direction)
		if isTodayHisSplitExchange(o.ExchangeID) {
			if o.Offset == CloseToday {
				*frozenToday -= o.VolumeOrign
				*volumeToday -= o.VolumeOrign
			} else {
				*frozenHis -= o.VolumeOrign
				*volumeHis -= o.VolumeOrign
			}
		} else {
			consumeCloseFrozen(volumeToday, volumeHis, frozenToday, frozenHis, o.VolumeOrign)
		}

		if o.Direction == Sell {
			p.OpenCostLong -= p.OpenPriceLong * volume * q.VolumeMultiple
			p.PositionCostLong -= p.PositionPriceLong * volume * q.VolumeMultiple
		} else {
			p.OpenCostShort -= p.OpenPriceShort * volume * q.VolumeMultiple
			p.PositionCostShort -= p.PositionPriceShort * volume * q.VolumeMultiple
		}

		e.accountByTrade(t.Commission, premium(t, q), cp)

		var buyClose, sellClose int64
		if o.Direction == Buy {
			buyClose = o.VolumeOrign
		} else {
			sellClose = o.VolumeOrign
		}
		var preUnderlying float64
		if underlyingQ != nil {
			preUnderlying = p.UnderlyingLastPrice
		}
		e.positionAccountDelta(p, q, underlyingQ,
			p.LastPrice, 0, preUnderlying, 0,
			0, buyClose, 0, sellClose)
	}

	e.sink.sendPosition(p)
	e.sink.sendAccount(e.account)
	e.trades = append(e.trades, t.copy())
}

// UpdateQuotes merges packet into the cache (which may carry entries for
// more than just symbol, e.g. an option's underlying) but only matches
// resting orders and revalues the position for the named symbol, per
// the "update_quotes(symbol, pack)" contract: a quote update names one
// affected instrument even though its pack can carry supporting quotes.
func (e *Engine) UpdateQuotes(symbol string, packet map[string]*Quote) ([]Diff, []*Order) {
	e.quotes.merge(packet)

	q, ok := e.quotes.quotes[symbol]
	if !ok || math.IsNaN(q.LastPrice) {
		return e.sink.flush()
	}
	var underlyingQ *Quote
	if q.isOption() {
		underlyingQ = e.quotes.quotes[q.UnderlyingSymbol]
	}
	e.matchSymbolOrders(symbol, q, underlyingQ)
	e.revaluePosition(symbol, q, underlyingQ)
	return e.sink.flush()
}

func (e *Engine) matchSymbolOrders(symbol string, q, underlyingQ *Quote) {
	book := e.orders[symbol]
	for id, o := range book {
		e.matchOrder(o, q, underlyingQ)
		if o.Status == Finished {
			e.sink.event(o)
			delete(book, id)
			delete(e.orderIndex, id)
		}
	}
}

// revaluePosition marks an instrument's position to the latest quote.
// It always ensures a position record exists and always emits diffs for
// a non-NaN last_price, even when the position carries no volume yet,
// so future opens see current cache fields and a quoted-but-never-traded
// symbol still shows up in the position/account snapshots.
func (e *Engine) revaluePosition(symbol string, q, underlyingQ *Quote) {
	p := e.ensurePosition(symbol, q, underlyingQ)

	newFutureMargin := futureMargin(q)
	newUnderlyingLast := p.UnderlyingLastPrice
	var underlyingChanged bool
	if underlyingQ != nil {
		newUnderlyingLast = underlyingQ.LastPrice
		underlyingChanged = newUnderlyingLast != p.UnderlyingLastPrice
	}
	lastPriceChanged := q.LastPrice != p.LastPrice
	marginChanged := math.IsNaN(p.FutureMargin) || newFutureMargin != p.FutureMargin
	hasVolume := p.VolumeLong > 0 || p.VolumeShort > 0

	if hasVolume && (lastPriceChanged || marginChanged || underlyingChanged) {
		preLast, preUnderlying := p.LastPrice, p.UnderlyingLastPrice
		p.FutureMargin = newFutureMargin
		p.LastPrice = q.LastPrice
		p.UnderlyingLastPrice = newUnderlyingLast
		e.positionAccountDelta(p, q, underlyingQ, preLast, q.LastPrice, preUnderlying, newUnderlyingLast, 0, 0, 0, 0)
	} else {
		p.FutureMargin = newFutureMargin
		p.LastPrice = q.LastPrice
		p.UnderlyingLastPrice = newUnderlyingLast
	}

	e.sink.sendPosition(p)
	e.sink.sendAccount(e.account)
}

// Settle runs end-of-day processing: it snapshots the trade log,
// cancels every resting order, and rolls the account and every
// position forward into the next trading day.
func (e *Engine) Settle() ([]Diff, []*Order, TradeLog) {
	e.logf(logging.INFO, "settlement started", logging.Int("open_orders", len(e.orderIndex)), logging.Int("trades_today", len(e.trades)))
	log := TradeLog{
		Trades:    append([]*Trade(nil), e.trades...),
		Account:   e.account.copy(),
		Positions: make(map[string]*Position, len(e.positions)),
	}
	for symbol, p := range e.positions {
		log.Positions[symbol] = p.copy()
	}
	e.trades = nil

	for symbol, book := range e.orders {
		for id, o := range book {
			o.FrozenMargin, o.FrozenPremium = 0, 0
			o.LastMsg = msgSettleCanceled
			o.Status = Finished
			e.sink.sendOrder(o)
			e.sink.event(o)
			delete(book, id)
		}
		delete(e.orders, symbol)
	}
	e.orderIndex = make(map[string]string)

	a := e.account
	a.PreBalance = a.Balance - a.MarketValue
	a.CloseProfit, a.Commission, a.Premium = 0, 0, 0
	a.FrozenMargin, a.FrozenPremium = 0, 0
	a.StaticBalance = a.PreBalance
	a.PositionProfit = 0
	a.RiskRatio = a.Margin / a.Balance
	a.Available = a.StaticBalance - a.Margin
	e.sink.sendAccount(a)

	for symbol, p := range e.positions {
		e.rollPosition(symbol, p)
		e.sink.sendPosition(p)
	}

	diffs, events := e.sink.flush()
	e.logf(logging.INFO, "settlement complete", logging.Float64("balance", e.account.Balance))
	return diffs, events, log
}

// rollPosition absorbs today's volume into history and re-bases cost
// at the settlement mark. volume_multiple is looked up fresh rather
// than cached on the position: a position whose symbol was never
// quoted stays NaN here, by design, rather than being silently fixed up.
func (e *Engine) rollPosition(symbol string, p *Position) {
	p.VolumeLongFrozenToday, p.VolumeLongFrozenHis, p.VolumeLongFrozen = 0, 0, 0
	p.VolumeShortFrozenToday, p.VolumeShortFrozenHis, p.VolumeShortFrozen = 0, 0, 0

	p.VolumeLongHis = p.VolumeLong
	p.VolumeShortHis = p.VolumeShort
	p.VolumeLongToday, p.VolumeShortToday = 0, 0
	p.PosLongHis, p.PosShortHis = p.VolumeLongHis, p.VolumeShortHis
	p.PosLongToday, p.PosShortToday = 0, 0

	p.PositionPriceLong = p.LastPrice
	p.PositionPriceShort = p.LastPrice

	mult := math.NaN()
	if q, ok := e.quotes.quotes[symbol]; ok {
		mult = q.VolumeMultiple
	}
	p.PositionCostLong = p.LastPrice * float64(p.VolumeLong) * mult
	p.PositionCostShort = p.LastPrice * float64(p.VolumeShort) * mult

	p.PositionProfitLong, p.PositionProfitShort, p.PositionProfit = 0, 0, 0
}
