// Package core implements the simulated account engine: the orderbook,
// position ledger, and account balance sheet for one trading account,
// plus the matching and accounting logic that keeps them consistent.
package core

import "math"

// Direction is the side of an order or trade.
type Direction string

const (
	Buy  Direction = "BUY"
	Sell Direction = "SELL"
)

// Offset describes whether an order opens or reduces a position.
type Offset string

const (
	Open       Offset = "OPEN"
	Close      Offset = "CLOSE"
	CloseToday Offset = "CLOSETODAY"
)

// PriceType is the pricing instruction attached to an order.
type PriceType string

const (
	PriceLimit     PriceType = "LIMIT"
	PriceAny       PriceType = "ANY"
	PriceBest      PriceType = "BEST"
	PriceFiveLevel PriceType = "FIVELEVEL"
)

// TimeCondition controls how long an order may rest in the book.
type TimeCondition string

const (
	GFD TimeCondition = "GFD"
	IOC TimeCondition = "IOC"
)

// OrderStatus is the lifecycle state of an order.
type OrderStatus string

const (
	Alive    OrderStatus = "ALIVE"
	Finished OrderStatus = "FINISHED"
)

// Rejection and terminal messages, carried verbatim from the source
// this engine was distilled from so downstream dealers see the exact
// same wording they always have.
const (
	msgInsertSucceeded    = "报单成功"
	msgUnsupportedProduct = "不支持的合约类型，TqSim 目前不支持组合，股票，etf期权模拟交易"
	msgOutsideTradingTime = "下单失败, 不在可交易时间段内"
	msgCloseTodayShort    = "平今仓手数不足"
	msgCloseHisShort      = "平昨仓手数不足"
	msgCloseShort         = "平仓手数不足"
	msgOpenFundsShort     = "开仓资金不足"
	msgMarketNoSide       = "市价指令剩余撤销"
	msgIOCCanceled        = "已撤单报单已提交"
	msgFullyFilled        = "全部成交"
	msgCanceled           = "已撤单"
	msgSettleCanceled     = "交易日结束，自动撤销当日有效的委托单（GFD）"
)

func isTodayHisSplitExchange(exchangeID string) bool {
	return exchangeID == "SHFE" || exchangeID == "INE"
}

func nan() float64 { return math.NaN() }

// Quote is the latest known market state for one symbol.
type Quote struct {
	Symbol           string  `json:"symbol"`
	Datetime         string  `json:"datetime"`
	LastPrice        float64 `json:"last_price"`
	AskPrice1        float64 `json:"ask_price1"`
	BidPrice1        float64 `json:"bid_price1"`
	PriceTick        float64 `json:"price_tick"`
	InsClass         string  `json:"ins_class"`
	VolumeMultiple   float64 `json:"volume_multiple"`
	Commission       float64 `json:"commission"`
	HasCommission    bool    `json:"has_commission,omitempty"`
	Margin           float64 `json:"margin"`
	HasMargin        bool    `json:"has_margin,omitempty"`
	UnderlyingSymbol string  `json:"underlying_symbol,omitempty"`
	// OptionMarginRate / OptionMinMarginRate parameterize the writer-side
	// margin formula for options; see optionMargin in margin.go. Carried
	// as explicit quote fields since option margin cannot be derived from
	// last_price and volume_multiple alone.
	OptionMarginRate    float64 `json:"option_margin_rate,omitempty"`
	OptionMinMarginRate float64 `json:"option_min_margin_rate,omitempty"`
}

func (q *Quote) isOption() bool {
	return len(q.InsClass) >= 6 && q.InsClass[len(q.InsClass)-6:] == "OPTION"
}

// merge applies src on top of q, last-write-wins per field, leaving any
// zero-valued field in src untouched (so a partial quote packet never
// erases a field it doesn't carry).
func (q *Quote) merge(src *Quote) {
	if src.Datetime != "" {
		q.Datetime = src.Datetime
	}
	if src.LastPrice != 0 {
		q.LastPrice = src.LastPrice
	}
	if src.AskPrice1 != 0 {
		q.AskPrice1 = src.AskPrice1
	}
	if src.BidPrice1 != 0 {
		q.BidPrice1 = src.BidPrice1
	}
	if src.PriceTick != 0 {
		q.PriceTick = src.PriceTick
	}
	if src.InsClass != "" {
		q.InsClass = src.InsClass
	}
	if src.VolumeMultiple != 0 {
		q.VolumeMultiple = src.VolumeMultiple
	}
	if src.HasCommission {
		q.Commission = src.Commission
		q.HasCommission = true
	}
	if src.HasMargin {
		q.Margin = src.Margin
		q.HasMargin = true
	}
	if src.UnderlyingSymbol != "" {
		q.UnderlyingSymbol = src.UnderlyingSymbol
	}
	if src.OptionMarginRate != 0 {
		q.OptionMarginRate = src.OptionMarginRate
	}
	if src.OptionMinMarginRate != 0 {
		q.OptionMinMarginRate = src.OptionMinMarginRate
	}
}

// Account is the single-currency balance sheet owned by one engine
// instance.
type Account struct {
	Currency      string  `json:"currency"`
	PreBalance    float64 `json:"pre_balance"`
	StaticBalance float64 `json:"static_balance"`
	Balance       float64 `json:"balance"`
	Available     float64 `json:"available"`

	CloseProfit float64 `json:"close_profit"`
	Commission  float64 `json:"commission"`
	Premium     float64 `json:"premium"`
	Deposit     float64 `json:"deposit"`
	Withdraw    float64 `json:"withdraw"`

	FloatProfit    float64 `json:"float_profit"`
	PositionProfit float64 `json:"position_profit"`
	Margin         float64 `json:"margin"`
	MarketValue    float64 `json:"market_value"`

	FrozenMargin     float64 `json:"frozen_margin"`
	FrozenCommission float64 `json:"frozen_commission"`
	FrozenPremium    float64 `json:"frozen_premium"`

	RiskRatio float64 `json:"risk_ratio"`

	// Opaque pass-through fields from the upstream CTP gateway; this
	// engine never fills them in.
	CTPBalance   float64 `json:"ctp_balance"`
	CTPAvailable float64 `json:"ctp_available"`
}

func newAccount(initBalance float64) *Account {
	return &Account{
		Currency:      "CNY",
		PreBalance:    initBalance,
		StaticBalance: initBalance,
		Balance:       initBalance,
		Available:     initBalance,
		CTPBalance:    math.NaN(),
		CTPAvailable:  math.NaN(),
	}
}

func (a *Account) copy() *Account {
	cp := *a
	return &cp
}

// Position is the per-symbol ledger of raw volume counters and the
// derived aggregates computed from them.
type Position struct {
	ExchangeID   string `json:"exchange_id"`
	InstrumentID string `json:"instrument_id"`

	VolumeLongToday  int64 `json:"volume_long_today"`
	VolumeLongHis    int64 `json:"volume_long_his"`
	VolumeLong       int64 `json:"volume_long"`
	VolumeShortToday int64 `json:"volume_short_today"`
	VolumeShortHis   int64 `json:"volume_short_his"`
	VolumeShort      int64 `json:"volume_short"`

	VolumeLongFrozenToday  int64 `json:"volume_long_frozen_today"`
	VolumeLongFrozenHis    int64 `json:"volume_long_frozen_his"`
	VolumeLongFrozen       int64 `json:"volume_long_frozen"`
	VolumeShortFrozenToday int64 `json:"volume_short_frozen_today"`
	VolumeShortFrozenHis   int64 `json:"volume_short_frozen_his"`
	VolumeShortFrozen      int64 `json:"volume_short_frozen"`

	// pos_{long,short}_{today,his} mirror the volume_* counters at the
	// moment volumes were last recomputed; kept distinct because the
	// source keeps them distinct (pos_* lag volume_* during a partial
	// freeze-only update).
	PosLongToday  int64 `json:"pos_long_today"`
	PosLongHis    int64 `json:"pos_long_his"`
	PosShortToday int64 `json:"pos_short_today"`
	PosShortHis   int64 `json:"pos_short_his"`

	OpenPriceLong      float64 `json:"open_price_long"`
	OpenPriceShort     float64 `json:"open_price_short"`
	OpenCostLong       float64 `json:"open_cost_long"`
	OpenCostShort      float64 `json:"open_cost_short"`
	PositionPriceLong  float64 `json:"position_price_long"`
	PositionPriceShort float64 `json:"position_price_short"`
	PositionCostLong   float64 `json:"position_cost_long"`
	PositionCostShort  float64 `json:"position_cost_short"`

	FloatProfitLong     float64 `json:"float_profit_long"`
	FloatProfitShort    float64 `json:"float_profit_short"`
	FloatProfit         float64 `json:"float_profit"`
	PositionProfitLong  float64 `json:"position_profit_long"`
	PositionProfitShort float64 `json:"position_profit_short"`
	PositionProfit      float64 `json:"position_profit"`
	MarginLong          float64 `json:"margin_long"`
	MarginShort         float64 `json:"margin_short"`
	Margin              float64 `json:"margin"`
	MarketValueLong     float64 `json:"market_value_long"`
	MarketValueShort    float64 `json:"market_value_short"`
	MarketValue         float64 `json:"market_value"`

	LastPrice           float64 `json:"last_price"`
	UnderlyingLastPrice float64 `json:"underlying_last_price"`
	FutureMargin        float64 `json:"-"`
}

func (p *Position) symbol() string {
	return p.ExchangeID + "." + p.InstrumentID
}

func newPosition(exchangeID, instrumentID string) *Position {
	return &Position{
		ExchangeID:          exchangeID,
		InstrumentID:        instrumentID,
		OpenPriceLong:       math.NaN(),
		OpenPriceShort:      math.NaN(),
		PositionPriceLong:   math.NaN(),
		PositionPriceShort:  math.NaN(),
		LastPrice:           math.NaN(),
		UnderlyingLastPrice: math.NaN(),
		FutureMargin:        math.NaN(),
	}
}

func (p *Position) copy() *Position {
	cp := *p
	return &cp
}

// Order is one resting or terminal order in the book.
type Order struct {
	OrderID         string        `json:"order_id"`
	ExchangeOrderID string        `json:"exchange_order_id"`
	UserID          string        `json:"user_id"`
	ExchangeID      string        `json:"exchange_id"`
	InstrumentID    string        `json:"instrument_id"`
	Direction       Direction     `json:"direction"`
	Offset          Offset        `json:"offset"`
	PriceType       PriceType     `json:"price_type"`
	LimitPrice      float64       `json:"limit_price,omitempty"`
	TimeCondition   TimeCondition `json:"time_condition"`
	VolumeOrign     int64         `json:"volume_orign"`
	VolumeLeft      int64         `json:"volume_left"`
	FrozenMargin    float64       `json:"frozen_margin"`
	FrozenPremium   float64       `json:"frozen_premium"`
	LastMsg         string        `json:"last_msg"`
	Status          OrderStatus   `json:"status"`
	InsertDateTime  int64         `json:"insert_date_time"`
}

func (o *Order) symbol() string {
	return o.ExchangeID + "." + o.InstrumentID
}

func (o *Order) copy() *Order {
	cp := *o
	return &cp
}

// Trade is one fill produced by the matcher.
type Trade struct {
	OrderID         string    `json:"order_id"`
	TradeID         string    `json:"trade_id"`
	ExchangeTradeID string    `json:"exchange_trade_id"`
	UserID          string    `json:"user_id"`
	ExchangeID      string    `json:"exchange_id"`
	InstrumentID    string    `json:"instrument_id"`
	Direction       Direction `json:"direction"`
	Offset          Offset    `json:"offset"`
	Price           float64   `json:"price"`
	Volume          int64     `json:"volume"`
	TradeDateTime   int64     `json:"trade_date_time"`
	Commission      float64   `json:"commission"`
}

func (t *Trade) copy() *Trade {
	cp := *t
	return &cp
}

// OrderRequest is the caller-supplied intake for InsertOrder.
type OrderRequest struct {
	OrderID       string
	UserID        string
	ExchangeID    string
	InstrumentID  string
	Direction     Direction
	Offset        Offset
	PriceType     PriceType
	LimitPrice    float64
	TimeCondition TimeCondition
	Volume        int64
}
