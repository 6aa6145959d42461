package cache

import (
	"context"
	"time"

	"github.com/epic1st/rtx/backend/internal/core"
)

// QuoteFeed publishes and fetches the shared market-data packet that
// every engine process in a deployment feeds into core.Engine.UpdateQuotes,
// so a quote vendor gateway and any number of account engines can run as
// separate processes instead of one monolith.
type QuoteFeed struct {
	cache *RedisCache
	ttl   time.Duration
}

// NewQuoteFeed wraps an existing RedisCache for quote distribution.
func NewQuoteFeed(cache *RedisCache) *QuoteFeed {
	return &QuoteFeed{cache: cache, ttl: 24 * time.Hour}
}

// Publish stores the latest snapshot for each symbol in the packet so
// that engines starting up later can fetch a current baseline instead
// of waiting for the next tick.
func (f *QuoteFeed) Publish(ctx context.Context, packet map[string]core.Quote) error {
	items := make(map[string]interface{}, len(packet))
	for symbol, q := range packet {
		items["quote:"+symbol] = q
	}
	return f.cache.SetMulti(ctx, items, f.ttl)
}

// Fetch retrieves the last known snapshot for the given symbols,
// skipping any symbol this feed has never seen.
func (f *QuoteFeed) Fetch(ctx context.Context, symbols []string) (map[string]core.Quote, error) {
	keys := make([]string, len(symbols))
	for i, s := range symbols {
		keys[i] = "quote:" + s
	}
	raw, err := f.cache.GetMulti(ctx, keys)
	if err != nil {
		return nil, err
	}

	result := make(map[string]core.Quote, len(raw))
	for i, key := range keys {
		val, ok := raw[key]
		if !ok {
			continue
		}
		m, ok := val.(map[string]interface{})
		if !ok {
			continue
		}
		result[symbols[i]] = quoteFromMap(m)
	}
	return result, nil
}

// ToEnginePacket converts a fetched snapshot into the pointer-map shape
// core.Engine.UpdateQuotes expects.
func ToEnginePacket(packet map[string]core.Quote) map[string]*core.Quote {
	out := make(map[string]*core.Quote, len(packet))
	for symbol, q := range packet {
		q := q
		out[symbol] = &q
	}
	return out
}

func quoteFromMap(m map[string]interface{}) core.Quote {
	get := func(k string) float64 {
		v, _ := m[k].(float64)
		return v
	}
	getStr := func(k string) string {
		v, _ := m[k].(string)
		return v
	}
	getBool := func(k string) bool {
		v, _ := m[k].(bool)
		return v
	}
	return core.Quote{
		Symbol:              getStr("symbol"),
		Datetime:            getStr("datetime"),
		LastPrice:           get("last_price"),
		AskPrice1:           get("ask_price1"),
		BidPrice1:           get("bid_price1"),
		PriceTick:           get("price_tick"),
		InsClass:            getStr("ins_class"),
		VolumeMultiple:      get("volume_multiple"),
		Commission:          get("commission"),
		HasCommission:       getBool("has_commission"),
		Margin:              get("margin"),
		HasMargin:           getBool("has_margin"),
		UnderlyingSymbol:    getStr("underlying_symbol"),
		OptionMarginRate:    get("option_margin_rate"),
		OptionMinMarginRate: get("option_min_margin_rate"),
	}
}
