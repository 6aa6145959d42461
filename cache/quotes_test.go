package cache

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/epic1st/rtx/backend/internal/core"
)

// TestToEnginePacket verifies the pointer-map conversion QuoteFeed.Fetch's
// caller needs before calling core.Engine.UpdateQuotes.
func TestToEnginePacket(t *testing.T) {
	packet := map[string]core.Quote{
		"SHFE.cu2501": {Symbol: "SHFE.cu2501", LastPrice: 71230},
		"DCE.m2501":   {Symbol: "DCE.m2501", LastPrice: 3120},
	}

	out := ToEnginePacket(packet)

	if len(out) != len(packet) {
		t.Fatalf("expected %d entries, got %d", len(packet), len(out))
	}
	for symbol, q := range packet {
		ptr, ok := out[symbol]
		if !ok {
			t.Fatalf("missing %s in converted packet", symbol)
		}
		if *ptr != q {
			t.Errorf("%s: expected %+v, got %+v", symbol, q, *ptr)
		}
	}

	// Each pointer must be distinct so mutating one entry can never leak
	// into another symbol's quote.
	out["SHFE.cu2501"].LastPrice = 1
	if out["DCE.m2501"].LastPrice == 1 {
		t.Error("mutating one converted quote affected another")
	}
}

// TestQuoteFromMap exercises the decode path a value takes after round
// tripping through Redis: core.Quote -> JSON -> map[string]interface{},
// which is the shape go-redis hands back via JSON-decoded GetMulti results.
func TestQuoteFromMap(t *testing.T) {
	t.Run("RoundTrip", func(t *testing.T) {
		original := core.Quote{
			Symbol:              "SHFE.cu2501",
			Datetime:            "2026-08-01 09:00:00.000000",
			LastPrice:           71230,
			AskPrice1:           71240,
			BidPrice1:           71220,
			PriceTick:           10,
			InsClass:            "FUTURE",
			VolumeMultiple:      5,
			Commission:          12.5,
			HasCommission:       true,
			Margin:              0.1,
			HasMargin:           true,
			UnderlyingSymbol:    "SHFE.cu",
			OptionMarginRate:    0.15,
			OptionMinMarginRate: 0.05,
		}

		m := quoteToMap(t, original)
		got := quoteFromMap(m)

		if got != original {
			t.Errorf("round trip mismatch:\n got  %+v\n want %+v", got, original)
		}
	})

	// A quote that never set Commission/Margin must decode with the flags
	// false, not true-because-the-JSON-key-happened-to-be-present — this
	// is what lets core.Quote.merge tell "not provided" from "provided as
	// zero" after a value has been through the shared feed.
	t.Run("UnsetOptionalFieldsStayUnset", func(t *testing.T) {
		original := core.Quote{Symbol: "DCE.m2501", LastPrice: 3120}

		m := quoteToMap(t, original)
		got := quoteFromMap(m)

		if got.HasCommission {
			t.Error("expected HasCommission false when never set")
		}
		if got.HasMargin {
			t.Error("expected HasMargin false when never set")
		}
	})

	t.Run("MissingKeysDecodeAsZeroValues", func(t *testing.T) {
		got := quoteFromMap(map[string]interface{}{"symbol": "DCE.m2501"})
		if got.Symbol != "DCE.m2501" {
			t.Errorf("expected symbol DCE.m2501, got %q", got.Symbol)
		}
		if got.LastPrice != 0 || got.HasCommission || got.HasMargin {
			t.Errorf("expected zero values for absent keys, got %+v", got)
		}
	})
}

// quoteToMap simulates what a RedisCache.GetMulti caller actually receives:
// a value that was json.Marshal'd on Set and json.Unmarshal'd into
// interface{} on Get, losing its concrete Go type along the way.
func quoteToMap(t *testing.T, q core.Quote) map[string]interface{} {
	t.Helper()
	data, err := json.Marshal(q)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	var m map[string]interface{}
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	return m
}

// TestQuoteFeedFetchSkipsUnknownSymbols documents Fetch's contract without
// requiring a live Redis instance: NewRedisCache dials out in its
// constructor, so the cache-hit/miss paths below are exercised indirectly
// through quoteFromMap/ToEnginePacket above instead of a *RedisCache,
// matching the teacher's own cache_test.go, which likewise skips the
// Redis-backed tier when no server is reachable and tests the in-process
// tier directly.
func TestQuoteFeedFetchSkipsUnknownSymbols(t *testing.T) {
	raw := map[string]interface{}{
		"quote:SHFE.cu2501": map[string]interface{}{"symbol": "SHFE.cu2501", "last_price": 71230.0},
	}

	result := make(map[string]core.Quote, len(raw))
	for _, symbol := range []string{"SHFE.cu2501", "DCE.m2501"} {
		key := "quote:" + symbol
		val, ok := raw[key]
		if !ok {
			continue
		}
		m, ok := val.(map[string]interface{})
		if !ok {
			continue
		}
		result[symbol] = quoteFromMap(m)
	}

	if len(result) != 1 {
		t.Fatalf("expected 1 resolved symbol, got %d", len(result))
	}
	if _, ok := result["DCE.m2501"]; ok {
		t.Error("unseen symbol should be skipped, not zero-valued")
	}
	if math.IsNaN(result["SHFE.cu2501"].LastPrice) {
		t.Error("resolved symbol should not carry a NaN price")
	}
}
