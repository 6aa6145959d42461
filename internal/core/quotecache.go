package core

import "math"

// quoteCache keeps the most recently merged quote per symbol plus the
// lexicographic maximum datetime seen across every quote it has ever
// merged, used as this engine's stand-in for wall-clock time. Grounded
// on the simple-merge/last-write-wins shape the rest of this codebase
// uses for its distributed caches, scaled down to the single in-process
// map this spec's single-threaded engine needs.
type quoteCache struct {
	quotes      map[string]*Quote
	maxDatetime string
}

func newQuoteCache() *quoteCache {
	return &quoteCache{quotes: make(map[string]*Quote)}
}

// merge deep-merges an incoming symbol->quote packet into the cache and
// advances maxDatetime. Never deletes a field: a packet missing a field
// leaves the cached value for that field untouched.
func (c *quoteCache) merge(packet map[string]*Quote) {
	for symbol, incoming := range packet {
		if incoming.Datetime > c.maxDatetime {
			c.maxDatetime = incoming.Datetime
		}
		existing, ok := c.quotes[symbol]
		if !ok {
			existing = &Quote{LastPrice: math.NaN()}
			c.quotes[symbol] = existing
		}
		existing.merge(incoming)
	}
}

// lookup resolves (quote, underlyingQuote) for a symbol, per §4.1: the
// underlying is non-nil iff the quote is an option, in which case the
// underlying must itself already be cached.
func (c *quoteCache) lookup(symbol string) (*Quote, *Quote) {
	q, ok := c.quotes[symbol]
	if !ok || q.Datetime == "" {
		fault("lookup", "未收到指定合约行情: %s", symbol)
	}
	if !q.isOption() {
		return q, nil
	}
	underlying, ok := c.quotes[q.UnderlyingSymbol]
	if !ok || underlying.Datetime == "" {
		fault("lookup", "未收到指定合约的标的行情: %s", q.UnderlyingSymbol)
	}
	return q, underlying
}
