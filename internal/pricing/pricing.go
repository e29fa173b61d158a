package pricing

import (
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/ksred/advisor-engine/internal/types"
)

// Source is the upstream pricing service. A miss must be reported as a miss,
// not as a zero price.
type Source interface {
	GetPrice(ticker string) (decimal.Decimal, bool, error)
}

// Cache memoizes instrument prices for one scheduling cycle. It is
// constructed at cycle start and flushed before the next cycle rather than
// expiring on a clock: callers must not assume cross-cycle freshness.
type Cache struct {
	source Source

	mu     sync.RWMutex
	prices map[string]decimal.Decimal
	misses map[string]struct{}
}

// NewCache creates a price cache backed by the given source.
func NewCache(source Source) *Cache {
	return &Cache{
		source: source,
		prices: make(map[string]decimal.Decimal),
		misses: make(map[string]struct{}),
	}
}

// Get returns the cached price for a ticker, consulting the source on first
// use. Unresolvable tickers return UnsupportedTickerError and the negative
// result is remembered for the rest of the cycle.
func (c *Cache) Get(ticker string) (decimal.Decimal, error) {
	c.mu.RLock()
	price, ok := c.prices[ticker]
	if ok {
		c.mu.RUnlock()
		return price, nil
	}
	if _, missed := c.misses[ticker]; missed {
		c.mu.RUnlock()
		return decimal.Zero, &types.UnsupportedTickerError{Ticker: ticker}
	}
	c.mu.RUnlock()

	price, found, err := c.source.GetPrice(ticker)
	if err != nil {
		// Source failures are not cached: the next lookup retries.
		log.Warn().Err(err).Str("ticker", ticker).Msg("price source lookup failed")
		return decimal.Zero, &types.UnsupportedTickerError{Ticker: ticker}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if !found {
		c.misses[ticker] = struct{}{}
		return decimal.Zero, &types.UnsupportedTickerError{Ticker: ticker}
	}
	c.prices[ticker] = price
	return price, nil
}

// Flush empties the cache. Called once at the start of each scheduling cycle.
func (c *Cache) Flush() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.prices = make(map[string]decimal.Decimal)
	c.misses = make(map[string]struct{})
	log.Debug().Str("component", "price_cache").Msg("price cache flushed")
}

// StaticSource is a fixed price table, used by the simulation and tests.
type StaticSource struct {
	Prices map[string]decimal.Decimal
}

// GetPrice implements Source.
func (s *StaticSource) GetPrice(ticker string) (decimal.Decimal, bool, error) {
	price, ok := s.Prices[ticker]
	return price, ok, nil
}
