package pricing

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ksred/advisor-engine/internal/types"
)

// countingSource records how often each ticker hits the upstream source.
type countingSource struct {
	prices map[string]decimal.Decimal
	calls  map[string]int
	err    error
}

func (s *countingSource) GetPrice(ticker string) (decimal.Decimal, bool, error) {
	if s.calls == nil {
		s.calls = make(map[string]int)
	}
	s.calls[ticker]++
	if s.err != nil {
		return decimal.Zero, false, s.err
	}
	price, ok := s.prices[ticker]
	return price, ok, nil
}

func TestCacheMemoizesHits(t *testing.T) {
	source := &countingSource{prices: map[string]decimal.Decimal{
		"AAPL": decimal.NewFromFloat(180.50),
	}}
	cache := NewCache(source)

	for i := 0; i < 5; i++ {
		price, err := cache.Get("AAPL")
		require.NoError(t, err)
		assert.True(t, price.Equal(decimal.NewFromFloat(180.50)))
	}

	assert.Equal(t, 1, source.calls["AAPL"])
}

func TestCacheMemoizesMisses(t *testing.T) {
	source := &countingSource{prices: map[string]decimal.Decimal{}}
	cache := NewCache(source)

	for i := 0; i < 3; i++ {
		_, err := cache.Get("GONE")
		require.Error(t, err)

		var unsupported *types.UnsupportedTickerError
		require.True(t, errors.As(err, &unsupported))
		assert.Equal(t, "GONE", unsupported.Ticker)
	}

	// The negative result is cached for the cycle.
	assert.Equal(t, 1, source.calls["GONE"])
}

func TestCacheSourceFailureIsNotCached(t *testing.T) {
	source := &countingSource{err: errors.New("pricing service timeout")}
	cache := NewCache(source)

	_, err := cache.Get("AAPL")
	require.Error(t, err)
	_, err = cache.Get("AAPL")
	require.Error(t, err)

	// Transient failures retry on the next lookup.
	assert.Equal(t, 2, source.calls["AAPL"])
}

func TestCacheFlush(t *testing.T) {
	source := &countingSource{prices: map[string]decimal.Decimal{
		"MSFT": decimal.NewFromFloat(405.75),
	}}
	cache := NewCache(source)

	_, err := cache.Get("MSFT")
	require.NoError(t, err)
	_, err = cache.Get("GONE")
	require.Error(t, err)

	cache.Flush()

	_, err = cache.Get("MSFT")
	require.NoError(t, err)
	_, err = cache.Get("GONE")
	require.Error(t, err)

	// Both the hit and the miss re-consult the source after a flush.
	assert.Equal(t, 2, source.calls["MSFT"])
	assert.Equal(t, 2, source.calls["GONE"])
}

func TestStaticSource(t *testing.T) {
	source := &StaticSource{Prices: map[string]decimal.Decimal{
		"NVDA": decimal.NewFromFloat(118.40),
	}}

	price, found, err := source.GetPrice("NVDA")
	require.NoError(t, err)
	assert.True(t, found)
	assert.True(t, price.Equal(decimal.NewFromFloat(118.40)))

	_, found, err = source.GetPrice("GONE")
	require.NoError(t, err)
	assert.False(t, found)
}
