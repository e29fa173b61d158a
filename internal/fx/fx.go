package fx

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Client provides the current exchange rate from a foreign market's currency
// into the account settlement currency.
type Client interface {
	GetExchangeRate(market string) (decimal.Decimal, error)
}

// StaticClient serves rates from a fixed table. The local market always
// resolves to 1.
type StaticClient struct {
	LocalMarket string
	Rates       map[string]decimal.Decimal
}

// NewStaticClient builds a table-backed FX client.
func NewStaticClient(localMarket string, rates map[string]decimal.Decimal) *StaticClient {
	return &StaticClient{LocalMarket: localMarket, Rates: rates}
}

// GetExchangeRate implements Client.
func (c *StaticClient) GetExchangeRate(market string) (decimal.Decimal, error) {
	if market == c.LocalMarket || market == "" {
		return decimal.NewFromInt(1), nil
	}
	rate, ok := c.Rates[market]
	if !ok {
		return decimal.Zero, fmt.Errorf("no exchange rate for market %s", market)
	}
	return rate, nil
}
