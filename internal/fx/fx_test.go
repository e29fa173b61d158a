package fx

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStaticClient(t *testing.T) {
	client := NewStaticClient("LOCAL", map[string]decimal.Decimal{
		"US": decimal.NewFromFloat(1320.5),
	})

	t.Run("LocalMarketIsUnity", func(t *testing.T) {
		rate, err := client.GetExchangeRate("LOCAL")
		require.NoError(t, err)
		assert.True(t, rate.Equal(decimal.NewFromInt(1)))

		// Unset markets settle locally too.
		rate, err = client.GetExchangeRate("")
		require.NoError(t, err)
		assert.True(t, rate.Equal(decimal.NewFromInt(1)))
	})

	t.Run("ForeignMarket", func(t *testing.T) {
		rate, err := client.GetExchangeRate("US")
		require.NoError(t, err)
		assert.True(t, rate.Equal(decimal.NewFromFloat(1320.5)))
	})

	t.Run("UnknownMarket", func(t *testing.T) {
		_, err := client.GetExchangeRate("JP")
		assert.Error(t, err)
	})
}
