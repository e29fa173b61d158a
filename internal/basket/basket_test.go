package basket

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ksred/advisor-engine/internal/portfolio"
	"github.com/ksred/advisor-engine/internal/pricing"
	"github.com/ksred/advisor-engine/internal/types"
)

func newTestBuilder(prices map[string]decimal.Decimal) *Builder {
	cache := pricing.NewCache(&pricing.StaticSource{Prices: prices})
	return NewBuilder(cache, decimal.NewFromInt(1000))
}

func testAccount(base int64) *types.Account {
	return &types.Account{
		Alias:      "ACC_1",
		Status:     types.AccountNormal,
		BaseAmount: decimal.NewFromInt(base),
	}
}

func TestBuildComputesSharesAndLiquidity(t *testing.T) {
	builder := newTestBuilder(map[string]decimal.Decimal{
		"AAPL": decimal.NewFromInt(100),
		"MSFT": decimal.NewFromInt(400),
	})
	target := &portfolio.Target{
		PortSeq: 42,
		Weights: []portfolio.TargetWeight{
			{Ticker: "AAPL", Weight: decimal.NewFromFloat(0.5)},
			{Ticker: "MSFT", Weight: decimal.NewFromFloat(0.3)},
		},
	}

	basket, err := builder.Build(testAccount(100_000), target, decimal.NewFromInt(1))
	require.NoError(t, err)
	require.Len(t, basket.Items, 2)

	// 100_000 * 0.5 / 100 = 500 shares, 100_000 * 0.3 / 400 = 75 shares
	assert.Equal(t, int64(500), basket.Items[0].TargetShares)
	assert.Equal(t, int64(75), basket.Items[1].TargetShares)
	assert.Equal(t, int64(42), basket.PortSeq)

	// Weights plus the liquidity residual close to exactly 1.
	sum := basket.Liquidity
	for _, item := range basket.Items {
		sum = sum.Add(item.Weight)
	}
	assert.True(t, sum.Equal(decimal.NewFromInt(1)), sum.String())
}

func TestBuildAppliesExchangeRate(t *testing.T) {
	builder := newTestBuilder(map[string]decimal.Decimal{
		"AAPL": decimal.NewFromInt(100),
	})
	target := &portfolio.Target{
		PortSeq: 42,
		Weights: []portfolio.TargetWeight{
			{Ticker: "AAPL", Weight: decimal.NewFromFloat(0.5)},
		},
	}

	// At a 2x rate the local price doubles and the share count halves.
	basket, err := builder.Build(testAccount(100_000), target, decimal.NewFromInt(2))
	require.NoError(t, err)
	require.Len(t, basket.Items, 1)
	assert.Equal(t, int64(250), basket.Items[0].TargetShares)
	assert.True(t, basket.Items[0].Price.Equal(decimal.NewFromInt(200)))
}

func TestBuildRejectsSmallBase(t *testing.T) {
	builder := newTestBuilder(nil)
	target := &portfolio.Target{PortSeq: 42}

	_, err := builder.Build(testAccount(500), target, decimal.NewFromInt(1))
	require.Error(t, err)

	var violation *types.MinBaseViolationError
	require.True(t, errors.As(err, &violation))
	assert.Equal(t, types.ErrorClassMinBase, types.ClassifyError(err))
}

func TestBuildRejectsBadWeights(t *testing.T) {
	t.Run("SumExceedsOne", func(t *testing.T) {
		builder := newTestBuilder(nil)
		target := &portfolio.Target{
			PortSeq: 42,
			Weights: []portfolio.TargetWeight{
				{Ticker: "AAPL", Weight: decimal.NewFromFloat(0.7)},
				{Ticker: "MSFT", Weight: decimal.NewFromFloat(0.5)},
			},
		}

		_, err := builder.Build(testAccount(50_000), target, decimal.NewFromInt(1))
		require.Error(t, err)

		var stop *types.StopOrderOperationError
		require.True(t, errors.As(err, &stop))
	})

	t.Run("NegativeWeight", func(t *testing.T) {
		builder := newTestBuilder(nil)
		target := &portfolio.Target{
			PortSeq: 42,
			Weights: []portfolio.TargetWeight{
				{Ticker: "AAPL", Weight: decimal.NewFromFloat(-0.1)},
			},
		}

		_, err := builder.Build(testAccount(50_000), target, decimal.NewFromInt(1))
		require.Error(t, err)

		var stop *types.StopOrderOperationError
		require.True(t, errors.As(err, &stop))
	})

	t.Run("SumExactlyOneIsAccepted", func(t *testing.T) {
		builder := newTestBuilder(map[string]decimal.Decimal{
			"AAPL": decimal.NewFromInt(100),
			"MSFT": decimal.NewFromInt(400),
		})
		target := &portfolio.Target{
			PortSeq: 42,
			Weights: []portfolio.TargetWeight{
				{Ticker: "AAPL", Weight: decimal.NewFromFloat(0.6)},
				{Ticker: "MSFT", Weight: decimal.NewFromFloat(0.4)},
			},
		}

		basket, err := builder.Build(testAccount(50_000), target, decimal.NewFromInt(1))
		require.NoError(t, err)
		assert.True(t, basket.Liquidity.IsZero())
	})
}

func TestBuildUnsupportedTicker(t *testing.T) {
	builder := newTestBuilder(map[string]decimal.Decimal{
		"AAPL": decimal.NewFromInt(100),
	})
	target := &portfolio.Target{
		PortSeq: 42,
		Weights: []portfolio.TargetWeight{
			{Ticker: "AAPL", Weight: decimal.NewFromFloat(0.3)},
			{Ticker: "DELISTED", Weight: decimal.NewFromFloat(0.3)},
		},
	}

	_, err := builder.Build(testAccount(50_000), target, decimal.NewFromInt(1))
	require.Error(t, err)

	var unsupported *types.UnsupportedTickerError
	require.True(t, errors.As(err, &unsupported))
	assert.Equal(t, "DELISTED", unsupported.Ticker)
}

func TestIsRebalancingConditionMet(t *testing.T) {
	target := &types.Basket{
		Items: []types.BasketItem{
			{Ticker: "AAPL", TargetShares: 100},
			{Ticker: "MSFT", TargetShares: 50},
		},
	}

	t.Run("NoDrift", func(t *testing.T) {
		current := map[string]int64{"AAPL": 100, "MSFT": 50}
		assert.False(t, IsRebalancingConditionMet(current, target))
	})

	t.Run("ShareCountDrift", func(t *testing.T) {
		current := map[string]int64{"AAPL": 90, "MSFT": 50}
		assert.True(t, IsRebalancingConditionMet(current, target))
	})

	t.Run("HeldInstrumentLeftTarget", func(t *testing.T) {
		current := map[string]int64{"AAPL": 100, "MSFT": 50, "META": 10}
		assert.True(t, IsRebalancingConditionMet(current, target))
	})

	t.Run("MissingTargetInstrument", func(t *testing.T) {
		current := map[string]int64{"AAPL": 100}
		assert.True(t, IsRebalancingConditionMet(current, target))
	})
}
