package basket

import (
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/ksred/advisor-engine/internal/portfolio"
	"github.com/ksred/advisor-engine/internal/pricing"
	"github.com/ksred/advisor-engine/internal/types"
)

// weightTolerance absorbs float noise in published weight sums.
var weightTolerance = decimal.NewFromFloat(0.0001)

// Builder computes the target basket an account must reach. Pure computation
// over the injected price cache: no writes.
type Builder struct {
	prices  *pricing.Cache
	minBase decimal.Decimal
}

// NewBuilder creates a basket builder. minBase is the minimum evaluable base
// amount an account needs before a diversified basket makes sense.
func NewBuilder(prices *pricing.Cache, minBase decimal.Decimal) *Builder {
	return &Builder{prices: prices, minBase: minBase}
}

// Build converts target weights into per-instrument share counts for the
// account. fxRate converts instrument prices into the account's settlement
// currency. Failure modes:
//   - UnsupportedTickerError: a target instrument's price cannot be resolved
//   - MinBaseViolationError: base amount below the configured minimum
//   - StopOrderOperationError: weight policy violation
//
// None are retried; all signal suspension upstream.
func (b *Builder) Build(account *types.Account, target *portfolio.Target, fxRate decimal.Decimal) (*types.Basket, error) {
	logger := log.With().
		Str("account", account.Alias).
		Int64("port_seq", target.PortSeq).
		Str("component", "basket_builder").
		Logger()

	if account.BaseAmount.LessThan(b.minBase) {
		logger.Warn().
			Str("base_amount", account.BaseAmount.String()).
			Str("minimum", b.minBase.String()).
			Msg("base amount below minimum")
		return nil, &types.MinBaseViolationError{Base: account.BaseAmount, Minimum: b.minBase}
	}

	weightSum := decimal.Zero
	for _, tw := range target.Weights {
		if tw.Weight.IsNegative() {
			return nil, &types.StopOrderOperationError{
				Reason: "negative weight for " + tw.Ticker,
			}
		}
		weightSum = weightSum.Add(tw.Weight)
	}
	if weightSum.GreaterThan(decimal.NewFromInt(1).Add(weightTolerance)) {
		logger.Warn().Str("weight_sum", weightSum.String()).Msg("weight sum exceeds 1")
		return nil, &types.StopOrderOperationError{
			Reason: "weight sum " + weightSum.String() + " exceeds 1",
		}
	}

	result := &types.Basket{
		PortSeq:    target.PortSeq,
		Items:      make([]types.BasketItem, 0, len(target.Weights)),
		BaseAmount: account.BaseAmount,
	}

	for _, tw := range target.Weights {
		price, err := b.prices.Get(tw.Ticker)
		if err != nil {
			logger.Warn().Err(err).Str("ticker", tw.Ticker).Msg("price resolution failed")
			return nil, err
		}

		localPrice := price.Mul(fxRate)
		if !localPrice.IsPositive() {
			return nil, &types.UnsupportedTickerError{Ticker: tw.Ticker}
		}

		targetValue := account.BaseAmount.Mul(tw.Weight)
		shares := targetValue.Div(localPrice).IntPart()

		logger.Debug().
			Str("ticker", tw.Ticker).
			Str("weight", tw.Weight.String()).
			Str("target_value", targetValue.String()).
			Str("local_price", localPrice.String()).
			Int64("target_shares", shares).
			Msg("computed basket item")

		result.Items = append(result.Items, types.BasketItem{
			Ticker:       tw.Ticker,
			Weight:       tw.Weight,
			Price:        localPrice,
			TargetShares: shares,
		})
	}

	// The liquidity residual is the complement of the non-cash weights.
	result.Liquidity = decimal.NewFromInt(1).Sub(weightSum)
	if result.Liquidity.IsNegative() {
		result.Liquidity = decimal.Zero
	}

	logger.Info().
		Int("instruments", len(result.Items)).
		Str("liquidity", result.Liquidity.String()).
		Msg("basket built")

	return result, nil
}

// IsRebalancingConditionMet reports whether recomputing the basket shows any
// actual drift from current holdings. A scheduled rebalance with no drift is
// a no-op trade and must be skipped, not executed.
func IsRebalancingConditionMet(current map[string]int64, target *types.Basket) bool {
	targets := target.TargetShares()
	for ticker, shares := range targets {
		if current[ticker] != shares {
			return true
		}
	}
	for ticker := range current {
		if _, wanted := targets[ticker]; !wanted && current[ticker] != 0 {
			return true
		}
	}
	return false
}
