package broker

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ksred/advisor-engine/internal/types"
)

func TestRegistry(t *testing.T) {
	registry := NewRegistry()
	sim := NewSimAdapter("SIM")
	registry.Register("SIM", sim)

	adapter, err := registry.Resolve("SIM")
	require.NoError(t, err)
	assert.Equal(t, sim, adapter)

	_, err = registry.Resolve("UNKNOWN")
	assert.Error(t, err)
}

func deterministicSim() *SimAdapter {
	sim := NewSimAdapter("SIM")
	sim.MinLatency = 0
	sim.MaxLatency = 0
	sim.SuccessRate = 1
	sim.LiquidityFactor = 1
	return sim
}

func TestSimAdapterFullFill(t *testing.T) {
	sim := deterministicSim()
	ctx := context.Background()

	fill, err := sim.SubmitOrder(ctx, "ACC_1", OrderLeg{
		Ticker:   "AAPL",
		Position: types.PositionBuy,
		Quantity: 100,
		Price:    decimal.NewFromInt(180),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(100), fill.Executed)
	assert.NotEmpty(t, fill.VendorOrderID)

	holdings, err := sim.Holdings(ctx, "ACC_1")
	require.NoError(t, err)
	assert.Equal(t, int64(100), holdings["AAPL"])

	open, err := sim.UnexecutedOrders(ctx, "ACC_1", types.PositionBuy)
	require.NoError(t, err)
	assert.Empty(t, open)
}

func TestSimAdapterSellReducesHoldings(t *testing.T) {
	sim := deterministicSim()
	sim.SeedHoldings("ACC_1", map[string]int64{"AAPL": 100})
	ctx := context.Background()

	_, err := sim.SubmitOrder(ctx, "ACC_1", OrderLeg{
		Ticker:   "AAPL",
		Position: types.PositionSell,
		Quantity: 100,
		Price:    decimal.NewFromInt(180),
	})
	require.NoError(t, err)

	holdings, err := sim.Holdings(ctx, "ACC_1")
	require.NoError(t, err)
	assert.Empty(t, holdings)
}

func TestSimAdapterRejection(t *testing.T) {
	sim := deterministicSim()
	sim.SuccessRate = 0

	_, err := sim.SubmitOrder(context.Background(), "ACC_1", OrderLeg{
		Ticker:   "AAPL",
		Position: types.PositionBuy,
		Quantity: 100,
		Price:    decimal.NewFromInt(180),
	})
	require.Error(t, err)
	assert.Equal(t, types.ErrorClassTransactionHistory, types.ClassifyError(err))
}

func TestSimAdapterPartialFillAndCancel(t *testing.T) {
	sim := deterministicSim()
	sim.LiquidityFactor = 0.5
	ctx := context.Background()

	// With LiquidityFactor below 1 some legs fill partially; retry until one
	// leaves an open remainder.
	var open []OpenOrder
	for i := 0; i < 50 && len(open) == 0; i++ {
		_, err := sim.SubmitOrder(ctx, "ACC_1", OrderLeg{
			Ticker:   "AAPL",
			Position: types.PositionBuy,
			Quantity: 100,
			Price:    decimal.NewFromInt(180),
		})
		require.NoError(t, err)
		open, _ = sim.UnexecutedOrders(ctx, "ACC_1", types.PositionBuy)
	}
	require.NotEmpty(t, open)

	require.NoError(t, sim.CancelOrder(ctx, "ACC_1", open[0].VendorOrderID))

	remaining, err := sim.UnexecutedOrders(ctx, "ACC_1", types.PositionBuy)
	require.NoError(t, err)
	assert.Len(t, remaining, len(open)-1)

	// Canceling twice fails.
	err = sim.CancelOrder(ctx, "ACC_1", open[0].VendorOrderID)
	assert.Error(t, err)
}

func TestPacerPerVendorLimits(t *testing.T) {
	pacer := NewPacer(100, 1)
	ctx := context.Background()

	// First call per vendor consumes the burst; both vendors pass immediately.
	require.NoError(t, pacer.Wait(ctx, "VENDOR_A"))
	require.NoError(t, pacer.Wait(ctx, "VENDOR_B"))

	// The next call on a drained vendor has a delay; a fresh vendor does not.
	assert.Greater(t, pacer.Reserve("VENDOR_A"), time.Duration(0))
	assert.Equal(t, time.Duration(0), pacer.Reserve("VENDOR_C"))
}

func TestPacerRespectsContext(t *testing.T) {
	pacer := NewPacer(0.1, 1)
	ctx, cancel := context.WithCancel(context.Background())

	require.NoError(t, pacer.Wait(ctx, "VENDOR_A"))
	cancel()

	// With the burst consumed and a ten second refill, a canceled context
	// aborts the wait.
	err := pacer.Wait(ctx, "VENDOR_A")
	assert.Error(t, err)
}
