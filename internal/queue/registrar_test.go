package queue

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/ksred/advisor-engine/internal/basket"
	"github.com/ksred/advisor-engine/internal/broker"
	"github.com/ksred/advisor-engine/internal/fx"
	"github.com/ksred/advisor-engine/internal/portfolio"
	"github.com/ksred/advisor-engine/internal/pricing"
	"github.com/ksred/advisor-engine/internal/types"
)

// stubAdapter serves fixed holdings; submissions are not exercised here.
type stubAdapter struct {
	holdings map[string]map[string]int64
}

func (s *stubAdapter) SubmitOrder(ctx context.Context, alias string, leg broker.OrderLeg) (*broker.Fill, error) {
	return &broker.Fill{VendorOrderID: "STUB", Executed: leg.Quantity, Price: leg.Price}, nil
}

func (s *stubAdapter) CancelOrder(ctx context.Context, alias string, vendorOrderID string) error {
	return nil
}

func (s *stubAdapter) UnexecutedOrders(ctx context.Context, alias string, position types.Position) ([]broker.OpenOrder, error) {
	return nil, nil
}

func (s *stubAdapter) Holdings(ctx context.Context, alias string) (map[string]int64, error) {
	book := make(map[string]int64, len(s.holdings[alias]))
	for ticker, qty := range s.holdings[alias] {
		book[ticker] = qty
	}
	return book, nil
}

type registrarFixture struct {
	db        *gorm.DB
	registrar *Registrar
	catalog   *portfolio.Catalog
	adapter   *stubAdapter
	asOf      time.Time
	tradeDate string
}

func newRegistrarFixture(t *testing.T) *registrarFixture {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.New().String())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&types.Account{},
		&types.Event{},
		&types.Queue{},
		&portfolio.Snapshot{},
	))

	prices := pricing.NewCache(&pricing.StaticSource{Prices: map[string]decimal.Decimal{
		"AAPL": decimal.NewFromInt(100),
		"MSFT": decimal.NewFromInt(400),
	}})
	catalog := portfolio.NewCatalog(db)
	builder := basket.NewBuilder(prices, decimal.NewFromInt(1000))
	fxClient := fx.NewStaticClient("LOCAL", nil)

	adapter := &stubAdapter{holdings: make(map[string]map[string]int64)}
	brokers := broker.NewRegistry()
	brokers.Register("SIM", adapter)

	asOf := time.Now()
	return &registrarFixture{
		db:        db,
		registrar: NewRegistrar(db, catalog, builder, fxClient, brokers),
		catalog:   catalog,
		adapter:   adapter,
		asOf:      asOf,
		tradeDate: types.TradeDate(asOf),
	}
}

func (f *registrarFixture) createAccount(t *testing.T, alias string, status types.AccountStatus, base int64) {
	t.Helper()
	require.NoError(t, f.db.Create(&types.Account{
		Alias:        alias,
		VendorCode:   "SIM",
		Market:       "LOCAL",
		StrategyCode: "GROWTH",
		RiskBucket:   "AGGRESSIVE",
		Status:       status,
		BaseAmount:   decimal.NewFromInt(base),
	}).Error)
}

func (f *registrarFixture) createEvent(t *testing.T, alias string, mode types.EventMode, portSeq int64) {
	t.Helper()
	require.NoError(t, f.db.Create(&types.Event{
		EventID:      "EVT_" + uuid.New().String(),
		AccountAlias: alias,
		Mode:         mode,
		Status:       types.EventOnHold,
		PortSeq:      portSeq,
	}).Error)
}

func (f *registrarFixture) publishDefault(t *testing.T, portSeq int64) {
	t.Helper()
	err := f.catalog.Publish("GROWTH", "AGGRESSIVE", portSeq, f.asOf.Add(-24*time.Hour), []portfolio.TargetWeight{
		{Ticker: "AAPL", Weight: decimal.NewFromFloat(0.5)},
		{Ticker: "MSFT", Weight: decimal.NewFromFloat(0.4)},
	})
	require.NoError(t, err)
}

func (f *registrarFixture) accountQueues(t *testing.T, alias string) []types.Queue {
	t.Helper()
	var queues []types.Queue
	require.NoError(t, f.db.Where("account_alias = ?", alias).Order("id ASC").Find(&queues).Error)
	return queues
}

func (f *registrarFixture) accountStatus(t *testing.T, alias string) types.AccountStatus {
	t.Helper()
	var account types.Account
	require.NoError(t, f.db.Where("alias = ?", alias).First(&account).Error)
	return account.Status
}

func TestRegisterDailyBuyQueue(t *testing.T) {
	f := newRegistrarFixture(t)
	f.publishDefault(t, 1001)
	f.createAccount(t, "ACC_1", types.AccountNormal, 100_000)
	f.createEvent(t, "ACC_1", types.EventNewOrder, 1001)

	require.NoError(t, f.registrar.RegisterDaily(context.Background(), f.asOf))

	queues := f.accountQueues(t, "ACC_1")
	require.Len(t, queues, 1)
	assert.Equal(t, types.QueueBid, queues[0].Mode)
	assert.Equal(t, types.QueuePending, queues[0].Status)
	assert.Equal(t, int64(1001), queues[0].PortSeq)
	assert.Equal(t, f.tradeDate, queues[0].TradeDate)

	decoded, err := types.DecodeBasket(queues[0].Basket)
	require.NoError(t, err)
	require.NotNil(t, decoded)
	assert.Len(t, decoded.Items, 2)
}

func TestRegisterDailyIsIdempotent(t *testing.T) {
	f := newRegistrarFixture(t)
	f.publishDefault(t, 1001)
	f.createAccount(t, "ACC_1", types.AccountNormal, 100_000)
	f.createEvent(t, "ACC_1", types.EventNewOrder, 1001)

	require.NoError(t, f.registrar.RegisterDaily(context.Background(), f.asOf))
	require.NoError(t, f.registrar.RegisterDaily(context.Background(), f.asOf))

	assert.Len(t, f.accountQueues(t, "ACC_1"), 1)
}

func TestRegisterDailyNoActiveEvent(t *testing.T) {
	f := newRegistrarFixture(t)
	f.createAccount(t, "ACC_1", types.AccountNormal, 100_000)

	require.NoError(t, f.registrar.RegisterDaily(context.Background(), f.asOf))

	assert.Empty(t, f.accountQueues(t, "ACC_1"))
}

func TestRegisterDailyClosingAccount(t *testing.T) {
	f := newRegistrarFixture(t)
	f.createAccount(t, "ACC_CLOSE", types.AccountSellInProgress, 100_000)

	require.NoError(t, f.registrar.RegisterDaily(context.Background(), f.asOf))

	queues := f.accountQueues(t, "ACC_CLOSE")
	require.Len(t, queues, 1)
	assert.Equal(t, types.QueueSell, queues[0].Mode)
	assert.Equal(t, types.QueuePending, queues[0].Status)

	// A liquidation queue carries an empty basket: the target is zero holdings.
	decoded, err := types.DecodeBasket(queues[0].Basket)
	require.NoError(t, err)
	assert.Nil(t, decoded)
}

func TestRegisterDailyMinBaseFailureSuspends(t *testing.T) {
	f := newRegistrarFixture(t)
	f.publishDefault(t, 1001)
	f.createAccount(t, "ACC_SMALL", types.AccountNormal, 500)
	f.createEvent(t, "ACC_SMALL", types.EventNewOrder, 1001)

	require.NoError(t, f.registrar.RegisterDaily(context.Background(), f.asOf))

	queues := f.accountQueues(t, "ACC_SMALL")
	require.Len(t, queues, 1)
	assert.Equal(t, types.QueueFailed, queues[0].Status)
	assert.Equal(t, types.ErrorClassMinBase, queues[0].ErrorClass)
	assert.NotEmpty(t, queues[0].Note)

	assert.Equal(t, types.AccountSuspended, f.accountStatus(t, "ACC_SMALL"))
}

func TestRegisterDailyMissingPortfolioSuspends(t *testing.T) {
	f := newRegistrarFixture(t)
	f.createAccount(t, "ACC_1", types.AccountNormal, 100_000)
	f.createEvent(t, "ACC_1", types.EventNewOrder, 9999)

	require.NoError(t, f.registrar.RegisterDaily(context.Background(), f.asOf))

	queues := f.accountQueues(t, "ACC_1")
	require.Len(t, queues, 1)
	assert.Equal(t, types.QueueFailed, queues[0].Status)
	assert.Equal(t, types.ErrorClassPortfolioType, queues[0].ErrorClass)
	assert.Equal(t, types.AccountSuspended, f.accountStatus(t, "ACC_1"))
}

func TestRegisterDailyRebalancePair(t *testing.T) {
	f := newRegistrarFixture(t)
	f.publishDefault(t, 1001)
	f.createAccount(t, "ACC_1", types.AccountNormal, 100_000)
	f.createEvent(t, "ACC_1", types.EventRebalance, 1001)

	// Holdings drift from the target, so the rebalance must execute.
	f.adapter.holdings["ACC_1"] = map[string]int64{"AAPL": 10, "META": 5}

	require.NoError(t, f.registrar.RegisterDaily(context.Background(), f.asOf))

	queues := f.accountQueues(t, "ACC_1")
	require.Len(t, queues, 2)

	// Sell leg leads; the buy leg waits for its proceeds.
	assert.Equal(t, types.QueueAsk, queues[0].Mode)
	assert.Equal(t, types.QueuePending, queues[0].Status)
	assert.Equal(t, types.QueueBid, queues[1].Mode)
	assert.Equal(t, types.QueueOnHold, queues[1].Status)
	assert.Equal(t, queues[0].Basket, queues[1].Basket)
}

func TestRegisterDailyRebalanceWithoutDriftIsSkipped(t *testing.T) {
	f := newRegistrarFixture(t)
	f.publishDefault(t, 1001)
	f.createAccount(t, "ACC_1", types.AccountNormal, 100_000)
	f.createEvent(t, "ACC_1", types.EventRebalance, 1001)

	// Exactly on target: 100_000*0.5/100 and 100_000*0.4/400.
	f.adapter.holdings["ACC_1"] = map[string]int64{"AAPL": 500, "MSFT": 100}

	require.NoError(t, f.registrar.RegisterDaily(context.Background(), f.asOf))

	queues := f.accountQueues(t, "ACC_1")
	require.Len(t, queues, 1)
	assert.Equal(t, types.QueueSkipped, queues[0].Status)
	assert.Equal(t, types.AccountNormal, f.accountStatus(t, "ACC_1"))
}

func TestRegisterDailySkipsIneligibleAccounts(t *testing.T) {
	f := newRegistrarFixture(t)
	f.publishDefault(t, 1001)
	for _, status := range []types.AccountStatus{
		types.AccountSuspended, types.AccountSellDone, types.AccountCanceled,
	} {
		alias := "ACC_" + string(status)
		f.createAccount(t, alias, status, 100_000)
		f.createEvent(t, alias, types.EventNewOrder, 1001)
	}

	require.NoError(t, f.registrar.RegisterDaily(context.Background(), f.asOf))

	var count int64
	require.NoError(t, f.db.Model(&types.Queue{}).Count(&count).Error)
	assert.Zero(t, count)
}
