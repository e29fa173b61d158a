package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/ksred/advisor-engine/internal/basket"
	"github.com/ksred/advisor-engine/internal/broker"
	"github.com/ksred/advisor-engine/internal/database"
	"github.com/ksred/advisor-engine/internal/dispatch"
	"github.com/ksred/advisor-engine/internal/event"
	"github.com/ksred/advisor-engine/internal/execution"
	"github.com/ksred/advisor-engine/internal/fx"
	"github.com/ksred/advisor-engine/internal/monitor"
	"github.com/ksred/advisor-engine/internal/portfolio"
	"github.com/ksred/advisor-engine/internal/pricing"
	"github.com/ksred/advisor-engine/internal/queue"
	"github.com/ksred/advisor-engine/internal/slicing"
	"github.com/ksred/advisor-engine/internal/types"
)

const (
	simVendor    = "SIM"
	numAccounts  = 40
	minBase      = 1000.0
	sliceMinutes = 30
)

var tickers = []string{"AAPL", "GOOGL", "MSFT", "AMZN", "META", "NVDA"}

// init configures the logger for the simulation with pretty printing and timestamp
func init() {
	// Configure pretty logging
	output := zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
	}
	log.Logger = zerolog.New(output).With().Timestamp().Logger()

	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if os.Getenv("DEBUG") == "true" {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
}

// main runs one full simulated trading day in-process: portfolio publication,
// event reconciliation, queue registration, every TWAP slice from open to
// close against the simulated vendor, and the end-of-day monitor sweep, then
// prints a summary of where every queue and account ended up.
func main() {
	db, err := database.NewDatabase("simulation.db")
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database")
	}

	// The simulated day is tomorrow so slice expiries stay in the future.
	now := time.Now().Add(24 * time.Hour)
	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	open := day.Add(9 * time.Hour)
	close := day.Add(15 * time.Hour)
	interval := sliceMinutes * time.Minute

	prices := pricing.NewCache(&pricing.StaticSource{Prices: map[string]decimal.Decimal{
		"AAPL":  decimal.NewFromFloat(180.50),
		"GOOGL": decimal.NewFromFloat(139.20),
		"MSFT":  decimal.NewFromFloat(405.75),
		"AMZN":  decimal.NewFromFloat(178.10),
		"META":  decimal.NewFromFloat(485.30),
		"NVDA":  decimal.NewFromFloat(118.40),
	}})
	fxClient := fx.NewStaticClient("LOCAL", map[string]decimal.Decimal{
		"US": decimal.NewFromFloat(1320.5),
	})

	sim := broker.NewSimAdapter(simVendor)
	brokers := broker.NewRegistry()
	brokers.Register(simVendor, sim)
	pacer := broker.NewPacer(200, 20)

	catalog := portfolio.NewCatalog(db)
	builder := basket.NewBuilder(prices, decimal.NewFromFloat(minBase))
	reconciler := event.NewReconciler(db, catalog)
	registrar := queue.NewRegistrar(db, catalog, builder, fxClient, brokers)
	manager := execution.NewManager(db, brokers, prices, pacer)
	pool := dispatch.NewPool(8)
	errorMonitor := monitor.NewMonitor(db)

	schedule, err := slicing.NewSchedule(9*time.Hour, 15*time.Hour, interval)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid session layout")
	}
	controller := slicing.NewController(db, schedule, manager, pool, 24*time.Hour)

	if err := seed(db, catalog, sim, day); err != nil {
		log.Fatal().Err(err).Msg("Failed to seed simulation data")
	}

	ctx := context.Background()
	start := time.Now()

	// Morning pass
	prices.Flush()
	if err := reconciler.Reconcile(open); err != nil {
		log.Fatal().Err(err).Msg("Event reconciliation failed")
	}
	if err := registrar.RegisterDaily(ctx, open); err != nil {
		log.Fatal().Err(err).Msg("Queue registration failed")
	}

	// Every slice from open to close
	slices := 0
	for at := open; at.Before(close); at = at.Add(interval) {
		if err := controller.RunSlice(ctx, at); err != nil {
			log.Error().Err(err).Time("at", at).Msg("Slice run failed")
		}
		slices++
	}

	// End-of-day sweep
	if err := errorMonitor.Run(close); err != nil {
		log.Fatal().Err(err).Msg("Error monitor failed")
	}

	printSummary(db, types.TradeDate(day), slices, time.Since(start))
}

// seed publishes target portfolios and creates the account population: mostly
// healthy accounts, one below the minimum base amount, one targeting an
// unpriceable instrument, and one closing account with seeded holdings.
func seed(db *gorm.DB, catalog *portfolio.Catalog, sim *broker.SimAdapter, day time.Time) error {
	published := day.Add(-24 * time.Hour)

	if err := catalog.Publish("GROWTH", "AGGRESSIVE", 1001, published, []portfolio.TargetWeight{
		{Ticker: "AAPL", Weight: decimal.NewFromFloat(0.30)},
		{Ticker: "NVDA", Weight: decimal.NewFromFloat(0.35)},
		{Ticker: "META", Weight: decimal.NewFromFloat(0.25)},
	}); err != nil {
		return err
	}
	if err := catalog.Publish("GROWTH", "DEFENSIVE", 1002, published, []portfolio.TargetWeight{
		{Ticker: "MSFT", Weight: decimal.NewFromFloat(0.40)},
		{Ticker: "GOOGL", Weight: decimal.NewFromFloat(0.30)},
	}); err != nil {
		return err
	}
	// A composition with an unresolvable instrument
	if err := catalog.Publish("LEGACY", "AGGRESSIVE", 1003, published, []portfolio.TargetWeight{
		{Ticker: "DELISTED", Weight: decimal.NewFromFloat(0.50)},
		{Ticker: "AMZN", Weight: decimal.NewFromFloat(0.40)},
	}); err != nil {
		return err
	}

	accounts := make([]types.Account, 0, numAccounts)
	for i := 0; i < numAccounts; i++ {
		account := types.Account{
			Alias:        fmt.Sprintf("ACC_%03d", i),
			VendorCode:   simVendor,
			Market:       "LOCAL",
			StrategyCode: "GROWTH",
			RiskBucket:   "AGGRESSIVE",
			Status:       types.AccountNormal,
			BaseAmount:   decimal.NewFromInt(int64(50_000 + i*5_000)),
		}
		if i%2 == 0 {
			account.RiskBucket = "DEFENSIVE"
		}
		accounts = append(accounts, account)
	}

	// Below the minimum base amount: registration must fail and suspend.
	accounts = append(accounts, types.Account{
		Alias:        "ACC_SMALL",
		VendorCode:   simVendor,
		Market:       "LOCAL",
		StrategyCode: "GROWTH",
		RiskBucket:   "AGGRESSIVE",
		Status:       types.AccountNormal,
		BaseAmount:   decimal.NewFromInt(500),
	})
	// Targets the legacy composition with an unpriceable instrument.
	accounts = append(accounts, types.Account{
		Alias:        "ACC_LEGACY",
		VendorCode:   simVendor,
		Market:       "LOCAL",
		StrategyCode: "LEGACY",
		RiskBucket:   "AGGRESSIVE",
		Status:       types.AccountNormal,
		BaseAmount:   decimal.NewFromInt(80_000),
	})
	// Closing account with live holdings to liquidate.
	accounts = append(accounts, types.Account{
		Alias:        "ACC_CLOSING",
		VendorCode:   simVendor,
		Market:       "LOCAL",
		StrategyCode: "GROWTH",
		RiskBucket:   "AGGRESSIVE",
		Status:       types.AccountSellInProgress,
		BaseAmount:   decimal.NewFromInt(120_000),
	})

	if err := db.CreateInBatches(accounts, 100).Error; err != nil {
		return err
	}

	sim.SeedHoldings("ACC_CLOSING", map[string]int64{
		"AAPL": 150,
		"MSFT": 80,
	})

	log.Info().
		Int("accounts", len(accounts)).
		Msg("Simulation data seeded")
	return nil
}

// printSummary reports the terminal state of the simulated day.
func printSummary(db *gorm.DB, tradeDate string, slices int, duration time.Duration) {
	type statusCount struct {
		Status string
		Count  int64
	}

	var queueCounts []statusCount
	db.Model(&types.Queue{}).
		Select("status, count(*) as count").
		Where("trade_date = ?", tradeDate).
		Group("status").
		Scan(&queueCounts)

	var accountCounts []statusCount
	db.Model(&types.Account{}).
		Select("status, count(*) as count").
		Group("status").
		Scan(&accountCounts)

	var orderLogs, completedLogs int64
	db.Model(&types.OrderLog{}).Where("trade_date = ?", tradeDate).Count(&orderLogs)
	db.Model(&types.OrderLog{}).
		Where("trade_date = ? AND status = ?", tradeDate, types.OrderLogCompleted).
		Count(&completedLogs)

	live, err := monitor.NewDatabase(db).GetLiveErrors("")
	if err != nil {
		log.Error().Err(err).Msg("Failed to load live errors")
	}

	fmt.Println("\n" + strings.Repeat("=", 70))
	fmt.Println("SIMULATED TRADING DAY SUMMARY")
	fmt.Println(strings.Repeat("=", 70))
	fmt.Printf("Trade date:       %s\n", tradeDate)
	fmt.Printf("Slices run:       %d\n", slices)
	fmt.Printf("Order logs:       %d (%d completed)\n", orderLogs, completedLogs)
	fmt.Printf("Duration:         %v\n", duration.Round(time.Millisecond))

	fmt.Println("\nQueues by status")
	fmt.Println(strings.Repeat("-", 40))
	for _, qc := range queueCounts {
		fmt.Printf("%-14s %d\n", qc.Status, qc.Count)
	}

	fmt.Println("\nAccounts by status")
	fmt.Println(strings.Repeat("-", 40))
	for _, ac := range accountCounts {
		fmt.Printf("%-18s %d\n", ac.Status, ac.Count)
	}

	fmt.Println("\nLive error ledger")
	fmt.Println(strings.Repeat("-", 40))
	if len(live) == 0 {
		fmt.Println("(empty)")
	}
	for _, occur := range live {
		fmt.Printf("%-22s %-12s %s\n", occur.ErrorClass, occur.AccountAlias, occur.QueueID)
	}
	fmt.Println(strings.Repeat("=", 70))

	log.Info().
		Int("slices", slices).
		Int64("order_logs", orderLogs).
		Int("live_errors", len(live)).
		Msg("Simulation completed")
}
