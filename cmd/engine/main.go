package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/ksred/advisor-engine/internal/basket"
	"github.com/ksred/advisor-engine/internal/broker"
	"github.com/ksred/advisor-engine/internal/config"
	"github.com/ksred/advisor-engine/internal/database"
	"github.com/ksred/advisor-engine/internal/dispatch"
	"github.com/ksred/advisor-engine/internal/event"
	"github.com/ksred/advisor-engine/internal/execution"
	"github.com/ksred/advisor-engine/internal/fx"
	"github.com/ksred/advisor-engine/internal/monitor"
	"github.com/ksred/advisor-engine/internal/ops"
	"github.com/ksred/advisor-engine/internal/portfolio"
	"github.com/ksred/advisor-engine/internal/pricing"
	"github.com/ksred/advisor-engine/internal/queue"
	"github.com/ksred/advisor-engine/internal/slicing"
)

// init configures the application logging based on environment settings
// In development mode, it enables pretty printing with timestamps
// Debug logging can be enabled via DEBUG environment variable
func init() {
	// Configure pretty logging for development
	if os.Getenv("ENV") != "production" {
		output := zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		}
		zlog.Logger = zerolog.New(output).With().Timestamp().Logger()
	}

	// Set global log level
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if os.Getenv("DEBUG") == "true" {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
}

// main runs the scheduling engine: the morning registration pass, the
// intraday slice cadence, the end-of-day monitor sweep, and the read-only
// ops API, with graceful shutdown support.
func main() {
	cfg, err := config.Load(os.Getenv("ENGINE_CONFIG_DIR"))
	if err != nil {
		zlog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	db, err := database.NewDatabase(cfg.DatabasePath)
	if err != nil {
		zlog.Fatal().Err(err).Msg("Failed to initialize database")
	}

	scheduler, err := buildScheduler(cfg, db)
	if err != nil {
		zlog.Fatal().Err(err).Msg("Failed to build scheduler")
	}
	scheduler.Start()

	// Read-only ops API
	opsService := ops.NewService(db)
	srv := &http.Server{
		Addr:    cfg.OpsAddr,
		Handler: opsService.Router(),
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zlog.Fatal().Err(err).Msg("listen")
		}
	}()

	zlog.Info().
		Str("ops_addr", cfg.OpsAddr).
		Str("session_open", cfg.Session.Open).
		Str("session_close", cfg.Session.Close).
		Int("slice_minutes", cfg.Session.SliceMinutes).
		Msg("Engine running")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zlog.Info().Msg("Shutting down engine...")

	// Let in-flight jobs drain before stopping the ops server
	<-scheduler.Stop().Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zlog.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	zlog.Info().Msg("Engine exiting")
}

// buildScheduler wires the three daily jobs onto a cron schedule derived from
// the configured session layout: registration before open, one slice entry per
// window across the session, and the monitor sweep after close.
func buildScheduler(cfg *config.Config, db *gorm.DB) (*cron.Cron, error) {
	open, err := config.ParseClock(cfg.Session.Open)
	if err != nil {
		return nil, err
	}
	close, err := config.ParseClock(cfg.Session.Close)
	if err != nil {
		return nil, err
	}
	interval := time.Duration(cfg.Session.SliceMinutes) * time.Minute

	schedule, err := slicing.NewSchedule(open, close, interval)
	if err != nil {
		return nil, err
	}

	prices := pricing.NewCache(&pricing.StaticSource{Prices: decimalTable(cfg.Prices)})
	fxClient := fx.NewStaticClient(cfg.LocalMarket, decimalTable(cfg.FxRates))

	brokers := broker.NewRegistry()
	for _, vendorCode := range cfg.Vendors {
		brokers.Register(vendorCode, broker.NewSimAdapter(vendorCode))
	}
	pacer := broker.NewPacer(cfg.Broker.CallsPerSecond, cfg.Broker.Burst)

	catalog := portfolio.NewCatalog(db)
	builder := basket.NewBuilder(prices, decimal.NewFromFloat(cfg.MinBaseAmount))
	reconciler := event.NewReconciler(db, catalog)
	registrar := queue.NewRegistrar(db, catalog, builder, fxClient, brokers)
	manager := execution.NewManager(db, brokers, prices, pacer)
	pool := dispatch.NewPool(cfg.Dispatch.Concurrency)
	expiry := time.Duration(cfg.Dispatch.ExpirySeconds) * time.Second
	controller := slicing.NewController(db, schedule, manager, pool, expiry)
	errorMonitor := monitor.NewMonitor(db)

	scheduler := cron.New()

	// Registration runs 30 minutes before open: reconcile events against the
	// day's portfolio snapshots, flush stale prices, then persist the queues.
	registerAt := open - 30*time.Minute
	if _, err := scheduler.AddFunc(cronSpec(registerAt), func() {
		now := time.Now()
		prices.Flush()
		if err := reconciler.Reconcile(now); err != nil {
			zlog.Error().Err(err).Msg("event reconciliation failed")
			return
		}
		if err := registrar.RegisterDaily(context.Background(), now); err != nil {
			zlog.Error().Err(err).Msg("queue registration failed")
		}
	}); err != nil {
		return nil, err
	}

	// One entry per slice window across the session.
	for at := open; at < close; at += interval {
		if _, err := scheduler.AddFunc(cronSpec(at), func() {
			if err := controller.RunSlice(context.Background(), time.Now()); err != nil {
				zlog.Error().Err(err).Msg("slice run failed")
			}
		}); err != nil {
			return nil, err
		}
	}

	// Monitor sweeps the error ledger 30 minutes after close.
	monitorAt := close + 30*time.Minute
	if _, err := scheduler.AddFunc(cronSpec(monitorAt), func() {
		if err := errorMonitor.Run(time.Now()); err != nil {
			zlog.Error().Err(err).Msg("error monitor failed")
		}
	}); err != nil {
		return nil, err
	}

	return scheduler, nil
}

// cronSpec renders a time-of-day offset as a daily five-field cron entry.
func cronSpec(offset time.Duration) string {
	offset = offset % (24 * time.Hour)
	hour := int(offset / time.Hour)
	minute := int(offset % time.Hour / time.Minute)
	return fmt.Sprintf("%d %d * * *", minute, hour)
}

func decimalTable(values map[string]float64) map[string]decimal.Decimal {
	table := make(map[string]decimal.Decimal, len(values))
	for key, value := range values {
		table[key] = decimal.NewFromFloat(value)
	}
	return table
}
