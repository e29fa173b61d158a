package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/ksred/advisor-engine/internal/basket"
	"github.com/ksred/advisor-engine/internal/broker"
	"github.com/ksred/advisor-engine/internal/fx"
	"github.com/ksred/advisor-engine/internal/portfolio"
	"github.com/ksred/advisor-engine/internal/types"
)

// Registrar turns baskets into persisted daily queues, one per (account,
// side, date). It runs after event reconciliation has completed.
type Registrar struct {
	db      *Database
	catalog *portfolio.Catalog
	builder *basket.Builder
	fx      fx.Client
	brokers *broker.Registry
}

// NewRegistrar creates a queue registrar.
func NewRegistrar(gormDB *gorm.DB, catalog *portfolio.Catalog, builder *basket.Builder, fxClient fx.Client, brokers *broker.Registry) *Registrar {
	return &Registrar{
		db:      NewDatabase(gormDB),
		catalog: catalog,
		builder: builder,
		fx:      fxClient,
		brokers: brokers,
	}
}

// RegisterDaily registers today's order queues for every eligible account.
// Accounts that already have a queue for the date are skipped, so a
// crashed-and-restarted cycle never double-registers.
func (r *Registrar) RegisterDaily(ctx context.Context, asOf time.Time) error {
	logger := log.With().Str("component", "queue_registrar").Logger()
	tradeDate := types.TradeDate(asOf)

	accounts, err := r.db.ListEligibleAccounts()
	if err != nil {
		return fmt.Errorf("failed to list eligible accounts: %w", err)
	}

	logger.Info().Int("accounts", len(accounts)).Str("trade_date", tradeDate).Msg("starting queue registration")

	registered := 0
	for i := range accounts {
		account := &accounts[i]

		exists, err := r.db.HasQueueForDate(account.Alias, tradeDate)
		if err != nil {
			logger.Error().Err(err).Str("account", account.Alias).Msg("failed idempotency check")
			continue
		}
		if exists {
			continue
		}

		if err := r.registerAccount(ctx, account, tradeDate); err != nil {
			logger.Error().Err(err).Str("account", account.Alias).Msg("failed to register account queues")
			continue
		}
		registered++
	}

	logger.Info().Int("registered", registered).Msg("queue registration completed")
	return nil
}

func (r *Registrar) registerAccount(ctx context.Context, account *types.Account, tradeDate string) error {
	logger := log.With().
		Str("account", account.Alias).
		Str("component", "queue_registrar").
		Logger()

	// Closing accounts get a liquidation queue regardless of events. Sell
	// queues carry an empty basket: the target is zero holdings.
	if account.Status == types.AccountSellInProgress {
		queue := r.newQueue(account.Alias, types.QueueSell, types.QueuePending, tradeDate, 0)
		logger.Info().Str("queue_id", queue.QueueID).Msg("registered liquidation queue")
		return r.db.CreateQueue(queue)
	}

	event, err := r.db.GetLatestActiveEvent(account.Alias)
	if err != nil {
		return fmt.Errorf("failed to load active event: %w", err)
	}
	if event == nil {
		// Nothing drives a queue for this account today.
		return nil
	}

	target, err := r.catalog.GetBySeq(event.PortSeq)
	if err != nil {
		return r.registerFailure(account, tradeDate, event.PortSeq,
			fmt.Sprintf("portfolio not found for seq %d", event.PortSeq),
			types.ErrorClassPortfolioType)
	}

	fxRate, err := r.fx.GetExchangeRate(account.Market)
	if err != nil {
		return r.registerFailure(account, tradeDate, event.PortSeq,
			types.TruncateNote(err.Error()), types.ErrorClassPriceResolution)
	}

	built, err := r.builder.Build(account, target, fxRate)
	if err != nil {
		// Policy violations are not retried: the account is suspended and
		// the queue still carries the diagnostic note so operational tooling
		// sees what happened.
		return r.registerFailure(account, tradeDate, event.PortSeq,
			types.TruncateNote(err.Error()), types.ClassifyError(err))
	}

	payload, err := types.EncodeBasket(built)
	if err != nil {
		return fmt.Errorf("failed to encode basket: %w", err)
	}

	if event.Mode == types.EventRebalance {
		met, err := r.rebalanceConditionMet(ctx, account, built)
		if err != nil {
			return err
		}
		if !met {
			queue := r.newQueue(account.Alias, types.QueueAsk, types.QueueSkipped, tradeDate, event.PortSeq)
			queue.Note = "rebalance condition not met"
			logger.Info().Str("queue_id", queue.QueueID).Msg("rebalance skipped, no drift")
			return r.db.CreateQueue(queue)
		}

		// Sell leg executes first; the buy leg is held until the ask leg
		// completes so proceeds fund the buys.
		ask := r.newQueue(account.Alias, types.QueueAsk, types.QueuePending, tradeDate, event.PortSeq)
		ask.Basket = payload
		if err := r.db.CreateQueue(ask); err != nil {
			return err
		}

		bid := r.newQueue(account.Alias, types.QueueBid, types.QueueOnHold, tradeDate, event.PortSeq)
		bid.Basket = payload
		if err := r.db.CreateQueue(bid); err != nil {
			return err
		}

		logger.Info().
			Str("ask_queue_id", ask.QueueID).
			Str("bid_queue_id", bid.QueueID).
			Msg("registered rebalance queue pair")
		return nil
	}

	queue := r.newQueue(account.Alias, types.QueueBid, types.QueuePending, tradeDate, event.PortSeq)
	queue.Basket = payload
	logger.Info().
		Str("queue_id", queue.QueueID).
		Str("mode", string(event.Mode)).
		Msg("registered buy queue")
	return r.db.CreateQueue(queue)
}

// registerFailure suspends the account and persists a failed queue carrying
// the diagnostic note.
func (r *Registrar) registerFailure(account *types.Account, tradeDate string, portSeq int64, note string, class types.ErrorClass) error {
	logger := log.With().
		Str("account", account.Alias).
		Str("component", "queue_registrar").
		Logger()

	if account.Status.CanTransition(types.AccountSuspended) {
		if err := account.Transition(types.AccountSuspended); err == nil {
			if err := r.db.UpdateAccount(account); err != nil {
				return fmt.Errorf("failed to suspend account: %w", err)
			}
		}
	}

	queue := r.newQueue(account.Alias, types.QueueBid, types.QueueFailed, tradeDate, portSeq)
	queue.Note = note
	queue.ErrorClass = class

	logger.Warn().
		Str("queue_id", queue.QueueID).
		Str("error_class", string(class)).
		Str("note", note).
		Msg("account suspended, failed queue registered")

	return r.db.CreateQueue(queue)
}

func (r *Registrar) rebalanceConditionMet(ctx context.Context, account *types.Account, built *types.Basket) (bool, error) {
	adapter, err := r.brokers.Resolve(account.VendorCode)
	if err != nil {
		return false, err
	}
	holdings, err := adapter.Holdings(ctx, account.Alias)
	if err != nil {
		return false, fmt.Errorf("failed to query holdings: %w", err)
	}
	return basket.IsRebalancingConditionMet(holdings, built), nil
}

func (r *Registrar) newQueue(alias string, mode types.QueueMode, status types.QueueStatus, tradeDate string, portSeq int64) *types.Queue {
	return &types.Queue{
		QueueID:      "QUE_" + uuid.New().String(),
		AccountAlias: alias,
		Mode:         mode,
		Status:       status,
		PortSeq:      portSeq,
		TradeDate:    tradeDate,
	}
}
