package execution

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/ksred/advisor-engine/internal/broker"
	"github.com/ksred/advisor-engine/internal/pricing"
	"github.com/ksred/advisor-engine/internal/report"
	"github.com/ksred/advisor-engine/internal/types"
)

// Manager executes one queue: it compares live holdings against the target
// basket, cancels stale opposite-side orders, submits the residual legs, and
// reconciles queue, event and account state afterwards.
type Manager struct {
	db      *Database
	reports *report.Database
	brokers *broker.Registry
	prices  *pricing.Cache
	pacer   *broker.Pacer
}

// NewManager creates an execution manager.
func NewManager(gormDB *gorm.DB, brokers *broker.Registry, prices *pricing.Cache, pacer *broker.Pacer) *Manager {
	return &Manager{
		db:      NewDatabase(gormDB),
		reports: report.NewDatabase(gormDB),
		brokers: brokers,
		prices:  prices,
		pacer:   pacer,
	}
}

type holdingLine struct {
	Ticker string `json:"ticker"`
	Shares int64  `json:"shares"`
	Price  string `json:"price"`
	Value  string `json:"value"`
}

// Run performs one execution pass over the queue. Failures are absorbed into
// queue/account state so one bad account never crashes the fan-out driver.
func (m *Manager) Run(ctx context.Context, queue *types.Queue) error {
	logger := log.With().
		Str("queue_id", queue.QueueID).
		Str("account", queue.AccountAlias).
		Str("mode", string(queue.Mode)).
		Str("component", "execution_manager").
		Logger()

	logger.Info().Msg("starting execution pass")

	account, err := m.db.GetAccount(queue.AccountAlias)
	if err != nil || account == nil {
		return fmt.Errorf("failed to load account %s: %w", queue.AccountAlias, err)
	}

	writer := report.NewWriter(m.reports, queue.QueueID)

	adapter, err := m.brokers.Resolve(account.VendorCode)
	if err != nil {
		return m.fail(queue, account, writer, &types.PreconditionFailedError{Reason: err.Error()})
	}

	holdings, err := adapter.Holdings(ctx, account.Alias)
	if err != nil {
		return m.fail(queue, account, writer, asPrecondition(err, "holdings query failed"))
	}

	target, err := types.DecodeBasket(queue.Basket)
	if err != nil {
		return m.fail(queue, account, writer, &types.PreconditionFailedError{Reason: "undecodable basket payload"})
	}

	snapshot, totalValue, err := m.valueHoldings(holdings)
	if err != nil {
		// A held instrument became unsupported mid-flight (trading halt or
		// delisting). Terminal for today, and the account is suspended.
		return m.fail(queue, account, writer, err)
	}
	writer.WriteBody(snapshot, "current portfolio")

	if target != nil {
		writer.WriteBody(target.Items, "basket weights")
		if target.BaseAmount.IsPositive() {
			ratio := target.BaseAmount.Sub(totalValue).Div(target.BaseAmount)
			writer.WriteBody(map[string]string{
				"base_amount":   target.BaseAmount.String(),
				"holding_value": totalValue.String(),
				"deposit_ratio": ratio.String(),
			}, "deposit ratio")
		}
	}

	legs, err := m.residualLegs(queue, target, holdings)
	if err != nil {
		return m.fail(queue, account, writer, err)
	}

	canceled, err := m.CancelOrders(ctx, adapter, account.VendorCode, account.Alias, queue.Mode.Position().Opposite())
	if err != nil {
		return m.fail(queue, account, writer, err)
	}
	if len(canceled) > 0 {
		writer.WriteBody(canceled, "canceled opposite-side legs")
	}

	// Completed: nothing left to order and nothing was just canceled.
	if len(legs) == 0 && len(canceled) == 0 {
		writer.WriteBody(map[string]string{"result": "basket complete"}, "completion")
		if err := writer.Save(); err != nil {
			logger.Error().Err(err).Msg("failed to save report")
		}
		m.complete(queue)
		if err := m.db.UpdateQueue(queue); err != nil {
			return err
		}
		m.reconcileAccountState(queue, account)
		logger.Info().Msg("queue completed")
		return nil
	}

	// Orders still resting at the vendor from earlier slices cover part of
	// the residual; submitting the full delta again would double-execute on
	// fill. Only the uncovered remainder goes out.
	resting, err := m.ownSideResting(ctx, adapter, account.Alias, queue.Mode.Position())
	if err != nil {
		return m.fail(queue, account, writer, err)
	}
	submit := make([]broker.OrderLeg, 0, len(legs))
	for _, leg := range legs {
		leg.Quantity -= resting[leg.Ticker]
		if leg.Quantity > 0 {
			submit = append(submit, leg)
		}
	}

	submitted := make([]map[string]interface{}, 0, len(submit))
	rejected := 0
	for _, leg := range submit {
		if err := m.pacer.Wait(ctx, account.VendorCode); err != nil {
			return err
		}

		orderLog := &types.OrderLog{
			LogID:        "LOG_" + uuid.New().String(),
			QueueID:      queue.QueueID,
			AccountAlias: account.Alias,
			Ticker:       leg.Ticker,
			Position:     leg.Position,
			Quantity:     leg.Quantity,
			Price:        leg.Price,
			Status:       types.OrderLogProcessing,
			TradeDate:    queue.TradeDate,
		}

		fill, err := adapter.SubmitOrder(ctx, account.Alias, leg)
		if err != nil {
			rejected++
			orderLog.Status = types.OrderLogCanceled
			orderLog.ErrorMessage = types.TruncateNote(err.Error())
			orderLog.ErrorClass = types.ClassifyError(err)
			if createErr := m.db.CreateOrderLog(orderLog); createErr != nil {
				logger.Error().Err(createErr).Msg("failed to persist rejected order log")
			}
			logger.Warn().Err(err).Str("ticker", leg.Ticker).Msg("order submission rejected")
			continue
		}

		orderLog.VendorOrderID = fill.VendorOrderID
		if fill.Executed >= leg.Quantity {
			orderLog.Status = types.OrderLogCompleted
		}
		if err := m.db.CreateOrderLog(orderLog); err != nil {
			logger.Error().Err(err).Msg("failed to persist order log")
		}

		submitted = append(submitted, map[string]interface{}{
			"ticker":          leg.Ticker,
			"position":        leg.Position,
			"quantity":        leg.Quantity,
			"executed":        fill.Executed,
			"vendor_order_id": fill.VendorOrderID,
		})
	}

	writer.WriteBody(submitted, "submitted legs")
	if err := writer.Save(); err != nil {
		logger.Error().Err(err).Msg("failed to save report")
	}

	if queue.Status == types.QueuePending || queue.Status == types.QueueOnHold {
		if err := queue.Transition(types.QueueProcessing); err != nil {
			return err
		}
	}
	if rejected == len(submit) && len(submit) > 0 {
		queue.Note = types.TruncateNote("all order submissions rejected")
		queue.ErrorClass = types.ErrorClassTransactionHistory
		if queue.Status.CanTransition(types.QueueFailed) {
			_ = queue.Transition(types.QueueFailed)
		}
	}
	if err := m.db.UpdateQueue(queue); err != nil {
		return err
	}

	m.reconcileAccountState(queue, account)

	logger.Info().
		Int("submitted", len(submitted)).
		Int("rejected", rejected).
		Int("canceled_opposite", len(canceled)).
		Str("status", string(queue.Status)).
		Msg("execution pass finished")

	return nil
}

// Finalize runs during Cancel slices: it cancels the queue's own outstanding
// orders and settles the terminal status. With force set (the last slice for
// the position) an unfinished queue is transitioned to canceled rather than
// left ambiguous at end of day.
func (m *Manager) Finalize(ctx context.Context, queue *types.Queue, force bool) error {
	logger := log.With().
		Str("queue_id", queue.QueueID).
		Str("account", queue.AccountAlias).
		Bool("force", force).
		Str("component", "execution_manager").
		Logger()

	account, err := m.db.GetAccount(queue.AccountAlias)
	if err != nil || account == nil {
		return fmt.Errorf("failed to load account %s: %w", queue.AccountAlias, err)
	}

	writer := report.NewWriter(m.reports, queue.QueueID)

	adapter, err := m.brokers.Resolve(account.VendorCode)
	if err != nil {
		return m.fail(queue, account, writer, &types.PreconditionFailedError{Reason: err.Error()})
	}

	canceled, err := m.CancelOrders(ctx, adapter, account.VendorCode, account.Alias, queue.Mode.Position())
	if err != nil {
		return m.fail(queue, account, writer, err)
	}
	if len(canceled) > 0 {
		writer.WriteBody(canceled, "canceled own-side legs")
	}

	residualEmpty := false
	holdings, err := adapter.Holdings(ctx, account.Alias)
	if err == nil {
		if target, decodeErr := types.DecodeBasket(queue.Basket); decodeErr == nil {
			if legs, legErr := m.residualLegs(queue, target, holdings); legErr == nil {
				residualEmpty = len(legs) == 0
			}
		}
	}

	switch {
	case residualEmpty && len(canceled) == 0:
		writer.WriteBody(map[string]string{"result": "basket complete"}, "finalization")
		m.complete(queue)
	case force:
		writer.WriteBody(map[string]string{"result": "canceled at end of day"}, "finalization")
		if queue.Status.CanTransition(types.QueueCanceled) {
			_ = queue.Transition(types.QueueCanceled)
		}
	default:
		writer.WriteBody(map[string]string{"result": "orders canceled, residual remains"}, "finalization")
	}

	if err := writer.Save(); err != nil {
		logger.Error().Err(err).Msg("failed to save report")
	}
	if err := m.db.UpdateQueue(queue); err != nil {
		return err
	}

	m.reconcileAccountState(queue, account)

	logger.Info().Str("status", string(queue.Status)).Msg("queue finalized")
	return nil
}

// CancelOrders cancels all outstanding vendor orders on the given position
// and returns the logs that were actually canceled, so the caller can tell
// "nothing to cancel" apart from "canceled N legs".
func (m *Manager) CancelOrders(ctx context.Context, adapter broker.ExecutionAdapter, vendorCode, alias string, position types.Position) ([]types.OrderLog, error) {
	open, err := adapter.UnexecutedOrders(ctx, alias, position)
	if err != nil {
		return nil, asPrecondition(err, "unexecuted order query failed")
	}

	var canceled []types.OrderLog
	var logIDs []string
	for _, o := range open {
		if err := m.pacer.Wait(ctx, vendorCode); err != nil {
			return canceled, err
		}
		if err := adapter.CancelOrder(ctx, alias, o.VendorOrderID); err != nil {
			log.Warn().Err(err).
				Str("vendor_order_id", o.VendorOrderID).
				Str("account", alias).
				Msg("cancel rejected by vendor")
			continue
		}

		orderLog, err := m.db.GetLogByVendorOrderID(o.VendorOrderID)
		if err == nil && orderLog != nil {
			logIDs = append(logIDs, orderLog.LogID)
			orderLog.Status = types.OrderLogCanceled
			canceled = append(canceled, *orderLog)
			continue
		}
		canceled = append(canceled, types.OrderLog{
			VendorOrderID: o.VendorOrderID,
			AccountAlias:  alias,
			Ticker:        o.Ticker,
			Position:      o.Position,
			Quantity:      o.Remaining,
			Status:        types.OrderLogCanceled,
		})
	}

	if err := m.db.MarkLogsCanceled(logIDs); err != nil {
		return canceled, err
	}
	return canceled, nil
}

// valueHoldings prices the live position book. An unresolvable held ticker
// propagates UnsupportedTickerError.
func (m *Manager) valueHoldings(holdings map[string]int64) ([]holdingLine, decimal.Decimal, error) {
	tickers := make([]string, 0, len(holdings))
	for ticker := range holdings {
		tickers = append(tickers, ticker)
	}
	sort.Strings(tickers)

	lines := make([]holdingLine, 0, len(tickers))
	total := decimal.Zero
	for _, ticker := range tickers {
		price, err := m.prices.Get(ticker)
		if err != nil {
			return nil, decimal.Zero, err
		}
		value := price.Mul(decimal.NewFromInt(holdings[ticker]))
		total = total.Add(value)
		lines = append(lines, holdingLine{
			Ticker: ticker,
			Shares: holdings[ticker],
			Price:  price.String(),
			Value:  value.String(),
		})
	}
	return lines, total, nil
}

// residualLegs computes the orders still needed to move holdings to the
// target on the queue's side. A nil target is a liquidation: everything held
// is sold.
func (m *Manager) residualLegs(queue *types.Queue, target *types.Basket, holdings map[string]int64) ([]broker.OrderLeg, error) {
	targets := make(map[string]int64)
	prices := make(map[string]decimal.Decimal)
	if target != nil {
		for _, item := range target.Items {
			targets[item.Ticker] = item.TargetShares
			prices[item.Ticker] = item.Price
		}
	}

	tickers := make(map[string]struct{})
	for ticker := range targets {
		tickers[ticker] = struct{}{}
	}
	for ticker := range holdings {
		tickers[ticker] = struct{}{}
	}

	ordered := make([]string, 0, len(tickers))
	for ticker := range tickers {
		ordered = append(ordered, ticker)
	}
	sort.Strings(ordered)

	position := queue.Mode.Position()
	var legs []broker.OrderLeg
	for _, ticker := range ordered {
		delta := targets[ticker] - holdings[ticker]
		var qty int64
		if position == types.PositionBuy && delta > 0 {
			qty = delta
		} else if position == types.PositionSell && delta < 0 {
			qty = -delta
		}
		if qty == 0 {
			continue
		}

		price, ok := prices[ticker]
		if !ok {
			cached, err := m.prices.Get(ticker)
			if err != nil {
				return nil, err
			}
			price = cached
		}

		legs = append(legs, broker.OrderLeg{
			Ticker:   ticker,
			Position: position,
			Quantity: qty,
			Price:    price,
		})
	}
	return legs, nil
}

// fail reports the error, settles the queue to failed, and applies the
// suspend policy for non-retryable violations.
func (m *Manager) fail(queue *types.Queue, account *types.Account, writer *report.Writer, cause error) error {
	logger := log.With().
		Str("queue_id", queue.QueueID).
		Str("account", account.Alias).
		Str("component", "execution_manager").
		Logger()

	note := types.TruncateNote(cause.Error())
	class := types.ClassifyError(cause)
	if queue.Mode == types.QueueSell && class == types.ErrorClassNone {
		class = types.ErrorClassSellFail
	}

	writer.WriteBody(map[string]string{"error": note, "class": string(class)}, "execution error")
	if err := writer.Save(); err != nil {
		logger.Error().Err(err).Msg("failed to save error report")
	}

	queue.Note = note
	queue.ErrorClass = class
	if queue.Status.CanTransition(types.QueueFailed) {
		_ = queue.Transition(types.QueueFailed)
	}
	if err := m.db.UpdateQueue(queue); err != nil {
		logger.Error().Err(err).Msg("failed to persist failed queue")
	}

	var unsupported *types.UnsupportedTickerError
	var stop *types.StopOrderOperationError
	suspendWorthy := errors.As(cause, &unsupported) || errors.As(cause, &stop)

	switch {
	case account.Status == types.AccountSellInProgress:
		if err := account.Transition(types.AccountSellFailed); err == nil {
			_ = m.db.UpdateAccount(account)
		}
	case suspendWorthy && account.Status.CanTransition(types.AccountSuspended):
		if err := account.Transition(types.AccountSuspended); err == nil {
			_ = m.db.UpdateAccount(account)
		}
	}

	m.reconcileAccountState(queue, account)

	logger.Warn().
		Str("error_class", string(class)).
		Str("note", note).
		Str("account_status", string(account.Status)).
		Msg("queue execution failed")

	return nil
}

// complete transitions a queue through processing to completed.
func (m *Manager) complete(queue *types.Queue) {
	if queue.Status == types.QueuePending || queue.Status == types.QueueOnHold {
		_ = queue.Transition(types.QueueProcessing)
	}
	if queue.Status.CanTransition(types.QueueCompleted) {
		_ = queue.Transition(types.QueueCompleted)
	}
}

// reconcileAccountState re-derives event and account status after a run: the
// driving event moves on-hold to processing while queues are open, and
// processing to completed once no queues remain open and at least one leg
// completed. A closing account whose sell queue finished flips to sell-done,
// and a completed ask leg releases the paired held bid leg.
func (m *Manager) reconcileAccountState(queue *types.Queue, account *types.Account) {
	logger := log.With().
		Str("account", account.Alias).
		Str("component", "execution_manager").
		Logger()

	open, err := m.db.CountOpenQueues(account.Alias, queue.TradeDate)
	if err != nil {
		logger.Error().Err(err).Msg("failed to count open queues")
		return
	}

	event, err := m.db.GetLatestEvent(account.Alias)
	if err != nil {
		logger.Error().Err(err).Msg("failed to load latest event")
		return
	}
	if event != nil && event.Status.Active() {
		switch {
		case event.Status == types.EventOnHold && open > 0:
			if err := event.Transition(types.EventProcessing); err == nil {
				_ = m.db.UpdateEvent(event)
			}
		case event.Status == types.EventProcessing && open == 0:
			done, err := m.db.HasCompletedOrderLog(account.Alias, queue.TradeDate)
			if err == nil && done {
				if err := event.Transition(types.EventCompleted); err == nil {
					_ = m.db.UpdateEvent(event)
				}
			}
		}
	}

	if queue.Mode == types.QueueSell &&
		(queue.Status == types.QueueCompleted || queue.Status == types.QueueSkipped) &&
		account.Status == types.AccountSellInProgress {
		if err := account.Transition(types.AccountSellDone); err == nil {
			_ = m.db.UpdateAccount(account)
			logger.Info().Msg("closing account sell completed")
		}
	}

	if queue.Mode == types.QueueAsk && queue.Status.Terminal() {
		bid, err := m.db.GetHeldBidQueue(account.Alias, queue.TradeDate)
		if err == nil && bid != nil {
			// A completed ask leg releases the paired bid leg; an ask leg
			// that died takes the bid leg down with it, so no queue is left
			// waiting on a sell that will never finish.
			next := types.QueuePending
			if queue.Status != types.QueueCompleted {
				next = types.QueueCanceled
			}
			if err := bid.Transition(next); err == nil {
				_ = m.db.UpdateQueue(bid)
				logger.Info().
					Str("bid_queue_id", bid.QueueID).
					Str("status", string(next)).
					Msg("settled held bid leg")
			}
		}
	}
}

// ownSideResting sums the unexecuted vendor quantity per ticker on the
// queue's own side.
func (m *Manager) ownSideResting(ctx context.Context, adapter broker.ExecutionAdapter, alias string, position types.Position) (map[string]int64, error) {
	open, err := adapter.UnexecutedOrders(ctx, alias, position)
	if err != nil {
		return nil, asPrecondition(err, "unexecuted order query failed")
	}
	resting := make(map[string]int64, len(open))
	for _, o := range open {
		resting[o.Ticker] += o.Remaining
	}
	return resting, nil
}

func asPrecondition(err error, context string) error {
	var precondition *types.PreconditionFailedError
	if errors.As(err, &precondition) {
		return err
	}
	return &types.PreconditionFailedError{Reason: context + ": " + err.Error()}
}
