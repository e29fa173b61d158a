package monitor

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/ksred/advisor-engine/internal/types"
)

// bucketPriority orders classification: an account lands in the first bucket
// that matches any of its errored queues for the day. Password incidents are
// sourced from order logs, not queue notes, and are handled separately.
var bucketPriority = []types.ErrorClass{
	types.ErrorClassPriceResolution,
	types.ErrorClassWeightSum,
	types.ErrorClassMinBase,
	types.ErrorClassTransactionHistory,
	types.ErrorClassPortfolioType,
	types.ErrorClassSellFail,
}

// Monitor is the end-of-day reconciliation sweep over the error ledger. It
// flags newly-errored accounts, auto-resolves accounts whose conditions
// cleared, and restores recovered closing accounts.
type Monitor struct {
	db *Database
}

// NewMonitor creates an error-account monitor.
func NewMonitor(gormDB *gorm.DB) *Monitor {
	return &Monitor{db: NewDatabase(gormDB)}
}

// Run performs one monitoring pass for the trade date. Re-runs are
// idempotent: a live (class, account) entry is never duplicated.
func (m *Monitor) Run(asOf time.Time) error {
	logger := log.With().Str("component", "error_monitor").Logger()
	tradeDate := types.TradeDate(asOf)
	logger.Info().Str("trade_date", tradeDate).Msg("starting error monitor pass")

	if err := m.flagErroredAccounts(tradeDate); err != nil {
		return err
	}
	if err := m.solveRecoveredAccounts(tradeDate); err != nil {
		return err
	}
	if err := m.CheckSellFailAccounts(); err != nil {
		return err
	}

	logger.Info().Msg("error monitor pass completed")
	return nil
}

// flagErroredAccounts classifies the day's errored queues into buckets and
// inserts one ErrorOccur per newly-affected account.
func (m *Monitor) flagErroredAccounts(tradeDate string) error {
	logger := log.With().Str("component", "error_monitor").Logger()

	queues, err := m.db.GetErroredQueues(tradeDate)
	if err != nil {
		return fmt.Errorf("failed to load errored queues: %w", err)
	}

	// class -> alias -> source queue id
	buckets := make(map[types.ErrorClass]map[string]string)
	classOf := func(q *types.Queue) types.ErrorClass {
		if q.ErrorClass != types.ErrorClassNone {
			return q.ErrorClass
		}
		return types.ClassifyNote(q.Note)
	}
	for i := range queues {
		class := classOf(&queues[i])
		if class == types.ErrorClassNone || class == types.ErrorClassPasswordIncident {
			continue
		}
		if buckets[class] == nil {
			buckets[class] = make(map[string]string)
		}
		if _, seen := buckets[class][queues[i].AccountAlias]; !seen {
			buckets[class][queues[i].AccountAlias] = queues[i].QueueID
		}
	}

	// Password incidents come from the day's order logs, not queue notes.
	passwordAccounts, err := m.db.GetPasswordIncidentAccounts(tradeDate)
	if err != nil {
		return fmt.Errorf("failed to load password incidents: %w", err)
	}

	flagged := 0
	assigned := make(map[string]struct{})
	insert := func(class types.ErrorClass, alias, queueID string) error {
		if _, done := assigned[alias]; done {
			return nil
		}
		assigned[alias] = struct{}{}

		live, err := m.db.HasLiveError(class, alias)
		if err != nil {
			return err
		}
		if live {
			return nil
		}
		occur := &ErrorOccur{
			OccurID:      "ERR_" + uuid.New().String(),
			ErrorClass:   class,
			AccountAlias: alias,
			QueueID:      queueID,
			OccurredOn:   tradeDate,
		}
		if err := m.db.CreateOccur(occur); err != nil {
			return err
		}
		flagged++
		logger.Warn().
			Str("account", alias).
			Str("error_class", string(class)).
			Str("queue_id", queueID).
			Msg("flagged account in error ledger")
		return nil
	}

	for _, class := range bucketPriority {
		for alias, queueID := range buckets[class] {
			if err := insert(class, alias, queueID); err != nil {
				return err
			}
		}
	}
	for alias, queueID := range passwordAccounts {
		if err := insert(types.ErrorClassPasswordIncident, alias, queueID); err != nil {
			return err
		}
	}

	logger.Info().Int("flagged", flagged).Msg("error flagging completed")
	return nil
}

// solveRecoveredAccounts closes live ledger entries for accounts whose most
// recent queue ran clean or whose account is canceled. Password incidents
// are cross-referenced against the same day's order logs instead.
func (m *Monitor) solveRecoveredAccounts(tradeDate string) error {
	logger := log.With().Str("component", "error_monitor").Logger()

	latest, err := m.db.GetLatestQueues(tradeDate)
	if err != nil {
		return fmt.Errorf("failed to load latest queues: %w", err)
	}
	canceledAccounts, err := m.db.ListAccountsByStatus(types.AccountCanceled)
	if err != nil {
		return err
	}
	canceled := make(map[string]struct{}, len(canceledAccounts))
	for _, a := range canceledAccounts {
		canceled[a.Alias] = struct{}{}
	}
	passwordToday, err := m.db.GetPasswordIncidentAccounts(tradeDate)
	if err != nil {
		return err
	}

	live, err := m.db.GetLiveErrors("")
	if err != nil {
		return fmt.Errorf("failed to load live errors: %w", err)
	}

	var toSolve []string
	for _, occur := range live {
		if occur.ErrorClass == types.ErrorClassPasswordIncident {
			if _, stillFailing := passwordToday[occur.AccountAlias]; !stillFailing {
				toSolve = append(toSolve, occur.OccurID)
			}
			continue
		}

		if _, isCanceled := canceled[occur.AccountAlias]; isCanceled {
			toSolve = append(toSolve, occur.OccurID)
			continue
		}
		// A non-error note, like the skip marker on a no-drift rebalance,
		// still counts as a clean run.
		q := latest[occur.AccountAlias]
		if q != nil && q.ErrorClass == types.ErrorClassNone &&
			types.ClassifyNote(q.Note) == types.ErrorClassNone &&
			q.Status != types.QueueFailed && q.Status != types.QueueCanceled {
			toSolve = append(toSolve, occur.OccurID)
		}
	}

	if err := m.db.SolveOccurs(toSolve, tradeDate); err != nil {
		return fmt.Errorf("failed to close ledger entries: %w", err)
	}
	logger.Info().Int("solved", len(toSolve)).Msg("ledger auto-resolution completed")
	return nil
}

// CheckSellFailAccounts restores sell-failed accounts back to
// sell-in-progress once every one of their live manual-intervention errors
// has been solved, so the closing flow retries on the next cycle. Any live
// ledger entry, manual class or not, blocks the restore.
func (m *Monitor) CheckSellFailAccounts() error {
	logger := log.With().Str("component", "error_monitor").Logger()

	accounts, err := m.db.ListAccountsByStatus(types.AccountSellFailed)
	if err != nil {
		return err
	}

	restored := 0
	for i := range accounts {
		account := &accounts[i]
		live, err := m.db.GetLiveErrors(account.Alias)
		if err != nil {
			return err
		}
		if len(live) > 0 {
			continue
		}

		if err := account.Transition(types.AccountSellInProgress); err != nil {
			continue
		}
		if err := m.db.UpdateAccount(account); err != nil {
			return err
		}
		restored++
		logger.Info().Str("account", account.Alias).Msg("restored sell-failed account")
	}

	logger.Info().Int("restored", restored).Msg("sell-fail recovery check completed")
	return nil
}
