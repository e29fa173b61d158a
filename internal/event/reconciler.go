package event

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/ksred/advisor-engine/internal/portfolio"
	"github.com/ksred/advisor-engine/internal/types"
)

// Reconciler aligns each account's most recent order-intent event with
// today's target portfolio. It runs to completion as a separate phase before
// queue registration observes any event.
type Reconciler struct {
	db      *Database
	catalog *portfolio.Catalog
}

// NewReconciler creates an event reconciler.
func NewReconciler(gormDB *gorm.DB, catalog *portfolio.Catalog) *Reconciler {
	return &Reconciler{db: NewDatabase(gormDB), catalog: catalog}
}

// Reconcile applies the daily retarget pass. An in-flight event is never
// silently redirected: a processing rebalance whose target changed is
// canceled and replaced, because its orders may already be partially filled.
// All mutations and creations are persisted in batched writes, not
// per-account.
func (r *Reconciler) Reconcile(asOf time.Time) error {
	logger := log.With().Str("component", "event_reconciler").Logger()
	logger.Info().Msg("starting event reconciliation")

	portMap, err := r.catalog.GetPortfolioMap(asOf)
	if err != nil {
		return fmt.Errorf("failed to load portfolio map: %w", err)
	}

	accounts, err := r.db.ListAccountsForReconciliation()
	if err != nil {
		return fmt.Errorf("failed to list accounts: %w", err)
	}

	latest, err := r.db.GetLatestEvents()
	if err != nil {
		return fmt.Errorf("failed to load latest events: %w", err)
	}

	retargets := make(map[int64][]string)
	var cancels []string
	var creations []types.Event

	for i := range accounts {
		account := &accounts[i]
		buckets, ok := portMap[account.StrategyCode]
		if !ok {
			continue
		}
		target, ok := buckets[account.RiskBucket]
		if !ok {
			continue
		}

		current := latest[account.Alias]
		if current == nil {
			// Brand-new account: its initial buy intent starts here.
			creations = append(creations, newEvent(account.Alias, types.EventNewOrder, target.PortSeq))
			continue
		}
		if current.PortSeq == target.PortSeq {
			continue
		}

		switch current.Mode {
		case types.EventNewOrder, types.EventBuy:
			switch current.Status {
			case types.EventOnHold, types.EventProcessing:
				// A pending initial buy simply retargets in place.
				retargets[target.PortSeq] = append(retargets[target.PortSeq], current.EventID)
			case types.EventCompleted:
				// Completed initial buy plus a universe change is a rebalance.
				creations = append(creations, newEvent(account.Alias, types.EventRebalance, target.PortSeq))
			}
		case types.EventRebalance:
			switch current.Status {
			case types.EventOnHold:
				retargets[target.PortSeq] = append(retargets[target.PortSeq], current.EventID)
			case types.EventProcessing:
				cancels = append(cancels, current.EventID)
				creations = append(creations, newEvent(account.Alias, types.EventRebalance, target.PortSeq))
			case types.EventCompleted:
				creations = append(creations, newEvent(account.Alias, types.EventRebalance, target.PortSeq))
			}
		case types.EventSell:
			// Liquidation intents have no target portfolio to chase.
		}
	}

	if err := r.db.ApplyReconciliation(retargets, cancels, creations); err != nil {
		return fmt.Errorf("failed to persist reconciliation: %w", err)
	}

	retargetCount := 0
	for _, ids := range retargets {
		retargetCount += len(ids)
	}
	logger.Info().
		Int("accounts", len(accounts)).
		Int("retargeted", retargetCount).
		Int("canceled", len(cancels)).
		Int("created", len(creations)).
		Msg("event reconciliation completed")

	return nil
}

func newEvent(alias string, mode types.EventMode, portSeq int64) types.Event {
	return types.Event{
		EventID:      "EVT_" + uuid.New().String(),
		AccountAlias: alias,
		Mode:         mode,
		Status:       types.EventOnHold,
		PortSeq:      portSeq,
	}
}
