package event

import (
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/ksred/advisor-engine/internal/types"
)

type Database struct {
	db *gorm.DB
}

func NewDatabase(db *gorm.DB) *Database {
	return &Database{db: db}
}

func (d *Database) CreateEvent(event *types.Event) error {
	return d.db.Create(event).Error
}

// GetLatestEvent returns the most recent event for an account, nil if none.
func (d *Database) GetLatestEvent(alias string) (*types.Event, error) {
	var event types.Event
	err := d.db.Where("account_alias = ?", alias).Order("id DESC").First(&event).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &event, nil
}

// GetLatestEvents returns the most recent event per account in one query
// pass, keyed by account alias.
func (d *Database) GetLatestEvents() (map[string]*types.Event, error) {
	var events []types.Event
	if err := d.db.Order("id DESC").Find(&events).Error; err != nil {
		return nil, err
	}
	latest := make(map[string]*types.Event)
	for i := range events {
		if _, seen := latest[events[i].AccountAlias]; !seen {
			latest[events[i].AccountAlias] = &events[i]
		}
	}
	return latest, nil
}

// ListAccountsForReconciliation returns every account that may still receive
// daily queues. Canceled accounts are terminal and never re-queued.
func (d *Database) ListAccountsForReconciliation() ([]types.Account, error) {
	var accounts []types.Account
	err := d.db.Where("status <> ?", types.AccountCanceled).Find(&accounts).Error
	if err != nil {
		return nil, err
	}
	return accounts, nil
}

// ApplyReconciliation persists one reconciliation cycle: retargets grouped by
// new portfolio sequence, cancellations, and event creations, batched rather
// than per-account to bound round-trips under fleet-wide load.
func (d *Database) ApplyReconciliation(retargets map[int64][]string, cancels []string, creations []types.Event) error {
	return d.db.Transaction(func(tx *gorm.DB) error {
		for portSeq, eventIDs := range retargets {
			if len(eventIDs) == 0 {
				continue
			}
			err := tx.Model(&types.Event{}).
				Where("event_id IN ?", eventIDs).
				Updates(map[string]interface{}{
					"port_seq":   portSeq,
					"updated_at": time.Now(),
				}).Error
			if err != nil {
				return err
			}
		}

		if len(cancels) > 0 {
			err := tx.Model(&types.Event{}).
				Where("event_id IN ?", cancels).
				Updates(map[string]interface{}{
					"status":     types.EventCanceled,
					"updated_at": time.Now(),
				}).Error
			if err != nil {
				return err
			}
		}

		if len(creations) > 0 {
			if err := tx.CreateInBatches(creations, 200).Error; err != nil {
				return err
			}
		}

		return nil
	})
}

func (d *Database) UpdateEvent(event *types.Event) error {
	return d.db.Save(event).Error
}
