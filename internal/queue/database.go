package queue

import (
	"errors"

	"gorm.io/gorm"

	"github.com/ksred/advisor-engine/internal/types"
)

type Database struct {
	db *gorm.DB
}

func NewDatabase(db *gorm.DB) *Database {
	return &Database{db: db}
}

func (d *Database) CreateQueue(queue *types.Queue) error {
	return d.db.Create(queue).Error
}

func (d *Database) UpdateQueue(queue *types.Queue) error {
	return d.db.Save(queue).Error
}

func (d *Database) GetQueue(queueID string) (*types.Queue, error) {
	var queue types.Queue
	if err := d.db.Where("queue_id = ?", queueID).First(&queue).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &queue, nil
}

// HasQueueForDate reports whether the account already has any queue for the
// trade date. The registrar pre-filters on this to keep registration
// idempotent.
func (d *Database) HasQueueForDate(alias, tradeDate string) (bool, error) {
	var count int64
	err := d.db.Model(&types.Queue{}).
		Where("account_alias = ? AND trade_date = ?", alias, tradeDate).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// ListByDate returns all queues for a trade date.
func (d *Database) ListByDate(tradeDate string) ([]types.Queue, error) {
	var queues []types.Queue
	err := d.db.Where("trade_date = ?", tradeDate).Order("id ASC").Find(&queues).Error
	if err != nil {
		return nil, err
	}
	return queues, nil
}

// SelectForPosition returns the queues trading on the given position for the
// trade date, filtered to the given statuses.
func (d *Database) SelectForPosition(position types.Position, tradeDate string, statuses []types.QueueStatus) ([]types.Queue, error) {
	modes := []types.QueueMode{types.QueueBid}
	if position == types.PositionSell {
		modes = []types.QueueMode{types.QueueAsk, types.QueueSell}
	}

	var queues []types.Queue
	err := d.db.
		Where("trade_date = ? AND mode IN ? AND status IN ?", tradeDate, modes, statuses).
		Order("id ASC").
		Find(&queues).Error
	if err != nil {
		return nil, err
	}
	return queues, nil
}

// ListEligibleAccounts returns accounts that may receive a queue today:
// normal accounts for buy/rebalance flows and closing accounts for the sell
// path.
func (d *Database) ListEligibleAccounts() ([]types.Account, error) {
	var accounts []types.Account
	err := d.db.
		Where("status IN ?", []types.AccountStatus{types.AccountNormal, types.AccountSellInProgress}).
		Find(&accounts).Error
	if err != nil {
		return nil, err
	}
	return accounts, nil
}

func (d *Database) GetAccount(alias string) (*types.Account, error) {
	var account types.Account
	if err := d.db.Where("alias = ?", alias).First(&account).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &account, nil
}

func (d *Database) UpdateAccount(account *types.Account) error {
	return d.db.Save(account).Error
}

// GetLatestActiveEvent returns the account's newest on-hold or processing
// event, nil if none.
func (d *Database) GetLatestActiveEvent(alias string) (*types.Event, error) {
	var event types.Event
	err := d.db.
		Where("account_alias = ? AND status IN ?", alias,
			[]types.EventStatus{types.EventOnHold, types.EventProcessing}).
		Order("id DESC").
		First(&event).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &event, nil
}

// ActiveEventModes returns each account's active event mode, used to rank
// brand-new accounts ahead of ordinary rebalances at dispatch time.
func (d *Database) ActiveEventModes() (map[string]types.EventMode, error) {
	var events []types.Event
	err := d.db.
		Where("status IN ?", []types.EventStatus{types.EventOnHold, types.EventProcessing}).
		Order("id ASC").
		Find(&events).Error
	if err != nil {
		return nil, err
	}
	modes := make(map[string]types.EventMode)
	for _, e := range events {
		modes[e.AccountAlias] = e.Mode
	}
	return modes, nil
}
