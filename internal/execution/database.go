package execution

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

func (d *Database) CreateOrderLog(log *types.OrderLog) error {
	return d.db.Create(log).Error
}

// GetLogByVendorOrderID finds the order log tracking a vendor order.
func (d *Database) GetLogByVendorOrderID(vendorOrderID string) (*types.OrderLog, error) {
	var log types.OrderLog
	if err := d.db.Where("vendor_order_id = ?", vendorOrderID).First(&log).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &log, nil
}

// MarkLogsCanceled transitions the given order logs to canceled in one write.
func (d *Database) MarkLogsCanceled(logIDs []string) error {
	if len(logIDs) == 0 {
		return nil
	}
	return d.db.Model(&types.OrderLog{}).
		Where("log_id IN ?", logIDs).
		Updates(map[string]interface{}{
			"status":     types.OrderLogCanceled,
			"updated_at": time.Now(),
		}).Error
}

// HasCompletedOrderLog reports whether the account has at least one completed
// leg for the trade date.
func (d *Database) HasCompletedOrderLog(alias, tradeDate string) (bool, error) {
	var count int64
	err := d.db.Model(&types.OrderLog{}).
		Where("account_alias = ? AND trade_date = ? AND status = ?",
			alias, tradeDate, types.OrderLogCompleted).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// CountOpenQueues counts the account's queues for the trade date that are not
// yet terminal.
func (d *Database) CountOpenQueues(alias, tradeDate string) (int64, error) {
	var count int64
	err := d.db.Model(&types.Queue{}).
		Where("account_alias = ? AND trade_date = ? AND status IN ?",
			alias, tradeDate,
			[]types.QueueStatus{types.QueuePending, types.QueueOnHold, types.QueueProcessing}).
		Count(&count).Error
	return count, err
}

// GetHeldBidQueue returns the account's on-hold bid leg for the trade date,
// nil if none. Used to release the buy leg once the paired sell leg is done.
func (d *Database) GetHeldBidQueue(alias, tradeDate string) (*types.Queue, error) {
	var queue types.Queue
	err := d.db.
		Where("account_alias = ? AND trade_date = ? AND mode = ? AND status = ?",
			alias, tradeDate, types.QueueBid, types.QueueOnHold).
		First(&queue).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &queue, nil
}

func (d *Database) UpdateQueue(queue *types.Queue) error {
	return d.db.Save(queue).Error
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

// GetLatestEvent returns the account's most recent event, nil if none.
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

func (d *Database) UpdateEvent(event *types.Event) error {
	return d.db.Save(event).Error
}
