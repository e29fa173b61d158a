package migrations

import (
	"gorm.io/gorm"
)

// AddQueueIndexes creates the composite indexes behind the hot queue and
// order-log query paths: the registrar's idempotency check, slice selection,
// and per-account daily reconciliation.
func AddQueueIndexes(db *gorm.DB) error {
	// Using raw SQL for index creation to have more control over index types
	indexes := []string{
		// Idempotent-registration lookup
		`CREATE INDEX IF NOT EXISTS idx_queues_account_trade_date
		 ON queues(account_alias, trade_date)`,

		// Slice selection by side and status
		`CREATE INDEX IF NOT EXISTS idx_queues_date_mode_status
		 ON queues(trade_date, mode, status)`,

		// Completed-leg check during account reconciliation
		`CREATE INDEX IF NOT EXISTS idx_order_logs_account_date_status
		 ON order_logs(account_alias, trade_date, status)`,

		// Vendor order lookup on cancellation
		`CREATE INDEX IF NOT EXISTS idx_order_logs_vendor_order_id
		 ON order_logs(vendor_order_id)`,
	}

	for _, idx := range indexes {
		if err := db.Exec(idx).Error; err != nil {
			return err
		}
	}

	return nil
}
