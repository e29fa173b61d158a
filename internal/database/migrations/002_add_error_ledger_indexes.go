package migrations

import (
	"gorm.io/gorm"
)

// AddErrorLedgerIndexes creates the indexes behind the error ledger's
// live-entry checks and the portfolio catalog's latest-snapshot lookup.
func AddErrorLedgerIndexes(db *gorm.DB) error {
	indexes := []string{
		// Live-error uniqueness check per (class, account)
		`CREATE INDEX IF NOT EXISTS idx_error_occurs_class_account
		 ON error_occurs(error_class, account_alias)`,

		// Occurrence-date sweeps
		`CREATE INDEX IF NOT EXISTS idx_error_occurs_occurred_on
		 ON error_occurs(occurred_on)`,

		// Latest snapshot per (strategy, bucket) as of a date
		`CREATE INDEX IF NOT EXISTS idx_snapshots_strategy_bucket_published
		 ON snapshots(strategy_code, risk_bucket, published_on)`,
	}

	for _, idx := range indexes {
		if err := db.Exec(idx).Error; err != nil {
			return err
		}
	}

	return nil
}
