package database

import (
	"fmt"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/ksred/advisor-engine/internal/database/migrations"
	"github.com/ksred/advisor-engine/internal/monitor"
	"github.com/ksred/advisor-engine/internal/portfolio"
	"github.com/ksred/advisor-engine/internal/report"
	"github.com/ksred/advisor-engine/internal/types"
)

// NewDatabase initializes and returns a new GORM DB connection
func NewDatabase(path string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	err = db.AutoMigrate(
		&types.Account{},
		&types.Event{},
		&types.Queue{},
		&types.OrderLog{},
		&monitor.ErrorOccur{},
		&monitor.ErrorSolved{},
		&portfolio.Snapshot{},
		&report.OrderReport{},
	)
	if err != nil {
		return nil, err
	}

	// Run migrations
	if err := migrations.AddQueueIndexes(db); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	if err := migrations.AddErrorLedgerIndexes(db); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return db, nil
}
