package portfolio

import (
	"errors"

	"gorm.io/gorm"
)

type Database struct {
	db *gorm.DB
}

func NewDatabase(db *gorm.DB) *Database {
	return &Database{db: db}
}

func (d *Database) CreateSnapshot(snapshot *Snapshot) error {
	return d.db.Create(snapshot).Error
}

// GetLatestSnapshots returns, per (strategy, risk bucket), the most recent
// snapshot published on or before the given date.
func (d *Database) GetLatestSnapshots(asOf string) ([]Snapshot, error) {
	var snapshots []Snapshot
	err := d.db.
		Where("published_on <= ?", asOf).
		Order("published_on ASC, port_seq ASC").
		Find(&snapshots).Error
	if err != nil {
		return nil, err
	}

	latest := make(map[string]Snapshot)
	order := make([]string, 0)
	for _, s := range snapshots {
		key := s.StrategyCode + ":" + s.RiskBucket
		if _, seen := latest[key]; !seen {
			order = append(order, key)
		}
		latest[key] = s
	}

	result := make([]Snapshot, 0, len(latest))
	for _, key := range order {
		result = append(result, latest[key])
	}
	return result, nil
}

func (d *Database) GetSnapshotBySeq(portSeq int64) (*Snapshot, error) {
	var snapshot Snapshot
	if err := d.db.Where("port_seq = ?", portSeq).First(&snapshot).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &snapshot, nil
}
