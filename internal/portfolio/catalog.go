package portfolio

import (
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/ksred/advisor-engine/internal/types"
)

// Catalog is the read-only lookup of today's (or most recent) target
// portfolio composition per (strategy, risk bucket).
type Catalog struct {
	db *Database
}

// NewCatalog creates a catalog over the given database connection.
func NewCatalog(gormDB *gorm.DB) *Catalog {
	return &Catalog{db: NewDatabase(gormDB)}
}

// GetPortfolioMap returns the effective target per strategy and risk bucket
// as of the given date.
func (c *Catalog) GetPortfolioMap(asOf time.Time) (map[string]map[string]Target, error) {
	snapshots, err := c.db.GetLatestSnapshots(types.TradeDate(asOf))
	if err != nil {
		return nil, fmt.Errorf("failed to load portfolio snapshots: %w", err)
	}

	result := make(map[string]map[string]Target)
	for _, s := range snapshots {
		target, err := decodeTarget(&s)
		if err != nil {
			return nil, err
		}
		if result[s.StrategyCode] == nil {
			result[s.StrategyCode] = make(map[string]Target)
		}
		result[s.StrategyCode][s.RiskBucket] = *target
	}
	return result, nil
}

// GetBySeq resolves a portfolio sequence id embedded in a queue back into its
// target composition.
func (c *Catalog) GetBySeq(portSeq int64) (*Target, error) {
	snapshot, err := c.db.GetSnapshotBySeq(portSeq)
	if err != nil {
		return nil, err
	}
	if snapshot == nil {
		return nil, fmt.Errorf("portfolio not found for seq %d", portSeq)
	}
	return decodeTarget(snapshot)
}

// Publish persists a new snapshot with its weights encoded.
func (c *Catalog) Publish(strategyCode, riskBucket string, portSeq int64, publishedOn time.Time, weights []TargetWeight) error {
	raw, err := json.Marshal(weights)
	if err != nil {
		return err
	}
	return c.db.CreateSnapshot(&Snapshot{
		PortSeq:      portSeq,
		StrategyCode: strategyCode,
		RiskBucket:   riskBucket,
		PublishedOn:  types.TradeDate(publishedOn),
		Weights:      string(raw),
	})
}

func decodeTarget(s *Snapshot) (*Target, error) {
	var weights []TargetWeight
	if err := json.Unmarshal([]byte(s.Weights), &weights); err != nil {
		return nil, fmt.Errorf("failed to decode weights for port seq %d: %w", s.PortSeq, err)
	}
	return &Target{PortSeq: s.PortSeq, Weights: weights}, nil
}
