package portfolio

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Snapshot is a published target portfolio composition for one
// (strategy, risk bucket) pair. Immutable once published for a date.
type Snapshot struct {
	gorm.Model   `json:"-"`
	PortSeq      int64     `gorm:"uniqueIndex" json:"port_seq"`
	StrategyCode string    `json:"strategy_code"`
	RiskBucket   string    `json:"risk_bucket"`
	PublishedOn  string    `gorm:"index" json:"published_on"` // YYYY-MM-DD
	Weights      string    `json:"weights"`                   // JSON-encoded []TargetWeight
	CreatedAt    time.Time `json:"created_at"`
}

// TargetWeight is one instrument's share of the target composition.
type TargetWeight struct {
	Ticker string          `json:"ticker"`
	Weight decimal.Decimal `json:"weight"`
}

// Target is a decoded snapshot ready for basket construction.
type Target struct {
	PortSeq int64
	Weights []TargetWeight
}
