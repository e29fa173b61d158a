package monitor

import (
	"time"

	"gorm.io/gorm"

	"github.com/ksred/advisor-engine/internal/types"
)

// ErrorOccur is one live entry in the error ledger. An (error class, account)
// pair is live while no matching ErrorSolved exists.
type ErrorOccur struct {
	gorm.Model   `json:"-"`
	OccurID      string           `gorm:"uniqueIndex" json:"occur_id"`
	ErrorClass   types.ErrorClass `gorm:"index" json:"error_class"`
	AccountAlias string           `gorm:"index" json:"account_alias"`
	QueueID      string           `json:"queue_id"`
	OccurredOn   string           `json:"occurred_on"` // YYYY-MM-DD
	CreatedAt    time.Time        `json:"created_at"`
}

// ErrorSolved closes one ErrorOccur.
type ErrorSolved struct {
	gorm.Model `json:"-"`
	OccurID    string    `gorm:"uniqueIndex" json:"occur_id"`
	SolvedOn   string    `json:"solved_on"`
	CreatedAt  time.Time `json:"created_at"`
}
