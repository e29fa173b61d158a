package types

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Account is one brokerage sub-account. Rows are never deleted; closure is a
// soft archive through Status.
type Account struct {
	gorm.Model   `json:"-"`
	Alias        string          `gorm:"uniqueIndex" json:"alias"`
	VendorCode   string          `json:"vendor_code"`
	Market       string          `json:"market"`
	RiskBucket   string          `json:"risk_bucket"`
	StrategyCode string          `json:"strategy_code"`
	Status       AccountStatus   `json:"status"`
	BaseAmount   decimal.Decimal `gorm:"type:decimal(20,4)" json:"base_amount"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// Event is the most-recent order-intent marker per account. At most one
// active (on-hold or processing) event drives an account's daily queues.
type Event struct {
	gorm.Model   `json:"-"`
	EventID      string      `gorm:"uniqueIndex" json:"event_id"`
	AccountAlias string      `gorm:"index" json:"account_alias"`
	Mode         EventMode   `json:"mode"`
	Status       EventStatus `json:"status"`
	PortSeq      int64       `json:"port_seq"`
	CreatedAt    time.Time   `json:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at"`
}

// Queue is one day's persisted order intent for one account and side. Rows
// are never deleted; they double as the audit trail.
type Queue struct {
	gorm.Model   `json:"-"`
	QueueID      string      `gorm:"uniqueIndex" json:"queue_id"`
	AccountAlias string      `gorm:"index" json:"account_alias"`
	Mode         QueueMode   `json:"mode"`
	Status       QueueStatus `json:"status"`
	Basket       string      `json:"basket"` // JSON-encoded Basket payload
	Note         string      `json:"note"`
	ErrorClass   ErrorClass  `json:"error_class"`
	PortSeq      int64       `json:"port_seq"`
	TradeDate    string      `gorm:"index" json:"trade_date"` // YYYY-MM-DD
	CreatedAt    time.Time   `json:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at"`
}

// OrderLog is one row per (queue, instrument) execution attempt.
type OrderLog struct {
	gorm.Model    `json:"-"`
	LogID         string          `gorm:"uniqueIndex" json:"log_id"`
	QueueID       string          `gorm:"index" json:"queue_id"`
	AccountAlias  string          `gorm:"index" json:"account_alias"`
	Ticker        string          `json:"ticker"`
	Position      Position        `json:"position"`
	Quantity      int64           `json:"quantity"`
	Price         decimal.Decimal `gorm:"type:decimal(20,4)" json:"price"`
	VendorOrderID string          `json:"vendor_order_id"`
	Status        OrderLogStatus  `json:"status"`
	ErrorMessage  string          `json:"error_message"`
	ErrorClass    ErrorClass      `json:"error_class"`
	TradeDate     string          `gorm:"index" json:"trade_date"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// BasketItem is one instrument's target in a basket.
type BasketItem struct {
	Ticker       string          `json:"ticker"`
	Weight       decimal.Decimal `json:"weight"`
	Price        decimal.Decimal `json:"price"`
	TargetShares int64           `json:"target_shares"`
}

// Basket is the set of per-instrument targets an account should hold after
// today's orders, plus the residual liquidity weight.
type Basket struct {
	PortSeq    int64           `json:"port_seq"`
	Items      []BasketItem    `json:"items"`
	Liquidity  decimal.Decimal `json:"liquidity"`
	BaseAmount decimal.Decimal `json:"base_amount"`
}

// TargetShares returns the basket as a ticker -> share-count map.
func (b *Basket) TargetShares() map[string]int64 {
	targets := make(map[string]int64, len(b.Items))
	for _, item := range b.Items {
		targets[item.Ticker] = item.TargetShares
	}
	return targets
}

// EncodeBasket serializes a basket for the queue payload column. A nil basket
// encodes as empty, which reads back as a liquidate-everything target.
func EncodeBasket(b *Basket) (string, error) {
	if b == nil {
		return "", nil
	}
	raw, err := json.Marshal(b)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// DecodeBasket parses the queue payload column.
func DecodeBasket(payload string) (*Basket, error) {
	if payload == "" {
		return nil, nil
	}
	var b Basket
	if err := json.Unmarshal([]byte(payload), &b); err != nil {
		return nil, err
	}
	return &b, nil
}

// TradeDate formats a timestamp as the queue trade-date key.
func TradeDate(t time.Time) string {
	return t.Format("2006-01-02")
}
