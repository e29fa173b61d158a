package broker

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/ksred/advisor-engine/internal/types"
)

// OrderLeg is one instrument order submitted to a vendor.
type OrderLeg struct {
	Ticker   string
	Position types.Position
	Quantity int64
	Price    decimal.Decimal
}

// Fill is a vendor's response to a submitted leg. Executed may be less than
// the requested quantity; the remainder stays open at the vendor.
type Fill struct {
	VendorOrderID string
	Executed      int64
	Price         decimal.Decimal
}

// OpenOrder is an unexecuted leg sitting at the vendor.
type OpenOrder struct {
	VendorOrderID string
	Ticker        string
	Position      types.Position
	Remaining     int64
}

// ExecutionAdapter is the per-vendor trading API surface. Vendor failures
// surface as PreconditionFailedError and must be caught and reported, never
// propagated raw.
type ExecutionAdapter interface {
	SubmitOrder(ctx context.Context, alias string, leg OrderLeg) (*Fill, error)
	CancelOrder(ctx context.Context, alias string, vendorOrderID string) error
	UnexecutedOrders(ctx context.Context, alias string, position types.Position) ([]OpenOrder, error)
	Holdings(ctx context.Context, alias string) (map[string]int64, error)
}

// Registry resolves vendor codes to adapters. Populated once at startup.
type Registry struct {
	adapters map[string]ExecutionAdapter
}

// NewRegistry creates an empty adapter registry.
func NewRegistry() *Registry {
	return &Registry{adapters: make(map[string]ExecutionAdapter)}
}

// Register binds a vendor code to its adapter.
func (r *Registry) Register(vendorCode string, adapter ExecutionAdapter) {
	r.adapters[vendorCode] = adapter
}

// Resolve returns the adapter for a vendor code.
func (r *Registry) Resolve(vendorCode string) (ExecutionAdapter, error) {
	adapter, ok := r.adapters[vendorCode]
	if !ok {
		return nil, fmt.Errorf("no execution adapter registered for vendor %s", vendorCode)
	}
	return adapter, nil
}
