package broker

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ksred/advisor-engine/internal/types"
)

// SimAdapter is an in-memory vendor used by the simulation binary. It models
// latency, liquidity-limited partial fills, and a submission failure rate.
type SimAdapter struct {
	VendorCode      string
	MinLatency      int // milliseconds
	MaxLatency      int
	LiquidityFactor float64 // 0-1, fraction of a leg filled when liquidity binds
	SuccessRate     float64 // 0-1, probability a submission is accepted

	mu       sync.Mutex
	holdings map[string]map[string]int64 // alias -> ticker -> shares
	open     map[string][]OpenOrder      // alias -> unexecuted legs
	seq      int64
}

// NewSimAdapter creates a simulated vendor.
func NewSimAdapter(vendorCode string) *SimAdapter {
	return &SimAdapter{
		VendorCode:      vendorCode,
		MinLatency:      5,
		MaxLatency:      30,
		LiquidityFactor: 0.9,
		SuccessRate:     0.95,
		holdings:        make(map[string]map[string]int64),
		open:            make(map[string][]OpenOrder),
	}
}

// SeedHoldings sets an account's starting position book.
func (s *SimAdapter) SeedHoldings(alias string, holdings map[string]int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	book := make(map[string]int64, len(holdings))
	for ticker, qty := range holdings {
		book[ticker] = qty
	}
	s.holdings[alias] = book
}

// SubmitOrder implements ExecutionAdapter.
func (s *SimAdapter) SubmitOrder(ctx context.Context, alias string, leg OrderLeg) (*Fill, error) {
	logger := log.With().
		Str("vendor", s.VendorCode).
		Str("account", alias).
		Str("ticker", leg.Ticker).
		Str("position", string(leg.Position)).
		Int64("quantity", leg.Quantity).
		Logger()

	latency := rand.Intn(s.MaxLatency-s.MinLatency+1) + s.MinLatency
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(time.Duration(latency) * time.Millisecond):
	}

	if rand.Float64() > s.SuccessRate {
		logger.Warn().Msg("simulated vendor rejected submission")
		return nil, &types.PreconditionFailedError{
			Reason: fmt.Sprintf("vendor %s rejected order for %s", s.VendorCode, leg.Ticker),
		}
	}

	executed := leg.Quantity
	if rand.Float64() > s.LiquidityFactor {
		executed = int64(float64(leg.Quantity) * s.LiquidityFactor)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq++
	vendorOrderID := fmt.Sprintf("%s-ORD-%d", s.VendorCode, s.seq)

	book := s.holdings[alias]
	if book == nil {
		book = make(map[string]int64)
		s.holdings[alias] = book
	}
	if leg.Position == types.PositionBuy {
		book[leg.Ticker] += executed
	} else {
		book[leg.Ticker] -= executed
		if book[leg.Ticker] <= 0 {
			delete(book, leg.Ticker)
		}
	}

	if remaining := leg.Quantity - executed; remaining > 0 {
		s.open[alias] = append(s.open[alias], OpenOrder{
			VendorOrderID: vendorOrderID,
			Ticker:        leg.Ticker,
			Position:      leg.Position,
			Remaining:     remaining,
		})
	}

	logger.Info().
		Str("vendor_order_id", vendorOrderID).
		Int64("executed", executed).
		Msg("simulated fill")

	return &Fill{VendorOrderID: vendorOrderID, Executed: executed, Price: leg.Price}, nil
}

// CancelOrder implements ExecutionAdapter.
func (s *SimAdapter) CancelOrder(ctx context.Context, alias string, vendorOrderID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	orders := s.open[alias]
	for i, o := range orders {
		if o.VendorOrderID == vendorOrderID {
			s.open[alias] = append(orders[:i], orders[i+1:]...)
			return nil
		}
	}
	return &types.PreconditionFailedError{
		Reason: fmt.Sprintf("no open order %s for account %s", vendorOrderID, alias),
	}
}

// UnexecutedOrders implements ExecutionAdapter.
func (s *SimAdapter) UnexecutedOrders(ctx context.Context, alias string, position types.Position) ([]OpenOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result []OpenOrder
	for _, o := range s.open[alias] {
		if o.Position == position {
			result = append(result, o)
		}
	}
	return result, nil
}

// Holdings implements ExecutionAdapter.
func (s *SimAdapter) Holdings(ctx context.Context, alias string) (map[string]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	book := make(map[string]int64, len(s.holdings[alias]))
	for ticker, qty := range s.holdings[alias] {
		book[ticker] = qty
	}
	return book, nil
}
