package slicing

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/ksred/advisor-engine/internal/dispatch"
	"github.com/ksred/advisor-engine/internal/execution"
	"github.com/ksred/advisor-engine/internal/queue"
	"github.com/ksred/advisor-engine/internal/types"
)

// Controller drives ExecutionManager through successive partial fills across
// the trading day. Spreading execution over shrinking slices reduces market
// impact while the final Cancel windows guarantee every queue terminates by
// end of day.
type Controller struct {
	schedule *Schedule
	queues   *queue.Database
	manager  *execution.Manager
	pool     *dispatch.Pool
	expiry   time.Duration
}

// NewController creates a slice controller. expiry bounds how long a
// dispatched per-account unit may wait before it is dropped unstarted.
func NewController(gormDB *gorm.DB, schedule *Schedule, manager *execution.Manager, pool *dispatch.Pool, expiry time.Duration) *Controller {
	return &Controller{
		schedule: schedule,
		queues:   queue.NewDatabase(gormDB),
		manager:  manager,
		pool:     pool,
		expiry:   expiry,
	}
}

// RunSlice executes the slice active at the given wall-clock time.
func (c *Controller) RunSlice(ctx context.Context, now time.Time) error {
	logger := log.With().Str("component", "slice_controller").Logger()

	phase, ok := c.schedule.PhaseAt(now)
	if !ok {
		logger.Debug().Time("now", now).Msg("outside trading session, nothing to run")
		return nil
	}

	logger.Info().
		Str("position", string(phase.Position)).
		Str("order_type", string(phase.OrderType)).
		Int("slice_index", phase.SliceIndex).
		Int("remaining", phase.RemainingOrders).
		Msg("running slice")

	tradeDate := types.TradeDate(now)
	selectable := []types.QueueStatus{types.QueuePending, types.QueueProcessing}
	if phase.OrderType == OrderCancel {
		// Cancel windows also sweep up held bid legs whose ask leg never
		// completed, so every queue is terminal by end of day.
		selectable = append(selectable, types.QueueOnHold)
	}
	queues, err := c.queues.SelectForPosition(phase.Position, tradeDate, selectable)
	if err != nil {
		return fmt.Errorf("failed to select queues: %w", err)
	}
	if len(queues) == 0 {
		logger.Debug().Msg("no queues for slice")
		return nil
	}

	if err := c.prioritize(queues, phase.Position); err != nil {
		return err
	}

	finalSlice := phase.RemainingOrders == 0
	expiry := now.Add(c.expiry)

	units := make([]dispatch.Unit, 0, len(queues))
	for i := range queues {
		q := queues[i]
		units = append(units, dispatch.Unit{
			Key:    q.QueueID,
			Expiry: expiry,
			Run: func(runCtx context.Context) error {
				if phase.OrderType == OrderCancel {
					return c.manager.Finalize(runCtx, &q, finalSlice)
				}
				return c.manager.Run(runCtx, &q)
			},
		})
	}

	ran := c.pool.Dispatch(ctx, units)
	logger.Info().
		Int("queues", len(queues)).
		Int("ran", ran).
		Msg("slice dispatch completed")
	return nil
}

// prioritize orders queues so closing accounts lead the sell side and
// brand-new accounts lead the buy side, ahead of ordinary rebalances.
func (c *Controller) prioritize(queues []types.Queue, position types.Position) error {
	rank := func(q *types.Queue) int { return 1 }
	if position == types.PositionSell {
		rank = func(q *types.Queue) int {
			if q.Mode == types.QueueSell {
				return 0
			}
			return 1
		}
	} else {
		modes, err := c.queues.ActiveEventModes()
		if err != nil {
			return fmt.Errorf("failed to load event modes: %w", err)
		}
		rank = func(q *types.Queue) int {
			if modes[q.AccountAlias] == types.EventNewOrder {
				return 0
			}
			return 1
		}
	}

	sort.SliceStable(queues, func(i, j int) bool {
		return rank(&queues[i]) < rank(&queues[j])
	})
	return nil
}
