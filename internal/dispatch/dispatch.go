package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// Unit is one independently-runnable piece of per-account work. A unit that
// has not started before its expiry is dropped rather than executed late with
// stale prices.
type Unit struct {
	Key    string
	Expiry time.Time
	Run    func(ctx context.Context) error
}

// Pool fans units out onto a bounded set of workers. Units never share
// mutable state; a failing or panicking unit is logged and absorbed so the
// rest of the batch keeps running. There is no automatic retry: retry happens
// by the next scheduling cycle re-evaluating queue state, because a blind
// retry on a partially-filled order could double-execute.
type Pool struct {
	concurrency int
}

// NewPool creates a pool running at most concurrency units at once.
func NewPool(concurrency int) *Pool {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Pool{concurrency: concurrency}
}

// Dispatch runs all units and blocks until they finish or the context ends.
// The returned count is the number of units that ran (expired units are
// skipped, not counted).
func (p *Pool) Dispatch(ctx context.Context, units []Unit) int {
	logger := log.With().Str("component", "dispatch_pool").Logger()

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(p.concurrency)

	ran := make(chan struct{}, len(units))
	for _, unit := range units {
		unit := unit
		group.Go(func() error {
			if !unit.Expiry.IsZero() && time.Now().After(unit.Expiry) {
				logger.Warn().
					Str("unit", unit.Key).
					Time("expiry", unit.Expiry).
					Msg("unit expired before start, dropping")
				return nil
			}

			ran <- struct{}{}
			defer func() {
				if r := recover(); r != nil {
					logger.Error().
						Str("unit", unit.Key).
						Str("panic", fmt.Sprint(r)).
						Msg("unit panicked")
				}
			}()

			if err := unit.Run(groupCtx); err != nil {
				// Unit failures stay inside the unit: they are reported via
				// queue state and the error ledger, not propagated.
				logger.Error().Err(err).Str("unit", unit.Key).Msg("unit failed")
			}
			return nil
		})
	}

	_ = group.Wait()
	close(ran)

	count := 0
	for range ran {
		count++
	}
	return count
}
