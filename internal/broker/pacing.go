package broker

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Pacer throttles outbound vendor API calls per vendor code. Brokers
// rate-limit; a fleet-wide slice run must not burst past their windows.
type Pacer struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	limit    rate.Limit
	burst    int
}

// NewPacer creates a pacer allowing callsPerSecond sustained calls per vendor
// with the given burst.
func NewPacer(callsPerSecond float64, burst int) *Pacer {
	return &Pacer{
		limiters: make(map[string]*rate.Limiter),
		limit:    rate.Limit(callsPerSecond),
		burst:    burst,
	}
}

func (p *Pacer) limiter(vendorCode string) *rate.Limiter {
	p.mu.Lock()
	defer p.mu.Unlock()

	l, exists := p.limiters[vendorCode]
	if !exists {
		l = rate.NewLimiter(p.limit, p.burst)
		p.limiters[vendorCode] = l
	}
	return l
}

// Wait blocks until the vendor's limiter admits one call or the context ends.
func (p *Pacer) Wait(ctx context.Context, vendorCode string) error {
	return p.limiter(vendorCode).Wait(ctx)
}

// Reserve reports how long a caller would need to wait for the next call slot
// without consuming it, for diagnostics.
func (p *Pacer) Reserve(vendorCode string) time.Duration {
	r := p.limiter(vendorCode).Reserve()
	delay := r.Delay()
	r.Cancel()
	return delay
}
