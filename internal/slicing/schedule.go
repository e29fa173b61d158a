package slicing

import (
	"fmt"
	"time"

	"github.com/ksred/advisor-engine/internal/types"
)

// OrderType is the action a TWAP slice performs.
type OrderType string

const (
	OrderNew    OrderType = "NEW"
	OrderAdjust OrderType = "ADJUST"
	OrderCancel OrderType = "CANCEL"
)

// Schedule is the published trading-session layout. The session divides into
// alternating Sell/Buy windows: the first pair places new orders, the last
// pair cancels, and every pair between adjusts toward the target.
type Schedule struct {
	Open          time.Duration // offset from local midnight
	Close         time.Duration
	SliceInterval time.Duration
}

// Phase is the derived state of the active slice.
type Phase struct {
	Position        types.Position
	OrderType       OrderType
	SliceIndex      int // per-position, 0-based
	TotalSlices     int
	RemainingOrders int
}

// NewSchedule validates a session layout. The session must hold at least a
// New and a Cancel window pair and divide evenly into windows.
func NewSchedule(open, close, sliceInterval time.Duration) (*Schedule, error) {
	if close <= open {
		return nil, fmt.Errorf("session close %s not after open %s", close, open)
	}
	if sliceInterval <= 0 {
		return nil, fmt.Errorf("invalid slice interval %s", sliceInterval)
	}
	session := close - open
	if session%sliceInterval != 0 {
		return nil, fmt.Errorf("session %s not divisible by slice interval %s", session, sliceInterval)
	}
	windows := int(session / sliceInterval)
	if windows < 4 || windows%2 != 0 {
		return nil, fmt.Errorf("session needs an even number of windows >= 4, got %d", windows)
	}
	return &Schedule{Open: open, Close: close, SliceInterval: sliceInterval}, nil
}

// PhaseAt maps wall-clock time onto the active slice by rounding down to the
// containing window. Outside the session it returns false.
func (s *Schedule) PhaseAt(now time.Time) (Phase, bool) {
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	offset := now.Sub(midnight)
	if offset < s.Open || offset >= s.Close {
		return Phase{}, false
	}

	window := int((offset - s.Open) / s.SliceInterval)
	totalWindows := int((s.Close - s.Open) / s.SliceInterval)

	position := types.PositionSell
	if window%2 == 1 {
		position = types.PositionBuy
	}

	orderType := OrderAdjust
	switch {
	case window < 2:
		orderType = OrderNew
	case window >= totalWindows-2:
		orderType = OrderCancel
	}

	sliceIndex := window / 2
	totalSlices := totalWindows / 2
	return Phase{
		Position:        position,
		OrderType:       orderType,
		SliceIndex:      sliceIndex,
		TotalSlices:     totalSlices,
		RemainingOrders: totalSlices - 1 - sliceIndex,
	}, true
}
